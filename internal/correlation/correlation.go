// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package correlation pairs outgoing requests with the Answer that completes them.
package correlation

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	gerrors "github.com/tochemey/lattice/errors"
	"github.com/tochemey/lattice/future"
	"github.com/tochemey/lattice/internal/metric"
	"github.com/tochemey/lattice/internal/xsync"
	"github.com/tochemey/lattice/log"
)

// Option configures a Table.
type Option func(*Table)

// WithTimeout fails a pending request with errors.ErrRequestTimeout when no
// answer arrives within timeout. Zero disables timeouts.
func WithTimeout(timeout time.Duration) Option {
	return func(t *Table) {
		t.timeout = timeout
	}
}

// WithIDGenerator overrides the correlation id generator.
func WithIDGenerator(gen func() string) Option {
	return func(t *Table) {
		if gen != nil {
			t.nextID = gen
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(t *Table) {
		t.logger = logger
	}
}

// WithMetric sets the metric recorder.
func WithMetric(m *metric.GridMetric) Option {
	return func(t *Table) {
		t.metric = m
	}
}

type pending struct {
	completable future.Completable
	timer       *time.Timer
}

func (p *pending) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// Table maps correlation ids to pending futures. An entry is removed exactly
// once: by the matching answer, by its timeout or by FailAll.
type Table struct {
	entries *xsync.Map[string, *pending]
	timeout time.Duration
	nextID  func() string
	logger  log.Logger
	metric  *metric.GridMetric
}

// New creates a Table.
func New(opts ...Option) *Table {
	t := &Table{
		entries: xsync.NewMap[string, *pending](),
		nextID:  uuid.NewString,
		logger:  log.DiscardLogger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewRequest registers a pending request and returns its id and future.
// The id is never equal to another outstanding id.
func (t *Table) NewRequest() (string, future.Future) {
	comp := future.New()
	for {
		id := t.nextID()
		entry := &pending{completable: comp}
		if t.timeout > 0 {
			// armed only once the entry is visible to expire
			entry.timer = time.AfterFunc(math.MaxInt64, func() { t.expire(id) })
		}
		if t.entries.SetIfAbsent(id, entry) {
			t.metric.RequestStarted(context.Background())
			if entry.timer != nil {
				entry.timer.Reset(t.timeout)
			}
			return id, comp.Future()
		}
		entry.stopTimer()
	}
}

// Complete removes the entry for id and completes its future with the answer.
// It returns false, without any other effect, when id is not pending: a
// duplicate, stale or already timed-out answer.
func (t *Table) Complete(id string, result []byte, err error) bool {
	entry, ok := t.entries.Pop(id)
	if !ok {
		t.logger.Debugf("ignoring answer for unknown correlation id=%s", id)
		return false
	}

	entry.stopTimer()
	if err != nil {
		entry.completable.Failure(err)
	} else {
		entry.completable.Success(result)
	}
	t.metric.RequestEnded(context.Background(), false)
	return true
}

// Pending reports whether id is outstanding.
func (t *Table) Pending(id string) bool {
	_, ok := t.entries.Get(id)
	return ok
}

// Len returns the number of outstanding requests.
func (t *Table) Len() int {
	return t.entries.Len()
}

// FailAll fails every outstanding request with err and empties the table.
func (t *Table) FailAll(err error) {
	for _, entry := range t.entries.Drain() {
		entry.stopTimer()
		entry.completable.Failure(err)
		t.metric.RequestEnded(context.Background(), false)
	}
}

func (t *Table) expire(id string) {
	entry, ok := t.entries.Pop(id)
	if !ok {
		return
	}
	t.logger.Warnf("request id=%s timed out after %s", id, t.timeout)
	entry.completable.Failure(gerrors.ErrRequestTimeout)
	t.metric.RequestEnded(context.Background(), true)
}
