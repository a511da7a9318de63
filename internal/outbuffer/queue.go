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

// Package outbuffer holds the work deferred for cluster nodes that cannot be
// reached right now.
//
// Buffered work is retained on a best-effort basis. Every newly enqueued task
// is strongly held by a HardRefHolder for a bounded window; past that window
// the task falls back to weak retention and may be evicted when the buffers
// are under memory pressure (see OutBuffers.Reclaim). A node that is down
// briefly loses nothing, a node that stays down for long degrades to
// best-effort delivery instead of growing the buffers without bound.
package outbuffer

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Task is a deferred operation, typically "send this message later".
// A non-nil error means the task could not run yet and must be retried.
type Task func() error

type entry struct {
	task       Task
	enqueuedAt time.Time
	held       *atomic.Bool
}

func newEntry(task Task, now time.Time) *entry {
	return &entry{
		task:       task,
		enqueuedAt: now,
		held:       atomic.NewBool(false),
	}
}

// Queue is the FIFO of deferred tasks of a single node.
type Queue struct {
	mu       sync.Mutex
	entries  []*entry
	flushing bool

	// serializes flushes
	flushMu sync.Mutex
}

// emptyQueue is returned for nodes without buffered work. Nothing is ever
// offered to it.
var emptyQueue = &Queue{}

func newQueue() *Queue {
	return &Queue{entries: make([]*entry, 0, 8)}
}

func (q *Queue) offer(e *entry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.mu.Unlock()
}

// offerBehind appends e only when earlier work is buffered or being flushed.
func (q *Queue) offerBehind(e *entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.flushing && len(q.entries) == 0 {
		return false
	}
	q.entries = append(q.entries, e)
	return true
}

// Len returns the number of buffered tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// IsEmpty reports whether nothing is buffered.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Tasks returns a FIFO snapshot of the buffered tasks without removing them.
func (q *Queue) Tasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := make([]Task, len(q.entries))
	for i, e := range q.entries {
		tasks[i] = e.task
	}
	return tasks
}

// Drain detaches and returns the buffered tasks in FIFO order. Tasks
// enqueued after Drain returns are kept for the next drain.
func (q *Queue) Drain() []Task {
	q.mu.Lock()
	drained := q.entries
	if len(drained) > 0 {
		q.entries = make([]*entry, 0, 8)
	}
	q.mu.Unlock()

	tasks := make([]Task, len(drained))
	for i, e := range drained {
		tasks[i] = e.task
	}
	return tasks
}

// flush runs the buffered tasks in FIFO order, including the ones enqueued
// while it runs, until the queue is empty or a task fails. The failed task and
// every task behind it go back to the head of the queue in their original
// order. It returns the number of tasks that ran successfully.
func (q *Queue) flush() (int, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	ran := 0
	for {
		q.mu.Lock()
		batch := q.entries
		if len(batch) == 0 {
			q.flushing = false
			q.mu.Unlock()
			return ran, nil
		}
		q.entries = make([]*entry, 0, 8)
		q.flushing = true
		q.mu.Unlock()

		for i, e := range batch {
			if err := e.task(); err != nil {
				remaining := batch[i:len(batch):len(batch)]
				q.mu.Lock()
				q.entries = append(remaining, q.entries...)
				q.flushing = false
				q.mu.Unlock()
				return ran, err
			}
			batch[i] = nil
			ran++
		}
	}
}

// Reclaim evicts every task that is no longer hard-held and returns how many
// were evicted. The relative order of the remaining tasks is preserved.
func (q *Queue) Reclaim() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.held.Load() {
			kept = append(kept, e)
		}
	}
	evicted := len(q.entries) - len(kept)
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
	return evicted
}

// oldest returns the enqueue time of the head entry.
func (q *Queue) oldest() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return time.Time{}, false
	}
	return q.entries[0].enqueuedAt, true
}
