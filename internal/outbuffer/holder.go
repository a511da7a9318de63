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

package outbuffer

import (
	"sync"
	"time"

	"github.com/tochemey/lattice/internal/ticker"
	"github.com/tochemey/lattice/log"
)

const (
	// DefaultHardRetention is how long a freshly enqueued task is strongly held.
	DefaultHardRetention = 20 * time.Second
	// DefaultSweepInterval is how often expired hard references are released.
	DefaultSweepInterval = time.Second
)

// HolderOption configures a HardRefHolder.
type HolderOption func(*HardRefHolder)

// WithExpiry sets the hard retention window.
func WithExpiry(expiry time.Duration) HolderOption {
	return func(h *HardRefHolder) {
		if expiry > 0 {
			h.expiry = expiry
		}
	}
}

// WithSweepInterval sets how often Sweep runs once started.
func WithSweepInterval(interval time.Duration) HolderOption {
	return func(h *HardRefHolder) {
		if interval > 0 {
			h.interval = interval
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) HolderOption {
	return func(h *HardRefHolder) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHolderLogger sets the logger.
func WithHolderLogger(logger log.Logger) HolderOption {
	return func(h *HardRefHolder) {
		h.logger = logger
	}
}

type hardRef struct {
	entry     *entry
	expiresAt time.Time
}

// HardRefHolder keeps a strong reference to every newly buffered task for a
// bounded window. Entries are appended in expiry order, so a sweep only looks
// at the head of the list.
type HardRefHolder struct {
	mu       sync.Mutex
	refs     []hardRef
	expiry   time.Duration
	interval time.Duration
	clock    func() time.Time
	logger   log.Logger

	ticker *ticker.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHardRefHolder creates a stopped HardRefHolder.
func NewHardRefHolder(opts ...HolderOption) *HardRefHolder {
	h := &HardRefHolder{
		refs:     make([]hardRef, 0, 64),
		expiry:   DefaultHardRetention,
		interval: DefaultSweepInterval,
		clock:    time.Now,
		logger:   log.DiscardLogger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HardRefHolder) holdOnTo(e *entry) {
	e.held.Store(true)
	h.mu.Lock()
	h.refs = append(h.refs, hardRef{entry: e, expiresAt: h.clock().Add(h.expiry)})
	h.mu.Unlock()
}

// Sweep releases every reference whose window has elapsed and returns how
// many were released. Released tasks stay buffered under weak retention.
func (h *HardRefHolder) Sweep() int {
	now := h.clock()
	h.mu.Lock()
	defer h.mu.Unlock()

	released := 0
	for released < len(h.refs) && !h.refs[released].expiresAt.After(now) {
		h.refs[released].entry.held.Store(false)
		h.refs[released] = hardRef{}
		released++
	}
	if released > 0 {
		h.refs = h.refs[released:]
		h.logger.Debugf("released %d hard-held buffered tasks", released)
	}
	return released
}

// Len returns the number of hard-held tasks.
func (h *HardRefHolder) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.refs)
}

// Expiry returns the hard retention window.
func (h *HardRefHolder) Expiry() time.Duration {
	return h.expiry
}

// Start runs Sweep periodically until Stop is called.
func (h *HardRefHolder) Start() {
	h.mu.Lock()
	if h.ticker != nil {
		h.mu.Unlock()
		return
	}
	h.ticker = ticker.New(h.interval)
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	tk, stopCh, doneCh := h.ticker, h.stopCh, h.doneCh
	h.mu.Unlock()

	tk.Start()
	go func() {
		defer close(doneCh)
		for {
			select {
			case <-tk.Ticks:
				h.Sweep()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop stops the periodic sweep. Held references are kept.
func (h *HardRefHolder) Stop() {
	h.mu.Lock()
	if h.ticker == nil {
		h.mu.Unlock()
		return
	}
	tk, stopCh, doneCh := h.ticker, h.stopCh, h.doneCh
	h.ticker = nil
	h.mu.Unlock()

	close(stopCh)
	<-doneCh
	tk.Stop()
}
