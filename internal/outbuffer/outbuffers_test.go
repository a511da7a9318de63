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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"github.com/tochemey/lattice/address"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func recorder() (*[]int, *sync.Mutex, func(int) Task) {
	var (
		mu   sync.Mutex
		seen []int
	)
	return &seen, &mu, func(i int) Task {
		return func() error {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
			return nil
		}
	}
}

func noop() error { return nil }

func TestOutBuffers(t *testing.T) {
	const node = address.NodeID("node-b")

	t.Run("With enqueue then queue", func(t *testing.T) {
		buffers := New(NewHardRefHolder())
		buffers.Enqueue(node, noop)
		buffers.Enqueue(node, noop)
		marker := atomic.NewBool(false)
		buffers.Enqueue(node, func() error {
			marker.Store(true)
			return nil
		})

		tasks := buffers.Queue(node).Tasks()
		require.Len(t, tasks, 3)
		require.NoError(t, tasks[2]())
		assert.True(t, marker.Load())
		assert.Equal(t, 3, buffers.Len())
		assert.Equal(t, []address.NodeID{node}, buffers.Nodes())
	})
	t.Run("With an unseen node", func(t *testing.T) {
		buffers := New(nil)
		queue := buffers.Queue("unknown")
		require.NotNil(t, queue)
		assert.True(t, queue.IsEmpty())
		assert.Empty(t, queue.Tasks())
		assert.Same(t, queue, buffers.Queue("other"))
		assert.Nil(t, buffers.Drain("unknown"))
		assert.Zero(t, buffers.Discard("unknown"))
		assert.Zero(t, buffers.OldestAge("unknown"))
	})
	t.Run("With concurrent first enqueue creating a single queue", func(t *testing.T) {
		buffers := New(nil)
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				buffers.Enqueue(node, noop)
			}()
		}
		wg.Wait()
		assert.Equal(t, 100, buffers.Queue(node).Len())
	})
	t.Run("With drain in FIFO order", func(t *testing.T) {
		buffers := New(NewHardRefHolder())
		seen, mu, task := recorder()
		for i := 0; i < 5; i++ {
			buffers.Enqueue(node, task(i))
		}
		for _, run := range buffers.Drain(node) {
			require.NoError(t, run())
		}
		mu.Lock()
		assert.Equal(t, []int{0, 1, 2, 3, 4}, *seen)
		mu.Unlock()
		assert.True(t, buffers.Queue(node).IsEmpty())
		assert.Empty(t, buffers.Drain(node))
	})
	t.Run("With enqueue after drain kept for the next drain", func(t *testing.T) {
		buffers := New(nil)
		buffers.Enqueue(node, noop)
		first := buffers.Drain(node)
		buffers.Enqueue(node, noop)
		assert.Len(t, first, 1)
		assert.Len(t, buffers.Drain(node), 1)
	})
	t.Run("With weak retention evicted under memory pressure", func(t *testing.T) {
		buffers := New(nil)
		buffers.Enqueue(node, noop)
		assert.Equal(t, 1, buffers.Reclaim())
		assert.True(t, buffers.Queue(node).IsEmpty())
	})
	t.Run("With hard retention surviving memory pressure", func(t *testing.T) {
		clock := newFakeClock()
		holder := NewHardRefHolder(WithExpiry(10*time.Second), WithClock(clock.Now))
		buffers := New(holder)
		buffers.Enqueue(node, noop)

		assert.Zero(t, buffers.Reclaim())
		assert.Equal(t, 1, buffers.Queue(node).Len())

		clock.Advance(5 * time.Second)
		assert.Zero(t, holder.Sweep())
		assert.Zero(t, buffers.Reclaim())
		assert.Equal(t, 5*time.Second, buffers.OldestAge(node))

		// past the window the task degrades to weak retention
		clock.Advance(6 * time.Second)
		assert.Equal(t, 1, holder.Sweep())
		assert.Zero(t, holder.Len())
		assert.Equal(t, 1, buffers.Queue(node).Len())
		assert.Equal(t, 1, buffers.Reclaim())
		assert.True(t, buffers.Queue(node).IsEmpty())
	})
	t.Run("With reclaim keeping the order of held tasks", func(t *testing.T) {
		clock := newFakeClock()
		holder := NewHardRefHolder(WithExpiry(10*time.Second), WithClock(clock.Now))
		buffers := New(holder)
		seen, mu, task := recorder()

		buffers.Enqueue(node, task(0))
		clock.Advance(11 * time.Second)
		holder.Sweep()
		buffers.Enqueue(node, task(1))
		buffers.Enqueue(node, task(2))

		assert.Equal(t, 1, buffers.Reclaim())
		for _, run := range buffers.Drain(node) {
			require.NoError(t, run())
		}
		mu.Lock()
		assert.Equal(t, []int{1, 2}, *seen)
		mu.Unlock()
	})
	t.Run("With soft limit triggering reclaim", func(t *testing.T) {
		buffers := New(nil, WithSoftLimit(3))
		for i := 0; i < 4; i++ {
			buffers.Enqueue(node, noop)
		}
		// the fourth enqueue crossed the limit and evicted the weak entries
		assert.Zero(t, buffers.Len())
	})
	t.Run("With soft limit and hard-held tasks", func(t *testing.T) {
		buffers := New(NewHardRefHolder(), WithSoftLimit(3))
		for i := 0; i < 4; i++ {
			buffers.Enqueue(node, noop)
		}
		assert.Equal(t, 4, buffers.Len())
	})
	t.Run("With flush stopping at the first failure", func(t *testing.T) {
		buffers := New(NewHardRefHolder())
		seen, mu, task := recorder()
		failing := atomic.NewBool(true)
		buffers.Enqueue(node, task(0))
		buffers.Enqueue(node, func() error {
			if failing.Load() {
				return assert.AnError
			}
			return task(1)()
		})
		buffers.Enqueue(node, task(2))
		buffers.Enqueue(node, task(3))

		ran, err := buffers.Flush(node)
		require.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, ran)
		assert.Equal(t, 3, buffers.Queue(node).Len())

		// enqueued after the failure, so it stays behind the requeued tasks
		buffers.Enqueue(node, task(4))
		failing.Store(false)
		ran, err = buffers.Flush(node)
		require.NoError(t, err)
		assert.Equal(t, 4, ran)
		assert.True(t, buffers.Queue(node).IsEmpty())

		mu.Lock()
		assert.Equal(t, []int{0, 1, 2, 3, 4}, *seen)
		mu.Unlock()
	})
	t.Run("With flush running tasks enqueued while flushing", func(t *testing.T) {
		buffers := New(nil)
		seen, mu, task := recorder()
		buffers.Enqueue(node, func() error {
			assert.True(t, buffers.EnqueueBehind(node, task(1)))
			return task(0)()
		})

		ran, err := buffers.Flush(node)
		require.NoError(t, err)
		assert.Equal(t, 2, ran)
		mu.Lock()
		assert.Equal(t, []int{0, 1}, *seen)
		mu.Unlock()
	})
	t.Run("With enqueue behind nothing", func(t *testing.T) {
		buffers := New(NewHardRefHolder())
		assert.False(t, buffers.EnqueueBehind(node, noop))

		buffers.Enqueue(node, noop)
		assert.True(t, buffers.EnqueueBehind(node, noop))
		assert.Equal(t, 2, buffers.Queue(node).Len())

		ran, err := buffers.Flush(node)
		require.NoError(t, err)
		assert.Equal(t, 2, ran)
		assert.False(t, buffers.EnqueueBehind(node, noop))
		ran, err = buffers.Flush("unknown")
		require.NoError(t, err)
		assert.Zero(t, ran)
	})
	t.Run("With discard", func(t *testing.T) {
		buffers := New(nil)
		buffers.Enqueue(node, noop)
		buffers.Enqueue(node, noop)
		assert.Equal(t, 2, buffers.Discard(node))
		assert.True(t, buffers.Queue(node).IsEmpty())
		assert.Empty(t, buffers.Nodes())
	})
}

func TestHardRefHolder(t *testing.T) {
	t.Run("With periodic sweep", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		holder := NewHardRefHolder(WithExpiry(time.Millisecond), WithSweepInterval(5*time.Millisecond))
		buffers := New(holder)
		buffers.Enqueue("node", noop)
		require.Equal(t, 1, holder.Len())

		holder.Start()
		holder.Start()
		require.Eventually(t, func() bool { return holder.Len() == 0 }, time.Second, 5*time.Millisecond)
		holder.Stop()
		holder.Stop()
		assert.Equal(t, time.Millisecond, holder.Expiry())
	})
}
