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
	"time"

	"github.com/tochemey/lattice/address"
	"github.com/tochemey/lattice/internal/xsync"
	"github.com/tochemey/lattice/log"
)

// Option configures OutBuffers.
type Option func(*OutBuffers)

// WithSoftLimit sets the total number of buffered tasks above which an
// enqueue triggers Reclaim. Zero means no limit.
func WithSoftLimit(limit int) Option {
	return func(b *OutBuffers) {
		if limit >= 0 {
			b.softLimit = limit
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(b *OutBuffers) {
		b.logger = logger
	}
}

// OutBuffers keeps one Queue of deferred tasks per destination node.
type OutBuffers struct {
	buffers   *xsync.Map[address.NodeID, *Queue]
	holder    *HardRefHolder
	softLimit int
	clock     func() time.Time
	logger    log.Logger
}

// New creates OutBuffers. A nil holder means every task is only weakly retained.
func New(holder *HardRefHolder, opts ...Option) *OutBuffers {
	b := &OutBuffers{
		buffers: xsync.NewMap[address.NodeID, *Queue](),
		holder:  holder,
		clock:   time.Now,
		logger:  log.DiscardLogger,
	}
	if holder != nil {
		b.clock = holder.clock
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enqueue appends task to the queue of node, creating the queue on first use.
// Concurrent first enqueues for the same node share a single queue.
func (b *OutBuffers) Enqueue(node address.NodeID, task Task) {
	queue, _ := b.buffers.GetOrSet(node, newQueue)
	e := newEntry(task, b.clock())
	if b.holder != nil {
		b.holder.holdOnTo(e)
	}
	queue.offer(e)
	b.enforceSoftLimit()
}

// EnqueueBehind appends task to the queue of node only when earlier work for
// node is still buffered or being flushed, and reports whether it did. A false
// return means the caller may run task right away without overtaking anything.
func (b *OutBuffers) EnqueueBehind(node address.NodeID, task Task) bool {
	queue, ok := b.buffers.Get(node)
	if !ok {
		return false
	}
	e := newEntry(task, b.clock())
	if !queue.offerBehind(e) {
		return false
	}
	if b.holder != nil {
		b.holder.holdOnTo(e)
	}
	b.enforceSoftLimit()
	return true
}

func (b *OutBuffers) enforceSoftLimit() {
	if b.softLimit > 0 && b.Len() > b.softLimit {
		if evicted := b.Reclaim(); evicted > 0 {
			b.logger.Warnf("buffered tasks exceeded the soft limit of %d: evicted %d weakly held tasks", b.softLimit, evicted)
		}
	}
}

// Queue returns the queue of node, or a shared empty queue when nothing was
// ever buffered for it. It never allocates.
func (b *OutBuffers) Queue(node address.NodeID) *Queue {
	if queue, ok := b.buffers.Get(node); ok {
		return queue
	}
	return emptyQueue
}

// Drain detaches the buffered tasks of node in FIFO order.
func (b *OutBuffers) Drain(node address.NodeID) []Task {
	queue, ok := b.buffers.Get(node)
	if !ok {
		return nil
	}
	return queue.Drain()
}

// Flush runs the tasks buffered for node in FIFO order until none is left or
// one fails. A failed task stays at the head of the queue with everything
// that was behind it. Flushes of the same node are serialized.
func (b *OutBuffers) Flush(node address.NodeID) (int, error) {
	queue, ok := b.buffers.Get(node)
	if !ok {
		return 0, nil
	}
	return queue.flush()
}

// Reclaim is the memory-pressure path: it evicts every task that is not
// hard-held anymore, across all nodes, and returns how many were evicted.
func (b *OutBuffers) Reclaim() int {
	evicted := 0
	for _, queue := range b.buffers.Values() {
		evicted += queue.Reclaim()
	}
	return evicted
}

// Discard drops all the work buffered for node and returns how many tasks were dropped.
func (b *OutBuffers) Discard(node address.NodeID) int {
	queue, ok := b.buffers.Pop(node)
	if !ok {
		return 0
	}
	return len(queue.Drain())
}

// Len returns the total number of buffered tasks.
func (b *OutBuffers) Len() int {
	total := 0
	for _, queue := range b.buffers.Values() {
		total += queue.Len()
	}
	return total
}

// Nodes returns the nodes that have a non-empty queue.
func (b *OutBuffers) Nodes() []address.NodeID {
	nodes := make([]address.NodeID, 0, b.buffers.Len())
	b.buffers.Range(func(node address.NodeID, queue *Queue) {
		if !queue.IsEmpty() {
			nodes = append(nodes, node)
		}
	})
	return nodes
}

// OldestAge returns how long the oldest task buffered for node has been waiting.
func (b *OutBuffers) OldestAge(node address.NodeID) time.Duration {
	queue, ok := b.buffers.Get(node)
	if !ok {
		return 0
	}
	oldest, ok := queue.oldest()
	if !ok {
		return 0
	}
	return b.clock().Sub(oldest)
}
