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

package grid

import (
	"context"
	"sync"
	"time"

	"github.com/tochemey/lattice/address"
	"github.com/tochemey/lattice/control"
	gerrors "github.com/tochemey/lattice/errors"
	"github.com/tochemey/lattice/internal/correlation"
	"github.com/tochemey/lattice/internal/metric"
	"github.com/tochemey/lattice/internal/outbuffer"
	"github.com/tochemey/lattice/internal/ticker"
	"github.com/tochemey/lattice/log"
)

// InboundControl decodes received payloads and dispatches them to the local
// actors or to the pending requests they answer.
//
// A Deliver for an actor the directory cannot resolve yet is held under the
// sending node for the hold window. Held deliveries are retried when that
// node is disbursed, when it starts an actor here and periodically while the
// node runs. A retry that still cannot resolve the actor once the window has
// elapsed answers errors.ErrActorNotFound and drops the delivery.
type InboundControl struct {
	local      address.NodeID
	codec      control.Codec
	directory  Directory
	outbound   *OutboundControl
	requests   *correlation.Table
	held       *outbuffer.OutBuffers
	holdWindow time.Duration
	interval   time.Duration
	clock      func() time.Time
	logger     log.Logger
	metric     *metric.GridMetric

	mu     sync.Mutex
	ticker *ticker.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
}

func newInboundControl(local address.NodeID, codec control.Codec, directory Directory, outbound *OutboundControl,
	requests *correlation.Table, held *outbuffer.OutBuffers, holdWindow, interval time.Duration,
	logger log.Logger, m *metric.GridMetric) *InboundControl {
	return &InboundControl{
		local:      local,
		codec:      codec,
		directory:  directory,
		outbound:   outbound,
		requests:   requests,
		held:       held,
		holdWindow: holdWindow,
		interval:   interval,
		clock:      time.Now,
		logger:     logger,
		metric:     m,
	}
}

// Handle decodes payload and dispatches it. A payload that cannot be decoded
// or is addressed to another node is logged and dropped.
func (i *InboundControl) Handle(ctx context.Context, payload []byte) {
	message, err := i.codec.Decode(payload)
	if err != nil {
		i.logger.Warnf("dropping undecodable control message (%d bytes): %v", len(payload), err)
		i.metric.DecodeFailed(ctx)
		return
	}

	if message.Receiver != i.local {
		i.logger.Warnf("dropping %s message from node=%s addressed to node=%s", message.Kind, message.Sender, message.Receiver)
		i.metric.Dropped(ctx, message.Receiver, 1)
		return
	}
	i.dispatch(ctx, message)
}

// Disburse retries the operations held for node.
func (i *InboundControl) Disburse(ctx context.Context, node address.NodeID) {
	tasks := i.held.Drain(node)
	if len(tasks) == 0 {
		return
	}
	i.logger.Debugf("retrying %d held messages from node=%s", len(tasks), node)
	for _, task := range tasks {
		_ = task()
	}
}

// retryHeld retries the held operations of every node.
func (i *InboundControl) retryHeld(ctx context.Context) {
	for _, node := range i.held.Nodes() {
		i.Disburse(ctx, node)
	}
}

// startRetries retries the held operations every interval until stopRetries
// is called.
func (i *InboundControl) startRetries() {
	i.mu.Lock()
	if i.ticker != nil {
		i.mu.Unlock()
		return
	}
	i.ticker = ticker.New(i.interval)
	i.stopCh = make(chan struct{})
	i.doneCh = make(chan struct{})
	tk, stopCh, doneCh := i.ticker, i.stopCh, i.doneCh
	i.mu.Unlock()

	tk.Start()
	go func() {
		defer close(doneCh)
		for {
			select {
			case <-tk.Ticks:
				i.retryHeld(context.Background())
			case <-stopCh:
				return
			}
		}
	}()
}

func (i *InboundControl) stopRetries() {
	i.mu.Lock()
	if i.ticker == nil {
		i.mu.Unlock()
		return
	}
	tk, stopCh, doneCh := i.ticker, i.stopCh, i.doneCh
	i.ticker = nil
	i.mu.Unlock()

	close(stopCh)
	<-doneCh
	tk.Stop()
}

// Held returns the number of operations held for node.
func (i *InboundControl) Held(node address.NodeID) int {
	return i.held.Queue(node).Len()
}

func (i *InboundControl) discard(ctx context.Context, node address.NodeID) int {
	count := i.held.Discard(node)
	i.metric.Dropped(ctx, node, count)
	return count
}

func (i *InboundControl) dispatch(ctx context.Context, message *control.Message) {
	switch message.Kind {
	case control.KindStart:
		i.start(ctx, message)
	case control.KindDeliver:
		i.deliver(ctx, message, time.Time{})
	case control.KindAnswer:
		i.answer(message.Answer)
	default:
		i.logger.Warnf("dropping control message of unknown kind=%d", message.Kind)
	}
}

func (i *InboundControl) start(ctx context.Context, message *control.Message) {
	start := message.Start
	if _, ok := i.directory.Resolve(start.Receiver); !ok {
		if _, err := i.directory.Create(ctx, start.Receiver, start.Kind, start.Parameters); err != nil {
			i.logger.Errorf("failed to start actor=%s requested by node=%s: %v", start.Receiver, message.Sender, err)
			i.reply(ctx, message, err)
			return
		}
		i.logger.Debugf("started actor=%s requested by node=%s", start.Receiver, message.Sender)
	}

	i.reply(ctx, message, nil)
	// deliveries that raced ahead of this start can now resolve
	i.Disburse(ctx, message.Sender)
}

// deliver hands message to its actor. heldUntil is zero for a delivery that
// was never held.
func (i *InboundControl) deliver(ctx context.Context, message *control.Message, heldUntil time.Time) {
	deliver := message.Deliver
	target, ok := i.directory.Resolve(deliver.Receiver)
	if !ok {
		now := i.clock()
		if heldUntil.IsZero() {
			heldUntil = now.Add(i.holdWindow)
			if heldUntil.After(now) {
				i.logger.Debugf("holding %s for unknown actor=%s from node=%s", deliver.Method, deliver.Receiver, message.Sender)
			}
		}
		if heldUntil.After(now) {
			i.held.Enqueue(message.Sender, func() error {
				i.deliver(context.Background(), message, heldUntil)
				return nil
			})
			return
		}
		i.logger.Warnf("%s not delivered: actor=%s not found", deliver.Method, deliver.Receiver)
		i.metric.Dropped(ctx, i.local, 1)
		i.reply(ctx, message, gerrors.ErrActorNotFound)
		return
	}

	var reply func([]byte, error)
	if message.Correlated() {
		reply = replyFunc(ctx, i.outbound, deliver.CorrelationID, message.Sender)
	}
	target.Deliver(ctx, newInvocation(message.Sender, deliver.Receiver, deliver.Sender, deliver.Method,
		deliver.Parameters, deliver.CorrelationID, reply))
}

func (i *InboundControl) answer(answer *control.Answer) {
	var err error
	if answer.Error != "" {
		err = gerrors.NewRemoteError(answer.Error)
	}
	i.requests.Complete(answer.CorrelationID, answer.Result, err)
}

// reply answers a correlated message; fire-and-forget messages get nothing.
func (i *InboundControl) reply(ctx context.Context, message *control.Message, err error) {
	if !message.Correlated() {
		return
	}
	i.outbound.Answer(context.WithoutCancel(ctx), message.CorrelationID(), message.Sender, nil, err)
}
