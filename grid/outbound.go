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

	"github.com/tochemey/lattice/address"
	"github.com/tochemey/lattice/control"
	gerrors "github.com/tochemey/lattice/errors"
	"github.com/tochemey/lattice/future"
	"github.com/tochemey/lattice/internal/correlation"
	"github.com/tochemey/lattice/internal/metric"
	"github.com/tochemey/lattice/internal/outbuffer"
	"github.com/tochemey/lattice/log"
)

// OutboundControl builds control messages and hands them to the transport.
//
// A message for a reachable node is encoded and sent right away. A message
// for an unreachable node, or one whose send fails, is buffered until the
// node is disbursed. While buffered messages remain, new messages for the node
// queue behind them. Messages for the local node never touch the transport
// and messages for a node that left the cluster are dropped.
//
// No method blocks on network I/O.
type OutboundControl struct {
	local     address.NodeID
	codec     control.Codec
	transport Transport
	requests  *correlation.Table
	buffers   *outbuffer.OutBuffers
	peers     *peers
	loopback  func(ctx context.Context, message *control.Message)
	logger    log.Logger
	metric    *metric.GridMetric
}

func newOutboundControl(local address.NodeID, codec control.Codec, transport Transport, requests *correlation.Table,
	buffers *outbuffer.OutBuffers, peers *peers, logger log.Logger, m *metric.GridMetric) *OutboundControl {
	return &OutboundControl{
		local:     local,
		codec:     codec,
		transport: transport,
		requests:  requests,
		buffers:   buffers,
		peers:     peers,
		logger:    logger,
		metric:    m,
	}
}

// Start asks node to create the actor at addr from the kind type descriptor.
func (o *OutboundControl) Start(ctx context.Context, node address.NodeID, addr address.Address, kind string, params []byte) {
	o.dispatch(ctx, control.NewStart(node, o.local, &control.Start{
		Receiver:   addr,
		Kind:       kind,
		Parameters: params,
	}))
}

// RequestStart is a Start whose future completes once the actor exists on node.
func (o *OutboundControl) RequestStart(ctx context.Context, node address.NodeID, addr address.Address, kind string, params []byte) future.Future {
	id, fut := o.requests.NewRequest()
	o.dispatch(ctx, control.NewStart(node, o.local, &control.Start{
		Receiver:      addr,
		Kind:          kind,
		Parameters:    params,
		CorrelationID: id,
	}))
	return fut
}

// Deliver sends a method invocation to the actor at receiver hosted by node.
func (o *OutboundControl) Deliver(ctx context.Context, node address.NodeID, receiver, sender address.Address, method string, params []byte) {
	o.dispatch(ctx, control.NewDeliver(node, o.local, &control.Deliver{
		Receiver:   receiver,
		Sender:     sender,
		Method:     method,
		Parameters: params,
	}))
}

// Request is a Deliver whose future completes with the actor's reply.
// It returns immediately.
func (o *OutboundControl) Request(ctx context.Context, node address.NodeID, receiver, sender address.Address, method string, params []byte) future.Future {
	id, fut := o.requests.NewRequest()
	o.dispatch(ctx, control.NewDeliver(node, o.local, &control.Deliver{
		Receiver:      receiver,
		Sender:        sender,
		Method:        method,
		Parameters:    params,
		CorrelationID: id,
	}))
	return fut
}

// Answer sends the outcome of a correlated request back to the requesting node.
func (o *OutboundControl) Answer(ctx context.Context, correlationID string, node address.NodeID, result []byte, err error) {
	answer := &control.Answer{CorrelationID: correlationID, Result: result}
	if err != nil {
		answer.Result = nil
		answer.Error = err.Error()
	}
	o.dispatch(ctx, control.NewAnswer(node, o.local, answer))
}

// Disburse sends, in enqueue order, the messages buffered for node, including
// the ones buffered while it runs. It stops at the first send that fails and
// keeps that message and every message behind it buffered, in order, for the
// next call.
func (o *OutboundControl) Disburse(ctx context.Context, node address.NodeID) {
	sent, err := o.buffers.Flush(node)
	if err != nil {
		o.logger.Debugf("disbursed %d buffered messages to node=%s before a send failed: %v", sent, node, err)
	} else if sent > 0 {
		o.logger.Debugf("disbursed %d buffered messages to node=%s", sent, node)
	}
	if sent > 0 {
		o.metric.Disbursed(ctx, node, sent)
	}
}

// Buffered returns the number of sends waiting for node.
func (o *OutboundControl) Buffered(node address.NodeID) int {
	return o.buffers.Queue(node).Len()
}

func (o *OutboundControl) discard(ctx context.Context, node address.NodeID) int {
	count := o.buffers.Discard(node)
	o.metric.Dropped(ctx, node, count)
	return count
}

func (o *OutboundControl) dispatch(ctx context.Context, message *control.Message) {
	node := message.Receiver
	if node == o.local && o.loopback != nil {
		if err := message.Validate(); err != nil {
			o.logger.Errorf("invalid local %s message: %v", message.Kind, err)
			o.drop(ctx, message, err)
			return
		}
		o.loopback(ctx, message)
		return
	}

	if o.peers.isDeparted(node) {
		o.logger.Warnf("%s message not delivered: node=%s has left the cluster", message.Kind, node)
		o.drop(ctx, message, gerrors.ErrNodeDeparted)
		return
	}

	payload, err := o.codec.Encode(message)
	if err != nil {
		o.logger.Errorf("failed to encode %s message for node=%s: %v", message.Kind, node, err)
		o.drop(ctx, message, err)
		return
	}

	if !o.peers.isReachable(node) {
		o.buffer(ctx, message, payload)
		return
	}

	// a reachable node may still have buffered messages being disbursed
	if o.buffers.EnqueueBehind(node, o.sendTask(message, payload)) {
		o.metric.Buffered(ctx, node)
		return
	}

	if err := o.transport.Send(ctx, node, payload); err != nil {
		o.unreachable(node, err)
		o.buffer(ctx, message, payload)
		return
	}
	o.metric.Sent(ctx, node)
}

func (o *OutboundControl) buffer(ctx context.Context, message *control.Message, payload []byte) {
	o.buffers.Enqueue(message.Receiver, o.sendTask(message, payload))
	o.metric.Buffered(ctx, message.Receiver)
}

// sendTask fails while the node still cannot be reached, which keeps it
// buffered.
func (o *OutboundControl) sendTask(message *control.Message, payload []byte) outbuffer.Task {
	return func() error {
		ctx := context.Background()
		node := message.Receiver
		if o.peers.isDeparted(node) {
			o.drop(ctx, message, gerrors.ErrNodeDeparted)
			return nil
		}

		if err := o.transport.Send(ctx, node, payload); err != nil {
			o.unreachable(node, err)
			return err
		}
		o.metric.Sent(ctx, node)
		return nil
	}
}

func (o *OutboundControl) unreachable(node address.NodeID, err error) {
	if o.peers.markUnreachable(node) {
		o.logger.Warnf("node=%s is unreachable, buffering messages: %v", node, err)
	}
}

// drop fails the pending request of a correlated message that cannot be sent.
func (o *OutboundControl) drop(ctx context.Context, message *control.Message, err error) {
	o.metric.Dropped(ctx, message.Receiver, 1)
	if message.Correlated() {
		o.requests.Complete(message.CorrelationID(), nil, err)
	}
}
