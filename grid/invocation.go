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

	"go.uber.org/atomic"

	"github.com/tochemey/lattice/address"
)

// Invocation is a method call delivered to a local actor.
type Invocation struct {
	// Receiver is the actor being invoked.
	Receiver address.Address
	// Sender is the calling actor; zero when the call has no sender.
	Sender address.Address
	// Method is the protocol method to invoke.
	Method string
	// Parameters are the serialized arguments.
	Parameters []byte
	// SenderNode is the node the call came from.
	SenderNode address.NodeID

	correlationID string
	reply         func(result []byte, err error)
	replied       *atomic.Bool
}

func newInvocation(senderNode address.NodeID, receiver, sender address.Address, method string, params []byte,
	correlationID string, reply func(result []byte, err error)) *Invocation {
	return &Invocation{
		Receiver:      receiver,
		Sender:        sender,
		Method:        method,
		Parameters:    params,
		SenderNode:    senderNode,
		correlationID: correlationID,
		reply:         reply,
		replied:       atomic.NewBool(false),
	}
}

// NewInvocation creates a fire-and-forget Invocation. It is meant for
// Deliverable implementations that invoke each other locally and for tests.
func NewInvocation(receiver, sender address.Address, method string, params []byte) *Invocation {
	return newInvocation("", receiver, sender, method, params, "", nil)
}

// ExpectsReply reports whether the caller is waiting for Reply.
func (x *Invocation) ExpectsReply() bool {
	return x.correlationID != ""
}

// Reply sends the outcome of the call back to the caller. Only the first
// call has an effect, and none when the caller does not expect a reply.
func (x *Invocation) Reply(result []byte, err error) {
	if !x.replied.CompareAndSwap(false, true) {
		return
	}
	if x.reply != nil && x.ExpectsReply() {
		x.reply(result, err)
	}
}

// replyFunc answers correlationID on node using ctx stripped of its cancellation,
// since replies usually happen after the inbound handler has returned.
func replyFunc(ctx context.Context, outbound *OutboundControl, correlationID string, node address.NodeID) func([]byte, error) {
	replyCtx := context.WithoutCancel(ctx)
	return func(result []byte, err error) {
		outbound.Answer(replyCtx, correlationID, node, result, err)
	}
}
