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
)

// ApplicationMessageHandler is the single entry point of the transport into
// the grid, and the single trigger that flushes what was held for a node.
type ApplicationMessageHandler struct {
	inbound  *InboundControl
	outbound *OutboundControl
}

func newApplicationMessageHandler(inbound *InboundControl, outbound *OutboundControl) *ApplicationMessageHandler {
	return &ApplicationMessageHandler{inbound: inbound, outbound: outbound}
}

// Handle processes a payload received from the transport.
func (h *ApplicationMessageHandler) Handle(ctx context.Context, payload []byte) {
	h.inbound.Handle(ctx, payload)
}

// Disburse flushes the outbound sends buffered for node, then retries the
// inbound operations held for it.
func (h *ApplicationMessageHandler) Disburse(ctx context.Context, node address.NodeID) {
	h.outbound.Disburse(ctx, node)
	h.inbound.Disburse(ctx, node)
}
