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

// Package grid coordinates virtual actors across the nodes of a cluster.
//
// Every actor address is owned by exactly one node, chosen by a consistent
// hash ring over the healthy members. A Node routes Start, Deliver and Answer
// control messages to the owner, buffers them while the owner is unreachable
// and flushes the buffers once the cluster reports the owner healthy again.
//
// The transport, the cluster membership and the local actor directory are
// collaborators supplied by the caller; see Transport, Notifier and Directory.
package grid

import (
	"context"

	"github.com/tochemey/lattice/address"
)

// Transport moves opaque payloads between nodes.
type Transport interface {
	// Bind starts delivering the payloads addressed to local to receive.
	Bind(ctx context.Context, local address.NodeID, receive func(ctx context.Context, payload []byte)) error
	// Send hands payload over for delivery to the given node. It must not
	// block on network I/O. An error means the node could not be reached.
	Send(ctx context.Context, to address.NodeID, payload []byte) error
	// Close releases the transport.
	Close(ctx context.Context) error
}

// Deliverable is a local actor able to receive invocations.
type Deliverable interface {
	Deliver(ctx context.Context, invocation *Invocation)
}

// Directory resolves and creates the actors hosted by the local node.
type Directory interface {
	// Resolve returns the live actor at addr, if any.
	Resolve(addr address.Address) (Deliverable, bool)
	// Create instantiates the actor at addr from its type descriptor.
	Create(ctx context.Context, addr address.Address, kind string, params []byte) (Deliverable, error)
}

// Notifier is a source of cluster events.
// The channel is consumed until it is closed or the node stops.
type Notifier interface {
	Events() <-chan Event
}

// QuorumObserver is told when the cluster gains or loses quorum.
type QuorumObserver interface {
	QuorumAchieved()
	QuorumLost()
}
