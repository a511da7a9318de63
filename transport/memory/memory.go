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

// Package memory provides an in-process transport connecting grid nodes that
// live in the same process. It is meant for tests and demos.
//
// Every node binds to a shared Network. Payloads are delivered asynchronously,
// in send order per destination. Links can be cut and restored to simulate
// network partitions.
package memory

import (
	"context"
	"fmt"
	"sync"

	gods "github.com/Workiva/go-datastructures/queue"
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/atomic"

	"github.com/tochemey/lattice/address"
	gerrors "github.com/tochemey/lattice/errors"
	"github.com/tochemey/lattice/log"
)

// Network is the medium shared by the in-process transports.
type Network struct {
	mu        sync.RWMutex
	endpoints map[address.NodeID]*endpoint
	cut       mapset.Set[link]
	logger    log.Logger
}

type link struct {
	from address.NodeID
	to   address.NodeID
}

type endpoint struct {
	node    address.NodeID
	inbox   *gods.Queue
	receive func(ctx context.Context, payload []byte)
	done    chan struct{}
}

// NewNetwork creates an empty Network.
func NewNetwork(logger log.Logger) *Network {
	if logger == nil {
		logger = log.DiscardLogger
	}
	return &Network{
		endpoints: make(map[address.NodeID]*endpoint),
		cut:       mapset.NewSet[link](),
		logger:    logger,
	}
}

// Transport returns a new transport attached to the network.
func (n *Network) Transport() *Transport {
	return &Transport{network: n, closed: atomic.NewBool(false)}
}

// Partition cuts the links between a and b in both directions.
func (n *Network) Partition(a, b address.NodeID) {
	n.cut.Add(link{from: a, to: b})
	n.cut.Add(link{from: b, to: a})
	n.logger.Debugf("partitioned %s <-> %s", a, b)
}

// Heal restores the links between a and b.
func (n *Network) Heal(a, b address.NodeID) {
	n.cut.Remove(link{from: a, to: b})
	n.cut.Remove(link{from: b, to: a})
	n.logger.Debugf("healed %s <-> %s", a, b)
}

// Nodes returns the nodes currently bound to the network.
func (n *Network) Nodes() []address.NodeID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	nodes := make([]address.NodeID, 0, len(n.endpoints))
	for node := range n.endpoints {
		nodes = append(nodes, node)
	}
	return nodes
}

func (n *Network) bind(ep *endpoint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.endpoints[ep.node]; ok {
		return fmt.Errorf("node=%s is already bound", ep.node)
	}
	n.endpoints[ep.node] = ep
	return nil
}

func (n *Network) unbind(node address.NodeID) *endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	ep, ok := n.endpoints[node]
	if !ok {
		return nil
	}
	delete(n.endpoints, node)
	return ep
}

func (n *Network) route(from, to address.NodeID) (*endpoint, error) {
	if n.cut.Contains(link{from: from, to: to}) {
		return nil, fmt.Errorf("%w: link %s -> %s is cut", gerrors.ErrUnreachable, from, to)
	}
	n.mu.RLock()
	ep, ok := n.endpoints[to]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: node=%s is not bound", gerrors.ErrUnreachable, to)
	}
	return ep, nil
}

// Transport is an in-process grid transport.
type Transport struct {
	network *Network
	mu      sync.RWMutex
	local   address.NodeID
	closed  *atomic.Bool
}

// Bind attaches the transport to the network under local.
func (t *Transport) Bind(_ context.Context, local address.NodeID, receive func(ctx context.Context, payload []byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.local.IsZero() {
		return fmt.Errorf("transport already bound to node=%s", t.local)
	}

	ep := &endpoint{
		node:    local,
		inbox:   gods.New(64),
		receive: receive,
		done:    make(chan struct{}),
	}
	if err := t.network.bind(ep); err != nil {
		return err
	}

	t.local = local
	t.closed.Store(false)
	go ep.run()
	return nil
}

// Send queues payload for delivery to the given node.
func (t *Transport) Send(_ context.Context, to address.NodeID, payload []byte) error {
	if t.closed.Load() {
		return gerrors.ErrTransportClosed
	}
	t.mu.RLock()
	from := t.local
	t.mu.RUnlock()
	if from.IsZero() {
		return gerrors.ErrTransportNotBound
	}

	ep, err := t.network.route(from, to)
	if err != nil {
		return err
	}
	if err := ep.inbox.Put(append([]byte(nil), payload...)); err != nil {
		return fmt.Errorf("%w: node=%s is shutting down", gerrors.ErrUnreachable, to)
	}
	return nil
}

// Close detaches the transport from the network. Payloads not yet delivered
// are dropped. The transport can be bound again afterwards.
func (t *Transport) Close(context.Context) error {
	t.mu.Lock()
	if t.closed.Swap(true) || t.local.IsZero() {
		t.mu.Unlock()
		return nil
	}
	local := t.local
	t.local = ""
	t.mu.Unlock()

	if ep := t.network.unbind(local); ep != nil {
		ep.inbox.Dispose()
		<-ep.done
	}
	return nil
}

func (ep *endpoint) run() {
	defer close(ep.done)
	ctx := context.Background()
	for {
		items, err := ep.inbox.Get(1)
		if err != nil {
			return
		}
		for _, item := range items {
			if payload, ok := item.([]byte); ok {
				ep.receive(ctx, payload)
			}
		}
	}
}
