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
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tochemey/lattice/address"
)

// peers is the node's view of which nodes can be sent to directly.
// A node is unreachable until the cluster confirms its health, and
// departed once it has left, until it joins again.
type peers struct {
	reachable mapset.Set[address.NodeID]
	departed  mapset.Set[address.NodeID]
}

func newPeers() *peers {
	return &peers{
		reachable: mapset.NewSet[address.NodeID](),
		departed:  mapset.NewSet[address.NodeID](),
	}
}

func (p *peers) isReachable(node address.NodeID) bool {
	return p.reachable.Contains(node)
}

func (p *peers) isDeparted(node address.NodeID) bool {
	return p.departed.Contains(node)
}

func (p *peers) markReachable(node address.NodeID) {
	p.departed.Remove(node)
	p.reachable.Add(node)
}

// markUnreachable reports whether node was reachable.
func (p *peers) markUnreachable(node address.NodeID) bool {
	if !p.reachable.Contains(node) {
		return false
	}
	p.reachable.Remove(node)
	return true
}

func (p *peers) markDeparted(node address.NodeID) {
	p.reachable.Remove(node)
	p.departed.Add(node)
}

func (p *peers) rejoined(node address.NodeID) {
	p.departed.Remove(node)
}

func (p *peers) reset() {
	p.reachable.Clear()
	p.departed.Clear()
}
