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

// Package hashring implements the consistent-hash ring that maps actor
// addresses to the cluster node owning them.
//
// Lookups are lock-free: they load an immutable snapshot published through an
// atomic pointer. Membership changes rebuild the snapshot under a writer lock
// and swap it in one store, so a lookup never observes a partially added or
// removed node.
package hashring

import (
	"slices"
	"strconv"
	"sync"

	"go.uber.org/atomic"

	"github.com/tochemey/lattice/address"
	gerrors "github.com/tochemey/lattice/errors"
	"github.com/tochemey/lattice/hash"
)

// DefaultVirtualNodes is the number of ring positions per node.
const DefaultVirtualNodes = 160

// Option configures a Ring.
type Option func(*Ring)

// WithVirtualNodes sets the number of positions each node occupies on the ring.
func WithVirtualNodes(count int) Option {
	return func(r *Ring) {
		if count > 0 {
			r.virtualNodes = count
		}
	}
}

// WithHasher sets the hash function used for both nodes and keys.
func WithHasher(hasher hash.Hasher) Option {
	return func(r *Ring) {
		if hasher != nil {
			r.hasher = hasher
		}
	}
}

// Ring is a consistent-hash ring of cluster nodes.
type Ring struct {
	mu           sync.Mutex
	snapshot     *atomic.Pointer[snapshot]
	hasher       hash.Hasher
	virtualNodes int
}

type snapshot struct {
	positions []position
	members   []address.NodeID
}

type position struct {
	hash uint64
	node address.NodeID
}

// New creates an empty Ring.
func New(opts ...Option) *Ring {
	r := &Ring{
		snapshot:     atomic.NewPointer(&snapshot{}),
		hasher:       hash.DefaultHasher(),
		virtualNodes: DefaultVirtualNodes,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IncludeNode adds node and its virtual positions. Adding a present node is a no-op.
func (r *Ring) IncludeNode(node address.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.snapshot.Load()
	if _, found := slices.BinarySearch(current.members, node); found {
		return
	}

	members := make([]address.NodeID, len(current.members), len(current.members)+1)
	copy(members, current.members)
	members = append(members, node)
	slices.Sort(members)

	positions := make([]position, len(current.positions), len(current.positions)+r.virtualNodes)
	copy(positions, current.positions)
	positions = append(positions, r.positionsOf(node)...)
	sortPositions(positions)

	r.snapshot.Store(&snapshot{positions: positions, members: members})
}

// ExcludeNode removes node and all its positions. Removing an absent node is a no-op.
func (r *Ring) ExcludeNode(node address.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.snapshot.Load()
	if _, found := slices.BinarySearch(current.members, node); !found {
		return
	}

	members := make([]address.NodeID, 0, len(current.members)-1)
	for _, member := range current.members {
		if member != node {
			members = append(members, member)
		}
	}

	positions := make([]position, 0, len(current.positions))
	for _, p := range current.positions {
		if p.node != node {
			positions = append(positions, p)
		}
	}

	r.snapshot.Store(&snapshot{positions: positions, members: members})
}

// NodeFor returns the node owning addr under the current membership.
// It returns errors.ErrNoOwnerAvailable when the ring is empty.
func (r *Ring) NodeFor(addr address.Address) (address.NodeID, error) {
	return r.NodeForKey(addr.Key())
}

// NodeForKey returns the node owning an arbitrary key.
func (r *Ring) NodeForKey(key []byte) (address.NodeID, error) {
	current := r.snapshot.Load()
	if len(current.positions) == 0 {
		return "", gerrors.ErrNoOwnerAvailable
	}

	h := r.hasher.HashCode(key)
	idx, _ := slices.BinarySearchFunc(current.positions, h, func(p position, target uint64) int {
		switch {
		case p.hash < target:
			return -1
		case p.hash > target:
			return 1
		default:
			return 0
		}
	})
	if idx >= len(current.positions) {
		idx = 0
	}
	return current.positions[idx].node, nil
}

// Contains reports whether node is on the ring.
func (r *Ring) Contains(node address.NodeID) bool {
	_, found := slices.BinarySearch(r.snapshot.Load().members, node)
	return found
}

// Members returns the nodes on the ring, sorted.
func (r *Ring) Members() []address.NodeID {
	return slices.Clone(r.snapshot.Load().members)
}

// Size returns the number of nodes on the ring.
func (r *Ring) Size() int {
	return len(r.snapshot.Load().members)
}

func (r *Ring) positionsOf(node address.NodeID) []position {
	positions := make([]position, 0, r.virtualNodes)
	key := make([]byte, 0, len(node)+8)
	for i := 0; i < r.virtualNodes; i++ {
		key = append(key[:0], string(node)...)
		key = append(key, '#')
		key = strconv.AppendInt(key, int64(i), 10)
		positions = append(positions, position{hash: r.hasher.HashCode(key), node: node})
	}
	return positions
}

// sortPositions orders by hash, breaking collisions by node id so the ring
// does not depend on the order nodes were added in.
func sortPositions(positions []position) {
	slices.SortFunc(positions, func(a, b position) int {
		switch {
		case a.hash < b.hash:
			return -1
		case a.hash > b.hash:
			return 1
		case a.node < b.node:
			return -1
		case a.node > b.node:
			return 1
		default:
			return 0
		}
	})
}
