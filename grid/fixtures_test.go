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
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/tochemey/lattice/address"
	"github.com/tochemey/lattice/control"
	"github.com/tochemey/lattice/log"
)

var errFailedMethod = errors.New("method failed")

type sentPayload struct {
	to      address.NodeID
	payload []byte
}

// recordingTransport records every payload it is asked to send.
type recordingTransport struct {
	mu         sync.Mutex
	sent       []sentPayload
	receive    func(ctx context.Context, payload []byte)
	beforeSend func(to address.NodeID)
	fail       *atomic.Bool
	failures   *atomic.Int32
	closed     *atomic.Bool
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{
		fail:     atomic.NewBool(false),
		failures: atomic.NewInt32(0),
		closed:   atomic.NewBool(false),
	}
}

// failNext makes the next count sends fail.
func (x *recordingTransport) failNext(count int32) {
	x.failures.Store(count)
}

// onSend runs hook at the start of every send, outside of the recorder lock.
func (x *recordingTransport) onSend(hook func(to address.NodeID)) {
	x.mu.Lock()
	x.beforeSend = hook
	x.mu.Unlock()
}

func (x *recordingTransport) shouldFail() bool {
	if x.fail.Load() {
		return true
	}
	for {
		remaining := x.failures.Load()
		if remaining <= 0 {
			return false
		}
		if x.failures.CompareAndSwap(remaining, remaining-1) {
			return true
		}
	}
}

func (x *recordingTransport) Bind(_ context.Context, _ address.NodeID, receive func(ctx context.Context, payload []byte)) error {
	x.mu.Lock()
	x.receive = receive
	x.mu.Unlock()
	return nil
}

func (x *recordingTransport) Send(_ context.Context, to address.NodeID, payload []byte) error {
	x.mu.Lock()
	hook := x.beforeSend
	x.mu.Unlock()
	if hook != nil {
		hook(to)
	}
	if x.shouldFail() {
		return errors.New("connection refused")
	}
	x.mu.Lock()
	x.sent = append(x.sent, sentPayload{to: to, payload: payload})
	x.mu.Unlock()
	return nil
}

func (x *recordingTransport) Close(context.Context) error {
	x.closed.Store(true)
	return nil
}

// methodsTo returns the methods of the deliveries sent to node, in send order.
func (x *recordingTransport) methodsTo(t *testing.T, node address.NodeID) []string {
	var methods []string
	for _, sent := range x.sentTo(node) {
		if message := decode(t, sent.payload); message.Kind == control.KindDeliver {
			methods = append(methods, message.Deliver.Method)
		}
	}
	return methods
}

func (x *recordingTransport) sentTo(node address.NodeID) []sentPayload {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []sentPayload
	for _, sent := range x.sent {
		if sent.to == node {
			out = append(out, sent)
		}
	}
	return out
}

// testActor records its invocations. The "echo" method replies with its
// parameters and the "fail" method replies with errFailedMethod.
type testActor struct {
	mu          sync.Mutex
	invocations []*Invocation
}

func (x *testActor) Deliver(_ context.Context, invocation *Invocation) {
	x.mu.Lock()
	x.invocations = append(x.invocations, invocation)
	x.mu.Unlock()

	switch invocation.Method {
	case "echo":
		invocation.Reply(invocation.Parameters, nil)
	case "fail":
		invocation.Reply(nil, errFailedMethod)
	}
}

func (x *testActor) received() []*Invocation {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]*Invocation(nil), x.invocations...)
}

type testDirectory struct {
	mu      sync.Mutex
	actors  map[string]*testActor
	created *atomic.Int32
}

func newTestDirectory() *testDirectory {
	return &testDirectory{actors: make(map[string]*testActor), created: atomic.NewInt32(0)}
}

func (x *testDirectory) Resolve(addr address.Address) (Deliverable, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	actor, ok := x.actors[addr.String()]
	return actor, ok
}

func (x *testDirectory) Create(_ context.Context, addr address.Address, kind string, _ []byte) (Deliverable, error) {
	if kind == "broken" {
		return nil, errors.New("cannot create a broken actor")
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	actor, ok := x.actors[addr.String()]
	if !ok {
		actor = new(testActor)
		x.actors[addr.String()] = actor
		x.created.Inc()
	}
	return actor, nil
}

func (x *testDirectory) actor(addr address.Address) *testActor {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.actors[addr.String()]
}

type quorumRecorder struct {
	achieved *atomic.Int32
	lost     *atomic.Int32
}

func newQuorumRecorder() *quorumRecorder {
	return &quorumRecorder{achieved: atomic.NewInt32(0), lost: atomic.NewInt32(0)}
}

func (x *quorumRecorder) QuorumAchieved() { x.achieved.Inc() }
func (x *quorumRecorder) QuorumLost()     { x.lost.Inc() }

type channelNotifier struct {
	events chan Event
}

func (x *channelNotifier) Events() <-chan Event {
	return x.events
}

func startedNode(t *testing.T, local address.NodeID, transport Transport, directory Directory, opts ...Option) *Node {
	t.Helper()
	opts = append([]Option{WithLogger(log.DiscardLogger)}, opts...)
	node, err := NewNode(local, transport, directory, opts...)
	require.NoError(t, err)
	require.NoError(t, node.Start(context.Background()))
	return node
}

func notifyAndWait(t *testing.T, node *Node, event Event, condition func() bool) {
	t.Helper()
	require.NoError(t, node.Notify(event))
	require.Eventually(t, condition, time.Second, 5*time.Millisecond)
}

func healthy(t *testing.T, node *Node, peer address.NodeID) {
	t.Helper()
	notifyAndWait(t, node, Event{Type: NodeHealthy, Node: peer, HealthyCluster: true}, func() bool {
		return node.peers.isReachable(peer)
	})
}

func unhealthy(t *testing.T, node *Node, peer address.NodeID) {
	t.Helper()
	notifyAndWait(t, node, Event{Type: NodeUnhealthy, Node: peer}, func() bool {
		return !node.peers.isReachable(peer)
	})
}

// ownedBy returns an address, with an id starting with prefix, that the ring
// of node places on owner.
func ownedBy(t *testing.T, node *Node, owner address.NodeID, prefix string) address.Address {
	t.Helper()
	for i := 0; i < 10_000; i++ {
		addr := address.New(prefix+strconv.Itoa(i), "account")
		if got, err := node.NodeFor(addr); err == nil && got == owner {
			return addr
		}
	}
	t.Fatalf("no address owned by %s", owner)
	return address.Address{}
}

func decode(t *testing.T, payload []byte) *control.Message {
	t.Helper()
	message, err := control.DefaultCodec().Decode(payload)
	require.NoError(t, err)
	return message
}

func encode(t *testing.T, message *control.Message) []byte {
	t.Helper()
	payload, err := control.DefaultCodec().Encode(message)
	require.NoError(t, err)
	return payload
}
