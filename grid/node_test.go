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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/goleak"

	"github.com/tochemey/lattice/address"
	"github.com/tochemey/lattice/control"
	gerrors "github.com/tochemey/lattice/errors"
	"github.com/tochemey/lattice/log"
	"github.com/tochemey/lattice/transport/memory"
)

func TestNewNode(t *testing.T) {
	t.Run("With valid configuration", func(t *testing.T) {
		node, err := NewNode("a", newRecordingTransport(), newTestDirectory(),
			WithLogger(log.DiscardLogger),
			WithCodec(control.NewCBORCodec()),
			WithVirtualNodes(32),
			WithRequestTimeout(time.Second),
			WithHardRetention(time.Second),
			WithSweepInterval(100*time.Millisecond),
			WithBufferSoftLimit(100),
			WithHoldWindow(time.Second),
			WithEventQueueSize(8),
			WithMetrics(noop.NewMeterProvider()),
		)
		require.NoError(t, err)
		assert.Equal(t, address.NodeID("a"), node.LocalNode())
		assert.Equal(t, Stopped, node.State())
		assert.Equal(t, QuorumUnknown, node.Quorum())
		_, ok := node.Leader()
		assert.False(t, ok)
	})
	t.Run("With bounded buffering by default", func(t *testing.T) {
		cfg := defaultConfig()
		require.NoError(t, cfg.Validate())
		assert.Equal(t, DefaultBufferSoftLimit, cfg.bufferSoftLimit)
		assert.Equal(t, DefaultHoldWindow, cfg.holdWindow)
	})
	t.Run("With missing collaborators", func(t *testing.T) {
		_, err := NewNode("", newRecordingTransport(), newTestDirectory())
		require.Error(t, err)
		_, err = NewNode("a", nil, newTestDirectory())
		require.Error(t, err)
		_, err = NewNode("a", newRecordingTransport(), nil)
		require.Error(t, err)
	})
	t.Run("With invalid configuration", func(t *testing.T) {
		_, err := NewNode("a", newRecordingTransport(), newTestDirectory(),
			WithVirtualNodes(0),
			WithEventQueueSize(0),
			WithHardRetention(-time.Second),
			WithHoldWindow(-time.Second),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "holdWindow")
		assert.Contains(t, err.Error(), "virtualNodes")
		assert.Contains(t, err.Error(), "eventQueueSize")
		assert.Contains(t, err.Error(), "hardRetention")
	})
}

func TestNodeLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("With start and stop", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		transport := newRecordingTransport()
		node, err := NewNode("a", transport, newTestDirectory(), WithLogger(log.DiscardLogger))
		require.NoError(t, err)

		require.ErrorIs(t, node.Notify(Event{Type: NodeJoined, Node: "b"}), gerrors.ErrGridNotStarted)
		require.ErrorIs(t, node.Stop(ctx), gerrors.ErrGridNotStarted)

		require.NoError(t, node.Start(ctx))
		require.ErrorIs(t, node.Start(ctx), gerrors.ErrGridAlreadyStarted)
		assert.Equal(t, Started, node.State())
		assert.Equal(t, []address.NodeID{"a"}, node.Members())

		owner, err := node.NodeFor(address.New("x", "account"))
		require.NoError(t, err)
		assert.Equal(t, address.NodeID("a"), owner)

		require.NoError(t, node.Stop(ctx))
		assert.Equal(t, Stopped, node.State())
		assert.True(t, transport.closed.Load())
		require.ErrorIs(t, node.Notify(Event{Type: NodeJoined, Node: "b"}), gerrors.ErrGridNotStarted)

		_, err = node.NodeFor(address.New("x", "account"))
		require.ErrorIs(t, err, gerrors.ErrNoOwnerAvailable)
	})
	t.Run("With pending requests failed on stop", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		node := startedNode(t, "a", newRecordingTransport(), newTestDirectory())
		healthy(t, node, "b")
		unhealthy(t, node, "b")

		fut := node.Outbound().Request(ctx, "b", address.New("x", "account"), address.NoSender(), "echo", nil)
		require.NoError(t, node.Stop(ctx))

		_, err := fut.Await(ctx)
		require.ErrorIs(t, err, gerrors.ErrGridStopped)
	})
	t.Run("With routing before start", func(t *testing.T) {
		node, err := NewNode("a", newRecordingTransport(), newTestDirectory(), WithLogger(log.DiscardLogger))
		require.NoError(t, err)
		require.ErrorIs(t, node.Send(ctx, address.New("x", "account"), address.NoSender(), "echo", nil), gerrors.ErrGridNotStarted)
		_, err = node.Ask(ctx, address.New("x", "account"), address.NoSender(), "echo", nil)
		require.ErrorIs(t, err, gerrors.ErrGridNotStarted)
	})
	t.Run("With invalid routing input", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		node := startedNode(t, "a", newRecordingTransport(), newTestDirectory())
		require.Error(t, node.Send(ctx, address.NoSender(), address.NoSender(), "echo", nil))
		_, err := node.Spawn(ctx, address.New("x", "account"), "", nil)
		require.Error(t, err)
		_, err = node.Ask(ctx, address.New("x", "bad kind"), address.NoSender(), "echo", nil)
		require.ErrorIs(t, err, address.ErrInvalidKind)
		require.NoError(t, node.Stop(ctx))
	})
}

func TestNodeEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("With join leaving the ring untouched", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		node := startedNode(t, "a", newRecordingTransport(), newTestDirectory())
		notifyAndWait(t, node, Event{Type: NodeJoined, Node: "b"}, func() bool {
			return len(node.Members()) == 2
		})
		assert.False(t, node.ring.Contains("b"))
		assert.False(t, node.peers.isReachable("b"))
		require.NoError(t, node.Stop(ctx))
	})
	t.Run("With locally observed health ignored", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		recorder := newQuorumRecorder()
		node := startedNode(t, "a", newRecordingTransport(), newTestDirectory(), WithQuorumObserver(recorder))
		require.NoError(t, node.Notify(Event{Type: NodeHealthy, Node: "b", HealthyCluster: false}))
		// a later event proves the first one was handled
		notifyAndWait(t, node, Event{Type: QuorumAchieved}, func() bool { return recorder.achieved.Load() == 1 })
		assert.False(t, node.ring.Contains("b"))
		assert.False(t, node.peers.isReachable("b"))
		require.NoError(t, node.Stop(ctx))
	})
	t.Run("With cluster-confirmed health", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		node := startedNode(t, "a", newRecordingTransport(), newTestDirectory())
		healthy(t, node, "b")
		assert.True(t, node.ring.Contains("b"))
		assert.ElementsMatch(t, []address.NodeID{"a", "b"}, node.Members())
		require.NoError(t, node.Stop(ctx))
	})
	t.Run("With node left", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		transport := newRecordingTransport()
		node := startedNode(t, "a", transport, newTestDirectory())
		healthy(t, node, "b")
		unhealthy(t, node, "b")

		addr := ownedBy(t, node, "b", "account-")
		require.NoError(t, node.Send(ctx, addr, address.NoSender(), "echo", nil))
		assert.Equal(t, 1, node.Outbound().Buffered("b"))

		notifyAndWait(t, node, Event{Type: NodeLeft, Node: "b"}, func() bool {
			return !node.ring.Contains("b")
		})
		assert.Zero(t, node.Outbound().Buffered("b"))
		assert.Equal(t, []address.NodeID{"a"}, node.Members())

		// the departed node's actors now live on the remaining member
		owner, err := node.NodeFor(addr)
		require.NoError(t, err)
		assert.Equal(t, address.NodeID("a"), owner)

		// nothing is buffered for, or sent to, a departed node
		fut := node.Outbound().Request(ctx, "b", addr, address.NoSender(), "echo", nil)
		_, err = fut.Await(ctx)
		require.ErrorIs(t, err, gerrors.ErrNodeDeparted)
		assert.Zero(t, node.Outbound().Buffered("b"))
		assert.Empty(t, transport.sentTo("b"))

		// until it joins again
		notifyAndWait(t, node, Event{Type: NodeJoined, Node: "b"}, func() bool {
			return !node.peers.isDeparted("b")
		})
		require.NoError(t, node.Stop(ctx))
	})
	t.Run("With quorum fan out", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		configured, registered := newQuorumRecorder(), newQuorumRecorder()
		node := startedNode(t, "a", newRecordingTransport(), newTestDirectory(), WithQuorumObserver(configured))
		node.RegisterQuorumObserver(registered)
		node.RegisterQuorumObserver(nil)

		notifyAndWait(t, node, Event{Type: QuorumAchieved}, func() bool {
			return configured.achieved.Load() == 1 && registered.achieved.Load() == 1
		})
		assert.Equal(t, QuorumHeld, node.Quorum())

		notifyAndWait(t, node, Event{Type: QuorumLost}, func() bool {
			return configured.lost.Load() == 1 && registered.lost.Load() == 1
		})
		assert.Equal(t, QuorumMissing, node.Quorum())
		require.NoError(t, node.Stop(ctx))
	})
	t.Run("With leader bookkeeping", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		node := startedNode(t, "a", newRecordingTransport(), newTestDirectory())
		notifyAndWait(t, node, Event{Type: LeaderElected, Node: "b"}, func() bool {
			_, ok := node.Leader()
			return ok
		})
		leader, _ := node.Leader()
		assert.Equal(t, address.NodeID("b"), leader)

		notifyAndWait(t, node, Event{Type: LeaderLost}, func() bool {
			_, ok := node.Leader()
			return !ok
		})
		require.NoError(t, node.Stop(ctx))
	})
	t.Run("With notifier", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		notifier := &channelNotifier{events: make(chan Event, 4)}
		node := startedNode(t, "a", newRecordingTransport(), newTestDirectory(), WithNotifier(notifier))

		notifier.events <- Event{Type: NodeJoined, Node: "b"}
		notifier.events <- Event{Type: NodeHealthy, Node: "b", HealthyCluster: true}
		require.Eventually(t, func() bool { return node.peers.isReachable("b") }, time.Second, 5*time.Millisecond)

		close(notifier.events)
		require.NoError(t, node.Stop(ctx))
	})
	t.Run("With event names", func(t *testing.T) {
		assert.Equal(t, "NodeHealthy(b)", Event{Type: NodeHealthy, Node: "b"}.String())
		assert.Equal(t, "QuorumLost", Event{Type: QuorumLost}.String())
		assert.Equal(t, "EventType(99)", EventType(99).String())
		assert.Equal(t, "Started", Started.String())
		assert.Equal(t, "QuorumUnknown", QuorumUnknown.String())
	})
}

func TestNodeOverMemoryTransport(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	network := memory.NewNetwork(nil)
	directoryA, directoryB := newTestDirectory(), newTestDirectory()
	opts := []Option{
		WithRequestTimeout(5 * time.Second),
		WithHoldWindow(100 * time.Millisecond),
		WithSweepInterval(10 * time.Millisecond),
	}
	nodeA := startedNode(t, "a", network.Transport(), directoryA, opts...)
	nodeB := startedNode(t, "b", network.Transport(), directoryB, opts...)

	healthy(t, nodeA, "b")
	healthy(t, nodeB, "a")

	remote := ownedBy(t, nodeA, "b", "account-")
	owner, err := nodeB.NodeFor(remote)
	require.NoError(t, err)
	require.Equal(t, address.NodeID("b"), owner)

	t.Run("With spawn on the owner node", func(t *testing.T) {
		fut, err := nodeA.Spawn(ctx, remote, "account", nil)
		require.NoError(t, err)
		_, err = fut.AwaitTimeout(time.Second)
		require.NoError(t, err)
		assert.NotNil(t, directoryB.actor(remote))
		assert.Nil(t, directoryA.actor(remote))
	})
	t.Run("With request and answer", func(t *testing.T) {
		fut, err := nodeA.Ask(ctx, remote, address.New("caller", "teller"), "echo", []byte("ping"))
		require.NoError(t, err)
		result, err := fut.AwaitTimeout(time.Second)
		require.NoError(t, err)
		assert.Equal(t, []byte("ping"), result)

		invocations := directoryB.actor(remote).received()
		require.NotEmpty(t, invocations)
		last := invocations[len(invocations)-1]
		assert.Equal(t, address.NodeID("a"), last.SenderNode)
		assert.True(t, last.Sender.Equals(address.New("caller", "teller")))
	})
	t.Run("With remote failure", func(t *testing.T) {
		fut, err := nodeA.Ask(ctx, remote, address.NoSender(), "fail", nil)
		require.NoError(t, err)
		_, err = fut.AwaitTimeout(time.Second)
		require.Error(t, err)
		assert.Equal(t, errFailedMethod.Error(), err.Error())
	})
	t.Run("With unknown actor", func(t *testing.T) {
		missing := ownedBy(t, nodeA, "b", "ghost-")
		fut, err := nodeA.Ask(ctx, missing, address.NoSender(), "echo", nil)
		require.NoError(t, err)
		// node a stays healthy and never disburses: the hold window bounds the wait
		_, err = fut.AwaitTimeout(time.Second)
		require.ErrorIs(t, err, gerrors.ErrActorNotFound)
		assert.Zero(t, nodeB.inbound.Held("a"))
	})
	t.Run("With fire and forget to an unknown actor", func(t *testing.T) {
		missing := ownedBy(t, nodeA, "b", "phantom-")
		for i := 0; i < 100; i++ {
			require.NoError(t, nodeA.Send(ctx, missing, address.NoSender(), "noop", nil))
		}
		require.Eventually(t, func() bool { return nodeB.inbound.Held("a") > 0 }, time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return nodeB.inbound.Held("a") == 0 }, 2*time.Second, 5*time.Millisecond)
		assert.Nil(t, directoryB.actor(missing))
	})
	t.Run("With fire and forget", func(t *testing.T) {
		before := len(directoryB.actor(remote).received())
		require.NoError(t, nodeA.Send(ctx, remote, address.NoSender(), "noop", []byte("x")))
		require.Eventually(t, func() bool {
			return len(directoryB.actor(remote).received()) == before+1
		}, time.Second, 5*time.Millisecond)
	})
	t.Run("With partition buffering until recovery", func(t *testing.T) {
		before := len(directoryB.actor(remote).received())
		network.Partition("a", "b")
		require.NoError(t, nodeA.Send(ctx, remote, address.NoSender(), "noop", []byte("1")))
		require.NoError(t, nodeA.Send(ctx, remote, address.NoSender(), "noop", []byte("2")))
		assert.Equal(t, 2, nodeA.Outbound().Buffered("b"))
		assert.False(t, nodeA.peers.isReachable("b"))

		network.Heal("a", "b")
		healthy(t, nodeA, "b")
		require.Eventually(t, func() bool {
			return len(directoryB.actor(remote).received()) == before+2
		}, time.Second, 5*time.Millisecond)
		invocations := directoryB.actor(remote).received()
		assert.Equal(t, []byte("1"), invocations[before].Parameters)
		assert.Equal(t, []byte("2"), invocations[before+1].Parameters)
	})

	require.NoError(t, nodeA.Stop(ctx))
	require.NoError(t, nodeB.Stop(ctx))
}
