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
	"fmt"
	"sort"
	"sync"
	"time"

	gods "github.com/Workiva/go-datastructures/queue"
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/lattice/address"
	gerrors "github.com/tochemey/lattice/errors"
	"github.com/tochemey/lattice/future"
	"github.com/tochemey/lattice/internal/correlation"
	"github.com/tochemey/lattice/internal/hashring"
	"github.com/tochemey/lattice/internal/metric"
	"github.com/tochemey/lattice/internal/outbuffer"
	"github.com/tochemey/lattice/log"
)

// State is the lifecycle state of a Node.
type State int32

const (
	Stopped State = iota
	Started
)

func (s State) String() string {
	if s == Started {
		return "Started"
	}
	return "Stopped"
}

// Quorum is the last quorum state reported by the cluster.
type Quorum int32

const (
	QuorumUnknown Quorum = iota
	QuorumHeld
	QuorumMissing
)

func (q Quorum) String() string {
	switch q {
	case QuorumHeld:
		return "QuorumAchieved"
	case QuorumMissing:
		return "QuorumLost"
	default:
		return "QuorumUnknown"
	}
}

// Node is the grid running on one cluster member.
//
// It owns the hash ring, the request table and the buffers, and consumes
// cluster events one at a time on a single goroutine:
//
//   - NodeJoined records the member; the ring is left untouched.
//   - NodeHealthy with a cluster-confirmed health adds the node to the ring,
//     flushes what was buffered for it, marks it reachable and flushes again.
//   - NodeUnhealthy marks the node unreachable; sends to it are buffered.
//   - NodeLeft removes the node from the ring and drops what was buffered for it.
//   - QuorumAchieved and QuorumLost are fanned out to the quorum observers.
//   - LeaderElected and LeaderLost are recorded.
type Node struct {
	local     address.NodeID
	transport Transport
	directory Directory
	config    *config
	logger    log.Logger
	metric    *metric.GridMetric

	ring       *hashring.Ring
	requests   *correlation.Table
	holder     *outbuffer.HardRefHolder
	peers      *peers
	outbound   *OutboundControl
	inbound    *InboundControl
	handler    *ApplicationMessageHandler
	members    mapset.Set[address.NodeID]
	observers  []QuorumObserver
	observerMu sync.RWMutex

	mu           sync.Mutex
	state        *atomic.Int32
	quorum       *atomic.Int32
	leader       *atomic.String
	events       atomic.Pointer[gods.RingBuffer]
	loopDone     chan struct{}
	stopNotifier chan struct{}
	notifierDone chan struct{}
}

// NewNode creates the grid of the local node. The transport carries control
// messages to the other nodes and the directory hosts the local actors.
func NewNode(local address.NodeID, transport Transport, directory Directory, opts ...Option) (*Node, error) {
	if local.IsZero() {
		return nil, errors.New("the [local] node id is required")
	}
	if transport == nil {
		return nil, errors.New("the [transport] is required")
	}
	if directory == nil {
		return nil, errors.New("the [directory] is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt.Apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid configuration: %w", err)
	}

	var gridMetric *metric.GridMetric
	if cfg.metricsEnabled {
		var err error
		if gridMetric, err = metric.NewGridMetric(metric.NewProvider(cfg.meterProvider).Meter()); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger.Named("grid").With("node", local.String())
	requests := correlation.New(
		correlation.WithTimeout(cfg.requestTimeout),
		correlation.WithLogger(logger.Named("requests")),
		correlation.WithMetric(gridMetric),
	)
	holder := outbuffer.NewHardRefHolder(
		outbuffer.WithExpiry(cfg.hardRetention),
		outbuffer.WithSweepInterval(cfg.sweepInterval),
		outbuffer.WithHolderLogger(logger.Named("holder")),
	)
	outBuffers := outbuffer.New(holder, outbuffer.WithSoftLimit(cfg.bufferSoftLimit), outbuffer.WithLogger(logger.Named("outbuffers")))
	heldBuffers := outbuffer.New(holder, outbuffer.WithSoftLimit(cfg.bufferSoftLimit), outbuffer.WithLogger(logger.Named("held")))
	peers := newPeers()

	outbound := newOutboundControl(local, cfg.codec, transport, requests, outBuffers, peers, logger.Named("outbound"), gridMetric)
	inbound := newInboundControl(local, cfg.codec, directory, outbound, requests, heldBuffers,
		cfg.holdWindow, cfg.sweepInterval, logger.Named("inbound"), gridMetric)
	outbound.loopback = inbound.dispatch

	return &Node{
		local:     local,
		transport: transport,
		directory: directory,
		config:    cfg,
		logger:    logger,
		metric:    gridMetric,
		ring:      hashring.New(hashring.WithVirtualNodes(cfg.virtualNodes), hashring.WithHasher(cfg.hasher)),
		requests:  requests,
		holder:    holder,
		peers:     peers,
		outbound:  outbound,
		inbound:   inbound,
		handler:   newApplicationMessageHandler(inbound, outbound),
		members:   mapset.NewSet[address.NodeID](),
		observers: append([]QuorumObserver(nil), cfg.observers...),
		state:     atomic.NewInt32(int32(Stopped)),
		quorum:    atomic.NewInt32(int32(QuorumUnknown)),
		leader:    atomic.NewString(""),
	}, nil
}

// Start makes the local node addressable, binds the transport and starts
// consuming cluster events.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.State() == Started {
		return gerrors.ErrGridAlreadyStarted
	}

	n.ring.IncludeNode(n.local)
	n.peers.markReachable(n.local)
	n.members.Add(n.local)

	if err := n.transport.Bind(ctx, n.local, n.handler.Handle); err != nil {
		n.ring.ExcludeNode(n.local)
		n.peers.reset()
		n.members.Clear()
		return fmt.Errorf("failed to bind the transport: %w", err)
	}

	n.holder.Start()
	n.inbound.startRetries()

	events := gods.NewRingBuffer(uint64(n.config.eventQueueSize))
	n.events.Store(events)
	n.loopDone = make(chan struct{})
	go n.eventLoop(events, n.loopDone)

	n.stopNotifier = make(chan struct{})
	n.notifierDone = make(chan struct{})
	go n.forwardNotifications(n.stopNotifier, n.notifierDone)

	n.state.Store(int32(Started))
	n.logger.Infof("grid node=%s started", n.local)
	return nil
}

// Stop stops consuming cluster events, closes the transport and fails every
// pending request with errors.ErrGridStopped.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.State() != Started {
		return gerrors.ErrGridNotStarted
	}
	n.state.Store(int32(Stopped))

	close(n.stopNotifier)
	<-n.notifierDone

	if events := n.events.Swap(nil); events != nil {
		events.Dispose()
	}
	<-n.loopDone
	n.inbound.stopRetries()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		n.holder.Stop()
		return nil
	})
	eg.Go(func() error {
		if err := n.transport.Close(ctx); err != nil {
			return fmt.Errorf("failed to close the transport: %w", err)
		}
		return nil
	})
	err := eg.Wait()

	n.requests.FailAll(gerrors.ErrGridStopped)
	n.ring.ExcludeNode(n.local)
	n.peers.reset()
	n.members.Clear()
	n.quorum.Store(int32(QuorumUnknown))
	n.leader.Store("")

	if err != nil {
		n.logger.Errorf("grid node=%s stopped with error: %v", n.local, err)
		return err
	}
	n.logger.Infof("grid node=%s stopped", n.local)
	return nil
}

// Notify queues a cluster event. Events are handled one at a time, in
// the order they were queued. Notify blocks while the queue is full.
func (n *Node) Notify(event Event) error {
	events := n.events.Load()
	if events == nil {
		return gerrors.ErrGridNotStarted
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := events.Put(event); err != nil {
		return gerrors.ErrGridStopped
	}
	return nil
}

// RegisterQuorumObserver adds an observer of quorum changes.
func (n *Node) RegisterQuorumObserver(observer QuorumObserver) {
	if observer == nil {
		return
	}
	n.observerMu.Lock()
	n.observers = append(n.observers, observer)
	n.observerMu.Unlock()
}

// LocalNode returns the id of the local node.
func (n *Node) LocalNode() address.NodeID {
	return n.local
}

// State returns the lifecycle state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Quorum returns the last quorum state reported by the cluster.
func (n *Node) Quorum() Quorum {
	return Quorum(n.quorum.Load())
}

// Leader returns the current cluster leader, if one is known.
func (n *Node) Leader() (address.NodeID, bool) {
	leader := address.NodeID(n.leader.Load())
	return leader, !leader.IsZero()
}

// Members returns the known cluster members, sorted.
func (n *Node) Members() []address.NodeID {
	members := n.members.ToSlice()
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members
}

// NodeFor returns the node owning addr.
func (n *Node) NodeFor(addr address.Address) (address.NodeID, error) {
	return n.ring.NodeFor(addr)
}

// Outbound returns the outbound control of the node.
func (n *Node) Outbound() *OutboundControl {
	return n.outbound
}

// MessageHandler returns the entry point the transport feeds.
func (n *Node) MessageHandler() *ApplicationMessageHandler {
	return n.handler
}

// Send delivers a fire-and-forget method invocation to the actor at receiver,
// wherever it lives.
func (n *Node) Send(ctx context.Context, receiver, sender address.Address, method string, params []byte) error {
	owner, err := n.route(receiver)
	if err != nil {
		return err
	}
	n.outbound.Deliver(ctx, owner, receiver, sender, method, params)
	return nil
}

// Ask invokes method on the actor at receiver and returns a future completed
// with its reply.
func (n *Node) Ask(ctx context.Context, receiver, sender address.Address, method string, params []byte) (future.Future, error) {
	owner, err := n.route(receiver)
	if err != nil {
		return nil, err
	}
	return n.outbound.Request(ctx, owner, receiver, sender, method, params), nil
}

// Spawn starts the actor at addr on its owner node. The future completes
// once the actor exists.
func (n *Node) Spawn(ctx context.Context, addr address.Address, kind string, params []byte) (future.Future, error) {
	if kind == "" {
		return nil, errors.New("the [kind] is required")
	}
	owner, err := n.route(addr)
	if err != nil {
		return nil, err
	}
	return n.outbound.RequestStart(ctx, owner, addr, kind, params), nil
}

func (n *Node) route(addr address.Address) (address.NodeID, error) {
	if n.State() != Started {
		return "", gerrors.ErrGridNotStarted
	}
	if addr.IsZero() {
		return "", errors.New("the [receiver] address is required")
	}
	if err := addr.Validate(); err != nil {
		return "", err
	}
	return n.ring.NodeFor(addr)
}

func (n *Node) forwardNotifications(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if n.config.notifier == nil {
		return
	}

	source := n.config.notifier.Events()
	for {
		select {
		case <-stop:
			return
		case event, ok := <-source:
			if !ok {
				n.logger.Debug("cluster notifier closed its event stream")
				return
			}
			if err := n.Notify(event); err != nil {
				return
			}
		}
	}
}

func (n *Node) eventLoop(events *gods.RingBuffer, done chan<- struct{}) {
	defer close(done)
	for {
		item, err := events.Get()
		if err != nil {
			return
		}
		if event, ok := item.(Event); ok {
			n.handle(event)
		}
	}
}

func (n *Node) handle(event Event) {
	ctx := context.Background()
	if n.logger.Enabled(log.DebugLevel) {
		n.logger.Debugf("handling cluster event %s", event)
	}

	switch event.Type {
	case NodeJoined:
		n.nodeJoined(event.Node)
	case NodeHealthy:
		n.nodeHealthy(ctx, event.Node, event.HealthyCluster)
	case NodeUnhealthy:
		n.nodeUnhealthy(event.Node)
	case NodeLeft:
		n.nodeLeft(ctx, event.Node)
	case QuorumAchieved:
		n.quorum.Store(int32(QuorumHeld))
		n.logger.Info("cluster quorum achieved")
		n.fanOut(QuorumObserver.QuorumAchieved)
	case QuorumLost:
		n.quorum.Store(int32(QuorumMissing))
		n.logger.Warn("cluster quorum lost")
		n.fanOut(QuorumObserver.QuorumLost)
	case LeaderElected:
		n.leader.Store(event.Node.String())
		n.logger.Infof("node=%s elected cluster leader (local=%t)", event.Node, event.LocalLeading)
	case LeaderLost:
		n.leader.Store("")
		n.logger.Info("cluster leader lost")
	default:
		n.logger.Warnf("ignoring unknown cluster event %s", event)
	}
}

func (n *Node) nodeJoined(node address.NodeID) {
	if node.IsZero() {
		return
	}
	n.members.Add(node)
	n.peers.rejoined(node)
	n.logger.Infof("node=%s joined the cluster", node)
}

func (n *Node) nodeHealthy(ctx context.Context, node address.NodeID, healthyCluster bool) {
	if node.IsZero() || node == n.local {
		return
	}
	if !healthyCluster {
		n.logger.Debugf("node=%s is locally healthy, waiting for cluster confirmation", node)
		return
	}

	n.members.Add(node)
	n.ring.IncludeNode(node)
	n.peers.rejoined(node)
	n.peers.markReachable(node)
	// sends made from here on queue behind the buffered ones until the
	// disbursement has emptied the buffer
	n.handler.Disburse(ctx, node)
	n.logger.Infof("node=%s is healthy", node)
}

func (n *Node) nodeUnhealthy(node address.NodeID) {
	if node.IsZero() || node == n.local {
		return
	}
	if n.peers.markUnreachable(node) {
		n.logger.Warnf("node=%s is unhealthy, buffering messages", node)
	}
}

func (n *Node) nodeLeft(ctx context.Context, node address.NodeID) {
	if node.IsZero() || node == n.local {
		return
	}
	n.ring.ExcludeNode(node)
	n.peers.markDeparted(node)
	n.members.Remove(node)
	dropped := n.outbound.discard(ctx, node) + n.inbound.discard(ctx, node)
	if dropped > 0 {
		n.logger.Warnf("node=%s left the cluster, %d buffered messages dropped", node, dropped)
		return
	}
	n.logger.Infof("node=%s left the cluster", node)
}

func (n *Node) fanOut(notify func(QuorumObserver)) {
	n.observerMu.RLock()
	observers := append([]QuorumObserver(nil), n.observers...)
	n.observerMu.RUnlock()
	for _, observer := range observers {
		notify(observer)
	}
}
