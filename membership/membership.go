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

// Package membership turns hashicorp/memberlist gossip into grid cluster events.
//
// A Membership is a grid.Notifier. Remote members joining produce NodeJoined
// followed by NodeHealthy, members leaving produce NodeLeft, and crossing the
// configured quorum size produces QuorumAchieved or QuorumLost. NodeHealthy
// reports a healthy cluster only while quorum is held; every known member is
// announced healthy again when quorum is (re)gained. The member with the
// smallest name is the leader.
//
// A Membership can be started once.
package membership

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	gods "github.com/Workiva/go-datastructures/queue"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/flowchartsman/retry"
	"github.com/hashicorp/memberlist"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/tochemey/lattice/address"
	"github.com/tochemey/lattice/grid"
	internalnet "github.com/tochemey/lattice/internal/net"
	"github.com/tochemey/lattice/log"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("membership already started")
	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("membership not started")
)

// Membership is a memberlist-backed source of cluster events
type Membership struct {
	config *Config
	logger log.Logger

	list    *memberlist.Memberlist
	pending *gods.Queue
	events  chan grid.Event
	stop    chan struct{}
	done    chan struct{}

	// guards the derived cluster view below
	mu      sync.Mutex
	members mapset.Set[string]
	quorum  bool
	leader  string

	started *atomic.Bool
	stopped *atomic.Bool
}

// enforce compilation error
var _ grid.Notifier = (*Membership)(nil)

// New creates a Membership. It does not join the cluster until Start.
func New(config *Config) (*Membership, error) {
	if config == nil {
		return nil, errors.New("membership config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Membership{
		config:  config,
		logger:  config.Logger.Named("membership"),
		pending: gods.New(64),
		events:  make(chan grid.Event),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		members: mapset.NewSet[string](),
		started: atomic.NewBool(false),
		stopped: atomic.NewBool(false),
	}, nil
}

// NodeID returns the grid node id of the local member.
func (m *Membership) NodeID() address.NodeID {
	return address.NodeID(m.config.Name)
}

// Events returns the cluster event stream. It is closed on Stop.
func (m *Membership) Events() <-chan grid.Event {
	return m.events
}

// Members returns the names of the live members, local node included, sorted.
func (m *Membership) Members() []address.NodeID {
	names := m.members.ToSlice()
	slices.Sort(names)
	nodes := make([]address.NodeID, 0, len(names))
	for _, name := range names {
		nodes = append(nodes, address.NodeID(name))
	}
	return nodes
}

// Start creates the local member and joins the configured peers.
func (m *Membership) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	advertiseAddr, err := internalnet.BindIP(m.config.BindAddr)
	if err != nil {
		m.started.Store(false)
		return err
	}

	conf := memberlist.DefaultLocalConfig()
	conf.Name = m.config.Name
	conf.BindAddr = m.config.BindAddr
	conf.BindPort = m.config.BindPort
	conf.AdvertiseAddr = advertiseAddr
	conf.AdvertisePort = m.config.BindPort
	conf.Events = &eventDelegate{membership: m}
	conf.LogOutput = &logWriter{logger: m.logger}

	go m.forward()

	list, err := memberlist.Create(conf)
	if err != nil {
		m.shutdownEvents()
		return err
	}
	m.list = list

	if len(m.config.Peers) > 0 {
		// retry with an exponential backoff starting at 100ms, capped at one second
		retrier := retry.NewRetrier(m.config.JoinRetries, 100*time.Millisecond, time.Second)
		err := retrier.RunContext(ctx, func(context.Context) error {
			_, err := list.Join(m.config.Peers)
			return err
		})
		if err != nil {
			m.logger.Errorf("member=%s failed to join peers %v: %v", m.config.Name, m.config.Peers, err)
			m.shutdownEvents()
			return multierr.Append(err, list.Shutdown())
		}
	}

	m.logger.Infof("member=%s started on %s:%d", m.config.Name, advertiseAddr, m.config.BindPort)
	return nil
}

// Stop leaves the cluster, shuts the local member down and closes the event stream.
func (m *Membership) Stop(context.Context) error {
	if !m.started.Load() {
		return ErrNotStarted
	}
	if !m.stopped.CompareAndSwap(false, true) {
		return nil
	}

	err := multierr.Combine(
		m.list.Leave(m.config.LeaveTimeout),
		m.list.Shutdown(),
	)
	m.shutdownEvents()
	m.logger.Infof("member=%s stopped", m.config.Name)
	return err
}

func (m *Membership) shutdownEvents() {
	m.stopped.Store(true)
	close(m.stop)
	m.pending.Dispose()
	<-m.done
}

// forward moves events from the unbounded pending queue to the event
// channel so that memberlist callbacks never block on a slow consumer.
func (m *Membership) forward() {
	defer close(m.done)
	defer close(m.events)
	for {
		items, err := m.pending.Get(1)
		if err != nil {
			return
		}
		for _, item := range items {
			select {
			case m.events <- item.(grid.Event):
			case <-m.stop:
				return
			}
		}
	}
}

func (m *Membership) emit(eventType grid.EventType, node string, healthy bool) {
	event := grid.Event{
		Type:           eventType,
		Node:           address.NodeID(node),
		HealthyCluster: healthy,
		LocalLeading:   eventType == grid.LeaderElected && node == m.config.Name,
		Timestamp:      time.Now().UTC(),
	}
	if err := m.pending.Put(event); err != nil {
		m.logger.Debugf("dropping cluster event %s: %v", event, err)
	}
}

func (m *Membership) joined(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.members.Add(name)
	remote := name != m.config.Name
	if remote {
		m.logger.Infof("member=%s joined the cluster", name)
		m.emit(grid.NodeJoined, name, false)
	}

	if m.updateQuorum() {
		m.announceHealthy()
	} else if remote {
		m.emit(grid.NodeHealthy, name, m.quorum)
	}
	m.updateLeader()
}

func (m *Membership) updated(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == m.config.Name || !m.members.Contains(name) {
		return
	}
	m.emit(grid.NodeHealthy, name, m.quorum)
}

func (m *Membership) left(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.members.Contains(name) {
		return
	}

	m.members.Remove(name)
	if name != m.config.Name {
		m.logger.Infof("member=%s left the cluster", name)
		m.emit(grid.NodeLeft, name, false)
	}
	m.updateQuorum()
	m.updateLeader()
}

// updateQuorum reports whether quorum has just been gained.
func (m *Membership) updateQuorum() bool {
	held := m.members.Cardinality() >= m.config.QuorumSize
	if held == m.quorum {
		return false
	}

	m.quorum = held
	if held {
		m.emit(grid.QuorumAchieved, m.config.Name, true)
		return true
	}
	m.emit(grid.QuorumLost, m.config.Name, false)
	return false
}

func (m *Membership) announceHealthy() {
	names := m.members.ToSlice()
	slices.Sort(names)
	for _, name := range names {
		if name != m.config.Name {
			m.emit(grid.NodeHealthy, name, true)
		}
	}
}

func (m *Membership) updateLeader() {
	var leader string
	if names := m.members.ToSlice(); len(names) > 0 {
		leader = slices.Min(names)
	}
	if leader == m.leader {
		return
	}

	if m.leader != "" && !m.members.Contains(m.leader) {
		m.emit(grid.LeaderLost, m.leader, false)
	}
	m.leader = leader
	if leader != "" {
		m.emit(grid.LeaderElected, leader, m.quorum)
	}
}

// eventDelegate receives memberlist notifications. memberlist calls it
// from its own goroutines while holding internal locks.
type eventDelegate struct {
	membership *Membership
}

// enforce compilation error
var _ memberlist.EventDelegate = (*eventDelegate)(nil)

// NotifyJoin is executed when a node joined the cluster
func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	if node != nil {
		d.membership.joined(node.Name)
	}
}

// NotifyLeave is executed when a node leaves the cluster
func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	if node != nil {
		d.membership.left(node.Name)
	}
}

// NotifyUpdate is executed when a node metadata is updated
func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	if node != nil {
		d.membership.updated(node.Name)
	}
}

// logWriter routes memberlist's standard logger output to the membership logger.
type logWriter struct {
	logger log.Logger
}

var _ io.Writer = (*logWriter)(nil)

func (w *logWriter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	switch {
	case strings.Contains(line, "[ERR]"):
		w.logger.Error(line)
	case strings.Contains(line, "[WARN]"):
		w.logger.Warn(line)
	default:
		w.logger.Debug(line)
	}
	return len(p), nil
}
