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

// Package nats provides a grid transport on top of NATS core publish/subscribe.
//
// Every node subscribes to its own subject, <prefix>.<cluster>.<node>, and
// sending to a node publishes on that subject. NATS keeps the order of the
// messages published by one connection on one subject, which gives the
// per-destination ordering the grid relies on. Publishing never waits for
// the network: the client buffers outgoing messages, including while it
// reconnects.
package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/tochemey/lattice/address"
	gerrors "github.com/tochemey/lattice/errors"
	"github.com/tochemey/lattice/log"
)

// Transport is a NATS-backed grid transport.
type Transport struct {
	mu           sync.Mutex
	config       *Config
	connection   *nats.Conn
	subscription *nats.Subscription
	local        address.NodeID
	bound        *atomic.Bool
	closed       *atomic.Bool
	logger       log.Logger
}

// NewTransport creates a Transport. The connection is established by Bind.
func NewTransport(config *Config) (*Transport, error) {
	if config == nil {
		return nil, errors.New("the [config] is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid nats transport configuration: %w", err)
	}
	return &Transport{
		config: config,
		bound:  atomic.NewBool(false),
		closed: atomic.NewBool(false),
		logger: config.Logger.Named("nats"),
	}, nil
}

// Bind connects to the NATS server and subscribes to the subject of local.
func (t *Transport) Bind(ctx context.Context, local address.NodeID, receive func(ctx context.Context, payload []byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return gerrors.ErrTransportClosed
	}
	if t.bound.Load() {
		return fmt.Errorf("transport already bound to node=%s", t.local)
	}
	if !validToken(local.String()) {
		return fmt.Errorf("node id %q cannot be used as a NATS subject token", local)
	}

	connection, err := t.connect(ctx, local)
	if err != nil {
		return err
	}

	subject := t.subject(local)
	subscription, err := connection.Subscribe(subject, func(msg *nats.Msg) {
		receive(context.Background(), msg.Data)
	})
	if err != nil {
		connection.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	// make sure the server knows about the subscription before anybody sends
	if err := connection.FlushWithContext(ctx); err != nil {
		connection.Close()
		return fmt.Errorf("failed to register subscription %s: %w", subject, err)
	}

	t.connection = connection
	t.subscription = subscription
	t.local = local
	t.bound.Store(true)
	t.logger.Infof("nats transport bound node=%s to subject=%s", local, subject)
	return nil
}

// Send publishes payload on the subject of the given node.
func (t *Transport) Send(_ context.Context, to address.NodeID, payload []byte) error {
	if t.closed.Load() {
		return gerrors.ErrTransportClosed
	}
	if !t.bound.Load() {
		return gerrors.ErrTransportNotBound
	}

	t.mu.Lock()
	connection := t.connection
	t.mu.Unlock()

	if err := connection.Publish(t.subject(to), payload); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return gerrors.ErrTransportClosed
		}
		return fmt.Errorf("%w: %w", gerrors.ErrUnreachable, err)
	}
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (t *Transport) Close(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Swap(true) {
		return nil
	}
	if !t.bound.Load() {
		return nil
	}

	var err error
	if t.subscription != nil {
		err = multierr.Append(err, t.subscription.Unsubscribe())
	}
	if t.connection != nil {
		err = multierr.Append(err, t.connection.Flush())
		t.connection.Close()
	}
	t.bound.Store(false)
	t.logger.Infof("nats transport of node=%s closed", t.local)
	return err
}

func (t *Transport) subject(node address.NodeID) string {
	var sb strings.Builder
	sb.WriteString(t.config.SubjectPrefix)
	sb.WriteByte('.')
	sb.WriteString(t.config.ClusterName)
	sb.WriteByte('.')
	sb.WriteString(node.String())
	return sb.String()
}

func (t *Transport) connect(ctx context.Context, local address.NodeID) (*nats.Conn, error) {
	opts := nats.GetDefaultOptions()
	opts.Url = t.config.Server
	opts.Name = fmt.Sprintf("%s.%s", t.config.ClusterName, local)
	opts.ReconnectWait = t.config.ReconnectWait
	opts.MaxReconnect = -1
	opts.DisconnectedErrCB = func(_ *nats.Conn, err error) {
		if err != nil {
			t.logger.Warnf("nats transport of node=%s disconnected: %v", local, err)
		}
	}
	opts.ReconnectedCB = func(conn *nats.Conn) {
		t.logger.Infof("nats transport of node=%s reconnected to %s", local, conn.ConnectedUrl())
	}

	var connection *nats.Conn
	// retry with an exponential backoff starting at 100ms, capped by the reconnect wait
	retrier := retry.NewRetrier(t.config.MaxConnectRetries, 100*time.Millisecond, t.config.ReconnectWait)
	err := retrier.RunContext(ctx, func(context.Context) error {
		conn, err := opts.Connect()
		if err != nil {
			return err
		}
		connection = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats server %s: %w", t.config.Server, err)
	}
	return connection, nil
}
