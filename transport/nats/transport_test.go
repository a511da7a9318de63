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

package nats

import (
	"context"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/lattice/address"
	gerrors "github.com/tochemey/lattice/errors"
	"github.com/tochemey/lattice/log"
)

func startNatsServer(t *testing.T) *natsserver.Server {
	t.Helper()
	serv, err := natsserver.NewServer(&natsserver.Options{
		Host: "127.0.0.1",
		Port: -1,
	})

	require.NoError(t, err)

	ready := make(chan bool)
	go func() {
		ready <- true
		serv.Start()
	}()
	<-ready

	if !serv.ReadyForConnections(2 * time.Second) {
		t.Fatalf("nats-io server failed to start")
	}

	return serv
}

type inbox struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (i *inbox) receive(_ context.Context, payload []byte) {
	i.mu.Lock()
	i.payloads = append(i.payloads, payload)
	i.mu.Unlock()
}

func (i *inbox) received() [][]byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([][]byte(nil), i.payloads...)
}

func newTestTransport(t *testing.T, server, cluster string) *Transport {
	t.Helper()
	config := NewConfig(server, cluster)
	config.Logger = log.DiscardLogger
	config.ReconnectWait = 200 * time.Millisecond
	transport, err := NewTransport(config)
	require.NoError(t, err)
	return transport
}

func TestConfig(t *testing.T) {
	t.Run("With valid config", func(t *testing.T) {
		require.NoError(t, NewConfig("nats://127.0.0.1:4222", "accounts").Validate())
	})
	t.Run("With invalid config", func(t *testing.T) {
		cases := map[string]*Config{
			"missing server":      NewConfig("", "accounts"),
			"missing cluster":     NewConfig("nats://127.0.0.1:4222", ""),
			"dotted cluster":      NewConfig("nats://127.0.0.1:4222", "acc.ounts"),
			"wildcard prefix":     func() *Config { c := NewConfig("nats://127.0.0.1:4222", "accounts"); c.SubjectPrefix = "grid.*"; return c }(),
			"no retries":          func() *Config { c := NewConfig("nats://127.0.0.1:4222", "accounts"); c.MaxConnectRetries = 0; return c }(),
			"zero reconnect wait": func() *Config { c := NewConfig("nats://127.0.0.1:4222", "accounts"); c.ReconnectWait = 0; return c }(),
		}
		for name, config := range cases {
			assert.Error(t, config.Validate(), name)
		}
		_, err := NewTransport(nil)
		require.Error(t, err)
		_, err = NewTransport(NewConfig("", "accounts"))
		require.Error(t, err)
	})
}

func TestTransport(t *testing.T) {
	ctx := context.Background()
	server := startNatsServer(t)
	defer server.Shutdown()

	t.Run("With send and receive", func(t *testing.T) {
		a := newTestTransport(t, "nats://"+server.Addr().String(), "accounts")
		b := newTestTransport(t, "nats://"+server.Addr().String(), "accounts")
		received := new(inbox)
		require.NoError(t, a.Bind(ctx, "node-a", new(inbox).receive))
		require.NoError(t, b.Bind(ctx, "node-b", received.receive))

		for i := 0; i < 20; i++ {
			require.NoError(t, a.Send(ctx, "node-b", []byte{byte(i)}))
		}
		require.Eventually(t, func() bool { return len(received.received()) == 20 }, 2*time.Second, 10*time.Millisecond)
		for i, payload := range received.received() {
			assert.Equal(t, []byte{byte(i)}, payload)
		}

		require.NoError(t, a.Close(ctx))
		require.NoError(t, b.Close(ctx))
		require.NoError(t, a.Close(ctx))
	})
	t.Run("With clusters isolated", func(t *testing.T) {
		a := newTestTransport(t, "nats://"+server.Addr().String(), "accounts")
		b := newTestTransport(t, "nats://"+server.Addr().String(), "payments")
		received := new(inbox)
		require.NoError(t, a.Bind(ctx, "node-a", new(inbox).receive))
		require.NoError(t, b.Bind(ctx, "node-b", received.receive))

		require.NoError(t, a.Send(ctx, "node-b", []byte("hello")))
		assert.Never(t, func() bool { return len(received.received()) > 0 }, 200*time.Millisecond, 20*time.Millisecond)

		require.NoError(t, a.Close(ctx))
		require.NoError(t, b.Close(ctx))
	})
	t.Run("With unbound and closed transport", func(t *testing.T) {
		a := newTestTransport(t, "nats://"+server.Addr().String(), "accounts")
		require.ErrorIs(t, a.Send(ctx, "node-b", []byte("x")), gerrors.ErrTransportNotBound)
		require.Error(t, a.Bind(ctx, address.NodeID("bad.node"), new(inbox).receive))

		require.NoError(t, a.Bind(ctx, "node-a", new(inbox).receive))
		require.Error(t, a.Bind(ctx, "node-a", new(inbox).receive))
		require.NoError(t, a.Close(ctx))
		require.ErrorIs(t, a.Send(ctx, "node-b", []byte("x")), gerrors.ErrTransportClosed)
		require.ErrorIs(t, a.Bind(ctx, "node-a", new(inbox).receive), gerrors.ErrTransportClosed)
	})
	t.Run("With unreachable server", func(t *testing.T) {
		config := NewConfig("nats://127.0.0.1:1", "accounts")
		config.Logger = log.DiscardLogger
		config.MaxConnectRetries = 2
		config.ReconnectWait = 50 * time.Millisecond
		transport, err := NewTransport(config)
		require.NoError(t, err)
		require.Error(t, transport.Bind(ctx, "node-a", new(inbox).receive))
	})
}
