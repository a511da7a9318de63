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

package metric

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tochemey/lattice/address"
)

// GridMetric holds the instruments recorded by a grid node.
// A nil *GridMetric is valid and records nothing.
type GridMetric struct {
	sent            metric.Int64Counter
	buffered        metric.Int64Counter
	disbursed       metric.Int64Counter
	dropped         metric.Int64Counter
	decodeFailures  metric.Int64Counter
	requestTimeouts metric.Int64Counter
	pendingRequests metric.Int64UpDownCounter
}

// NewGridMetric creates the grid instruments from meter.
func NewGridMetric(meter metric.Meter) (*GridMetric, error) {
	m := new(GridMetric)
	var err error

	if m.sent, err = meter.Int64Counter(
		"lattice.grid.sent",
		metric.WithDescription("Total number of control messages handed to the transport"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sent instrument, %w", err)
	}

	if m.buffered, err = meter.Int64Counter(
		"lattice.grid.buffered",
		metric.WithDescription("Total number of sends deferred because the destination was unreachable"),
	); err != nil {
		return nil, fmt.Errorf("failed to create buffered instrument, %w", err)
	}

	if m.disbursed, err = meter.Int64Counter(
		"lattice.grid.disbursed",
		metric.WithDescription("Total number of buffered sends executed on node recovery"),
	); err != nil {
		return nil, fmt.Errorf("failed to create disbursed instrument, %w", err)
	}

	if m.dropped, err = meter.Int64Counter(
		"lattice.grid.dropped",
		metric.WithDescription("Total number of control messages that were not delivered"),
	); err != nil {
		return nil, fmt.Errorf("failed to create dropped instrument, %w", err)
	}

	if m.decodeFailures, err = meter.Int64Counter(
		"lattice.grid.decode_failures",
		metric.WithDescription("Total number of inbound payloads that could not be decoded"),
	); err != nil {
		return nil, fmt.Errorf("failed to create decodeFailures instrument, %w", err)
	}

	if m.requestTimeouts, err = meter.Int64Counter(
		"lattice.grid.request_timeouts",
		metric.WithDescription("Total number of requests failed because no answer arrived in time"),
	); err != nil {
		return nil, fmt.Errorf("failed to create requestTimeouts instrument, %w", err)
	}

	if m.pendingRequests, err = meter.Int64UpDownCounter(
		"lattice.grid.pending_requests",
		metric.WithDescription("Number of requests waiting for an answer"),
	); err != nil {
		return nil, fmt.Errorf("failed to create pendingRequests instrument, %w", err)
	}

	return m, nil
}

func nodeAttr(node address.NodeID) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("node", node.String()))
}

// Sent records a message handed to the transport for node.
func (m *GridMetric) Sent(ctx context.Context, node address.NodeID) {
	if m == nil {
		return
	}
	m.sent.Add(ctx, 1, nodeAttr(node))
}

// Buffered records a send deferred for node.
func (m *GridMetric) Buffered(ctx context.Context, node address.NodeID) {
	if m == nil {
		return
	}
	m.buffered.Add(ctx, 1, nodeAttr(node))
}

// Disbursed records count buffered sends executed for node.
func (m *GridMetric) Disbursed(ctx context.Context, node address.NodeID, count int) {
	if m == nil || count == 0 {
		return
	}
	m.disbursed.Add(ctx, int64(count), nodeAttr(node))
}

// Dropped records count messages for node that were not delivered.
func (m *GridMetric) Dropped(ctx context.Context, node address.NodeID, count int) {
	if m == nil || count == 0 {
		return
	}
	m.dropped.Add(ctx, int64(count), nodeAttr(node))
}

// DecodeFailed records an undecodable inbound payload.
func (m *GridMetric) DecodeFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.decodeFailures.Add(ctx, 1)
}

// RequestStarted records a new pending request.
func (m *GridMetric) RequestStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.pendingRequests.Add(ctx, 1)
}

// RequestEnded records a pending request leaving the table, timedOut
// telling whether it ended by timing out.
func (m *GridMetric) RequestEnded(ctx context.Context, timedOut bool) {
	if m == nil {
		return
	}
	m.pendingRequests.Add(ctx, -1)
	if timedOut {
		m.requestTimeouts.Add(ctx, 1)
	}
}
