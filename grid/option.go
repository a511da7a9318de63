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
	"time"

	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/tochemey/lattice/control"
	"github.com/tochemey/lattice/hash"
	"github.com/tochemey/lattice/internal/hashring"
	"github.com/tochemey/lattice/internal/outbuffer"
	"github.com/tochemey/lattice/internal/validation"
	"github.com/tochemey/lattice/log"
)

const (
	// DefaultRequestTimeout bounds how long a request waits for its answer.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultEventQueueSize is the capacity of the cluster event queue.
	DefaultEventQueueSize = 1024
	// DefaultBufferSoftLimit is the number of buffered sends above which the
	// weakly retained ones are reclaimed.
	DefaultBufferSoftLimit = 10_000
	// DefaultHoldWindow bounds how long a delivery for an unknown actor waits
	// for the actor to be started.
	DefaultHoldWindow = 5 * time.Second
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(c *config)
}

// enforce compilation error
var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*config)

func (f OptionFunc) Apply(c *config) {
	f(c)
}

type config struct {
	logger          log.Logger
	codec           control.Codec
	virtualNodes    int
	hasher          hash.Hasher
	requestTimeout  time.Duration
	hardRetention   time.Duration
	sweepInterval   time.Duration
	bufferSoftLimit int
	holdWindow      time.Duration
	eventQueueSize  int
	notifier        Notifier
	observers       []QuorumObserver
	meterProvider   otelmetric.MeterProvider
	metricsEnabled  bool
}

func defaultConfig() *config {
	return &config{
		logger:          log.DefaultLogger,
		codec:           control.DefaultCodec(),
		virtualNodes:    hashring.DefaultVirtualNodes,
		hasher:          hash.DefaultHasher(),
		requestTimeout:  DefaultRequestTimeout,
		hardRetention:   outbuffer.DefaultHardRetention,
		sweepInterval:   outbuffer.DefaultSweepInterval,
		bufferSoftLimit: DefaultBufferSoftLimit,
		holdWindow:      DefaultHoldWindow,
		eventQueueSize:  DefaultEventQueueSize,
	}
}

func (c *config) Validate() error {
	return validation.New(validation.AllErrors()).
		AddAssertion(c.logger != nil, "the [logger] is required").
		AddAssertion(c.codec != nil, "the [codec] is required").
		AddAssertion(c.hasher != nil, "the [hasher] is required").
		AddAssertion(c.virtualNodes > 0, "the [virtualNodes] must be greater than zero").
		AddAssertion(c.requestTimeout >= 0, "the [requestTimeout] must not be negative").
		AddValidator(validation.NewPositiveDurationValidator("hardRetention", c.hardRetention)).
		AddValidator(validation.NewPositiveDurationValidator("sweepInterval", c.sweepInterval)).
		AddAssertion(c.bufferSoftLimit >= 0, "the [bufferSoftLimit] must not be negative").
		AddAssertion(c.holdWindow >= 0, "the [holdWindow] must not be negative").
		AddAssertion(c.eventQueueSize > 0, "the [eventQueueSize] must be greater than zero").
		Validate()
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(c *config) {
		c.logger = logger
	})
}

// WithCodec sets the codec used to put control messages on the wire.
// Every node of the cluster must use the same codec.
func WithCodec(codec control.Codec) Option {
	return OptionFunc(func(c *config) {
		c.codec = codec
	})
}

// WithVirtualNodes sets the number of hash ring positions per node.
func WithVirtualNodes(count int) Option {
	return OptionFunc(func(c *config) {
		c.virtualNodes = count
	})
}

// WithHasher sets the hash ring hasher
func WithHasher(hasher hash.Hasher) Option {
	return OptionFunc(func(c *config) {
		c.hasher = hasher
	})
}

// WithRequestTimeout sets how long Ask and Spawn wait for an answer.
// Zero disables the timeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return OptionFunc(func(c *config) {
		c.requestTimeout = timeout
	})
}

// WithHardRetention sets how long a buffered send is protected from reclamation.
func WithHardRetention(retention time.Duration) Option {
	return OptionFunc(func(c *config) {
		c.hardRetention = retention
	})
}

// WithSweepInterval sets how often expired hard retentions are released.
func WithSweepInterval(interval time.Duration) Option {
	return OptionFunc(func(c *config) {
		c.sweepInterval = interval
	})
}

// WithBufferSoftLimit sets the number of buffered sends above which weakly
// retained sends are reclaimed. Zero means no limit.
func WithBufferSoftLimit(limit int) Option {
	return OptionFunc(func(c *config) {
		c.bufferSoftLimit = limit
	})
}

// WithHoldWindow sets how long a delivery for an actor that does not exist
// yet is held before it is answered with errors.ErrActorNotFound. Zero answers
// right away.
func WithHoldWindow(window time.Duration) Option {
	return OptionFunc(func(c *config) {
		c.holdWindow = window
	})
}

// WithEventQueueSize sets the capacity of the cluster event queue.
// Notify blocks while the queue is full.
func WithEventQueueSize(size int) Option {
	return OptionFunc(func(c *config) {
		c.eventQueueSize = size
	})
}

// WithNotifier subscribes the node to a source of cluster events.
func WithNotifier(notifier Notifier) Option {
	return OptionFunc(func(c *config) {
		c.notifier = notifier
	})
}

// WithQuorumObserver registers an observer of quorum changes.
func WithQuorumObserver(observer QuorumObserver) Option {
	return OptionFunc(func(c *config) {
		if observer != nil {
			c.observers = append(c.observers, observer)
		}
	})
}

// WithMetrics enables the OpenTelemetry instruments.
// A nil provider uses the global one.
func WithMetrics(provider otelmetric.MeterProvider) Option {
	return OptionFunc(func(c *config) {
		c.metricsEnabled = true
		c.meterProvider = provider
	})
}
