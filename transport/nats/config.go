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
	"strings"
	"time"

	"github.com/tochemey/lattice/internal/validation"
	"github.com/tochemey/lattice/log"
)

const (
	// DefaultSubjectPrefix is the subject namespace used when none is configured.
	DefaultSubjectPrefix = "lattice.grid"
	// DefaultMaxConnectRetries is how many times connecting is attempted.
	DefaultMaxConnectRetries = 5
	// DefaultReconnectWait is the maximum delay between two connection attempts.
	DefaultReconnectWait = 2 * time.Second
)

// Config represents the NATS transport configuration
type Config struct {
	// Server defines the nats server in the format nats://host:port
	Server string
	// ClusterName isolates grids sharing the same NATS server
	ClusterName string
	// SubjectPrefix defines the custom NATS subject namespace
	SubjectPrefix string
	// MaxConnectRetries is how many times connecting is attempted
	MaxConnectRetries int
	// ReconnectWait is the maximum delay between two connection attempts
	ReconnectWait time.Duration
	// Logger is the transport logger
	Logger log.Logger
}

// NewConfig creates a Config with the defaults applied.
func NewConfig(server, clusterName string) *Config {
	return &Config{
		Server:            server,
		ClusterName:       clusterName,
		SubjectPrefix:     DefaultSubjectPrefix,
		MaxConnectRetries: DefaultMaxConnectRetries,
		ReconnectWait:     DefaultReconnectWait,
		Logger:            log.DefaultLogger,
	}
}

// Validate checks whether the given transport configuration is valid
func (x *Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("Server", x.Server)).
		AddValidator(validation.NewEmptyStringValidator("ClusterName", x.ClusterName)).
		AddValidator(validation.NewEmptyStringValidator("SubjectPrefix", x.SubjectPrefix)).
		AddAssertion(validToken(x.ClusterName), "the [ClusterName] must be a single NATS subject token").
		AddAssertion(validSubject(x.SubjectPrefix), "the [SubjectPrefix] must be a valid NATS subject without wildcards").
		AddAssertion(x.MaxConnectRetries > 0, "the [MaxConnectRetries] must be greater than zero").
		AddValidator(validation.NewPositiveDurationValidator("ReconnectWait", x.ReconnectWait)).
		AddAssertion(x.Logger != nil, "the [Logger] is required").
		Validate()
}

func validSubject(subject string) bool {
	if subject == "" {
		return false
	}
	for _, token := range strings.Split(subject, ".") {
		if !validToken(token) {
			return false
		}
	}
	return true
}

func validToken(token string) bool {
	return token != "" && !strings.ContainsAny(token, ".*> \t\r\n")
}
