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

package membership

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	internalnet "github.com/tochemey/lattice/internal/net"
	"github.com/tochemey/lattice/internal/validation"
	"github.com/tochemey/lattice/log"
)

const (
	// DefaultQuorumSize is the member count from which the cluster holds quorum.
	DefaultQuorumSize = 1
	// DefaultJoinRetries is how many times joining the seed peers is attempted.
	DefaultJoinRetries = 5
	// DefaultLeaveTimeout bounds the leave broadcast on Stop.
	DefaultLeaveTimeout = 5 * time.Second
)

// Config represents the membership configuration
type Config struct {
	// Name is the member name. It is used as the grid node id.
	Name string
	// BindAddr is the gossip bind address
	BindAddr string
	// BindPort is the gossip bind port
	BindPort int
	// Peers are the host:port seeds to join on start
	Peers []string
	// QuorumSize is the member count, local node included, required for quorum
	QuorumSize int
	// JoinRetries is how many times joining the peers is attempted
	JoinRetries int
	// LeaveTimeout bounds the leave broadcast on Stop
	LeaveTimeout time.Duration
	// Logger is the membership logger
	Logger log.Logger
}

// NewConfig creates a Config with the defaults applied.
// An empty name is replaced by hostname-uuid.
func NewConfig(name, bindAddr string, bindPort int, peers ...string) *Config {
	if name == "" {
		name = defaultName()
	}
	return &Config{
		Name:         name,
		BindAddr:     bindAddr,
		BindPort:     bindPort,
		Peers:        peers,
		QuorumSize:   DefaultQuorumSize,
		JoinRetries:  DefaultJoinRetries,
		LeaveTimeout: DefaultLeaveTimeout,
		Logger:       log.DefaultLogger,
	}
}

// Validate checks whether the given membership configuration is valid
func (x *Config) Validate() error {
	chain := validation.New(validation.AllErrors()).
		AddValidator(validation.NewEmptyStringValidator("Name", x.Name)).
		AddValidator(validation.NewEmptyStringValidator("BindAddr", x.BindAddr)).
		AddAssertion(x.BindPort > 0 && x.BindPort <= 65535, "the [BindPort] must be a valid port").
		AddAssertion(x.QuorumSize > 0, "the [QuorumSize] must be greater than zero").
		AddAssertion(x.JoinRetries > 0, "the [JoinRetries] must be greater than zero").
		AddValidator(validation.NewPositiveDurationValidator("LeaveTimeout", x.LeaveTimeout)).
		AddAssertion(x.Logger != nil, "the [Logger] is required")

	for _, peer := range x.Peers {
		_, _, err := internalnet.HostPort(peer)
		chain.AddAssertion(err == nil, fmt.Sprintf("the peer [%s] must be a valid host:port", peer))
	}
	return chain.Validate()
}

func defaultName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString())
}
