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
	"fmt"
	"time"

	"github.com/tochemey/lattice/address"
)

// EventType identifies a cluster event.
type EventType int

const (
	NodeJoined EventType = iota + 1
	NodeLeft
	NodeHealthy
	NodeUnhealthy
	QuorumAchieved
	QuorumLost
	LeaderElected
	LeaderLost
)

var eventTypeNames = map[EventType]string{
	NodeJoined:     "NodeJoined",
	NodeLeft:       "NodeLeft",
	NodeHealthy:    "NodeHealthy",
	NodeUnhealthy:  "NodeUnhealthy",
	QuorumAchieved: "QuorumAchieved",
	QuorumLost:     "QuorumLost",
	LeaderElected:  "LeaderElected",
	LeaderLost:     "LeaderLost",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is a cluster membership notification.
//
// HealthyCluster is only meaningful for NodeHealthy: it tells whether the
// health of Node is confirmed cluster-wide rather than observed locally.
// LocalLeading is only meaningful for LeaderElected.
type Event struct {
	Type           EventType
	Node           address.NodeID
	HealthyCluster bool
	LocalLeading   bool
	Timestamp      time.Time
}

func (e Event) String() string {
	if e.Node.IsZero() {
		return e.Type.String()
	}
	return fmt.Sprintf("%s(%s)", e.Type, e.Node)
}
