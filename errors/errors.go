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

// Package errors holds the sentinel errors returned by the grid.
package errors

import (
	"errors"
)

var (
	// ErrNoOwnerAvailable is returned by a ring lookup when no node is present.
	// Callers are expected to buffer or retry.
	ErrNoOwnerAvailable = errors.New("no owner available")

	// ErrRequestTimeout is used to fail a pending request whose answer did not arrive in time.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrActorNotFound is returned when a message targets an actor the local directory cannot resolve.
	ErrActorNotFound = errors.New("actor not found")

	// ErrInvalidMessage indicates a control message whose kind and payload disagree.
	ErrInvalidMessage = errors.New("invalid control message")

	// ErrUnknownMessageKind is returned by codecs for an unknown message tag.
	ErrUnknownMessageKind = errors.New("unknown control message kind")

	// ErrNodeDeparted is returned when a message is addressed to a node that left the cluster.
	ErrNodeDeparted = errors.New("node has left the cluster")

	// ErrGridNotStarted is returned when an operation requires a started grid node.
	ErrGridNotStarted = errors.New("grid node is not started")

	// ErrGridStopped is used to fail pending requests when the grid node stops.
	ErrGridStopped = errors.New("grid node stopped")

	// ErrGridAlreadyStarted is returned by Start on a running grid node.
	ErrGridAlreadyStarted = errors.New("grid node already started")

	// ErrTransportClosed is returned by a transport that has been closed.
	ErrTransportClosed = errors.New("transport is closed")

	// ErrTransportNotBound is returned by a transport used before Bind.
	ErrTransportNotBound = errors.New("transport is not bound")

	// ErrUnreachable is returned by a transport that cannot reach the destination node.
	ErrUnreachable = errors.New("node is unreachable")
)

// NewRemoteError rebuilds an error received in an Answer.
// Well-known sentinels are restored so callers can use errors.Is.
func NewRemoteError(message string) error {
	for _, known := range []error{ErrActorNotFound, ErrRequestTimeout, ErrInvalidMessage, ErrGridStopped} {
		if message == known.Error() {
			return known
		}
	}
	return errors.New(message)
}
