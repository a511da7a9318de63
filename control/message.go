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

// Package control defines the messages nodes of the grid exchange and the
// codecs that put them on the wire.
//
// Three messages exist: Start asks the owner node to create a virtual actor,
// Deliver routes a method invocation to an actor and Answer carries the
// response of a correlated Start or Deliver back to the caller.
package control

import (
	"fmt"

	"github.com/tochemey/lattice/address"
	gerrors "github.com/tochemey/lattice/errors"
)

// Kind tags the payload carried by a Message.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindStart
	KindDeliver
	KindAnswer
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindDeliver:
		return "deliver"
	case KindAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

// Start requests the creation of the actor at Receiver on its owner node.
type Start struct {
	Receiver      address.Address
	Sender        address.Address
	Kind          string
	Parameters    []byte
	CorrelationID string
}

// Deliver routes a method invocation to the actor at Receiver.
type Deliver struct {
	Receiver      address.Address
	Sender        address.Address
	Method        string
	Parameters    []byte
	CorrelationID string
}

// Answer completes the pending request identified by CorrelationID.
// A non-empty Error means the request failed.
type Answer struct {
	CorrelationID string
	Result        []byte
	Error         string
}

// Message is the envelope exchanged between nodes. Exactly one of
// Start, Deliver and Answer is set, as told by Kind.
type Message struct {
	Kind     Kind
	Receiver address.NodeID
	Sender   address.NodeID
	Start    *Start
	Deliver  *Deliver
	Answer   *Answer
}

// NewStart wraps a Start addressed to the receiver node.
func NewStart(receiver, sender address.NodeID, start *Start) *Message {
	return &Message{Kind: KindStart, Receiver: receiver, Sender: sender, Start: start}
}

// NewDeliver wraps a Deliver addressed to the receiver node.
func NewDeliver(receiver, sender address.NodeID, deliver *Deliver) *Message {
	return &Message{Kind: KindDeliver, Receiver: receiver, Sender: sender, Deliver: deliver}
}

// NewAnswer wraps an Answer addressed to the receiver node.
func NewAnswer(receiver, sender address.NodeID, answer *Answer) *Message {
	return &Message{Kind: KindAnswer, Receiver: receiver, Sender: sender, Answer: answer}
}

// Correlated reports whether the message expects an Answer.
func (m *Message) Correlated() bool {
	switch m.Kind {
	case KindStart:
		return m.Start != nil && m.Start.CorrelationID != ""
	case KindDeliver:
		return m.Deliver != nil && m.Deliver.CorrelationID != ""
	default:
		return false
	}
}

// CorrelationID returns the correlation id carried by the payload, if any.
func (m *Message) CorrelationID() string {
	switch {
	case m.Kind == KindStart && m.Start != nil:
		return m.Start.CorrelationID
	case m.Kind == KindDeliver && m.Deliver != nil:
		return m.Deliver.CorrelationID
	case m.Kind == KindAnswer && m.Answer != nil:
		return m.Answer.CorrelationID
	default:
		return ""
	}
}

// Validate checks that the payload agrees with the kind and that the
// addressing fields are set.
func (m *Message) Validate() error {
	if m == nil {
		return gerrors.ErrInvalidMessage
	}

	if m.Receiver.IsZero() || m.Sender.IsZero() {
		return fmt.Errorf("%w: receiver and sender nodes are required", gerrors.ErrInvalidMessage)
	}

	set := 0
	for _, present := range []bool{m.Start != nil, m.Deliver != nil, m.Answer != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: %d payloads set", gerrors.ErrInvalidMessage, set)
	}

	switch m.Kind {
	case KindStart:
		if m.Start == nil {
			return fmt.Errorf("%w: start payload missing", gerrors.ErrInvalidMessage)
		}
		if m.Start.Receiver.IsZero() || m.Start.Kind == "" {
			return fmt.Errorf("%w: start requires an address and a kind", gerrors.ErrInvalidMessage)
		}
		return m.Start.Receiver.Validate()
	case KindDeliver:
		if m.Deliver == nil {
			return fmt.Errorf("%w: deliver payload missing", gerrors.ErrInvalidMessage)
		}
		if m.Deliver.Receiver.IsZero() {
			return fmt.Errorf("%w: deliver requires a receiver", gerrors.ErrInvalidMessage)
		}
		return m.Deliver.Receiver.Validate()
	case KindAnswer:
		if m.Answer == nil {
			return fmt.Errorf("%w: answer payload missing", gerrors.ErrInvalidMessage)
		}
		if m.Answer.CorrelationID == "" {
			return fmt.Errorf("%w: answer without correlation id", gerrors.ErrInvalidMessage)
		}
		return nil
	default:
		return gerrors.ErrUnknownMessageKind
	}
}
