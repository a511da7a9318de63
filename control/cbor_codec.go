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

package control

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/tochemey/lattice/address"
	gerrors "github.com/tochemey/lattice/errors"
)

var (
	cborEncOpts = cbor.EncOptions{
		Sort:        cbor.SortNone,
		IndefLength: cbor.IndefLengthForbidden,
	}
	cborDecOpts = cbor.DecOptions{
		MaxNestedLevels:   16,
		IndefLength:       cbor.IndefLengthForbidden,
		UTF8:              cbor.UTF8RejectInvalid,
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}
)

type cborAddress struct {
	ID   string `cbor:"1,keyasint,omitempty"`
	Kind string `cbor:"2,keyasint,omitempty"`
}

type cborCall struct {
	Receiver      *cborAddress `cbor:"1,keyasint,omitempty"`
	Sender        *cborAddress `cbor:"2,keyasint,omitempty"`
	Name          string       `cbor:"3,keyasint,omitempty"`
	Parameters    []byte       `cbor:"4,keyasint,omitempty"`
	CorrelationID string       `cbor:"5,keyasint,omitempty"`
}

type cborAnswer struct {
	CorrelationID string `cbor:"1,keyasint,omitempty"`
	Result        []byte `cbor:"2,keyasint,omitempty"`
	Error         string `cbor:"3,keyasint,omitempty"`
}

type cborMessage struct {
	Kind     uint8       `cbor:"1,keyasint"`
	Receiver string      `cbor:"2,keyasint,omitempty"`
	Sender   string      `cbor:"3,keyasint,omitempty"`
	Start    *cborCall   `cbor:"4,keyasint,omitempty"`
	Deliver  *cborCall   `cbor:"5,keyasint,omitempty"`
	Answer   *cborAnswer `cbor:"6,keyasint,omitempty"`
}

// CBORCodec encodes messages as CBOR maps keyed by small integers.
// It is stateless and safe for concurrent use.
type CBORCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

var _ Codec = (*CBORCodec)(nil)

// NewCBORCodec creates a CBORCodec.
func NewCBORCodec() *CBORCodec {
	encMode, _ := cborEncOpts.EncMode()
	decMode, _ := cborDecOpts.DecMode()
	return &CBORCodec{encMode: encMode, decMode: decMode}
}

// Encode implements Codec.
func (c *CBORCodec) Encode(message *Message) ([]byte, error) {
	if err := message.Validate(); err != nil {
		return nil, err
	}

	wire := &cborMessage{
		Kind:     uint8(message.Kind),
		Receiver: string(message.Receiver),
		Sender:   string(message.Sender),
	}
	switch message.Kind {
	case KindStart:
		s := message.Start
		wire.Start = toCBORCall(s.Receiver, s.Sender, s.Kind, s.Parameters, s.CorrelationID)
	case KindDeliver:
		d := message.Deliver
		wire.Deliver = toCBORCall(d.Receiver, d.Sender, d.Method, d.Parameters, d.CorrelationID)
	case KindAnswer:
		a := message.Answer
		wire.Answer = &cborAnswer{CorrelationID: a.CorrelationID, Result: a.Result, Error: a.Error}
	}

	bytea, err := c.encMode.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("control: failed to encode %s message: %w", message.Kind, err)
	}
	return bytea, nil
}

// Decode implements Codec.
func (c *CBORCodec) Decode(payload []byte) (*Message, error) {
	if len(payload) == 0 {
		return nil, ErrMalformedPayload
	}

	wire := new(cborMessage)
	if err := c.decMode.Unmarshal(payload, wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	message := &Message{
		Kind:     Kind(wire.Kind),
		Receiver: address.NodeID(wire.Receiver),
		Sender:   address.NodeID(wire.Sender),
	}
	if message.Kind < KindStart || message.Kind > KindAnswer {
		return nil, gerrors.ErrUnknownMessageKind
	}

	if wire.Start != nil {
		message.Start = &Start{
			Receiver:      fromCBORAddress(wire.Start.Receiver),
			Sender:        fromCBORAddress(wire.Start.Sender),
			Kind:          wire.Start.Name,
			Parameters:    wire.Start.Parameters,
			CorrelationID: wire.Start.CorrelationID,
		}
	}
	if wire.Deliver != nil {
		message.Deliver = &Deliver{
			Receiver:      fromCBORAddress(wire.Deliver.Receiver),
			Sender:        fromCBORAddress(wire.Deliver.Sender),
			Method:        wire.Deliver.Name,
			Parameters:    wire.Deliver.Parameters,
			CorrelationID: wire.Deliver.CorrelationID,
		}
	}
	if wire.Answer != nil {
		message.Answer = &Answer{
			CorrelationID: wire.Answer.CorrelationID,
			Result:        wire.Answer.Result,
			Error:         wire.Answer.Error,
		}
	}

	if err := message.Validate(); err != nil {
		return nil, err
	}
	return message, nil
}

func toCBORCall(receiver, sender address.Address, name string, parameters []byte, correlationID string) *cborCall {
	return &cborCall{
		Receiver:      toCBORAddress(receiver),
		Sender:        toCBORAddress(sender),
		Name:          name,
		Parameters:    parameters,
		CorrelationID: correlationID,
	}
}

func toCBORAddress(addr address.Address) *cborAddress {
	if addr.IsZero() {
		return nil
	}
	return &cborAddress{ID: addr.ID(), Kind: addr.Kind()}
}

func fromCBORAddress(addr *cborAddress) address.Address {
	if addr == nil {
		return address.NoSender()
	}
	return address.New(addr.ID, addr.Kind)
}
