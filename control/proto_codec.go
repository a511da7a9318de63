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

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tochemey/lattice/address"
	gerrors "github.com/tochemey/lattice/errors"
)

// field numbers of the protobuf wire layout
//
//	message Address { string id = 1; string kind = 2; }
//	message Start   { Address receiver = 1; Address sender = 2; string kind = 3; bytes parameters = 4; string correlation_id = 5; }
//	message Deliver { Address receiver = 1; Address sender = 2; string method = 3; bytes parameters = 4; string correlation_id = 5; }
//	message Answer  { string correlation_id = 1; bytes result = 2; string error = 3; }
//	message Message { uint32 kind = 1; string receiver = 2; string sender = 3; Start start = 4; Deliver deliver = 5; Answer answer = 6; }
const (
	fieldMessageKind     protowire.Number = 1
	fieldMessageReceiver protowire.Number = 2
	fieldMessageSender   protowire.Number = 3
	fieldMessageStart    protowire.Number = 4
	fieldMessageDeliver  protowire.Number = 5
	fieldMessageAnswer   protowire.Number = 6

	fieldAddressID   protowire.Number = 1
	fieldAddressKind protowire.Number = 2

	fieldCallReceiver      protowire.Number = 1
	fieldCallSender        protowire.Number = 2
	fieldCallName          protowire.Number = 3
	fieldCallParameters    protowire.Number = 4
	fieldCallCorrelationID protowire.Number = 5

	fieldAnswerCorrelationID protowire.Number = 1
	fieldAnswerResult        protowire.Number = 2
	fieldAnswerError         protowire.Number = 3
)

// ProtoCodec encodes messages in the protobuf binary wire format without
// generated code. Peers written against the schema above can read it.
type ProtoCodec struct{}

var _ Codec = (*ProtoCodec)(nil)

// NewProtoCodec creates a ProtoCodec.
func NewProtoCodec() *ProtoCodec {
	return &ProtoCodec{}
}

// Encode implements Codec.
func (c *ProtoCodec) Encode(message *Message) ([]byte, error) {
	if err := message.Validate(); err != nil {
		return nil, err
	}

	b := make([]byte, 0, 64)
	b = protowire.AppendTag(b, fieldMessageKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(message.Kind))
	b = appendString(b, fieldMessageReceiver, string(message.Receiver))
	b = appendString(b, fieldMessageSender, string(message.Sender))

	switch message.Kind {
	case KindStart:
		s := message.Start
		b = appendEmbedded(b, fieldMessageStart, appendCall(nil, s.Receiver, s.Sender, s.Kind, s.Parameters, s.CorrelationID))
	case KindDeliver:
		d := message.Deliver
		b = appendEmbedded(b, fieldMessageDeliver, appendCall(nil, d.Receiver, d.Sender, d.Method, d.Parameters, d.CorrelationID))
	case KindAnswer:
		a := message.Answer
		var inner []byte
		inner = appendString(inner, fieldAnswerCorrelationID, a.CorrelationID)
		inner = appendBytes(inner, fieldAnswerResult, a.Result)
		inner = appendString(inner, fieldAnswerError, a.Error)
		b = appendEmbedded(b, fieldMessageAnswer, inner)
	}
	return b, nil
}

// Decode implements Codec.
func (c *ProtoCodec) Decode(payload []byte) (*Message, error) {
	if len(payload) == 0 {
		return nil, ErrMalformedPayload
	}

	message := new(Message)
	err := consumeFields(payload, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldMessageKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return n, nil
			}
			message.Kind = Kind(v)
			return n, nil
		case num == fieldMessageReceiver && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			message.Receiver = address.NodeID(v)
			return n, nil
		case num == fieldMessageSender && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			message.Sender = address.NodeID(v)
			return n, nil
		case num == fieldMessageStart && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			call, err := consumeCall(v)
			if err != nil {
				return 0, err
			}
			message.Start = &Start{
				Receiver:      call.receiver,
				Sender:        call.sender,
				Kind:          call.name,
				Parameters:    call.parameters,
				CorrelationID: call.correlationID,
			}
			return n, nil
		case num == fieldMessageDeliver && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			call, err := consumeCall(v)
			if err != nil {
				return 0, err
			}
			message.Deliver = &Deliver{
				Receiver:      call.receiver,
				Sender:        call.sender,
				Method:        call.name,
				Parameters:    call.parameters,
				CorrelationID: call.correlationID,
			}
			return n, nil
		case num == fieldMessageAnswer && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			answer, err := consumeAnswer(v)
			if err != nil {
				return 0, err
			}
			message.Answer = answer
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return nil, err
	}

	if message.Kind < KindStart || message.Kind > KindAnswer {
		return nil, gerrors.ErrUnknownMessageKind
	}
	if err := message.Validate(); err != nil {
		return nil, err
	}
	return message, nil
}

type call struct {
	receiver      address.Address
	sender        address.Address
	name          string
	parameters    []byte
	correlationID string
}

func appendCall(b []byte, receiver, sender address.Address, name string, parameters []byte, correlationID string) []byte {
	if !receiver.IsZero() {
		b = appendEmbedded(b, fieldCallReceiver, appendAddress(nil, receiver))
	}
	if !sender.IsZero() {
		b = appendEmbedded(b, fieldCallSender, appendAddress(nil, sender))
	}
	b = appendString(b, fieldCallName, name)
	b = appendBytes(b, fieldCallParameters, parameters)
	b = appendString(b, fieldCallCorrelationID, correlationID)
	return b
}

func consumeCall(payload []byte) (*call, error) {
	out := new(call)
	err := consumeFields(payload, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		switch num {
		case fieldCallReceiver:
			addr, err := consumeAddress(v)
			if err != nil {
				return 0, err
			}
			out.receiver = addr
		case fieldCallSender:
			addr, err := consumeAddress(v)
			if err != nil {
				return 0, err
			}
			out.sender = addr
		case fieldCallName:
			out.name = string(v)
		case fieldCallParameters:
			out.parameters = cloneBytes(v)
		case fieldCallCorrelationID:
			out.correlationID = string(v)
		}
		return n, nil
	})
	return out, err
}

func appendAddress(b []byte, addr address.Address) []byte {
	b = appendString(b, fieldAddressID, addr.ID())
	return appendString(b, fieldAddressKind, addr.Kind())
}

func consumeAddress(payload []byte) (address.Address, error) {
	var id, kind string
	err := consumeFields(payload, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeString(b)
		switch num {
		case fieldAddressID:
			id = v
		case fieldAddressKind:
			kind = v
		}
		return n, nil
	})
	if err != nil {
		return address.Address{}, err
	}
	return address.New(id, kind), nil
}

func consumeAnswer(payload []byte) (*Answer, error) {
	answer := new(Answer)
	err := consumeFields(payload, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeBytes(b)
		switch num {
		case fieldAnswerCorrelationID:
			answer.CorrelationID = string(v)
		case fieldAnswerResult:
			answer.Result = cloneBytes(v)
		case fieldAnswerError:
			answer.Error = string(v)
		}
		return n, nil
	})
	return answer, err
}

// consumeFields walks every field of payload. The callback consumes the value
// starting at b and returns the number of bytes read, negative on failure.
func consumeFields(payload []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, protowire.ParseError(n))
		}
		payload = payload[n:]

		m, err := fn(num, typ, payload)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, protowire.ParseError(m))
		}
		payload = payload[m:]
	}
	return nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendEmbedded(b []byte, num protowire.Number, inner []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func cloneBytes(v []byte) []byte {
	if len(v) == 0 {
		return nil
	}
	return append([]byte(nil), v...)
}
