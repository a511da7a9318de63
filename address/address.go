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

// Package address defines how nodes and virtual actors are identified in the grid.
//
// A virtual actor is addressed by its logical identity only: a unique id plus
// the kind (type descriptor) used to create it. The canonical textual form is
//
//	lattice://<kind>/<id>
//
// The node owning an actor is never part of its address; placement is decided
// by the hash ring at send time.
package address

import (
	"errors"
	"strings"

	"github.com/tochemey/lattice/internal/validation"
)

const scheme = "lattice"

var (
	// ErrInvalidAddress is returned by Parse for malformed input.
	ErrInvalidAddress = errors.New("address format is invalid")
	// ErrInvalidKind is returned when the kind contains forbidden characters.
	ErrInvalidKind = errors.New("kind must contain only word characters (i.e. [a-zA-Z0-9] plus non-leading '-', '_' or '.')")
)

const kindPattern = "^[a-zA-Z0-9][a-zA-Z0-9-_\\.]*$"

// Address is the immutable logical identity of a virtual actor.
// The zero value means "no sender".
type Address struct {
	id   string
	kind string
}

var _ validation.Validator = Address{}

// New creates an Address. It does not validate its input; call Validate.
func New(id, kind string) Address {
	return Address{id: id, kind: kind}
}

// NoSender returns the zero Address.
func NoSender() Address {
	return Address{}
}

// ID returns the logical id of the actor.
func (x Address) ID() string {
	return x.id
}

// Kind returns the type descriptor of the actor.
func (x Address) Kind() string {
	return x.kind
}

// IsZero reports whether x is the "no sender" address.
func (x Address) IsZero() bool {
	return x.id == "" && x.kind == ""
}

// Equals reports whether x and y identify the same actor.
func (x Address) Equals(y Address) bool {
	return x.id == y.id && x.kind == y.kind
}

// String returns the canonical form lattice://<kind>/<id>.
func (x Address) String() string {
	if x.IsZero() {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(scheme) + len(x.kind) + len(x.id) + 4)
	sb.WriteString(scheme)
	sb.WriteString("://")
	sb.WriteString(x.kind)
	sb.WriteByte('/')
	sb.WriteString(x.id)
	return sb.String()
}

// Key returns the bytes the hash ring hashes to place the actor.
func (x Address) Key() []byte {
	return []byte(x.kind + "/" + x.id)
}

// Validate checks that both the id and the kind are set and that the kind is well formed.
// The zero address is valid.
func (x Address) Validate() error {
	if x.IsZero() {
		return nil
	}
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("id", x.id)).
		AddValidator(validation.NewEmptyStringValidator("kind", x.kind)).
		AddAssertion(len(x.id) <= 255, "actor id is too long. Maximum length is 255").
		AddValidator(validation.NewPatternValidator(kindPattern, x.kind, ErrInvalidKind)).
		Validate()
}

// Parse parses the canonical form produced by String. The id may contain '/'.
func Parse(s string) (Address, error) {
	if s == "" {
		return Address{}, errors.New("address is required")
	}
	schemePart, rest, ok := strings.Cut(s, "://")
	if !ok || schemePart != scheme {
		return Address{}, ErrInvalidAddress
	}
	kind, id, ok := strings.Cut(rest, "/")
	if !ok || kind == "" || id == "" {
		return Address{}, ErrInvalidAddress
	}
	return New(id, kind), nil
}
