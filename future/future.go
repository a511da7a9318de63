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

// Package future provides the single-assignment handle returned to callers of
// a correlated request. The handle is completed later, usually from the
// goroutine that decoded the matching Answer.
package future

import (
	"context"
	"sync"
	"time"
)

// Future represents an answer payload which may not be available yet.
type Future interface {
	// Await blocks until the Future is completed or ctx is done and returns
	// either the answer payload or an error.
	Await(ctx context.Context) ([]byte, error)
	// AwaitTimeout is Await bounded by the given duration.
	AwaitTimeout(timeout time.Duration) ([]byte, error)
	// Done is closed once the Future is completed.
	Done() <-chan struct{}
	// Result returns the outcome when completed, nil otherwise. It never blocks.
	Result() *Result
}

// Completable is the writable side of a Future. Only the first call to
// Success or Failure has any effect.
type Completable interface {
	// Success completes the underlying Future with a value.
	Success([]byte)
	// Failure fails the underlying Future with an error.
	Failure(error)
	// Future returns the underlying Future.
	Future() Future
}

// New returns a Completable with its pending Future.
func New() Completable {
	return &future{done: make(chan struct{})}
}

// Completed returns a Future already completed with the given outcome.
func Completed(value []byte, err error) Future {
	c := New()
	if err != nil {
		c.Failure(err)
	} else {
		c.Success(value)
	}
	return c.Future()
}

type future struct {
	once   sync.Once
	done   chan struct{}
	result *Result
}

var (
	_ Future      = (*future)(nil)
	_ Completable = (*future)(nil)
)

func (x *future) complete(value []byte, err error) {
	x.once.Do(func() {
		x.result = &Result{success: value, failure: err}
		close(x.done)
	})
}

// Success completes the underlying Future with a given value.
func (x *future) Success(value []byte) {
	x.complete(value, nil)
}

// Failure fails the underlying Future with a given error.
func (x *future) Failure(err error) {
	x.complete(nil, err)
}

// Future returns the underlying Future.
func (x *future) Future() Future {
	return x
}

func (x *future) Done() <-chan struct{} {
	return x.done
}

func (x *future) Result() *Result {
	select {
	case <-x.done:
		return x.result
	default:
		return nil
	}
}

func (x *future) Await(ctx context.Context) ([]byte, error) {
	select {
	case <-x.done:
		return x.result.success, x.result.failure
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (x *future) AwaitTimeout(timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return x.Await(ctx)
}
