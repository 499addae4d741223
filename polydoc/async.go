// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package polydoc

import (
	"context"
	"sync"

	"github.com/FerretDB/polydoc/internal/util/async"
)

// Pool limits the number of concurrently running Async calls and provider's handlers.
type Pool struct {
	p *async.Pool
}

// NewPool creates a new pool with the given size.
// If size is zero or negative, 4 * GOMAXPROCS is used.
//
// It should be closed with [Pool.Close].
func NewPool(name string, size int) *Pool {
	return &Pool{
		p: async.NewPool(&async.NewPoolParams{
			Name: name,
			Size: size,
			L:    logger.Named("async"),
		}),
	}
}

// Size returns the maximal number of concurrently running tasks.
func (p *Pool) Size() int {
	return p.p.Size()
}

// Close waits for all submitted operations to finish.
func (p *Pool) Close() {
	p.p.Close()
}

// defaultPool is used by Client's handles without WithPool option.
// It is never closed.
var defaultPool = sync.OnceValue(func() *async.Pool {
	return async.NewPool(&async.NewPoolParams{
		Name: "client",
		L:    logger.Named("async"),
	})
})

// AsyncRequest is a handle to a submitted operation.
//
// The zero value is invalid.
// Copies refer to the same operation.
type AsyncRequest[T any] struct {
	t *async.Task[T]
}

// Wait blocks until the operation finishes and returns its result and error.
//
// It could be called any number of times; all calls return the same values.
func (r AsyncRequest[T]) Wait() (T, error) {
	if !r.Valid() {
		var zero T
		return zero, invalidHandle("async request")
	}

	res, err := r.t.Result()
	if err != nil {
		var zero T
		return zero, newError(err)
	}

	return res, nil
}

// Completed returns true if the operation finished. It never blocks.
func (r AsyncRequest[T]) Completed() bool {
	return r.t.Completed()
}

// Valid returns true if the request refers to a submitted operation.
func (r AsyncRequest[T]) Valid() bool {
	return r.t.Valid()
}

// op is a prepared operation that could be called or submitted.
//
// Arguments are validated and normalized when op is created,
// so they fail the same way in both shapes.
type op[T any] struct {
	f   func(ctx context.Context) (T, error)
	err error
}

// failed returns an op that fails with the given error.
func failed[T any](err error) op[T] {
	return op[T]{err: newError(err)}
}

// call runs the operation and waits for it.
func (o op[T]) call(ctx context.Context) (T, error) {
	var zero T

	if o.err != nil {
		return zero, o.err
	}

	res, err := o.f(ctx)
	if err != nil {
		return zero, newError(err)
	}

	return res, nil
}

// submit submits the operation to the pool.
func (o op[T]) submit(ctx context.Context, p *async.Pool) AsyncRequest[T] {
	if o.err != nil {
		var zero T
		return AsyncRequest[T]{t: async.Done(zero, o.err)}
	}

	return AsyncRequest[T]{t: async.Go(ctx, p, o.f)}
}
