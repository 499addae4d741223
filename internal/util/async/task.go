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

package async

// Operation is a handle to an in-flight or completed background operation.
type Operation interface {
	// Wait blocks until the operation finishes and returns its error.
	// It could be called any number of times.
	Wait() error

	// Completed returns true if the operation finished. It never blocks.
	Completed() bool

	// Valid returns true if the handle refers to a submitted operation.
	Valid() bool
}

// Task represents a single background computation submitted with [Go].
//
// Result and error are written once before done is closed,
// so they are safe to read after that without additional synchronization.
type Task[T any] struct {
	done chan struct{}
	res  T
	err  error
}

// Done returns a new task that is already completed with the given result and error.
func Done[T any](res T, err error) *Task[T] {
	t := &Task[T]{
		done: make(chan struct{}),
		res:  res,
		err:  err,
	}
	close(t.done)

	return t
}

// Result blocks until the task finishes and returns its result and error.
//
// It could be called any number of times from any number of goroutines;
// all calls return the same values.
func (t *Task[T]) Result() (T, error) {
	<-t.done
	return t.res, t.err
}

// Wait implements [Operation].
func (t *Task[T]) Wait() error {
	_, err := t.Result()
	return err
}

// Completed implements [Operation].
func (t *Task[T]) Completed() bool {
	if t == nil || t.done == nil {
		return false
	}

	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Valid implements [Operation].
func (t *Task[T]) Valid() bool {
	return t != nil && t.done != nil
}

// check interfaces
var (
	_ Operation = (*Task[int])(nil)
)
