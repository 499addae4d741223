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
	"go.uber.org/zap"
)

// Option changes the behavior of a single call or a constructor.
//
// Options that do not apply to the call are ignored.
type Option func(*options)

// options represents all options.
type options struct {
	commit bool
	typ    string
	token  string
	l      *zap.Logger
	pool   *Pool
}

// newOptions applies options.
func newOptions(opts []Option) *options {
	o := &options{
		l: logger,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// WithCommit makes a write operation flush changes to durable storage before returning.
func WithCommit() Option {
	return func(o *options) {
		o.commit = true
	}
}

// WithType sets the database type for CreateDatabase and AttachDatabase.
// Without it, the backend's default type is used.
func WithType(typ string) Option {
	return func(o *options) {
		o.typ = typ
	}
}

// WithToken sets the security token for Admin operations.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithLogger sets the logger for constructors.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.l = l
	}
}

// WithPool sets the pool that runs Async calls of Client's handles.
//
// It should not be the pool used by a provider of the same engine:
// async calls waiting for provider's handlers could exhaust it.
func WithPool(p *Pool) Option {
	return func(o *options) {
		o.pool = p
	}
}
