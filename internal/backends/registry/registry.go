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

// Package registry provides a registry of backends.
//
// Backends are registered by init functions of files that are excluded by build tags,
// so it is possible to build polydoc without some backends and their dependencies.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/rpc"
	"github.com/FerretDB/polydoc/internal/util/async"
)

// NewOpts represents configuration for constructing Admin and Client.
type NewOpts struct {
	Engine rpc.Engine
	Logger *zap.Logger
}

// NewProviderOpts represents configuration for constructing Provider.
type NewProviderOpts struct {
	Engine     rpc.Engine
	Pool       *async.Pool
	ProviderID uint16
	Config     json.RawMessage
	Logger     *zap.Logger
}

// backend contains constructors of a single backend.
type backend struct {
	newAdmin    func(opts *NewOpts) backends.Admin
	newClient   func(opts *NewOpts) backends.Client
	newProvider func(ctx context.Context, opts *NewProviderOpts) (backends.Provider, error)
}

// registry maps backend names to constructors.
//
// The values must be set through the init() functions of the corresponding files
// so that we can control which backends will be included in the build with build tags.
// Nil values are used for known backends that were excluded.
var registry = map[string]*backend{}

var (
	// ErrUnknownBackend is returned for unknown backend names.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrUnavailableBackend is returned for known backends that are not included in the build.
	ErrUnavailableBackend = errors.New("unavailable backend")
)

// backendError is returned by lookup.
type backendError struct {
	name string
	err  error
}

// Error implements error interface.
func (e *backendError) Error() string {
	if e.err == ErrUnavailableBackend {
		return fmt.Sprintf("backend %q is not available in this build", e.name)
	}

	return fmt.Sprintf("unknown backend %q", e.name)
}

// Unwrap returns ErrUnknownBackend or ErrUnavailableBackend.
func (e *backendError) Unwrap() error {
	return e.err
}

// lookup returns the backend with the given name.
func lookup(name string) (*backend, error) {
	b, ok := registry[name]

	switch {
	case !ok:
		return nil, &backendError{name: name, err: ErrUnknownBackend}
	case b == nil:
		return nil, &backendError{name: name, err: ErrUnavailableBackend}
	default:
		return b, nil
	}
}

// logger returns a named logger for the backend.
func logger(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		l = zap.NewNop()
	}

	return l.Named(name)
}

// NewAdmin constructs a new Admin for the given backend.
func NewAdmin(name string, opts *NewOpts) (backends.Admin, error) {
	b, err := lookup(name)
	if err != nil {
		return nil, err
	}

	return b.newAdmin(opts), nil
}

// NewClient constructs a new Client for the given backend.
func NewClient(name string, opts *NewOpts) (backends.Client, error) {
	b, err := lookup(name)
	if err != nil {
		return nil, err
	}

	return b.newClient(opts), nil
}

// NewProvider constructs a new Provider for the given backend and registers its RPC handlers on the engine.
func NewProvider(ctx context.Context, name string, opts *NewProviderOpts) (backends.Provider, error) {
	b, err := lookup(name)
	if err != nil {
		return nil, err
	}

	return b.newProvider(ctx, opts)
}

// Backends returns the names of available backends.
func Backends() []string {
	var res []string

	for _, name := range maps.Keys(registry) {
		if registry[name] != nil {
			res = append(res, name)
		}
	}

	slices.Sort(res)

	return res
}
