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
	"net/http"

	"go.uber.org/zap"

	"github.com/FerretDB/polydoc/internal/rpc"
)

// Engine is a transport endpoint used by handles to call providers and by providers to receive calls.
type Engine struct {
	e rpc.Engine
}

// LocalEngineOpts represents [NewLocalEngine] options.
type LocalEngineOpts struct {
	Logger *zap.Logger

	// Allows Admin.ShutdownServer to finalize this engine.
	EnableRemoteShutdown bool
}

// NewLocalEngine creates a new engine that could be called only from the same process.
// Its address has the form `local://<uuid>`.
//
// It should be finalized with [Engine.Finalize].
func NewLocalEngine(opts *LocalEngineOpts) *Engine {
	if opts == nil {
		opts = new(LocalEngineOpts)
	}

	l := opts.Logger
	if l == nil {
		l = logger
	}

	return &Engine{
		e: rpc.NewLocalEngine(&rpc.LocalEngineOpts{
			L:                    l,
			EnableRemoteShutdown: opts.EnableRemoteShutdown,
		}),
	}
}

// HTTPEngineOpts represents [NewHTTPEngine] options.
type HTTPEngineOpts struct {
	// TCP address to listen on, like "127.0.0.1:8080".
	// If empty, the engine could only make calls.
	ListenAddr string

	Logger *zap.Logger

	// Used for outgoing calls; http.DefaultClient if nil.
	Client *http.Client

	// Allows Admin.ShutdownServer to finalize this engine.
	EnableRemoteShutdown bool
}

// NewHTTPEngine creates a new engine that uses HTTP. Its address has the form `http://host:port`.
//
// It should be finalized with [Engine.Finalize].
func NewHTTPEngine(opts *HTTPEngineOpts) (*Engine, error) {
	if opts == nil {
		opts = new(HTTPEngineOpts)
	}

	l := opts.Logger
	if l == nil {
		l = logger
	}

	e, err := rpc.NewHTTPEngine(&rpc.HTTPEngineOpts{
		ListenAddr:           opts.ListenAddr,
		L:                    l,
		Client:               opts.Client,
		EnableRemoteShutdown: opts.EnableRemoteShutdown,
	})
	if err != nil {
		return nil, newError(err)
	}

	return &Engine{e: e}, nil
}

// valid returns true if the engine could be used by handles.
func (e *Engine) valid() bool {
	return e != nil && e.e != nil
}

// Address returns engine's own address; it is empty for engines that only make calls.
func (e *Engine) Address() string {
	return e.e.Self().Address()
}

// Lookup resolves the address.
func (e *Engine) Lookup(ctx context.Context, address string) (Endpoint, error) {
	ep, err := e.e.Lookup(ctx, address)
	if err != nil {
		return Endpoint{}, newError(err)
	}

	return Endpoint{ep: ep}, nil
}

// Finalize closes providers registered on the engine and stops it.
// It is safe to call it multiple times.
func (e *Engine) Finalize() {
	e.e.Finalize()
}

// Done returns a channel that is closed when the engine is finalized,
// for example, by [Admin.ShutdownServer].
func (e *Engine) Done() <-chan struct{} {
	return e.e.Done()
}

// Endpoint is a resolved engine address.
type Endpoint struct {
	ep rpc.Endpoint
}

// Address returns endpoint's address.
func (ep Endpoint) Address() string {
	return ep.ep.Address()
}

// ProviderHandle identifies a provider: a resolved endpoint and a provider id.
//
// The zero value is invalid.
type ProviderHandle struct {
	ph rpc.ProviderHandle
}

// NewProviderHandle returns a handle for the pre-resolved endpoint.
func NewProviderHandle(ep Endpoint, providerID uint16) ProviderHandle {
	return ProviderHandle{ph: rpc.NewProviderHandle(ep.ep, providerID)}
}

// Address returns provider's engine address.
func (ph ProviderHandle) Address() string {
	return ph.ph.Endpoint.Address()
}

// ProviderID returns provider id.
func (ph ProviderHandle) ProviderID() uint16 {
	return ph.ph.ProviderID
}

// Valid returns true if the handle has a resolved endpoint.
func (ph ProviderHandle) Valid() bool {
	return ph.ph.Valid()
}

// String implements fmt.Stringer interface.
func (ph ProviderHandle) String() string {
	return ph.ph.String()
}
