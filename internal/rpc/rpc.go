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

// Package rpc provides transports for calls between clients and providers.
//
// # Design principles
//
//  1. Engine is the only thing backends know about the transport.
//     Backends register named handlers for their provider id and call remote handlers by name.
//  2. Requests and responses are always JSON-encoded, even for in-process calls,
//     so that all engines share the same semantics (copies, encoding errors, number precision).
//  3. Errors returned by handlers cross the transport as [*Error] values with a numeric code.
//     Negative codes are reserved for transport errors; non-negative codes belong to backends.
//  4. Tracing context is propagated with every call.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// Engine represents a transport endpoint: it can call remote providers and host local ones.
//
// Engine implementations are safe for concurrent use.
type Engine interface {
	// Self returns the engine's own endpoint.
	// It is zero for client-only engines.
	Self() Endpoint

	// Lookup resolves an address to a reusable endpoint.
	Lookup(ctx context.Context, address string) (Endpoint, error)

	// Call calls the named handler of the given provider.
	// Req is encoded to JSON, the response is decoded into resp (if not nil).
	// Errors returned by the remote handler are returned as *Error.
	Call(ctx context.Context, ph ProviderHandle, name string, req, resp any) error

	// Register registers a handler for the given provider id and name.
	Register(providerID uint16, name string, h Handler) error

	// Deregister removes a handler. It is a no-op if there is no such handler.
	Deregister(providerID uint16, name string)

	// ShutdownRemote asks the remote engine to finalize itself.
	ShutdownRemote(ctx context.Context, ep Endpoint) error

	// OnFinalize adds a function that is called when the engine is finalized.
	// Functions are called in reverse order.
	OnFinalize(f func())

	// Finalize stops the engine. It is safe to call it multiple times.
	Finalize()

	// Done returns a channel that is closed when the engine is finalized.
	Done() <-chan struct{}
}

// Handler handles a single RPC call.
//
// The returned value is encoded to JSON.
type Handler func(ctx context.Context, req json.RawMessage) (any, error)

// Endpoint is a resolved engine address.
//
// The zero value is not a valid endpoint.
type Endpoint struct {
	addr string
}

// Address returns endpoint's address.
func (ep Endpoint) Address() string {
	return ep.addr
}

// IsZero returns true for the zero value.
func (ep Endpoint) IsZero() bool {
	return ep.addr == ""
}

// String implements [fmt.Stringer].
func (ep Endpoint) String() string {
	return ep.addr
}

// ProviderHandle is a resolved reference to a provider: an endpoint and a provider id.
type ProviderHandle struct {
	Endpoint   Endpoint
	ProviderID uint16
}

// NewProviderHandle returns a new provider handle.
func NewProviderHandle(ep Endpoint, providerID uint16) ProviderHandle {
	return ProviderHandle{
		Endpoint:   ep,
		ProviderID: providerID,
	}
}

// Valid returns true if the handle has a non-zero endpoint.
func (ph ProviderHandle) Valid() bool {
	return !ph.Endpoint.IsZero()
}

// String implements [fmt.Stringer].
func (ph ProviderHandle) String() string {
	return fmt.Sprintf("%s#%d", ph.Endpoint.addr, ph.ProviderID)
}
