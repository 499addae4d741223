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

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/backends/registry"
	"github.com/FerretDB/polydoc/internal/util/async"
)

// Client opens databases.
//
// The zero value is invalid.
type Client struct {
	c    backends.Client
	e    *Engine
	pool *async.Pool
}

// NewClient creates a new Client for the given backend name.
//
// WithLogger and WithPool options are used.
func NewClient(e *Engine, backend string, opts ...Option) (Client, error) {
	if !e.valid() {
		return Client{}, invalidHandle("engine")
	}

	o := newOptions(opts)

	c, err := registry.NewClient(backend, &registry.NewOpts{
		Engine: e.e,
		Logger: o.l,
	})
	if err != nil {
		return Client{}, newError(err)
	}

	pool := defaultPool()
	if o.pool != nil {
		pool = o.pool.p
	}

	return Client{
		c:    c,
		e:    e,
		pool: pool,
	}, nil
}

// Valid returns true if the handle is usable.
func (c Client) Valid() bool {
	return c.c != nil && c.c.Valid()
}

// Supports returns true if the backend supports the given capability.
func (c Client) Supports(capability Capability) bool {
	return c.c != nil && supports(c.c.Capabilities(), capability)
}

// Engine returns client's engine.
func (c Client) Engine() *Engine {
	return c.e
}

// CreateProviderHandle resolves the address and returns a handle for the provider.
func (c Client) CreateProviderHandle(ctx context.Context, address string, providerID uint16) (ProviderHandle, error) {
	if !c.Valid() {
		return ProviderHandle{}, invalidHandle("client")
	}

	ph, err := c.c.CreateProviderHandle(ctx, address, providerID)
	if err != nil {
		return ProviderHandle{}, newError(err)
	}

	return ProviderHandle{ph: ph}, nil
}

// Open returns a handle for the database.
//
// If check is true, the provider is asked whether the database exists.
// Otherwise, no remote calls are made, and missing database is reported by operations.
func (c Client) Open(ctx context.Context, address string, providerID uint16, name string, check bool) (Database, error) {
	ph, err := c.CreateProviderHandle(ctx, address, providerID)
	if err != nil {
		return Database{}, err
	}

	return c.OpenHandle(ctx, ph, name, check)
}

// OpenHandle is the same as Open for the pre-resolved provider handle.
func (c Client) OpenHandle(ctx context.Context, ph ProviderHandle, name string, check bool) (Database, error) {
	if !c.Valid() {
		return Database{}, invalidHandle("client")
	}

	db, err := c.c.Open(ctx, &backends.OpenParams{
		Handle: ph.ph,
		Name:   name,
		Check:  check,
	})
	if err != nil {
		return Database{}, newError(err)
	}

	return Database{d: db, pool: c.pool}, nil
}
