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

// Provider serves databases of a single backend on the engine under the provider id.
//
// The zero value is invalid.
type Provider struct {
	p backends.Provider
}

// NewProvider creates a new provider and registers its handlers on the engine.
//
// Config is the provider configuration as a JSON object; nil means `{}`.
// Handlers run on the given pool; if it is nil, a new pool is created and closed when the engine is finalized.
// The provider is closed when the engine is finalized, if it was not closed before.
//
// WithLogger option is used.
func NewProvider(ctx context.Context, e *Engine, backend string, providerID uint16, config any, pool *Pool, opts ...Option) (Provider, error) {
	if !e.valid() {
		return Provider{}, invalidHandle("engine")
	}

	c, err := normalizeConfig(config)
	if err != nil {
		return Provider{}, err
	}

	o := newOptions(opts)

	var p *async.Pool
	if pool != nil {
		p = pool.p
	} else {
		p = async.NewPool(&async.NewPoolParams{
			Name: backend,
			L:    o.l.Named("async"),
		})

		// registered first to be called last, after provider's Close
		e.e.OnFinalize(p.Close)
	}

	bp, err := registry.NewProvider(ctx, backend, &registry.NewProviderOpts{
		Engine:     e.e,
		Pool:       p,
		ProviderID: providerID,
		Config:     c,
		Logger:     o.l,
	})
	if err != nil {
		return Provider{}, newError(err)
	}

	return Provider{p: bp}, nil
}

// Valid returns true if the handle is usable.
func (p Provider) Valid() bool {
	return p.p != nil && p.p.Valid()
}

// Supports returns true if the backend supports the given capability.
func (p Provider) Supports(c Capability) bool {
	return p.p != nil && supports(p.p.Capabilities(), c)
}

// Config returns the effective configuration as JSON object text,
// including attached databases. The security token is not included.
func (p Provider) Config() (string, error) {
	if !p.Valid() {
		return "", invalidHandle("provider")
	}

	return p.p.Config(), nil
}

// SetSecurityToken sets the token that is required for database management calls.
// Empty token disables the check.
//
// It requires [CapSecurityToken].
func (p Provider) SetSecurityToken(ctx context.Context, token string) error {
	if !p.Valid() {
		return invalidHandle("provider")
	}

	return newError(p.p.SetSecurityToken(ctx, token))
}

// Close deregisters handlers and closes all databases.
// Subsequent calls do nothing.
func (p Provider) Close() {
	if p.p == nil {
		return
	}

	p.p.Close()
}
