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

package backends

import (
	"context"

	"github.com/FerretDB/polydoc/internal/util/observability"
	"github.com/FerretDB/polydoc/internal/util/resource"
)

// Provider is a generic interface for all backends for server-side providers.
//
// Provider registers its RPC handlers on the engine when it is created
// and deregisters them when it is closed or the engine is finalized.
// It owns the storage of all attached databases.
//
// Provider methods should be thread-safe.
//
// See providerContract and its methods for additional details.
type Provider interface {
	Config() string
	SetSecurityToken(ctx context.Context, token string) error
	Close()

	Capabilities() Capabilities
	Valid() bool
}

// providerContract implements Provider interface.
type providerContract struct {
	p     Provider
	token *resource.Token
}

// ProviderContract wraps Provider and enforces its contract.
//
// All backend implementations should use that function when they create new Provider instances.
//
// See providerContract and its methods for additional details.
func ProviderContract(p Provider) Provider {
	if _, ok := p.(*providerContract); ok {
		panic("provider is already wrapped")
	}

	pc := &providerContract{
		p:     p,
		token: resource.NewToken(),
	}
	resource.Track(pc, pc.token)

	return pc
}

// Config returns the effective provider configuration as JSON object text,
// including currently attached databases.
func (pc *providerContract) Config() string {
	return pc.p.Config()
}

// SetSecurityToken changes the token required by Admin operations.
// Empty token disables the check.
//
// It requires CapSecurityToken.
func (pc *providerContract) SetSecurityToken(ctx context.Context, token string) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err) }()

	err = pc.p.SetSecurityToken(ctx, token)

	return
}

// Close deregisters RPC handlers and closes all attached databases.
func (pc *providerContract) Close() {
	pc.p.Close()

	resource.Untrack(pc, pc.token)
}

// Capabilities implements Provider interface.
func (pc *providerContract) Capabilities() Capabilities {
	return pc.p.Capabilities()
}

// Valid implements Provider interface.
func (pc *providerContract) Valid() bool {
	return pc.p.Valid()
}

// check interfaces
var (
	_ Provider = (*providerContract)(nil)
)
