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

	"github.com/FerretDB/polydoc/internal/rpc"
	"github.com/FerretDB/polydoc/internal/util/observability"
)

// Client is a generic interface for all backends for opening databases of remote providers.
//
// Client object is stateless; it only holds an RPC engine.
// Client methods should be thread-safe.
//
// See clientContract and its methods for additional details.
type Client interface {
	Open(context.Context, *OpenParams) (Database, error)
	CreateProviderHandle(ctx context.Context, address string, providerID uint16) (rpc.ProviderHandle, error)
	Engine() rpc.Engine

	Capabilities() Capabilities
	Valid() bool
}

// clientContract implements Client interface.
type clientContract struct {
	c Client
}

// ClientContract wraps Client and enforces its contract.
//
// All backend implementations should use that function when they create new Client instances.
// The handle layer should not use that function.
//
// See clientContract and its methods for additional details.
func ClientContract(c Client) Client {
	if _, ok := c.(*clientContract); ok {
		panic("client is already wrapped")
	}

	return &clientContract{
		c: c,
	}
}

// OpenParams represents the parameters of Client.Open method.
type OpenParams struct {
	Handle rpc.ProviderHandle
	Name   string

	// If true, the provider is asked whether the database exists.
	// Otherwise, no remote call is made.
	Check bool
}

// Open returns a Database for the given provider and name.
func (cc *clientContract) Open(ctx context.Context, params *OpenParams) (res Database, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, ErrorCodeDatabaseNameIsInvalid, ErrorCodeDatabaseDoesNotExist) }()

	if err = ValidateDatabaseName(params.Name); err != nil {
		return
	}

	if !params.Handle.Valid() {
		err = NewError(ErrorCodeProviderIsUnreachable, nil)
		return
	}

	var db Database
	if db, err = cc.c.Open(ctx, params); err == nil {
		res = DatabaseContract(db)
	}

	return
}

// CreateProviderHandle resolves the address and returns a handle for the given provider id.
//
// The provider itself is not contacted.
//
//nolint:lll // for readability
func (cc *clientContract) CreateProviderHandle(ctx context.Context, address string, providerID uint16) (res rpc.ProviderHandle, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err) }()

	res, err = cc.c.CreateProviderHandle(ctx, address, providerID)

	return
}

// Engine returns the RPC engine used by the client.
func (cc *clientContract) Engine() rpc.Engine {
	return cc.c.Engine()
}

// Capabilities implements Client interface.
func (cc *clientContract) Capabilities() Capabilities {
	return cc.c.Capabilities()
}

// Valid implements Client interface.
func (cc *clientContract) Valid() bool {
	return cc.c.Valid()
}

// check interfaces
var (
	_ Client = (*clientContract)(nil)
)
