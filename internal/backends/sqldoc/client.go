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

package sqldoc

import (
	"context"

	"go.uber.org/zap"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/backends/remote"
	"github.com/FerretDB/polydoc/internal/rpc"
)

// NewClientParams represents the parameters of NewAdmin and NewClient functions.
type NewClientParams struct {
	Engine rpc.Engine
	L      *zap.Logger
}

// admin implements backends.Admin interface.
type admin struct {
	e rpc.Engine
	l *zap.Logger
}

// NewAdmin creates a new Admin.
func NewAdmin(params *NewClientParams) backends.Admin {
	return backends.AdminContract(&admin{
		e: params.Engine,
		l: params.L,
	})
}

// call calls the provider at the given address.
func (a *admin) call(ctx context.Context, address string, providerID uint16, name string, req any) error {
	ph, err := remote.Lookup(ctx, a.e, address, providerID)
	if err != nil {
		return err
	}

	_, err = remote.Call[remote.Empty](ctx, a.e, ph, name, req)

	return err
}

// CreateDatabase implements backends.Admin interface.
func (a *admin) CreateDatabase(ctx context.Context, params *backends.CreateDatabaseParams) error {
	return a.call(ctx, params.Address, params.ProviderID, rpcCreateDatabase, &remote.DatabaseRequest{
		Name:   params.Name,
		Type:   params.Type,
		Config: params.Config,
		Token:  params.Token,
	})
}

// AttachDatabase implements backends.Admin interface.
func (a *admin) AttachDatabase(ctx context.Context, params *backends.AttachDatabaseParams) error {
	return a.call(ctx, params.Address, params.ProviderID, rpcAttachDatabase, &remote.DatabaseRequest{
		Name:   params.Name,
		Type:   params.Type,
		Config: params.Config,
		Token:  params.Token,
	})
}

// DetachDatabase implements backends.Admin interface.
func (a *admin) DetachDatabase(ctx context.Context, params *backends.DetachDatabaseParams) error {
	return a.call(ctx, params.Address, params.ProviderID, rpcDetachDatabase, &remote.DatabaseRequest{
		Name:  params.Name,
		Token: params.Token,
	})
}

// DestroyDatabase implements backends.Admin interface.
func (a *admin) DestroyDatabase(ctx context.Context, params *backends.DestroyDatabaseParams) error {
	return a.call(ctx, params.Address, params.ProviderID, rpcDestroyDatabase, &remote.DatabaseRequest{
		Name:  params.Name,
		Token: params.Token,
	})
}

// ListDatabases implements backends.Admin interface.
//
//nolint:lll // for readability
func (a *admin) ListDatabases(ctx context.Context, params *backends.ListDatabasesParams) (*backends.ListDatabasesResult, error) {
	ph, err := remote.Lookup(ctx, a.e, params.Address, params.ProviderID)
	if err != nil {
		return nil, err
	}

	res, err := remote.Call[remote.ListDatabasesResponse](ctx, a.e, ph, rpcListDatabases, new(remote.Empty))
	if err != nil {
		return nil, err
	}

	return &backends.ListDatabasesResult{Databases: res.Databases}, nil
}

// ShutdownServer implements backends.Admin interface.
func (a *admin) ShutdownServer(ctx context.Context, address string) error {
	ep, err := a.e.Lookup(ctx, address)
	if err != nil {
		return backends.FromRPC(err)
	}

	a.l.Info("Shutting down remote engine.", zap.Stringer("endpoint", ep))

	return backends.FromRPC(a.e.ShutdownRemote(ctx, ep))
}

// Capabilities implements backends.Admin interface.
func (a *admin) Capabilities() backends.Capabilities {
	return capabilities
}

// Valid implements backends.Admin interface.
func (a *admin) Valid() bool {
	return remote.Alive(a.e)
}

// client implements backends.Client interface.
type client struct {
	e rpc.Engine
}

// NewClient creates a new Client.
func NewClient(params *NewClientParams) backends.Client {
	return backends.ClientContract(&client{
		e: params.Engine,
	})
}

// Open implements backends.Client interface.
func (c *client) Open(ctx context.Context, params *backends.OpenParams) (backends.Database, error) {
	if params.Check {
		if _, err := remote.Call[remote.Empty](ctx, c.e, params.Handle, rpcDatabaseExists, &remote.DBRequest{
			Database: params.Name,
		}); err != nil {
			return nil, err
		}
	}

	return &db{
		e:    c.e,
		ph:   params.Handle,
		name: params.Name,
	}, nil
}

// CreateProviderHandle implements backends.Client interface.
//
//nolint:lll // for readability
func (c *client) CreateProviderHandle(ctx context.Context, address string, providerID uint16) (rpc.ProviderHandle, error) {
	return remote.Lookup(ctx, c.e, address, providerID)
}

// Engine implements backends.Client interface.
func (c *client) Engine() rpc.Engine {
	return c.e
}

// Capabilities implements backends.Client interface.
func (c *client) Capabilities() backends.Capabilities {
	return capabilities
}

// Valid implements backends.Client interface.
func (c *client) Valid() bool {
	return remote.Alive(c.e)
}

// check interfaces
var (
	_ backends.Admin  = (*admin)(nil)
	_ backends.Client = (*client)(nil)
)
