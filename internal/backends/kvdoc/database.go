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

package kvdoc

import (
	"context"
	"fmt"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/backends/remote"
	"github.com/FerretDB/polydoc/internal/rpc"
)

// db implements backends.Database interface.
type db struct {
	e        rpc.Engine
	ph       rpc.ProviderHandle
	name     string
	pageSize int
}

// Name implements backends.Database interface.
func (d *db) Name() string {
	return d.name
}

// collection returns a new Collection adapter.
func (d *db) collection(name string) *collection {
	return &collection{
		db:   d,
		name: name,
	}
}

// CreateCollection implements backends.Database interface.
//
//nolint:lll // for readability
func (d *db) CreateCollection(ctx context.Context, params *backends.CreateCollectionParams) (backends.Collection, error) {
	if _, err := remote.Call[remote.Empty](ctx, d.e, d.ph, rpcCreateCollection, &remote.CollectionRequest{
		Database:   d.name,
		Collection: params.Name,
	}); err != nil {
		return nil, err
	}

	return d.collection(params.Name), nil
}

// CollectionExists implements backends.Database interface.
func (d *db) CollectionExists(ctx context.Context, params *backends.CollectionExistsParams) (bool, error) {
	res, err := remote.Call[remote.ExistsResponse](ctx, d.e, d.ph, rpcCollectionExists, &remote.CollectionRequest{
		Database:   d.name,
		Collection: params.Name,
	})
	if err != nil {
		return false, err
	}

	return res.Exists, nil
}

// OpenCollection implements backends.Database interface.
//
//nolint:lll // for readability
func (d *db) OpenCollection(ctx context.Context, params *backends.OpenCollectionParams) (backends.Collection, error) {
	if params.Check {
		exists, err := d.CollectionExists(ctx, &backends.CollectionExistsParams{Name: params.Name})
		if err != nil {
			return nil, err
		}

		if !exists {
			return nil, backends.NewError(
				backends.ErrorCodeCollectionDoesNotExist,
				fmt.Errorf("collection %q does not exist", params.Name),
			)
		}
	}

	return d.collection(params.Name), nil
}

// DropCollection implements backends.Database interface.
func (d *db) DropCollection(ctx context.Context, params *backends.DropCollectionParams) error {
	_, err := remote.Call[remote.Empty](ctx, d.e, d.ph, rpcDropCollection, &remote.CollectionRequest{
		Database:   d.name,
		Collection: params.Name,
	})

	return err
}

// Execute implements backends.Database interface.
//
// There is no query language for bbolt files.
func (d *db) Execute(ctx context.Context, params *backends.ExecuteParams) (*backends.ExecuteResult, error) {
	return nil, backends.NotImplemented(Name, "Execute")
}

// Commit implements backends.Database interface.
func (d *db) Commit(ctx context.Context) error {
	_, err := remote.Call[remote.Empty](ctx, d.e, d.ph, rpcCommit, &remote.DBRequest{Database: d.name})
	return err
}

// Capabilities implements backends.Database interface.
func (d *db) Capabilities() backends.Capabilities {
	return capabilities
}

// Valid implements backends.Database interface.
func (d *db) Valid() bool {
	return remote.Alive(d.e)
}

// check interfaces
var (
	_ backends.Database = (*db)(nil)
)
