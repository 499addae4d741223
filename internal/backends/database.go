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
)

// Database is a generic interface for all backends for accessing a single remote database.
//
// Database object is stateless and temporary; all state is in the provider.
// Creating a Database object does not imply the creating of the database itself.
//
// Database methods should be thread-safe.
//
// See databaseContract and its methods for additional details.
type Database interface {
	Name() string

	CreateCollection(context.Context, *CreateCollectionParams) (Collection, error)
	CollectionExists(context.Context, *CollectionExistsParams) (bool, error)
	OpenCollection(context.Context, *OpenCollectionParams) (Collection, error)
	DropCollection(context.Context, *DropCollectionParams) error
	Execute(context.Context, *ExecuteParams) (*ExecuteResult, error)
	Commit(context.Context) error

	Capabilities() Capabilities
	Valid() bool
}

// databaseContract implements Database interface.
type databaseContract struct {
	db Database
}

// DatabaseContract wraps Database and enforces its contract.
//
// Client and Database contracts use that function; backend implementations should not.
//
// See databaseContract and its methods for additional details.
func DatabaseContract(db Database) Database {
	if _, ok := db.(*databaseContract); ok {
		panic("database is already wrapped")
	}

	return &databaseContract{
		db: db,
	}
}

// Name returns the database name.
func (dbc *databaseContract) Name() string {
	return dbc.db.Name()
}

// CreateCollectionParams represents the parameters of Database.CreateCollection method.
type CreateCollectionParams struct {
	Name string
}

// CreateCollection creates a new collection in the database; it should not already exist.
//
//nolint:lll // for readability
func (dbc *databaseContract) CreateCollection(ctx context.Context, params *CreateCollectionParams) (res Collection, err error) {
	defer observability.FuncCall(ctx)()
	defer func() {
		checkError(err, ErrorCodeCollectionNameIsInvalid, ErrorCodeCollectionAlreadyExists, ErrorCodeDatabaseDoesNotExist)
	}()

	if err = ValidateCollectionName(params.Name); err != nil {
		return
	}

	var c Collection
	if c, err = dbc.db.CreateCollection(ctx, params); err == nil {
		res = CollectionContract(c)
	}

	return
}

// CollectionExistsParams represents the parameters of Database.CollectionExists method.
type CollectionExistsParams struct {
	Name string
}

// CollectionExists returns true if the collection exists in the database.
//
// Invalid collection names never exist; that's not an error.
func (dbc *databaseContract) CollectionExists(ctx context.Context, params *CollectionExistsParams) (res bool, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, ErrorCodeDatabaseDoesNotExist) }()

	if ValidateCollectionName(params.Name) != nil {
		return
	}

	res, err = dbc.db.CollectionExists(ctx, params)

	return
}

// OpenCollectionParams represents the parameters of Database.OpenCollection method.
type OpenCollectionParams struct {
	Name string

	// If true, the provider is asked whether the collection exists.
	// Otherwise, no remote call is made.
	Check bool
}

// OpenCollection returns a Collection for the given name.
//
//nolint:lll // for readability
func (dbc *databaseContract) OpenCollection(ctx context.Context, params *OpenCollectionParams) (res Collection, err error) {
	defer observability.FuncCall(ctx)()
	defer func() {
		checkError(err, ErrorCodeCollectionNameIsInvalid, ErrorCodeCollectionDoesNotExist, ErrorCodeDatabaseDoesNotExist)
	}()

	if err = ValidateCollectionName(params.Name); err != nil {
		return
	}

	var c Collection
	if c, err = dbc.db.OpenCollection(ctx, params); err == nil {
		res = CollectionContract(c)
	}

	return
}

// DropCollectionParams represents the parameters of Database.DropCollection method.
type DropCollectionParams struct {
	Name string
}

// DropCollection drops existing collection in the database together with all its records.
func (dbc *databaseContract) DropCollection(ctx context.Context, params *DropCollectionParams) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() {
		checkError(err, ErrorCodeCollectionNameIsInvalid, ErrorCodeCollectionDoesNotExist, ErrorCodeDatabaseDoesNotExist)
	}()

	if err = ValidateCollectionName(params.Name); err != nil {
		return
	}

	err = dbc.db.DropCollection(ctx, params)

	return
}

// ExecuteParams represents the parameters of Database.Execute method.
type ExecuteParams struct {
	Code   string
	Vars   []string
	Commit bool
}

// ExecuteResult represents the results of Database.Execute method.
type ExecuteResult struct {
	// JSON-encoded values of requested variables.
	// Variables that were not produced by the code have value "null".
	Vars map[string]string
}

// Execute runs backend-specific code on the provider and returns requested variables.
//
// It requires CapExecute.
func (dbc *databaseContract) Execute(ctx context.Context, params *ExecuteParams) (res *ExecuteResult, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, ErrorCodeExecutionFailed, ErrorCodeDatabaseDoesNotExist) }()

	res, err = dbc.db.Execute(ctx, params)

	return
}

// Commit flushes pending changes of the database to durable storage.
//
// It requires CapCommit.
func (dbc *databaseContract) Commit(ctx context.Context) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, ErrorCodeDatabaseDoesNotExist) }()

	err = dbc.db.Commit(ctx)

	return
}

// Capabilities implements Database interface.
func (dbc *databaseContract) Capabilities() Capabilities {
	return dbc.db.Capabilities()
}

// Valid implements Database interface.
func (dbc *databaseContract) Valid() bool {
	return dbc.db.Valid()
}

// check interfaces
var (
	_ Database = (*databaseContract)(nil)
)
