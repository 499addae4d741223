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
	"github.com/FerretDB/polydoc/internal/util/async"
)

// Database is an opened database.
//
// The zero value is invalid.
type Database struct {
	d    backends.Database
	pool *async.Pool
}

// Valid returns true if the handle is usable.
func (db Database) Valid() bool {
	return db.d != nil && db.d.Valid()
}

// Supports returns true if the backend supports the given capability.
func (db Database) Supports(c Capability) bool {
	return db.d != nil && supports(db.d.Capabilities(), c)
}

// Name returns database name.
func (db Database) Name() string {
	if db.d == nil {
		return ""
	}

	return db.d.Name()
}

// CreateCollection creates a new collection and returns its handle.
func (db Database) CreateCollection(ctx context.Context, name string) (Collection, error) {
	if !db.Valid() {
		return Collection{}, invalidHandle("database")
	}

	c, err := db.d.CreateCollection(ctx, &backends.CreateCollectionParams{Name: name})
	if err != nil {
		return Collection{}, newError(err)
	}

	return Collection{c: c, pool: db.pool}, nil
}

// CollectionExists returns true if the collection exists.
func (db Database) CollectionExists(ctx context.Context, name string) (bool, error) {
	if !db.Valid() {
		return false, invalidHandle("database")
	}

	exists, err := db.d.CollectionExists(ctx, &backends.CollectionExistsParams{Name: name})
	if err != nil {
		return false, newError(err)
	}

	return exists, nil
}

// OpenCollection returns a handle for the collection.
//
// If check is true, the provider is asked whether the collection exists.
func (db Database) OpenCollection(ctx context.Context, name string, check bool) (Collection, error) {
	if !db.Valid() {
		return Collection{}, invalidHandle("database")
	}

	c, err := db.d.OpenCollection(ctx, &backends.OpenCollectionParams{Name: name, Check: check})
	if err != nil {
		return Collection{}, newError(err)
	}

	return Collection{c: c, pool: db.pool}, nil
}

// DropCollection drops the collection with all its records.
func (db Database) DropCollection(ctx context.Context, name string) error {
	if !db.Valid() {
		return invalidHandle("database")
	}

	return newError(db.d.DropCollection(ctx, &backends.DropCollectionParams{Name: name}))
}

// Execute runs backend-specific code on the provider and returns the values of the given variables
// as JSON text. Variables that were not set are "null".
//
// For the "sql" backend, code is a sequence of SQL statements executed in a single transaction;
// variables are columns of the first row returned by the last statement.
// Collections are referenced as `{{name}}`: references are replaced with quoted table names.
//
// It requires [CapExecute]. WithCommit option is used.
func (db Database) Execute(ctx context.Context, code string, vars []string, opts ...Option) (map[string]string, error) {
	if !db.Valid() {
		return nil, invalidHandle("database")
	}

	o := newOptions(opts)

	res, err := db.d.Execute(ctx, &backends.ExecuteParams{
		Code:   code,
		Vars:   vars,
		Commit: o.commit,
	})
	if err != nil {
		return nil, newError(err)
	}

	return res.Vars, nil
}

// Commit flushes changes to durable storage.
func (db Database) Commit(ctx context.Context) error {
	if !db.Valid() {
		return invalidHandle("database")
	}

	return newError(db.d.Commit(ctx))
}
