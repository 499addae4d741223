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
)

// Admin manages databases of providers.
//
// The zero value is invalid.
type Admin struct {
	a backends.Admin
}

// NewAdmin creates a new Admin for the given backend name.
func NewAdmin(e *Engine, backend string, opts ...Option) (Admin, error) {
	if !e.valid() {
		return Admin{}, invalidHandle("engine")
	}

	o := newOptions(opts)

	a, err := registry.NewAdmin(backend, &registry.NewOpts{
		Engine: e.e,
		Logger: o.l,
	})
	if err != nil {
		return Admin{}, newError(err)
	}

	return Admin{a: a}, nil
}

// Valid returns true if the handle is usable.
func (a Admin) Valid() bool {
	return a.a != nil && a.a.Valid()
}

// Supports returns true if the backend supports the given capability.
func (a Admin) Supports(c Capability) bool {
	return a.a != nil && supports(a.a.Capabilities(), c)
}

// CreateDatabase creates a new database on the provider.
//
// Config is the database configuration as a JSON object; nil means `{}`.
// WithType and WithToken options are used.
func (a Admin) CreateDatabase(ctx context.Context, address string, providerID uint16, name string, config any, opts ...Option) error {
	if !a.Valid() {
		return invalidHandle("admin")
	}

	c, err := normalizeConfig(config)
	if err != nil {
		return err
	}

	o := newOptions(opts)

	return newError(a.a.CreateDatabase(ctx, &backends.CreateDatabaseParams{
		Address:    address,
		ProviderID: providerID,
		Name:       name,
		Type:       o.typ,
		Config:     c,
		Token:      o.token,
	}))
}

// AttachDatabase makes existing storage available on the provider as a database.
//
// WithType and WithToken options are used.
func (a Admin) AttachDatabase(ctx context.Context, address string, providerID uint16, name string, config any, opts ...Option) error {
	if !a.Valid() {
		return invalidHandle("admin")
	}

	c, err := normalizeConfig(config)
	if err != nil {
		return err
	}

	o := newOptions(opts)

	return newError(a.a.AttachDatabase(ctx, &backends.AttachDatabaseParams{
		Address:    address,
		ProviderID: providerID,
		Name:       name,
		Type:       o.typ,
		Config:     c,
		Token:      o.token,
	}))
}

// DetachDatabase makes the database unavailable on the provider without removing the storage.
//
// WithToken option is used.
func (a Admin) DetachDatabase(ctx context.Context, address string, providerID uint16, name string, opts ...Option) error {
	if !a.Valid() {
		return invalidHandle("admin")
	}

	o := newOptions(opts)

	return newError(a.a.DetachDatabase(ctx, &backends.DetachDatabaseParams{
		Address:    address,
		ProviderID: providerID,
		Name:       name,
		Token:      o.token,
	}))
}

// DestroyDatabase removes the database with all its storage.
//
// WithToken option is used.
func (a Admin) DestroyDatabase(ctx context.Context, address string, providerID uint16, name string, opts ...Option) error {
	if !a.Valid() {
		return invalidHandle("admin")
	}

	o := newOptions(opts)

	return newError(a.a.DestroyDatabase(ctx, &backends.DestroyDatabaseParams{
		Address:    address,
		ProviderID: providerID,
		Name:       name,
		Token:      o.token,
	}))
}

// DatabaseInfo describes an attached database.
type DatabaseInfo struct {
	Name string
	Type string
}

// ListDatabases returns databases attached to the provider, sorted by name.
func (a Admin) ListDatabases(ctx context.Context, address string, providerID uint16) ([]DatabaseInfo, error) {
	if !a.Valid() {
		return nil, invalidHandle("admin")
	}

	res, err := a.a.ListDatabases(ctx, &backends.ListDatabasesParams{
		Address:    address,
		ProviderID: providerID,
	})
	if err != nil {
		return nil, newError(err)
	}

	dbs := make([]DatabaseInfo, len(res.Databases))
	for i, db := range res.Databases {
		dbs[i] = DatabaseInfo{Name: db.Name, Type: db.Type}
	}

	return dbs, nil
}

// ShutdownServer asks the engine at the given address to finalize itself.
//
// The engine should be created with EnableRemoteShutdown option.
func (a Admin) ShutdownServer(ctx context.Context, address string) error {
	if !a.Valid() {
		return invalidHandle("admin")
	}

	return newError(a.a.ShutdownServer(ctx, address))
}
