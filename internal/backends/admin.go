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
	"encoding/json"

	"github.com/FerretDB/polydoc/internal/util/observability"
)

// Admin is a generic interface for all backends for managing databases of remote providers.
//
// Admin object is stateless; all state is in the providers.
// Admin methods should be thread-safe.
//
// See adminContract and its methods for additional details.
type Admin interface {
	CreateDatabase(context.Context, *CreateDatabaseParams) error
	AttachDatabase(context.Context, *AttachDatabaseParams) error
	DetachDatabase(context.Context, *DetachDatabaseParams) error
	DestroyDatabase(context.Context, *DestroyDatabaseParams) error
	ListDatabases(context.Context, *ListDatabasesParams) (*ListDatabasesResult, error)
	ShutdownServer(ctx context.Context, address string) error

	Capabilities() Capabilities
	Valid() bool
}

// adminContract implements Admin interface.
type adminContract struct {
	a Admin
}

// AdminContract wraps Admin and enforces its contract.
//
// All backend implementations should use that function when they create new Admin instances.
// The handle layer should not use that function.
//
// See adminContract and its methods for additional details.
func AdminContract(a Admin) Admin {
	if _, ok := a.(*adminContract); ok {
		panic("admin is already wrapped")
	}

	return &adminContract{
		a: a,
	}
}

// CreateDatabaseParams represents the parameters of Admin.CreateDatabase method.
type CreateDatabaseParams struct {
	Address    string
	ProviderID uint16
	Name       string
	Type       string
	Config     json.RawMessage
	Token      string
}

// CreateDatabase creates a new database on the provider; it should not already exist.
//
// Empty Type means the backend's default database type.
func (ac *adminContract) CreateDatabase(ctx context.Context, params *CreateDatabaseParams) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() {
		checkError(
			err,
			ErrorCodeDatabaseNameIsInvalid,
			ErrorCodeDatabaseAlreadyExists,
			ErrorCodeDatabaseTypeIsUnknown,
			ErrorCodeDatabaseTypeIsDisabled,
			ErrorCodeDatabaseConfigIsInvalid,
			ErrorCodeSecurityTokenMismatch,
		)
	}()

	if err = ValidateDatabaseName(params.Name); err != nil {
		return
	}

	if err = ValidateConfig(params.Config); err != nil {
		return
	}

	err = ac.a.CreateDatabase(ctx, params)

	return
}

// AttachDatabaseParams represents the parameters of Admin.AttachDatabase method.
type AttachDatabaseParams struct {
	Address    string
	ProviderID uint16
	Name       string
	Type       string
	Config     json.RawMessage
	Token      string
}

// AttachDatabase makes an existing storage available on the provider under the given name.
func (ac *adminContract) AttachDatabase(ctx context.Context, params *AttachDatabaseParams) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() {
		checkError(
			err,
			ErrorCodeDatabaseNameIsInvalid,
			ErrorCodeDatabaseAlreadyExists,
			ErrorCodeDatabaseDoesNotExist,
			ErrorCodeDatabaseTypeIsUnknown,
			ErrorCodeDatabaseTypeIsDisabled,
			ErrorCodeDatabaseConfigIsInvalid,
			ErrorCodeSecurityTokenMismatch,
		)
	}()

	if err = ValidateDatabaseName(params.Name); err != nil {
		return
	}

	if err = ValidateConfig(params.Config); err != nil {
		return
	}

	err = ac.a.AttachDatabase(ctx, params)

	return
}

// DetachDatabaseParams represents the parameters of Admin.DetachDatabase method.
type DetachDatabaseParams struct {
	Address    string
	ProviderID uint16
	Name       string
	Token      string
}

// DetachDatabase makes the database unavailable without removing its storage.
func (ac *adminContract) DetachDatabase(ctx context.Context, params *DetachDatabaseParams) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() {
		checkError(err, ErrorCodeDatabaseNameIsInvalid, ErrorCodeDatabaseDoesNotExist, ErrorCodeSecurityTokenMismatch)
	}()

	if err = ValidateDatabaseName(params.Name); err != nil {
		return
	}

	err = ac.a.DetachDatabase(ctx, params)

	return
}

// DestroyDatabaseParams represents the parameters of Admin.DestroyDatabase method.
type DestroyDatabaseParams struct {
	Address    string
	ProviderID uint16
	Name       string
	Token      string
}

// DestroyDatabase detaches the database and removes its storage.
func (ac *adminContract) DestroyDatabase(ctx context.Context, params *DestroyDatabaseParams) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() {
		checkError(err, ErrorCodeDatabaseNameIsInvalid, ErrorCodeDatabaseDoesNotExist, ErrorCodeSecurityTokenMismatch)
	}()

	if err = ValidateDatabaseName(params.Name); err != nil {
		return
	}

	err = ac.a.DestroyDatabase(ctx, params)

	return
}

// ListDatabasesParams represents the parameters of Admin.ListDatabases method.
type ListDatabasesParams struct {
	Address    string
	ProviderID uint16
}

// ListDatabasesResult represents the results of Admin.ListDatabases method.
type ListDatabasesResult struct {
	Databases []DatabaseInfo
}

// DatabaseInfo represents information about a single database.
type DatabaseInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ListDatabases returns information about databases attached to the provider, sorted by name.
//
//nolint:lll // for readability
func (ac *adminContract) ListDatabases(ctx context.Context, params *ListDatabasesParams) (res *ListDatabasesResult, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err) }()

	res, err = ac.a.ListDatabases(ctx, params)

	return
}

// ShutdownServer asks the engine at the given address to finalize itself.
func (ac *adminContract) ShutdownServer(ctx context.Context, address string) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err) }()

	err = ac.a.ShutdownServer(ctx, address)

	return
}

// Capabilities implements Admin interface.
func (ac *adminContract) Capabilities() Capabilities {
	return ac.a.Capabilities()
}

// Valid implements Admin interface.
func (ac *adminContract) Valid() bool {
	return ac.a.Valid()
}

// check interfaces
var (
	_ Admin = (*adminContract)(nil)
)
