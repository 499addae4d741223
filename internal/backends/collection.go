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
	"fmt"

	"github.com/FerretDB/polydoc/internal/util/observability"
)

// Collection is a generic interface for all backends for accessing a single collection.
//
// Collection object is stateless and temporary; all state is in the provider.
// Collection methods should be thread-safe.
//
// See collectionContract and its methods for additional details.
type Collection interface {
	Name() string

	Store(context.Context, *StoreParams) (*StoreResult, error)
	StoreMulti(context.Context, *StoreMultiParams) (*StoreMultiResult, error)
	Fetch(context.Context, *FetchParams) (*FetchResult, error)
	FetchMulti(context.Context, *FetchMultiParams) (*FetchMultiResult, error)
	Filter(context.Context, *FilterParams) (*FilterResult, error)
	Update(context.Context, *UpdateParams) error
	UpdateMulti(context.Context, *UpdateMultiParams) (*UpdateMultiResult, error)
	All(context.Context, *AllParams) (*AllResult, error)
	Size(context.Context) (uint64, error)
	LastRecordID(context.Context) (uint64, error)
	Erase(context.Context, *EraseParams) error
	EraseMulti(context.Context, *EraseMultiParams) error

	Capabilities() Capabilities
	Valid() bool
}

// Record is a stored document together with its record id.
type Record struct {
	ID       uint64          `json:"id"`
	Document json.RawMessage `json:"doc"`
}

// collectionContract implements Collection interface.
type collectionContract struct {
	c Collection
}

// CollectionContract wraps Collection and enforces its contract.
//
// Database contract uses that function; backend implementations should not.
//
// See collectionContract and its methods for additional details.
func CollectionContract(c Collection) Collection {
	if _, ok := c.(*collectionContract); ok {
		panic("collection is already wrapped")
	}

	return &collectionContract{
		c: c,
	}
}

// Name returns the collection name.
func (cc *collectionContract) Name() string {
	return cc.c.Name()
}

// StoreParams represents the parameters of Collection.Store method.
type StoreParams struct {
	Document json.RawMessage
	Commit   bool
}

// StoreResult represents the results of Collection.Store method.
type StoreResult struct {
	RecordID uint64
}

// Store stores a single document and returns its new record id.
func (cc *collectionContract) Store(ctx context.Context, params *StoreParams) (res *StoreResult, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, collectionCodes(ErrorCodeDocumentIsInvalid)...) }()

	if err = ValidateDocument(params.Document); err != nil {
		return
	}

	res, err = cc.c.Store(ctx, params)

	return
}

// StoreMultiParams represents the parameters of Collection.StoreMulti method.
type StoreMultiParams struct {
	Documents []json.RawMessage
	Commit    bool
}

// StoreMultiResult represents the results of Collection.StoreMulti method.
type StoreMultiResult struct {
	RecordIDs []uint64
}

// StoreMulti stores all documents in a single transaction and returns their record ids in order.
//
// Either all documents are stored, or none of them.
//
//nolint:lll // for readability
func (cc *collectionContract) StoreMulti(ctx context.Context, params *StoreMultiParams) (res *StoreMultiResult, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, collectionCodes(ErrorCodeDocumentIsInvalid)...) }()

	if err = validateDocuments(params.Documents); err != nil {
		return
	}

	if len(params.Documents) == 0 {
		res = new(StoreMultiResult)
		return
	}

	res, err = cc.c.StoreMulti(ctx, params)

	return
}

// FetchParams represents the parameters of Collection.Fetch method.
type FetchParams struct {
	RecordID uint64
}

// FetchResult represents the results of Collection.Fetch method.
type FetchResult struct {
	Document json.RawMessage
}

// Fetch returns the document with the given record id.
func (cc *collectionContract) Fetch(ctx context.Context, params *FetchParams) (res *FetchResult, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, collectionCodes(ErrorCodeRecordDoesNotExist)...) }()

	res, err = cc.c.Fetch(ctx, params)

	return
}

// FetchMultiParams represents the parameters of Collection.FetchMulti method.
type FetchMultiParams struct {
	RecordIDs []uint64
}

// FetchMultiResult represents the results of Collection.FetchMulti method.
type FetchMultiResult struct {
	Documents []json.RawMessage
}

// FetchMulti returns documents with the given record ids in the same order.
//
// If any record does not exist, the whole call fails.
//
//nolint:lll // for readability
func (cc *collectionContract) FetchMulti(ctx context.Context, params *FetchMultiParams) (res *FetchMultiResult, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, collectionCodes(ErrorCodeRecordDoesNotExist)...) }()

	if len(params.RecordIDs) == 0 {
		res = new(FetchMultiResult)
		return
	}

	res, err = cc.c.FetchMulti(ctx, params)

	return
}

// FilterParams represents the parameters of Collection.Filter method.
type FilterParams struct {
	// Backend-specific predicate.
	Code string
}

// FilterResult represents the results of Collection.Filter method.
type FilterResult struct {
	Records []Record
}

// Filter returns records matching the predicate, sorted by record id.
//
// It requires CapFilter.
func (cc *collectionContract) Filter(ctx context.Context, params *FilterParams) (res *FilterResult, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, collectionCodes(ErrorCodeExecutionFailed)...) }()

	res, err = cc.c.Filter(ctx, params)

	return
}

// UpdateParams represents the parameters of Collection.Update method.
type UpdateParams struct {
	RecordID uint64
	Document json.RawMessage
	Commit   bool
}

// Update replaces the document with the given record id; it should exist.
func (cc *collectionContract) Update(ctx context.Context, params *UpdateParams) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, collectionCodes(ErrorCodeDocumentIsInvalid, ErrorCodeRecordDoesNotExist)...) }()

	if err = ValidateDocument(params.Document); err != nil {
		return
	}

	err = cc.c.Update(ctx, params)

	return
}

// UpdateMultiParams represents the parameters of Collection.UpdateMulti method.
type UpdateMultiParams struct {
	RecordIDs []uint64
	Documents []json.RawMessage
	Commit    bool
}

// UpdateMultiResult represents the results of Collection.UpdateMulti method.
type UpdateMultiResult struct {
	// Updated[i] is false if RecordIDs[i] does not exist.
	Updated []bool
}

// UpdateMulti replaces documents in a single transaction.
//
// Missing records are not an error; they are reported in the result.
// Either all existing records are updated, or none of them.
//
//nolint:lll // for readability
func (cc *collectionContract) UpdateMulti(ctx context.Context, params *UpdateMultiParams) (res *UpdateMultiResult, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, collectionCodes(ErrorCodeDocumentIsInvalid, ErrorCodeBatchIsInvalid)...) }()

	if len(params.RecordIDs) != len(params.Documents) {
		err = NewError(
			ErrorCodeBatchIsInvalid,
			fmt.Errorf("got %d record ids and %d documents", len(params.RecordIDs), len(params.Documents)),
		)

		return
	}

	if err = validateDocuments(params.Documents); err != nil {
		return
	}

	if len(params.RecordIDs) == 0 {
		res = new(UpdateMultiResult)
		return
	}

	res, err = cc.c.UpdateMulti(ctx, params)

	return
}

// AllParams represents the parameters of Collection.All method.
type AllParams struct{}

// AllResult represents the results of Collection.All method.
type AllResult struct {
	Records []Record
}

// All returns all records of the collection, sorted by record id.
func (cc *collectionContract) All(ctx context.Context, params *AllParams) (res *AllResult, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, collectionCodes()...) }()

	res, err = cc.c.All(ctx, params)

	return
}

// Size returns the number of present records.
func (cc *collectionContract) Size(ctx context.Context) (res uint64, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, collectionCodes()...) }()

	res, err = cc.c.Size(ctx)

	return
}

// LastRecordID returns the highest record id ever assigned in the collection.
//
// It fails with ErrorCodeCollectionIsEmpty if nothing was ever stored.
func (cc *collectionContract) LastRecordID(ctx context.Context) (res uint64, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, collectionCodes(ErrorCodeCollectionIsEmpty)...) }()

	res, err = cc.c.LastRecordID(ctx)

	return
}

// EraseParams represents the parameters of Collection.Erase method.
type EraseParams struct {
	RecordID uint64
	Commit   bool
}

// Erase removes the record with the given id.
//
// Erasing a missing record is not an error.
func (cc *collectionContract) Erase(ctx context.Context, params *EraseParams) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, collectionCodes()...) }()

	err = cc.c.Erase(ctx, params)

	return
}

// EraseMultiParams represents the parameters of Collection.EraseMulti method.
type EraseMultiParams struct {
	RecordIDs []uint64
	Commit    bool
}

// EraseMulti removes records with the given ids in a single transaction.
func (cc *collectionContract) EraseMulti(ctx context.Context, params *EraseMultiParams) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err, collectionCodes()...) }()

	if len(params.RecordIDs) == 0 {
		return
	}

	err = cc.c.EraseMulti(ctx, params)

	return
}

// Capabilities implements Collection interface.
func (cc *collectionContract) Capabilities() Capabilities {
	return cc.c.Capabilities()
}

// Valid implements Collection interface.
func (cc *collectionContract) Valid() bool {
	return cc.c.Valid()
}

// collectionCodes returns error codes that could be returned by all Collection methods plus given codes.
func collectionCodes(codes ...ErrorCode) []ErrorCode {
	return append(codes, ErrorCodeCollectionDoesNotExist, ErrorCodeDatabaseDoesNotExist)
}

// check interfaces
var (
	_ Collection = (*collectionContract)(nil)
)
