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

// Collection is an opened collection of records.
//
// The zero value is invalid.
//
// Options of data operations: WithCommit asks the provider to flush changes
// to durable storage before replying.
type Collection struct {
	c    backends.Collection
	pool *async.Pool
}

// Valid returns true if the handle is usable.
func (c Collection) Valid() bool {
	return c.c != nil && c.c.Valid()
}

// Supports returns true if the backend supports the given capability.
func (c Collection) Supports(capability Capability) bool {
	return c.c != nil && supports(c.c.Capabilities(), capability)
}

// Name returns collection name.
func (c Collection) Name() string {
	if c.c == nil {
		return ""
	}

	return c.c.Name()
}

func (c Collection) store(doc any, opts []Option) op[uint64] {
	if !c.Valid() {
		return failed[uint64](invalidHandle("collection"))
	}

	b, err := normalize(doc)
	if err != nil {
		return failed[uint64](err)
	}

	o := newOptions(opts)

	return op[uint64]{f: func(ctx context.Context) (uint64, error) {
		res, err := c.c.Store(ctx, &backends.StoreParams{Document: b, Commit: o.commit})
		if err != nil {
			return 0, err
		}

		return res.RecordID, nil
	}}
}

// Store stores a new document and returns its record id.
func (c Collection) Store(ctx context.Context, doc any, opts ...Option) (uint64, error) {
	return c.store(doc, opts).call(ctx)
}

// StoreAsync is the async version of Store.
func (c Collection) StoreAsync(ctx context.Context, doc any, opts ...Option) AsyncRequest[uint64] {
	return c.store(doc, opts).submit(ctx, c.pool)
}

func (c Collection) storeMulti(docs []any, opts []Option) op[[]uint64] {
	if !c.Valid() {
		return failed[[]uint64](invalidHandle("collection"))
	}

	bs, err := normalizeMulti(docs)
	if err != nil {
		return failed[[]uint64](err)
	}

	o := newOptions(opts)

	return op[[]uint64]{f: func(ctx context.Context) ([]uint64, error) {
		res, err := c.c.StoreMulti(ctx, &backends.StoreMultiParams{Documents: bs, Commit: o.commit})
		if err != nil {
			return nil, err
		}

		return res.RecordIDs, nil
	}}
}

// StoreMulti stores all documents atomically and returns their record ids in the same order.
func (c Collection) StoreMulti(ctx context.Context, docs []any, opts ...Option) ([]uint64, error) {
	return c.storeMulti(docs, opts).call(ctx)
}

// StoreMultiAsync is the async version of StoreMulti.
func (c Collection) StoreMultiAsync(ctx context.Context, docs []any, opts ...Option) AsyncRequest[[]uint64] {
	return c.storeMulti(docs, opts).submit(ctx, c.pool)
}

func (c Collection) fetch(id uint64) op[Document] {
	if !c.Valid() {
		return failed[Document](invalidHandle("collection"))
	}

	return op[Document]{f: func(ctx context.Context) (Document, error) {
		res, err := c.c.Fetch(ctx, &backends.FetchParams{RecordID: id})
		if err != nil {
			return Document{}, err
		}

		return Document{b: res.Document}, nil
	}}
}

// Fetch returns the document with the given record id.
func (c Collection) Fetch(ctx context.Context, id uint64) (Document, error) {
	return c.fetch(id).call(ctx)
}

// FetchAsync is the async version of Fetch.
func (c Collection) FetchAsync(ctx context.Context, id uint64) AsyncRequest[Document] {
	return c.fetch(id).submit(ctx, c.pool)
}

func (c Collection) fetchMulti(ids []uint64) op[[]Document] {
	if !c.Valid() {
		return failed[[]Document](invalidHandle("collection"))
	}

	return op[[]Document]{f: func(ctx context.Context) ([]Document, error) {
		res, err := c.c.FetchMulti(ctx, &backends.FetchMultiParams{RecordIDs: ids})
		if err != nil {
			return nil, err
		}

		return documents(res.Documents), nil
	}}
}

// FetchMulti returns documents with the given record ids in the same order.
// It fails if any of them does not exist.
func (c Collection) FetchMulti(ctx context.Context, ids []uint64) ([]Document, error) {
	return c.fetchMulti(ids).call(ctx)
}

// FetchMultiAsync is the async version of FetchMulti.
func (c Collection) FetchMultiAsync(ctx context.Context, ids []uint64) AsyncRequest[[]Document] {
	return c.fetchMulti(ids).submit(ctx, c.pool)
}

func (c Collection) filter(code string) op[[]Record] {
	if !c.Valid() {
		return failed[[]Record](invalidHandle("collection"))
	}

	return op[[]Record]{f: func(ctx context.Context) ([]Record, error) {
		res, err := c.c.Filter(ctx, &backends.FilterParams{Code: code})
		if err != nil {
			return nil, err
		}

		return records(res.Records), nil
	}}
}

// Filter returns records selected by backend-specific code, in record id order.
//
// It requires [CapFilter].
func (c Collection) Filter(ctx context.Context, code string) ([]Record, error) {
	return c.filter(code).call(ctx)
}

// FilterAsync is the async version of Filter.
func (c Collection) FilterAsync(ctx context.Context, code string) AsyncRequest[[]Record] {
	return c.filter(code).submit(ctx, c.pool)
}

func (c Collection) update(id uint64, doc any, opts []Option) op[struct{}] {
	if !c.Valid() {
		return failed[struct{}](invalidHandle("collection"))
	}

	b, err := normalize(doc)
	if err != nil {
		return failed[struct{}](err)
	}

	o := newOptions(opts)

	return op[struct{}]{f: func(ctx context.Context) (struct{}, error) {
		err := c.c.Update(ctx, &backends.UpdateParams{RecordID: id, Document: b, Commit: o.commit})
		return struct{}{}, err
	}}
}

// Update replaces the document of the existing record.
func (c Collection) Update(ctx context.Context, id uint64, doc any, opts ...Option) error {
	_, err := c.update(id, doc, opts).call(ctx)
	return err
}

// UpdateAsync is the async version of Update.
func (c Collection) UpdateAsync(ctx context.Context, id uint64, doc any, opts ...Option) AsyncRequest[struct{}] {
	return c.update(id, doc, opts).submit(ctx, c.pool)
}

func (c Collection) updateMulti(ids []uint64, docs []any, opts []Option) op[[]bool] {
	if !c.Valid() {
		return failed[[]bool](invalidHandle("collection"))
	}

	bs, err := normalizeMulti(docs)
	if err != nil {
		return failed[[]bool](err)
	}

	o := newOptions(opts)

	return op[[]bool]{f: func(ctx context.Context) ([]bool, error) {
		res, err := c.c.UpdateMulti(ctx, &backends.UpdateMultiParams{RecordIDs: ids, Documents: bs, Commit: o.commit})
		if err != nil {
			return nil, err
		}

		return res.Updated, nil
	}}
}

// UpdateMulti replaces documents of existing records.
// For each id, it reports whether the record existed and was updated.
func (c Collection) UpdateMulti(ctx context.Context, ids []uint64, docs []any, opts ...Option) ([]bool, error) {
	return c.updateMulti(ids, docs, opts).call(ctx)
}

// UpdateMultiAsync is the async version of UpdateMulti.
func (c Collection) UpdateMultiAsync(ctx context.Context, ids []uint64, docs []any, opts ...Option) AsyncRequest[[]bool] {
	return c.updateMulti(ids, docs, opts).submit(ctx, c.pool)
}

func (c Collection) all() op[[]Record] {
	if !c.Valid() {
		return failed[[]Record](invalidHandle("collection"))
	}

	return op[[]Record]{f: func(ctx context.Context) ([]Record, error) {
		res, err := c.c.All(ctx, new(backends.AllParams))
		if err != nil {
			return nil, err
		}

		return records(res.Records), nil
	}}
}

// All returns all records in record id order.
func (c Collection) All(ctx context.Context) ([]Record, error) {
	return c.all().call(ctx)
}

// AllAsync is the async version of All.
func (c Collection) AllAsync(ctx context.Context) AsyncRequest[[]Record] {
	return c.all().submit(ctx, c.pool)
}

func (c Collection) erase(id uint64, opts []Option) op[struct{}] {
	if !c.Valid() {
		return failed[struct{}](invalidHandle("collection"))
	}

	o := newOptions(opts)

	return op[struct{}]{f: func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.c.Erase(ctx, &backends.EraseParams{RecordID: id, Commit: o.commit})
	}}
}

// Erase removes the record. Erasing a missing record is not an error.
func (c Collection) Erase(ctx context.Context, id uint64, opts ...Option) error {
	_, err := c.erase(id, opts).call(ctx)
	return err
}

// EraseAsync is the async version of Erase.
func (c Collection) EraseAsync(ctx context.Context, id uint64, opts ...Option) AsyncRequest[struct{}] {
	return c.erase(id, opts).submit(ctx, c.pool)
}

func (c Collection) eraseMulti(ids []uint64, opts []Option) op[struct{}] {
	if !c.Valid() {
		return failed[struct{}](invalidHandle("collection"))
	}

	o := newOptions(opts)

	return op[struct{}]{f: func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.c.EraseMulti(ctx, &backends.EraseMultiParams{RecordIDs: ids, Commit: o.commit})
	}}
}

// EraseMulti removes all given records.
func (c Collection) EraseMulti(ctx context.Context, ids []uint64, opts ...Option) error {
	_, err := c.eraseMulti(ids, opts).call(ctx)
	return err
}

// EraseMultiAsync is the async version of EraseMulti.
func (c Collection) EraseMultiAsync(ctx context.Context, ids []uint64, opts ...Option) AsyncRequest[struct{}] {
	return c.eraseMulti(ids, opts).submit(ctx, c.pool)
}

// Size returns the number of records.
func (c Collection) Size(ctx context.Context) (uint64, error) {
	if !c.Valid() {
		return 0, invalidHandle("collection")
	}

	n, err := c.c.Size(ctx)
	if err != nil {
		return 0, newError(err)
	}

	return n, nil
}

// LastRecordID returns the greatest record id ever assigned in the collection.
// It fails if no record was ever stored.
func (c Collection) LastRecordID(ctx context.Context) (uint64, error) {
	if !c.Valid() {
		return 0, invalidHandle("collection")
	}

	id, err := c.c.LastRecordID(ctx)
	if err != nil {
		return 0, newError(err)
	}

	return id, nil
}

// records converts backend records.
func records(rs []backends.Record) []Record {
	res := make([]Record, len(rs))
	for i, r := range rs {
		res[i] = Record{ID: r.ID, Document: Document{b: r.Document}}
	}

	return res
}
