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
	"encoding/json"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/backends/remote"
)

// collection implements backends.Collection interface.
type collection struct {
	db   *db
	name string
}

// req returns the common part of all collection requests.
func (c *collection) req() remote.CollectionRequest {
	return remote.CollectionRequest{
		Database:   c.db.name,
		Collection: c.name,
	}
}

// Name implements backends.Collection interface.
func (c *collection) Name() string {
	return c.name
}

// Store implements backends.Collection interface.
func (c *collection) Store(ctx context.Context, params *backends.StoreParams) (*backends.StoreResult, error) {
	res, err := c.store(ctx, []json.RawMessage{params.Document}, params.Commit)
	if err != nil {
		return nil, err
	}

	return &backends.StoreResult{RecordID: res[0]}, nil
}

// StoreMulti implements backends.Collection interface.
//
//nolint:lll // for readability
func (c *collection) StoreMulti(ctx context.Context, params *backends.StoreMultiParams) (*backends.StoreMultiResult, error) {
	res, err := c.store(ctx, params.Documents, params.Commit)
	if err != nil {
		return nil, err
	}

	return &backends.StoreMultiResult{RecordIDs: res}, nil
}

// store calls rpcStore.
func (c *collection) store(ctx context.Context, docs []json.RawMessage, commit bool) ([]uint64, error) {
	res, err := remote.Call[remote.IDsResponse](ctx, c.db.e, c.db.ph, rpcStore, &remote.StoreRequest{
		CollectionRequest: c.req(),
		Documents:         docs,
		Commit:            commit,
	})
	if err != nil {
		return nil, err
	}

	return res.IDs, nil
}

// Fetch implements backends.Collection interface.
func (c *collection) Fetch(ctx context.Context, params *backends.FetchParams) (*backends.FetchResult, error) {
	res, err := c.fetch(ctx, []uint64{params.RecordID})
	if err != nil {
		return nil, err
	}

	return &backends.FetchResult{Document: res[0]}, nil
}

// FetchMulti implements backends.Collection interface.
//
//nolint:lll // for readability
func (c *collection) FetchMulti(ctx context.Context, params *backends.FetchMultiParams) (*backends.FetchMultiResult, error) {
	res, err := c.fetch(ctx, params.RecordIDs)
	if err != nil {
		return nil, err
	}

	return &backends.FetchMultiResult{Documents: res}, nil
}

// fetch calls rpcFetch.
func (c *collection) fetch(ctx context.Context, ids []uint64) ([]json.RawMessage, error) {
	res, err := remote.Call[remote.DocumentsResponse](ctx, c.db.e, c.db.ph, rpcFetch, &remote.IDsRequest{
		CollectionRequest: c.req(),
		IDs:               ids,
	})
	if err != nil {
		return nil, err
	}

	return res.Documents, nil
}

// Filter implements backends.Collection interface.
func (c *collection) Filter(ctx context.Context, params *backends.FilterParams) (*backends.FilterResult, error) {
	res, err := remote.Call[remote.RecordsResponse](ctx, c.db.e, c.db.ph, rpcFilter, &remote.FilterRequest{
		CollectionRequest: c.req(),
		Code:              params.Code,
	})
	if err != nil {
		return nil, err
	}

	return &backends.FilterResult{Records: res.Records}, nil
}

// Update implements backends.Collection interface.
func (c *collection) Update(ctx context.Context, params *backends.UpdateParams) error {
	_, err := remote.Call[remote.UpdateResponse](ctx, c.db.e, c.db.ph, rpcUpdate, &remote.UpdateRequest{
		CollectionRequest: c.req(),
		IDs:               []uint64{params.RecordID},
		Documents:         []json.RawMessage{params.Document},
		Commit:            params.Commit,
		Strict:            true,
	})

	return err
}

// UpdateMulti implements backends.Collection interface.
//
//nolint:lll // for readability
func (c *collection) UpdateMulti(ctx context.Context, params *backends.UpdateMultiParams) (*backends.UpdateMultiResult, error) {
	res, err := remote.Call[remote.UpdateResponse](ctx, c.db.e, c.db.ph, rpcUpdate, &remote.UpdateRequest{
		CollectionRequest: c.req(),
		IDs:               params.RecordIDs,
		Documents:         params.Documents,
		Commit:            params.Commit,
	})
	if err != nil {
		return nil, err
	}

	return &backends.UpdateMultiResult{Updated: res.Updated}, nil
}

// All implements backends.Collection interface.
func (c *collection) All(ctx context.Context, params *backends.AllParams) (*backends.AllResult, error) {
	req := c.req()

	res, err := remote.Call[remote.RecordsResponse](ctx, c.db.e, c.db.ph, rpcAll, &req)
	if err != nil {
		return nil, err
	}

	return &backends.AllResult{Records: res.Records}, nil
}

// Size implements backends.Collection interface.
func (c *collection) Size(ctx context.Context) (uint64, error) {
	req := c.req()

	res, err := remote.Call[remote.CountResponse](ctx, c.db.e, c.db.ph, rpcSize, &req)
	if err != nil {
		return 0, err
	}

	return res.N, nil
}

// LastRecordID implements backends.Collection interface.
func (c *collection) LastRecordID(ctx context.Context) (uint64, error) {
	req := c.req()

	res, err := remote.Call[remote.CountResponse](ctx, c.db.e, c.db.ph, rpcLastRecordID, &req)
	if err != nil {
		return 0, err
	}

	return res.N, nil
}

// Erase implements backends.Collection interface.
func (c *collection) Erase(ctx context.Context, params *backends.EraseParams) error {
	return c.erase(ctx, []uint64{params.RecordID}, params.Commit)
}

// EraseMulti implements backends.Collection interface.
func (c *collection) EraseMulti(ctx context.Context, params *backends.EraseMultiParams) error {
	return c.erase(ctx, params.RecordIDs, params.Commit)
}

// erase calls rpcErase.
func (c *collection) erase(ctx context.Context, ids []uint64, commit bool) error {
	_, err := remote.Call[remote.Empty](ctx, c.db.e, c.db.ph, rpcErase, &remote.IDsRequest{
		CollectionRequest: c.req(),
		IDs:               ids,
		Commit:            commit,
	})

	return err
}

// Capabilities implements backends.Collection interface.
func (c *collection) Capabilities() backends.Capabilities {
	return capabilities
}

// Valid implements backends.Collection interface.
func (c *collection) Valid() bool {
	return c.db.Valid()
}

// check interfaces
var (
	_ backends.Collection = (*collection)(nil)
)
