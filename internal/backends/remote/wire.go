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

package remote

import (
	"encoding/json"

	"github.com/FerretDB/polydoc/internal/backends"
)

// Wire types shared by backends.
// Each backend registers its own RPC names, but request and response bodies have the same shape.

// DatabaseRequest is used by Admin operations.
type DatabaseRequest struct {
	Name   string          `json:"name"`
	Type   string          `json:"type,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
	Token  string          `json:"token,omitempty"`
}

// ListDatabasesResponse is returned by database listing.
type ListDatabasesResponse struct {
	Databases []backends.DatabaseInfo `json:"databases"`
}

// DBRequest is used by Database operations.
type DBRequest struct {
	Database string `json:"db"`
}

// CollectionRequest is used by Collection operations and Database operations on collections.
type CollectionRequest struct {
	Database   string `json:"db"`
	Collection string `json:"coll"`
}

// ExistsResponse is returned by existence checks.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// ExecuteRequest is used by server-side execution.
type ExecuteRequest struct {
	Database string   `json:"db"`
	Code     string   `json:"code"`
	Vars     []string `json:"vars,omitempty"`
	Commit   bool     `json:"commit,omitempty"`
}

// ExecuteResponse is returned by server-side execution.
type ExecuteResponse struct {
	Vars map[string]string `json:"vars"`
}

// StoreRequest is used to store documents.
type StoreRequest struct {
	CollectionRequest
	Documents []json.RawMessage `json:"docs"`
	Commit    bool              `json:"commit,omitempty"`
}

// IDsResponse contains record ids of stored documents.
type IDsResponse struct {
	IDs []uint64 `json:"ids"`
}

// IDsRequest is used to fetch and erase records.
type IDsRequest struct {
	CollectionRequest
	IDs    []uint64 `json:"ids"`
	Commit bool     `json:"commit,omitempty"`
}

// DocumentsResponse contains fetched documents.
type DocumentsResponse struct {
	Documents []json.RawMessage `json:"docs"`
}

// FilterRequest is used to filter records with backend-specific code.
type FilterRequest struct {
	CollectionRequest
	Code string `json:"code"`
}

// RecordsResponse contains records in ascending id order.
type RecordsResponse struct {
	Records []backends.Record `json:"records"`

	// set by paginated handlers if there are more records after the last one
	More bool `json:"more,omitempty"`
}

// UpdateRequest is used to update records.
type UpdateRequest struct {
	CollectionRequest
	IDs       []uint64          `json:"ids"`
	Documents []json.RawMessage `json:"docs"`
	Commit    bool              `json:"commit,omitempty"`

	// missing record fails the whole call
	Strict bool `json:"strict,omitempty"`
}

// UpdateResponse contains per-record update results.
type UpdateResponse struct {
	Updated []bool `json:"updated"`
}

// CountResponse is returned by collection size and last record id queries.
type CountResponse struct {
	N uint64 `json:"n"`
}
