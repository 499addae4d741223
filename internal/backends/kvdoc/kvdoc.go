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

// Package kvdoc provides "kv" backend: a provider that stores documents in bbolt files,
// and client adapters that access it over RPC.
//
// # Design principles
//
//  1. Every polydoc database is a single bbolt file.
//  2. Collections are nested buckets of a single top-level bucket.
//     Records are keyed by big-endian record ids; bucket sequences are id counters,
//     so ids are never reused.
//  3. Every operation runs in a single bbolt transaction, so batches are all-or-nothing.
//  4. Writes are not synced to disk until commit is requested.
//  5. There is no query language: Execute and Filter are not implemented.
package kvdoc

import (
	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/backends/remote"
)

// Name is the backend name used by the registry.
const Name = "kv"

// capabilities of the backend.
var capabilities = backends.NewCapabilities(
	backends.CapDetach,
	backends.CapListDatabases,
	backends.CapCommit,
)

// RPC names.
const (
	rpcCreateDatabase  = "kv_create_database"
	rpcAttachDatabase  = "kv_attach_database"
	rpcDetachDatabase  = "kv_detach_database"
	rpcDestroyDatabase = "kv_destroy_database"
	rpcListDatabases   = "kv_list_databases"
	rpcDatabaseExists  = "kv_database_exists"

	rpcCreateCollection = "kv_create_collection"
	rpcCollectionExists = "kv_collection_exists"
	rpcDropCollection   = "kv_drop_collection"
	rpcCommit           = "kv_commit"

	rpcStore        = "kv_store"
	rpcFetch        = "kv_fetch"
	rpcUpdate       = "kv_update"
	rpcAll          = "kv_all"
	rpcSize         = "kv_size"
	rpcLastRecordID = "kv_last_record_id"
	rpcErase        = "kv_erase"
)

// defaultPageSize is the number of records returned by a single rpcAll call.
const defaultPageSize = 1000

// allRequest is used by rpcAll.
type allRequest struct {
	remote.CollectionRequest

	// smallest record id to return
	From uint64 `json:"from"`

	// defaultPageSize if zero
	Limit int `json:"limit,omitempty"`
}
