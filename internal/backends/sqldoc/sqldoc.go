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

// Package sqldoc provides "sql" backend: a provider that stores documents in SQL databases,
// and client adapters that access it over RPC.
//
// # Design principles
//
//  1. Every polydoc database is stored in a SQL engine selected by the database type:
//     SQLite (default), PostgreSQL, MySQL, or SAP HANA.
//  2. Collections are tables with two columns: record id and document.
//     A metadata table maps collection names to table names and keeps record id counters,
//     so ids are never reused.
//  3. Every operation runs in a single SQL transaction, so batches are all-or-nothing.
//  4. Execute and Filter pass SQL code to the engine as is.
//     It is the engine's job to validate it.
package sqldoc

import (
	"github.com/FerretDB/polydoc/internal/backends"
)

// Name is the backend name used by the registry.
const Name = "sql"

// capabilities of the backend.
var capabilities = backends.NewCapabilities(
	backends.CapExecute,
	backends.CapFilter,
	backends.CapSecurityToken,
	backends.CapDetach,
	backends.CapListDatabases,
	backends.CapCommit,
)

// RPC names.
const (
	rpcCreateDatabase  = "sql_create_database"
	rpcAttachDatabase  = "sql_attach_database"
	rpcDetachDatabase  = "sql_detach_database"
	rpcDestroyDatabase = "sql_destroy_database"
	rpcListDatabases   = "sql_list_databases"
	rpcDatabaseExists  = "sql_database_exists"

	rpcCreateCollection = "sql_create_collection"
	rpcCollectionExists = "sql_collection_exists"
	rpcDropCollection   = "sql_drop_collection"
	rpcExecute          = "sql_execute"
	rpcCommit           = "sql_commit"

	rpcStore        = "sql_store"
	rpcFetch        = "sql_fetch"
	rpcFilter       = "sql_filter"
	rpcUpdate       = "sql_update"
	rpcAll          = "sql_all"
	rpcSize         = "sql_size"
	rpcLastRecordID = "sql_last_record_id"
	rpcErase        = "sql_erase"
)
