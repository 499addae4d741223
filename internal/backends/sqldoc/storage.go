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
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/util/fsql"
	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
)

// metadataTable stores collection names, their table names, and record id counters.
const metadataTable = backends.ReservedPrefix + "collections"

// storage provides access to a single database stored in a SQL engine.
//
//nolint:vet // for readability
type storage struct {
	db *fsql.DB
	d  *dialect
	l  *zap.Logger

	// schema name for engines with schemas, empty otherwise
	schema string

	// table name prefix for engines without schemas
	prefix string

	// destroy removes all storage before the database is closed; may be nil
	destroy func(ctx context.Context) error

	// files removed after the database is closed when it is dropped
	files []string

	// held for reading by handlers, and for writing by close and drop
	inUse  sync.RWMutex
	closed bool
}

// acquire prevents the storage from being closed until the returned function is called.
//
// It returns *backends.Error with ErrorCodeDatabaseDoesNotExist if the storage is already closed.
func (s *storage) acquire() (func(), error) {
	s.inUse.RLock()

	if s.closed {
		s.inUse.RUnlock()
		return nil, backends.NewError(backends.ErrorCodeDatabaseDoesNotExist, errors.New("database was detached"))
	}

	return s.inUse.RUnlock, nil
}

// tableName returns table name for the given collection name.
//
// Collection names are mapped to short ASCII table names that are valid in all engines.
func tableName(collection string) string {
	var sb strings.Builder

	for _, r := range strings.ToLower(collection) {
		if sb.Len() >= 40 {
			break
		}

		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			continue
		}

		sb.WriteByte('_')
	}

	h := sha1.Sum([]byte(collection))

	return "c_" + sb.String() + "_" + hex.EncodeToString(h[:4])
}

// table returns quoted and qualified table name.
func (s *storage) table(name string) string {
	if s.schema != "" {
		return s.d.quote(s.schema) + "." + s.d.quote(name)
	}

	return s.d.quote(s.prefix + name)
}

// p returns placeholder for the n-th argument.
func (s *storage) p(n int) string {
	return s.d.placeholder(n)
}

// createMetadata creates the metadata table of a new database.
func (s *storage) createMetadata(ctx context.Context) error {
	q := fmt.Sprintf(
		`CREATE TABLE %s (name %s PRIMARY KEY, table_name %s NOT NULL, next_id BIGINT NOT NULL)`,
		s.table(metadataTable), s.d.textType, s.d.textType,
	)

	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// checkMetadata returns *backends.Error with ErrorCodeDatabaseDoesNotExist
// if the metadata table can't be queried.
func (s *storage) checkMetadata(ctx context.Context) error {
	var n int64

	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table(metadataTable))
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		s.l.Debug("Failed to query metadata.", zap.Error(err))
		return backends.NewError(backends.ErrorCodeDatabaseDoesNotExist, errors.New("database storage does not exist"))
	}

	return nil
}

// collectionInfo represents a single metadata row.
type collectionInfo struct {
	table  string
	nextID uint64
}

// querier is implemented by *fsql.DB and *fsql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// collection returns metadata of the given collection.
//
// If lock is true, the metadata row is locked until the end of the transaction.
//
//nolint:lll // for readability
func (s *storage) collection(ctx context.Context, q querier, name string, lock bool) (*collectionInfo, error) {
	query := fmt.Sprintf(`SELECT table_name, next_id FROM %s WHERE name = %s`, s.table(metadataTable), s.p(1))
	if lock {
		query += s.d.forUpdate
	}

	var ci collectionInfo
	var nextID int64

	err := q.QueryRowContext(ctx, query, name).Scan(&ci.table, &nextID)

	switch {
	case err == nil:
		ci.nextID = uint64(nextID)
		return &ci, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, backends.NewError(backends.ErrorCodeCollectionDoesNotExist, fmt.Errorf("collection %q does not exist", name))
	default:
		return nil, lazyerrors.Error(err)
	}
}

// createCollection creates a new collection.
func (s *storage) createCollection(ctx context.Context, name string) error {
	table := tableName(name)

	err := s.db.InTransaction(ctx, func(tx *fsql.Tx) error {
		_, err := s.collection(ctx, tx, name, true)

		switch {
		case err == nil:
			return backends.NewError(backends.ErrorCodeCollectionAlreadyExists, fmt.Errorf("collection %q already exists", name))
		case !backends.ErrorCodeIs(err, backends.ErrorCodeCollectionDoesNotExist):
			return err
		}

		q := fmt.Sprintf(`INSERT INTO %s (name, table_name, next_id) VALUES (%s, %s, 0)`, s.table(metadataTable), s.p(1), s.p(2))
		if _, err = tx.ExecContext(ctx, q, name, table); err != nil {
			if s.d.uniqueViolation(err) {
				return backends.NewError(backends.ErrorCodeCollectionAlreadyExists, fmt.Errorf("collection %q already exists", name))
			}

			return lazyerrors.Error(err)
		}

		q = fmt.Sprintf(`CREATE TABLE %s (id BIGINT PRIMARY KEY, %s)`, s.table(table), s.d.docColumn)
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return lazyerrors.Error(err)
		}

		return nil
	})

	return err
}

// collectionExists returns true if the collection exists.
func (s *storage) collectionExists(ctx context.Context, name string) (bool, error) {
	_, err := s.collection(ctx, s.db, name, false)

	switch {
	case err == nil:
		return true, nil
	case backends.ErrorCodeIs(err, backends.ErrorCodeCollectionDoesNotExist):
		return false, nil
	default:
		return false, err
	}
}

// dropCollection drops the collection and all its records.
func (s *storage) dropCollection(ctx context.Context, name string) error {
	return s.db.InTransaction(ctx, func(tx *fsql.Tx) error {
		ci, err := s.collection(ctx, tx, name, true)
		if err != nil {
			return err
		}

		q := fmt.Sprintf(`DELETE FROM %s WHERE name = %s`, s.table(metadataTable), s.p(1))
		if _, err = tx.ExecContext(ctx, q, name); err != nil {
			return lazyerrors.Error(err)
		}

		q = fmt.Sprintf(`DROP TABLE %s`, s.table(ci.table))
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return lazyerrors.Error(err)
		}

		return nil
	})
}

// store stores documents in a single transaction and returns their record ids.
func (s *storage) store(ctx context.Context, name string, docs []json.RawMessage) ([]uint64, error) {
	var ids []uint64

	err := s.db.InTransaction(ctx, func(tx *fsql.Tx) error {
		ci, err := s.collection(ctx, tx, name, true)
		if err != nil {
			return err
		}

		q := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES (%s, %s)`, s.table(ci.table), s.p(1), s.p(2))

		ids = make([]uint64, len(docs))

		for i, doc := range docs {
			id := ci.nextID + uint64(i)

			if _, err = tx.ExecContext(ctx, q, int64(id), string(doc)); err != nil {
				return s.rejected(err, i)
			}

			ids[i] = id
		}

		return s.advance(ctx, tx, name, ci.nextID+uint64(len(docs)))
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// rejected returns *backends.Error with ErrorCodeDocumentIsInvalid if the engine rejected the i-th document,
// and internal error otherwise.
func (s *storage) rejected(err error, i int) error {
	if s.d.documentRejected(err) {
		return backends.NewError(backends.ErrorCodeDocumentIsInvalid, fmt.Errorf("document %d was rejected: %s", i, err))
	}

	return lazyerrors.Error(err)
}

// advance sets the next record id of the collection.
func (s *storage) advance(ctx context.Context, tx *fsql.Tx, name string, nextID uint64) error {
	q := fmt.Sprintf(`UPDATE %s SET next_id = %s WHERE name = %s`, s.table(metadataTable), s.p(1), s.p(2))
	if _, err := tx.ExecContext(ctx, q, int64(nextID), name); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// fetch returns documents with the given record ids; all of them should exist.
func (s *storage) fetch(ctx context.Context, name string, ids []uint64) ([]json.RawMessage, error) {
	var docs []json.RawMessage

	err := s.db.InTransaction(ctx, func(tx *fsql.Tx) error {
		ci, err := s.collection(ctx, tx, name, false)
		if err != nil {
			return err
		}

		q := fmt.Sprintf(`SELECT doc FROM %s WHERE id = %s`, s.table(ci.table), s.p(1))

		docs = make([]json.RawMessage, len(ids))

		for i, id := range ids {
			var doc string

			err = tx.QueryRowContext(ctx, q, int64(id)).Scan(&doc)

			switch {
			case err == nil:
				docs[i] = json.RawMessage(doc)
			case errors.Is(err, sql.ErrNoRows):
				return backends.NewError(backends.ErrorCodeRecordDoesNotExist, fmt.Errorf("record %d does not exist", id))
			default:
				return lazyerrors.Error(err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return docs, nil
}

// update replaces documents in a single transaction.
//
// If strict is true, a missing record fails the whole call.
// Otherwise, missing records are reported with false values.
//
//nolint:lll // for readability
func (s *storage) update(ctx context.Context, name string, ids []uint64, docs []json.RawMessage, strict bool) ([]bool, error) {
	var updated []bool

	err := s.db.InTransaction(ctx, func(tx *fsql.Tx) error {
		ci, err := s.collection(ctx, tx, name, true)
		if err != nil {
			return err
		}

		q := fmt.Sprintf(`UPDATE %s SET doc = %s WHERE id = %s`, s.table(ci.table), s.p(1), s.p(2))

		updated = make([]bool, len(ids))

		for i, id := range ids {
			var res sql.Result
			if res, err = tx.ExecContext(ctx, q, string(docs[i]), int64(id)); err != nil {
				return s.rejected(err, i)
			}

			var n int64
			if n, err = res.RowsAffected(); err != nil {
				return lazyerrors.Error(err)
			}

			if n == 0 && strict {
				return backends.NewError(backends.ErrorCodeRecordDoesNotExist, fmt.Errorf("record %d does not exist", id))
			}

			updated[i] = n > 0
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// erase removes records with the given ids in a single transaction; missing records are ignored.
func (s *storage) erase(ctx context.Context, name string, ids []uint64) error {
	return s.db.InTransaction(ctx, func(tx *fsql.Tx) error {
		ci, err := s.collection(ctx, tx, name, true)
		if err != nil {
			return err
		}

		q := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, s.table(ci.table), s.p(1))

		for _, id := range ids {
			if _, err = tx.ExecContext(ctx, q, int64(id)); err != nil {
				return lazyerrors.Error(err)
			}
		}

		return nil
	})
}

// records returns records matching the given condition (may be empty), sorted by id.
func (s *storage) records(ctx context.Context, name, where string) ([]backends.Record, error) {
	var res []backends.Record

	err := s.db.InTransaction(ctx, func(tx *fsql.Tx) error {
		ci, err := s.collection(ctx, tx, name, false)
		if err != nil {
			return err
		}

		q := fmt.Sprintf(`SELECT id, doc FROM %s`, s.table(ci.table))
		if where != "" {
			q += ` WHERE (` + where + `)`
		}
		q += ` ORDER BY id`

		rows, err := tx.QueryContext(ctx, q)
		if err != nil {
			if where != "" {
				return backends.NewError(backends.ErrorCodeExecutionFailed, fmt.Errorf("filter failed: %s", err))
			}

			return lazyerrors.Error(err)
		}
		defer rows.Close()

		res = []backends.Record{}

		for rows.Next() {
			var id int64
			var doc string

			if err = rows.Scan(&id, &doc); err != nil {
				return lazyerrors.Error(err)
			}

			res = append(res, backends.Record{ID: uint64(id), Document: json.RawMessage(doc)})
		}

		if err = rows.Err(); err != nil {
			return lazyerrors.Error(err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// size returns the number of present records.
func (s *storage) size(ctx context.Context, name string) (uint64, error) {
	var n int64

	err := s.db.InTransaction(ctx, func(tx *fsql.Tx) error {
		ci, err := s.collection(ctx, tx, name, false)
		if err != nil {
			return err
		}

		q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table(ci.table))
		if err = tx.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return lazyerrors.Error(err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return uint64(n), nil
}

// lastRecordID returns the highest record id ever assigned.
func (s *storage) lastRecordID(ctx context.Context, name string) (uint64, error) {
	ci, err := s.collection(ctx, s.db, name, false)
	if err != nil {
		return 0, err
	}

	if ci.nextID == 0 {
		return 0, backends.NewError(backends.ErrorCodeCollectionIsEmpty, fmt.Errorf("collection %q is empty", name))
	}

	return ci.nextID - 1, nil
}

// commit flushes changes to durable storage.
func (s *storage) commit(ctx context.Context) error {
	if s.d.commit == "" {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, s.d.commit); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// close waits for acquired storage to be released and closes the database connection pool.
func (s *storage) close() {
	s.inUse.Lock()
	defer s.inUse.Unlock()

	s.closeLocked()
}

// closeLocked closes the database connection pool; s.inUse should be locked.
func (s *storage) closeLocked() {
	if s.closed {
		return
	}

	s.closed = true

	if err := s.db.Close(); err != nil {
		s.l.Warn("Failed to close database.", zap.Error(err))
	}
}

// drop closes the database like close and removes all its storage.
func (s *storage) drop(ctx context.Context) error {
	s.inUse.Lock()

	var err error
	if s.destroy != nil && !s.closed {
		err = s.destroy(ctx)
	}

	s.closeLocked()

	s.inUse.Unlock()

	for _, f := range s.files {
		if e := os.Remove(f); e != nil && !errors.Is(e, fs.ErrNotExist) && err == nil {
			err = lazyerrors.Error(e)
		}
	}

	return err
}
