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

package kvdoc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
)

// defaultType is the only supported database type.
const defaultType = "bolt"

// collectionsBucket contains a nested bucket for each collection.
var collectionsBucket = []byte(backends.ReservedPrefix + "collections")

// boltConfig represents the configuration of bbolt database.
type boltConfig struct {
	// File path relative to provider's root.
	Path string `json:"path"`
}

// storage provides access to a single database stored in bbolt file.
type storage struct {
	db *bbolt.DB
	l  *zap.Logger

	// set by close; transactions that started before close are finished by bbolt
	closed atomic.Bool
}

// openParams represents the parameters of openStorage function.
type openParams struct {
	Root   string
	Type   string
	Config json.RawMessage
	Create bool
	L      *zap.Logger
}

// openStorage opens bbolt file.
//
// If params.Create is true, the file should not exist; otherwise, it should exist and contain a database.
func openStorage(params *openParams) (*storage, error) {
	if params.Type != "" && params.Type != defaultType {
		return nil, backends.NewError(
			backends.ErrorCodeDatabaseTypeIsUnknown,
			fmt.Errorf("unknown database type %q", params.Type),
		)
	}

	var c boltConfig

	d := json.NewDecoder(bytes.NewReader(params.Config))
	d.DisallowUnknownFields()

	if err := d.Decode(&c); err != nil {
		return nil, backends.NewError(backends.ErrorCodeDatabaseConfigIsInvalid, err)
	}

	if c.Path == "" {
		return nil, backends.NewError(backends.ErrorCodeDatabaseConfigIsInvalid, errors.New(`"path" is required`))
	}

	file := c.Path
	if !filepath.IsAbs(file) {
		file = filepath.Join(params.Root, file)
	}

	_, err := os.Stat(file)
	exists := err == nil

	switch {
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, lazyerrors.Error(err)
	case params.Create && exists:
		return nil, backends.NewError(backends.ErrorCodeDatabaseAlreadyExists, fmt.Errorf("file %q already exists", c.Path))
	case !params.Create && !exists:
		return nil, backends.NewError(backends.ErrorCodeDatabaseDoesNotExist, fmt.Errorf("file %q does not exist", c.Path))
	}

	if err = os.MkdirAll(filepath.Dir(file), 0o777); err != nil {
		return nil, lazyerrors.Error(err)
	}

	db, err := bbolt.Open(file, 0o666, &bbolt.Options{
		Timeout: time.Second,
		NoSync:  true,
	})
	if err != nil {
		if errors.Is(err, bbolt.ErrInvalid) || errors.Is(err, bbolt.ErrVersionMismatch) {
			return nil, backends.NewError(backends.ErrorCodeDatabaseConfigIsInvalid, fmt.Errorf("file %q: %s", c.Path, err))
		}

		return nil, lazyerrors.Error(err)
	}

	s := &storage{
		db: db,
		l:  params.L,
	}

	if params.Create {
		err = db.Update(func(tx *bbolt.Tx) error {
			_, e := tx.CreateBucket(collectionsBucket)
			return e
		})

		if err == nil {
			err = db.Sync()
		}
	} else {
		err = db.View(func(tx *bbolt.Tx) error {
			if tx.Bucket(collectionsBucket) == nil {
				return backends.NewError(
					backends.ErrorCodeDatabaseDoesNotExist,
					fmt.Errorf("file %q does not contain a database", c.Path),
				)
			}

			return nil
		})
	}

	if err != nil {
		s.close()

		if params.Create {
			_ = os.Remove(file)
		}

		if backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist) {
			return nil, err
		}

		return nil, lazyerrors.Error(err)
	}

	return s, nil
}

// key returns bucket key for the given record id.
func key(id uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), id)
}

// bucket returns collection's bucket, or *backends.Error with ErrorCodeCollectionDoesNotExist.
func bucket(tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	b := tx.Bucket(collectionsBucket).Bucket([]byte(name))
	if b == nil {
		return nil, backends.NewError(backends.ErrorCodeCollectionDoesNotExist, fmt.Errorf("collection %q does not exist", name))
	}

	return b, nil
}

// update runs f in a read-write transaction.
//
// Returned *backends.Error values are passed as is.
func (s *storage) update(f func(tx *bbolt.Tx) error) error {
	return s.tx(s.db.Update, f)
}

// view runs f in a read-only transaction.
func (s *storage) view(f func(tx *bbolt.Tx) error) error {
	return s.tx(s.db.View, f)
}

// tx runs f with the given bbolt transaction function.
func (s *storage) tx(run func(func(*bbolt.Tx) error) error, f func(tx *bbolt.Tx) error) error {
	err := run(f)
	if err == nil {
		return nil
	}

	var e *backends.Error
	if errors.As(err, &e) {
		return err
	}

	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return errDetached()
	}

	return lazyerrors.Error(err)
}

// errDetached returns *backends.Error for operations on detached or destroyed database.
func errDetached() error {
	return backends.NewError(backends.ErrorCodeDatabaseDoesNotExist, errors.New("database was detached"))
}

// createCollection creates a new collection.
func (s *storage) createCollection(name string) error {
	return s.update(func(tx *bbolt.Tx) error {
		_, err := tx.Bucket(collectionsBucket).CreateBucket([]byte(name))
		if errors.Is(err, bbolt.ErrBucketExists) {
			return backends.NewError(backends.ErrorCodeCollectionAlreadyExists, fmt.Errorf("collection %q already exists", name))
		}

		return err
	})
}

// collectionExists returns true if the collection exists.
func (s *storage) collectionExists(name string) (bool, error) {
	var exists bool

	err := s.view(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(collectionsBucket).Bucket([]byte(name)) != nil
		return nil
	})

	return exists, err
}

// dropCollection drops the collection and all its records.
func (s *storage) dropCollection(name string) error {
	return s.update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(collectionsBucket).DeleteBucket([]byte(name))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return backends.NewError(backends.ErrorCodeCollectionDoesNotExist, fmt.Errorf("collection %q does not exist", name))
		}

		return err
	})
}

// store stores documents in a single transaction and returns their record ids.
func (s *storage) store(name string, docs []json.RawMessage) ([]uint64, error) {
	var ids []uint64

	err := s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}

		ids = make([]uint64, len(docs))

		for i, doc := range docs {
			if !json.Valid(doc) {
				return backends.NewError(backends.ErrorCodeDocumentIsInvalid, fmt.Errorf("document %d is not valid JSON", i))
			}

			// sequence starts with 1, ids start with 0
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}

			id := seq - 1

			if err = b.Put(key(id), doc); err != nil {
				return err
			}

			ids[i] = id
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// fetch returns documents with the given record ids; all of them should exist.
func (s *storage) fetch(name string, ids []uint64) ([]json.RawMessage, error) {
	var docs []json.RawMessage

	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}

		docs = make([]json.RawMessage, len(ids))

		for i, id := range ids {
			v := b.Get(key(id))
			if v == nil {
				return backends.NewError(backends.ErrorCodeRecordDoesNotExist, fmt.Errorf("record %d does not exist", id))
			}

			// values are valid only during the transaction
			docs[i] = append(json.RawMessage(nil), v...)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return docs, nil
}

// replace replaces documents in a single transaction.
//
// If strict is true, a missing record fails the whole call.
// Otherwise, missing records are reported with false values.
func (s *storage) replace(name string, ids []uint64, docs []json.RawMessage, strict bool) ([]bool, error) {
	var updated []bool

	err := s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}

		updated = make([]bool, len(ids))

		for i, id := range ids {
			if !json.Valid(docs[i]) {
				return backends.NewError(backends.ErrorCodeDocumentIsInvalid, fmt.Errorf("document %d is not valid JSON", i))
			}

			k := key(id)

			if b.Get(k) == nil {
				if strict {
					return backends.NewError(backends.ErrorCodeRecordDoesNotExist, fmt.Errorf("record %d does not exist", id))
				}

				continue
			}

			if err = b.Put(k, docs[i]); err != nil {
				return err
			}

			updated[i] = true
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// erase removes records with the given ids in a single transaction; missing records are ignored.
func (s *storage) erase(name string, ids []uint64) error {
	return s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}

		for _, id := range ids {
			if err = b.Delete(key(id)); err != nil {
				return err
			}
		}

		return nil
	})
}

// records returns up to limit records with ids starting from the given one, sorted by id.
//
// The second returned value is true if there are more records.
func (s *storage) records(name string, from uint64, limit int) ([]backends.Record, bool, error) {
	res := []backends.Record{}
	var more bool

	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}

		c := b.Cursor()

		for k, v := c.Seek(key(from)); k != nil; k, v = c.Next() {
			if len(res) == limit {
				more = true
				break
			}

			res = append(res, backends.Record{
				ID:       binary.BigEndian.Uint64(k),
				Document: append(json.RawMessage(nil), v...),
			})
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return res, more, nil
}

// size returns the number of present records.
func (s *storage) size(name string) (uint64, error) {
	var n uint64

	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}

		n = uint64(b.Stats().KeyN)

		return nil
	})

	return n, err
}

// lastRecordID returns the highest record id ever assigned.
func (s *storage) lastRecordID(name string) (uint64, error) {
	var seq uint64

	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}

		seq = b.Sequence()

		return nil
	})
	if err != nil {
		return 0, err
	}

	if seq == 0 {
		return 0, backends.NewError(backends.ErrorCodeCollectionIsEmpty, fmt.Errorf("collection %q is empty", name))
	}

	return seq - 1, nil
}

// commit flushes changes to durable storage.
func (s *storage) commit() error {
	if s.closed.Load() {
		return errDetached()
	}

	if err := s.db.Sync(); err != nil {
		if s.closed.Load() {
			return errDetached()
		}

		return lazyerrors.Error(err)
	}

	return nil
}

// close syncs and closes the database file.
func (s *storage) close() {
	if s.closed.Swap(true) {
		return
	}

	if err := s.db.Sync(); err != nil {
		s.l.Warn("Failed to sync database.", zap.Error(err))
	}

	if err := s.db.Close(); err != nil {
		s.l.Warn("Failed to close database.", zap.Error(err))
	}
}

// drop closes the database and removes its file.
func (s *storage) drop() error {
	path := s.db.Path()

	s.close()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return lazyerrors.Error(err)
	}

	return nil
}
