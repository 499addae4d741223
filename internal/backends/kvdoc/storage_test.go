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
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/util/testutil"
)

// setupStorage creates a new database in a temporary directory.
func setupStorage(t *testing.T) *storage {
	t.Helper()

	s, err := openStorage(&openParams{
		Root:   t.TempDir(),
		Config: json.RawMessage(`{"path":"db.bolt"}`),
		Create: true,
		L:      testutil.Logger(t),
	})
	require.NoError(t, err)
	t.Cleanup(s.close)

	return s
}

func TestOpenStorage(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	l := testutil.Logger(t)

	for name, tc := range map[string]struct {
		typ    string
		config string
		create bool
		code   backends.ErrorCode
	}{
		"UnknownType": {
			typ:    "sqlite",
			config: `{"path":"a"}`,
			create: true,
			code:   backends.ErrorCodeDatabaseTypeIsUnknown,
		},
		"NoPath": {
			config: `{}`,
			create: true,
			code:   backends.ErrorCodeDatabaseConfigIsInvalid,
		},
		"UnknownField": {
			config: `{"path":"a","uri":"b"}`,
			create: true,
			code:   backends.ErrorCodeDatabaseConfigIsInvalid,
		},
		"AttachMissing": {
			config: `{"path":"missing"}`,
			code:   backends.ErrorCodeDatabaseDoesNotExist,
		},
	} {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := openStorage(&openParams{
				Root:   root,
				Type:   tc.typ,
				Config: json.RawMessage(tc.config),
				Create: tc.create,
				L:      l,
			})
			assert.True(t, backends.ErrorCodeIs(err, tc.code), "%v", err)
		})
	}

	t.Run("Lifecycle", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		params := &openParams{
			Root:   dir,
			Type:   defaultType,
			Config: json.RawMessage(`{"path":"sub/db.bolt"}`),
			Create: true,
			L:      l,
		}

		s, err := openStorage(params)
		require.NoError(t, err)
		require.NoError(t, s.createCollection("c"))
		s.close()

		_, err = openStorage(params)
		assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseAlreadyExists), "%v", err)

		params.Create = false
		s, err = openStorage(params)
		require.NoError(t, err)

		exists, err := s.collectionExists("c")
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, s.drop())

		_, err = os.Stat(filepath.Join(dir, "sub", "db.bolt"))
		assert.True(t, os.IsNotExist(err), "%v", err)
	})

	t.Run("NotDatabase", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "text"), []byte("not a bbolt file"), 0o666))

		_, err := openStorage(&openParams{
			Root:   dir,
			Config: json.RawMessage(`{"path":"text"}`),
			L:      l,
		})
		require.Error(t, err)
	})
}

func TestStorage(t *testing.T) {
	t.Parallel()

	s := setupStorage(t)

	require.NoError(t, s.createCollection("mycollection"))

	err := s.createCollection("mycollection")
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeCollectionAlreadyExists), "%v", err)

	_, err = s.lastRecordID("mycollection")
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeCollectionIsEmpty), "%v", err)

	ids, err := s.store("mycollection", []json.RawMessage{
		json.RawMessage(`{"name":"Matthieu"}`),
		json.RawMessage(`{"name":"Rob"}`),
		json.RawMessage(`{"name":"Phil"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, ids)

	n, err := s.size("mycollection")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	last, err := s.lastRecordID("mycollection")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)

	docs, err := s.fetch("mycollection", []uint64{1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Rob"}`, string(docs[0]))

	_, err = s.fetch("mycollection", []uint64{1, 3})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeRecordDoesNotExist), "%v", err)

	updated, err := s.replace("mycollection", []uint64{0, 3}, []json.RawMessage{
		json.RawMessage(`{"name":"Matt"}`),
		json.RawMessage(`{}`),
	}, false)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, updated)

	_, err = s.replace("mycollection", []uint64{3}, []json.RawMessage{json.RawMessage(`{}`)}, true)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeRecordDoesNotExist), "%v", err)

	require.NoError(t, s.erase("mycollection", []uint64{2, 42}))

	records, more, err := s.records("mycollection", 0, 1)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, []backends.Record{{ID: 0, Document: json.RawMessage(`{"name":"Matt"}`)}}, records)

	records, more, err = s.records("mycollection", 1, 10)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, []backends.Record{{ID: 1, Document: json.RawMessage(`{"name":"Rob"}`)}}, records)

	ids, err = s.store("mycollection", []json.RawMessage{json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, ids, "ids are never reused")

	require.NoError(t, s.commit())

	require.NoError(t, s.dropCollection("mycollection"))

	err = s.dropCollection("mycollection")
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeCollectionDoesNotExist), "%v", err)

	_, err = s.size("mycollection")
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeCollectionDoesNotExist), "%v", err)
}

func TestStorageBatchAtomicity(t *testing.T) {
	t.Parallel()

	s := setupStorage(t)

	require.NoError(t, s.createCollection("c"))

	_, err := s.store("c", []json.RawMessage{
		json.RawMessage(`{"a":1}`),
		json.RawMessage(`{"a":`),
	})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDocumentIsInvalid), "%v", err)

	n, err := s.size("c")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.lastRecordID("c")
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeCollectionIsEmpty), "%v", err)

	ids, err := s.store("c", []json.RawMessage{json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, ids)

	_, err = s.replace("c", []uint64{0, 0}, []json.RawMessage{
		json.RawMessage(`{"a":2}`),
		json.RawMessage(`[`),
	}, false)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDocumentIsInvalid), "%v", err)

	docs, err := s.fetch("c", []uint64{0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(docs[0]))
}

func TestStorageClosed(t *testing.T) {
	t.Parallel()

	s := setupStorage(t)

	require.NoError(t, s.createCollection("c"))

	var wg sync.WaitGroup
	errs := make(chan error, 10)

	for i := 0; i < cap(errs); i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for {
				if _, err := s.store("c", []json.RawMessage{json.RawMessage(`{}`)}); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	s.close()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)
	}

	_, err := s.size("c")
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)

	err = s.commit()
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)
}
