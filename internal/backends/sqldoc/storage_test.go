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
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/util/testutil"
)

// storageConfigs returns database configurations of all engines available for tests.
func storageConfigs(t *testing.T) map[string]func(t *testing.T) json.RawMessage {
	t.Helper()

	return map[string]func(t *testing.T) json.RawMessage{
		"sqlite": func(t *testing.T) json.RawMessage {
			return json.RawMessage(`{"path":"db.sqlite"}`)
		},
		"postgresql": func(t *testing.T) json.RawMessage {
			return json.RawMessage(fmt.Sprintf(`{"uri":%q}`, testutil.PostgreSQLURI(t)))
		},
		"mysql": func(t *testing.T) json.RawMessage {
			return json.RawMessage(fmt.Sprintf(`{"dsn":%q}`, testutil.MySQLDSN(t)))
		},
	}
}

// setupStorage creates a new database of the given type and drops it when the test is done.
func setupStorage(t *testing.T, typ string, config json.RawMessage) *storage {
	t.Helper()

	ctx := testutil.Ctx(t)

	d, err := lookupDialect(typ)
	require.NoError(t, err)

	s, err := d.open(ctx, d, &openParams{
		Root:   t.TempDir(),
		Name:   testutil.DatabaseName(t),
		Config: config,
		Create: true,
		L:      testutil.Logger(t),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.drop(ctx))
	})

	return s
}

func docs(ss ...string) []json.RawMessage {
	res := make([]json.RawMessage, len(ss))
	for i, s := range ss {
		res[i] = json.RawMessage(s)
	}

	return res
}

func TestStorage(t *testing.T) {
	t.Parallel()

	for typ, config := range storageConfigs(t) {
		typ, config := typ, config

		t.Run(typ, func(t *testing.T) {
			t.Parallel()

			ctx := testutil.Ctx(t)
			s := setupStorage(t, typ, config(t))
			name := testutil.CollectionName(t)

			_, err := s.store(ctx, name, docs(`{}`))
			assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeCollectionDoesNotExist), "%v", err)

			require.NoError(t, s.createCollection(ctx, name))

			err = s.createCollection(ctx, name)
			assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeCollectionAlreadyExists), "%v", err)

			exists, err := s.collectionExists(ctx, name)
			require.NoError(t, err)
			assert.True(t, exists)

			_, err = s.lastRecordID(ctx, name)
			assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeCollectionIsEmpty), "%v", err)

			ids, err := s.store(ctx, name, docs(`{"name":"Matthieu"}`, `{"name":"Rob"}`, `{"name":"Phil"}`))
			require.NoError(t, err)
			assert.Equal(t, []uint64{0, 1, 2}, ids)

			size, err := s.size(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, uint64(3), size)

			last, err := s.lastRecordID(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), last)

			fetched, err := s.fetch(ctx, name, []uint64{1})
			require.NoError(t, err)
			assert.JSONEq(t, `{"name":"Rob"}`, string(fetched[0]))

			_, err = s.fetch(ctx, name, []uint64{1, 42})
			assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeRecordDoesNotExist), "%v", err)

			updated, err := s.update(ctx, name, []uint64{1, 42}, docs(`{"name":"Robert"}`, `{}`), false)
			require.NoError(t, err)
			assert.Equal(t, []bool{true, false}, updated)

			_, err = s.update(ctx, name, []uint64{42}, docs(`{}`), true)
			assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeRecordDoesNotExist), "%v", err)

			// the same document again
			updated, err = s.update(ctx, name, []uint64{1}, docs(`{"name":"Robert"}`), true)
			require.NoError(t, err)
			assert.Equal(t, []bool{true}, updated)

			require.NoError(t, s.erase(ctx, name, []uint64{2, 42}))

			ids, err = s.store(ctx, name, docs(`{"name":"Phil"}`))
			require.NoError(t, err)
			assert.Equal(t, []uint64{3}, ids, "record ids are never reused")

			records, err := s.records(ctx, name, "")
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, []uint64{0, 1, 3}, []uint64{records[0].ID, records[1].ID, records[2].ID})
			assert.JSONEq(t, `{"name":"Robert"}`, string(records[1].Document))

			require.NoError(t, s.commit(ctx))

			require.NoError(t, s.dropCollection(ctx, name))

			exists, err = s.collectionExists(ctx, name)
			require.NoError(t, err)
			assert.False(t, exists)

			err = s.dropCollection(ctx, name)
			assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeCollectionDoesNotExist), "%v", err)

			require.NoError(t, s.createCollection(ctx, name))

			_, err = s.lastRecordID(ctx, name)
			assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeCollectionIsEmpty), "%v", err)
		})
	}
}

func TestStorageBatchAtomicity(t *testing.T) {
	t.Parallel()

	for typ, config := range storageConfigs(t) {
		typ, config := typ, config

		t.Run(typ, func(t *testing.T) {
			t.Parallel()

			ctx := testutil.Ctx(t)
			s := setupStorage(t, typ, config(t))
			name := testutil.CollectionName(t)

			require.NoError(t, s.createCollection(ctx, name))

			_, err := s.store(ctx, name, docs(`{"a":1}`, `{"a":2}`))
			require.NoError(t, err)

			// the storage rejects the second document after the first one was inserted
			_, err = s.store(ctx, name, docs(`{"a":3}`, `{"a":`))
			assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDocumentIsInvalid), "%v", err)

			size, err := s.size(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), size)

			last, err := s.lastRecordID(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), last)

			_, err = s.update(ctx, name, []uint64{0, 1}, docs(`{"a":10}`, `{"a":`), false)
			assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDocumentIsInvalid), "%v", err)

			fetched, err := s.fetch(ctx, name, []uint64{0, 1})
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(fetched[0]))
			assert.JSONEq(t, `{"a":2}`, string(fetched[1]))
		})
	}
}

func TestStorageExecute(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setupStorage(t, "sqlite", json.RawMessage(`{"path":":memory:"}`))

	vars, err := s.execute(ctx, `
		CREATE TABLE kv (k TEXT, v INTEGER); -- scratch table
		INSERT INTO kv VALUES ('a;b', 1), ('c', 2);
		SELECT COUNT(*) AS n, SUM(v) AS total, 'x' AS s, json_object('k', 'a;b') AS obj FROM kv
	`, []string{"n", "total", "s", "obj", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"n":       "2",
		"total":   "3",
		"s":       `"x"`,
		"obj":     `{"k":"a;b"}`,
		"missing": "null",
	}, vars)

	_, err = s.execute(ctx, `SELECT * FROM no_such_table`, nil)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeExecutionFailed), "%v", err)

	_, err = s.execute(ctx, ` ; `, nil)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeExecutionFailed), "%v", err)

	// failed statements are rolled back together with previous ones
	_, err = s.execute(ctx, `INSERT INTO kv VALUES ('d', 4); SELECT * FROM no_such_table`, nil)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeExecutionFailed), "%v", err)

	vars, err = s.execute(ctx, `SELECT COUNT(*) AS n FROM kv`, []string{"n"})
	require.NoError(t, err)
	assert.Equal(t, "2", vars["n"])
}

func TestStorageExecuteCollections(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setupStorage(t, "sqlite", json.RawMessage(`{"path":":memory:"}`))

	require.NoError(t, s.createCollection(ctx, "My People"))

	_, err := s.store(ctx, "My People", docs(`{"name":"Matthieu"}`, `{"name":"Rob"}`))
	require.NoError(t, err)

	vars, err := s.execute(ctx, `
		DELETE FROM {{My People}} WHERE id = 0;
		SELECT COUNT(*) AS n FROM {{ My People }}
	`, []string{"n"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"n": "1"}, vars)

	size, err := s.size(ctx, "My People")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), size)

	_, err = s.execute(ctx, `SELECT COUNT(*) FROM {{missing}}`, nil)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeExecutionFailed), "%v", err)
	assert.ErrorContains(t, err, `collection "missing" does not exist`)
}

func TestStorageFailures(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setupStorage(t, "sqlite", json.RawMessage(`{"path":":memory:"}`))
	name := testutil.CollectionName(t)

	require.NoError(t, s.createCollection(ctx, name))

	_, err := s.store(ctx, name, docs(`{"a":1}`))
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `DROP TABLE `+s.table(tableName(name)))
	require.NoError(t, err)

	// storage failures are not reported as invalid documents
	_, err = s.store(ctx, name, docs(`{"a":2}`))
	require.Error(t, err)
	assert.False(t, backends.ErrorCodeIs(err, backends.ErrorCodeDocumentIsInvalid), "%v", err)

	_, err = s.update(ctx, name, []uint64{0}, docs(`{"a":3}`), false)
	require.Error(t, err)
	assert.False(t, backends.ErrorCodeIs(err, backends.ErrorCodeDocumentIsInvalid), "%v", err)
}

func TestStorageClose(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setupStorage(t, "sqlite", json.RawMessage(`{"path":"db.sqlite"}`))
	name := testutil.CollectionName(t)

	require.NoError(t, s.createCollection(ctx, name))

	release, err := s.acquire()
	require.NoError(t, err)

	closed := make(chan struct{})

	go func() {
		s.close()
		close(closed)
	}()

	// acquired storage is still usable
	_, err = s.store(ctx, name, docs(`{}`))
	require.NoError(t, err)

	select {
	case <-closed:
		t.Fatal("storage was closed while acquired")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	<-closed

	_, err = s.acquire()
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)
}

func TestStorageFilter(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setupStorage(t, "sqlite", json.RawMessage(`{"path":":memory:"}`))
	name := testutil.CollectionName(t)

	require.NoError(t, s.createCollection(ctx, name))

	_, err := s.store(ctx, name, docs(`{"name":"Matthieu","age":30}`, `{"name":"Rob","age":40}`, `{"name":"Phil","age":50}`))
	require.NoError(t, err)

	records, err := s.records(ctx, name, `json_extract(doc, '$.age') >= 40`)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].ID)
	assert.Equal(t, uint64(2), records[1].ID)

	records, err = s.records(ctx, name, `json_extract(doc, '$.age') > 100`)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = s.records(ctx, name, `no_such_function(doc)`)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeExecutionFailed), "%v", err)
}

func TestSQLiteOpen(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	root := t.TempDir()
	l := testutil.Logger(t)

	d, err := lookupDialect("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.typ)

	open := func(config string, create bool) (*storage, error) {
		return d.open(ctx, d, &openParams{
			Root:   root,
			Name:   "db",
			Config: json.RawMessage(config),
			Create: create,
			L:      l,
		})
	}

	_, err = open(`{"path":"sub/db.sqlite"}`, false)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)

	s, err := open(`{"path":"sub/db.sqlite"}`, true)
	require.NoError(t, err)
	require.NoError(t, s.createCollection(ctx, "c"))
	s.close()

	assert.FileExists(t, filepath.Join(root, "sub", "db.sqlite"))

	_, err = open(`{"path":"sub/db.sqlite"}`, true)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseAlreadyExists), "%v", err)

	s, err = open(`{"path":"sub/db.sqlite"}`, false)
	require.NoError(t, err)

	exists, err := s.collectionExists(ctx, "c")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.drop(ctx))
	assert.NoFileExists(t, filepath.Join(root, "sub", "db.sqlite"))

	_, err = open(`{"path":":memory:"}`, false)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)

	_, err = open(`{}`, true)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseConfigIsInvalid), "%v", err)

	_, err = open(`{"path":42}`, true)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseConfigIsInvalid), "%v", err)
}

func TestDialects(t *testing.T) {
	t.Parallel()

	_, err := lookupDialect("oracle")
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseTypeIsUnknown), "%v", err)

	assert.Contains(t, Types(), "sqlite")
	assert.Contains(t, Types(), "mysql")

	if !slices.Contains(Types(), "hana") {
		_, err = lookupDialect("hana")
		assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseTypeIsDisabled), "%v", err)
	}
}

func TestTableName(t *testing.T) {
	t.Parallel()

	assert.Regexp(t, `^c_mycollection_[0-9a-f]{8}$`, tableName("mycollection"))
	assert.Regexp(t, `^c_my_collection_[0-9a-f]{8}$`, tableName("My Collection"))
	assert.NotEqual(t, tableName("a b"), tableName("a_b"))
	assert.LessOrEqual(t, len(tableName(string(make([]byte, 120)))), 51)
}
