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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/rpc"
	"github.com/FerretDB/polydoc/internal/util/async"
	"github.com/FerretDB/polydoc/internal/util/testutil"
)

// testProviderID is used by all tests.
const testProviderID = 42

// setup creates a local engine with a provider, and returns its address with Admin and Client adapters.
func setup(t *testing.T, config string) (string, backends.Provider, backends.Admin, backends.Client) {
	t.Helper()

	ctx := testutil.Ctx(t)
	l := testutil.Logger(t)

	e := rpc.NewLocalEngine(&rpc.LocalEngineOpts{L: l})
	t.Cleanup(e.Finalize)

	pool := async.NewPool(&async.NewPoolParams{Name: t.Name(), Size: 4, L: l})
	t.Cleanup(pool.Close)

	if config == "" {
		config = fmt.Sprintf(`{"root":%q}`, t.TempDir())
	}

	p, err := NewProvider(ctx, &NewProviderParams{
		Engine:     e,
		Pool:       pool,
		ProviderID: testProviderID,
		Config:     json.RawMessage(config),
		L:          l,
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)

	params := &NewClientParams{Engine: e, L: l}

	return e.Self().Address(), p, NewAdmin(params), NewClient(params)
}

func TestScenario(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	addr, p, a, c := setup(t, "")

	err := a.CreateDatabase(ctx, &backends.CreateDatabaseParams{
		Address:    addr,
		ProviderID: testProviderID,
		Name:       "mydb",
		Config:     json.RawMessage(`{"path":"mydb"}`),
	})
	require.NoError(t, err)

	err = a.CreateDatabase(ctx, &backends.CreateDatabaseParams{
		Address:    addr,
		ProviderID: testProviderID,
		Name:       "mydb",
		Config:     json.RawMessage(`{"path":"mydb"}`),
	})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseAlreadyExists), "%v", err)

	ph, err := c.CreateProviderHandle(ctx, addr, testProviderID)
	require.NoError(t, err)

	db, err := c.Open(ctx, &backends.OpenParams{Handle: ph, Name: "mydb", Check: true})
	require.NoError(t, err)
	assert.Equal(t, "mydb", db.Name())
	assert.True(t, db.Valid())

	coll, err := db.CreateCollection(ctx, &backends.CreateCollectionParams{Name: "mycollection"})
	require.NoError(t, err)

	for i, name := range []string{"Matthieu", "Rob", "Phil"} {
		res, err := coll.Store(ctx, &backends.StoreParams{
			Document: json.RawMessage(fmt.Sprintf(`{"name":%q}`, name)),
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(i), res.RecordID)
	}

	size, err := coll.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), size)

	last, err := coll.LastRecordID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)

	fetched, err := coll.Fetch(ctx, &backends.FetchParams{RecordID: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Rob"}`, string(fetched.Document))

	assert.Contains(t, p.Config(), `"mydb":{"type":"sqlite","config":{"path":"mydb"}}`)

	list, err := a.ListDatabases(ctx, &backends.ListDatabasesParams{Address: addr, ProviderID: testProviderID})
	require.NoError(t, err)
	assert.Equal(t, []backends.DatabaseInfo{{Name: "mydb", Type: "sqlite"}}, list.Databases)
}

func TestDatabaseLifecycle(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	addr, _, a, c := setup(t, "")

	ph, err := c.CreateProviderHandle(ctx, addr, testProviderID)
	require.NoError(t, err)

	_, err = c.Open(ctx, &backends.OpenParams{Handle: ph, Name: "db", Check: true})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)

	// without check, errors are reported by operations
	db, err := c.Open(ctx, &backends.OpenParams{Handle: ph, Name: "db"})
	require.NoError(t, err)

	_, err = db.CollectionExists(ctx, &backends.CollectionExistsParams{Name: "c"})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)

	config := json.RawMessage(`{"path":"db.sqlite"}`)

	require.NoError(t, a.CreateDatabase(ctx, &backends.CreateDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "db", Config: config,
	}))

	coll, err := db.CreateCollection(ctx, &backends.CreateCollectionParams{Name: "c"})
	require.NoError(t, err)

	_, err = coll.Store(ctx, &backends.StoreParams{Document: json.RawMessage(`{}`), Commit: true})
	require.NoError(t, err)

	require.NoError(t, a.DetachDatabase(ctx, &backends.DetachDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "db",
	}))

	_, err = coll.Size(ctx)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)

	err = a.DetachDatabase(ctx, &backends.DetachDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "db",
	})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)

	require.NoError(t, a.AttachDatabase(ctx, &backends.AttachDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "db", Config: config,
	}))

	size, err := coll.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), size)

	require.NoError(t, a.DestroyDatabase(ctx, &backends.DestroyDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "db",
	}))

	err = a.AttachDatabase(ctx, &backends.AttachDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "db", Config: config,
	})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)

	err = a.CreateDatabase(ctx, &backends.CreateDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "db", Type: "oracle", Config: config,
	})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseTypeIsUnknown), "%v", err)

	err = a.CreateDatabase(ctx, &backends.CreateDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "bad name", Config: config,
	})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseNameIsInvalid), "%v", err)
}

func TestSecurityToken(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	addr, p, a, _ := setup(t, fmt.Sprintf(`{"root":%q,"token":"secret"}`, t.TempDir()))

	params := &backends.CreateDatabaseParams{
		Address:    addr,
		ProviderID: testProviderID,
		Name:       "db",
		Config:     json.RawMessage(`{"path":":memory:"}`),
	}

	err := a.CreateDatabase(ctx, params)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeSecurityTokenMismatch), "%v", err)

	params.Token = "wrong"
	err = a.CreateDatabase(ctx, params)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeSecurityTokenMismatch), "%v", err)

	params.Token = "secret"
	require.NoError(t, a.CreateDatabase(ctx, params))

	assert.NotContains(t, p.Config(), "secret")

	require.True(t, p.Capabilities().Has(backends.CapSecurityToken))
	require.NoError(t, p.SetSecurityToken(ctx, ""))

	require.NoError(t, a.DestroyDatabase(ctx, &backends.DestroyDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "db",
	}))
}

func TestExecuteAndFilter(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	addr, _, a, c := setup(t, "")

	require.NoError(t, a.CreateDatabase(ctx, &backends.CreateDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "db", Config: json.RawMessage(`{"path":":memory:"}`),
	}))

	ph, err := c.CreateProviderHandle(ctx, addr, testProviderID)
	require.NoError(t, err)

	db, err := c.Open(ctx, &backends.OpenParams{Handle: ph, Name: "db"})
	require.NoError(t, err)
	require.True(t, db.Capabilities().Has(backends.CapExecute))

	coll, err := db.CreateCollection(ctx, &backends.CreateCollectionParams{Name: "people"})
	require.NoError(t, err)

	ids, err := coll.StoreMulti(ctx, &backends.StoreMultiParams{
		Documents: []json.RawMessage{
			json.RawMessage(`{"name":"Matthieu","age":30}`),
			json.RawMessage(`{"name":"Rob","age":40}`),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1}, ids.RecordIDs)

	filtered, err := coll.Filter(ctx, &backends.FilterParams{Code: `json_extract(doc, '$.name') = 'Rob'`})
	require.NoError(t, err)
	require.Len(t, filtered.Records, 1)
	assert.Equal(t, uint64(1), filtered.Records[0].ID)

	res, err := db.Execute(ctx, &backends.ExecuteParams{
		Code: `SELECT COUNT(*) AS n FROM {{people}}`,
		Vars: []string{"n", "other"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"n": "2", "other": "null"}, res.Vars)

	require.NoError(t, db.Commit(ctx))

	updated, err := coll.UpdateMulti(ctx, &backends.UpdateMultiParams{
		RecordIDs: []uint64{0, 5},
		Documents: []json.RawMessage{json.RawMessage(`{"name":"Matt"}`), json.RawMessage(`{}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, updated.Updated)

	err = coll.Update(ctx, &backends.UpdateParams{RecordID: 5, Document: json.RawMessage(`{}`)})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeRecordDoesNotExist), "%v", err)

	require.NoError(t, coll.EraseMulti(ctx, &backends.EraseMultiParams{RecordIDs: []uint64{0, 1, 5}}))

	all, err := coll.All(ctx, new(backends.AllParams))
	require.NoError(t, err)
	assert.Empty(t, all.Records)

	last, err := coll.LastRecordID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last)
}

func TestUnreachable(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	addr, p, a, c := setup(t, "")

	ph, err := c.CreateProviderHandle(ctx, addr, testProviderID+1)
	require.NoError(t, err)

	_, err = c.Open(ctx, &backends.OpenParams{Handle: ph, Name: "db", Check: true})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeProviderIsUnreachable), "%v", err)

	_, err = c.CreateProviderHandle(ctx, "local://no-such-engine", testProviderID)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeProviderIsUnreachable), "%v", err)

	p.Close()
	assert.False(t, p.Valid())

	_, err = a.ListDatabases(ctx, &backends.ListDatabasesParams{Address: addr, ProviderID: testProviderID})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeProviderIsUnreachable), "%v", err)
}

func TestConfiguredDatabases(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	root := t.TempDir()
	config := fmt.Sprintf(`{"root":%q,"databases":{"a":{"config":{"path":"a.sqlite"}},"b":{"type":"sqlite","config":{"path":":memory:"}}}}`, root)

	addr, _, a, _ := setup(t, config)

	list, err := a.ListDatabases(ctx, &backends.ListDatabasesParams{Address: addr, ProviderID: testProviderID})
	require.NoError(t, err)
	assert.Equal(t, []backends.DatabaseInfo{{Name: "a", Type: "sqlite"}, {Name: "b", Type: "sqlite"}}, list.Databases)

	e := rpc.NewLocalEngine(nil)
	t.Cleanup(e.Finalize)

	_, err = NewProvider(ctx, &NewProviderParams{
		Engine: e,
		Config: json.RawMessage(`{"databases":{"bad name":{}}}`),
		L:      testutil.Logger(t),
	})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeProviderConfigIsInvalid), "%v", err)
}
