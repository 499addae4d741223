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
const testProviderID = 7

// setup creates a local engine with a provider, and returns its address with Admin and Client adapters.
func setup(t *testing.T, config string, pageSize int) (string, backends.Provider, backends.Admin, backends.Client) {
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

	params := &NewClientParams{Engine: e, L: l, PageSize: pageSize}

	return e.Self().Address(), p, NewAdmin(params), NewClient(params)
}

func TestScenario(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	addr, p, a, c := setup(t, "", 2)

	params := &backends.CreateDatabaseParams{
		Address:    addr,
		ProviderID: testProviderID,
		Name:       "mydb",
		Config:     json.RawMessage(`{"path":"mydb"}`),
	}
	require.NoError(t, a.CreateDatabase(ctx, params))

	err := a.CreateDatabase(ctx, params)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseAlreadyExists), "%v", err)

	ph, err := c.CreateProviderHandle(ctx, addr, testProviderID)
	require.NoError(t, err)

	db, err := c.Open(ctx, &backends.OpenParams{Handle: ph, Name: "mydb", Check: true})
	require.NoError(t, err)

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

	// two pages
	all, err := coll.All(ctx, new(backends.AllParams))
	require.NoError(t, err)
	require.Len(t, all.Records, 3)

	for i, r := range all.Records {
		assert.Equal(t, uint64(i), r.ID)
	}

	fetchedMulti, err := coll.FetchMulti(ctx, &backends.FetchMultiParams{RecordIDs: []uint64{2, 0}})
	require.NoError(t, err)
	require.Len(t, fetchedMulti.Documents, 2)
	assert.JSONEq(t, `{"name":"Phil"}`, string(fetchedMulti.Documents[0]))

	require.NoError(t, coll.Update(ctx, &backends.UpdateParams{
		RecordID: 2,
		Document: json.RawMessage(`{"name":"Philip"}`),
		Commit:   true,
	}))

	require.NoError(t, coll.Erase(ctx, &backends.EraseParams{RecordID: 0}))

	size, err = coll.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), size)

	require.NoError(t, db.Commit(ctx))

	list, err := a.ListDatabases(ctx, &backends.ListDatabasesParams{Address: addr, ProviderID: testProviderID})
	require.NoError(t, err)
	assert.Equal(t, []backends.DatabaseInfo{{Name: "mydb", Type: "bolt"}}, list.Databases)

	assert.Contains(t, p.Config(), `"mydb":{"type":"bolt","config":{"path":"mydb"}}`)

	require.NoError(t, a.DetachDatabase(ctx, &backends.DetachDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "mydb",
	}))

	_, err = coll.Size(ctx)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)

	require.NoError(t, a.AttachDatabase(ctx, &backends.AttachDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "mydb", Config: params.Config,
	}))

	fetched, err = coll.Fetch(ctx, &backends.FetchParams{RecordID: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Philip"}`, string(fetched.Document))

	require.NoError(t, a.DestroyDatabase(ctx, &backends.DestroyDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "mydb",
	}))

	_, err = c.Open(ctx, &backends.OpenParams{Handle: ph, Name: "mydb", Check: true})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist), "%v", err)
}

func TestNotImplemented(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	addr, p, a, c := setup(t, "", 0)

	require.NoError(t, a.CreateDatabase(ctx, &backends.CreateDatabaseParams{
		Address: addr, ProviderID: testProviderID, Name: "db", Config: json.RawMessage(`{"path":"db"}`),
	}))

	ph, err := c.CreateProviderHandle(ctx, addr, testProviderID)
	require.NoError(t, err)

	db, err := c.Open(ctx, &backends.OpenParams{Handle: ph, Name: "db"})
	require.NoError(t, err)
	assert.False(t, db.Capabilities().Has(backends.CapExecute))

	_, err = db.Execute(ctx, &backends.ExecuteParams{Code: "SELECT 1"})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeNotImplemented), "%v", err)

	coll, err := db.CreateCollection(ctx, &backends.CreateCollectionParams{Name: "c"})
	require.NoError(t, err)

	_, err = coll.Filter(ctx, &backends.FilterParams{Code: "true"})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeNotImplemented), "%v", err)

	assert.False(t, p.Capabilities().Has(backends.CapSecurityToken))

	err = p.SetSecurityToken(ctx, "secret")
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeNotImplemented), "%v", err)
}

func TestSecurityToken(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	addr, _, a, _ := setup(t, fmt.Sprintf(`{"root":%q,"token":"secret"}`, t.TempDir()), 0)

	params := &backends.CreateDatabaseParams{
		Address:    addr,
		ProviderID: testProviderID,
		Name:       "db",
		Config:     json.RawMessage(`{"path":"db"}`),
	}

	err := a.CreateDatabase(ctx, params)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeSecurityTokenMismatch), "%v", err)

	params.Token = "secret"
	require.NoError(t, a.CreateDatabase(ctx, params))
}

func TestConfiguredDatabases(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	root := t.TempDir()
	config := fmt.Sprintf(`{"root":%q,"databases":{"b":{"config":{"path":"b.bolt"}},"a":{"type":"bolt","config":{"path":"a.bolt"}}}}`, root)

	addr, p, a, _ := setup(t, config, 0)

	list, err := a.ListDatabases(ctx, &backends.ListDatabasesParams{Address: addr, ProviderID: testProviderID})
	require.NoError(t, err)
	assert.Equal(t, []backends.DatabaseInfo{{Name: "a", Type: "bolt"}, {Name: "b", Type: "bolt"}}, list.Databases)

	// the second provider attaches existing files
	p.Close()

	e := rpc.NewLocalEngine(nil)
	t.Cleanup(e.Finalize)

	pool := async.NewPool(&async.NewPoolParams{Name: t.Name(), L: testutil.Logger(t)})
	t.Cleanup(pool.Close)

	p2, err := NewProvider(ctx, &NewProviderParams{
		Engine:     e,
		Pool:       pool,
		ProviderID: testProviderID,
		Config:     json.RawMessage(config),
		L:          testutil.Logger(t),
	})
	require.NoError(t, err)
	p2.Close()
}
