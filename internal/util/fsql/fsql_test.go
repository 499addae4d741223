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

package fsql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	_ "modernc.org/sqlite"
)

func setup(t *testing.T) *DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	// each connection has its own in-memory database
	sqlDB.SetMaxOpenConns(1)

	db := WrapDB(sqlDB, "test", zaptest.NewLogger(t))
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	_, err = db.ExecContext(context.Background(), "CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	return db
}

func count(t *testing.T, db *DB) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM t").Scan(&n))

	return n
}

func TestInTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		t.Parallel()

		db := setup(t)

		err := db.InTransaction(ctx, func(tx *Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (?), (?)", 1, 2)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count(t, db))

		rows, err := db.QueryContext(ctx, "SELECT v FROM t ORDER BY v")
		require.NoError(t, err)

		var res []int
		for rows.Next() {
			var v int
			require.NoError(t, rows.Scan(&v))
			res = append(res, v)
		}

		require.NoError(t, rows.Err())
		require.NoError(t, rows.Close())
		assert.Equal(t, []int{1, 2}, res)
	})

	t.Run("Rollback", func(t *testing.T) {
		t.Parallel()

		db := setup(t)

		expected := errors.New("rollback")
		err := db.InTransaction(ctx, func(tx *Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (?)", 1)
			require.NoError(t, err)

			return expected
		})
		require.ErrorIs(t, err, expected)
		assert.Equal(t, 0, count(t, db))
	})
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	db := setup(t)
	assert.Equal(t, 3, promtestutil.CollectAndCount(db))
}
