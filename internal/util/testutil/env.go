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

package testutil

import (
	"os"
	"testing"
)

// PostgreSQLURI returns PostgreSQL URI for tests from POLYDOC_TEST_POSTGRESQL_URI environment variable.
//
// The test is skipped if it is not set.
func PostgreSQLURI(tb testing.TB) string {
	tb.Helper()

	return env(tb, "POLYDOC_TEST_POSTGRESQL_URI")
}

// MySQLDSN returns MySQL DSN for tests from POLYDOC_TEST_MYSQL_DSN environment variable.
//
// The test is skipped if it is not set.
func MySQLDSN(tb testing.TB) string {
	tb.Helper()

	return env(tb, "POLYDOC_TEST_MYSQL_DSN")
}

// HANAURL returns SAP HANA URL for tests from POLYDOC_TEST_HANA_URL environment variable.
//
// The test is skipped if it is not set.
func HANAURL(tb testing.TB) string {
	tb.Helper()

	return env(tb, "POLYDOC_TEST_HANA_URL")
}

// env returns the value of the environment variable or skips the test.
func env(tb testing.TB, key string) string {
	tb.Helper()

	if testing.Short() {
		tb.Skip("skipping in -short mode")
	}

	v := os.Getenv(key)
	if v == "" {
		tb.Skipf("%s is not set", key)
	}

	return v
}
