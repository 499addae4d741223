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
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/util/fsql"
	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
)

// sqliteMemory is a special path for in-memory databases.
const sqliteMemory = ":memory:"

// sqliteConfig represents the configuration of SQLite database.
type sqliteConfig struct {
	// File path relative to provider's root, or ":memory:".
	Path string `json:"path"`
}

func init() {
	registerDialect(&dialect{
		typ:              "sqlite",
		docColumn:        "doc TEXT NOT NULL CHECK (json_valid(doc))",
		textType:         "TEXT",
		commit:           "PRAGMA wal_checkpoint(FULL)",
		quote:            quoteDouble,
		uniqueViolation:  sqliteUniqueViolation,
		documentRejected: sqliteDocumentRejected,
		open:             openSQLite,
	})
}

// sqliteUniqueViolation implements dialect interface.
func sqliteUniqueViolation(err error) bool {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Code() == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY || e.Code() == sqlitelib.SQLITE_CONSTRAINT_UNIQUE
}

// sqliteDocumentRejected implements dialect interface.
func sqliteDocumentRejected(err error) bool {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Code() == sqlitelib.SQLITE_CONSTRAINT_CHECK || e.Code() == sqlitelib.SQLITE_TOOBIG
}

// openSQLite opens SQLite database file, creating it if needed.
func openSQLite(ctx context.Context, d *dialect, params *openParams) (*storage, error) {
	var c sqliteConfig
	if err := decodeConfig(params.Config, &c); err != nil {
		return nil, err
	}

	if c.Path == "" {
		return nil, backends.NewError(backends.ErrorCodeDatabaseConfigIsInvalid, errors.New(`"path" is required`))
	}

	var file, dsn string

	if c.Path == sqliteMemory {
		if !params.Create {
			return nil, backends.NewError(
				backends.ErrorCodeDatabaseDoesNotExist,
				errors.New("in-memory databases can't be attached"),
			)
		}

		dsn = "file::memory:"
	} else {
		file = c.Path
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

		dsn = "file:" + file + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(10000)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	// a single connection serializes all transactions, and keeps in-memory databases alive
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxIdleTime(0)
	sqlDB.SetConnMaxLifetime(0)

	s := &storage{
		db: fsql.WrapDB(sqlDB, params.Name, params.L),
		d:  d,
		l:  params.L,
	}

	if file != "" {
		s.files = []string{file, file + "-wal", file + "-shm"}
	}

	if params.Create {
		err = s.createMetadata(ctx)
	} else {
		err = s.checkMetadata(ctx)
	}

	if err != nil {
		if params.Create {
			_ = s.drop(ctx)
		} else {
			s.close()
		}

		return nil, err
	}

	return s, nil
}
