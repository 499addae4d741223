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
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/util/fsql"
	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
)

// MySQL error numbers.
const (
	errMySQLTableExists          = 1050
	errMySQLDuplicateEntry       = 1062
	errMySQLInvalidJSONText      = 3140
	errMySQLCheckConstraintFails = 4025
)

// mysqlConfig represents the configuration of MySQL database.
type mysqlConfig struct {
	DSN string `json:"dsn"`
}

func init() {
	registerDialect(&dialect{
		typ:              "mysql",
		docColumn:        "doc JSON NOT NULL",
		textType:         "VARCHAR(255)",
		forUpdate:        " FOR UPDATE",
		quote:            quoteBacktick,
		uniqueViolation:  func(err error) bool { return mysqlErrorNumberIs(err, errMySQLDuplicateEntry) },
		documentRejected: mysqlDocumentRejected,
		open:             openMySQL,
	})
}

// mysqlErrorNumberIs returns true if err is MySQL error with the given number.
func mysqlErrorNumberIs(err error, number uint16) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == number
}

// mysqlDocumentRejected implements dialect interface.
func mysqlDocumentRejected(err error) bool {
	return mysqlErrorNumberIs(err, errMySQLInvalidJSONText) || mysqlErrorNumberIs(err, errMySQLCheckConstraintFails)
}

// mysqlPrefix returns table name prefix for the given database name.
//
// MySQL limits identifiers to 64 characters, so the prefix is short.
func mysqlPrefix(name string) string {
	h := sha1.Sum([]byte(name))
	return "pd" + hex.EncodeToString(h[:4]) + "_"
}

// openMySQL opens MySQL database; tables of each polydoc database share a name prefix.
func openMySQL(ctx context.Context, d *dialect, params *openParams) (*storage, error) {
	var c mysqlConfig
	if err := decodeConfig(params.Config, &c); err != nil {
		return nil, err
	}

	config, err := mysql.ParseDSN(c.DSN)
	if err != nil || c.DSN == "" {
		return nil, backends.NewError(backends.ErrorCodeDatabaseConfigIsInvalid, fmt.Errorf("invalid MySQL DSN %q", c.DSN))
	}

	// report matched rows instead of changed rows, so updates with the same document succeed
	config.ClientFoundRows = true

	connector, err := mysql.NewConnector(config)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	s := &storage{
		db:     fsql.WrapDB(sql.OpenDB(connector), params.Name, params.L),
		d:      d,
		l:      params.L,
		prefix: mysqlPrefix(params.Name),
	}

	s.destroy = func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `SELECT table_name FROM `+s.table(metadataTable))
		if err != nil {
			return lazyerrors.Error(err)
		}
		defer rows.Close()

		tables := []string{metadataTable}

		for rows.Next() {
			var t string
			if err = rows.Scan(&t); err != nil {
				return lazyerrors.Error(err)
			}

			tables = append(tables, t)
		}

		if err = rows.Err(); err != nil {
			return lazyerrors.Error(err)
		}

		for _, t := range tables {
			if _, err = s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+s.table(t)); err != nil {
				return lazyerrors.Error(err)
			}
		}

		return nil
	}

	if err = s.db.PingContext(ctx); err != nil {
		s.close()
		return nil, lazyerrors.Error(err)
	}

	if params.Create {
		err = s.createMetadata(ctx)
		if mysqlErrorNumberIs(err, errMySQLTableExists) {
			err = backends.NewError(backends.ErrorCodeDatabaseAlreadyExists, fmt.Errorf("database %q already exists", params.Name))
		}
	} else {
		err = s.checkMetadata(ctx)
	}

	if err != nil {
		s.close()
		return nil, err
	}

	return s, nil
}
