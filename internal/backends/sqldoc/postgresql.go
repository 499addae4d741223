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

//go:build !polydoc_no_postgresql

package sqldoc

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	zapadapter "github.com/jackc/pgx-zap"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/util/fsql"
	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
)

// postgresqlConfig represents the configuration of PostgreSQL database.
type postgresqlConfig struct {
	URI string `json:"uri"`
}

func init() {
	registerDialect(&dialect{
		typ:              "postgresql",
		docColumn:        "doc jsonb NOT NULL",
		textType:         "text",
		forUpdate:        " FOR UPDATE",
		numbered:         true,
		quote:            func(s string) string { return pgx.Identifier{s}.Sanitize() },
		uniqueViolation:  func(err error) bool { return pgErrorCodeIs(err, pgerrcode.UniqueViolation) },
		documentRejected: pgDocumentRejected,
		open:             openPostgreSQL,
	})
}

// pgErrorCodeIs returns true if err is PostgreSQL error with the given code.
func pgErrorCodeIs(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// pgDocumentRejected implements dialect interface.
func pgDocumentRejected(err error) bool {
	return pgErrorCodeIs(err, pgerrcode.InvalidTextRepresentation) ||
		pgErrorCodeIs(err, pgerrcode.UntranslatableCharacter) ||
		pgErrorCodeIs(err, pgerrcode.CheckViolation)
}

// openPostgreSQL opens PostgreSQL database; each polydoc database lives in its own schema.
func openPostgreSQL(ctx context.Context, d *dialect, params *openParams) (*storage, error) {
	var c postgresqlConfig
	if err := decodeConfig(params.Config, &c); err != nil {
		return nil, err
	}

	config, err := pgx.ParseConfig(c.URI)
	if err != nil || c.URI == "" {
		return nil, backends.NewError(backends.ErrorCodeDatabaseConfigIsInvalid, fmt.Errorf("invalid PostgreSQL URI %q", c.URI))
	}

	config.Tracer = &tracelog.TraceLog{
		Logger:   zapadapter.NewLogger(params.L.Named("pgx")),
		LogLevel: tracelog.LogLevelTrace,
	}

	s := &storage{
		db:     fsql.WrapDB(stdlib.OpenDB(*config), params.Name, params.L),
		d:      d,
		l:      params.L,
		schema: params.Name,
	}

	s.destroy = func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, `DROP SCHEMA `+d.quote(s.schema)+` CASCADE`); err != nil {
			return lazyerrors.Error(err)
		}

		return nil
	}

	if err = checkPostgreSQL(ctx, s.db); err != nil {
		s.close()
		return nil, err
	}

	if !params.Create {
		if err = s.checkMetadata(ctx); err != nil {
			s.close()
			return nil, err
		}

		return s, nil
	}

	if _, err = s.db.ExecContext(ctx, `CREATE SCHEMA `+d.quote(s.schema)); err != nil {
		s.close()

		if pgErrorCodeIs(err, pgerrcode.DuplicateSchema) {
			return nil, backends.NewError(backends.ErrorCodeDatabaseAlreadyExists, fmt.Errorf("schema %q already exists", s.schema))
		}

		return nil, lazyerrors.Error(err)
	}

	if err = s.createMetadata(ctx); err != nil {
		_ = s.drop(ctx)
		return nil, err
	}

	return s, nil
}

// checkPostgreSQL checks that connection works and settings are what we expect.
func checkPostgreSQL(ctx context.Context, db *fsql.DB) error {
	var v string
	if err := db.QueryRowContext(ctx, `SHOW standard_conforming_strings`).Scan(&v); err != nil {
		return lazyerrors.Error(err)
	}

	// identifiers are sanitized with pgx.Identifier
	if v != "on" {
		return lazyerrors.Errorf("%q is %q, want %q", "standard_conforming_strings", v, "on")
	}

	return nil
}

// check interfaces
var (
	_ tracelog.Logger = (*zapadapter.Logger)(nil)
)
