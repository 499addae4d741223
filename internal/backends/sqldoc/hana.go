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

//go:build polydoc_hana

package sqldoc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SAP/go-hdb/driver"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/util/fsql"
	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
)

// SAP HANA error codes.
const (
	errHANAValueTooLarge   = 274
	errHANAUniqueViolation = 301
	errHANASchemaExists    = 386
)

// hanaConfig represents the configuration of SAP HANA database.
type hanaConfig struct {
	URL string `json:"url"`
}

func init() {
	registerDialect(&dialect{
		typ:              "hana",
		docColumn:        "doc NVARCHAR(5000) NOT NULL",
		textType:         "NVARCHAR(255)",
		forUpdate:        " FOR UPDATE",
		quote:            quoteDouble,
		uniqueViolation:  func(err error) bool { return hanaErrorCodeIs(err, errHANAUniqueViolation) },
		documentRejected: func(err error) bool { return hanaErrorCodeIs(err, errHANAValueTooLarge) },
		open:             openHANA,
	})
}

// hanaErrorCodeIs returns true if err is SAP HANA error with the given code.
func hanaErrorCodeIs(err error, code int) bool {
	var dbError driver.Error
	return errors.As(err, &dbError) && dbError.Code() == code
}

// openHANA opens SAP HANA database; each polydoc database lives in its own schema.
func openHANA(ctx context.Context, d *dialect, params *openParams) (*storage, error) {
	var c hanaConfig
	if err := decodeConfig(params.Config, &c); err != nil {
		return nil, err
	}

	if c.URL == "" {
		return nil, backends.NewError(backends.ErrorCodeDatabaseConfigIsInvalid, errors.New(`"url" is required`))
	}

	sqlDB, err := sql.Open("hdb", c.URL)
	if err != nil {
		return nil, backends.NewError(backends.ErrorCodeDatabaseConfigIsInvalid, fmt.Errorf("invalid SAP HANA URL: %s", err))
	}

	s := &storage{
		db:     fsql.WrapDB(sqlDB, params.Name, params.L),
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

	if !params.Create {
		if err = s.checkMetadata(ctx); err != nil {
			s.close()
			return nil, err
		}

		return s, nil
	}

	if _, err = s.db.ExecContext(ctx, `CREATE SCHEMA `+d.quote(s.schema)); err != nil {
		s.close()

		if hanaErrorCodeIs(err, errHANASchemaExists) {
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
