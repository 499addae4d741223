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
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/util/fsql"
	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
)

// splitStatements splits SQL code into statements by semicolons
// that are not inside quotes or comments.
//
// Empty statements are skipped.
func splitStatements(code string) []string {
	var res []string
	var cur strings.Builder

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			res = append(res, s)
		}

		cur.Reset()
	}

	for i := 0; i < len(code); i++ {
		c := code[i]

		switch {
		case c == '\'' || c == '"' || c == '`':
			// doubled quote is an escaped quote
			j := i + 1
			for j < len(code) {
				if code[j] == c {
					if j+1 < len(code) && code[j+1] == c {
						j += 2
						continue
					}

					break
				}
				j++
			}

			end := min(j+1, len(code))
			cur.WriteString(code[i:end])
			i = end - 1

		case c == '-' && i+1 < len(code) && code[i+1] == '-':
			j := strings.IndexByte(code[i:], '\n')
			if j < 0 {
				i = len(code)
				continue
			}

			i += j
			cur.WriteByte('\n')

		case c == '/' && i+1 < len(code) && code[i+1] == '*':
			j := strings.Index(code[i+2:], "*/")
			if j < 0 {
				i = len(code)
				continue
			}

			i += j + 3
			cur.WriteByte(' ')

		case c == ';':
			flush()

		default:
			cur.WriteByte(c)
		}
	}

	flush()

	return res
}

// encodeValue returns JSON representation of a value scanned from the database.
//
// Text that is a valid JSON object or array is returned as is;
// other text is encoded as JSON string.
func encodeValue(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "null", nil
	case []byte:
		return encodeText(string(v))
	case string:
		return encodeText(v)
	case time.Time:
		return encodeText(v.UTC().Format(time.RFC3339Nano))
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", lazyerrors.Error(err)
	}

	return string(b), nil
}

// encodeText implements encodeValue for text values.
func encodeText(s string) (string, error) {
	if t := strings.TrimSpace(s); t != "" && (t[0] == '{' || t[0] == '[') && json.Valid([]byte(t)) {
		return t, nil
	}

	b, err := json.Marshal(s)
	if err != nil {
		return "", lazyerrors.Error(err)
	}

	return string(b), nil
}

// collectionRefRe matches `{{name}}` collection references.
var collectionRefRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// expand replaces `{{name}}` collection references in the statement with quoted table names.
func (s *storage) expand(ctx context.Context, tx *fsql.Tx, stmt string) (string, error) {
	var err error

	res := collectionRefRe.ReplaceAllStringFunc(stmt, func(ref string) string {
		if err != nil {
			return ref
		}

		name := strings.TrimSpace(ref[2 : len(ref)-2])

		var ci *collectionInfo
		if ci, err = s.collection(ctx, tx, name, false); err != nil {
			if backends.ErrorCodeIs(err, backends.ErrorCodeCollectionDoesNotExist) {
				err = backends.NewError(backends.ErrorCodeExecutionFailed, fmt.Errorf("collection %q does not exist", name))
			}

			return ref
		}

		return s.table(ci.table)
	})
	if err != nil {
		return "", err
	}

	return res, nil
}

// execute runs SQL statements in a single transaction.
//
// Collection references `{{name}}` are replaced with quoted table names before execution.
//
// Requested variables are columns of the first row returned by the last statement.
// Variables that are not present have value "null".
func (s *storage) execute(ctx context.Context, code string, vars []string) (map[string]string, error) {
	stmts := splitStatements(code)
	if len(stmts) == 0 {
		return nil, backends.NewError(backends.ErrorCodeExecutionFailed, errors.New("no statements to execute"))
	}

	res := make(map[string]string, len(vars))
	for _, v := range vars {
		res[v] = "null"
	}

	err := s.db.InTransaction(ctx, func(tx *fsql.Tx) error {
		for i, stmt := range stmts {
			var err error
			if stmts[i], err = s.expand(ctx, tx, stmt); err != nil {
				return err
			}
		}

		last := len(stmts) - 1

		for i, stmt := range stmts[:last] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return backends.NewError(backends.ErrorCodeExecutionFailed, fmt.Errorf("statement %d failed: %s", i+1, err))
			}
		}

		rows, err := tx.QueryContext(ctx, stmts[last])
		if err != nil {
			return backends.NewError(backends.ErrorCodeExecutionFailed, fmt.Errorf("statement %d failed: %s", last+1, err))
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return lazyerrors.Error(err)
		}

		if !rows.Next() {
			if err = rows.Err(); err != nil {
				return backends.NewError(backends.ErrorCodeExecutionFailed, fmt.Errorf("statement %d failed: %s", last+1, err))
			}

			return nil
		}

		values := make([]any, len(cols))
		dest := make([]any, len(cols))

		for i := range values {
			dest[i] = &values[i]
		}

		if err = rows.Scan(dest...); err != nil {
			return lazyerrors.Error(err)
		}

		for i, col := range cols {
			if _, ok := res[col]; !ok {
				continue
			}

			if res[col], err = encodeValue(values[i]); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}
