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
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/polydoc/internal/backends"
)

// defaultType is used when database type is not specified.
const defaultType = "sqlite"

// dialect describes SQL differences of a single database type.
//
//nolint:vet // for readability
type dialect struct {
	// database type name, like "sqlite"
	typ string

	// definition of the document column, including constraints
	docColumn string

	// type of text columns in the metadata table
	textType string

	// suffix for SELECT queries that lock metadata rows
	forUpdate string

	// query that flushes changes to durable storage; empty if not needed
	commit string

	// numbered placeholders (`$1`) are used instead of `?`
	numbered bool

	// quote returns quoted identifier
	quote func(string) string

	// uniqueViolation returns true if the error is a unique constraint violation
	uniqueViolation func(error) bool

	// documentRejected returns true if the error is a rejection of the document value,
	// like a constraint violation or invalid JSON text
	documentRejected func(error) bool

	// open opens storage for the given database
	open func(ctx context.Context, d *dialect, params *openParams) (*storage, error)
}

// openParams represents the parameters of dialect.open function.
type openParams struct {
	Root   string
	Name   string
	Config json.RawMessage
	Create bool
	L      *zap.Logger
}

// placeholder returns placeholder for the n-th argument, starting from 1.
func (d *dialect) placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}

	return "?"
}

// quoteDouble quotes identifier with double quotes.
func quoteDouble(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quoteBacktick quotes identifier with backticks.
func quoteBacktick(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// dialects contains all known database types.
//
// Types compiled out of the binary are registered with nil open function.
var (
	dialectsM sync.Mutex
	dialects  = map[string]*dialect{}
)

// registerDialect registers the database type.
func registerDialect(d *dialect) {
	dialectsM.Lock()
	defer dialectsM.Unlock()

	if _, ok := dialects[d.typ]; ok {
		panic(fmt.Sprintf("dialect %q is already registered", d.typ))
	}

	dialects[d.typ] = d
}

// lookupDialect returns dialect for the given database type.
//
// Empty type means the default type.
func lookupDialect(typ string) (*dialect, error) {
	if typ == "" {
		typ = defaultType
	}

	dialectsM.Lock()
	d := dialects[typ]
	dialectsM.Unlock()

	switch {
	case d == nil:
		return nil, backends.NewError(backends.ErrorCodeDatabaseTypeIsUnknown, fmt.Errorf("unknown database type %q", typ))
	case d.open == nil:
		return nil, backends.NewError(
			backends.ErrorCodeDatabaseTypeIsDisabled,
			fmt.Errorf("database type %q is not available in this build", typ),
		)
	default:
		return d, nil
	}
}

// Types returns sorted names of database types available in this build.
func Types() []string {
	dialectsM.Lock()
	defer dialectsM.Unlock()

	res := make([]string, 0, len(dialects))

	for _, typ := range maps.Keys(dialects) {
		if dialects[typ].open != nil {
			res = append(res, typ)
		}
	}

	slices.Sort(res)

	return res
}

// decodeConfig decodes database configuration into v.
func decodeConfig(config json.RawMessage, v any) error {
	if err := json.Unmarshal(config, v); err != nil {
		return backends.NewError(backends.ErrorCodeDatabaseConfigIsInvalid, fmt.Errorf("invalid database configuration: %s", err))
	}

	return nil
}
