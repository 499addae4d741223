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

package backends

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDatabaseName(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		name  string
		valid bool
	}{
		"Simple":     {name: "mydb", valid: true},
		"Punct":      {name: "my-db_1", valid: true},
		"Max":        {name: strings.Repeat("a", 63), valid: true},
		"Empty":      {name: ""},
		"TooLong":    {name: strings.Repeat("a", 64)},
		"Dot":        {name: "my.db"},
		"Slash":      {name: "../db"},
		"Unicode":    {name: "данные"},
		"Reserved":   {name: "_polydoc_meta"},
		"ReservedOK": {name: "polydoc_", valid: true},
	} {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := ValidateDatabaseName(tc.name)
			if tc.valid {
				assert.NoError(t, err)
				return
			}

			assert.True(t, ErrorCodeIs(err, ErrorCodeDatabaseNameIsInvalid), "%v", err)
		})
	}
}

func TestValidateCollectionName(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		name  string
		valid bool
	}{
		"Simple":   {name: "mycollection", valid: true},
		"Spaces":   {name: "my collection", valid: true},
		"Unicode":  {name: "коллекция", valid: true},
		"Max":      {name: strings.Repeat("a", 120), valid: true},
		"Empty":    {name: ""},
		"TooLong":  {name: strings.Repeat("a", 121)},
		"DotStart": {name: ".hidden"},
		"Dollar":   {name: "a$b"},
		"NUL":      {name: "a\x00b"},
		"Reserved": {name: "_polydoc_records"},
		"Invalid":  {name: "a\xffb"},
	} {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := ValidateCollectionName(tc.name)
			if tc.valid {
				assert.NoError(t, err)
				return
			}

			assert.True(t, ErrorCodeIs(err, ErrorCodeCollectionNameIsInvalid), "%v", err)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateConfig(json.RawMessage(`{}`)))
	assert.NoError(t, ValidateConfig(json.RawMessage(`{"path":"mydb"}`)))

	for _, c := range []string{``, `null`, `[]`, `"path"`, `{`} {
		err := ValidateConfig(json.RawMessage(c))
		assert.True(t, ErrorCodeIs(err, ErrorCodeDatabaseConfigIsInvalid), "%q: %v", c, err)
	}
}

func TestValidateDocument(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateDocument(json.RawMessage(`{"name":"Rob"}`)))
	assert.NoError(t, ValidateDocument(json.RawMessage(`42`)))

	err := ValidateDocument(json.RawMessage(`{"name":`))
	assert.True(t, ErrorCodeIs(err, ErrorCodeDocumentIsInvalid))

	err = ValidateDocument(nil)
	assert.True(t, ErrorCodeIs(err, ErrorCodeDocumentIsInvalid))

	err = ValidateDocument(json.RawMessage("{\"name\":\"\xff\"}"))
	assert.True(t, ErrorCodeIs(err, ErrorCodeDocumentIsInvalid))

	err = validateDocuments([]json.RawMessage{json.RawMessage(`{}`), json.RawMessage(`}`)})
	assert.EqualError(t, err, `document 1 is not valid JSON: "}"`)
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	cs := NewCapabilities(CapExecute, CapCommit)
	assert.True(t, cs.Has(CapExecute))
	assert.True(t, cs.Has(CapCommit))
	assert.False(t, cs.Has(CapFilter))
	assert.False(t, cs.Has(0))
	assert.Equal(t, "[execute,commit]", cs.String())
	assert.Equal(t, "[]", NewCapabilities().String())
	assert.Equal(t, "security_token", CapSecurityToken.String())
}
