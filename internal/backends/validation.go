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
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// databaseNameRe validates database name.
var databaseNameRe = regexp.MustCompile("^[a-zA-Z0-9_-]{1,63}$")

// collectionNameRe validates collection names.
var collectionNameRe = regexp.MustCompile("^[^\\.$\x00][^$\x00]{0,119}$")

// Reserved prefix for database and collection names.
const ReservedPrefix = "_polydoc_"

// ValidateDatabaseName checks that database name is valid.
//
// It allows only basic latin letters, digits, and basic punctuation,
// and disallows the reserved prefix.
// That makes database names safe to use as SQL schema names, table name prefixes, and file names.
//
// Backends can do their own additional validation.
func ValidateDatabaseName(name string) error {
	if !databaseNameRe.MatchString(name) || strings.HasPrefix(name, ReservedPrefix) {
		return NewError(ErrorCodeDatabaseNameIsInvalid, fmt.Errorf("invalid database name %q", name))
	}

	return nil
}

// ValidateCollectionName checks that collection name is valid.
//
// It allows only UTF-8 characters, disallows '.' prefix and the reserved prefix.
// That validation is quite lax because backends map collection names to storage names themselves.
func ValidateCollectionName(name string) error {
	if !collectionNameRe.MatchString(name) || strings.HasPrefix(name, ReservedPrefix) || !utf8.ValidString(name) {
		return NewError(ErrorCodeCollectionNameIsInvalid, fmt.Errorf("invalid collection name %q", name))
	}

	return nil
}

// ValidateConfig checks that configuration is a JSON object.
func ValidateConfig(config json.RawMessage) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(config, &m); err != nil || m == nil {
		return NewError(ErrorCodeDatabaseConfigIsInvalid, fmt.Errorf("configuration must be a JSON object: %s", config))
	}

	return nil
}

// ValidateDocument checks that document is valid UTF-8 JSON.
func ValidateDocument(doc json.RawMessage) error {
	if len(doc) == 0 || !utf8.Valid(doc) || !json.Valid(doc) {
		return NewError(ErrorCodeDocumentIsInvalid, fmt.Errorf("document is not valid JSON: %q", doc))
	}

	return nil
}

// validateDocuments checks all documents of a batch.
func validateDocuments(docs []json.RawMessage) error {
	for i, doc := range docs {
		if len(doc) == 0 || !utf8.Valid(doc) || !json.Valid(doc) {
			return NewError(ErrorCodeDocumentIsInvalid, fmt.Errorf("document %d is not valid JSON: %q", i, doc))
		}
	}

	return nil
}
