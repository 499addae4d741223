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

package polydoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Document is a JSON document stored in a collection.
//
// The zero value is an empty document that is not valid JSON.
type Document struct {
	b json.RawMessage
}

// NewDocument returns a document for the given value.
//
// Value could be JSON text as string, []byte, or json.RawMessage, another Document,
// or any other value that is encoded with encoding/json.
func NewDocument(v any) (Document, error) {
	b, err := normalize(v)
	if err != nil {
		return Document{}, err
	}

	return Document{b: b}, nil
}

// String returns document's JSON text.
func (doc Document) String() string {
	return string(doc.b)
}

// Bytes returns document's JSON text.
// The caller should not modify it.
func (doc Document) Bytes() []byte {
	return doc.b
}

// Decode decodes the document into v with encoding/json.
func (doc Document) Decode(v any) error {
	if err := json.Unmarshal(doc.b, v); err != nil {
		return newError(err)
	}

	return nil
}

// MarshalJSON implements json.Marshaler interface.
func (doc Document) MarshalJSON() ([]byte, error) {
	if len(doc.b) == 0 {
		return []byte("null"), nil
	}

	return doc.b, nil
}

// Record is a document with its record id.
type Record struct {
	ID       uint64
	Document Document
}

// normalize returns compact JSON text for the given value.
func normalize(v any) (json.RawMessage, error) {
	var b []byte

	switch v := v.(type) {
	case Document:
		if len(v.b) != 0 {
			return v.b, nil
		}
	case string:
		b = []byte(v)
	case []byte:
		b = v
	case json.RawMessage:
		b = v
	default:
		var err error
		if b, err = json.Marshal(v); err != nil {
			return nil, &Error{msg: fmt.Sprintf("failed to encode document: %s", err)}
		}
	}

	if !utf8.Valid(b) {
		return nil, &Error{msg: "document is not valid UTF-8"}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, &Error{msg: fmt.Sprintf("document is not valid JSON: %s", err)}
	}

	return buf.Bytes(), nil
}

// normalizeMulti normalizes all documents.
func normalizeMulti(docs []any) ([]json.RawMessage, error) {
	res := make([]json.RawMessage, len(docs))

	for i, doc := range docs {
		b, err := normalize(doc)
		if err != nil {
			return nil, &Error{msg: fmt.Sprintf("document %d: %s", i, err)}
		}

		res[i] = b
	}

	return res, nil
}

// normalizeConfig returns compact JSON text for the given configuration; nil means `{}`.
func normalizeConfig(config any) (json.RawMessage, error) {
	if config == nil {
		return json.RawMessage(`{}`), nil
	}

	b, err := normalize(config)
	if err != nil {
		return nil, &Error{msg: fmt.Sprintf("invalid configuration: %s", err)}
	}

	return b, nil
}

// documents converts raw documents.
func documents(raw []json.RawMessage) []Document {
	res := make([]Document, len(raw))
	for i, b := range raw {
		res[i] = Document{b: b}
	}

	return res
}
