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

// Package remote provides code shared by providers and client adapters of all backends:
// provider configuration, typed RPC handlers and calls, and security token checks.
package remote

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
)

// Config represents provider configuration shared by all backends.
type Config struct {
	// Directory for file-based storage; relative paths in database configurations are resolved against it.
	Root string `json:"root,omitempty"`

	// Security token required by Admin operations; empty means no check.
	Token string `json:"token,omitempty"`

	// Databases attached at provider start, keyed by name.
	Databases map[string]DatabaseConfig `json:"databases,omitempty"`
}

// DatabaseConfig represents configuration of a single database.
type DatabaseConfig struct {
	Type   string          `json:"type,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

// ParseConfig parses provider configuration JSON object text.
//
// Empty text is the same as `{}`. Unknown fields are rejected.
func ParseConfig(b []byte) (*Config, error) {
	var c Config

	if len(bytes.TrimSpace(b)) == 0 {
		return &c, nil
	}

	d := json.NewDecoder(bytes.NewReader(b))
	d.DisallowUnknownFields()

	if err := d.Decode(&c); err != nil {
		return nil, backends.NewError(
			backends.ErrorCodeProviderConfigIsInvalid,
			fmt.Errorf("invalid provider configuration: %s", err),
		)
	}

	for _, name := range c.DatabaseNames() {
		if err := backends.ValidateDatabaseName(name); err != nil {
			return nil, backends.NewError(backends.ErrorCodeProviderConfigIsInvalid, err)
		}

		dc := c.Databases[name]
		if len(dc.Config) == 0 {
			dc.Config = json.RawMessage(`{}`)
			c.Databases[name] = dc
		}

		if err := backends.ValidateConfig(dc.Config); err != nil {
			return nil, backends.NewError(backends.ErrorCodeProviderConfigIsInvalid, err)
		}
	}

	return &c, nil
}

// DatabaseNames returns sorted names of configured databases.
func (c *Config) DatabaseNames() []string {
	names := maps.Keys(c.Databases)
	slices.Sort(names)

	return names
}

// String returns configuration as compact JSON object text without the security token.
func (c *Config) String() string {
	cc := *c
	cc.Token = ""

	b, err := json.Marshal(&cc)
	if err != nil {
		panic(lazyerrors.Error(err))
	}

	return string(b)
}
