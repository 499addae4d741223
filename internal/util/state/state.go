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

// Package state stores polydoc server process state.
package state

import (
	"github.com/AlekSi/pointer"
	"github.com/google/uuid"

	"github.com/FerretDB/polydoc/internal/util/must"
)

// State represents server process state.
type State struct {
	UUID string `json:"uuid"`

	// Starts is the number of server starts with that state.
	Starts int64 `json:"starts"`

	// CleanShutdown is nil before the first shutdown,
	// false while the server is running, and true after a graceful shutdown.
	CleanShutdown *bool `json:"clean_shutdown,omitempty"`
}

// fill replaces all unset or invalid values with default.
func (s *State) fill() {
	if _, err := uuid.Parse(s.UUID); err != nil {
		s.UUID = must.NotFail(uuid.NewRandom()).String()
	}

	if s.Starts < 0 {
		s.Starts = 0
	}
}

// deepCopy returns a deep copy.
func (s *State) deepCopy() *State {
	var cleanShutdown *bool
	if s.CleanShutdown != nil {
		cleanShutdown = pointer.ToBool(*s.CleanShutdown)
	}

	return &State{
		UUID:          s.UUID,
		Starts:        s.Starts,
		CleanShutdown: cleanShutdown,
	}
}
