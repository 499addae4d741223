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
	"github.com/FerretDB/polydoc/internal/backends"
)

// Capability is an optional feature of a backend.
type Capability backends.Capability

// Capabilities.
const (
	// Database.Execute runs backend-specific code.
	CapExecute = Capability(backends.CapExecute)

	// Collection.Filter selects records with backend-specific code.
	CapFilter = Capability(backends.CapFilter)

	// Provider.SetSecurityToken changes the token.
	CapSecurityToken = Capability(backends.CapSecurityToken)

	// Admin.DetachDatabase keeps the storage.
	CapDetach = Capability(backends.CapDetach)

	// Admin.ListDatabases lists attached databases.
	CapListDatabases = Capability(backends.CapListDatabases)

	// WithCommit option and Database.Commit flush changes to durable storage.
	CapCommit = Capability(backends.CapCommit)
)

// String implements fmt.Stringer interface.
func (c Capability) String() string {
	return backends.Capability(c).String()
}

// supports returns true if capabilities include c.
func supports(cs backends.Capabilities, c Capability) bool {
	return cs.Has(backends.Capability(c))
}
