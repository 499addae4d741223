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
	"strings"
)

// Capability represents a single optional feature of a backend.
type Capability uint32

// Capabilities.
const (
	// CapExecute is server-side code execution.
	CapExecute Capability = 1 << iota

	// CapFilter is server-side filtering of collection records.
	CapFilter

	// CapSecurityToken is changing the provider's security token at runtime.
	CapSecurityToken

	// CapDetach is detaching databases without destroying them.
	CapDetach

	// CapListDatabases is listing databases of a provider.
	CapListDatabases

	// CapCommit is flushing changes to durable storage.
	CapCommit
)

// capabilityNames is used by String methods.
var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapExecute, "execute"},
	{CapFilter, "filter"},
	{CapSecurityToken, "security_token"},
	{CapDetach, "detach"},
	{CapListDatabases, "list_databases"},
	{CapCommit, "commit"},
}

// String implements [fmt.Stringer].
func (c Capability) String() string {
	for _, n := range capabilityNames {
		if n.c == c {
			return n.name
		}
	}

	return "unknown"
}

// Capabilities is a set of capabilities supported by a backend.
type Capabilities Capability

// NewCapabilities returns a set of given capabilities.
func NewCapabilities(cs ...Capability) Capabilities {
	var res Capabilities
	for _, c := range cs {
		res |= Capabilities(c)
	}

	return res
}

// Has returns true if c is in the set.
func (cs Capabilities) Has(c Capability) bool {
	return c != 0 && Capability(cs)&c == c
}

// String implements [fmt.Stringer].
func (cs Capabilities) String() string {
	var names []string

	for _, n := range capabilityNames {
		if cs.Has(n.c) {
			names = append(names, n.name)
		}
	}

	return "[" + strings.Join(names, ",") + "]"
}
