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

// Package backends provides common interfaces and code for all backend implementations.
//
// # Design principles
//
//  1. Interfaces mirror the public handles one to one: Admin, Client, Database, Collection, and Provider.
//     Each public method makes exactly one interface call.
//     Convenience overloads (like opening a database by address instead of a provider handle)
//     are implemented once, in the handle layer, on top of a single canonical method.
//  2. Backends differ in what they can do. Every interface has a Capabilities method,
//     and methods for missing capabilities return *Error with ErrorCodeNotImplemented.
//     They never pretend to succeed.
//  3. Client-side objects (Admin, Client, Database, Collection) are stateless handles to remote state;
//     they can be copied and shared freely and are safe for concurrent use.
//     Provider is stateful and should be Close()'d.
//  4. Contexts are per-operation and should not be stored.
//  5. Errors returned by methods could be nil, *Error, or some other opaque error type.
//     *Error values can't be wrapped or be present anywhere in the error chain.
//     Contracts enforce *Error codes; they are not documented in the code comments
//     but are visible in the contract's code (to avoid duplication).
//  6. Batch operations are all-or-nothing in every backend.
//     Record ids are never reused, even after records are erased.
package backends
