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

// Package polydoc provides uniform access to JSON document databases
// hosted by interchangeable backends selected at runtime by name.
//
// # Handles
//
// [Admin], [Client], [Database], [Collection], and [Provider] are small values
// that could be copied freely; copies share the implementation.
// Zero values are invalid: their methods fail with an error matching [ErrInvalidHandle].
// Handles are only created by New functions or by other handles.
//
// # Sync and async calls
//
// Every data operation of [Collection] exists in two shapes:
// a blocking call that returns the result, and an Async call that returns [AsyncRequest]
// right after the operation was submitted.
// Submitted operations are never canceled.
//
// # Errors
//
// All returned errors are [*Error] values that carry a message.
// Use [errors.Is] with [ErrInvalidHandle], [ErrUnknownBackend], and [ErrNotImplemented]
// to check for those cases.
package polydoc

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/backends/registry"
	"github.com/FerretDB/polydoc/internal/util/logging"
	"github.com/FerretDB/polydoc/internal/util/must"
)

// Error is the only error type returned by polydoc.
//
// Internal error details are not exposed.
// If you need stable error values for some cases, please create an issue.
type Error struct {
	msg  string
	kind error
}

// Error implements error interface.
func (e *Error) Error() string {
	return e.msg
}

// Is implements errors.Is interface.
func (e *Error) Is(target error) bool {
	return e.kind != nil && e.kind == target
}

var (
	// ErrInvalidHandle is matched by errors returned by methods of zero or closed handles.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrUnknownBackend is matched by errors returned for unknown backend names,
	// including names of backends that were not included in the build.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrNotImplemented is matched by errors returned by operations that the backend does not support.
	ErrNotImplemented = errors.New("not implemented")
)

// newError normalizes internal error to *Error. It returns nil for nil.
func newError(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	res := &Error{msg: err.Error()}

	switch {
	case errors.Is(err, registry.ErrUnknownBackend), errors.Is(err, registry.ErrUnavailableBackend):
		res.kind = ErrUnknownBackend
	case backends.ErrorCodeIs(err, backends.ErrorCodeNotImplemented):
		res.kind = ErrNotImplemented
	}

	return res
}

// invalidHandle returns *Error for the invalid handle of the given kind.
func invalidHandle(handle string) error {
	return &Error{
		msg:  fmt.Sprintf("invalid %s handle", handle),
		kind: ErrInvalidHandle,
	}
}

// logger is a global logger used by polydoc handles when WithLogger option is not used.
var logger *zap.Logger

// Initialize the global logger there to avoid creating too many issues for zap users that initialize it in their
// `main()` functions.
func init() {
	logger = must.NotFail(logging.Setup(zap.ErrorLevel, "console", ""))
}
