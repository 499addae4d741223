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

package rpc

import (
	"errors"
	"fmt"
)

// Transport error codes.
const (
	// CodeInternal is used for handler errors without a code.
	CodeInternal = int32(-1)

	// CodeNoHandler is used when there is no handler for the provider id and name.
	CodeNoHandler = int32(-2)

	// CodeUnreachable is used when the remote engine can't be reached.
	CodeUnreachable = int32(-3)

	// CodeBadRequest is used when the request or response can't be encoded or decoded.
	CodeBadRequest = int32(-4)

	// CodeShutdownDisabled is used when remote shutdown is not enabled for the engine.
	CodeShutdownDisabled = int32(-5)

	// CodeFinalized is used when the local engine was finalized.
	CodeFinalized = int32(-6)
)

// Error is an error that crosses the transport.
type Error struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// Error implements error interface.
func (e *Error) Error() string {
	return e.Message
}

// newError returns a new *Error with formatted message.
func newError(code int32, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// toError converts any handler's error to *Error.
func toError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return &Error{
		Code:    CodeInternal,
		Message: err.Error(),
	}
}

// CodeOf returns the code of *Error in err's chain, or CodeInternal.
func CodeOf(err error) int32 {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return CodeInternal
}
