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
	"errors"

	"github.com/FerretDB/polydoc/internal/rpc"
	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
)

// ToRPC converts error returned by provider's storage to error returned by RPC handler.
//
// *Error is converted to *rpc.Error with the same code and message.
// Other errors are returned as is; the engine reports them with rpc.CodeInternal.
func ToRPC(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return &rpc.Error{
			Code:    int32(e.code),
			Message: e.Error(),
		}
	}

	return err
}

// FromRPC converts error returned by rpc.Engine.Call to error returned by client adapters.
//
// *rpc.Error values with backend error codes are converted back to *Error.
// Transport errors that mean that the provider can't be reached
// are converted to *Error with ErrorCodeProviderIsUnreachable.
// Everything else is wrapped.
func FromRPC(err error) error {
	if err == nil {
		return nil
	}

	var e *rpc.Error
	if !errors.As(err, &e) {
		return lazyerrors.Error(err)
	}

	switch {
	case e.Code > 0 && int(e.Code) < len(_ErrorCode_index):
		return NewError(ErrorCode(e.Code), errors.New(e.Message))

	case e.Code == rpc.CodeNoHandler, e.Code == rpc.CodeUnreachable, e.Code == rpc.CodeFinalized:
		return NewError(ErrorCodeProviderIsUnreachable, errors.New(e.Message))

	default:
		return lazyerrors.Error(err)
	}
}
