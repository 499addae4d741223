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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/polydoc/internal/rpc"
	"github.com/FerretDB/polydoc/internal/util/debugbuild"
)

func TestError(t *testing.T) {
	t.Parallel()

	err := NewError(ErrorCodeDatabaseDoesNotExist, nil)
	assert.Equal(t, "database does not exist", err.Error())
	assert.Equal(t, ErrorCodeDatabaseDoesNotExist, err.Code())

	err = NewError(ErrorCodeDatabaseDoesNotExist, errors.New(`database "foo" does not exist`))
	assert.Equal(t, `database "foo" does not exist`, err.Error())

	assert.True(t, ErrorCodeIs(err, ErrorCodeDatabaseDoesNotExist))
	assert.True(t, ErrorCodeIs(err, ErrorCodeCollectionDoesNotExist, ErrorCodeDatabaseDoesNotExist))
	assert.False(t, ErrorCodeIs(err, ErrorCodeCollectionDoesNotExist))
	assert.False(t, ErrorCodeIs(fmt.Errorf("%w", err), ErrorCodeDatabaseDoesNotExist))
	assert.False(t, ErrorCodeIs(nil, ErrorCodeDatabaseDoesNotExist))

	assert.Panics(t, func() { NewError(0, nil) })

	assert.Equal(t, "ErrorCode(100)", ErrorCode(100).String())
	assert.Equal(t, "not implemented", ErrorCodeNotImplemented.String())
}

func TestCheckError(t *testing.T) {
	t.Parallel()

	if !debugbuild.Enabled {
		t.Skip("checkError does nothing in non-debug builds")
	}

	assert.NotPanics(t, func() { checkError(nil) })
	assert.NotPanics(t, func() { checkError(errors.New("opaque")) })
	assert.NotPanics(t, func() { checkError(NotImplemented("kv", "Execute")) })
	assert.NotPanics(t, func() {
		checkError(NewError(ErrorCodeDatabaseDoesNotExist, nil), ErrorCodeDatabaseDoesNotExist)
	})

	assert.Panics(t, func() {
		checkError(NewError(ErrorCodeDatabaseDoesNotExist, nil), ErrorCodeCollectionDoesNotExist)
	})
	assert.Panics(t, func() {
		checkError(NewError(ErrorCodeDatabaseDoesNotExist, nil))
	})
	assert.Panics(t, func() {
		checkError(fmt.Errorf("wrapped: %w", NewError(ErrorCodeDatabaseDoesNotExist, nil)), ErrorCodeDatabaseDoesNotExist)
	})
}

func TestRPCErrors(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ToRPC(nil))
	assert.Nil(t, FromRPC(nil))

	t.Run("Backend", func(t *testing.T) {
		t.Parallel()

		err := ToRPC(NewError(ErrorCodeRecordDoesNotExist, errors.New("record 42 does not exist")))

		var rpcErr *rpc.Error
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, int32(ErrorCodeRecordDoesNotExist), rpcErr.Code)
		assert.Equal(t, "record 42 does not exist", rpcErr.Message)

		err = FromRPC(err)
		assert.True(t, ErrorCodeIs(err, ErrorCodeRecordDoesNotExist))
		assert.Equal(t, "record 42 does not exist", err.Error())
	})

	t.Run("Opaque", func(t *testing.T) {
		t.Parallel()

		opaque := errors.New("disk is full")
		assert.Equal(t, opaque, ToRPC(opaque))

		err := FromRPC(&rpc.Error{Code: rpc.CodeInternal, Message: "disk is full"})
		var e *Error
		assert.False(t, errors.As(err, &e))
		assert.ErrorContains(t, err, "disk is full")
	})

	t.Run("Transport", func(t *testing.T) {
		t.Parallel()

		for _, code := range []int32{rpc.CodeNoHandler, rpc.CodeUnreachable, rpc.CodeFinalized} {
			err := FromRPC(&rpc.Error{Code: code, Message: "gone"})
			assert.True(t, ErrorCodeIs(err, ErrorCodeProviderIsUnreachable), "code %d", code)
		}

		err := FromRPC(&rpc.Error{Code: 1000, Message: "future code"})
		assert.False(t, ErrorCodeIs(err, ErrorCodeProviderIsUnreachable))
	})
}
