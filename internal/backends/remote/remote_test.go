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

package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/rpc"
	"github.com/FerretDB/polydoc/internal/util/async"
	"github.com/FerretDB/polydoc/internal/util/testutil"
)

type echoRequest struct {
	Text string `json:"text"`
}

type echoResponse struct {
	Text string `json:"text"`
}

func setupServer(t *testing.T, token string) (*rpc.LocalEngine, *Server) {
	t.Helper()

	l := testutil.Logger(t)

	e := rpc.NewLocalEngine(&rpc.LocalEngineOpts{L: l})
	t.Cleanup(e.Finalize)

	pool := async.NewPool(&async.NewPoolParams{Name: t.Name(), Size: 2, L: l})
	t.Cleanup(pool.Close)

	s := NewServer(&NewServerParams{
		Engine:     e,
		Pool:       pool,
		ProviderID: 1,
		Token:      token,
		L:          l,
	})
	t.Cleanup(s.Close)

	return e, s
}

func TestHandleCall(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	e, s := setupServer(t, "")

	err := Handle(s, "echo", func(ctx context.Context, req *echoRequest) (*echoResponse, error) {
		switch req.Text {
		case "missing":
			return nil, backends.NewError(backends.ErrorCodeRecordDoesNotExist, errors.New("no such record"))
		case "internal":
			return nil, errors.New("internal failure")
		}

		return &echoResponse{Text: req.Text}, nil
	})
	require.NoError(t, err)

	err = Handle(s, "echo", func(ctx context.Context, req *echoRequest) (*echoResponse, error) {
		return nil, nil
	})
	require.Error(t, err, "duplicate registration")

	ph, err := Lookup(ctx, e, e.Self().Address(), 1)
	require.NoError(t, err)

	res, err := Call[echoResponse](ctx, e, ph, "echo", &echoRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)

	_, err = Call[echoResponse](ctx, e, ph, "echo", &echoRequest{Text: "missing"})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeRecordDoesNotExist), "%v", err)
	assert.Contains(t, err.Error(), "no such record")

	_, err = Call[echoResponse](ctx, e, ph, "echo", &echoRequest{Text: "internal"})
	require.Error(t, err)

	var be *backends.Error
	assert.False(t, errors.As(err, &be), "%v", err)

	_, err = Call[echoResponse](ctx, e, ph, "no_such_handler", &echoRequest{})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeProviderIsUnreachable), "%v", err)

	assert.False(t, s.Closed())
	s.Close()
	s.Close()
	assert.True(t, s.Closed())

	_, err = Call[echoResponse](ctx, e, ph, "echo", &echoRequest{Text: "hello"})
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeProviderIsUnreachable), "%v", err)

	err = Handle(s, "echo2", func(ctx context.Context, req *echoRequest) (*echoResponse, error) {
		return nil, nil
	})
	require.Error(t, err, "closed server")
}

func TestCheckToken(t *testing.T) {
	t.Parallel()

	_, s := setupServer(t, "secret")

	for name, tc := range map[string]struct {
		token string
		ok    bool
	}{
		"Match":    {token: "secret", ok: true},
		"Mismatch": {token: "public"},
		"Prefix":   {token: "sec"},
		"Empty":    {token: ""},
	} {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := s.CheckToken(tc.token)
			if tc.ok {
				assert.NoError(t, err)
				return
			}

			assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeSecurityTokenMismatch), "%v", err)
		})
	}
}

func TestSetToken(t *testing.T) {
	t.Parallel()

	_, s := setupServer(t, "")

	assert.NoError(t, s.CheckToken("anything"), "empty token disables the check")

	s.SetToken("new")
	assert.Equal(t, "new", s.Token())
	assert.NoError(t, s.CheckToken("new"))
	assert.Error(t, s.CheckToken("old"))
}

func TestAlive(t *testing.T) {
	t.Parallel()

	assert.False(t, Alive(nil))

	e := rpc.NewLocalEngine(nil)
	assert.True(t, Alive(e))

	e.Finalize()
	assert.False(t, Alive(e))

	_, err := Lookup(testutil.Ctx(t), e, fmt.Sprintf("%sunknown", rpc.LocalScheme), 1)
	assert.True(t, backends.ErrorCodeIs(err, backends.ErrorCodeProviderIsUnreachable), "%v", err)
}
