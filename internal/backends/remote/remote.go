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
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/rpc"
	"github.com/FerretDB/polydoc/internal/util/async"
	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
)

// Server registers provider's RPC handlers on the engine and runs them on the pool.
//
//nolint:vet // for readability
type Server struct {
	engine     rpc.Engine
	pool       *async.Pool
	providerID uint16
	l          *zap.Logger

	rw     sync.RWMutex
	token  string
	names  []string
	closed bool
}

// NewServerParams represents the parameters of NewServer function.
type NewServerParams struct {
	Engine     rpc.Engine
	Pool       *async.Pool
	ProviderID uint16
	Token      string
	L          *zap.Logger
}

// NewServer creates a new Server.
func NewServer(params *NewServerParams) *Server {
	return &Server{
		engine:     params.Engine,
		pool:       params.Pool,
		providerID: params.ProviderID,
		l:          params.L,
		token:      params.Token,
	}
}

// Handle registers a typed handler with the given name.
//
// Requests are decoded into Req; handlers are called on the server's pool.
// Returned *backends.Error values are sent with their codes.
func Handle[Req, Res any](s *Server, name string, f func(context.Context, *Req) (*Res, error)) error {
	h := func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req Req
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, &rpc.Error{
				Code:    rpc.CodeBadRequest,
				Message: fmt.Sprintf("failed to decode %s request: %s", name, err),
			}
		}

		res, err := async.Go(ctx, s.pool, func(ctx context.Context) (*Res, error) {
			return f(ctx, &req)
		}).Result()

		if err != nil {
			if !backends.ErrorCodeIs(err, backends.ErrorCodeNotImplemented) {
				s.l.Debug("Handler failed.", zap.String("name", name), zap.Error(err))
			}

			return nil, backends.ToRPC(err)
		}

		return res, nil
	}

	s.rw.Lock()
	defer s.rw.Unlock()

	if s.closed {
		return lazyerrors.New("server is closed")
	}

	if err := s.engine.Register(s.providerID, name, h); err != nil {
		return lazyerrors.Error(err)
	}

	s.names = append(s.names, name)

	return nil
}

// Close deregisters all handlers. It is safe to call it multiple times.
func (s *Server) Close() {
	s.rw.Lock()
	defer s.rw.Unlock()

	if s.closed {
		return
	}

	for _, name := range s.names {
		s.engine.Deregister(s.providerID, name)
	}

	s.names = nil
	s.closed = true
}

// Closed returns true if the server was closed.
func (s *Server) Closed() bool {
	s.rw.RLock()
	defer s.rw.RUnlock()

	return s.closed
}

// SetToken changes the security token. Empty token disables the check.
func (s *Server) SetToken(token string) {
	s.rw.Lock()
	defer s.rw.Unlock()

	s.token = token
}

// Token returns the current security token.
func (s *Server) Token() string {
	s.rw.RLock()
	defer s.rw.RUnlock()

	return s.token
}

// CheckToken returns *backends.Error with ErrorCodeSecurityTokenMismatch
// if the given token does not match the server's one.
func (s *Server) CheckToken(token string) error {
	expected := s.Token()
	if expected == "" {
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1 {
		return nil
	}

	return backends.NewError(backends.ErrorCodeSecurityTokenMismatch, errors.New("security token mismatch"))
}

// Call calls the remote handler and decodes its response into a new Res value.
//
// Errors are converted with backends.FromRPC.
//
//nolint:lll // for readability
func Call[Res any](ctx context.Context, e rpc.Engine, ph rpc.ProviderHandle, name string, req any) (*Res, error) {
	var res Res
	if err := e.Call(ctx, ph, name, req, &res); err != nil {
		return nil, backends.FromRPC(err)
	}

	return &res, nil
}

// Empty is used for requests and responses without fields.
type Empty struct{}

// Alive returns true if the engine was not finalized.
//
// It is used by Valid methods of client adapters, so it never makes remote calls.
func Alive(e rpc.Engine) bool {
	if e == nil {
		return false
	}

	select {
	case <-e.Done():
		return false
	default:
		return true
	}
}

// Lookup resolves the address and returns a handle for the given provider id.
//
//nolint:lll // for readability
func Lookup(ctx context.Context, e rpc.Engine, address string, providerID uint16) (rpc.ProviderHandle, error) {
	ep, err := e.Lookup(ctx, address)
	if err != nil {
		return rpc.ProviderHandle{}, backends.FromRPC(err)
	}

	return rpc.NewProviderHandle(ep, providerID), nil
}
