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
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FerretDB/polydoc/internal/util/observability"
	"github.com/FerretDB/polydoc/internal/util/resource"
)

// LocalScheme is the address scheme of local engines.
const LocalScheme = "local://"

// network contains all local engines of the process by address.
var network = struct {
	rw      sync.RWMutex
	engines map[string]*LocalEngine
}{
	engines: map[string]*LocalEngine{},
}

// LocalEngineOpts represents [NewLocalEngine] options.
type LocalEngineOpts struct {
	L *zap.Logger

	// EnableRemoteShutdown allows other engines to finalize this one with [Engine.ShutdownRemote].
	EnableRemoteShutdown bool
}

// LocalEngine is an in-process engine.
//
// Local engines of the same process can call each other by their `local://<uuid>` addresses.
type LocalEngine struct {
	*router

	opts  *LocalEngineOpts
	addr  string
	token *resource.Token
}

// NewLocalEngine creates a new local engine and makes it reachable by other local engines.
//
// It should be finalized with [LocalEngine.Finalize].
func NewLocalEngine(opts *LocalEngineOpts) *LocalEngine {
	if opts == nil {
		opts = new(LocalEngineOpts)
	}

	addr := LocalScheme + uuid.NewString()

	l := opts.L
	if l == nil {
		l = zap.NewNop()
	}

	e := &LocalEngine{
		router: newRouter(l.Named("rpc").With(zap.String("addr", addr)), "local"),
		opts:   opts,
		addr:   addr,
		token:  resource.NewToken(),
	}

	resource.Track(e, e.token)

	network.rw.Lock()
	network.engines[addr] = e
	network.rw.Unlock()

	return e
}

// Self implements [Engine].
func (e *LocalEngine) Self() Endpoint {
	return Endpoint{addr: e.addr}
}

// lookup returns a local engine by address.
func lookup(address string) (*LocalEngine, *Error) {
	if !strings.HasPrefix(address, LocalScheme) {
		return nil, newError(CodeUnreachable, "address %q is not a local address", address)
	}

	network.rw.RLock()
	target := network.engines[address]
	network.rw.RUnlock()

	if target == nil {
		return nil, newError(CodeUnreachable, "no local engine at %q", address)
	}

	return target, nil
}

// Lookup implements [Engine].
func (e *LocalEngine) Lookup(ctx context.Context, address string) (Endpoint, error) {
	if _, err := lookup(address); err != nil {
		return Endpoint{}, err
	}

	return Endpoint{addr: address}, nil
}

// Call implements [Engine].
func (e *LocalEngine) Call(ctx context.Context, ph ProviderHandle, name string, req, resp any) (err error) {
	defer observability.FuncCall(ctx)()

	defer func() {
		e.observeCall(name, err)
	}()

	if e.finalized() {
		return newError(CodeFinalized, "engine %q is finalized", e.addr)
	}

	target, rpcErr := lookup(ph.Endpoint.addr)
	if rpcErr != nil {
		return rpcErr
	}

	body, err := json.Marshal(req)
	if err != nil {
		return newError(CodeBadRequest, "failed to encode %q request: %s", name, err)
	}

	b, rpcErr := target.serve(ctx, ph.ProviderID, name, body, observability.InjectTraceContext(ctx))
	if rpcErr != nil {
		return rpcErr
	}

	if resp == nil {
		return nil
	}

	if err = json.Unmarshal(b, resp); err != nil {
		return newError(CodeBadRequest, "failed to decode %q response: %s", name, err)
	}

	return nil
}

// ShutdownRemote implements [Engine].
func (e *LocalEngine) ShutdownRemote(ctx context.Context, ep Endpoint) error {
	target, err := lookup(ep.addr)
	if err != nil {
		return err
	}

	if !target.opts.EnableRemoteShutdown {
		return newError(CodeShutdownDisabled, "remote shutdown is not enabled for %q", ep.addr)
	}

	e.l.Info("Shutting down remote engine", zap.String("target", ep.addr))

	// the target finalizes itself in the background, like a remote process would
	go target.Finalize()

	return nil
}

// Finalize implements [Engine].
func (e *LocalEngine) Finalize() {
	network.rw.Lock()
	delete(network.engines, e.addr)
	network.rw.Unlock()

	e.finalize()

	resource.Untrack(e, e.token)
}

// check interfaces
var (
	_ Engine = (*LocalEngine)(nil)
)
