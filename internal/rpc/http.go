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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
	"github.com/FerretDB/polydoc/internal/util/must"
	"github.com/FerretDB/polydoc/internal/util/observability"
	"github.com/FerretDB/polydoc/internal/util/resource"
)

// maxBodySize is the maximal size of request and response bodies.
const maxBodySize = 64 << 20

// HTTPEngineOpts represents [NewHTTPEngine] options.
type HTTPEngineOpts struct {
	// ListenAddr is a TCP address to listen on, like "127.0.0.1:8080".
	// If empty, the engine is client-only and can't host providers.
	ListenAddr string

	L *zap.Logger

	// Client is used for outgoing calls; http.DefaultClient if nil.
	Client *http.Client

	// EnableRemoteShutdown allows other engines to finalize this one with [Engine.ShutdownRemote].
	EnableRemoteShutdown bool
}

// HTTPEngine is an engine that uses HTTP with JSON bodies.
//
// Calls are POST requests to `<address>/rpc/<provider id>/<name>`.
// Successful responses have status 200 and JSON-encoded response as a body.
// Handler errors have status 422 (500 for transport errors) and JSON-encoded [Error] as a body.
// Tracing context is passed in W3C `traceparent` / `tracestate` headers.
type HTTPEngine struct {
	*router

	opts   *HTTPEngineOpts
	client *http.Client
	addr   string
	lis    net.Listener
	srv    *http.Server
	token  *resource.Token
}

// NewHTTPEngine creates a new HTTP engine and starts listening if opts.ListenAddr is set.
//
// It should be finalized with [HTTPEngine.Finalize].
func NewHTTPEngine(opts *HTTPEngineOpts) (*HTTPEngine, error) {
	if opts == nil {
		opts = new(HTTPEngineOpts)
	}

	l := opts.L
	if l == nil {
		l = zap.NewNop()
	}

	l = l.Named("rpc")

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	e := &HTTPEngine{
		router: newRouter(l, "http"),
		opts:   opts,
		client: client,
		token:  resource.NewToken(),
	}

	if opts.ListenAddr != "" {
		lis, err := net.Listen("tcp", opts.ListenAddr)
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		e.lis = lis
		e.addr = "http://" + lis.Addr().String()
		e.l = e.l.With(zap.String("addr", e.addr))

		mux := http.NewServeMux()
		mux.HandleFunc("GET /ping", func(rw http.ResponseWriter, _ *http.Request) {
			rw.WriteHeader(http.StatusOK)
		})
		mux.HandleFunc("POST /rpc/{provider}/{name}", e.handleRPC)
		mux.HandleFunc("POST /shutdown", e.handleShutdown)

		e.srv = &http.Server{
			Handler:           mux,
			ErrorLog:          must.NotFail(zap.NewStdLogAt(e.l, zap.WarnLevel)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			e.l.Info("Listening", zap.String("addr", e.addr))

			if err := e.srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
				e.l.Error("Server exited with unexpected error", zap.Error(err))
			}
		}()
	}

	resource.Track(e, e.token)

	return e, nil
}

// Self implements [Engine].
func (e *HTTPEngine) Self() Endpoint {
	return Endpoint{addr: e.addr}
}

// Lookup implements [Engine].
//
// It checks that the address is well-formed and that the remote engine responds.
func (e *HTTPEngine) Lookup(ctx context.Context, address string) (Endpoint, error) {
	defer observability.FuncCall(ctx)()

	u, err := url.Parse(address)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Endpoint{}, newError(CodeUnreachable, "invalid HTTP address %q", address)
	}

	ep := Endpoint{addr: u.Scheme + "://" + u.Host}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.addr+"/ping", nil)
	if err != nil {
		return Endpoint{}, lazyerrors.Error(err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Endpoint{}, newError(CodeUnreachable, "%s is unreachable: %s", ep.addr, err)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Endpoint{}, newError(CodeUnreachable, "%s is not a polydoc engine (status %d)", ep.addr, resp.StatusCode)
	}

	return ep, nil
}

// Call implements [Engine].
func (e *HTTPEngine) Call(ctx context.Context, ph ProviderHandle, name string, req, resp any) (err error) {
	defer observability.FuncCall(ctx)()

	defer func() {
		e.observeCall(name, err)
	}()

	if e.finalized() {
		return newError(CodeFinalized, "engine %q is finalized", e.addr)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return newError(CodeBadRequest, "failed to encode %q request: %s", name, err)
	}

	u := ph.Endpoint.addr + "/rpc/" + formatProviderID(ph.ProviderID) + "/" + url.PathEscape(name)

	b, err := e.post(ctx, u, body)
	if err != nil {
		return err
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
func (e *HTTPEngine) ShutdownRemote(ctx context.Context, ep Endpoint) error {
	defer observability.FuncCall(ctx)()

	_, err := e.post(ctx, ep.addr+"/shutdown", nil)

	return err
}

// post sends a POST request and returns a response body of a successful response.
func (e *HTTPEngine) post(ctx context.Context, u string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range observability.InjectTraceContext(ctx) {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, newError(CodeUnreachable, "%s is unreachable: %s", u, err)
	}

	defer resp.Body.Close() //nolint:errcheck // we are only reading it

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, newError(CodeUnreachable, "failed to read response from %s: %s", u, err)
	}

	if resp.StatusCode == http.StatusOK {
		return b, nil
	}

	var rpcErr Error
	if err = json.Unmarshal(b, &rpcErr); err != nil || rpcErr.Message == "" {
		return nil, newError(CodeUnreachable, "unexpected response from %s: status %d", u, resp.StatusCode)
	}

	return nil, &rpcErr
}

// handleRPC handles incoming calls.
func (e *HTTPEngine) handleRPC(rw http.ResponseWriter, req *http.Request) {
	providerID, err := strconv.ParseUint(req.PathValue("provider"), 10, 16)
	if err != nil {
		e.writeError(rw, newError(CodeBadRequest, "invalid provider id %q", req.PathValue("provider")))
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize))
	if err != nil {
		e.writeError(rw, newError(CodeBadRequest, "failed to read request: %s", err))
		return
	}

	headers := map[string]string{}
	for _, k := range []string{"traceparent", "tracestate"} {
		if v := req.Header.Get(k); v != "" {
			headers[k] = v
		}
	}

	b, rpcErr := e.serve(req.Context(), uint16(providerID), req.PathValue("name"), body, headers)
	if rpcErr != nil {
		e.writeError(rw, rpcErr)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	_, _ = rw.Write(b)
}

// handleShutdown handles remote shutdown requests.
func (e *HTTPEngine) handleShutdown(rw http.ResponseWriter, _ *http.Request) {
	if !e.opts.EnableRemoteShutdown {
		e.writeError(rw, newError(CodeShutdownDisabled, "remote shutdown is not enabled for %q", e.addr))
		return
	}

	e.l.Info("Remote shutdown requested")

	rw.WriteHeader(http.StatusOK)

	// finalize after the response is sent
	go e.Finalize()
}

// writeError writes an error response.
func (e *HTTPEngine) writeError(rw http.ResponseWriter, rpcErr *Error) {
	status := http.StatusUnprocessableEntity
	if rpcErr.Code < 0 {
		status = http.StatusInternalServerError
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	_ = json.NewEncoder(rw).Encode(rpcErr)
}

// Finalize implements [Engine].
func (e *HTTPEngine) Finalize() {
	if e.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := e.srv.Shutdown(ctx); err != nil {
			e.l.Warn("Server shutdown failed", zap.Error(err))
			_ = e.srv.Close()
		}
	}

	e.finalize()

	resource.Untrack(e, e.token)
}

// String implements [fmt.Stringer].
func (e *HTTPEngine) String() string {
	if e.addr == "" {
		return "http engine (client-only)"
	}

	return fmt.Sprintf("http engine %s", e.addr)
}

// check interfaces
var (
	_ Engine = (*HTTPEngine)(nil)
)
