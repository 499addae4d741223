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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/AlekSi/pointer"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/FerretDB/polydoc/internal/backends/registry"
	"github.com/FerretDB/polydoc/internal/rpc"
	"github.com/FerretDB/polydoc/internal/util/async"
	"github.com/FerretDB/polydoc/internal/util/debug"
	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
	"github.com/FerretDB/polydoc/internal/util/observability"
	"github.com/FerretDB/polydoc/internal/util/state"
)

// providerFlag represents a parsed value of --provider flag.
type providerFlag struct {
	backend string
	id      uint16
	config  json.RawMessage
}

// parseProviderFlag parses `backend:id[:config]` value.
func parseProviderFlag(s string) (*providerFlag, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("invalid provider %q: expected 'backend:id[:config]'", s)
	}

	id, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid provider %q: invalid id: %w", s, err)
	}

	res := &providerFlag{
		backend: parts[0],
		id:      uint16(id),
		config:  json.RawMessage(`{}`),
	}

	if len(parts) == 3 {
		if res.config, err = readJSON(parts[2]); err != nil {
			return nil, fmt.Errorf("invalid provider %q: %w", s, err)
		}
	}

	return res, nil
}

// readJSON returns JSON text from the flag value: either JSON text itself, or `@file`.
func readJSON(s string) (json.RawMessage, error) {
	b := []byte(s)

	if f, ok := strings.CutPrefix(s, "@"); ok {
		var err error
		if b, err = os.ReadFile(f); err != nil {
			return nil, err
		}
	}

	if !json.Valid(b) {
		return nil, errors.New("invalid JSON")
	}

	return b, nil
}

// serveParams represents serve parameters.
type serveParams struct {
	stateProvider *state.Provider
	registerer    prometheus.Registerer
	l             *zap.Logger
}

// serve runs the engine with providers until ctx is canceled or the engine is shut down remotely.
func serve(ctx context.Context, params *serveParams) error {
	logger := params.l

	flags := make([]*providerFlag, len(cli.Serve.Provider))

	for i, s := range cli.Serve.Provider {
		f, err := parseProviderFlag(s)
		if err != nil {
			return err
		}

		flags[i] = f
	}

	err := params.stateProvider.Update(func(s *state.State) {
		if s.CleanShutdown != nil && !*s.CleanShutdown {
			logger.Warn("Previous run was not shut down cleanly.")
		}

		s.Starts++
		s.CleanShutdown = pointer.ToBool(false)
	})
	if err != nil {
		return lazyerrors.Error(err)
	}

	shutdownOtel, err := observability.SetupOtel("polydoc", cli.Serve.OTLPEndpoint)
	if err != nil {
		return lazyerrors.Error(err)
	}

	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}()

	started := make(chan struct{})

	var wg sync.WaitGroup

	debugCtx, debugStop := context.WithCancel(ctx)
	defer debugStop()

	// https://github.com/alecthomas/kong/issues/389
	if cli.Serve.DebugAddr != "" && cli.Serve.DebugAddr != "-" {
		h, err := debug.Listen(&debug.ListenOpts{
			TCPAddr: cli.Serve.DebugAddr,
			L:       logger.Named("debug"),
			R:       params.registerer,
			Started: started,
		})
		if err != nil {
			return lazyerrors.Error(err)
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			h.Serve(debugCtx)
		}()
	}

	defer wg.Wait()

	e, err := rpc.NewHTTPEngine(&rpc.HTTPEngineOpts{
		ListenAddr:           cli.Serve.ListenAddr,
		L:                    logger,
		EnableRemoteShutdown: cli.Serve.EnableRemoteShutdown,
	})
	if err != nil {
		return lazyerrors.Error(err)
	}

	defer e.Finalize()

	params.registerer.MustRegister(e)

	pool := async.NewPool(&async.NewPoolParams{
		Name: "providers",
		Size: cli.Serve.PoolSize,
		L:    logger.Named("async"),
	})

	// registered first to be called last, after providers are closed
	e.OnFinalize(pool.Close)

	params.registerer.MustRegister(pool)

	for _, f := range flags {
		_, err = registry.NewProvider(ctx, f.backend, &registry.NewProviderOpts{
			Engine:     e,
			Pool:       pool,
			ProviderID: f.id,
			Config:     f.config,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create provider %d: %w", f.id, err)
		}

		logger.Info(
			"Provider started",
			zap.String("backend", f.backend), zap.Uint16("id", f.id), zap.Stringer("endpoint", e.Self()),
		)
	}

	close(started)

	select {
	case <-ctx.Done():
		logger.Info("Stopping...")
	case <-e.Done():
		logger.Info("Engine was shut down remotely, stopping...")
	}

	e.Finalize()
	debugStop()

	err = params.stateProvider.Update(func(s *state.State) {
		s.CleanShutdown = pointer.ToBool(true)
	})
	if err != nil {
		return lazyerrors.Error(err)
	}

	logger.Info("Stopped")

	return nil
}
