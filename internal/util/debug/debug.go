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

// Package debug provides debug facilities.
package debug

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"text/template"
	"time"

	"github.com/arl/statsviz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
	"github.com/FerretDB/polydoc/internal/util/logging"
	"github.com/FerretDB/polydoc/internal/util/must"
)

// ListenOpts represents [Listen] options.
type ListenOpts struct {
	TCPAddr string
	L       *zap.Logger
	R       prometheus.Registerer
	G       prometheus.Gatherer

	// Started is closed when the server is ready to serve RPC requests.
	Started <-chan struct{}
}

// Handler represents debug handler.
type Handler struct {
	opts *ListenOpts
	lis  net.Listener
	srv  *http.Server
	page []byte
	urls []string
}

// Listen creates a new debug handler and starts listener on the given TCP address.
func Listen(opts *ListenOpts) (*Handler, error) {
	must.NotBeZero(opts)

	if opts.L == nil {
		opts.L = zap.NewNop()
	}

	if opts.R == nil {
		opts.R = prometheus.DefaultRegisterer
	}

	if opts.G == nil {
		opts.G = prometheus.DefaultGatherer
	}

	stdL := must.NotFail(zap.NewStdLogAt(opts.L, zap.WarnLevel))
	g := newGatherer(opts.G, opts.L)

	mux := http.NewServeMux()

	mux.Handle("/debug/metrics", promhttp.InstrumentMetricHandler(
		opts.R, promhttp.HandlerFor(g, promhttp.HandlerOpts{
			ErrorLog:          stdL,
			ErrorHandling:     promhttp.ContinueOnError,
			Registry:          opts.R,
			EnableOpenMetrics: true,
		}),
	))

	plots, err := newPlotter(g).plots()
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	svOpts := []statsviz.Option{statsviz.Root("/debug/graphs")}
	for _, p := range plots {
		svOpts = append(svOpts, statsviz.TimeseriesPlot(p))
	}

	if err = statsviz.Register(mux, svOpts...); err != nil {
		return nil, lazyerrors.Error(err)
	}

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	mux.HandleFunc("/debug/logs", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")

		for _, e := range logging.RecentEntries.Get() {
			fmt.Fprintf(rw, "%s\t%s\t%s\t%s\n", e.Time.Format(time.RFC3339Nano), e.Level.CapitalString(), e.LoggerName, e.Message)
		}
	})

	mux.HandleFunc("/debug/livez", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/debug/started", func(rw http.ResponseWriter, _ *http.Request) {
		if opts.Started == nil {
			rw.WriteHeader(http.StatusOK)
			return
		}

		select {
		case <-opts.Started:
			rw.WriteHeader(http.StatusOK)
		default:
			rw.WriteHeader(http.StatusInternalServerError)
		}
	})

	handlers := map[string]string{
		"/debug/graphs":  "Visualize metrics",
		"/debug/metrics": "Metrics in Prometheus format",
		"/debug/logs":    "Recent log entries",
		"/debug/livez":   "Liveness probe",
		"/debug/started": "Startup probe",
		"/debug/vars":    "Expvar package metrics",
		"/debug/pprof":   "Runtime profiling data for pprof",
	}

	var page bytes.Buffer
	must.NoError(template.Must(template.New("debug").Parse(`
	<html>
	<body>
	<ul>
	{{range $path, $desc := .}}
		<li><a href="{{$path}}">{{$path}}</a>: {{$desc}}</li>
	{{end}}
	</ul>
	</body>
	</html>
	`)).Execute(&page, handlers))

	h := &Handler{
		opts: opts,
		page: page.Bytes(),
	}

	mux.HandleFunc("/debug", func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write(h.page)
	})

	mux.HandleFunc("/", func(rw http.ResponseWriter, req *http.Request) {
		http.Redirect(rw, req, "/debug", http.StatusSeeOther)
	})

	if h.lis, err = net.Listen("tcp", opts.TCPAddr); err != nil {
		return nil, lazyerrors.Error(err)
	}

	h.srv = &http.Server{
		Handler:  mux,
		ErrorLog: stdL,
	}

	root := "http://" + h.lis.Addr().String()

	paths := maps.Keys(handlers)
	slices.Sort(paths)

	for _, path := range paths {
		h.urls = append(h.urls, fmt.Sprintf("%s%s - %s", root, path, handlers[path]))
	}

	return h, nil
}

// Addr returns the listener address.
func (h *Handler) Addr() net.Addr {
	return h.lis.Addr()
}

// Serve runs debug handler until ctx is canceled.
//
// It exits when handler is stopped and listener closed.
func (h *Handler) Serve(ctx context.Context) {
	h.srv.BaseContext = func(net.Listener) context.Context {
		return ctx
	}

	l := h.opts.L

	l.Sugar().Infof("Starting debug server on http://%s ...", h.lis.Addr())

	for _, u := range h.urls {
		l.Info(u)
	}

	go func() {
		if err := h.srv.Serve(h.lis); !errors.Is(err, http.ErrServerClosed) {
			l.DPanic("Debug server exited with unexpected error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	// ctx is already canceled, but we want to inherit its values
	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer stopCancel()

	_ = h.srv.Shutdown(stopCtx)
	_ = h.srv.Close()

	l.Info("Debug server stopped")
}
