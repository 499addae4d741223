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
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/FerretDB/polydoc/internal/util/observability"
)

const (
	namespace = "polydoc"
	subsystem = "rpc"
)

// handlerKey identifies a registered handler.
type handlerKey struct {
	providerID uint16
	name       string
}

// router contains the parts shared by all engines:
// handler registry, finalization, and metrics.
type router struct {
	l *zap.Logger

	rw        sync.RWMutex
	handlers  map[handlerKey]Handler
	finalizer []func()

	finalizeOnce sync.Once
	done         chan struct{}

	calls   *prometheus.CounterVec
	handled *prometheus.CounterVec
	timing  *prometheus.HistogramVec
}

// newRouter creates a new router.
func newRouter(l *zap.Logger, engine string) *router {
	if l == nil {
		l = zap.NewNop()
	}

	labels := prometheus.Labels{"engine": engine}

	return &router{
		l:        l,
		handlers: map[handlerKey]Handler{},
		done:     make(chan struct{}),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        "calls_total",
				Help:        "Total number of outgoing RPC calls.",
				ConstLabels: labels,
			},
			[]string{"name", "result"},
		),
		handled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        "handled_total",
				Help:        "Total number of handled incoming RPC calls.",
				ConstLabels: labels,
			},
			[]string{"provider", "name", "result"},
		),
		timing: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        "handler_seconds",
				Help:        "Incoming RPC calls handling time.",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"name"},
		),
	}
}

// Register implements [Engine].
func (r *router) Register(providerID uint16, name string, h Handler) error {
	if name == "" || h == nil {
		return newError(CodeBadRequest, "invalid handler registration for provider %d", providerID)
	}

	r.rw.Lock()
	defer r.rw.Unlock()

	k := handlerKey{providerID: providerID, name: name}
	if _, ok := r.handlers[k]; ok {
		return newError(CodeBadRequest, "handler %q is already registered for provider %d", name, providerID)
	}

	r.handlers[k] = h

	return nil
}

// Deregister implements [Engine].
func (r *router) Deregister(providerID uint16, name string) {
	r.rw.Lock()
	defer r.rw.Unlock()

	delete(r.handlers, handlerKey{providerID: providerID, name: name})
}

// OnFinalize implements [Engine].
func (r *router) OnFinalize(f func()) {
	r.rw.Lock()
	defer r.rw.Unlock()

	r.finalizer = append(r.finalizer, f)
}

// Done implements [Engine].
func (r *router) Done() <-chan struct{} {
	return r.done
}

// finalize calls finalization functions once, in reverse order, then closes done channel.
func (r *router) finalize() {
	r.finalizeOnce.Do(func() {
		r.rw.Lock()
		fs := r.finalizer
		r.finalizer = nil
		r.rw.Unlock()

		for i := len(fs) - 1; i >= 0; i-- {
			fs[i]()
		}

		close(r.done)
	})
}

// finalized returns true if finalize was called and finished.
func (r *router) finalized() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// serve dispatches an incoming call to the registered handler.
//
// The returned error is always *Error.
func (r *router) serve(ctx context.Context, providerID uint16, name string, body []byte, headers map[string]string) ([]byte, *Error) {
	ctx = observability.ExtractTraceContext(ctx, headers)

	defer observability.FuncCall(ctx)()

	start := time.Now()
	provider := formatProviderID(providerID)

	r.rw.RLock()
	h := r.handlers[handlerKey{providerID: providerID, name: name}]
	r.rw.RUnlock()

	if h == nil {
		r.handled.WithLabelValues(provider, name, "no_handler").Inc()
		return nil, newError(CodeNoHandler, "no handler %q for provider %d", name, providerID)
	}

	res, err := h(ctx, body)

	r.timing.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		r.handled.WithLabelValues(provider, name, "error").Inc()
		r.l.Debug("Handler failed", zap.Uint16("provider", providerID), zap.String("name", name), zap.Error(err))

		return nil, toError(err)
	}

	b, err := json.Marshal(res)
	if err != nil {
		r.handled.WithLabelValues(provider, name, "error").Inc()
		return nil, newError(CodeBadRequest, "failed to encode %q response: %s", name, err)
	}

	r.handled.WithLabelValues(provider, name, "ok").Inc()

	return b, nil
}

// observeCall records the result of an outgoing call.
func (r *router) observeCall(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	r.calls.WithLabelValues(name, result).Inc()
}

// Describe implements prometheus.Collector.
func (r *router) Describe(ch chan<- *prometheus.Desc) {
	r.calls.Describe(ch)
	r.handled.Describe(ch)
	r.timing.Describe(ch)
}

// Collect implements prometheus.Collector.
func (r *router) Collect(ch chan<- prometheus.Metric) {
	r.calls.Collect(ch)
	r.handled.Collect(ch)
	r.timing.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*router)(nil)
)

// formatProviderID returns provider id as a string for metric labels and URLs.
func formatProviderID(providerID uint16) string {
	return strconv.FormatUint(uint64(providerID), 10)
}
