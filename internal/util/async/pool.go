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

// Package async provides a bounded pool for background work and waitable tasks.
//
// Work submitted with [Go] starts immediately in a new goroutine,
// but runs only after acquiring one of the pool's slots.
// The caller gets a [Task] that could be polled with [Task.Completed]
// and waited for with [Task.Wait] any number of times.
//
// Submitted work can't be canceled: it always runs to completion.
package async

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
	"github.com/FerretDB/polydoc/internal/util/resource"
)

const (
	namespace = "polydoc"
	subsystem = "async"
)

// DefaultSize returns the default pool size.
func DefaultSize() int {
	return 4 * runtime.GOMAXPROCS(-1)
}

// Pool limits the number of concurrently running tasks.
//
// Pool is safe for concurrent use.
type Pool struct {
	name string
	sem  *semaphore.Weighted
	size int64
	l    *zap.Logger
	wg   sync.WaitGroup

	// protects closed and wg.Add
	rw     sync.RWMutex
	closed bool

	waiting   atomic.Int64
	running   atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64

	token *resource.Token
}

// NewPoolParams represents parameters for [NewPool].
type NewPoolParams struct {
	Name string // used in metrics labels
	Size int    // DefaultSize() if zero
	L    *zap.Logger
}

// NewPool creates a new pool.
//
// It should be closed with [Pool.Close].
func NewPool(params *NewPoolParams) *Pool {
	size := params.Size
	if size <= 0 {
		size = DefaultSize()
	}

	l := params.L
	if l == nil {
		l = zap.NewNop()
	}

	p := &Pool{
		name:  params.Name,
		sem:   semaphore.NewWeighted(int64(size)),
		size:  int64(size),
		l:     l,
		token: resource.NewToken(),
	}

	resource.Track(p, p.token)

	return p
}

// Size returns the maximal number of concurrently running tasks.
func (p *Pool) Size() int {
	return int(p.size)
}

// Close waits for all submitted tasks to finish.
//
// Tasks submitted after Close fail with [ErrPoolClosed].
func (p *Pool) Close() {
	p.rw.Lock()
	p.closed = true
	p.rw.Unlock()

	p.wg.Wait()

	resource.Untrack(p, p.token)
}

// ErrPoolClosed is returned by tasks submitted to the closed pool.
var ErrPoolClosed = fmt.Errorf("async: pool is closed")

// Go submits f to the pool and returns immediately.
//
// f is called with a context that is never canceled, but carries ctx's values
// (such as the tracing span).
func Go[T any](ctx context.Context, p *Pool, f func(context.Context) (T, error)) *Task[T] {
	t := &Task[T]{
		done: make(chan struct{}),
	}

	p.rw.RLock()

	if p.closed {
		p.rw.RUnlock()

		t.err = ErrPoolClosed
		close(t.done)

		return t
	}

	p.wg.Add(1)
	p.rw.RUnlock()

	ctx = context.WithoutCancel(ctx)

	p.waiting.Add(1)

	go func() {
		defer p.wg.Done()

		// can't fail: ctx is never canceled
		_ = p.sem.Acquire(ctx, 1)

		p.waiting.Add(-1)
		p.running.Add(1)

		defer func() {
			p.sem.Release(1)
			p.running.Add(-1)
			p.completed.Add(1)

			close(t.done)
		}()

		defer func() {
			if r := recover(); r != nil {
				p.panicked.Add(1)
				p.l.Error("Task panicked", zap.String("pool", p.name), zap.Any("panic", r), zap.StackSkip("stack", 2))

				t.err = lazyerrors.Errorf("task panicked: %v", r)
			}
		}()

		t.res, t.err = f(ctx)
	}()

	return t
}

// Describe implements prometheus.Collector.
func (p *Pool) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(p, ch)
}

// Collect implements prometheus.Collector.
func (p *Pool) Collect(ch chan<- prometheus.Metric) {
	labels := prometheus.Labels{"pool": p.name}

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "size"),
			"The maximal number of concurrently running tasks.",
			nil, labels,
		),
		prometheus.GaugeValue,
		float64(p.size),
	)

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "waiting"),
			"The number of submitted tasks waiting for a free slot.",
			nil, labels,
		),
		prometheus.GaugeValue,
		float64(p.waiting.Load()),
	)

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "running"),
			"The number of currently running tasks.",
			nil, labels,
		),
		prometheus.GaugeValue,
		float64(p.running.Load()),
	)

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "completed_total"),
			"The total number of completed tasks.",
			nil, labels,
		),
		prometheus.CounterValue,
		float64(p.completed.Load()),
	)

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "panics_total"),
			"The total number of tasks that panicked.",
			nil, labels,
		),
		prometheus.CounterValue,
		float64(p.panicked.Load()),
	)
}

// check interfaces
var (
	_ prometheus.Collector = (*Pool)(nil)
)
