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

package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newPool(t *testing.T, size int) *Pool {
	t.Helper()

	p := NewPool(&NewPoolParams{
		Name: t.Name(),
		Size: size,
		L:    zaptest.NewLogger(t),
	})
	t.Cleanup(p.Close)

	return p
}

func TestTask(t *testing.T) {
	t.Parallel()

	p := newPool(t, 1)

	release := make(chan struct{})
	task := Go(context.Background(), p, func(context.Context) (int, error) {
		<-release
		return 42, nil
	})

	assert.True(t, task.Valid())
	assert.False(t, task.Completed())
	assert.False(t, task.Completed(), "polling has no side effects")

	close(release)

	res, err := task.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, res)

	assert.True(t, task.Completed())

	res, err = task.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, res, "second wait returns the same result")
	assert.NoError(t, task.Wait())

	var zero Task[int]
	assert.False(t, zero.Valid())
	assert.False(t, zero.Completed())
}

func TestTaskError(t *testing.T) {
	t.Parallel()

	p := newPool(t, 1)

	expected := errors.New("expected")
	task := Go(context.Background(), p, func(context.Context) (struct{}, error) {
		return struct{}{}, expected
	})

	assert.ErrorIs(t, task.Wait(), expected)
	assert.ErrorIs(t, task.Wait(), expected)
}

func TestTaskPanic(t *testing.T) {
	t.Parallel()

	p := newPool(t, 1)

	task := Go(context.Background(), p, func(context.Context) (int, error) {
		panic("boom")
	})

	err := task.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task panicked: boom")
}

func TestTaskNotCanceled(t *testing.T) {
	t.Parallel()

	p := newPool(t, 1)

	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	task := Go(ctx, p, func(ctx context.Context) (error, error) {
		<-release
		return ctx.Err(), nil
	})

	cancel()
	close(release)

	res, err := task.Result()
	require.NoError(t, err)
	assert.NoError(t, res)
}

func TestPoolBound(t *testing.T) {
	t.Parallel()

	const size = 3

	p := newPool(t, size)

	var running, maxRunning atomic.Int64

	tasks := make([]*Task[struct{}], 20)
	for i := range tasks {
		tasks[i] = Go(context.Background(), p, func(context.Context) (struct{}, error) {
			n := running.Add(1)
			defer running.Add(-1)

			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}

			time.Sleep(5 * time.Millisecond)

			return struct{}{}, nil
		})
	}

	for _, task := range tasks {
		require.NoError(t, task.Wait())
	}

	assert.LessOrEqual(t, maxRunning.Load(), int64(size))
	assert.Equal(t, 5, promtestutil.CollectAndCount(p))
}

func TestPoolClose(t *testing.T) {
	t.Parallel()

	p := NewPool(&NewPoolParams{Size: 2})

	var wg sync.WaitGroup
	var finished atomic.Int64

	for i := 0; i < 5; i++ {
		wg.Add(1)

		Go(context.Background(), p, func(context.Context) (struct{}, error) {
			defer wg.Done()

			time.Sleep(10 * time.Millisecond)
			finished.Add(1)

			return struct{}{}, nil
		})
	}

	p.Close()
	assert.Equal(t, int64(5), finished.Load(), "Close waits for submitted tasks")

	wg.Wait()

	task := Go(context.Background(), p, func(context.Context) (int, error) {
		return 1, nil
	})
	assert.True(t, task.Completed())
	assert.ErrorIs(t, task.Wait(), ErrPoolClosed)
}

func TestDone(t *testing.T) {
	t.Parallel()

	task := Done("res", nil)
	assert.True(t, task.Completed())

	res, err := task.Result()
	require.NoError(t, err)
	assert.Equal(t, "res", res)
}
