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

package debug

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHandler(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	reg := prometheus.NewRegistry()
	started := make(chan struct{})

	h, err := Listen(&ListenOpts{
		TCPAddr: "127.0.0.1:0",
		L:       zaptest.NewLogger(t),
		R:       reg,
		G:       reg,
		Started: started,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		h.Serve(ctx)
	}()

	get := func(path string) int {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+h.Addr().String()+path, nil)
		require.NoError(t, err)

		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.NoError(t, res.Body.Close())

		return res.StatusCode
	}

	assert.Equal(t, http.StatusInternalServerError, get("/debug/started"))

	close(started)

	assert.Equal(t, http.StatusOK, get("/debug/started"))
	assert.Equal(t, http.StatusOK, get("/debug/livez"))
	assert.Equal(t, http.StatusOK, get("/debug/metrics"))
	assert.Equal(t, http.StatusOK, get("/debug/logs"))
	assert.Equal(t, http.StatusOK, get("/debug"))

	// the wait group makes sure that all logs were written before the test finished
	cancel()
	wg.Wait()
}

func TestSum(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()

	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polydoc_rpc_calls_total",
	}, []string{"name"})
	reg.MustRegister(c)

	c.WithLabelValues("a").Add(2)
	c.WithLabelValues("b").Add(3)

	m, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, float64(5), sum(m, "polydoc_rpc_calls_total"))
	assert.Zero(t, sum(m, "polydoc_async_running"))
}
