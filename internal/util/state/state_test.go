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

package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AlekSi/pointer"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider(t *testing.T) {
	t.Parallel()

	filename := filepath.Join(t.TempDir(), "state", "state.json")

	p, err := NewProvider(filename)
	require.NoError(t, err)

	s := p.Get()
	assert.NotEmpty(t, s.UUID)
	assert.Nil(t, s.CleanShutdown)

	err = p.Update(func(s *State) {
		s.Starts++
		s.CleanShutdown = pointer.ToBool(false)
	})
	require.NoError(t, err)

	b, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.JSONEq(t, `{"uuid":"`+s.UUID+`","starts":1,"clean_shutdown":false}`, string(b))

	p2, err := NewProvider(filename)
	require.NoError(t, err)

	s2 := p2.Get()
	assert.Equal(t, s.UUID, s2.UUID, "UUID must be stable")
	assert.Equal(t, int64(1), s2.Starts)
	assert.False(t, pointer.GetBool(s2.CleanShutdown))

	assert.Equal(t, 2, promtestutil.CollectAndCount(p2.MetricsCollector(true)))
}

func TestProviderInvalid(t *testing.T) {
	t.Parallel()

	filename := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"uuid":"invalid","starts":-5}`), 0o666))

	p, err := NewProvider(filename)
	require.NoError(t, err)

	s := p.Get()
	assert.NotEqual(t, "invalid", s.UUID)
	assert.Zero(t, s.Starts)
}

func TestProviderMemory(t *testing.T) {
	t.Parallel()

	p, err := NewProvider("")
	require.NoError(t, err)

	s := p.Get()
	s.Starts = 42
	assert.Zero(t, p.Get().Starts, "Get must return a copy")
}
