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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/polydoc/internal/util/testutil"
	"github.com/FerretDB/polydoc/polydoc"
)

func TestParseProviderFlag(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		s        string
		expected *providerFlag
		err      string
	}{
		"NoConfig": {
			s:        "kv:1",
			expected: &providerFlag{backend: "kv", id: 1, config: json.RawMessage(`{}`)},
		},
		"Config": {
			s: `sql:42:{"root":"/tmp/x","databases":{"a":{"config":{"path":"a"}}}}`,
			expected: &providerFlag{
				backend: "sql",
				id:      42,
				config:  json.RawMessage(`{"root":"/tmp/x","databases":{"a":{"config":{"path":"a"}}}}`),
			},
		},
		"NoID": {
			s:   "sql",
			err: `invalid provider "sql": expected 'backend:id[:config]'`,
		},
		"InvalidID": {
			s:   "sql:70000",
			err: `invalid provider "sql:70000": invalid id`,
		},
		"InvalidConfig": {
			s:   "sql:1:{",
			err: `invalid provider "sql:1:{": invalid JSON`,
		},
	} {
		name, tc := name, tc

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			actual, err := parseProviderFlag(tc.s)
			if tc.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestReadJSONFile(t *testing.T) {
	t.Parallel()

	f := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(f, []byte(`{"path":"db"}`), 0o666))

	b, err := readJSON("@" + f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"db"}`, string(b))

	_, err = readJSON("@" + f + ".missing")
	assert.Error(t, err)
}

// parse parses command-line arguments into cli and returns the command.
func parse(t *testing.T, args ...string) string {
	t.Helper()

	parser, err := kong.New(&cli, kongOptions...)
	require.NoError(t, err)

	kongCtx, err := parser.Parse(args)
	require.NoError(t, err)

	return kongCtx.Command()
}

// Tests below change global cli and should not be run in parallel.

func TestCommands(t *testing.T) {
	for args, expected := range map[string]string{
		"serve --provider=kv:1":                                "serve",
		"admin create --address=http://127.0.0.1:1 db":         "admin create <name>",
		"admin list --address=http://127.0.0.1:1 --backend=kv": "admin list",
		"doc fetch --address=x --database=db --collection=c 1": "doc fetch <id>",
		"doc all --address=x --database=db --collection=c":     "doc all",
		"version":                                              "version",
	} {
		assert.Equal(t, expected, parse(t, strings.Fields(args)...), args)
	}

	parse(t, "admin", "list", "--address=x", "--provider-id=7", "--backend=kv")
	assert.Equal(t, "x", cli.Admin.Address)
	assert.Equal(t, uint16(7), cli.Admin.ProviderID)
	assert.Equal(t, "kv", cli.Admin.Backend)
}

func TestAdminAndDoc(t *testing.T) {
	ctx := testutil.Ctx(t)
	l := testutil.Logger(t)

	e, err := polydoc.NewHTTPEngine(&polydoc.HTTPEngineOpts{ListenAddr: "127.0.0.1:0", Logger: l})
	require.NoError(t, err)
	t.Cleanup(e.Finalize)

	p, err := polydoc.NewProvider(ctx, e, "kv", 3, map[string]string{"root": t.TempDir()}, nil, polydoc.WithLogger(l))
	require.NoError(t, err)
	t.Cleanup(p.Close)

	remote := []string{"--address=" + e.Address(), "--provider-id=3", "--backend=kv"}

	var out bytes.Buffer

	cmd := parse(t, append([]string{"admin", "create", "db", `--config={"path":"db"}`}, remote...)...)
	require.NoError(t, admin(ctx, strings.TrimPrefix(cmd, "admin "), &out, l))

	cmd = parse(t, append([]string{"admin", "list"}, remote...)...)
	require.NoError(t, admin(ctx, strings.TrimPrefix(cmd, "admin "), &out, l))
	assert.Equal(t, "db\tbolt\n", out.String())

	docArgs := append([]string{"--database=db", "--collection=people"}, remote...)

	for i, name := range []string{"Matthieu", "Rob"} {
		out.Reset()

		cmd = parse(t, append([]string{"doc", "store", fmt.Sprintf(`{"name":%q}`, name)}, docArgs...)...)
		require.NoError(t, doc(ctx, strings.TrimPrefix(cmd, "doc "), &out, l))
		assert.Equal(t, fmt.Sprintln(i), out.String())
	}

	out.Reset()

	cmd = parse(t, append([]string{"doc", "fetch", "1"}, docArgs...)...)
	require.NoError(t, doc(ctx, strings.TrimPrefix(cmd, "doc "), &out, l))
	assert.JSONEq(t, `{"name":"Rob"}`, out.String())

	out.Reset()

	cmd = parse(t, append([]string{"doc", "all"}, docArgs...)...)
	require.NoError(t, doc(ctx, strings.TrimPrefix(cmd, "doc "), &out, l))
	assert.Equal(t, `{"doc":{"name":"Matthieu"},"id":0}`+"\n"+`{"doc":{"name":"Rob"},"id":1}`+"\n", out.String())

	out.Reset()

	cmd = parse(t, append([]string{"doc", "size"}, docArgs...)...)
	require.NoError(t, doc(ctx, strings.TrimPrefix(cmd, "doc "), &out, l))
	assert.Equal(t, "2\n", out.String())

	cmd = parse(t, append([]string{"admin", "destroy", "db"}, remote...)...)
	require.NoError(t, admin(ctx, strings.TrimPrefix(cmd, "admin "), &out, l))

	cmd = parse(t, append([]string{"doc", "size"}, docArgs...)...)
	assert.Error(t, doc(ctx, strings.TrimPrefix(cmd, "doc "), &out, l))
}
