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
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/FerretDB/polydoc/polydoc"
)

// newEngine returns a client-only HTTP engine.
func newEngine(l *zap.Logger) (*polydoc.Engine, error) {
	return polydoc.NewHTTPEngine(&polydoc.HTTPEngineOpts{Logger: l})
}

// admin runs the given "admin" subcommand.
func admin(ctx context.Context, cmd string, w io.Writer, l *zap.Logger) error {
	e, err := newEngine(l)
	if err != nil {
		return err
	}

	defer e.Finalize()

	f := cli.Admin.RemoteFlags

	a, err := polydoc.NewAdmin(e, f.Backend, polydoc.WithLogger(l))
	if err != nil {
		return err
	}

	token := polydoc.WithToken(cli.Admin.Token)

	switch cmd {
	case "create <name>":
		c := cli.Admin.Create

		config, err := readJSON(c.Config)
		if err != nil {
			return err
		}

		return a.CreateDatabase(ctx, f.Address, f.ProviderID, c.Name, config, polydoc.WithType(c.Type), token)

	case "attach <name>":
		c := cli.Admin.Attach

		config, err := readJSON(c.Config)
		if err != nil {
			return err
		}

		return a.AttachDatabase(ctx, f.Address, f.ProviderID, c.Name, config, polydoc.WithType(c.Type), token)

	case "detach <name>":
		return a.DetachDatabase(ctx, f.Address, f.ProviderID, cli.Admin.Detach.Name, token)

	case "destroy <name>":
		return a.DestroyDatabase(ctx, f.Address, f.ProviderID, cli.Admin.Destroy.Name, token)

	case "list":
		dbs, err := a.ListDatabases(ctx, f.Address, f.ProviderID)
		if err != nil {
			return err
		}

		for _, db := range dbs {
			fmt.Fprintf(w, "%s\t%s\n", db.Name, db.Type)
		}

		return nil

	case "shutdown":
		return a.ShutdownServer(ctx, f.Address)

	default:
		return fmt.Errorf("unknown command: admin %s", cmd)
	}
}

// doc runs the given "doc" subcommand.
func doc(ctx context.Context, cmd string, w io.Writer, l *zap.Logger) error {
	e, err := newEngine(l)
	if err != nil {
		return err
	}

	defer e.Finalize()

	f := cli.Doc.RemoteFlags

	c, err := polydoc.NewClient(e, f.Backend, polydoc.WithLogger(l))
	if err != nil {
		return err
	}

	db, err := c.Open(ctx, f.Address, f.ProviderID, cli.Doc.Database, true)
	if err != nil {
		return err
	}

	coll, err := openCollection(ctx, db, cli.Doc.Collection)
	if err != nil {
		return err
	}

	var opts []polydoc.Option
	if cli.Doc.Commit {
		opts = append(opts, polydoc.WithCommit())
	}

	switch cmd {
	case "store <document>":
		id, err := coll.Store(ctx, cli.Doc.Store.Document, opts...)
		if err != nil {
			return err
		}

		fmt.Fprintln(w, id)

		return nil

	case "fetch <id>":
		d, err := coll.Fetch(ctx, cli.Doc.Fetch.ID)
		if err != nil {
			return err
		}

		fmt.Fprintln(w, d.String())

		return nil

	case "all":
		records, err := coll.All(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(w)

		for _, r := range records {
			if err = enc.Encode(map[string]any{"id": r.ID, "doc": r.Document}); err != nil {
				return err
			}
		}

		return nil

	case "size":
		n, err := coll.Size(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintln(w, n)

		return nil

	default:
		return fmt.Errorf("unknown command: doc %s", cmd)
	}
}

// openCollection opens the collection, creating it if needed.
func openCollection(ctx context.Context, db polydoc.Database, name string) (polydoc.Collection, error) {
	exists, err := db.CollectionExists(ctx, name)
	if err != nil {
		return polydoc.Collection{}, err
	}

	if exists {
		return db.OpenCollection(ctx, name, false)
	}

	return db.CreateCollection(ctx, name)
}
