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

//go:build !polydoc_no_sql

package registry

import (
	"context"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/backends/sqldoc"
)

// init registers "sql" backend.
func init() {
	registry[sqldoc.Name] = &backend{
		newAdmin: func(opts *NewOpts) backends.Admin {
			return sqldoc.NewAdmin(&sqldoc.NewClientParams{
				Engine: opts.Engine,
				L:      logger(opts.Logger, sqldoc.Name),
			})
		},
		newClient: func(opts *NewOpts) backends.Client {
			return sqldoc.NewClient(&sqldoc.NewClientParams{
				Engine: opts.Engine,
				L:      logger(opts.Logger, sqldoc.Name),
			})
		},
		newProvider: func(ctx context.Context, opts *NewProviderOpts) (backends.Provider, error) {
			return sqldoc.NewProvider(ctx, &sqldoc.NewProviderParams{
				Engine:     opts.Engine,
				Pool:       opts.Pool,
				ProviderID: opts.ProviderID,
				Config:     opts.Config,
				L:          logger(opts.Logger, sqldoc.Name),
			})
		},
	}
}
