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

//go:build !polydoc_no_kv

package registry

import (
	"context"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/backends/kvdoc"
)

// init registers "kv" backend.
func init() {
	registry[kvdoc.Name] = &backend{
		newAdmin: func(opts *NewOpts) backends.Admin {
			return kvdoc.NewAdmin(&kvdoc.NewClientParams{
				Engine: opts.Engine,
				L:      logger(opts.Logger, kvdoc.Name),
			})
		},
		newClient: func(opts *NewOpts) backends.Client {
			return kvdoc.NewClient(&kvdoc.NewClientParams{
				Engine: opts.Engine,
				L:      logger(opts.Logger, kvdoc.Name),
			})
		},
		newProvider: func(ctx context.Context, opts *NewProviderOpts) (backends.Provider, error) {
			return kvdoc.NewProvider(ctx, &kvdoc.NewProviderParams{
				Engine:     opts.Engine,
				Pool:       opts.Pool,
				ProviderID: opts.ProviderID,
				Config:     opts.Config,
				L:          logger(opts.Logger, kvdoc.Name),
			})
		},
	}
}
