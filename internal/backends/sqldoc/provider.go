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

package sqldoc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/polydoc/internal/backends"
	"github.com/FerretDB/polydoc/internal/backends/remote"
	"github.com/FerretDB/polydoc/internal/rpc"
	"github.com/FerretDB/polydoc/internal/util/async"
	"github.com/FerretDB/polydoc/internal/util/lazyerrors"
)

// provider implements backends.Provider interface.
//
//nolint:vet // for readability
type provider struct {
	srv  *remote.Server
	root string
	l    *zap.Logger

	rw     sync.RWMutex
	dbs    map[string]*attachedDB
	closed bool
}

// attachedDB represents a single attached database.
type attachedDB struct {
	typ    string
	config json.RawMessage
	s      *storage
}

// NewProviderParams represents the parameters of NewProvider function.
type NewProviderParams struct {
	Engine     rpc.Engine
	Pool       *async.Pool
	ProviderID uint16
	Config     json.RawMessage
	L          *zap.Logger
}

// NewProvider creates a new provider, attaches configured databases, and registers RPC handlers.
//
// Configured databases that don't exist are created.
func NewProvider(ctx context.Context, params *NewProviderParams) (backends.Provider, error) {
	config, err := remote.ParseConfig(params.Config)
	if err != nil {
		return nil, err
	}

	p := &provider{
		srv: remote.NewServer(&remote.NewServerParams{
			Engine:     params.Engine,
			Pool:       params.Pool,
			ProviderID: params.ProviderID,
			Token:      config.Token,
			L:          params.L,
		}),
		root: config.Root,
		l:    params.L,
		dbs:  make(map[string]*attachedDB, len(config.Databases)),
	}

	for _, name := range config.DatabaseNames() {
		dc := config.Databases[name]

		err = p.open(ctx, name, dc.Type, dc.Config, false)
		if backends.ErrorCodeIs(err, backends.ErrorCodeDatabaseDoesNotExist) {
			p.l.Info("Creating configured database.", zap.String("name", name), zap.String("type", dc.Type))
			err = p.open(ctx, name, dc.Type, dc.Config, true)
		}

		if err != nil {
			p.Close()
			return nil, err
		}
	}

	if err = p.register(); err != nil {
		p.Close()
		return nil, lazyerrors.Error(err)
	}

	res := backends.ProviderContract(p)
	params.Engine.OnFinalize(res.Close)

	return res, nil
}

// register registers all RPC handlers.
func (p *provider) register() error {
	s := p.srv

	for _, err := range []error{
		remote.Handle(s, rpcCreateDatabase, p.handleCreateDatabase),
		remote.Handle(s, rpcAttachDatabase, p.handleAttachDatabase),
		remote.Handle(s, rpcDetachDatabase, p.handleDetachDatabase),
		remote.Handle(s, rpcDestroyDatabase, p.handleDestroyDatabase),
		remote.Handle(s, rpcListDatabases, p.handleListDatabases),
		remote.Handle(s, rpcDatabaseExists, p.handleDatabaseExists),

		remote.Handle(s, rpcCreateCollection, p.handleCreateCollection),
		remote.Handle(s, rpcCollectionExists, p.handleCollectionExists),
		remote.Handle(s, rpcDropCollection, p.handleDropCollection),
		remote.Handle(s, rpcExecute, p.handleExecute),
		remote.Handle(s, rpcCommit, p.handleCommit),

		remote.Handle(s, rpcStore, p.handleStore),
		remote.Handle(s, rpcFetch, p.handleFetch),
		remote.Handle(s, rpcFilter, p.handleFilter),
		remote.Handle(s, rpcUpdate, p.handleUpdate),
		remote.Handle(s, rpcAll, p.handleAll),
		remote.Handle(s, rpcSize, p.handleSize),
		remote.Handle(s, rpcLastRecordID, p.handleLastRecordID),
		remote.Handle(s, rpcErase, p.handleErase),
	} {
		if err != nil {
			return err
		}
	}

	return nil
}

// open opens storage and attaches the database.
//
//nolint:lll // for readability
func (p *provider) open(ctx context.Context, name, typ string, config json.RawMessage, create bool) error {
	d, err := lookupDialect(typ)
	if err != nil {
		return err
	}

	p.rw.Lock()
	defer p.rw.Unlock()

	if p.closed {
		return lazyerrors.New("provider is closed")
	}

	if _, ok := p.dbs[name]; ok {
		return backends.NewError(backends.ErrorCodeDatabaseAlreadyExists, fmt.Errorf("database %q already exists", name))
	}

	s, err := d.open(ctx, d, &openParams{
		Root:   p.root,
		Name:   name,
		Config: config,
		Create: create,
		L:      p.l.Named(d.typ),
	})
	if err != nil {
		return err
	}

	p.dbs[name] = &attachedDB{
		typ:    d.typ,
		config: config,
		s:      s,
	}

	p.l.Debug("Database attached.", zap.String("name", name), zap.String("type", d.typ), zap.Bool("created", create))

	return nil
}

// remove detaches the database and returns its storage.
func (p *provider) remove(name string) (*storage, error) {
	p.rw.Lock()
	defer p.rw.Unlock()

	db, ok := p.dbs[name]
	if !ok {
		return nil, backends.NewError(backends.ErrorCodeDatabaseDoesNotExist, fmt.Errorf("database %q does not exist", name))
	}

	delete(p.dbs, name)

	return db.s, nil
}

// storage returns storage of the attached database and a function that releases it.
//
// Detached storage is closed only after all acquired ones were released.
func (p *provider) storage(name string) (*storage, func(), error) {
	p.rw.RLock()
	db, ok := p.dbs[name]
	p.rw.RUnlock()

	if !ok {
		return nil, nil, backends.NewError(backends.ErrorCodeDatabaseDoesNotExist, fmt.Errorf("database %q does not exist", name))
	}

	release, err := db.s.acquire()
	if err != nil {
		return nil, nil, err
	}

	return db.s, release, nil
}

// Config implements backends.Provider interface.
func (p *provider) Config() string {
	p.rw.RLock()
	defer p.rw.RUnlock()

	c := remote.Config{
		Root:      p.root,
		Databases: make(map[string]remote.DatabaseConfig, len(p.dbs)),
	}

	for name, db := range p.dbs {
		c.Databases[name] = remote.DatabaseConfig{
			Type:   db.typ,
			Config: db.config,
		}
	}

	return c.String()
}

// SetSecurityToken implements backends.Provider interface.
func (p *provider) SetSecurityToken(ctx context.Context, token string) error {
	p.srv.SetToken(token)
	return nil
}

// Close implements backends.Provider interface.
func (p *provider) Close() {
	p.srv.Close()

	p.rw.Lock()
	defer p.rw.Unlock()

	if p.closed {
		return
	}

	for _, db := range p.dbs {
		db.s.close()
	}

	p.dbs = nil
	p.closed = true
}

// Capabilities implements backends.Provider interface.
func (p *provider) Capabilities() backends.Capabilities {
	return capabilities
}

// Valid implements backends.Provider interface.
func (p *provider) Valid() bool {
	p.rw.RLock()
	defer p.rw.RUnlock()

	return !p.closed
}

func (p *provider) handleCreateDatabase(ctx context.Context, req *remote.DatabaseRequest) (*remote.Empty, error) {
	if err := p.srv.CheckToken(req.Token); err != nil {
		return nil, err
	}

	if err := p.open(ctx, req.Name, req.Type, req.Config, true); err != nil {
		return nil, err
	}

	return new(remote.Empty), nil
}

func (p *provider) handleAttachDatabase(ctx context.Context, req *remote.DatabaseRequest) (*remote.Empty, error) {
	if err := p.srv.CheckToken(req.Token); err != nil {
		return nil, err
	}

	if err := p.open(ctx, req.Name, req.Type, req.Config, false); err != nil {
		return nil, err
	}

	return new(remote.Empty), nil
}

func (p *provider) handleDetachDatabase(ctx context.Context, req *remote.DatabaseRequest) (*remote.Empty, error) {
	if err := p.srv.CheckToken(req.Token); err != nil {
		return nil, err
	}

	s, err := p.remove(req.Name)
	if err != nil {
		return nil, err
	}

	s.close()

	return new(remote.Empty), nil
}

func (p *provider) handleDestroyDatabase(ctx context.Context, req *remote.DatabaseRequest) (*remote.Empty, error) {
	if err := p.srv.CheckToken(req.Token); err != nil {
		return nil, err
	}

	s, err := p.remove(req.Name)
	if err != nil {
		return nil, err
	}

	if err = s.drop(ctx); err != nil {
		return nil, err
	}

	return new(remote.Empty), nil
}

func (p *provider) handleListDatabases(ctx context.Context, req *remote.Empty) (*remote.ListDatabasesResponse, error) {
	p.rw.RLock()
	defer p.rw.RUnlock()

	names := maps.Keys(p.dbs)
	slices.Sort(names)

	res := &remote.ListDatabasesResponse{
		Databases: make([]backends.DatabaseInfo, len(names)),
	}

	for i, name := range names {
		res.Databases[i] = backends.DatabaseInfo{
			Name: name,
			Type: p.dbs[name].typ,
		}
	}

	return res, nil
}

func (p *provider) handleDatabaseExists(ctx context.Context, req *remote.DBRequest) (*remote.Empty, error) {
	_, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	release()

	return new(remote.Empty), nil
}

func (p *provider) handleCreateCollection(ctx context.Context, req *remote.CollectionRequest) (*remote.Empty, error) {
	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	if err = s.createCollection(ctx, req.Collection); err != nil {
		return nil, err
	}

	return new(remote.Empty), nil
}

func (p *provider) handleCollectionExists(ctx context.Context, req *remote.CollectionRequest) (*remote.ExistsResponse, error) {
	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	exists, err := s.collectionExists(ctx, req.Collection)
	if err != nil {
		return nil, err
	}

	return &remote.ExistsResponse{Exists: exists}, nil
}

func (p *provider) handleDropCollection(ctx context.Context, req *remote.CollectionRequest) (*remote.Empty, error) {
	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	if err = s.dropCollection(ctx, req.Collection); err != nil {
		return nil, err
	}

	return new(remote.Empty), nil
}

func (p *provider) handleExecute(ctx context.Context, req *remote.ExecuteRequest) (*remote.ExecuteResponse, error) {
	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	vars, err := s.execute(ctx, req.Code, req.Vars)
	if err != nil {
		return nil, err
	}

	if err = p.commit(ctx, s, req.Commit); err != nil {
		return nil, err
	}

	return &remote.ExecuteResponse{Vars: vars}, nil
}

func (p *provider) handleCommit(ctx context.Context, req *remote.DBRequest) (*remote.Empty, error) {
	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	if err = p.commit(ctx, s, true); err != nil {
		return nil, err
	}

	return new(remote.Empty), nil
}

// commit flushes storage if requested.
func (p *provider) commit(ctx context.Context, s *storage, commit bool) error {
	if !commit {
		return nil
	}

	return s.commit(ctx)
}

func (p *provider) handleStore(ctx context.Context, req *remote.StoreRequest) (*remote.IDsResponse, error) {
	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	ids, err := s.store(ctx, req.Collection, req.Documents)
	if err != nil {
		return nil, err
	}

	if err = p.commit(ctx, s, req.Commit); err != nil {
		return nil, err
	}

	return &remote.IDsResponse{IDs: ids}, nil
}

func (p *provider) handleFetch(ctx context.Context, req *remote.IDsRequest) (*remote.DocumentsResponse, error) {
	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	docs, err := s.fetch(ctx, req.Collection, req.IDs)
	if err != nil {
		return nil, err
	}

	return &remote.DocumentsResponse{Documents: docs}, nil
}

func (p *provider) handleFilter(ctx context.Context, req *remote.FilterRequest) (*remote.RecordsResponse, error) {
	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	records, err := s.records(ctx, req.Collection, req.Code)
	if err != nil {
		return nil, err
	}

	return &remote.RecordsResponse{Records: records}, nil
}

func (p *provider) handleUpdate(ctx context.Context, req *remote.UpdateRequest) (*remote.UpdateResponse, error) {
	if len(req.IDs) != len(req.Documents) {
		err := fmt.Errorf("got %d ids and %d documents", len(req.IDs), len(req.Documents))
		return nil, backends.NewError(backends.ErrorCodeBatchIsInvalid, err)
	}

	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	updated, err := s.update(ctx, req.Collection, req.IDs, req.Documents, req.Strict)
	if err != nil {
		return nil, err
	}

	if err = p.commit(ctx, s, req.Commit); err != nil {
		return nil, err
	}

	return &remote.UpdateResponse{Updated: updated}, nil
}

func (p *provider) handleAll(ctx context.Context, req *remote.CollectionRequest) (*remote.RecordsResponse, error) {
	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	records, err := s.records(ctx, req.Collection, "")
	if err != nil {
		return nil, err
	}

	return &remote.RecordsResponse{Records: records}, nil
}

func (p *provider) handleSize(ctx context.Context, req *remote.CollectionRequest) (*remote.CountResponse, error) {
	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	n, err := s.size(ctx, req.Collection)
	if err != nil {
		return nil, err
	}

	return &remote.CountResponse{N: n}, nil
}

func (p *provider) handleLastRecordID(ctx context.Context, req *remote.CollectionRequest) (*remote.CountResponse, error) {
	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	id, err := s.lastRecordID(ctx, req.Collection)
	if err != nil {
		return nil, err
	}

	return &remote.CountResponse{N: id}, nil
}

func (p *provider) handleErase(ctx context.Context, req *remote.IDsRequest) (*remote.Empty, error) {
	s, release, err := p.storage(req.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	if err = s.erase(ctx, req.Collection, req.IDs); err != nil {
		return nil, err
	}

	if err = p.commit(ctx, s, req.Commit); err != nil {
		return nil, err
	}

	return new(remote.Empty), nil
}

// check interfaces
var (
	_ backends.Provider = (*provider)(nil)
)
