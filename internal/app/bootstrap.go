// Package app bootstraps the engine: it opens the stores, wires the
// dispatcher and its executors, seeds a fresh registry, and runs the MCP
// server until the context is cancelled.
//
// Startup order matters: the metadata database is fatal when unreachable,
// the data database is not. A failed data connection puts the engine into
// offline mode; SQL tools return DataBackendUnavailable until reconnect_db
// succeeds.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"chimera/internal/artifact"
	"chimera/internal/audit"
	"chimera/internal/config"
	"chimera/internal/dashboard"
	"chimera/internal/database"
	"chimera/internal/dispatch"
	"chimera/internal/executor"
	"chimera/internal/metatools"
	"chimera/internal/registry"
	"chimera/internal/seed"
	"chimera/internal/server"
	"chimera/internal/specfile"
	"chimera/internal/sqltmpl"
	"chimera/pkg/logging"
)

const subsystem = "App"

// Application holds everything a running engine needs.
type Application struct {
	cfg config.Config

	metaDB *database.DB
	data   *database.DataSession
	engine *dispatch.Dispatcher
	loader *specfile.Loader
	srv    *server.Server
}

// New bootstraps an application from validated configuration. On return the
// stores are open, the schema exists, and the dispatcher is fully wired;
// the server is not yet listening.
func New(ctx context.Context, cfg config.Config) (*Application, error) {
	metaDB, err := database.Open(ctx, cfg.MetadataURL)
	if err != nil {
		return nil, fmt.Errorf("metadata database is required: %w", err)
	}
	logging.Info(subsystem, "Metadata database open (%s)", metaDB.Dialect)

	names, err := database.NewNames(cfg.SchemaPrefix, cfg.TableNameOverrides)
	if err != nil {
		metaDB.Close()
		return nil, err
	}

	reg := registry.NewStore(metaDB, names)
	if err := reg.CreateTables(ctx); err != nil {
		metaDB.Close()
		return nil, err
	}
	artifacts := artifact.NewStore(metaDB, names)
	auditLog := audit.NewLogger(metaDB, names)
	notebook := audit.NewNotebook(metaDB, names)

	data, err := database.NewDataSession(ctx, cfg.DataURL)
	if err != nil {
		logging.Warn(subsystem, "Data database unavailable, starting in offline mode: %v", err)
	} else if data.Online() {
		logging.Info(subsystem, "Data database open")
	} else {
		logging.Info(subsystem, "No data database configured, SQL tools are offline")
	}

	renderer := sqltmpl.NewRenderer(reg)
	sqlExec := executor.NewSQL(renderer, data)
	scriptExec := executor.NewScript()

	engine := dispatch.New(reg, artifacts, auditLog, notebook, sqlExec, scriptExec, data)

	var dashboards *dashboard.Manager
	if cfg.DashboardEnabled {
		dashboards = dashboard.New(true, cfg.DashboardStorageDir, cfg.DashboardBaseURL)
		engine.SetDashboards(dashboards)
	}
	engine.SetBuiltins(metatools.NewProvider(engine, renderer, dashboards))

	if needed, err := seed.IsNeeded(ctx, reg); err != nil {
		logging.Warn(subsystem, "Cannot check for an empty registry, skipping seed: %v", err)
	} else if needed {
		if err := seed.Run(ctx, reg, artifacts); err != nil {
			logging.Warn(subsystem, "Seeding failed: %v", err)
		}
	}

	return &Application{
		cfg:    cfg,
		metaDB: metaDB,
		data:   data,
		engine: engine,
		loader: specfile.NewLoader(reg, artifacts),
		srv:    server.New(cfg, engine),
	}, nil
}

// Engine exposes the dispatcher for commands that bypass the server.
func (a *Application) Engine() *dispatch.Dispatcher { return a.engine }

// Loader exposes the spec loader for the load and export commands.
func (a *Application) Loader() *specfile.Loader { return a.loader }

// Run serves MCP until the context is cancelled, then shuts down.
func (a *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if err := a.srv.Start(gctx); err != nil {
		a.Close()
		return err
	}
	logging.Info(subsystem, "Engine ready on %s", a.srv.Endpoint())

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.srv.Stop(stopCtx)
	})

	err := g.Wait()
	a.Close()
	if err != nil && ctx.Err() != nil {
		// Cancellation is the normal way out.
		return nil
	}
	return err
}

// Close releases the database handles.
func (a *Application) Close() {
	if a.data != nil {
		a.data.Close()
	}
	if a.metaDB != nil {
		if err := a.metaDB.Close(); err != nil {
			logging.Warn(subsystem, "Closing metadata database: %v", err)
		}
	}
}
