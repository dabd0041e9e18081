package cmd

import (
	"context"
	"fmt"
	"os"

	"chimera/internal/artifact"
	"chimera/internal/config"
	"chimera/internal/database"
	"chimera/internal/registry"
	"chimera/pkg/logging"
)

// Flags shared by the catalog commands (load, export, seed).
var (
	catalogConfigPath  string
	catalogMetadataURL string
)

// openStores opens the metadata database for a catalog command and ensures
// the schema exists. The caller must invoke cleanup.
func openStores(ctx context.Context) (*registry.Store, *artifact.Store, func(), error) {
	logging.Init(logging.ParseLevel("warn"), os.Stderr)

	cfg, err := config.Load(catalogConfigPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if catalogMetadataURL != "" {
		cfg.MetadataURL = catalogMetadataURL
	}

	db, err := database.Open(ctx, cfg.MetadataURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening metadata database: %w", err)
	}
	names, err := database.NewNames(cfg.SchemaPrefix, cfg.TableNameOverrides)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	reg := registry.NewStore(db, names)
	if err := reg.CreateTables(ctx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	cleanup := func() { db.Close() }
	return reg, artifact.NewStore(db, names), cleanup, nil
}
