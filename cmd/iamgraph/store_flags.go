package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iamgraph/iamgraph"
	pebblestore "github.com/iamgraph/iamgraph/store/pebble"
	postgresstore "github.com/iamgraph/iamgraph/store/postgres"
	sqlitestore "github.com/iamgraph/iamgraph/store/sqlite3"
)

// storeFlags selects where snapshots are cached between invocations.
type storeFlags struct {
	backend     string
	dir         string
	databaseURL string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.backend, "store", "pebble", "snapshot store backend (pebble, sqlite3, postgres)")
	flags.StringVar(&f.dir, "store-dir", ".iamgraph", "directory or file for embedded stores")
	flags.StringVar(&f.databaseURL, "database-url", "", "postgres connection string")
}

func (f *storeFlags) open() (iamgraph.SnapshotStore, error) {
	switch f.backend {
	case "pebble":
		return pebblestore.NewPebbleStore(f.dir)
	case "sqlite3":
		return sqlitestore.NewSQLite3Store(f.dir)
	case "postgres":
		if f.databaseURL == "" {
			return nil, fmt.Errorf("--database-url is required for the postgres store")
		}
		if err := postgresstore.RunMigrations(f.databaseURL); err != nil {
			return nil, err
		}
		return postgresstore.NewPostgresStore(f.databaseURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", f.backend)
	}
}

// graphFlags resolves the snapshot a query runs against: either a JSON file
// via --snapshot, or a named snapshot from the configured store.
type graphFlags struct {
	storeFlags
	snapshotPath string
	name         string
}

func (f *graphFlags) register(cmd *cobra.Command) {
	f.storeFlags.register(cmd)
	flags := cmd.Flags()
	flags.StringVar(&f.snapshotPath, "snapshot", "", "path to a snapshot JSON file")
	flags.StringVar(&f.name, "name", "", "name of a stored snapshot")
}

func (f *graphFlags) buildGraph(ctx context.Context) (*iamgraph.Graph, error) {
	var (
		snap *iamgraph.Snapshot
		err  error
	)
	switch {
	case f.snapshotPath != "":
		snap, err = iamgraph.LoadSnapshotFile(f.snapshotPath)
	case f.name != "":
		var store iamgraph.SnapshotStore
		store, err = f.open()
		if err != nil {
			return nil, err
		}
		defer store.Close()
		snap, err = store.Get(ctx, f.name)
	default:
		return nil, fmt.Errorf("either --snapshot or --name is required")
	}
	if err != nil {
		return nil, err
	}
	return iamgraph.Build(snap)
}
