// Package postgres persists snapshots in PostgreSQL, for deployments where
// several operators share one snapshot cache.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxuuid "github.com/jackc/pgx-gofrs-uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/iamgraph/iamgraph"
)

//go:embed migrations/*.sql
var fs embed.FS

func RunMigrations(databaseURL string) error {
	driver, err := iofs.New(fs, "migrations")
	if err != nil {
		return err
	}
	migrations, err := migrate.NewWithSourceInstance("iofs", driver, databaseURL)
	if err != nil {
		return err
	}
	err = migrations.Up()
	if err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

type PostgresOption interface {
	do(*postgresConfig)
}

type postgresConfig struct {
	maxConns int32
}

type postgresOptionAdapter func(*postgresConfig)

func (fn postgresOptionAdapter) do(c *postgresConfig) {
	fn(c)
}

// MaxConns caps the connection pool size.
func MaxConns(n int32) PostgresOption {
	return postgresOptionAdapter(func(c *postgresConfig) { c.maxConns = n })
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(databaseURL string, options ...PostgresOption) (*PostgresStore, error) {
	opts := postgresConfig{}
	lo.ForEach(options, func(o PostgresOption, _ int) { o.do(&opts) })
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	if opts.maxConns > 0 {
		config.MaxConns = opts.maxConns
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxuuid.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, name string, snap *iamgraph.Snapshot) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.UUID{}, err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("encoding snapshot %q: %w", name, err)
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO snapshots (uuid, name, data) VALUES ($1, $2, $3) ON CONFLICT (name) DO UPDATE SET uuid=excluded.uuid, data=excluded.data",
		id, name, data)
	return id, err
}

func (s *PostgresStore) Get(ctx context.Context, name string) (*iamgraph.Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, "SELECT data FROM snapshots WHERE name=$1", name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, iamgraph.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	snap := &iamgraph.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %q: %w", name, err)
	}
	return snap, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]iamgraph.SnapshotInfo, error) {
	rows, err := s.pool.Query(ctx, "SELECT uuid, name FROM snapshots ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	infos := []iamgraph.SnapshotInfo{}
	for rows.Next() {
		info := iamgraph.SnapshotInfo{}
		if err := rows.Scan(&info.ID, &info.Name); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM snapshots WHERE name=$1", name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return iamgraph.ErrNotFound
	}
	return nil
}
