// Package sqlite3 persists snapshots in a local SQLite database.
package sqlite3

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/iamgraph/iamgraph"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	uuid TEXT NOT NULL,
	name TEXT NOT NULL UNIQUE,
	data TEXT NOT NULL
);
`

type SQLite3Store struct {
	pool *sqlitex.Pool
}

func NewSQLite3Store(path string) (*SQLite3Store, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{})
	if err != nil {
		return nil, err
	}
	s := &SQLite3Store{pool}
	if err := s.migrate(); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite3Store) migrate() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)
	return sqlitex.ExecuteScript(conn, schema, nil)
}

func (s *SQLite3Store) Close() error {
	return s.pool.Close()
}

func (s *SQLite3Store) Put(ctx context.Context, name string, snap *iamgraph.Snapshot) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.UUID{}, err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("encoding snapshot %q: %w", name, err)
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return uuid.UUID{}, err
	}
	defer s.pool.Put(conn)
	err = sqlitex.Execute(conn,
		"INSERT INTO snapshots (uuid, name, data) VALUES (?, ?, ?) ON CONFLICT(name) DO UPDATE SET uuid=excluded.uuid, data=excluded.data",
		&sqlitex.ExecOptions{Args: []any{id.String(), name, string(data)}})
	return id, err
}

func (s *SQLite3Store) Get(ctx context.Context, name string) (*iamgraph.Snapshot, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	var data string
	err = sqlitex.Execute(conn, "SELECT data FROM snapshots WHERE name=?", &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			data = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if data == "" {
		return nil, iamgraph.ErrNotFound
	}
	snap := &iamgraph.Snapshot{}
	if err := json.Unmarshal([]byte(data), snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %q: %w", name, err)
	}
	return snap, nil
}

func (s *SQLite3Store) List(ctx context.Context) ([]iamgraph.SnapshotInfo, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	infos := []iamgraph.SnapshotInfo{}
	err = sqlitex.Execute(conn, "SELECT uuid, name FROM snapshots ORDER BY name", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id, err := uuid.FromString(stmt.ColumnText(0))
			if err != nil {
				return err
			}
			infos = append(infos, iamgraph.SnapshotInfo{ID: id, Name: stmt.ColumnText(1)})
			return nil
		},
	})
	return infos, err
}

func (s *SQLite3Store) Delete(ctx context.Context, name string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)
	err = sqlitex.Execute(conn, "DELETE FROM snapshots WHERE name=?", &sqlitex.ExecOptions{Args: []any{name}})
	if err != nil {
		return err
	}
	if conn.Changes() == 0 {
		return iamgraph.ErrNotFound
	}
	return nil
}
