package iamgraph

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// SnapshotStore persists normalized snapshots between invocations so that
// repeated query sessions skip re-fetching and re-normalizing. Put replaces
// any snapshot already stored under the name and returns the new revision
// id. Get returns [ErrNotFound] when no snapshot exists under the name.
type SnapshotStore interface {
	Put(ctx context.Context, name string, snap *Snapshot) (uuid.UUID, error)
	Get(ctx context.Context, name string) (*Snapshot, error)
	List(ctx context.Context) ([]SnapshotInfo, error)
	Delete(ctx context.Context, name string) error

	Close() error
}
