// Package pebble persists snapshots in an embedded pebble key-value store,
// suitable for single-host CLI use without an external database.
package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/gofrs/uuid/v5"

	"github.com/iamgraph/iamgraph"
)

const snapshotPrefix = "snapshot/"

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dirname string) (*PebbleStore, error) {
	db, err := pebble.Open(dirname, &pebble.Options{})
	return &PebbleStore{db}, err
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// envelope is the stored value: the revision id alongside the snapshot.
type envelope struct {
	ID       uuid.UUID          `json:"id"`
	Snapshot *iamgraph.Snapshot `json:"snapshot"`
}

func (s *PebbleStore) Put(ctx context.Context, name string, snap *iamgraph.Snapshot) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.UUID{}, err
	}
	value, err := json.Marshal(envelope{ID: id, Snapshot: snap})
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("encoding snapshot %q: %w", name, err)
	}
	return id, s.db.Set(toKey(name), value, pebble.Sync)
}

func (s *PebbleStore) Get(ctx context.Context, name string) (*iamgraph.Snapshot, error) {
	value, closer, err := s.db.Get(toKey(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, iamgraph.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	defer closer.Close()
	env := envelope{}
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, fmt.Errorf("decoding snapshot %q: %w", name, err)
	}
	return env.Snapshot, nil
}

func (s *PebbleStore) List(ctx context.Context) ([]iamgraph.SnapshotInfo, error) {
	prefix := []byte(snapshotPrefix)
	iter, err := s.db.NewIter(prefixIterOptions(prefix))
	if err != nil {
		return nil, err
	}
	infos := []iamgraph.SnapshotInfo{}
	for iter.First(); iter.Valid(); iter.Next() {
		env := envelope{}
		if err := json.Unmarshal(iter.Value(), &env); err != nil {
			iter.Close()
			return nil, err
		}
		infos = append(infos, iamgraph.SnapshotInfo{
			ID:   env.ID,
			Name: string(iter.Key())[len(snapshotPrefix):],
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return infos, nil
}

func (s *PebbleStore) Delete(ctx context.Context, name string) error {
	key := toKey(name)
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return iamgraph.ErrNotFound
	} else if err != nil {
		return err
	}
	closer.Close()
	return s.db.Delete(key, pebble.Sync)
}

func toKey(name string) []byte {
	return []byte(snapshotPrefix + name)
}

func keyUpperBound(b []byte) []byte {
	end := make([]byte, len(b))
	copy(end, b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i] = end[i] + 1
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // no upper-bound
}

func prefixIterOptions(prefix []byte) *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	}
}
