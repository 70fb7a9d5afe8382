package snapshotstore

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var snapshotBucket = []byte("snapshots")

// BoltStore is an alternate Store backed by a single bbolt file — useful
// when many small session snapshots would otherwise mean many small
// files on disk. Every session's bytes live as one key in one bucket of
// one file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if needed) a bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: open bbolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshotstore: create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (bs *BoltStore) Put(ctx context.Context, sessionID string, data []byte) error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(snapshotBucket)
		cp := make([]byte, len(data))
		copy(cp, data)
		return b.Put([]byte(sessionID), cp)
	})
}

func (bs *BoltStore) Get(ctx context.Context, sessionID string) ([]byte, bool, error) {
	var data []byte
	err := bs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(snapshotBucket)
		v := b.Get([]byte(sessionID))
		if v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, data != nil, nil
}

func (bs *BoltStore) Close() error { return bs.db.Close() }
