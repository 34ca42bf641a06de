package tokenstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSession = []byte("session")

// BoltStore keeps the slot in a local bbolt file.
type BoltStore struct {
	db    *bolt.DB
	codec Codec
}

// NewBoltStore opens (creating if needed) the bbolt file at path.
func NewBoltStore(path string, codec Codec) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("token store dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSession); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketSession, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db, codec: codec}, nil
}

func (s *BoltStore) Load(_ context.Context) (Pair, bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSession).Get([]byte(SlotName))
		if v != nil {
			// v is only valid for the life of the transaction.
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return Pair{}, false, err
	}
	if raw == nil {
		return Pair{}, false, nil
	}

	p, err := s.codec.decode(raw)
	if err != nil {
		return Pair{}, false, err
	}
	return p, true, nil
}

func (s *BoltStore) Save(_ context.Context, p Pair) error {
	b, err := s.codec.encode(p)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Put([]byte(SlotName), b)
	})
}

func (s *BoltStore) Delete(_ context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Delete([]byte(SlotName))
	})
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
