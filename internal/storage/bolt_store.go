package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucket = []byte("kv")

const boltOpenTimeout = time.Second

// BoltStore persists records in a single bbolt bucket. bbolt allows one
// writer at a time, which gives PutIfAbsent its atomicity.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("bolt store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, unavailable("mkdir", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, unavailable("open", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, unavailable("init", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, unavailable("get", err)
	}
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		// Values are only valid for the life of the transaction.
		out = cloneBytes(tx.Bucket(boltBucket).Get([]byte(key)))
		return nil
	})
	if err != nil {
		return nil, false, unavailable("get", err)
	}
	return out, out != nil, nil
}

func (s *BoltStore) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return unavailable("put", err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), nonNil(value))
	})
	return unavailable("put", err)
}

func (s *BoltStore) PutIfAbsent(ctx context.Context, key string, value []byte) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, unavailable("put_if_absent", err)
	}
	var (
		stored  []byte
		created bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if existing := b.Get([]byte(key)); existing != nil {
			stored = cloneBytes(existing)
			return nil
		}
		if err := b.Put([]byte(key), nonNil(value)); err != nil {
			return err
		}
		stored, created = cloneBytes(nonNil(value)), true
		return nil
	})
	if err != nil {
		return nil, false, unavailable("put_if_absent", err)
	}
	return stored, created, nil
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return unavailable("delete", err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
	return unavailable("delete", err)
}

func (s *BoltStore) Close() error {
	return unavailable("close", s.db.Close())
}

// bbolt treats a nil value as absent on read; store empty values as a
// zero-length slice instead.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
