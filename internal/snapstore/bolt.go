package snapstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketSnapshots = []byte("snapshots")

type boltConfig struct {
	Path string `json:"path"`
}

type boltStore struct {
	db *bbolt.DB
}

func init() {
	Register("bolt", createBoltStore)
}

func createBoltStore(args interface{}) (Store, error) {
	config := &boltConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Path == "" {
		return nil, fmt.Errorf("bolt store path is required")
	}
	return NewBolt(config.Path)
}

func NewBolt(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Type() string {
	return "bolt"
}

func (s *boltStore) Load(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(key))
		if data == nil {
			return notFound(key)
		}
		// bolt values are only valid inside the transaction
		out = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *boltStore) Save(ctx context.Context, key string, data []byte) error {
	_ = ctx
	if key == "" {
		return fmt.Errorf("snapshot key is required")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(key), data)
	})
}

func (s *boltStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte(key))
	})
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
