// Package bolt implementa el driver "bolt": un archivo BoltDB embebido vía
// raft-boltdb. Sólo ofrece Get/Set; la unicidad por índice es best-effort.
package bolt

import (
	"context"
	"errors"

	"github.com/dropDatabas3/keygate/internal/storage"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

func init() {
	storage.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "bolt" }

func (driver) Open(_ context.Context, cfg storage.Config) (storage.Store, error) {
	if cfg.BoltPath == "" {
		return nil, errors.New("bolt: path required")
	}
	return Open(cfg.BoltPath)
}

// Store usa el bucket "stable" de raft-boltdb como key/value plano.
type Store struct {
	db *raftboltdb.BoltStore
}

// Open abre (o crea) el archivo en path.
func Open(path string) (*Store, error) {
	db, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := s.db.Get([]byte(key))
	if errors.Is(err, raftboltdb.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Set([]byte(key), value)
}

func (s *Store) Close() error {
	return s.db.Close()
}
