// Package badgerstore backs the ObjectStore with a local BadgerDB, the
// single-node deployment mode.
package badgerstore

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/pkg/exception"
)

type Config struct {
	// Path is the database directory, ignored when InMemory is set.
	Path     string
	InMemory bool
}

type Store struct {
	db *badger.DB
}

func New(cfg Config) (*Store, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "badger store needs a path")
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}

	return &Store{db: db}, nil
}

func (s *Store) Put(_ context.Context, key string, data []byte) error {
	if key == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "empty key")
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return errors.Wrapf(err, "put %s", key)
	}

	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		out, err = item.ValueCopy(nil)

		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Wrapf(exception.ErrObjectMissing, "get %s", key)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}

	return out, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))

		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}

	if err != nil {
		return false, errors.Wrapf(err, "exists %s", key)
	}

	return true, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", prefix)
	}

	return keys, nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return errors.Wrapf(err, "remove %s", key)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
