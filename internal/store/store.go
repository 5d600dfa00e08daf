// Package store defines the object store the pipeline commits partitions
// through. Backends: memory (tests), badger (single node), minio
// (production).
package store

import "context"

// ObjectStore is a flat keyed byte store. Get returns
// exception.ErrObjectMissing for absent keys; List returns the keys under a
// prefix in ascending order.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Remove(ctx context.Context, key string) error
	Close() error
}
