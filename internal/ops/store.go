package ops

import (
	"context"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/store"
	"github.com/betedge/edgelake/internal/store/badgerstore"
	"github.com/betedge/edgelake/internal/store/memory"
	"github.com/betedge/edgelake/internal/store/miniostore"
	"github.com/betedge/edgelake/pkg/exception"
)

// OpenStore opens the configured object store backend. The caller owns the
// returned store and closes it on shutdown.
func OpenStore(ctx context.Context, cfg StoreConfig) (store.ObjectStore, error) {
	switch cfg.Backend {
	case BackendMinio:
		return miniostore.New(ctx, miniostore.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
	case BackendBadger:
		return badgerstore.New(badgerstore.Config{Path: cfg.Badger.Dir})
	case BackendMemory:
		return memory.New(), nil
	default:
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "store backend %q", cfg.Backend)
	}
}
