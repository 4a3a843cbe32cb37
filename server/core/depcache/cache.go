// Package depcache stores dependency directories keyed by lockfile hash
// so repeat runs skip cold installs.
package depcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/metrics"
	"github.com/greenlightci/greenlight/server/stow"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
)

// Key builds a cache key from a scope and the lockfile contents backing
// the dependency directory. Same lockfile, same key.
func Key(scope string, lockfile []byte) string {
	sum := sha256.Sum256(lockfile)
	return fmt.Sprintf("%s-%s", scope, hex.EncodeToString(sum[:]))
}

type store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, stow.CloserFn, error)
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}

type Cache struct {
	store store
	scope tally.Scope
	log   logging.Logger
}

func NewCache(client *stow.Client, scope tally.Scope, log logging.Logger) *Cache {
	return &Cache{
		store: client,
		scope: scope,
		log:   log,
	}
}

// Restore unpacks the cached archive for key into dest. A miss is not an
// error, it just reports false.
func (c *Cache) Restore(ctx context.Context, key string, dest string) (bool, error) {
	reader, closer, err := c.store.Get(ctx, key)
	if err != nil {
		var itemNotFound *stow.ItemNotFoundError
		var containerNotFound *stow.ContainerNotFoundError
		if errors.As(err, &itemNotFound) || errors.As(err, &containerNotFound) {
			c.scope.Counter(metrics.DepCacheMissMetric).Inc(1)
			return false, nil
		}
		return false, errors.Wrapf(err, "fetching cache entry %s", key)
	}
	defer closer()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return false, errors.Wrap(err, "creating cache destination")
	}
	if err := unpack(reader, dest); err != nil {
		return false, errors.Wrapf(err, "restoring cache entry %s", key)
	}

	c.scope.Counter(metrics.DepCacheHitMetric).Inc(1)
	return true, nil
}

// Save archives dir under key. The archive is staged in a temp file so we
// can hand the backend a sized stream.
func (c *Cache) Save(ctx context.Context, key string, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errors.Errorf("cache directory %s does not exist", dir)
	}

	tmp, err := os.CreateTemp("", "greenlight-depcache-*.tar.gz")
	if err != nil {
		return errors.Wrap(err, "creating staging file")
	}
	defer func() {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
	}()

	if err := pack(dir, tmp); err != nil {
		return errors.Wrapf(err, "archiving %s", dir)
	}

	size, err := tmp.Seek(0, io.SeekEnd)
	if err != nil {
		return errors.Wrap(err, "sizing staging file")
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewinding staging file")
	}

	if err := c.store.Put(ctx, key, tmp, size); err != nil {
		return errors.Wrapf(err, "uploading cache entry %s", key)
	}

	c.log.Info(fmt.Sprintf("saved cache entry %s (%d bytes)", key, size))
	return nil
}
