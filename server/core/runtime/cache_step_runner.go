package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/core/depcache"
	"github.com/pkg/errors"
)

// CacheStepRunner restores an explicit cache directory keyed off a file
// in the checkout, and schedules a save for the end of the job when the
// key missed.
type CacheStepRunner struct {
	Cache CacheRestorer
}

func (r *CacheStepRunner) Run(ctx context.Context, jobCtx JobContext, step valid.Step) (string, error) {
	dir := step.With["path"]
	keyFile := step.With["key-file"]
	if dir == "" || keyFile == "" {
		return "", errors.New("cache step requires path and key-file inputs")
	}
	scope := step.With["key"]
	if scope == "" {
		scope = "cache"
	}

	if !jobCtx.CacheEnabled {
		return "dependency cache is not enabled for this repo", nil
	}

	keyContents, err := os.ReadFile(filepath.Join(jobCtx.Path, keyFile))
	if err != nil {
		return "", errors.Wrapf(err, "reading cache key file %s", keyFile)
	}
	key := depcache.Key(scope, keyContents)

	if !filepath.IsAbs(dir) {
		dir = filepath.Join(jobCtx.Path, dir)
	}
	restored, err := r.Cache.Restore(ctx, key, dir)
	if err != nil {
		jobCtx.Log.Warn(fmt.Sprintf("restoring cache %s: %v", key, err))
		return "", nil
	}
	if restored {
		return fmt.Sprintf("restored cache %s into %s", key, dir), nil
	}
	jobCtx.Caches.Saves = append(jobCtx.Caches.Saves, CacheSave{Key: key, Dir: dir})
	return fmt.Sprintf("cache %s not found, will save after the job", key), nil
}
