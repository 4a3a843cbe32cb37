package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/core/depcache"
	"github.com/greenlightci/greenlight/server/core/toolchain"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// VersionEnsurer resolves a version spec for a tool and returns the
// directory its binaries live in.
type VersionEnsurer interface {
	EnsureToolchain(log logging.Logger, tool string, spec string) (string, error)
}

// CacheRestorer unpacks a dependency cache entry into a directory.
// The bool is false on a miss.
type CacheRestorer interface {
	Restore(ctx context.Context, key string, dest string) (bool, error)
}

// SetupNodeStepRunner installs the requested node version, prepends it
// to the job's PATH and optionally restores the npm cache.
type SetupNodeStepRunner struct {
	Ensurer VersionEnsurer
	Cache   CacheRestorer
	Exec    toolchain.Exec
}

func (r *SetupNodeStepRunner) Run(ctx context.Context, jobCtx JobContext, step valid.Step) (string, error) {
	binDir, err := r.Ensurer.EnsureToolchain(jobCtx.Log, toolchain.NodeToolName, step.With["node-version"])
	if err != nil {
		return "", errors.Wrap(err, "ensuring node toolchain")
	}
	prependPath(jobCtx.Envs, binDir)

	if step.With["cache"] == "npm" {
		if !jobCtx.CacheEnabled {
			jobCtx.Log.Info("dependency cache is not enabled for this repo, skipping npm cache")
		} else if err := r.restoreNpmCache(ctx, jobCtx, step, binDir); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("node available at %s", binDir), nil
}

func (r *SetupNodeStepRunner) restoreNpmCache(ctx context.Context, jobCtx JobContext, step valid.Step, binDir string) error {
	lockfilePath := filepath.Join(jobCtx.Path, step.WorkingDirectory, "package-lock.json")
	lockfile, err := os.ReadFile(lockfilePath)
	if err != nil {
		return errors.Wrap(err, "cache: npm requires a package-lock.json")
	}

	scope := fmt.Sprintf("node-cache-%s-npm", goruntime.GOOS)
	key := depcache.Key(scope, lockfile)
	cacheDir := r.npmCacheDir(jobCtx, binDir)

	restored, err := r.Cache.Restore(ctx, key, cacheDir)
	if err != nil {
		// A broken cache degrades to a cold install, it never fails the job.
		jobCtx.Log.Warn(fmt.Sprintf("restoring npm cache %s: %v", key, err))
		return nil
	}
	if restored {
		jobCtx.Log.Info(fmt.Sprintf("restored npm cache %s into %s", key, cacheDir))
		return nil
	}
	jobCtx.Caches.Saves = append(jobCtx.Caches.Saves, CacheSave{Key: key, Dir: cacheDir})
	return nil
}

// npmCacheDir asks npm itself where its cache lives, falling back to
// the conventional ~/.npm.
func (r *SetupNodeStepRunner) npmCacheDir(jobCtx JobContext, binDir string) string {
	out, err := r.Exec.CombinedOutput(
		[]string{filepath.Join(binDir, "npm"), "config", "get", "cache"},
		map[string]string{"PATH": jobCtx.Envs["PATH"]},
		jobCtx.Path,
	)
	if err == nil {
		if dir := strings.TrimSpace(out); dir != "" {
			return dir
		}
	}
	home, err := homedir.Dir()
	if err != nil {
		return ".npm"
	}
	return filepath.Join(home, ".npm")
}

// prependPath puts binDir at the front of the job's PATH so later steps
// resolve the pinned tool first.
func prependPath(envs map[string]string, binDir string) {
	path := envs["PATH"]
	if path == "" {
		path = os.Getenv("PATH")
	}
	envs["PATH"] = binDir + string(os.PathListSeparator) + path
}
