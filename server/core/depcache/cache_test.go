package depcache

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/stow"
	. "github.com/greenlightci/greenlight/testing"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
)

type fakeStore struct {
	objects map[string][]byte
}

func (f *fakeStore) Get(ctx context.Context, key string) (io.ReadCloser, stow.CloserFn, error) {
	object, ok := f.objects[key]
	if !ok {
		return nil, nil, &stow.ItemNotFoundError{Err: errors.New("no such key")}
	}
	return io.NopCloser(bytes.NewReader(object)), func() {}, nil
}

func (f *fakeStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	object, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = object
	return nil
}

func TestKey(t *testing.T) {
	key := Key("setup-node-npm", []byte("lockfile contents"))
	Assert(t, strings.HasPrefix(key, "setup-node-npm-"), "key %q should carry the scope prefix", key)
	Equals(t, key, Key("setup-node-npm", []byte("lockfile contents")))

	changed := Key("setup-node-npm", []byte("different contents"))
	Assert(t, key != changed, "different lockfiles should produce different keys")
}

func TestCache_SaveRestore(t *testing.T) {
	src, cleanupSrc := TempDir(t)
	defer cleanupSrc()
	dst, cleanupDst := TempDir(t)
	defer cleanupDst()

	Ok(t, os.MkdirAll(filepath.Join(src, "node_modules", "left-pad"), 0755))
	Ok(t, os.WriteFile(filepath.Join(src, "node_modules", "left-pad", "index.js"), []byte("module.exports = pad"), 0644))
	Ok(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0644))
	Ok(t, os.Symlink("top.txt", filepath.Join(src, "link.txt")))

	testScope := tally.NewTestScope("", nil)
	cache := &Cache{
		store: &fakeStore{objects: map[string][]byte{}},
		scope: testScope,
		log:   logging.NewNoopCtxLogger(t),
	}
	ctx := context.Background()
	key := Key("setup-node-npm", []byte("lockfile"))

	Ok(t, cache.Save(ctx, key, src))

	restored, err := cache.Restore(ctx, key, dst)
	Ok(t, err)
	Equals(t, true, restored)

	contents, err := os.ReadFile(filepath.Join(dst, "node_modules", "left-pad", "index.js"))
	Ok(t, err)
	Equals(t, "module.exports = pad", string(contents))

	target, err := os.Readlink(filepath.Join(dst, "link.txt"))
	Ok(t, err)
	Equals(t, "top.txt", target)

	counters := testScope.Snapshot().Counters()
	Equals(t, int64(1), counters["dep_cache_hit+"].Value())
}

func TestCache_RestoreMiss(t *testing.T) {
	dst, cleanup := TempDir(t)
	defer cleanup()

	testScope := tally.NewTestScope("", nil)
	cache := &Cache{
		store: &fakeStore{objects: map[string][]byte{}},
		scope: testScope,
		log:   logging.NewNoopCtxLogger(t),
	}

	restored, err := cache.Restore(context.Background(), "missing-key", dst)
	Ok(t, err)
	Equals(t, false, restored)

	counters := testScope.Snapshot().Counters()
	Equals(t, int64(1), counters["dep_cache_miss+"].Value())
}

func TestCache_SaveMissingDir(t *testing.T) {
	cache := &Cache{
		store: &fakeStore{objects: map[string][]byte{}},
		scope: tally.NewTestScope("", nil),
		log:   logging.NewNoopCtxLogger(t),
	}

	err := cache.Save(context.Background(), "key", "/does/not/exist")
	ErrContains(t, "does not exist", err)
}

func TestUnpack_RejectsTraversal(t *testing.T) {
	dst, cleanup := TempDir(t)
	defer cleanup()

	var buf bytes.Buffer
	Ok(t, packEntry(&buf, "../escape.txt", []byte("nope")))

	err := unpack(&buf, dst)
	ErrContains(t, "escapes destination", err)
}

// packEntry builds a one-entry tar.gz for crafting hostile archives.
func packEntry(w io.Writer, name string, contents []byte) error {
	gzw := gzip.NewWriter(w)
	tw := tar.NewWriter(gzw)
	header := &tar.Header{
		Name:     name,
		Mode:     0644,
		Size:     int64(len(contents)),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if _, err := tw.Write(contents); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gzw.Close()
}
