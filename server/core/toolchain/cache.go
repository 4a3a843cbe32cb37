package toolchain

import (
	"fmt"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

// VersionCache resolves a concrete tool version to a local bin directory,
// loading it on a miss.
type VersionCache interface {
	Get(key *version.Version) (string, error)
}

type KeySerializer interface {
	Serialize(key *version.Version) (string, error)
}

type DefaultDiskLookupKeySerializer struct {
	toolName string
}

func (s *DefaultDiskLookupKeySerializer) Serialize(key *version.Version) (string, error) {
	return fmt.Sprintf("%s%s", s.toolName, key.Original()), nil
}

// DiskLayer is a cache layer which attempts to find the version on disk
// before calling the configured loading function.
type DiskLayer struct {
	versionRootDir FilePath
	keySerializer  KeySerializer
	loader         func(v *version.Version, destPath string) (FilePath, error)
}

func (d *DiskLayer) Get(key *version.Version) (string, error) {
	serialized, err := d.keySerializer.Serialize(key)
	if err != nil {
		return "", errors.Wrap(err, "serializing key for disk lookup")
	}

	linkPath := d.versionRootDir.Join(serialized)

	// if the link doesn't exist there, we need to load the version.
	if linkPath.NotExists() {
		// load it into a versions directory first and then symlink it to
		// the serialized key.
		loaderPath := d.versionRootDir.Join("versions", key.Original())

		binDir, err := d.loader(key, loaderPath.Resolve())
		if err != nil {
			return "", errors.Wrapf(err, "loading %s", loaderPath.Resolve())
		}

		linkPath, err = binDir.Symlink(linkPath.Resolve())
		if err != nil {
			return "", err
		}
	}

	return linkPath.Resolve(), nil
}

// LayeredLoadingCache is made up of a list of layers which are tried
// in order.
type LayeredLoadingCache struct {
	layers []VersionCache
}

func NewLayeredLoadingCache(
	toolName string,
	versionRootDir string,
	loader func(v *version.Version, destPath string) (FilePath, error),
) VersionCache {
	diskLayer := &DiskLayer{
		versionRootDir: LocalFilePath(versionRootDir),
		keySerializer:  &DefaultDiskLookupKeySerializer{toolName: toolName},
		loader:         loader,
	}

	return &LayeredLoadingCache{
		layers: []VersionCache{
			diskLayer,
		},
	}
}

func (c *LayeredLoadingCache) Get(key *version.Version) (string, error) {
	var lastErr error
	for _, layer := range c.layers {
		path, err := layer.Get(key)
		if err == nil {
			return path, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no cache layers configured")
	}
	return "", lastErr
}
