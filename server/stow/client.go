// Package stow wraps object storage behind a small client so callers do
// not care whether bytes land on local disk or in s3.
package stow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/graymeta/stow"
	stow_local "github.com/graymeta/stow/local"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/pkg/errors"
)

type ContainerNotFoundError struct {
	Err error
}

func (c *ContainerNotFoundError) Error() string {
	return fmt.Sprintf("container not found: %s", c.Err.Error())
}

type ItemNotFoundError struct {
	Err error
}

func (i *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item not found: %s", i.Err.Error())
}

type CloserFn func()

func NewClient(storeConfig valid.StoreConfig) (*Client, error) {
	// The local backend expects its container directory to exist, remote
	// backends manage their own.
	if storeConfig.BackendType == valid.LocalBackend {
		if path, ok := storeConfig.Config.Config(stow_local.ConfigKeyPath); ok {
			if err := os.MkdirAll(filepath.Join(path, storeConfig.ContainerName), 0700); err != nil {
				return nil, errors.Wrap(err, "creating local store directory")
			}
		}
	}

	location, err := stow.Dial(string(storeConfig.BackendType), storeConfig.Config)
	if err != nil {
		return nil, err
	}

	return &Client{
		location:      location,
		containerName: storeConfig.ContainerName,
		prefix:        storeConfig.Prefix,
	}, nil
}

type Client struct {
	location      stow.Location
	containerName string
	prefix        string
}

// Get returns custom errors so the caller can distinguish a missing
// container from a missing item.
func (c *Client) Get(ctx context.Context, key string) (io.ReadCloser, CloserFn, error) {
	container, err := c.location.Container(c.containerName)
	if err != nil {
		return nil, nil, &ContainerNotFoundError{
			Err: err,
		}
	}

	key = c.addPrefix(key)
	item, err := container.Item(key)
	if err != nil {
		if errors.Is(err, stow.ErrNotFound) {
			return nil, nil, &ItemNotFoundError{
				Err: err,
			}
		}
		return nil, nil, errors.Wrap(err, "getting item")
	}

	r, err := item.Open()
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading item")
	}

	closerFn := func() {
		r.Close() //nolint:errcheck
	}

	return r, closerFn, nil
}

func (c *Client) Set(ctx context.Context, key string, object []byte) error {
	return c.Put(ctx, key, bytes.NewReader(object), int64(len(object)))
}

// Put streams an object of known size, which keeps large payloads out of
// memory.
func (c *Client) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	container, err := c.location.Container(c.containerName)
	if err != nil {
		return errors.Wrap(err, "resolving container")
	}

	key = c.addPrefix(key)
	_, err = container.Put(key, r, size, nil)
	if err != nil {
		return errors.Wrap(err, "writing to container")
	}
	return nil
}

func (c *Client) addPrefix(key string) string {
	if c.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s/%s", c.prefix, key)
}
