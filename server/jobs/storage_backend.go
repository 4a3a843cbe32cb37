package jobs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/stow"
	"github.com/pkg/errors"
)

const OutputPrefix = "output"

type StorageBackend interface {
	Read(ctx context.Context, key string) ([]string, error)
	Write(ctx context.Context, key string, logs []string) (bool, error)
}

func NewStorageBackend(stowClient *stow.Client, logger logging.Logger) StorageBackend {
	return &storageBackend{
		client: stowClient,
		logger: logger,
	}
}

type storageBackend struct {
	client *stow.Client
	logger logging.Logger
}

func (s *storageBackend) Read(ctx context.Context, key string) ([]string, error) {
	key = fmt.Sprintf("%s/%s", OutputPrefix, key)

	s.logger.Info(fmt.Sprintf("reading object for job: %s", key))
	reader, closer, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "getting item")
	}
	defer closer()

	buf := new(strings.Builder)
	if _, err = io.Copy(buf, reader); err != nil {
		return []string{}, errors.Wrap(err, "copying to buffer")
	}

	return strings.Split(buf.String(), "\n"), nil
}

func (s *storageBackend) Write(ctx context.Context, key string, logs []string) (bool, error) {
	logString := strings.Join(logs, "\n")
	key = fmt.Sprintf("%s/%s", OutputPrefix, key)

	err := s.client.Set(ctx, key, []byte(logString))
	if err != nil {
		return false, errors.Wrapf(err, "uploading object for job: %s", key)
	}

	s.logger.Info(fmt.Sprintf("successfully uploaded object for job: %s", key))
	return true, nil
}

// NoopStorageBackend is used when log persistence is not configured.
type NoopStorageBackend struct{}

func (s *NoopStorageBackend) Read(ctx context.Context, key string) ([]string, error) {
	return []string{}, nil
}

func (s *NoopStorageBackend) Write(ctx context.Context, key string, logs []string) (bool, error) {
	return false, nil
}
