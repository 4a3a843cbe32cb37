// Package websocket streams job output partitions to browser connections.
package websocket

import (
	"net/http"

	"github.com/greenlightci/greenlight/server/logging"
	"github.com/pkg/errors"
)

// PartitionKeyGenerator generates the partition key for the provided
// request.
type PartitionKeyGenerator interface {
	Generate(r *http.Request) (string, error)
}

// PartitionRegistry is the registry holding each partition and is
// responsible for registering and deregistering new buffers.
type PartitionRegistry interface {
	Register(key string, buffer chan string)
	Deregister(key string, buffer chan string)
}

// Multiplexor handles the data transfer between the registry and a
// websocket connection.
type Multiplexor interface {
	Handle(w http.ResponseWriter, r *http.Request) error
}

type multiplexor struct {
	writer       *Writer
	keyGenerator PartitionKeyGenerator
	registry     PartitionRegistry
}

func NewMultiplexor(log logging.Logger, keyGenerator PartitionKeyGenerator, registry PartitionRegistry) Multiplexor {
	return &multiplexor{
		writer:       NewWriter(log),
		keyGenerator: keyGenerator,
		registry:     registry,
	}
}

// Handle should be called for a given websocket request. It blocks while
// writing to the websocket until the buffer is closed.
func (m *multiplexor) Handle(w http.ResponseWriter, r *http.Request) error {
	key, err := m.keyGenerator.Generate(r)
	if err != nil {
		return errors.Wrap(err, "generating partition key")
	}

	// Buffered so the registry can keep feeding while the socket drains.
	buffer := make(chan string, 1000)

	// Register backfills the buffer before subscribing, so it runs in its
	// own goroutine while we block on the write side.
	go m.registry.Register(key, buffer)
	defer m.registry.Deregister(key, buffer)

	return errors.Wrapf(m.writer.Write(w, r, buffer), "writing to ws %s", key)
}
