package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/greenlightci/greenlight/server/logging"
	"github.com/pkg/errors"
)

type JobStatus int

const (
	Processing JobStatus = iota
	Complete
)

// Job is the in-flight output buffer for a single workflow job.
type Job struct {
	Output []string
	Status JobStatus
}

type Store interface {
	Get(jobID string) (*Job, error)
	Write(jobID string, output string) error
	Remove(jobID string)

	// Close marks the job complete and persists it when a storage backend
	// is configured.
	Close(ctx context.Context, jobID string, status JobStatus) error
}

func NewStorageBackedStore(storageBackend StorageBackend, logger logging.Logger) Store {
	return &StorageBackendStore{
		memory: &InMemoryStore{
			jobs: map[string]*Job{},
		},
		storageBackend: storageBackend,
		logger:         logger,
	}
}

func NewTestStorageBackedStore(logger logging.Logger, storageBackend StorageBackend, jobs map[string]*Job) Store {
	return &StorageBackendStore{
		memory: &InMemoryStore{
			jobs: jobs,
		},
		storageBackend: storageBackend,
		logger:         logger,
	}
}

// InMemoryStore holds jobs that are still producing output.
type InMemoryStore struct {
	jobs map[string]*Job
	lock sync.RWMutex
}

func (m *InMemoryStore) Get(jobID string) (*Job, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if m.jobs[jobID] == nil {
		return nil, nil
	}
	return m.jobs[jobID], nil
}

func (m *InMemoryStore) Write(jobID string, output string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.jobs[jobID] == nil {
		m.jobs[jobID] = &Job{}
	}

	if m.jobs[jobID].Status == Complete {
		return fmt.Errorf("cannot append to a complete job")
	}

	m.jobs[jobID].Output = append(m.jobs[jobID].Output, output)
	return nil
}

func (m *InMemoryStore) Close(ctx context.Context, jobID string, status JobStatus) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.jobs[jobID] == nil {
		return fmt.Errorf("job: %s does not exist", jobID)
	}
	if m.jobs[jobID].Status == Complete {
		return fmt.Errorf("job: %s is already complete", jobID)
	}

	m.jobs[jobID].Status = status
	return nil
}

func (m *InMemoryStore) Remove(jobID string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	delete(m.jobs, jobID)
}

// StorageBackendStore layers persistent storage over the in-memory store.
// Completed jobs move to the backend, in-flight jobs stay in memory.
type StorageBackendStore struct {
	memory         Store
	storageBackend StorageBackend
	logger         logging.Logger
}

func (s *StorageBackendStore) Get(jobID string) (*Job, error) {
	if jobInMem, _ := s.memory.Get(jobID); jobInMem != nil {
		return jobInMem, nil
	}

	logs, err := s.storageBackend.Read(context.Background(), jobID)
	if err != nil {
		return nil, errors.Wrap(err, "reading from backend storage")
	}

	return &Job{
		Output: logs,
		Status: Complete,
	}, nil
}

func (s *StorageBackendStore) Write(jobID string, output string) error {
	return s.memory.Write(jobID, output)
}

func (s *StorageBackendStore) Close(ctx context.Context, jobID string, status JobStatus) error {
	if err := s.memory.Close(ctx, jobID, status); err != nil {
		return err
	}

	job, err := s.memory.Get(jobID)
	if err != nil || job == nil {
		return errors.Wrapf(err, "retrieving job: %s from memory store", jobID)
	}

	ok, err := s.storageBackend.Write(ctx, jobID, job.Output)
	if err != nil {
		return errors.Wrapf(err, "persisting job: %s", jobID)
	}

	// remove from memory only once safely persisted.
	if ok {
		s.memory.Remove(jobID)
	}
	return nil
}

func (s *StorageBackendStore) Remove(jobID string) {
	s.memory.Remove(jobID)
}
