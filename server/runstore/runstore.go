// Package runstore persists workflow run records across server restarts.
package runstore

import (
	"encoding/json"
	"os"
	"path"
	"sort"
	"time"

	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const runsBucketName = "runs"

// BoltStore keeps every run record in a single bolt bucket keyed by run ID.
type BoltStore struct {
	db         *bolt.DB
	runsBucket []byte
}

// New opens or creates the bolt database file under dataDir.
func New(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, errors.Wrap(err, "creating data dir")
	}
	db, err := bolt.Open(path.Join(dataDir, "greenlight.db"), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if err.Error() == "timeout" {
			return nil, errors.New("starting BoltDB: timeout (a possible cause is another greenlight instance already running)")
		}
		return nil, errors.Wrap(err, "starting BoltDB")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runsBucketName))
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "creating bucket %q", runsBucketName)
	}
	return &BoltStore{db: db, runsBucket: []byte(runsBucketName)}, nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

// Save upserts the run record. The clone URL embeds credentials, the
// stored copy only keeps the redacted form.
func (b *BoltStore) Save(run *models.WorkflowRun) error {
	stored := *run
	stored.Repo.CloneURL = stored.Repo.SanitizedCloneURL
	data, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, "serializing run")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.runsBucket).Put([]byte(run.ID), data)
	})
}

// Get returns the stored run, or nil when the ID is unknown.
func (b *BoltStore) Get(id string) (*models.WorkflowRun, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		// The returned slice is only valid inside the transaction.
		if raw := tx.Bucket(b.runsBucket).Get([]byte(id)); raw != nil {
			data = append(data, raw...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var run models.WorkflowRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, errors.Wrapf(err, "deserializing run %q", id)
	}
	return &run, nil
}

// ListForRepo returns every stored run of one repo, newest first.
func (b *BoltStore) ListForRepo(repoFullName string) ([]models.WorkflowRun, error) {
	var runs []models.WorkflowRun
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(b.runsBucket).ForEach(func(key, value []byte) error {
			var run models.WorkflowRun
			if err := json.Unmarshal(value, &run); err != nil {
				return errors.Wrapf(err, "deserializing run %q", string(key))
			}
			if run.Repo.FullName == repoFullName {
				runs = append(runs, run)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreateAt.After(runs[j].CreateAt)
	})
	return runs, nil
}
