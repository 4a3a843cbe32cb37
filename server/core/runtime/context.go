// Package runtime executes the steps of a workflow job inside its
// working directory.
package runtime

import (
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/logging"
)

// OutputStreamer receives step output lines as they are produced.
type OutputStreamer interface {
	Send(jobID string, msg string)
}

// CacheSave is a dependency cache upload deferred until the job finishes
// successfully.
type CacheSave struct {
	Key string
	Dir string
}

// CachePlan accumulates the cache saves requested by setup steps.
type CachePlan struct {
	Saves []CacheSave
}

// JobContext carries everything a step needs to run inside a job.
type JobContext struct {
	Log      logging.Logger
	Repo     models.Repo
	Revision string
	Branch   string

	// CheckoutDepth is the clone depth checkout steps use. Zero clones
	// full history.
	CheckoutDepth int

	// JobID identifies the job's output stream.
	JobID string

	// Path is the job's working directory on disk.
	Path string

	// JobEnv holds the job's declared env block. Step env entries override
	// it.
	JobEnv map[string]string

	// Envs holds variables accumulated by earlier steps, ex. the PATH
	// rewrites from setup steps. Later steps see every entry.
	Envs map[string]string

	// Caches collects deferred cache saves for the end of the job.
	Caches *CachePlan

	// CacheEnabled is false when the dependency cache is not allocated for
	// the repo. Cache steps degrade to cold installs.
	CacheEnabled bool
}
