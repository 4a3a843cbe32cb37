package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/metrics"
	"github.com/uber-go/tally/v4"
)

// StaleRunHandler cancels in-flight runs when a newer revision of the same
// repo, branch and workflow starts. Only the newest run of a key executes
// to completion.
type StaleRunHandler struct {
	Scope  tally.Scope
	Logger logging.Logger

	mutex    sync.Mutex
	inFlight map[string]*inFlightRun
}

type inFlightRun struct {
	runID  string
	cancel context.CancelFunc
}

// Begin registers run as the current one for its key, canceling whichever
// run was executing under the same key before. The returned context is
// canceled when a newer run supersedes this one. The returned func
// deregisters the run and must be called once execution finishes.
func (h *StaleRunHandler) Begin(ctx context.Context, run *models.WorkflowRun) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	key := run.Key()

	h.mutex.Lock()
	if h.inFlight == nil {
		h.inFlight = make(map[string]*inFlightRun)
	}
	if previous, ok := h.inFlight[key]; ok {
		h.Logger.InfoContext(ctx, fmt.Sprintf("run %s supersedes in-flight run %s of %s", run.ID, previous.runID, key))
		h.Scope.Counter(metrics.RunStaleMetric).Inc(1)
		previous.cancel()
	}
	current := &inFlightRun{runID: run.ID, cancel: cancel}
	h.inFlight[key] = current
	h.mutex.Unlock()

	return runCtx, func() {
		h.mutex.Lock()
		if h.inFlight[key] == current {
			delete(h.inFlight, key)
		}
		h.mutex.Unlock()
		cancel()
	}
}

// InFlight returns the number of currently executing runs.
func (h *StaleRunHandler) InFlight() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.inFlight)
}
