package events_test

import (
	"context"
	"testing"

	"github.com/greenlightci/greenlight/server/events"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/logging"
	. "github.com/greenlightci/greenlight/testing"
	"github.com/uber-go/tally/v4"
)

func staleRun(id string, branch string) *models.WorkflowRun {
	return &models.WorkflowRun{
		ID:           id,
		Repo:         models.Repo{FullName: "octocat/hello-world"},
		Branch:       branch,
		WorkflowPath: ".github/workflows/ci.yml",
	}
}

func TestStaleRunHandler_SupersedesSameKey(t *testing.T) {
	scope := tally.NewTestScope("test", nil)
	handler := &events.StaleRunHandler{Scope: scope, Logger: logging.NewNoopCtxLogger(t)}

	firstCtx, firstDone := handler.Begin(context.Background(), staleRun("1", "main"))
	defer firstDone()
	secondCtx, secondDone := handler.Begin(context.Background(), staleRun("2", "main"))
	defer secondDone()

	Assert(t, firstCtx.Err() != nil, "expected the superseded run's context to be canceled")
	Ok(t, secondCtx.Err())
	Equals(t, int64(1), scope.Snapshot().Counters()["test.run_stale+"].Value())
}

func TestStaleRunHandler_DistinctKeysCoexist(t *testing.T) {
	scope := tally.NewTestScope("test", nil)
	handler := &events.StaleRunHandler{Scope: scope, Logger: logging.NewNoopCtxLogger(t)}

	mainCtx, mainDone := handler.Begin(context.Background(), staleRun("1", "main"))
	defer mainDone()
	releaseCtx, releaseDone := handler.Begin(context.Background(), staleRun("2", "release/1.2"))
	defer releaseDone()

	Ok(t, mainCtx.Err())
	Ok(t, releaseCtx.Err())
	Equals(t, 2, handler.InFlight())
	_, ok := scope.Snapshot().Counters()["test.run_stale+"]
	Assert(t, !ok, "expected no run to be counted stale")
}

func TestStaleRunHandler_DoneDeregisters(t *testing.T) {
	scope := tally.NewTestScope("test", nil)
	handler := &events.StaleRunHandler{Scope: scope, Logger: logging.NewNoopCtxLogger(t)}

	_, firstDone := handler.Begin(context.Background(), staleRun("1", "main"))
	firstDone()
	Equals(t, 0, handler.InFlight())

	// The key is free again, a later run starts without superseding anyone.
	secondCtx, secondDone := handler.Begin(context.Background(), staleRun("2", "main"))
	defer secondDone()

	Ok(t, secondCtx.Err())
	_, ok := scope.Snapshot().Counters()["test.run_stale+"]
	Assert(t, !ok, "expected no run to be counted stale")
}

func TestStaleRunHandler_DoneOfSupersededRunKeepsCurrent(t *testing.T) {
	scope := tally.NewTestScope("test", nil)
	handler := &events.StaleRunHandler{Scope: scope, Logger: logging.NewNoopCtxLogger(t)}

	_, firstDone := handler.Begin(context.Background(), staleRun("1", "main"))
	secondCtx, secondDone := handler.Begin(context.Background(), staleRun("2", "main"))
	defer secondDone()

	// The superseded run finishing must not evict its successor.
	firstDone()
	Equals(t, 1, handler.InFlight())
	Ok(t, secondCtx.Err())
}
