package controllers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/greenlightci/greenlight/server/controllers"
	"github.com/greenlightci/greenlight/server/jobs"
	"github.com/greenlightci/greenlight/server/logging"
	. "github.com/greenlightci/greenlight/testing"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
)

type fakeJobStore struct {
	jobs map[string]*jobs.Job
	err  error
}

func (s *fakeJobStore) Get(jobID string) (*jobs.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.jobs[jobID], nil
}

func (s *fakeJobStore) Write(jobID string, output string) error { return nil }
func (s *fakeJobStore) Remove(jobID string)                     {}

func (s *fakeJobStore) Close(ctx context.Context, jobID string, status jobs.JobStatus) error {
	return nil
}

func TestJobIDKeyGenerator(t *testing.T) {
	keyGen := controllers.JobIDKeyGenerator{}

	t.Run("job id in route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/jobs/1234", nil)
		req = mux.SetURLVars(req, map[string]string{"job-id": "1234"})

		jobID, err := keyGen.Generate(req)
		Ok(t, err)
		Equals(t, "1234", jobID)
	})

	t.Run("no job id in route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/jobs", nil)

		_, err := keyGen.Generate(req)
		ErrEquals(t, "internal error: no job-id in route", err)
	})
}

func newJobsController(t *testing.T, store jobs.Store) (*controllers.JobsController, tally.TestScope) {
	scope := tally.NewTestScope("test", nil)
	return &controllers.JobsController{
		Logger:   logging.NewNoopCtxLogger(t),
		Scope:    scope,
		JobStore: store,
	}, scope
}

func TestGetJob(t *testing.T) {
	store := &fakeJobStore{jobs: map[string]*jobs.Job{
		"1234": {
			Output: []string{"line one", "line two"},
			Status: jobs.Complete,
		},
	}}

	t.Run("job found", func(t *testing.T) {
		j, _ := newJobsController(t, store)
		req := httptest.NewRequest(http.MethodGet, "/jobs/1234", nil)
		req = mux.SetURLVars(req, map[string]string{"job-id": "1234"})
		w := httptest.NewRecorder()

		j.GetJob(w, req)
		ResponseContains(t, w, http.StatusOK, "line one\nline two")
	})

	t.Run("job missing", func(t *testing.T) {
		j, scope := newJobsController(t, store)
		req := httptest.NewRequest(http.MethodGet, "/jobs/unknown", nil)
		req = mux.SetURLVars(req, map[string]string{"job-id": "unknown"})
		w := httptest.NewRecorder()

		j.GetJob(w, req)
		ResponseContains(t, w, http.StatusNotFound, `no job found for id "unknown"`)
		Equals(t, int64(1), scope.Snapshot().Counters()["test.api.execution_error+"].Value())
	})

	t.Run("store failure", func(t *testing.T) {
		j, _ := newJobsController(t, &fakeJobStore{err: errors.New("backend gone")})
		req := httptest.NewRequest(http.MethodGet, "/jobs/1234", nil)
		req = mux.SetURLVars(req, map[string]string{"job-id": "1234"})
		w := httptest.NewRecorder()

		j.GetJob(w, req)
		Equals(t, http.StatusNotFound, w.Result().StatusCode)
	})

	t.Run("no job id in route", func(t *testing.T) {
		j, _ := newJobsController(t, store)
		req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
		w := httptest.NewRecorder()

		j.GetJob(w, req)
		ResponseContains(t, w, http.StatusBadRequest, "internal error: no job-id in route")
	})
}

type failingMultiplexor struct {
	err error
}

func (m *failingMultiplexor) Handle(w http.ResponseWriter, r *http.Request) error {
	return m.err
}

func TestGetJobWS_HandlerFailure(t *testing.T) {
	store := &fakeJobStore{}
	j, scope := newJobsController(t, store)
	j.WsMux = &failingMultiplexor{
		err: errors.New("generating partition key: internal error: no job-id in route"),
	}

	req := httptest.NewRequest(http.MethodGet, "/jobs/ws", nil)
	w := httptest.NewRecorder()
	j.GetJobWS(w, req)

	ResponseContains(t, w, http.StatusBadRequest, "no job-id in route")
	Equals(t, int64(1), scope.Snapshot().Counters()["test.api.execution_error+"].Value())
}
