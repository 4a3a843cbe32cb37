package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/greenlightci/greenlight/server/controllers/websocket"
	"github.com/greenlightci/greenlight/server/jobs"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/metrics"
	"github.com/uber-go/tally/v4"
)

// JobIDKeyGenerator reads the job id a streaming request asks for out of
// the route.
type JobIDKeyGenerator struct{}

func (g JobIDKeyGenerator) Generate(r *http.Request) (string, error) {
	jobID, ok := mux.Vars(r)["job-id"]
	if !ok {
		return "", fmt.Errorf("internal error: no job-id in route")
	}

	return jobID, nil
}

// JobsController serves job output, live over a websocket and finished as
// plain text.
type JobsController struct {
	Logger logging.Logger
	Scope  tally.Scope

	KeyGenerator JobIDKeyGenerator
	JobStore     jobs.Store
	WsMux        websocket.Multiplexor
}

// GetJob returns the stored output of a finished job.
func (j *JobsController) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := j.KeyGenerator.Generate(r)
	if err != nil {
		j.respond(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := j.JobStore.Get(jobID)
	if err != nil || job == nil {
		j.Scope.SubScope("api").Counter(metrics.ExecutionErrorMetric).Inc(1)
		j.respond(w, http.StatusNotFound, "no job found for id %q", jobID)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, strings.Join(job.Output, "\n"))
}

// GetJobWS streams the output of a running job over a websocket.
func (j *JobsController) GetJobWS(w http.ResponseWriter, r *http.Request) {
	jobsMetric := j.Scope.SubScope("api")
	errorCounter := jobsMetric.Counter(metrics.ExecutionErrorMetric)
	executionTime := jobsMetric.Timer(metrics.ExecutionTimeMetric).Start()
	defer executionTime.Stop()

	if err := j.WsMux.Handle(w, r); err != nil {
		errorCounter.Inc(1)
		j.respond(w, http.StatusBadRequest, err.Error())
	}
}

func (j *JobsController) respond(w http.ResponseWriter, responseCode int, format string, args ...interface{}) {
	response := fmt.Sprintf(format, args...)
	j.Logger.Error(response)
	w.WriteHeader(responseCode)
	fmt.Fprintln(w, response)
}
