package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/runstore"
)

// RunsController serves the persisted run history as JSON.
type RunsController struct {
	Logger   logging.Logger
	RunStore *runstore.BoltStore
}

// GetRepoRuns returns every stored run of one repo, newest first.
func (c *RunsController) GetRepoRuns(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner, okOwner := vars["owner"]
	repo, okRepo := vars["repo"]
	if !okOwner || !okRepo {
		c.respond(w, http.StatusBadRequest, "internal error: no owner/repo in route")
		return
	}

	runs, err := c.RunStore.ListForRepo(owner + "/" + repo)
	if err != nil {
		c.respond(w, http.StatusInternalServerError, "listing runs: %s", err)
		return
	}
	c.writeJSON(w, runs)
}

// GetRun returns a single run by ID.
func (c *RunsController) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := mux.Vars(r)["run-id"]
	if !ok {
		c.respond(w, http.StatusBadRequest, "internal error: no run-id in route")
		return
	}

	run, err := c.RunStore.Get(runID)
	if err != nil {
		c.respond(w, http.StatusInternalServerError, "getting run: %s", err)
		return
	}
	if run == nil {
		c.respond(w, http.StatusNotFound, "no run found for id %q", runID)
		return
	}
	c.writeJSON(w, run)
}

func (c *RunsController) writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		c.Logger.Error(fmt.Sprintf("writing runs response: %s", err))
	}
}

func (c *RunsController) respond(w http.ResponseWriter, responseCode int, format string, args ...interface{}) {
	response := fmt.Sprintf(format, args...)
	c.Logger.Warn(response)
	w.WriteHeader(responseCode)
	fmt.Fprintln(w, response)
}
