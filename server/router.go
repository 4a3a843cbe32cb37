package server

import (
	"fmt"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// Router builds externally reachable URLs for named routes the server
// serves.
type Router struct {
	// Underlying is the router the routes are registered on.
	Underlying *mux.Router
	// ExternalURL is the base URL the server is reached at, including any
	// base path.
	ExternalURL *url.URL
	// JobsViewRouteName is the name of the route streaming a job's output.
	JobsViewRouteName string
}

// GenerateJobURL returns the URL a job's live output can be watched at.
func (r *Router) GenerateJobURL(jobID string) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("no job id specified")
	}
	jobURL, err := r.Underlying.Get(r.JobsViewRouteName).URL("job-id", jobID)
	if err != nil {
		return "", errors.Wrapf(err, "creating job url for %s", jobID)
	}
	return r.ExternalURL.String() + jobURL.String(), nil
}
