package vcs

import (
	"fmt"

	"github.com/greenlightci/greenlight/server/events/models"
)

// UpdateStatusRequest is everything needed to set a commit status on the
// VCS host.
type UpdateStatusRequest struct {
	Repo models.Repo
	// Ref is the sha the status attaches to.
	Ref         string
	State       models.VcsStatus
	StatusName  string
	Description string
	DetailsURL  string
}

// StatusTitleBuilder constructs the context names of commit statuses so
// every status set by this server shares one prefix.
type StatusTitleBuilder struct {
	TitlePrefix string
}

type StatusTitleOptions struct {
	JobName string
}

func (b StatusTitleBuilder) Build(workflowName string, options ...StatusTitleOptions) string {
	title := fmt.Sprintf("%s/%s", b.TitlePrefix, workflowName)
	for _, option := range options {
		if option.JobName != "" {
			title = fmt.Sprintf("%s: %s", title, option.JobName)
		}
	}
	return title
}
