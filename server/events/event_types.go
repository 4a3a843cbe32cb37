package events

import (
	"time"

	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/vcs"
)

type PushAction string

const (
	DeletedAction PushAction = "deleted"
	CreatedAction PushAction = "created"
	UpdatedAction PushAction = "updated"
)

// Push is a converted push webhook event.
type Push struct {
	Repo models.Repo
	Ref  vcs.Ref
	// Before is the sha the ref pointed at before the push. All zeros for
	// newly created refs.
	Before    string
	Sha       string
	Sender    models.User
	Action    PushAction
	Timestamp time.Time
}

// PullRequest is a converted pull request webhook event.
type PullRequest struct {
	Pull models.PullRequest
	// Action is the raw github activity type, ex. "opened" or
	// "synchronize".
	Action    string
	Sender    models.User
	Timestamp time.Time
}

// Schedule is a synthesized event for a workflow's cron trigger firing.
type Schedule struct {
	Repo models.Repo
	// WorkflowPath restricts the run to the workflow whose cron fired.
	WorkflowPath string
	Timestamp    time.Time
}
