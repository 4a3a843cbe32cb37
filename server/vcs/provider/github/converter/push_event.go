package converter

import (
	"fmt"
	"time"

	gh "github.com/google/go-github/v45/github"
	"github.com/greenlightci/greenlight/server/events"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/vcs"
)

// PushEventConverter converts a github push event to our internal
// representation.
type PushEventConverter struct {
	RepoConverter RepoConverter
}

func (p PushEventConverter) Convert(pushEvent *gh.PushEvent) (events.Push, error) {
	if pushEvent.GetRepo() == nil {
		return events.Push{}, fmt.Errorf("repo is null")
	}
	repo, err := p.RepoConverter.Convert(pushEvent.GetRepo())
	if err != nil {
		return events.Push{}, err
	}

	action := events.UpdatedAction
	if pushEvent.GetDeleted() {
		action = events.DeletedAction
	} else if pushEvent.GetCreated() {
		action = events.CreatedAction
	}

	return events.Push{
		Repo:      repo,
		Ref:       vcs.ParseRef(pushEvent.GetRef()),
		Before:    pushEvent.GetBefore(),
		Sha:       pushEvent.GetAfter(),
		Sender:    models.User{Username: pushEvent.GetSender().GetLogin()},
		Action:    action,
		Timestamp: time.Now(),
	}, nil
}
