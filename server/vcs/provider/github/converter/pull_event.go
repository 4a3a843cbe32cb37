package converter

import (
	"fmt"
	"time"

	gh "github.com/google/go-github/v45/github"
	"github.com/greenlightci/greenlight/server/events"
	"github.com/greenlightci/greenlight/server/events/models"
)

// PullEventConverter converts a github pull request event to our
// internal representation.
type PullEventConverter struct {
	RepoConverter RepoConverter
}

func (e PullEventConverter) Convert(pullEvent *gh.PullRequestEvent) (events.PullRequest, error) {
	pull := pullEvent.GetPullRequest()
	if pull == nil {
		return events.PullRequest{}, fmt.Errorf("pull_request is null")
	}

	baseRepo, err := e.RepoConverter.Convert(pull.GetBase().GetRepo())
	if err != nil {
		return events.PullRequest{}, err
	}

	state := models.OpenPullState
	if pull.GetState() == "closed" {
		state = models.ClosedPullState
	}

	eventTimestamp := time.Now()
	if pull.UpdatedAt != nil {
		eventTimestamp = *pull.UpdatedAt
	}

	return events.PullRequest{
		Pull: models.PullRequest{
			Num:        pull.GetNumber(),
			HeadCommit: pull.GetHead().GetSHA(),
			URL:        pull.GetHTMLURL(),
			HeadBranch: pull.GetHead().GetRef(),
			BaseBranch: pull.GetBase().GetRef(),
			Author:     pull.GetUser().GetLogin(),
			State:      state,
			BaseRepo:   baseRepo,
			UpdatedAt:  eventTimestamp,
		},
		Action:    pullEvent.GetAction(),
		Sender:    models.User{Username: pullEvent.GetSender().GetLogin()},
		Timestamp: eventTimestamp,
	}, nil
}
