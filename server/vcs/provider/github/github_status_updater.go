package github

import (
	"context"

	gh "github.com/google/go-github/v45/github"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/vcs"
)

// StatusUpdater sets commit statuses on github.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, request vcs.UpdateStatusRequest) error
}

type PullStatusUpdater struct {
	Client *gh.Client
}

// UpdateStatus updates the status badge on the commit.
// See https://github.com/blog/1227-commit-status-api.
func (g *PullStatusUpdater) UpdateStatus(ctx context.Context, request vcs.UpdateStatusRequest) error {
	ghState := "error"
	switch request.State {
	case models.PendingVcsStatus:
		ghState = "pending"
	case models.SuccessVcsStatus:
		ghState = "success"
	case models.FailedVcsStatus:
		ghState = "failure"
	}

	status := &gh.RepoStatus{
		State:       gh.String(ghState),
		Description: gh.String(request.Description),
		Context:     gh.String(request.StatusName),
		TargetURL:   &request.DetailsURL,
	}
	_, _, err := g.Client.Repositories.CreateStatus(ctx, request.Repo.Owner, request.Repo.Name, request.Ref, status)
	return err
}
