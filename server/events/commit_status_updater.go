package events

import (
	"context"
	"fmt"

	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/vcs"
)

// StatusUpdater is the VCS host side of commit statuses.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, request vcs.UpdateStatusRequest) error
}

// CommitStatusUpdater mirrors workflow run progress onto the revision's
// commit statuses so runs show up on pull requests and branch pages.
type CommitStatusUpdater interface {
	// UpdateRun sets the combined status of the whole run on its revision.
	UpdateRun(ctx context.Context, run *models.WorkflowRun, status models.VcsStatus) error
	// UpdateJob sets the status of a single job with a link to its logs.
	UpdateJob(ctx context.Context, run *models.WorkflowRun, jobName string, status models.VcsStatus, url string) error
}

// VCSStatusUpdater implements CommitStatusUpdater against the VCS host's
// status API.
type VCSStatusUpdater struct {
	Client       StatusUpdater
	TitleBuilder vcs.StatusTitleBuilder
}

func (d *VCSStatusUpdater) UpdateRun(ctx context.Context, run *models.WorkflowRun, status models.VcsStatus) error {
	// Scheduled runs execute against a branch, not a reported commit. The
	// status API only takes revisions somebody pushed.
	if run.Trigger == models.ScheduleEventKind {
		return nil
	}
	statusName := d.TitleBuilder.Build(run.Workflow)
	description := fmt.Sprintf("Workflow %s", statusDescription(status))

	return d.Client.UpdateStatus(ctx, vcs.UpdateStatusRequest{
		Repo:        run.Repo,
		Ref:         run.Revision,
		State:       status,
		StatusName:  statusName,
		Description: description,
	})
}

func (d *VCSStatusUpdater) UpdateJob(ctx context.Context, run *models.WorkflowRun, jobName string, status models.VcsStatus, url string) error {
	if run.Trigger == models.ScheduleEventKind {
		return nil
	}
	statusName := d.TitleBuilder.Build(run.Workflow, vcs.StatusTitleOptions{
		JobName: jobName,
	})
	description := fmt.Sprintf("Job %s", statusDescription(status))

	return d.Client.UpdateStatus(ctx, vcs.UpdateStatusRequest{
		Repo:        run.Repo,
		Ref:         run.Revision,
		State:       status,
		StatusName:  statusName,
		Description: description,
		DetailsURL:  url,
	})
}

// NoopStatusUpdater discards statuses, for local runs with no VCS host to
// report to.
type NoopStatusUpdater struct{}

func (n *NoopStatusUpdater) UpdateRun(ctx context.Context, run *models.WorkflowRun, status models.VcsStatus) error {
	return nil
}

func (n *NoopStatusUpdater) UpdateJob(ctx context.Context, run *models.WorkflowRun, jobName string, status models.VcsStatus, url string) error {
	return nil
}

func statusDescription(status models.VcsStatus) string {
	var description string
	switch status {
	case models.PendingVcsStatus:
		description = "in progress..."
	case models.FailedVcsStatus:
		description = "failed."
	case models.SuccessVcsStatus:
		description = "succeeded."
	}

	return description
}
