package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	internalContext "github.com/greenlightci/greenlight/server/context"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/metrics"
	"github.com/greenlightci/greenlight/server/vcs"
	"github.com/greenlightci/greenlight/server/webhooks"
	"github.com/uber-go/tally/v4"
)

// ChangedFilesFetcher lists the files an event touched, the input of
// paths trigger filters.
type ChangedFilesFetcher interface {
	GetModifiedFilesFromCommit(ctx context.Context, repo models.Repo, sha string) ([]string, error)
	GetModifiedFilesFromCommitRange(ctx context.Context, repo models.Repo, base string, head string) ([]string, error)
	GetModifiedFilesFromPR(ctx context.Context, repo models.Repo, pullNum int) ([]string, error)
}

// RunStore persists finished run records for the history views.
type RunStore interface {
	Save(run *models.WorkflowRun) error
}

// WebhooksSender fans completed runs out to notification destinations.
type WebhooksSender interface {
	Send(ctx context.Context, result webhooks.RunResult) error
}

// CommandRunner handles one intake event end to end.
type CommandRunner interface {
	RunPushCommand(ctx context.Context, push Push)
	RunPRCommand(ctx context.Context, pull PullRequest)
	RunScheduleCommand(ctx context.Context, schedule Schedule)
}

// DefaultCommandRunner gates events on the repo allowlist, plans the runs
// they trigger and executes each plan: VCS statuses out, jobs through the
// executor, the record persisted, notifications sent.
type DefaultCommandRunner struct {
	AllowlistChecker *RepoAllowlistChecker
	FilesFetcher     ChangedFilesFetcher
	RunsBuilder      RunsBuilder
	Executor         RunExecutor
	StaleHandler     *StaleRunHandler
	StatusUpdater    CommitStatusUpdater
	RunStore         RunStore
	Webhooks         WebhooksSender
	Logger           logging.Logger
	Scope            tally.Scope
}

func (c *DefaultCommandRunner) RunPushCommand(ctx context.Context, push Push) {
	if push.Action == DeletedAction {
		c.Logger.InfoContext(ctx, fmt.Sprintf("ignoring deletion push of %s on %s", push.Ref.Name, push.Repo.FullName))
		return
	}
	// Workflow triggers filter on branches. A tag push has none to match.
	if push.Ref.Type != vcs.BranchRef {
		c.Logger.InfoContext(ctx, fmt.Sprintf("ignoring %s push of %q on %s", push.Ref.Type, push.Ref.Name, push.Repo.FullName))
		return
	}
	if !c.allowed(ctx, push.Repo) {
		return
	}

	c.runRequest(ctx, BuildRequest{
		Repo:         push.Repo,
		Trigger:      models.PushEventKind,
		Branch:       push.Ref.Name,
		Revision:     push.Sha,
		ChangedFiles: c.pushChangedFiles(ctx, push),
	})
}

func (c *DefaultCommandRunner) RunPRCommand(ctx context.Context, pull PullRequest) {
	repo := pull.Pull.BaseRepo
	if pull.Pull.State == models.ClosedPullState {
		c.Logger.InfoContext(ctx, fmt.Sprintf("ignoring event for closed pull %s#%d", repo.FullName, pull.Pull.Num))
		return
	}
	if !c.allowed(ctx, repo) {
		return
	}

	files, err := c.FilesFetcher.GetModifiedFilesFromPR(ctx, repo, pull.Pull.Num)
	if err != nil {
		c.Logger.WarnContext(ctx, fmt.Sprintf("listing files of pull %d: %v, paths filters will pass", pull.Pull.Num, err))
		files = nil
	}

	c.runRequest(ctx, BuildRequest{
		Repo:         repo,
		Trigger:      models.PullRequestEventKind,
		Branch:       pull.Pull.BaseBranch,
		Revision:     pull.Pull.HeadCommit,
		Action:       pull.Action,
		PullNum:      pull.Pull.Num,
		ChangedFiles: files,
	})
}

func (c *DefaultCommandRunner) RunScheduleCommand(ctx context.Context, schedule Schedule) {
	if !c.allowed(ctx, schedule.Repo) {
		return
	}

	c.runRequest(ctx, BuildRequest{
		Repo:    schedule.Repo,
		Trigger: models.ScheduleEventKind,
		Branch:  schedule.Repo.DefaultBranch,
		// Scheduled runs always execute the tip of the default branch.
		Revision:      schedule.Repo.DefaultBranch,
		WorkflowPaths: []string{schedule.WorkflowPath},
	})
}

func (c *DefaultCommandRunner) runRequest(ctx context.Context, request BuildRequest) {
	plans, err := c.RunsBuilder.BuildRuns(ctx, request)
	if err != nil {
		c.Logger.ErrorContext(ctx, fmt.Sprintf("building runs for %s at %s: %v", request.Repo.FullName, request.Revision, err))
		c.Scope.Counter(metrics.ExecutionErrorMetric).Inc(1)
	}
	for _, plan := range plans {
		c.executePlan(ctx, plan)
	}
}

func (c *DefaultCommandRunner) executePlan(ctx context.Context, plan RunPlan) {
	run := plan.Run
	ctx = c.annotate(ctx, run)

	scope := c.Scope.Tagged(map[string]string{
		metrics.RepoTag:     run.Repo.FullName,
		metrics.WorkflowTag: run.Workflow,
		metrics.TriggerTag:  string(run.Trigger),
	})
	executionTime := scope.Timer(metrics.ExecutionTimeMetric).Start()
	defer executionTime.Stop()

	runCtx, done := c.StaleHandler.Begin(ctx, run)
	defer done()

	if err := c.StatusUpdater.UpdateRun(runCtx, run, models.PendingVcsStatus); err != nil {
		c.Logger.WarnContext(ctx, fmt.Sprintf("updating combined status: %v", err))
	}

	c.Executor.Execute(runCtx, plan)

	// Everything after execution still happens when the run got canceled
	// mid flight, on a context that outlives the cancellation.
	finalCtx := internalContext.CopyFields(context.Background(), ctx)

	if run.Status == models.CanceledRunStatus {
		c.Logger.InfoContext(finalCtx, fmt.Sprintf("run %s was superseded, leaving its statuses alone", run.ID))
	} else {
		status := models.SuccessVcsStatus
		if run.Status != models.SuccessRunStatus {
			status = models.FailedVcsStatus
		}
		if err := c.StatusUpdater.UpdateRun(finalCtx, run, status); err != nil {
			c.Logger.WarnContext(finalCtx, fmt.Sprintf("updating combined status: %v", err))
		}
	}

	if err := c.RunStore.Save(run); err != nil {
		c.Logger.ErrorContext(finalCtx, fmt.Sprintf("persisting run %s: %v", run.ID, err))
	}

	if err := c.Webhooks.Send(finalCtx, webhooks.RunResult{
		Repo:     run.Repo,
		Workflow: run.Workflow,
		Branch:   run.Branch,
		Revision: run.Revision,
		Trigger:  run.Trigger,
		Status:   run.Status,
		Duration: run.EndAt.Sub(run.CreateAt).Round(time.Second),
	}); err != nil {
		c.Logger.WarnContext(finalCtx, fmt.Sprintf("sending webhooks for run %s: %v", run.ID, err))
	}

	switch run.Status {
	case models.SuccessRunStatus:
		scope.Counter(metrics.ExecutionSuccessMetric).Inc(1)
	case models.FailedRunStatus:
		scope.Counter(metrics.ExecutionFailureMetric).Inc(1)
	}
}

// pushChangedFiles asks the host what the push touched. A freshly created
// branch has no previous revision to diff against, the head commit's files
// are the closest answer.
func (c *DefaultCommandRunner) pushChangedFiles(ctx context.Context, push Push) []string {
	var files []string
	var err error
	if push.Action == CreatedAction || isZeroSha(push.Before) {
		files, err = c.FilesFetcher.GetModifiedFilesFromCommit(ctx, push.Repo, push.Sha)
	} else {
		files, err = c.FilesFetcher.GetModifiedFilesFromCommitRange(ctx, push.Repo, push.Before, push.Sha)
	}
	if err != nil {
		c.Logger.WarnContext(ctx, fmt.Sprintf("listing changed files of %s: %v, paths filters will pass", push.Sha, err))
		return nil
	}
	return files
}

func (c *DefaultCommandRunner) allowed(ctx context.Context, repo models.Repo) bool {
	if c.AllowlistChecker.IsAllowlisted(repo.ID()) {
		return true
	}
	c.Logger.WarnContext(ctx, fmt.Sprintf("repo %s is not allowlisted, ignoring event", repo.ID()))
	return false
}

func (c *DefaultCommandRunner) annotate(ctx context.Context, run *models.WorkflowRun) context.Context {
	ctx = context.WithValue(ctx, internalContext.RepositoryKey, run.Repo.FullName)
	ctx = context.WithValue(ctx, internalContext.RevisionKey, run.Revision)
	ctx = context.WithValue(ctx, internalContext.WorkflowKey, run.Workflow)
	ctx = context.WithValue(ctx, internalContext.RunIDKey, run.ID)
	ctx = context.WithValue(ctx, internalContext.TriggerKey, string(run.Trigger))
	ctx = context.WithValue(ctx, internalContext.BranchKey, run.Branch)
	if run.PullNum != 0 {
		ctx = context.WithValue(ctx, internalContext.PullNumKey, run.PullNum)
	}
	return ctx
}

func isZeroSha(sha string) bool {
	return strings.Trim(sha, "0") == ""
}
