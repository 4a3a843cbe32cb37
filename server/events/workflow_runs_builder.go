package events

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/pkg/fileutils"
	"github.com/google/uuid"
	"github.com/greenlightci/greenlight/server/core/config"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/core/trigger"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
)

// BuildRequest carries the trigger-relevant slice of an intake event.
type BuildRequest struct {
	Repo     models.Repo
	Trigger  models.EventKind
	Branch   string
	Revision string
	// Action is the pull request activity type, ex. "opened".
	Action string
	// PullNum is set for pull_request triggers.
	PullNum int
	// ChangedFiles are the paths the event touched. nil means unknown,
	// which passes path filters.
	ChangedFiles []string
	// WorkflowPaths restricts discovery to these files when non-empty.
	// Schedule ticks name exactly one.
	WorkflowPaths []string
}

// RunPlan pairs a built run record with the workflow definition executing
// it needs.
type RunPlan struct {
	Run      *models.WorkflowRun
	Workflow valid.Workflow
	// CheckoutDepth is the clone depth checkout steps of this repo use.
	CheckoutDepth int
}

// RunsBuilder turns one intake event into the workflow runs it triggers.
type RunsBuilder interface {
	BuildRuns(ctx context.Context, request BuildRequest) ([]RunPlan, error)
}

// DefaultRunsBuilder implements RunsBuilder by cloning the repo at the
// event's revision and evaluating every discovered workflow's triggers.
type DefaultRunsBuilder struct {
	WorkingDir      WorkingDir
	ParserValidator *config.ParserValidator
	Matcher         *trigger.Matcher
	// IgnoreFiles drops matching changed files before trigger evaluation.
	// nil disables the filter.
	IgnoreFiles *fileutils.PatternMatcher
	GlobalCfg   valid.GlobalCfg
	Logger      logging.Logger
	Scope       tally.Scope
}

func (b *DefaultRunsBuilder) BuildRuns(ctx context.Context, request BuildRequest) ([]RunPlan, error) {
	settings := b.GlobalCfg.RepoSettings(request.Repo.ID())

	cloneDir := b.WorkingDir.GenerateDirPath(request.Repo.FullName)
	if err := b.WorkingDir.Clone(request.Repo, request.Revision, cloneDir, settings.CheckoutDepth); err != nil {
		return nil, errors.Wrap(err, "cloning for workflow discovery")
	}
	defer func() {
		if err := b.WorkingDir.DeleteClone(cloneDir); err != nil {
			b.Logger.WarnContext(ctx, fmt.Sprintf("deleting discovery clone %s: %v", cloneDir, err))
		}
	}()

	hasWorkflows, err := b.ParserValidator.HasWorkflows(cloneDir, settings.WorkflowsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "looking for workflow files under %s", settings.WorkflowsPath)
	}
	if !hasWorkflows {
		return nil, nil
	}

	workflows, err := b.ParserValidator.ParseWorkflowsDir(cloneDir, settings.WorkflowsPath)
	if err != nil {
		return nil, errors.Wrap(err, "parsing workflow files")
	}

	event := trigger.Event{
		Kind:         request.Trigger,
		Branch:       request.Branch,
		Action:       request.Action,
		ChangedFiles: b.ignoreFiltered(request.ChangedFiles),
	}

	var plans []RunPlan
	var buildErrs *multierror.Error
	for _, workflow := range workflows {
		if len(request.WorkflowPaths) > 0 && !containsString(request.WorkflowPaths, workflow.Path) {
			continue
		}

		matches, err := b.Matcher.Matches(workflow, event)
		if err != nil {
			buildErrs = multierror.Append(buildErrs, errors.Wrapf(err, "evaluating triggers of %s", workflow.Path))
			continue
		}
		if !matches {
			b.Scope.Counter(metrics.TriggerSkipMetric).Inc(1)
			continue
		}
		b.Scope.Counter(metrics.TriggerMatchMetric).Inc(1)

		if err := b.validateRunners(workflow); err != nil {
			buildErrs = multierror.Append(buildErrs, err)
			continue
		}

		plans = append(plans, RunPlan{
			Run:           b.newRun(workflow, request),
			Workflow:      workflow,
			CheckoutDepth: settings.CheckoutDepth,
		})
	}
	return plans, buildErrs.ErrorOrNil()
}

// ignoreFiltered drops changed files matching the ignore patterns. Files
// whose match errors are kept. A nil list stays nil so unknown file sets
// still pass path filters.
func (b *DefaultRunsBuilder) ignoreFiltered(files []string) []string {
	if b.IgnoreFiles == nil || files == nil {
		return files
	}
	kept := make([]string, 0, len(files))
	for _, file := range files {
		ignored, err := b.IgnoreFiles.Matches(file)
		if err != nil {
			kept = append(kept, file)
			continue
		}
		if !ignored {
			kept = append(kept, file)
		}
	}
	return kept
}

func (b *DefaultRunsBuilder) newRun(workflow valid.Workflow, request BuildRequest) *models.WorkflowRun {
	jobs := make([]models.JobRun, 0, len(workflow.Jobs))
	for _, job := range workflow.Jobs {
		jobs = append(jobs, models.JobRun{
			Name:   job.ID,
			Status: models.PendingRunStatus,
		})
	}

	return &models.WorkflowRun{
		ID:           uuid.New().String(),
		Workflow:     workflow.Name,
		WorkflowPath: workflow.Path,
		Repo:         request.Repo,
		Trigger:      request.Trigger,
		Branch:       request.Branch,
		Revision:     request.Revision,
		PullNum:      request.PullNum,
		Status:       models.PendingRunStatus,
		Jobs:         jobs,
		CreateAt:     time.Now(),
	}
}

// validateRunners rejects workflows asking for runner labels this server
// doesn't carry. A job matches when at least one of its labels is
// configured.
func (b *DefaultRunsBuilder) validateRunners(workflow valid.Workflow) error {
	for _, job := range workflow.Jobs {
		if len(job.RunsOn) == 0 {
			continue
		}
		if !b.acceptsAnyLabel(job.RunsOn) {
			return errors.Errorf("%s: job %q wants a runner with labels %v, this runner has %v",
				workflow.Path, job.ID, job.RunsOn, b.GlobalCfg.RunnerLabels)
		}
	}
	return nil
}

func (b *DefaultRunsBuilder) acceptsAnyLabel(labels []string) bool {
	for _, label := range labels {
		if containsString(b.GlobalCfg.RunnerLabels, label) {
			return true
		}
	}
	return false
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
