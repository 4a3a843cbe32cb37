package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/greenlightci/greenlight/server/events"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/vcs"
	"github.com/greenlightci/greenlight/server/webhooks"
	. "github.com/greenlightci/greenlight/testing"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
)

type fakeRunsBuilder struct {
	requests []events.BuildRequest
	plans    []events.RunPlan
	err      error
}

func (f *fakeRunsBuilder) BuildRuns(ctx context.Context, request events.BuildRequest) ([]events.RunPlan, error) {
	f.requests = append(f.requests, request)
	return f.plans, f.err
}

type fakeExecutor struct {
	executed []events.RunPlan
	status   models.RunStatus
}

func (f *fakeExecutor) Execute(ctx context.Context, plan events.RunPlan) {
	f.executed = append(f.executed, plan)
	plan.Run.Status = f.status
	plan.Run.EndAt = plan.Run.CreateAt.Add(90 * time.Second)
}

type fakeFilesFetcher struct {
	commitCalls []string
	rangeCalls  []string
	prCalls     []int
	files       []string
	err         error
}

func (f *fakeFilesFetcher) GetModifiedFilesFromCommit(ctx context.Context, repo models.Repo, sha string) ([]string, error) {
	f.commitCalls = append(f.commitCalls, sha)
	return f.files, f.err
}

func (f *fakeFilesFetcher) GetModifiedFilesFromCommitRange(ctx context.Context, repo models.Repo, base string, head string) ([]string, error) {
	f.rangeCalls = append(f.rangeCalls, base+".."+head)
	return f.files, f.err
}

func (f *fakeFilesFetcher) GetModifiedFilesFromPR(ctx context.Context, repo models.Repo, pullNum int) ([]string, error) {
	f.prCalls = append(f.prCalls, pullNum)
	return f.files, f.err
}

type memoryRunStore struct {
	saved []*models.WorkflowRun
}

func (m *memoryRunStore) Save(run *models.WorkflowRun) error {
	m.saved = append(m.saved, run)
	return nil
}

type recordingWebhooks struct {
	results []webhooks.RunResult
}

func (r *recordingWebhooks) Send(ctx context.Context, result webhooks.RunResult) error {
	r.results = append(r.results, result)
	return nil
}

type commandRunnerDeps struct {
	builder  *fakeRunsBuilder
	executor *fakeExecutor
	fetcher  *fakeFilesFetcher
	statuses *recordingCommitStatuses
	store    *memoryRunStore
	hooks    *recordingWebhooks
	scope    tally.TestScope
}

func newCommandRunner(t *testing.T, deps *commandRunnerDeps) *events.DefaultCommandRunner {
	allowlist, err := events.NewRepoAllowlistChecker("github.com/octocat/*")
	Ok(t, err)
	deps.scope = tally.NewTestScope("test", nil)
	return &events.DefaultCommandRunner{
		AllowlistChecker: allowlist,
		FilesFetcher:     deps.fetcher,
		RunsBuilder:      deps.builder,
		Executor:         deps.executor,
		StaleHandler:     &events.StaleRunHandler{Scope: tally.NoopScope, Logger: logging.NewNoopCtxLogger(t)},
		StatusUpdater:    deps.statuses,
		RunStore:         deps.store,
		Webhooks:         deps.hooks,
		Logger:           logging.NewNoopCtxLogger(t),
		Scope:            deps.scope,
	}
}

func commandDeps(plans ...events.RunPlan) *commandRunnerDeps {
	return &commandRunnerDeps{
		builder:  &fakeRunsBuilder{plans: plans},
		executor: &fakeExecutor{status: models.SuccessRunStatus},
		fetcher:  &fakeFilesFetcher{files: []string{"main.go"}},
		statuses: &recordingCommitStatuses{},
		store:    &memoryRunStore{},
		hooks:    &recordingWebhooks{},
	}
}

func testPush() events.Push {
	return events.Push{
		Repo: models.Repo{
			FullName:      "octocat/hello-world",
			Owner:         "octocat",
			Name:          "hello-world",
			DefaultBranch: "main",
		},
		Ref:    vcs.Ref{Type: vcs.BranchRef, Name: "main"},
		Before: "aaaa000000000000000000000000000000000000",
		Sha:    "6dcb09b5b57875f334f61aebed695e2e4193db5e",
		Action: events.UpdatedAction,
	}
}

func TestCommandRunner_PushExecutesMatchingRuns(t *testing.T) {
	deps := commandDeps(jobRunnerPlan())
	runner := newCommandRunner(t, deps)

	runner.RunPushCommand(context.Background(), testPush())

	Equals(t, 1, len(deps.builder.requests))
	request := deps.builder.requests[0]
	Equals(t, models.PushEventKind, request.Trigger)
	Equals(t, "main", request.Branch)
	Equals(t, "6dcb09b5b57875f334f61aebed695e2e4193db5e", request.Revision)
	Equals(t, []string{"main.go"}, request.ChangedFiles)
	Equals(t, []string{"aaaa000000000000000000000000000000000000..6dcb09b5b57875f334f61aebed695e2e4193db5e"}, deps.fetcher.rangeCalls)

	Equals(t, 1, len(deps.executor.executed))
	Equals(t, []string{"run:pending", "run:success"}, deps.statuses.all())
	Equals(t, 1, len(deps.store.saved))
	Equals(t, models.SuccessRunStatus, deps.store.saved[0].Status)

	Equals(t, 1, len(deps.hooks.results))
	Equals(t, models.SuccessRunStatus, deps.hooks.results[0].Status)
	Equals(t, 90*time.Second, deps.hooks.results[0].Duration)

	counters := deps.scope.Snapshot().Counters()
	Equals(t, int64(1), counters["test.execution_success+repo=octocat/hello-world,trigger=push,workflow=ci"].Value())
}

func TestCommandRunner_NewBranchDiffsHeadCommit(t *testing.T) {
	deps := commandDeps(jobRunnerPlan())
	runner := newCommandRunner(t, deps)

	push := testPush()
	push.Before = "0000000000000000000000000000000000000000"
	runner.RunPushCommand(context.Background(), push)

	Equals(t, []string{"6dcb09b5b57875f334f61aebed695e2e4193db5e"}, deps.fetcher.commitCalls)
	Equals(t, 0, len(deps.fetcher.rangeCalls))
}

func TestCommandRunner_DeletionPushIgnored(t *testing.T) {
	deps := commandDeps()
	runner := newCommandRunner(t, deps)

	push := testPush()
	push.Action = events.DeletedAction
	runner.RunPushCommand(context.Background(), push)

	Equals(t, 0, len(deps.builder.requests))
}

func TestCommandRunner_TagPushIgnored(t *testing.T) {
	deps := commandDeps()
	runner := newCommandRunner(t, deps)

	push := testPush()
	push.Ref = vcs.Ref{Type: vcs.TagRef, Name: "v1.0.0"}
	runner.RunPushCommand(context.Background(), push)

	Equals(t, 0, len(deps.builder.requests))
}

func TestCommandRunner_RepoOutsideAllowlistIgnored(t *testing.T) {
	deps := commandDeps()
	runner := newCommandRunner(t, deps)

	push := testPush()
	push.Repo.FullName = "acme/hello-world"
	push.Repo.Owner = "acme"
	runner.RunPushCommand(context.Background(), push)

	Equals(t, 0, len(deps.builder.requests))
}

func TestCommandRunner_FileListingFailurePassesFilters(t *testing.T) {
	deps := commandDeps(jobRunnerPlan())
	deps.fetcher.err = errors.New("api down")
	runner := newCommandRunner(t, deps)

	runner.RunPushCommand(context.Background(), testPush())

	Equals(t, 1, len(deps.builder.requests))
	Assert(t, deps.builder.requests[0].ChangedFiles == nil, "expected unknown changed files to stay nil")
}

func TestCommandRunner_PullRequest(t *testing.T) {
	deps := commandDeps(jobRunnerPlan())
	runner := newCommandRunner(t, deps)

	runner.RunPRCommand(context.Background(), events.PullRequest{
		Pull: models.PullRequest{
			Num:        12,
			HeadCommit: "6dcb09b5b57875f334f61aebed695e2e4193db5e",
			HeadBranch: "feature",
			BaseBranch: "main",
			State:      models.OpenPullState,
			BaseRepo:   testPush().Repo,
		},
		Action: "opened",
	})

	Equals(t, 1, len(deps.builder.requests))
	request := deps.builder.requests[0]
	Equals(t, models.PullRequestEventKind, request.Trigger)
	Equals(t, "main", request.Branch)
	Equals(t, "6dcb09b5b57875f334f61aebed695e2e4193db5e", request.Revision)
	Equals(t, "opened", request.Action)
	Equals(t, 12, request.PullNum)
	Equals(t, []int{12}, deps.fetcher.prCalls)
}

func TestCommandRunner_ClosedPullRequestIgnored(t *testing.T) {
	deps := commandDeps()
	runner := newCommandRunner(t, deps)

	runner.RunPRCommand(context.Background(), events.PullRequest{
		Pull: models.PullRequest{
			Num:      12,
			State:    models.ClosedPullState,
			BaseRepo: testPush().Repo,
		},
		Action: "closed",
	})

	Equals(t, 0, len(deps.builder.requests))
}

func TestCommandRunner_Schedule(t *testing.T) {
	deps := commandDeps(jobRunnerPlan())
	runner := newCommandRunner(t, deps)

	runner.RunScheduleCommand(context.Background(), events.Schedule{
		Repo:         testPush().Repo,
		WorkflowPath: ".github/workflows/nightly.yml",
	})

	Equals(t, 1, len(deps.builder.requests))
	request := deps.builder.requests[0]
	Equals(t, models.ScheduleEventKind, request.Trigger)
	Equals(t, "main", request.Branch)
	Equals(t, "main", request.Revision)
	Equals(t, []string{".github/workflows/nightly.yml"}, request.WorkflowPaths)
}

func TestCommandRunner_FailedRun(t *testing.T) {
	deps := commandDeps(jobRunnerPlan())
	deps.executor.status = models.FailedRunStatus
	runner := newCommandRunner(t, deps)

	runner.RunPushCommand(context.Background(), testPush())

	Equals(t, []string{"run:pending", "run:failed"}, deps.statuses.all())
	Equals(t, models.FailedRunStatus, deps.hooks.results[0].Status)
	counters := deps.scope.Snapshot().Counters()
	Equals(t, int64(1), counters["test.execution_failure+repo=octocat/hello-world,trigger=push,workflow=ci"].Value())
}

func TestCommandRunner_SupersededRunKeepsPendingStatus(t *testing.T) {
	deps := commandDeps(jobRunnerPlan())
	deps.executor.status = models.CanceledRunStatus
	runner := newCommandRunner(t, deps)

	runner.RunPushCommand(context.Background(), testPush())

	// The superseding revision's run owns the final status.
	Equals(t, []string{"run:pending"}, deps.statuses.all())
	Equals(t, 1, len(deps.store.saved))
	Equals(t, models.CanceledRunStatus, deps.store.saved[0].Status)
}

func TestCommandRunner_BuilderFailureCounted(t *testing.T) {
	deps := commandDeps(jobRunnerPlan())
	deps.builder.err = errors.New("ci.yml: job \"train\" wants a runner with labels [gpu-large]")
	runner := newCommandRunner(t, deps)

	runner.RunPushCommand(context.Background(), testPush())

	// Plans built before the failure still execute.
	Equals(t, 1, len(deps.executor.executed))
	counters := deps.scope.Snapshot().Counters()
	Equals(t, int64(1), counters["test.execution_error+"].Value())
}
