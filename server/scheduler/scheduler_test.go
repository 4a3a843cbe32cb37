package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/greenlightci/greenlight/server/core/config"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/events"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/logging"
	. "github.com/greenlightci/greenlight/testing"
	"github.com/pkg/errors"
)

var nightlyWorkflow = `
name: nightly
on:
  schedule:
    - cron: "0 3 * * *"
    - cron: "0 15 * * *"
jobs:
  soak:
    runs-on: ubuntu-latest
    steps:
      - run: npm test
`

var ciWorkflow = `
name: ci
on:
  push:
    branches: [main]
jobs:
  test:
    runs-on: ubuntu-latest
    steps:
      - run: npm test
`

type fakeResolver struct {
	repos map[string]models.Repo
	err   error
}

func (f *fakeResolver) Fetch(ctx context.Context, owner string, name string) (models.Repo, error) {
	if f.err != nil {
		return models.Repo{}, f.err
	}
	return f.repos[owner+"/"+name], nil
}

// scheduleWorkspace materializes canned workflow files instead of cloning.
type scheduleWorkspace struct {
	dataDir   string
	workflows map[string]string
}

func (w *scheduleWorkspace) Clone(repo models.Repo, revision string, destination string, depth int) error {
	dir := filepath.Join(destination, ".github", "workflows")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	for name, data := range w.workflows {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0600); err != nil {
			return err
		}
	}
	return nil
}

func (w *scheduleWorkspace) DeleteClone(filePath string) error {
	return os.RemoveAll(filePath)
}

func (w *scheduleWorkspace) GenerateDirPath(repoName string) string {
	return filepath.Join(w.dataDir, "repos", repoName, "discovery")
}

type recordingCommandRunner struct {
	schedules []events.Schedule
}

func (r *recordingCommandRunner) RunPushCommand(ctx context.Context, push events.Push) {}

func (r *recordingCommandRunner) RunPRCommand(ctx context.Context, pull events.PullRequest) {}

func (r *recordingCommandRunner) RunScheduleCommand(ctx context.Context, schedule events.Schedule) {
	r.schedules = append(r.schedules, schedule)
}

func newScheduler(t *testing.T, dataDir string, workflows map[string]string, runner *recordingCommandRunner) *Scheduler {
	repo := models.Repo{
		FullName:      "octocat/hello-world",
		Owner:         "octocat",
		Name:          "hello-world",
		DefaultBranch: "main",
	}
	globalCfg := valid.NewGlobalCfg(dataDir)
	globalCfg.Repos = append(globalCfg.Repos, valid.Repo{ID: "github.com/octocat/hello-world"})

	return &Scheduler{
		Resolver:        &fakeResolver{repos: map[string]models.Repo{"octocat/hello-world": repo}},
		CommandRunner:   runner,
		WorkingDir:      &scheduleWorkspace{dataDir: dataDir, workflows: workflows},
		ParserValidator: &config.ParserValidator{},
		GlobalCfg:       globalCfg,
		Logger:          logging.NewNoopCtxLogger(t),
	}
}

func TestScheduler_RegistersConfiguredSchedules(t *testing.T) {
	dataDir, cleanup := TempDir(t)
	defer cleanup()
	runner := &recordingCommandRunner{}
	s := newScheduler(t, dataDir, map[string]string{
		"nightly.yml": nightlyWorkflow,
		"ci.yml":      ciWorkflow,
	}, runner)

	s.Start(context.Background())
	defer s.Stop()

	// Two cron lines in nightly.yml, the push-only workflow contributes
	// nothing.
	Equals(t, 2, s.Scheduled())
}

func TestScheduler_TickHandsScheduleToCommandRunner(t *testing.T) {
	dataDir, cleanup := TempDir(t)
	defer cleanup()
	runner := &recordingCommandRunner{}
	s := newScheduler(t, dataDir, nil, runner)

	repo := models.Repo{FullName: "octocat/hello-world", DefaultBranch: "main"}
	s.tick(entry{repo: repo, path: ".github/workflows/nightly.yml", spec: "0 3 * * *"})

	Equals(t, 1, len(runner.schedules))
	Equals(t, repo, runner.schedules[0].Repo)
	Equals(t, ".github/workflows/nightly.yml", runner.schedules[0].WorkflowPath)
	Assert(t, !runner.schedules[0].Timestamp.IsZero(), "expected the tick timestamp to be set")
}

func TestScheduler_ResolverFailureSkipsRepo(t *testing.T) {
	dataDir, cleanup := TempDir(t)
	defer cleanup()
	runner := &recordingCommandRunner{}
	s := newScheduler(t, dataDir, map[string]string{"nightly.yml": nightlyWorkflow}, runner)
	s.Resolver = &fakeResolver{err: errors.New("github unreachable")}

	s.Start(context.Background())
	defer s.Stop()

	Equals(t, 0, s.Scheduled())
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	dataDir, cleanup := TempDir(t)
	defer cleanup()
	s := newScheduler(t, dataDir, nil, &recordingCommandRunner{})

	s.Start(context.Background())
	s.Stop()
	s.Stop()
	Equals(t, 0, s.Scheduled())
}

func TestScheduler_ResyncPicksUpNewSchedules(t *testing.T) {
	dataDir, cleanup := TempDir(t)
	defer cleanup()
	runner := &recordingCommandRunner{}
	workspace := &scheduleWorkspace{dataDir: dataDir, workflows: map[string]string{"ci.yml": ciWorkflow}}
	s := newScheduler(t, dataDir, nil, runner)
	s.WorkingDir = workspace
	s.SyncInterval = time.Hour

	s.Start(context.Background())
	defer s.Stop()
	Equals(t, 0, s.Scheduled())

	workspace.workflows["nightly.yml"] = nightlyWorkflow
	s.sync(context.Background())
	Equals(t, 2, s.Scheduled())
}
