package cmd

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/greenlightci/greenlight/server/core/config"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/core/depcache"
	"github.com/greenlightci/greenlight/server/core/runtime"
	"github.com/greenlightci/greenlight/server/core/toolchain"
	"github.com/greenlightci/greenlight/server/core/trigger"
	"github.com/greenlightci/greenlight/server/events"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/feature"
	"github.com/greenlightci/greenlight/server/jobs"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/stow"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
)

// RunCmd executes the workflows of a repository on local disk the way a
// webhook delivery would, streaming job output to the terminal. No VCS
// host gets involved: statuses are discarded and changed files are
// unknown, so path filters pass.
type RunCmd struct {
	RepoDir    string           `arg:"" optional:"" type:"path" default:"." help:"Path to the repository to run workflows for."`
	Event      string           `default:"push" enum:"push,pull_request,schedule" help:"Event to simulate. Either push, pull_request, or schedule."`
	Branch     string           `default:"main" help:"Branch the simulated event refers to. For pull_request this is the base branch."`
	Revision   string           `default:"HEAD" help:"Revision to check out for the run."`
	Workflow   string           `help:"Only run the workflow at this path. A bare file name is resolved inside the workflows directory."`
	DataDir    string           `type:"path" default:"~/.greenlight" help:"${help_data_dir}"`
	RepoConfig string           `help:"${help_repo_config}"`
	LogLevel   logging.LogLevel `default:"info" help:"${help_log_level}"`
}

func (cmd *RunCmd) Run(ctx Context) error {
	ctxLogger, err := logging.NewLoggerFromLevel(cmd.LogLevel)
	if err != nil {
		return errors.Wrap(err, "failed to build context logger")
	}
	defer ctxLogger.Close()

	if err := os.MkdirAll(cmd.DataDir, 0700); err != nil {
		return err
	}

	globalCfg := valid.NewGlobalCfg(cmd.DataDir)
	parserValidator := &config.ParserValidator{}
	if cmd.RepoConfig != "" {
		globalCfg, err = parserValidator.ParseGlobalCfg(cmd.RepoConfig, globalCfg)
		if err != nil {
			return errors.Wrapf(err, "parsing %s file", cmd.RepoConfig)
		}
	}

	repoName := filepath.Base(cmd.RepoDir)
	repo := models.Repo{
		FullName:          fmt.Sprintf("local/%s", repoName),
		Owner:             "local",
		Name:              repoName,
		CloneURL:          cmd.RepoDir,
		SanitizedCloneURL: cmd.RepoDir,
		DefaultBranch:     cmd.Branch,
	}

	featureAllocator, err := feature.NewRepoAllocator()
	if err != nil {
		return errors.Wrap(err, "initializing feature allocator")
	}

	workingDir := &events.FileWorkspace{
		DataDir: cmd.DataDir,
		Logger:  ctxLogger,
	}
	outputHandler := &jobs.WriterOutputHandler{Writer: os.Stdout}

	cacheStorageClient, err := stow.NewClient(globalCfg.PersistenceConfig.DepCache)
	if err != nil {
		return errors.Wrap(err, "initializing stow client for dependency caches")
	}
	depCache := depcache.NewCache(cacheStorageClient, tally.NoopScope, ctxLogger)

	toolchainEnsurer := toolchain.NewEnsurer(globalCfg.Toolchains, filepath.Join(cmd.DataDir, "bin"), tally.NoopScope)
	stepsRunner := runtime.NewStepsRunner(
		outputHandler,
		&runtime.RunStepRunner{Streamer: outputHandler, DefaultShell: globalCfg.Shell},
		&runtime.CheckoutStepRunner{Cloner: workingDir},
		&runtime.SetupNodeStepRunner{Ensurer: toolchainEnsurer, Cache: depCache, Exec: toolchain.LocalExec{}},
		&runtime.SetupUvStepRunner{Ensurer: toolchainEnsurer},
		&runtime.CacheStepRunner{Cache: depCache},
	)

	jobRunner := &events.JobRunner{
		WorkingDir:       workingDir,
		StepsRunner:      stepsRunner,
		OutputHandler:    outputHandler,
		IDGenerator:      &jobs.IdGenerator{},
		URLGenerator:     localJobURLGenerator{},
		CacheSaver:       depCache,
		StatusUpdater:    &events.NoopStatusUpdater{},
		FeatureAllocator: featureAllocator,
		DefaultTimeout:   globalCfg.JobTimeout,
		PoolSize:         globalCfg.MaxParallelJobs,
		Logger:           ctxLogger,
	}

	runsBuilder := &events.DefaultRunsBuilder{
		WorkingDir:      workingDir,
		ParserValidator: parserValidator,
		Matcher:         &trigger.Matcher{},
		GlobalCfg:       globalCfg,
		Logger:          ctxLogger,
		Scope:           tally.NoopScope,
	}

	request := events.BuildRequest{
		Repo:     repo,
		Trigger:  models.EventKind(cmd.Event),
		Branch:   cmd.Branch,
		Revision: cmd.Revision,
	}
	if request.Trigger == models.PullRequestEventKind {
		// Matches the default activity types of pull_request triggers.
		request.Action = "opened"
		request.PullNum = 1
	}
	if cmd.Workflow != "" {
		workflowPath := cmd.Workflow
		if !strings.ContainsRune(workflowPath, '/') {
			settings := globalCfg.RepoSettings(repo.ID())
			workflowPath = path.Join(settings.WorkflowsPath, workflowPath)
		}
		request.WorkflowPaths = []string{workflowPath}
	}

	runCtx := context.Background()
	plans, err := runsBuilder.BuildRuns(runCtx, request)
	if err != nil {
		return errors.Wrap(err, "building workflow runs")
	}
	if len(plans) == 0 {
		fmt.Printf("no workflows match a %s event on branch %s\n", cmd.Event, cmd.Branch)
		return nil
	}

	failed := 0
	for _, plan := range plans {
		fmt.Printf("==> running %s (%s)\n", plan.Run.Workflow, plan.Run.WorkflowPath)
		jobRunner.Execute(runCtx, plan)
		fmt.Printf("==> %s: %s\n", plan.Run.Workflow, plan.Run.Status)
		if plan.Run.Status != models.SuccessRunStatus {
			failed++
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d workflow runs failed", failed, len(plans))
	}
	return nil
}

// localJobURLGenerator stands in for the jobs route of a running server.
// One-shot runs stream to the terminal, their job logs have no URL.
type localJobURLGenerator struct{}

func (g localJobURLGenerator) GenerateJobURL(jobID string) (string, error) {
	return "", nil
}
