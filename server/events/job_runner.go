package events

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	internalContext "github.com/greenlightci/greenlight/server/context"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/core/runtime"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/feature"
	"github.com/greenlightci/greenlight/server/jobs"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/remeh/sizedwaitgroup"
)

// JobIDGenerator hands out the IDs job output streams are keyed by.
type JobIDGenerator interface {
	GenerateID() string
}

// JobURLGenerator builds the externally reachable URL of a job's logs.
type JobURLGenerator interface {
	GenerateJobURL(jobID string) (string, error)
}

// CacheSaver uploads a dependency cache directory under a key.
type CacheSaver interface {
	Save(ctx context.Context, key string, dir string) error
}

// RunExecutor executes every job of one planned run and finalizes the
// run record.
type RunExecutor interface {
	Execute(ctx context.Context, plan RunPlan)
}

// JobRunner implements RunExecutor. Jobs run level by level through a
// bounded pool, steps within a job run sequentially.
type JobRunner struct {
	WorkingDir       WorkingDir
	StepsRunner      runtime.StepsRunner
	OutputHandler    jobs.OutputHandler
	IDGenerator      JobIDGenerator
	URLGenerator     JobURLGenerator
	CacheSaver       CacheSaver
	StatusUpdater    CommitStatusUpdater
	FeatureAllocator feature.Allocator
	// DefaultTimeout bounds jobs that declare no timeout of their own.
	DefaultTimeout time.Duration
	// PoolSize caps how many jobs of one level run concurrently.
	PoolSize int
	Logger   logging.Logger
}

// Execute records job, step and run outcomes on plan.Run.
func (r *JobRunner) Execute(ctx context.Context, plan RunPlan) {
	run := plan.Run
	run.Status = models.RunningRunStatus

	halted := map[string]bool{}
	for _, level := range plan.Workflow.JobLevels() {
		r.runLevel(ctx, plan, level, halted)
	}

	run.Status = models.SuccessRunStatus
	for i := range run.Jobs {
		if run.Jobs[i].Status == models.FailedRunStatus {
			run.Status = models.FailedRunStatus
			break
		}
	}
	if ctx.Err() != nil {
		// The run was superseded or shut down mid flight.
		run.Status = models.CanceledRunStatus
	}
	run.EndAt = time.Now()
}

// runLevel skips jobs whose dependencies didn't succeed and pushes the
// rest through the pool.
func (r *JobRunner) runLevel(ctx context.Context, plan RunPlan, level []valid.Job, halted map[string]bool) {
	var runnable []valid.Job
	for _, job := range level {
		if failedDep := haltedDependency(job, halted); failedDep != "" {
			halted[job.ID] = true
			findJobRun(plan.Run, job.ID).Status = models.SkippedRunStatus
			r.Logger.InfoContext(ctx, fmt.Sprintf("skipping job %q, needs %q which didn't succeed", job.ID, failedDep))
			continue
		}
		runnable = append(runnable, job)
	}

	mux := &sync.Mutex{}
	wg := sizedwaitgroup.New(r.PoolSize)
	for _, job := range runnable {
		job := job
		wg.Add()

		execute := func() {
			defer wg.Done()
			result := r.runJob(ctx, plan, job)
			mux.Lock()
			*findJobRun(plan.Run, job.ID) = result
			if result.Status != models.SuccessRunStatus {
				halted[job.ID] = true
			}
			mux.Unlock()
		}

		go execute()
	}
	wg.Wait()
}

func (r *JobRunner) runJob(ctx context.Context, plan RunPlan, job valid.Job) models.JobRun {
	run := plan.Run
	jobID := r.IDGenerator.GenerateID()
	record := models.JobRun{
		Name:     job.ID,
		OutputID: jobID,
		Status:   models.RunningRunStatus,
		StartAt:  time.Now(),
	}

	ctx = context.WithValue(ctx, internalContext.JobKey, job.ID)

	timeout := job.Timeout
	if timeout == 0 {
		timeout = r.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Statuses and the output flush still have to go out once the job
	// context is canceled.
	finalCtx := internalContext.CopyFields(context.Background(), ctx)

	jobURL := r.jobURL(ctx, run, jobID)
	r.updateJobStatus(ctx, run, job.ID, models.PendingVcsStatus, jobURL)

	path := r.WorkingDir.GenerateDirPath(run.Repo.FullName)
	if err := os.MkdirAll(path, 0700); err != nil {
		r.Logger.ErrorContext(ctx, fmt.Sprintf("creating job directory: %v", err))
		record.Status = models.FailedRunStatus
		record.EndAt = time.Now()
		r.updateJobStatus(finalCtx, run, job.ID, models.FailedVcsStatus, jobURL)
		return record
	}
	defer func() {
		if err := r.WorkingDir.DeleteClone(path); err != nil {
			r.Logger.WarnContext(finalCtx, fmt.Sprintf("cleaning up job directory %s: %v", path, err))
		}
	}()

	jobCtx := runtime.JobContext{
		Log:           r.Logger,
		Repo:          run.Repo,
		Revision:      run.Revision,
		Branch:        run.Branch,
		CheckoutDepth: plan.CheckoutDepth,
		JobID:         jobID,
		Path:          path,
		JobEnv:        job.Env,
		Envs:          map[string]string{},
		Caches:        &runtime.CachePlan{},
		CacheEnabled:  r.allocated(ctx, feature.DepCache, run.Repo.FullName),
	}

	r.OutputHandler.Send(jobID, fmt.Sprintf("greenlight: running job %q of workflow %q for %s at %s", job.ID, run.Workflow, run.Repo.FullName, run.Revision))

	stepResults, runErr := r.StepsRunner.Run(ctx, jobCtx, job.Steps)
	record.Steps = stepResults
	record.EndAt = time.Now()

	if runErr != nil {
		record.Status = models.FailedRunStatus
		r.Logger.ErrorContext(finalCtx, fmt.Sprintf("running job %q: %v", job.ID, runErr))
		r.OutputHandler.Send(jobID, fmt.Sprintf("greenlight: job failed: %v", runErr))
	} else {
		record.Status = models.SuccessRunStatus
		r.saveCaches(finalCtx, jobCtx)
	}

	// Persist the buffered output and drop live receivers.
	r.OutputHandler.Close(finalCtx, jobID)

	vcsStatus := models.SuccessVcsStatus
	if record.Status != models.SuccessRunStatus {
		vcsStatus = models.FailedVcsStatus
	}
	r.updateJobStatus(finalCtx, run, job.ID, vcsStatus, jobURL)

	return record
}

// jobURL is empty when log streaming is not allocated for the repo, so
// statuses carry no dead link.
func (r *JobRunner) jobURL(ctx context.Context, run *models.WorkflowRun, jobID string) string {
	if !r.allocated(ctx, feature.LogStreaming, run.Repo.FullName) {
		return ""
	}
	jobURL, err := r.URLGenerator.GenerateJobURL(jobID)
	if err != nil {
		r.Logger.WarnContext(ctx, fmt.Sprintf("generating job url: %v", err))
	}
	return jobURL
}

func (r *JobRunner) allocated(ctx context.Context, name feature.Name, fullRepoName string) bool {
	allocated, err := r.FeatureAllocator.ShouldAllocate(name, fullRepoName)
	if err != nil {
		r.Logger.WarnContext(ctx, fmt.Sprintf("unable to allocate for feature: %s, error: %s", name, err))
	}
	return allocated
}

func (r *JobRunner) updateJobStatus(ctx context.Context, run *models.WorkflowRun, jobName string, status models.VcsStatus, url string) {
	if err := r.StatusUpdater.UpdateJob(ctx, run, jobName, status, url); err != nil {
		r.Logger.WarnContext(ctx, fmt.Sprintf("unable to update status of job %q: %v", jobName, err))
	}
}

func (r *JobRunner) saveCaches(ctx context.Context, jobCtx runtime.JobContext) {
	for _, save := range jobCtx.Caches.Saves {
		// cache saves are best effort, a failed upload never fails the run
		if err := r.CacheSaver.Save(ctx, save.Key, save.Dir); err != nil {
			r.Logger.WarnContext(ctx, fmt.Sprintf("saving cache %s from %s: %v", save.Key, save.Dir, err))
		}
	}
}

func haltedDependency(job valid.Job, halted map[string]bool) string {
	for _, dep := range job.Needs {
		if halted[dep] {
			return dep
		}
	}
	return ""
}

func findJobRun(run *models.WorkflowRun, name string) *models.JobRun {
	for i := range run.Jobs {
		if run.Jobs[i].Name == name {
			return &run.Jobs[i]
		}
	}
	run.Jobs = append(run.Jobs, models.JobRun{Name: name})
	return &run.Jobs[len(run.Jobs)-1]
}
