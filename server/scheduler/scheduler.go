// Package scheduler ticks the schedule triggers declared in the workflows
// of configured repos.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/greenlightci/greenlight/server/core/config"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/events"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/robfig/cron"
)

// DefaultSyncInterval is how often workflow files are re-read for changed
// schedules.
const DefaultSyncInterval = 10 * time.Minute

// RepoResolver turns a repo full name into a clonable repo.
type RepoResolver interface {
	Fetch(ctx context.Context, owner string, name string) (models.Repo, error)
}

// Scheduler discovers schedule triggers in the workflows of explicitly
// configured repos and hands every cron tick to the command runner.
// Allowlist wildcards can't be enumerated, so scheduling a repo takes a
// concrete repo ID in the server config.
type Scheduler struct {
	Resolver        RepoResolver
	CommandRunner   events.CommandRunner
	WorkingDir      events.WorkingDir
	ParserValidator *config.ParserValidator
	GlobalCfg       valid.GlobalCfg
	Logger          logging.Logger
	SyncInterval    time.Duration

	mutex   sync.Mutex
	current *cron.Cron
	done    chan struct{}
	stopped bool
}

type entry struct {
	repo models.Repo
	path string
	spec string
}

// Start registers the configured schedules and keeps them in sync until
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	s.done = make(chan struct{})
	s.stopped = false
	s.mutex.Unlock()

	s.sync(ctx)
	go s.resyncLoop(ctx)
}

// Stop halts ticking and the resync loop.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.done != nil {
		close(s.done)
	}
	if s.current != nil {
		s.current.Stop()
		s.current = nil
	}
}

// Scheduled returns the number of registered cron entries.
func (s *Scheduler) Scheduled() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.current == nil {
		return 0
	}
	return len(s.current.Entries())
}

func (s *Scheduler) resyncLoop(ctx context.Context) {
	interval := s.SyncInterval
	if interval == 0 {
		interval = DefaultSyncInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sync(ctx)
		}
	}
}

// sync rebuilds the cron table from the workflow files at each configured
// repo's default branch tip.
func (s *Scheduler) sync(ctx context.Context) {
	next := cron.New()
	count := 0
	for _, e := range s.discover(ctx) {
		schedule, err := cron.ParseStandard(e.spec)
		if err != nil {
			// Workflow validation rejects bad specs before they get here.
			s.Logger.WarnContext(ctx, fmt.Sprintf("skipping cron %q of %s: %v", e.spec, e.path, err))
			continue
		}
		e := e
		next.Schedule(schedule, cron.FuncJob(func() { s.tick(e) }))
		count++
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.stopped {
		return
	}
	if s.current != nil {
		s.current.Stop()
	}
	s.current = next
	next.Start()
	s.Logger.InfoContext(ctx, fmt.Sprintf("scheduling %d cron entries", count))
}

func (s *Scheduler) discover(ctx context.Context) []entry {
	var entries []entry
	for _, repoCfg := range s.GlobalCfg.Repos {
		if repoCfg.ID == "" {
			continue
		}
		fullName := strings.TrimPrefix(repoCfg.ID, "github.com/")
		owner, name := models.SplitRepoFullName(fullName)
		if owner == "" || name == "" {
			s.Logger.WarnContext(ctx, fmt.Sprintf("can't schedule %q, expected github.com/owner/repo", repoCfg.ID))
			continue
		}
		repo, err := s.Resolver.Fetch(ctx, owner, name)
		if err != nil {
			s.Logger.WarnContext(ctx, fmt.Sprintf("resolving %s: %v", repoCfg.ID, err))
			continue
		}
		entries = append(entries, s.repoEntries(ctx, repo)...)
	}
	return entries
}

func (s *Scheduler) repoEntries(ctx context.Context, repo models.Repo) []entry {
	settings := s.GlobalCfg.RepoSettings(repo.ID())
	cloneDir := s.WorkingDir.GenerateDirPath(repo.FullName)
	if err := s.WorkingDir.Clone(repo, repo.DefaultBranch, cloneDir, settings.CheckoutDepth); err != nil {
		s.Logger.WarnContext(ctx, fmt.Sprintf("cloning %s for schedule discovery: %v", repo.FullName, err))
		return nil
	}
	defer func() {
		if err := s.WorkingDir.DeleteClone(cloneDir); err != nil {
			s.Logger.WarnContext(ctx, fmt.Sprintf("deleting schedule discovery clone %s: %v", cloneDir, err))
		}
	}()

	hasWorkflows, err := s.ParserValidator.HasWorkflows(cloneDir, settings.WorkflowsPath)
	if err != nil {
		s.Logger.WarnContext(ctx, fmt.Sprintf("looking for workflows of %s: %v", repo.FullName, err))
		return nil
	}
	if !hasWorkflows {
		return nil
	}
	workflows, err := s.ParserValidator.ParseWorkflowsDir(cloneDir, settings.WorkflowsPath)
	if err != nil {
		s.Logger.WarnContext(ctx, fmt.Sprintf("parsing workflows of %s: %v", repo.FullName, err))
		return nil
	}

	var entries []entry
	for _, workflow := range workflows {
		for _, schedule := range workflow.On.Schedules {
			entries = append(entries, entry{repo: repo, path: workflow.Path, spec: schedule.Cron})
		}
	}
	return entries
}

func (s *Scheduler) tick(e entry) {
	s.CommandRunner.RunScheduleCommand(context.Background(), events.Schedule{
		Repo:         e.repo,
		WorkflowPath: e.path,
		Timestamp:    time.Now(),
	})
}
