// Package valid contains the fully validated workflow and server
// configuration models. Everything here came through the raw package's
// validation and can be trusted by the execution layer.
package valid

import "time"

const (
	RunStepName       = "run"
	CheckoutStepName  = "checkout"
	SetupNodeStepName = "setup_node"
	SetupUvStepName   = "setup_uv"
	CacheStepName     = "cache"
)

// DefaultPullRequestTypes are the pull request activity types a workflow
// reacts to when it doesn't declare any.
var DefaultPullRequestTypes = []string{"opened", "synchronize", "reopened"}

// Workflow is a single validated workflow file.
type Workflow struct {
	// Name is the display name, the declared name or the file path when
	// none was declared.
	Name string
	// Path is the repo-relative path of the workflow file.
	Path string
	On   Triggers
	// Jobs are kept sorted by ID. Execution order is decided by Needs, not
	// by position.
	Jobs []Job
}

// Job returns the job with the given ID.
func (w Workflow) Job(id string) (Job, bool) {
	for _, j := range w.Jobs {
		if j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}

// JobLevels orders jobs into dependency levels. A job only depends on jobs
// in earlier levels, so jobs of one level can run concurrently. Validation
// guarantees Needs references exist and form no cycle.
func (w Workflow) JobLevels() [][]Job {
	placed := make(map[string]bool, len(w.Jobs))
	var levels [][]Job

	remaining := w.Jobs
	for len(remaining) > 0 {
		var level []Job
		var next []Job
		for _, job := range remaining {
			ready := true
			for _, dep := range job.Needs {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, job)
			} else {
				next = append(next, job)
			}
		}
		if len(level) == 0 {
			break
		}
		for _, job := range level {
			placed[job.ID] = true
		}
		levels = append(levels, level)
		remaining = next
	}
	return levels
}

type Triggers struct {
	Push        *PushTrigger
	PullRequest *PullRequestTrigger
	Schedules   []Schedule
}

type PushTrigger struct {
	Branches       []string
	BranchesIgnore []string
	Paths          []string
	PathsIgnore    []string
}

type PullRequestTrigger struct {
	Branches       []string
	BranchesIgnore []string
	Paths          []string
	PathsIgnore    []string
	// Types is never empty, defaulting happens during conversion.
	Types []string
}

type Schedule struct {
	// Cron is a five field cron expression, already known to parse.
	Cron string
}

type Job struct {
	ID     string
	Name   string
	RunsOn []string
	Needs  []string
	Env    map[string]string
	// Timeout of zero means the server default applies.
	Timeout time.Duration
	Steps   []Step
}

type Step struct {
	// StepName selects the runner executing this step, one of the
	// *StepName constants.
	StepName string
	ID       string
	// Description is what run listings and logs display for the step.
	Description string
	// RunCommand is the shell script of run steps.
	RunCommand string
	Shell      string
	With       map[string]string
	Env        map[string]string
	// WorkingDirectory is relative to the repo root.
	WorkingDirectory string
}
