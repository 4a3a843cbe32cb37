// Package trigger decides whether a workflow's on block fires for an event.
package trigger

import (
	"github.com/docker/docker/pkg/fileutils"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/pkg/errors"
)

// Event is the trigger-relevant slice of an incoming event.
type Event struct {
	Kind models.EventKind
	// Branch is the branch pushed to, or the base branch for pull
	// requests.
	Branch string
	// Action is the pull request activity type, ex. "opened".
	Action string
	// ChangedFiles are the repo-relative paths touched by the event. nil
	// means unknown, which passes path filters.
	ChangedFiles []string
	// Deleted marks branch deletion pushes. Those never trigger runs.
	Deleted bool
}

type Matcher struct{}

// Matches reports whether the workflow's triggers fire for the event.
func (m *Matcher) Matches(workflow valid.Workflow, event Event) (bool, error) {
	switch event.Kind {
	case models.PushEventKind:
		return m.matchesPush(workflow.On.Push, event)
	case models.PullRequestEventKind:
		return m.matchesPullRequest(workflow.On.PullRequest, event)
	case models.ScheduleEventKind:
		return len(workflow.On.Schedules) > 0, nil
	}
	return false, nil
}

func (m *Matcher) matchesPush(t *valid.PushTrigger, event Event) (bool, error) {
	if t == nil || event.Deleted {
		return false, nil
	}
	ok, err := matchesBranch(t.Branches, t.BranchesIgnore, event.Branch)
	if err != nil || !ok {
		return false, err
	}
	return matchesPaths(t.Paths, t.PathsIgnore, event.ChangedFiles)
}

func (m *Matcher) matchesPullRequest(t *valid.PullRequestTrigger, event Event) (bool, error) {
	if t == nil {
		return false, nil
	}
	if !contains(t.Types, event.Action) {
		return false, nil
	}
	ok, err := matchesBranch(t.Branches, t.BranchesIgnore, event.Branch)
	if err != nil || !ok {
		return false, err
	}
	return matchesPaths(t.Paths, t.PathsIgnore, event.ChangedFiles)
}

func matchesBranch(branches, branchesIgnore []string, branch string) (bool, error) {
	if len(branches) > 0 {
		return matchesAny(branches, branch)
	}
	if len(branchesIgnore) > 0 {
		ignored, err := matchesAny(branchesIgnore, branch)
		return !ignored, err
	}
	return true, nil
}

// matchesPaths implements the path filter: with paths set at least one
// changed file must match; with paths-ignore set at least one changed file
// must fall outside the ignore list.
func matchesPaths(paths, pathsIgnore []string, changedFiles []string) (bool, error) {
	if changedFiles == nil {
		return true, nil
	}
	if len(paths) > 0 {
		for _, f := range changedFiles {
			ok, err := matchesAny(paths, f)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	if len(pathsIgnore) > 0 {
		for _, f := range changedFiles {
			ignored, err := matchesAny(pathsIgnore, f)
			if err != nil {
				return false, err
			}
			if !ignored {
				return true, nil
			}
		}
		return false, nil
	}
	return true, nil
}

func matchesAny(patterns []string, name string) (bool, error) {
	matcher, err := fileutils.NewPatternMatcher(patterns)
	if err != nil {
		return false, errors.Wrap(err, "building pattern matcher")
	}
	ok, err := matcher.Matches(name)
	if err != nil {
		return false, errors.Wrapf(err, "matching %q", name)
	}
	return ok, nil
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
