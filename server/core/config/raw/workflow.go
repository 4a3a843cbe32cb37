package raw

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/pkg/errors"
	"github.com/robfig/cron"
)

// Workflow is the top level of a workflow file.
type Workflow struct {
	Name string         `yaml:"name" json:"name"`
	On   *On            `yaml:"on" json:"on"`
	Jobs map[string]Job `yaml:"jobs" json:"jobs"`
}

func (w Workflow) Validate() error {
	if err := validation.ValidateStruct(&w,
		validation.Field(&w.On, validation.Required.Error("a workflow must declare at least one trigger under 'on'")),
		validation.Field(&w.Jobs, validation.Required.Error("a workflow must declare at least one job"), validation.By(validateJobIDs)),
	); err != nil {
		return err
	}
	return w.validateNeeds()
}

// validateNeeds checks that every needs reference names a declared job and
// that the references are acyclic.
func (w Workflow) validateNeeds() error {
	for id, job := range w.Jobs {
		for _, need := range job.Needs {
			if _, ok := w.Jobs[need]; !ok {
				return fmt.Errorf("job %q needs undeclared job %q", id, need)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(w.Jobs))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("cycle in job dependencies involving %q", id)
		case visited:
			return nil
		}
		state[id] = visiting
		for _, need := range w.Jobs[id].Needs {
			if err := visit(need); err != nil {
				return err
			}
		}
		state[id] = visited
		return nil
	}

	for id := range w.Jobs {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

func validateJobIDs(value interface{}) error {
	jobs, _ := value.(map[string]Job)
	for id := range jobs {
		if !jobIDRegex.MatchString(id) {
			return fmt.Errorf("job id %q must start with a letter or '_' and contain only alphanumeric characters, '-' or '_'", id)
		}
	}
	return nil
}

// ToValid converts the raw workflow to a validated one. path is the
// repo-relative location of the workflow file and doubles as the display name
// when none is declared.
func (w Workflow) ToValid(path string) valid.Workflow {
	name := w.Name
	if name == "" {
		name = path
	}

	jobs := make([]valid.Job, 0, len(w.Jobs))
	for _, id := range sortedJobIDs(w.Jobs) {
		jobs = append(jobs, w.Jobs[id].ToValid(id))
	}

	return valid.Workflow{
		Name: name,
		Path: path,
		On:   w.On.ToValid(),
		Jobs: jobs,
	}
}

// On is the trigger block. It accepts the three shapes workflow files use:
//
//	on: push
//	on: [push, pull_request]
//	on:
//	  push:
//	    branches: [main]
type On struct {
	Push        *PushTrigger        `yaml:"push" json:"push"`
	PullRequest *PullRequestTrigger `yaml:"pull_request" json:"pull_request"`
	Schedule    []ScheduleTrigger   `yaml:"schedule" json:"schedule"`
}

func (o *On) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		return o.fromEventNames([]string{single})
	}

	var list []string
	if err := unmarshal(&list); err == nil {
		return o.fromEventNames(list)
	}

	// type alias drops the custom unmarshaler to avoid recursing
	type onAlias On
	var full onAlias
	if err := unmarshal(&full); err != nil {
		return err
	}
	*o = On(full)
	return nil
}

func (o *On) fromEventNames(names []string) error {
	for _, name := range names {
		switch name {
		case "push":
			o.Push = &PushTrigger{}
		case "pull_request":
			o.PullRequest = &PullRequestTrigger{}
		default:
			return fmt.Errorf("unsupported event %q", name)
		}
	}
	return nil
}

func (o On) Validate() error {
	if o.Push == nil && o.PullRequest == nil && len(o.Schedule) == 0 {
		return errors.New("at least one of push, pull_request or schedule must be set")
	}
	return validation.ValidateStruct(&o,
		validation.Field(&o.Push),
		validation.Field(&o.PullRequest),
		validation.Field(&o.Schedule),
	)
}

func (o *On) ToValid() valid.Triggers {
	var t valid.Triggers
	if o.Push != nil {
		t.Push = &valid.PushTrigger{
			Branches:       o.Push.Branches,
			BranchesIgnore: o.Push.BranchesIgnore,
			Paths:          o.Push.Paths,
			PathsIgnore:    o.Push.PathsIgnore,
		}
	}
	if o.PullRequest != nil {
		types := o.PullRequest.Types
		if len(types) == 0 {
			types = valid.DefaultPullRequestTypes
		}
		t.PullRequest = &valid.PullRequestTrigger{
			Branches:       o.PullRequest.Branches,
			BranchesIgnore: o.PullRequest.BranchesIgnore,
			Paths:          o.PullRequest.Paths,
			PathsIgnore:    o.PullRequest.PathsIgnore,
			Types:          types,
		}
	}
	for _, s := range o.Schedule {
		t.Schedules = append(t.Schedules, valid.Schedule{Cron: s.Cron})
	}
	return t
}

type PushTrigger struct {
	Branches       []string `yaml:"branches" json:"branches"`
	BranchesIgnore []string `yaml:"branches-ignore" json:"branches-ignore"`
	Paths          []string `yaml:"paths" json:"paths"`
	PathsIgnore    []string `yaml:"paths-ignore" json:"paths-ignore"`
}

func (p PushTrigger) Validate() error {
	if len(p.Branches) > 0 && len(p.BranchesIgnore) > 0 {
		return errors.New("branches and branches-ignore cannot both be set")
	}
	if len(p.Paths) > 0 && len(p.PathsIgnore) > 0 {
		return errors.New("paths and paths-ignore cannot both be set")
	}
	return nil
}

type PullRequestTrigger struct {
	Branches       []string `yaml:"branches" json:"branches"`
	BranchesIgnore []string `yaml:"branches-ignore" json:"branches-ignore"`
	Paths          []string `yaml:"paths" json:"paths"`
	PathsIgnore    []string `yaml:"paths-ignore" json:"paths-ignore"`
	Types          []string `yaml:"types" json:"types"`
}

func (p PullRequestTrigger) Validate() error {
	if len(p.Branches) > 0 && len(p.BranchesIgnore) > 0 {
		return errors.New("branches and branches-ignore cannot both be set")
	}
	if len(p.Paths) > 0 && len(p.PathsIgnore) > 0 {
		return errors.New("paths and paths-ignore cannot both be set")
	}
	for _, typ := range p.Types {
		if !validPullRequestTypes[typ] {
			return fmt.Errorf("unsupported pull_request type %q, must be one of: %s", typ, strings.Join(pullRequestTypeNames(), ", "))
		}
	}
	return nil
}

type ScheduleTrigger struct {
	Cron string `yaml:"cron" json:"cron"`
}

func (s ScheduleTrigger) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Cron, validation.Required, validation.By(validateCron)),
	)
}

func validateCron(value interface{}) error {
	spec, _ := value.(string)
	if _, err := cron.ParseStandard(spec); err != nil {
		return errors.Wrapf(err, "parsing cron %q", spec)
	}
	return nil
}

var validPullRequestTypes = map[string]bool{
	"opened":           true,
	"synchronize":      true,
	"reopened":         true,
	"closed":           true,
	"edited":           true,
	"labeled":          true,
	"unlabeled":        true,
	"ready_for_review": true,
}

func pullRequestTypeNames() []string {
	// stable order for error messages
	return []string{"opened", "synchronize", "reopened", "closed", "edited", "labeled", "unlabeled", "ready_for_review"}
}
