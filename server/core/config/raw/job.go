package raw

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/greenlightci/greenlight/server/core/config/valid"
)

var jobIDRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Job is one job within a workflow file.
type Job struct {
	Name           string       `yaml:"name" json:"name"`
	RunsOn         StringOrList `yaml:"runs-on" json:"runs-on"`
	Needs          StringOrList `yaml:"needs" json:"needs"`
	Env            StringMap    `yaml:"env" json:"env"`
	TimeoutMinutes int          `yaml:"timeout-minutes" json:"timeout-minutes"`
	Steps          []Step       `yaml:"steps" json:"steps"`
}

func (j Job) Validate() error {
	return validation.ValidateStruct(&j,
		validation.Field(&j.TimeoutMinutes, validation.Min(0)),
		validation.Field(&j.Env, validation.By(validateNoExpressionsMap)),
		validation.Field(&j.Steps, validation.Required.Error("a job must declare at least one step")),
	)
}

func (j Job) ToValid(id string) valid.Job {
	name := j.Name
	if name == "" {
		name = id
	}

	steps := make([]valid.Step, 0, len(j.Steps))
	for _, s := range j.Steps {
		steps = append(steps, s.ToValid())
	}

	return valid.Job{
		ID:      id,
		Name:    name,
		RunsOn:  j.RunsOn,
		Needs:   j.Needs,
		Env:     j.Env,
		Timeout: time.Duration(j.TimeoutMinutes) * time.Minute,
		Steps:   steps,
	}
}

// Step is one step of a job. Exactly one of Run or Uses must be set.
type Step struct {
	ID               string    `yaml:"id" json:"id"`
	Name             string    `yaml:"name" json:"name"`
	Uses             string    `yaml:"uses" json:"uses"`
	Run              string    `yaml:"run" json:"run"`
	Shell            string    `yaml:"shell" json:"shell"`
	With             StringMap `yaml:"with" json:"with"`
	Env              StringMap `yaml:"env" json:"env"`
	WorkingDirectory string    `yaml:"working-directory" json:"working-directory"`
}

func (s Step) Validate() error {
	if (s.Run == "") == (s.Uses == "") {
		return fmt.Errorf("a step must set exactly one of run or uses")
	}
	if s.Uses != "" {
		if _, ok := builtinAction(s.Uses); !ok {
			return fmt.Errorf("unknown action %q, supported actions are: %s", s.Uses, strings.Join(supportedActions(), ", "))
		}
		if s.Shell != "" {
			return fmt.Errorf("shell cannot be set on a step using an action")
		}
	}
	if s.Run != "" && len(s.With) > 0 {
		return fmt.Errorf("with cannot be set on a run step")
	}
	return validation.ValidateStruct(&s,
		validation.Field(&s.Run, validation.By(validateNoExpressions)),
		validation.Field(&s.WorkingDirectory, validation.By(validateNoExpressions)),
		validation.Field(&s.With, validation.By(validateNoExpressionsMap)),
		validation.Field(&s.Env, validation.By(validateNoExpressionsMap)),
	)
}

func (s Step) ToValid() valid.Step {
	step := valid.Step{
		ID:               s.ID,
		Description:      s.description(),
		Shell:            s.Shell,
		With:             s.With,
		Env:              s.Env,
		WorkingDirectory: s.WorkingDirectory,
	}
	if s.Run != "" {
		step.StepName = valid.RunStepName
		step.RunCommand = s.Run
		return step
	}
	step.StepName, _ = builtinAction(s.Uses)
	return step
}

func (s Step) description() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Uses != "" {
		return s.Uses
	}
	run := s.Run
	if i := strings.IndexByte(run, '\n'); i >= 0 {
		run = run[:i]
	}
	return "Run " + run
}

// builtinAction resolves an action reference like actions/checkout@v3 to the
// built-in step implementing it.
func builtinAction(uses string) (string, bool) {
	name := uses
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	stepName, ok := builtinActions[name]
	return stepName, ok
}

var builtinActions = map[string]string{
	"checkout":   valid.CheckoutStepName,
	"setup-node": valid.SetupNodeStepName,
	"setup-uv":   valid.SetupUvStepName,
	"cache":      valid.CacheStepName,
}

func supportedActions() []string {
	names := make([]string, 0, len(builtinActions))
	for name := range builtinActions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Workflow files don't support expression interpolation. Reject it loudly
// rather than executing a literal "${{ ... }}".
func validateNoExpressions(value interface{}) error {
	s, _ := value.(string)
	if strings.Contains(s, "${{") {
		return fmt.Errorf("expressions are not supported")
	}
	return nil
}

func validateNoExpressionsMap(value interface{}) error {
	m, _ := value.(StringMap)
	for k, v := range m {
		if strings.Contains(v, "${{") {
			return fmt.Errorf("expressions are not supported in value of %q", k)
		}
	}
	return nil
}

// StringOrList accepts both a single string and a list of strings.
type StringOrList []string

func (l *StringOrList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*l = []string{single}
		return nil
	}
	var list []string
	if err := unmarshal(&list); err != nil {
		return err
	}
	*l = list
	return nil
}

// StringMap accepts scalar yaml values and stringifies them, so inputs like
// node-version: 20 keep their file spelling.
type StringMap map[string]string

func (m *StringMap) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw map[string]interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	out := make(StringMap, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			out[k] = v
		case bool:
			out[k] = strconv.FormatBool(v)
		case int:
			out[k] = strconv.Itoa(v)
		case int64:
			out[k] = strconv.FormatInt(v, 10)
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
			out[k] = ""
		default:
			return fmt.Errorf("value of %q must be a scalar", k)
		}
	}
	*m = out
	return nil
}

func sortedJobIDs(jobs map[string]Job) []string {
	ids := make([]string, 0, len(jobs))
	for id := range jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
