package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/core/runtime"
	"github.com/greenlightci/greenlight/server/events/models"
	. "github.com/greenlightci/greenlight/testing"
)

type recordingRunner struct {
	calls  *[]string
	name   string
	output string
	err    error
}

func (r *recordingRunner) Run(ctx context.Context, jobCtx runtime.JobContext, step valid.Step) (string, error) {
	*r.calls = append(*r.calls, r.name)
	return r.output, r.err
}

type recordingStreamer struct {
	lines []string
}

func (s *recordingStreamer) Send(jobID string, msg string) {
	s.lines = append(s.lines, msg)
}

func TestStepsRunner_RunsInOrder(t *testing.T) {
	var calls []string
	streamer := &recordingStreamer{}
	runner := runtime.NewStepsRunner(
		streamer,
		&recordingRunner{calls: &calls, name: "run"},
		&recordingRunner{calls: &calls, name: "checkout", output: "checked out"},
		&recordingRunner{calls: &calls, name: "setup_node"},
		&recordingRunner{calls: &calls, name: "setup_uv"},
		&recordingRunner{calls: &calls, name: "cache"},
	)

	steps := []valid.Step{
		{StepName: valid.CheckoutStepName, Description: "checkout"},
		{StepName: valid.SetupNodeStepName, Description: "setup node"},
		{StepName: valid.RunStepName, Description: "build", RunCommand: "npm run build"},
	}
	results, err := runner.Run(context.Background(), runtime.JobContext{JobID: "1234"}, steps)
	Ok(t, err)

	Equals(t, []string{"checkout", "setup_node", "run"}, calls)
	Equals(t, []models.StepResult{
		{Description: "checkout", Status: models.SuccessRunStatus},
		{Description: "setup node", Status: models.SuccessRunStatus},
		{Description: "build", Status: models.SuccessRunStatus},
	}, results)
	Equals(t, []string{"checked out"}, streamer.lines)
}

func TestStepsRunner_FailureSkipsTheRest(t *testing.T) {
	var calls []string
	runner := runtime.NewStepsRunner(
		&recordingStreamer{},
		&recordingRunner{calls: &calls, name: "run", err: errors.New("exit status 1")},
		&recordingRunner{calls: &calls, name: "checkout"},
		&recordingRunner{calls: &calls, name: "setup_node"},
		&recordingRunner{calls: &calls, name: "setup_uv"},
		&recordingRunner{calls: &calls, name: "cache"},
	)

	steps := []valid.Step{
		{StepName: valid.CheckoutStepName, Description: "checkout"},
		{StepName: valid.RunStepName, Description: "test", RunCommand: "npm test"},
		{StepName: valid.RunStepName, Description: "build", RunCommand: "npm run build"},
	}
	results, err := runner.Run(context.Background(), runtime.JobContext{}, steps)
	ErrContains(t, `running step "test"`, err)

	// the failing step stops execution, the build step never runs.
	Equals(t, []string{"checkout", "run"}, calls)
	Equals(t, []models.StepResult{
		{Description: "checkout", Status: models.SuccessRunStatus},
		{Description: "test", Status: models.FailedRunStatus},
		{Description: "build", Status: models.SkippedRunStatus},
	}, results)
}

func TestStepsRunner_UnknownStep(t *testing.T) {
	var calls []string
	runner := runtime.NewStepsRunner(
		&recordingStreamer{},
		&recordingRunner{calls: &calls, name: "run"},
		&recordingRunner{calls: &calls, name: "checkout"},
		&recordingRunner{calls: &calls, name: "setup_node"},
		&recordingRunner{calls: &calls, name: "setup_uv"},
		&recordingRunner{calls: &calls, name: "cache"},
	)

	_, err := runner.Run(context.Background(), runtime.JobContext{}, []valid.Step{
		{StepName: "docker", Description: "docker build"},
	})
	ErrContains(t, `no runner for step "docker"`, err)
	Equals(t, 0, len(calls))
}
