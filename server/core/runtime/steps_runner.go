package runtime

import (
	"context"
	"fmt"

	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/pkg/errors"
)

// Runner executes a single step.
type Runner interface {
	Run(ctx context.Context, jobCtx JobContext, step valid.Step) (string, error)
}

// StepsRunner executes the steps of a job in order, stopping at the first
// failure and recording the rest as skipped.
type StepsRunner interface {
	Run(ctx context.Context, jobCtx JobContext, steps []valid.Step) ([]models.StepResult, error)
}

func NewStepsRunner(
	output OutputStreamer,
	runStepRunner Runner,
	checkoutStepRunner Runner,
	setupNodeStepRunner Runner,
	setupUvStepRunner Runner,
	cacheStepRunner Runner,
) StepsRunner {
	return &stepsRunner{
		output:              output,
		runStepRunner:       runStepRunner,
		checkoutStepRunner:  checkoutStepRunner,
		setupNodeStepRunner: setupNodeStepRunner,
		setupUvStepRunner:   setupUvStepRunner,
		cacheStepRunner:     cacheStepRunner,
	}
}

type stepsRunner struct {
	output              OutputStreamer
	runStepRunner       Runner
	checkoutStepRunner  Runner
	setupNodeStepRunner Runner
	setupUvStepRunner   Runner
	cacheStepRunner     Runner
}

func (r *stepsRunner) Run(ctx context.Context, jobCtx JobContext, steps []valid.Step) ([]models.StepResult, error) {
	var results []models.StepResult

	for i, step := range steps {
		var out string
		var err error
		switch step.StepName {
		case valid.RunStepName:
			out, err = r.runStepRunner.Run(ctx, jobCtx, step)
		case valid.CheckoutStepName:
			out, err = r.checkoutStepRunner.Run(ctx, jobCtx, step)
		case valid.SetupNodeStepName:
			out, err = r.setupNodeStepRunner.Run(ctx, jobCtx, step)
		case valid.SetupUvStepName:
			out, err = r.setupUvStepRunner.Run(ctx, jobCtx, step)
		case valid.CacheStepName:
			out, err = r.cacheStepRunner.Run(ctx, jobCtx, step)
		default:
			err = fmt.Errorf("no runner for step %q", step.StepName)
		}

		if err != nil {
			results = append(results, models.StepResult{
				Description: step.Description,
				Status:      models.FailedRunStatus,
			})
			// everything after a failed step is skipped.
			for _, skipped := range steps[i+1:] {
				results = append(results, models.StepResult{
					Description: skipped.Description,
					Status:      models.SkippedRunStatus,
				})
			}
			return results, errors.Wrapf(err, "running step %q", step.Description)
		}

		if out != "" {
			r.output.Send(jobCtx.JobID, out)
		}
		results = append(results, models.StepResult{
			Description: step.Description,
			Status:      models.SuccessRunStatus,
		})
	}
	return results, nil
}
