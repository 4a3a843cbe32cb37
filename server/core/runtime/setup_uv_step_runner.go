package runtime

import (
	"context"
	"fmt"

	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/core/toolchain"
	"github.com/pkg/errors"
)

// SetupUvStepRunner installs the requested uv version and prepends it
// to the job's PATH.
type SetupUvStepRunner struct {
	Ensurer VersionEnsurer
}

func (r *SetupUvStepRunner) Run(ctx context.Context, jobCtx JobContext, step valid.Step) (string, error) {
	binDir, err := r.Ensurer.EnsureToolchain(jobCtx.Log, toolchain.UvToolName, step.With["version"])
	if err != nil {
		return "", errors.Wrap(err, "ensuring uv toolchain")
	}
	prependPath(jobCtx.Envs, binDir)
	return fmt.Sprintf("uv available at %s", binDir), nil
}
