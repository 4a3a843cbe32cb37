package runtime

import (
	"context"
	"fmt"
	"strconv"

	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/pkg/errors"
)

// RepoCloner puts a checkout of the repository at the given revision
// into the destination directory.
type RepoCloner interface {
	Clone(repo models.Repo, revision string, destination string, depth int) error
}

// CheckoutStepRunner clones the triggering repository into the job's
// working directory. The ref and depth inputs override the event's
// revision and the repo's checkout depth.
type CheckoutStepRunner struct {
	Cloner RepoCloner
}

func (c *CheckoutStepRunner) Run(ctx context.Context, jobCtx JobContext, step valid.Step) (string, error) {
	revision := jobCtx.Revision
	if ref := step.With["ref"]; ref != "" {
		revision = ref
	}

	depth := jobCtx.CheckoutDepth
	if d, ok := step.With["depth"]; ok {
		parsed, err := strconv.Atoi(d)
		if err != nil {
			return "", errors.Wrapf(err, "parsing depth input %q", d)
		}
		depth = parsed
	}

	if err := c.Cloner.Clone(jobCtx.Repo, revision, jobCtx.Path, depth); err != nil {
		return "", errors.Wrapf(err, "cloning %s at revision %s", jobCtx.Repo.FullName, revision)
	}
	return fmt.Sprintf("checked out %s at %s", jobCtx.Repo.FullName, revision), nil
}
