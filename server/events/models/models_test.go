package models_test

import (
	"testing"

	"github.com/greenlightci/greenlight/server/events/models"
	. "github.com/greenlightci/greenlight/testing"
)

func TestVcsStatus_String(t *testing.T) {
	cases := map[models.VcsStatus]string{
		models.PendingVcsStatus: "pending",
		models.SuccessVcsStatus: "success",
		models.FailedVcsStatus:  "failed",
	}
	for k, v := range cases {
		Equals(t, v, k.String())
	}
}

func TestRunStatus_String(t *testing.T) {
	cases := map[models.RunStatus]string{
		models.PendingRunStatus:  "pending",
		models.RunningRunStatus:  "running",
		models.SuccessRunStatus:  "success",
		models.FailedRunStatus:   "failed",
		models.CanceledRunStatus: "canceled",
		models.SkippedRunStatus:  "skipped",
	}
	for k, v := range cases {
		Equals(t, v, k.String())
	}
}

func TestRunStatus_IsFinal(t *testing.T) {
	Equals(t, false, models.PendingRunStatus.IsFinal())
	Equals(t, false, models.RunningRunStatus.IsFinal())
	Equals(t, true, models.SuccessRunStatus.IsFinal())
	Equals(t, true, models.FailedRunStatus.IsFinal())
	Equals(t, true, models.CanceledRunStatus.IsFinal())
	Equals(t, true, models.SkippedRunStatus.IsFinal())
}

func TestWorkflowRun_Key(t *testing.T) {
	run := models.WorkflowRun{
		Repo:         models.Repo{FullName: "owner/repo"},
		Branch:       "main",
		WorkflowPath: ".github/workflows/ci.yml",
	}
	Equals(t, "owner/repo/main/.github/workflows/ci.yml", run.Key())
}
