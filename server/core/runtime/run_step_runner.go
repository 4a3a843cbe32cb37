package runtime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/greenlightci/greenlight/server/core/config/valid"
	internalExec "github.com/greenlightci/greenlight/server/exec"
	"github.com/pkg/errors"
)

// Setting the buffer size to 10mb
const BufioScannerBufferSize = 10 * 1024 * 1024

// RunStepRunner executes run steps through a shell, streaming every
// output line to the job's output stream.
type RunStepRunner struct {
	Streamer     OutputStreamer
	DefaultShell string
}

func (r *RunStepRunner) Run(ctx context.Context, jobCtx JobContext, step valid.Step) (string, error) {
	shell := step.Shell
	if shell == "" {
		shell = r.DefaultShell
	}

	dir := jobCtx.Path
	if step.WorkingDirectory != "" {
		dir = filepath.Join(jobCtx.Path, step.WorkingDirectory)
	}

	cmd := exec.Command(shell, "-c", step.RunCommand) // #nosec
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Env = buildEnv(jobCtx, step)

	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()

	if err := cmd.Start(); err != nil {
		return "", errors.Wrapf(err, "running %q in %q", step.RunCommand, dir)
	}

	done := make(chan struct{})
	defer close(done)
	go internalExec.TerminateProcessOnCtxCancellation(ctx, jobCtx.Log, cmd.Process, done)

	// Use a waitgroup to block until our stdout/err copying is complete.
	wg := new(sync.WaitGroup)
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.writeOutput(stdout, jobCtx.JobID)
	}()
	go func() {
		defer wg.Done()
		r.writeOutput(stderr, jobCtx.JobID)
	}()

	// Wait for our copying to complete. This *must* be done before
	// calling cmd.Wait(). (see https://github.com/golang/go/issues/19685)
	wg.Wait()

	err := cmd.Wait()
	if ctx.Err() != nil {
		return "", errors.Wrapf(ctx.Err(), "waiting for %q", step.RunCommand)
	}
	if err != nil {
		return "", errors.Wrapf(err, "running %q in %q", step.RunCommand, dir)
	}
	return "", nil
}

func (r *RunStepRunner) writeOutput(stdReader io.ReadCloser, jobID string) {
	s := bufio.NewScanner(stdReader)
	buf := []byte{}
	s.Buffer(buf, BufioScannerBufferSize)

	for s.Scan() {
		r.Streamer.Send(jobID, s.Text())
	}
}

// buildEnv layers the process environment, the runner's own variables,
// the job env, the step env and the variables earlier steps set. Later
// entries win.
func buildEnv(jobCtx JobContext, step valid.Step) []string {
	finalEnvVars := os.Environ()

	customEnvVars := map[string]string{
		"CI":                "true",
		"GREENLIGHT":        "true",
		"GITHUB_REPOSITORY": jobCtx.Repo.FullName,
		"GITHUB_SHA":        jobCtx.Revision,
		"GITHUB_REF_NAME":   jobCtx.Branch,
		"GITHUB_WORKSPACE":  jobCtx.Path,
	}
	for key, val := range customEnvVars {
		finalEnvVars = append(finalEnvVars, fmt.Sprintf("%s=%s", key, val))
	}
	for key, val := range jobCtx.JobEnv {
		finalEnvVars = append(finalEnvVars, fmt.Sprintf("%s=%s", key, val))
	}
	for key, val := range step.Env {
		finalEnvVars = append(finalEnvVars, fmt.Sprintf("%s=%s", key, val))
	}
	for key, val := range jobCtx.Envs {
		finalEnvVars = append(finalEnvVars, fmt.Sprintf("%s=%s", key, val))
	}
	return finalEnvVars
}
