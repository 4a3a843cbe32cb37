// Package exec runs subprocesses in their own process groups so they can
// be terminated without tearing down the server process.
package exec

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/greenlightci/greenlight/server/logging"
	"github.com/pkg/errors"
)

// killGracePeriod is how long a process gets to exit after SIGTERM before
// we follow up with SIGKILL.
const killGracePeriod = 60 * time.Second

// RunNewProcessGroupCommand is useful for running separate commands that shouldn't receive termination
// signals at the same time as the parent process
func RunNewProcessGroupCommand(ctx context.Context, log logging.Logger, cmd *exec.Cmd, cmdName string) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, fmt.Sprintf("starting %s command", cmdName))
	}
	done := make(chan struct{})
	defer close(done)
	go TerminateProcessOnCtxCancellation(ctx, log, cmd.Process, done)

	err := cmd.Wait()
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), fmt.Sprintf("waiting for %s process", cmdName))
	}
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("waiting for %s process", cmdName))
	}
	return nil
}

func TerminateProcessOnCtxCancellation(ctx context.Context, log logging.Logger, p *os.Process, processDone chan struct{}) {
	select {
	case <-ctx.Done():
		// received context cancellation, terminate active process
		terminateProcess(ctx, log, p, processDone)
	case <-processDone:
		// process completed on its own, simply exit
	}
}

func terminateProcess(ctx context.Context, log logging.Logger, p *os.Process, processDone chan struct{}) {
	log.WarnContext(ctx, "terminating active process gracefully")
	err := p.Signal(syscall.SIGTERM)
	if err != nil {
		log.ErrorContext(ctx, "unable to terminate process", map[string]interface{}{
			"err": err,
		})
	}

	// if we still haven't shutdown after the grace period, we should just
	// kill the process. this ensures that we at least can gracefully
	// shutdown other parts of the system before we are killed entirely.
	kill := time.After(killGracePeriod)
	select {
	case <-kill:
		log.WarnContext(ctx, "killing process since graceful shutdown is taking suspiciously long")
		err := p.Signal(syscall.SIGKILL)
		if err != nil {
			log.ErrorContext(ctx, "unable to kill process", map[string]interface{}{
				"err": err,
			})
		}
	case <-processDone:
	}
}
