package jobs

import (
	"context"
	"fmt"
	"io"

	"github.com/greenlightci/greenlight/server/logging"
)

type OutputLine struct {
	JobID string
	Line  string
}

type OutputHandler interface {
	// Send will enqueue the msg and wait for Handle() to receive it.
	Send(jobID string, msg string)

	// Register backfills the receiver with everything buffered so far and
	// subscribes it to successive updates. Callers should call this
	// asynchronously when reading the channel in the same goroutine.
	Register(jobID string, receiver chan string)

	// Deregister removes a channel from successive updates and closes it.
	Deregister(jobID string, receiver chan string)

	// Handle drains the output channel. Runs in its own goroutine.
	Handle()

	// Close marks the job complete, persists it and closes any receivers.
	Close(ctx context.Context, jobID string)

	CleanUp(ctx context.Context)
}

func NewAsyncOutputHandler(jobStore Store, receiverRegistry ReceiverRegistry, logger logging.Logger) OutputHandler {
	return &AsyncOutputHandler{
		JobOutput:        make(chan *OutputLine),
		JobStore:         jobStore,
		ReceiverRegistry: receiverRegistry,
		Logger:           logger,
	}
}

type AsyncOutputHandler struct {
	// Main channel receiving output from running steps.
	JobOutput chan *OutputLine

	JobStore Store

	// Registry tracking active connections for a job.
	ReceiverRegistry ReceiverRegistry

	Logger logging.Logger
}

func (s *AsyncOutputHandler) Send(jobID string, msg string) {
	s.JobOutput <- &OutputLine{
		JobID: jobID,
		Line:  msg,
	}
}

func (s *AsyncOutputHandler) Handle() {
	for msg := range s.JobOutput {
		s.ReceiverRegistry.Broadcast(*msg)

		// Append the new log to the output buffer for the job.
		err := s.JobStore.Write(msg.JobID, msg.Line)
		if err != nil {
			s.Logger.Warn(fmt.Sprintf("appending log: %s for job: %s: %v", msg.Line, msg.JobID, err))
		}
	}
}

func (s *AsyncOutputHandler) Register(jobID string, receiver chan string) {
	job, err := s.JobStore.Get(jobID)
	if err != nil || job == nil {
		s.Logger.Warn(fmt.Sprintf("retrieving job: %s: %v", jobID, err))
		close(receiver)
		return
	}

	for _, line := range job.Output {
		receiver <- line
	}

	// no need to register the receiver once all the logs have streamed.
	if job.Status == Complete {
		close(receiver)
		return
	}

	// register after the backfill so new messages cannot interleave with it.
	s.ReceiverRegistry.AddReceiver(jobID, receiver)
}

func (s *AsyncOutputHandler) Deregister(jobID string, receiver chan string) {
	s.Logger.Debug(fmt.Sprintf("removing receiver for job: %s", jobID))
	s.ReceiverRegistry.RemoveReceiver(jobID, receiver)
}

func (s *AsyncOutputHandler) Close(ctx context.Context, jobID string) {
	s.ReceiverRegistry.CloseAndRemoveReceiversForJob(jobID)

	if err := s.JobStore.Close(ctx, jobID, Complete); err != nil {
		s.Logger.Error(fmt.Sprintf("updating job status to complete, %v", err))
	}
}

func (s *AsyncOutputHandler) CleanUp(ctx context.Context) {
	s.ReceiverRegistry.CleanUp()
}

// NoopOutputHandler is used when output streaming is not wired up.
type NoopOutputHandler struct{}

func (s *NoopOutputHandler) Send(jobID string, msg string) {}

func (s *NoopOutputHandler) Register(jobID string, receiver chan string)   {}
func (s *NoopOutputHandler) Deregister(jobID string, receiver chan string) {}

func (s *NoopOutputHandler) Handle() {}

func (s *NoopOutputHandler) Close(ctx context.Context, jobID string) {}

func (s *NoopOutputHandler) CleanUp(ctx context.Context) {}

// WriterOutputHandler prints every line straight to one writer, for one-shot
// runs from the command line where the terminal is the only receiver.
type WriterOutputHandler struct {
	Writer io.Writer
}

func (s *WriterOutputHandler) Send(jobID string, msg string) {
	fmt.Fprintln(s.Writer, msg) // nolint: errcheck
}

func (s *WriterOutputHandler) Register(jobID string, receiver chan string)   {}
func (s *WriterOutputHandler) Deregister(jobID string, receiver chan string) {}

func (s *WriterOutputHandler) Handle() {}

func (s *WriterOutputHandler) Close(ctx context.Context, jobID string) {}

func (s *WriterOutputHandler) CleanUp(ctx context.Context) {}
