package sqs

import (
	"bufio"
	"bytes"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
)

type MessageProcessor interface {
	ProcessMessage(types.Message) error
}

// VCSEventMessageProcessor replays webhook requests the gateway buffered
// into the queue. The message body is the serialized http request, headers
// included, so payload validation in the handler still works.
type VCSEventMessageProcessor struct {
	PostHandler VCSPostHandler
}

func (p *VCSEventMessageProcessor) ProcessMessage(msg types.Message) error {
	if msg.Body == nil {
		return errors.New("message received from sqs has no body")
	}

	buffer := bytes.NewBufferString(*msg.Body)
	buf := bufio.NewReader(buffer)
	req, err := http.ReadRequest(buf)
	if err != nil {
		return errors.Wrap(err, "reading bytes from sqs into http request")
	}

	// Nobody is waiting on the other end of a queued request, so the
	// response goes nowhere.
	p.PostHandler.Post(&NoOpResponseWriter{}, req)
	return nil
}

type VCSEventMessageProcessorStats struct {
	VCSEventMessageProcessor
	Scope tally.Scope
}

func (s *VCSEventMessageProcessorStats) ProcessMessage(msg types.Message) error {
	successCount := s.Scope.Counter(Success)
	errorCount := s.Scope.Counter(Error)

	timer := s.Scope.Timer(Latency)
	span := timer.Start()
	defer span.Stop()

	if err := s.VCSEventMessageProcessor.ProcessMessage(msg); err != nil {
		errorCount.Inc(1)
		return err
	}
	successCount.Inc(1)
	return nil
}

type NoOpResponseWriter struct{}

func (n *NoOpResponseWriter) Header() http.Header {
	return nil
}

func (n *NoOpResponseWriter) Write(b []byte) (int, error) {
	return 0, nil
}

func (n *NoOpResponseWriter) WriteHeader(statusCode int) {}
