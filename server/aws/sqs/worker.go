// Package sqs polls webhook events the gateway parked in an SQS queue and
// replays them against the local event handler.
package sqs

import (
	"context"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
)

const (
	msgSubScope = "msg"

	ProcessMessageMetricName = "process"
	ReceiveMessageMetricName = "receive"
	DeleteMessageMetricName  = "delete"

	Latency = "latency"
	Success = "success"
	Error   = "error"
)

// VCSPostHandler is the webhook endpoint a replayed request lands on.
type VCSPostHandler interface {
	Post(w http.ResponseWriter, r *http.Request)
}

type Worker struct {
	Queue            Queue
	QueueURL         string
	MessageProcessor MessageProcessor
	Scope            tally.Scope
}

func NewGatewaySQSWorker(ctx context.Context, scope tally.Scope, queueURL string, postHandler VCSPostHandler) (*Worker, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config for sqs worker")
	}
	scope = scope.SubScope("aws.sqs")
	queue := &QueueWithStats{
		Queue:    sqs.NewFromConfig(cfg),
		Scope:    scope,
		QueueURL: queueURL,
	}

	handler := &VCSEventMessageProcessorStats{
		VCSEventMessageProcessor: VCSEventMessageProcessor{
			PostHandler: postHandler,
		},
		Scope: scope.SubScope(msgSubScope).SubScope(ProcessMessageMetricName),
	}

	return &Worker{
		Queue:            queue,
		QueueURL:         queueURL,
		MessageProcessor: handler,
		Scope:            scope.SubScope(msgSubScope),
	}, nil
}

// Work polls until ctx is canceled. Messages that fail to process stay on
// the queue and come back after the visibility timeout.
func (w *Worker) Work(ctx context.Context) {
	messages := make(chan types.Message)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.processMessages(ctx, messages)
	}()
	request := &sqs.ReceiveMessageInput{
		QueueUrl:            &w.QueueURL,
		MaxNumberOfMessages: 10, //max number of batch-able messages
		WaitTimeSeconds:     20, //max duration long polling
	}
	w.receiveMessages(ctx, messages, request)
	wg.Wait()
}

func (w *Worker) receiveMessages(ctx context.Context, messages chan types.Message, request *sqs.ReceiveMessageInput) {
	for {
		select {
		case <-ctx.Done():
			close(messages)
			return
		default:
			response, err := w.Queue.ReceiveMessage(ctx, request)
			if err != nil {
				continue
			}
			for _, message := range response.Messages {
				messages <- message
			}
		}
	}
}

func (w *Worker) processMessages(ctx context.Context, messages chan types.Message) {
	for message := range messages {
		if err := w.MessageProcessor.ProcessMessage(message); err != nil {
			continue
		}

		// Only successfully processed messages leave the queue.
		_, _ = w.Queue.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &w.QueueURL,
			ReceiptHandle: message.ReceiptHandle,
		})
	}
}
