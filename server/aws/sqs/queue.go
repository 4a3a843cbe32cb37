package sqs

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/uber-go/tally/v4"
)

type Queue interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// QueueWithStats wraps a Queue with success and error counters per
// operation.
type QueueWithStats struct {
	Queue
	Scope    tally.Scope
	QueueURL string
}

func (q *QueueWithStats) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	scope := q.Scope.SubScope(ReceiveMessageMetricName)
	successCount := scope.Counter(Success)
	errorCount := scope.Counter(Error)
	response, err := q.Queue.ReceiveMessage(ctx, params, optFns...)
	if err != nil {
		errorCount.Inc(1)
	} else {
		successCount.Inc(1)
	}
	return response, err
}

func (q *QueueWithStats) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	scope := q.Scope.SubScope(DeleteMessageMetricName)
	successCount := scope.Counter(Success)
	errorCount := scope.Counter(Error)
	response, err := q.Queue.DeleteMessage(ctx, params, optFns...)
	if err != nil {
		errorCount.Inc(1)
	} else {
		successCount.Inc(1)
	}
	return response, err
}
