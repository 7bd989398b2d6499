package main

// Build the queue consumer as a Lambda with an SQS event source:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker
//
// Enable ReportBatchItemFailures on the event source mapping so only the
// failed records are redelivered.

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"intake-backend/internal/bootstrap"
	"intake-backend/internal/shared/config"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/telemetry"
	"intake-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	proc     workerproc.Processor
)

func initApp() {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel)
	app, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	proc = workerproc.NewDispatcher(app)
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": initErr.Error()})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return processBatch(ctx, proc, event), nil
}

// processBatch runs each record and returns the ones worth redelivering.
// Malformed payloads and permanent failures are logged and acknowledged.
func processBatch(ctx context.Context, p workerproc.Processor, event events.SQSEvent) events.SQSEventResponse {
	var failures []events.SQSBatchItemFailure
	for _, record := range event.Records {
		kind := recordKind(record)
		metrics.IncJob(kind, "received")

		err := workerproc.HandleMessage(ctx, p, record.Body)
		outcome := workerproc.OutcomeOf(err)
		metrics.IncJob(kind, string(outcome))
		if err == nil {
			continue
		}
		telemetry.Error("worker.job."+string(outcome), map[string]any{
			"sqs_message_id": record.MessageId,
			"kind":           kind,
			"error":          err.Error(),
		})
		if !outcome.Ack() {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func recordKind(record events.SQSMessage) string {
	if attr, ok := record.MessageAttributes["kind"]; ok && attr.StringValue != nil {
		return *attr.StringValue
	}
	return "unknown"
}

func main() {
	lambda.Start(handler)
}
