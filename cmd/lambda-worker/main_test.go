package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"intake-backend/internal/intake"
	"intake-backend/internal/queue"
)

type stubProcessor struct {
	errs map[string]error
}

func (s stubProcessor) Process(ctx context.Context, msg queue.Message) error {
	_ = ctx
	return s.errs[msg.Target()]
}

func record(t *testing.T, id string, msg queue.Message) events.SQSMessage {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func TestProcessBatchReportsOnlyTransientFailures(t *testing.T) {
	p := stubProcessor{errs: map[string]error{
		"rf-transient": errors.New("provider unavailable"),
		"doc-gone":     intake.ErrNotFound,
	}}
	event := events.SQSEvent{Records: []events.SQSMessage{
		record(t, "ok", queue.NewMessage(queue.KindClassify, "rf-ok", "req-1")),
		record(t, "transient", queue.NewMessage(queue.KindClassify, "rf-transient", "req-2")),
		record(t, "gone", queue.NewMessage(queue.KindExtract, "doc-gone", "req-3")),
		{MessageId: "garbage", Body: "{nope"},
	}}

	resp := processBatch(context.Background(), p, event)

	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "transient" {
		t.Fatalf("unexpected failures %+v", resp.BatchItemFailures)
	}
}
