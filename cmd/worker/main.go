package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"intake-backend/internal/bootstrap"
	"intake-backend/internal/queue"
	"intake-backend/internal/shared/config"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/telemetry"
	"intake-backend/internal/workerproc"
)

const (
	receiveBatch     = 10
	receiveWaitSecs  = 20
	receiveCountAttr = "ApproximateReceiveCount"
)

func main() {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel)
	defer telemetry.Sync()

	if cfg.SQSQueueURL == "" {
		log.Fatal("INTAKE_SQS_QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
	if err != nil {
		log.Fatalf("sqs client: %v", err)
	}
	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	p := &poller{
		api:      client.Raw(),
		queueURL: client.QueueURL(),
		proc:     workerproc.NewDispatcher(app),
		cfg:      cfg.Worker,
	}
	telemetry.Info("worker.started", map[string]any{
		"queue":       p.queueURL,
		"concurrency": p.cfg.Concurrency,
		"visibility":  p.cfg.VisibilityTimeout.String(),
	})
	p.run(ctx)
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// poller long-polls one queue and hands messages to a bounded set of
// goroutines.
type poller struct {
	api      sqsAPI
	queueURL string
	proc     workerproc.Processor
	cfg      config.WorkerConfig
}

func (p *poller) run(ctx context.Context) {
	slots := make(chan struct{}, max(1, p.cfg.Concurrency))
	var wg sync.WaitGroup

	for ctx.Err() == nil {
		msgs, err := p.receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				break
			}
			telemetry.Warn("worker.receive_failed", map[string]any{"error": err.Error()})
			continue
		}
		for _, m := range msgs {
			select {
			case <-ctx.Done():
			case slots <- struct{}{}:
				wg.Add(1)
				go func(m sqstypes.Message) {
					defer wg.Done()
					defer func() { <-slots }()
					p.handle(ctx, m)
				}(m)
			}
		}
	}

	p.drain(&wg)
}

func (p *poller) receive(ctx context.Context) ([]sqstypes.Message, error) {
	out, err := p.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(p.queueURL),
		MaxNumberOfMessages:   receiveBatch,
		WaitTimeSeconds:       receiveWaitSecs,
		VisibilityTimeout:     int32(p.cfg.VisibilityTimeout / time.Second),
		MessageAttributeNames: []string{"kind", "requestId"},
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeName(receiveCountAttr),
		},
	})
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// drain waits for in-flight jobs up to the shutdown timeout. Jobs still
// running afterwards reappear on the queue once their visibility expires.
func (p *poller) drain(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		telemetry.Info("worker.stopped", nil)
	case <-time.After(p.cfg.ShutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", map[string]any{"timeout": p.cfg.ShutdownTimeout.String()})
	}
}

// handle runs one message and deletes it unless a redelivery could succeed.
func (p *poller) handle(ctx context.Context, m sqstypes.Message) {
	body := aws.ToString(m.Body)
	kind, fields := messageFields(m)
	metrics.IncJob(kind, "received")

	msg, err := workerproc.ParseMessage(body)
	var parseErr *workerproc.ParseError
	switch {
	case err == nil:
		kind = string(msg.Kind)
		fields["kind"] = kind
		fields["target_id"] = msg.Target()
		if msg.RequestID != "" {
			fields["request_id"] = msg.RequestID
		}
		err = workerproc.Run(ctx, p.proc, msg)
	case errors.As(err, &parseErr):
		fields["body_len"] = parseErr.Body.Len
		if parseErr.Body.SHA256 != "" {
			fields["body_sha256"] = parseErr.Body.SHA256
		}
	}

	outcome := workerproc.OutcomeOf(err)
	if err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.job."+string(outcome), fields)
	}
	if outcome.Ack() {
		if derr := p.delete(ctx, m); derr != nil {
			fields["error"] = derr.Error()
			telemetry.Error("worker.job.delete_failed", fields)
			return
		}
	}
	if err == nil {
		telemetry.Info("worker.job.completed", fields)
	}
	metrics.IncJob(kind, string(outcome))
}

func (p *poller) delete(ctx context.Context, m sqstypes.Message) error {
	receipt := aws.ToString(m.ReceiptHandle)
	if receipt == "" {
		return errors.New("missing receipt handle")
	}
	_, err := p.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	return err
}

func messageFields(m sqstypes.Message) (string, map[string]any) {
	kind := "unknown"
	if attr, ok := m.MessageAttributes["kind"]; ok && attr.StringValue != nil {
		kind = aws.ToString(attr.StringValue)
	}
	count, _ := strconv.Atoi(m.Attributes[receiveCountAttr])
	return kind, map[string]any{
		"sqs_message_id": aws.ToString(m.MessageId),
		"receive_count":  count,
		"kind":           kind,
	}
}
