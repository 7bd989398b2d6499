package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"intake-backend/internal/bootstrap"
	"intake-backend/internal/classification"
	"intake-backend/internal/extraction"
	"intake-backend/internal/intake"
	"intake-backend/internal/queue"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/telemetry"
)

// BodyInfo identifies a payload in logs without printing it.
type BodyInfo struct {
	Len    int
	SHA256 string
}

func describeBody(body string) BodyInfo {
	if body == "" {
		return BodyInfo{}
	}
	sum := sha256.Sum256([]byte(body))
	return BodyInfo{Len: len(body), SHA256: hex.EncodeToString(sum[:])}
}

// ParseFailure names the check a payload failed.
type ParseFailure string

const (
	FailEmpty   ParseFailure = "empty_body"
	FailDecode  ParseFailure = "decode_failed"
	FailInvalid ParseFailure = "invalid"
)

// ParseError rejects a payload that no redelivery can fix.
type ParseError struct {
	Failure   ParseFailure
	Body      BodyInfo
	RequestID string
	Err       error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "message " + string(e.Failure)
	}
	return "message " + string(e.Failure) + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	Kind      queue.Kind
	TargetID  string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("process %s job", e.Kind)
	}
	return fmt.Sprintf("process %s job: %s", e.Kind, e.Err.Error())
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Permanent reports whether a redelivery would fail the same way. Missing
// records, rejected transitions and bad input do not heal on retry.
func (e ErrProcess) Permanent() bool {
	return errors.Is(e.Err, intake.ErrNotFound) ||
		errors.Is(e.Err, intake.ErrInvalidTransition) ||
		errors.Is(e.Err, intake.ErrInvalidInput) ||
		errors.Is(e.Err, intake.ErrConflict)
}

// Outcome says what a consumer should do with a message after handling it.
type Outcome string

const (
	// OutcomeDone acknowledges a processed message.
	OutcomeDone Outcome = "completed"
	// OutcomeRetry leaves the message for redelivery.
	OutcomeRetry Outcome = "failed"
	// OutcomeDrop acknowledges a message that can never succeed.
	OutcomeDrop Outcome = "dropped"
)

// Ack reports whether the message should be removed from the queue.
func (o Outcome) Ack() bool { return o != OutcomeRetry }

// OutcomeOf maps the error returned by HandleMessage to an Outcome. Parse
// failures and permanent processing errors are dropped.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeDone
	}
	var procErr ErrProcess
	if errors.As(err, &procErr) && !procErr.Permanent() {
		return OutcomeRetry
	}
	var parseErr *ParseError
	if errors.As(err, &procErr) || errors.As(err, &parseErr) {
		return OutcomeDrop
	}
	return OutcomeRetry
}

// ParseMessage decodes and validates a queue payload.
func ParseMessage(body string) (queue.Message, error) {
	info := describeBody(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, &ParseError{Failure: FailEmpty, Body: info}
	}
	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, &ParseError{Failure: FailDecode, Body: info, Err: err}
	}
	if err := msg.Validate(); err != nil {
		return msg, &ParseError{Failure: FailInvalid, Body: info, RequestID: msg.RequestID, Err: err}
	}
	return msg, nil
}

// Processor runs one decoded job.
type Processor interface {
	Process(ctx context.Context, msg queue.Message) error
}

// Dispatcher routes jobs to the classification and extraction stages.
type Dispatcher struct {
	Classifier *classification.Stage
	Extractor  *extraction.Stage
}

// NewDispatcher wires a Dispatcher to the stages built by bootstrap.
func NewDispatcher(app *bootstrap.App) *Dispatcher {
	if app == nil {
		return &Dispatcher{}
	}
	return &Dispatcher{Classifier: app.Classifier, Extractor: app.Extractor}
}

// Process runs msg on the matching stage.
func (d *Dispatcher) Process(ctx context.Context, msg queue.Message) error {
	switch msg.Kind {
	case queue.KindClassify:
		if d.Classifier == nil {
			return errors.New("classification stage not configured")
		}
		var (
			res classification.Result
			err error
		)
		if msg.Anyway {
			res, err = d.Classifier.ClassifyAnyway(ctx, msg.RawFileID)
		} else {
			res, err = d.Classifier.Classify(ctx, msg.RawFileID)
		}
		if err != nil {
			return err
		}
		telemetry.Info("worker.job.classified", map[string]any{
			"raw_file_id": msg.RawFileID,
			"request_id":  msg.RequestID,
			"transition":  res.Transition,
		})
		return nil
	case queue.KindExtract:
		if d.Extractor == nil {
			return errors.New("extraction stage not configured")
		}
		res, err := d.Extractor.Extract(ctx, msg.DocumentID)
		if err != nil {
			return err
		}
		fields := map[string]any{
			"document_id": msg.DocumentID,
			"request_id":  msg.RequestID,
			"transition":  res.Transition,
		}
		if res.Skipped != "" {
			fields["skipped"] = res.Skipped
		}
		telemetry.Info("worker.job.extracted", fields)
		return nil
	default:
		return fmt.Errorf("unknown job kind %q", msg.Kind)
	}
}

// HandleMessage parses body and runs it on p.
func HandleMessage(ctx context.Context, p Processor, body string) error {
	msg, err := ParseMessage(body)
	if err != nil {
		return err
	}
	return Run(ctx, p, msg)
}

// Run processes an already parsed message, tagging the context with its
// request id and recording the job duration.
func Run(ctx context.Context, p Processor, msg queue.Message) error {
	if p == nil {
		return errors.New("job processor not configured")
	}
	ctx = telemetry.WithRequestID(ctx, msg.RequestID)
	start := time.Now()
	err := p.Process(ctx, msg)
	metrics.ObserveStageDuration("job_"+string(msg.Kind), time.Since(start))
	if err != nil {
		return ErrProcess{Kind: msg.Kind, TargetID: msg.Target(), RequestID: msg.RequestID, Err: err}
	}
	return nil
}
