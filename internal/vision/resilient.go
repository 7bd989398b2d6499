package vision

import (
	"context"
	"errors"
	"net"
	"strings"

	"intake-backend/internal/shared/resilience"
	"intake-backend/internal/shared/telemetry"
)

// Resilient retries transient provider failures behind a circuit breaker and
// switches to Fallback when the primary model is not served.
type Resilient struct {
	Primary  Client
	Fallback Client
	Exec     *resilience.Executor
}

// NewResilient wraps primary. fallback may be nil.
func NewResilient(primary, fallback Client, exec *resilience.Executor) *Resilient {
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Resilient{Primary: primary, Fallback: fallback, Exec: exec}
}

func (r *Resilient) Classify(ctx context.Context, in ClassifyInput) (ClassifyOutput, error) {
	return withFallback(ctx, r, "vision.classify", func(ctx context.Context, c Client) (ClassifyOutput, error) {
		return c.Classify(ctx, in)
	})
}

func (r *Resilient) Extract(ctx context.Context, in ExtractInput) (ExtractOutput, error) {
	return withFallback(ctx, r, "vision.extract", func(ctx context.Context, c Client) (ExtractOutput, error) {
		return c.Extract(ctx, in)
	})
}

func withFallback[T any](ctx context.Context, r *Resilient, op string, call func(context.Context, Client) (T, error)) (T, error) {
	out, err := runGuarded(ctx, r.Exec, op, r.Primary, call)
	if err == nil || r.Fallback == nil || !errors.Is(err, ErrModelNotFound) {
		return out, err
	}
	telemetry.Warn("vision.model_fallback", map[string]any{
		"operation": op,
		"error":     err.Error(),
	})
	return runGuarded(ctx, r.Exec, op+".fallback", r.Fallback, call)
}

func runGuarded[T any](ctx context.Context, exec *resilience.Executor, op string, c Client, call func(context.Context, Client) (T, error)) (T, error) {
	var out T
	err := exec.Execute(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = call(ctx, c)
		return err
	}, classify)
	return out, err
}

// classify retries rate limits, 5xx replies and network hiccups. Replies that
// arrived but were unusable do not count against the breaker.
func classify(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case errors.Is(err, ErrModelNotFound), errors.Is(err, ErrInvalidResponse), errors.Is(err, ErrUnsupportedMedia):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return resilience.ErrorClassification{Retryable: apiErr.Temporary(), RecordFailure: apiErr.Temporary()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "unexpected eof") {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

var _ Client = (*Resilient)(nil)
