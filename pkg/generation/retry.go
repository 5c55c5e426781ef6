package generation

import (
	"context"
	"time"

	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
)

// RetryPolicy defines retry behavior for failed generation calls.
type RetryPolicy struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// CalculateBackoff calculates the backoff duration for a given retry attempt.
func (p RetryPolicy) CalculateBackoff(retryCount int) time.Duration {
	if retryCount <= 0 {
		return p.InitialBackoff
	}

	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	backoff := p.InitialBackoff
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * factor)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// RetryDecision represents the decision about whether to retry.
type RetryDecision struct {
	ShouldRetry     bool
	BackoffDuration time.Duration
	Reason          string
}

// DecideRetry decides whether the retryCount-th failure should be retried.
// Only error codes the registry marks retryable are retried.
func (p RetryPolicy) DecideRetry(err error, retryCount int) RetryDecision {
	if retryCount >= p.MaxRetries {
		return RetryDecision{Reason: "max retries exceeded"}
	}

	classified := sterrors.ClassifyError(err, sterrors.StageGenerate)
	if classified == nil || !sterrors.IsRetryable(classified.Code) {
		reason := "permanent error"
		if classified != nil {
			reason += ": " + string(classified.Code)
		}
		return RetryDecision{Reason: reason}
	}

	return RetryDecision{
		ShouldRetry:     true,
		BackoffDuration: p.CalculateBackoff(retryCount),
		Reason:          "retryable error: " + string(classified.Code),
	}
}

// RetryOption configures WithRetry.
type RetryOption func(*retryGenerator)

// WithRetryLogger logs each retry at warn level.
func WithRetryLogger(l logging.Logger) RetryOption {
	return func(r *retryGenerator) {
		if l != nil {
			r.logger = l
		}
	}
}

// withSleep replaces the backoff wait; tests use it to avoid real delays.
func withSleep(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *retryGenerator) {
		r.sleep = fn
	}
}

type retryGenerator struct {
	next   Generator
	policy RetryPolicy
	logger logging.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps g so that retryable failures are retried with exponential backoff.
func WithRetry(g Generator, policy RetryPolicy, opts ...RetryOption) Generator {
	r := &retryGenerator{
		next:   g,
		policy: policy,
		logger: logging.NewNopLogger(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *retryGenerator) Model() string {
	return ModelOf(r.next)
}

func (r *retryGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	for attempt := 0; ; attempt++ {
		out, err := r.next.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}

		decision := r.policy.DecideRetry(err, attempt)
		if !decision.ShouldRetry {
			return "", err
		}

		r.logger.Warn("Generation failed, retrying",
			logging.F("attempt", attempt+1),
			logging.F("max_retries", r.policy.MaxRetries),
			logging.F("backoff", decision.BackoffDuration),
			logging.F("reason", decision.Reason),
			logging.Err(err),
		)

		if serr := r.sleep(ctx, decision.BackoffDuration); serr != nil {
			return "", NewGenerationError("retry", r.Model(), serr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
