package ai

import (
	"context"
	"time"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/utils"
)

// RetryPolicy retries transient provider failures with exponential backoff.
// Only errors classified retryable by utils.IsRetryable are retried, so
// validation and configuration failures surface on the first attempt.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func DefaultRetryPolicy(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.RetryMaxBackoff) * time.Millisecond,
		Multiplier:     cfg.RetryMultiplier,
	}
}

// Do runs fn until it succeeds, a non-retryable error occurs, attempts are
// exhausted, or ctx is cancelled. The last error is returned unmodified so
// its taxonomy kind survives for HTTP mapping.
func (p RetryPolicy) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !utils.IsRetryable(err) || attempt == attempts {
			break
		}

		logger.Debug("Retrying transient provider error",
			"operation", operation,
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return utils.WrapError(utils.KindTimeout, "retry aborted by context", ctx.Err())
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * multiplier)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return err
}
