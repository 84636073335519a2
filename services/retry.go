package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github/itish2003/convrag/models"
)

// RetryPolicy is how often a caller repeats a failed query. The pipeline
// never retries on its own.
type RetryPolicy struct {
	Retries int
	Backoff time.Duration
}

// QueryWithRetry calls svc.Query and repeats it on upstream model failures
// with Fibonacci backoff. Invalid input and cancellation are never retried.
func QueryWithRetry(ctx context.Context, svc RAGService, question string, history *models.ConversationHistory, policy RetryPolicy) (*models.AnswerResponse, error) {
	if policy.Retries <= 0 {
		return svc.Query(ctx, question, history)
	}
	backoff := policy.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var resp *models.AnswerResponse
	attempt := 0
	err := retry.Do(ctx, retry.WithMaxRetries(uint64(policy.Retries), retry.NewFibonacci(backoff)), func(ctx context.Context) error {
		attempt++
		var err error
		resp, err = svc.Query(ctx, question, history)
		if err == nil {
			return nil
		}
		if !Retryable(ctx, err) {
			return err
		}
		slog.Warn("query failed, retrying", "component", "retry", "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Retryable reports whether err came from a model call that may succeed on
// a second attempt.
func Retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var ef *EmbeddingFailure
	var gf *GenerationFailure
	return errors.As(err, &ef) || errors.As(err, &gf)
}
