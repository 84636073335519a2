package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/convrag/models"
)

type flakyService struct {
	failures int
	err      error
	calls    int
}

func (f *flakyService) Query(ctx context.Context, question string, history *models.ConversationHistory) (*models.AnswerResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &models.AnswerResponse{Answer: "ok", StandaloneQuery: question}, nil
}

func (f *flakyService) RetrieveSimilar(ctx context.Context, query string, k int) (models.RetrievalResult, error) {
	return nil, nil
}

func TestQueryWithRetry_RetriesModelFailures(t *testing.T) {
	svc := &flakyService{failures: 2, err: &PipelineError{Stage: StageSynthesize, Err: &GenerationFailure{Op: "synthesize", Err: errors.New("503")}}}

	resp, err := QueryWithRetry(context.Background(), svc, "q", nil, RetryPolicy{Retries: 3, Backoff: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Answer)
	assert.Equal(t, 3, svc.calls)
}

func TestQueryWithRetry_GivesUp(t *testing.T) {
	cause := &PipelineError{Stage: StageRetrieve, Err: &EmbeddingFailure{Op: "embed query", Err: errors.New("down")}}
	svc := &flakyService{failures: 10, err: cause}

	_, err := QueryWithRetry(context.Background(), svc, "q", nil, RetryPolicy{Retries: 2, Backoff: time.Millisecond})
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageRetrieve, pe.Stage)
	assert.Equal(t, 3, svc.calls)
}

func TestQueryWithRetry_DoesNotRetryBadInput(t *testing.T) {
	svc := &flakyService{failures: 10, err: &PipelineError{Stage: StageContextualize, Err: ErrEmptyQuestion}}

	_, err := QueryWithRetry(context.Background(), svc, "", nil, RetryPolicy{Retries: 5, Backoff: time.Millisecond})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, 1, svc.calls)
}

func TestQueryWithRetry_NoPolicyCallsOnce(t *testing.T) {
	svc := &flakyService{failures: 1, err: &GenerationFailure{Op: "x", Err: errors.New("x")}}

	_, err := QueryWithRetry(context.Background(), svc, "q", nil, RetryPolicy{})
	assert.Error(t, err)
	assert.Equal(t, 1, svc.calls)
}

func TestRetryable(t *testing.T) {
	ctx := context.Background()
	assert.True(t, Retryable(ctx, &GenerationFailure{Err: errors.New("x")}))
	assert.False(t, Retryable(ctx, ErrInvalidK))
	assert.False(t, Retryable(ctx, &EmbeddingFailure{Err: context.Canceled}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, Retryable(cancelled, &GenerationFailure{Err: errors.New("x")}))
}
