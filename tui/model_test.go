package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/convrag/models"
	"github/itish2003/convrag/services"
)

type echoService struct {
	seen []int
	err  error
}

func (e *echoService) Query(ctx context.Context, question string, history *models.ConversationHistory) (*models.AnswerResponse, error) {
	e.seen = append(e.seen, history.Len())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.err != nil {
		return nil, e.err
	}
	page := 2
	return &models.AnswerResponse{
		Answer:  "re: " + question,
		Sources: models.RetrievalResult{{Chunk: models.Chunk{SourceID: "book.pdf", Page: &page}, Score: 0.5}},
	}, nil
}

func (e *echoService) RetrieveSimilar(ctx context.Context, query string, k int) (models.RetrievalResult, error) {
	return nil, nil
}

func typeAndEnter(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	var next tea.Model = m
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func deliver(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	return next.(Model)
}

func TestModel_AppendsTurnAfterAnswer(t *testing.T) {
	svc := &echoService{}
	m := New(context.Background(), svc, services.RetryPolicy{}, 0, "1 chunk indexed")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(Model)

	m, cmd := typeAndEnter(t, m, "first?")
	assert.True(t, m.pending)
	assert.Empty(t, m.History())
	m = deliver(t, m, cmd)
	require.Len(t, m.History(), 1)
	assert.Equal(t, models.Turn{Question: "first?", Answer: "re: first?"}, m.History()[0])

	m, cmd = typeAndEnter(t, m, "second?")
	m = deliver(t, m, cmd)
	assert.Len(t, m.History(), 2)
	assert.Equal(t, []int{0, 1}, svc.seen)
	assert.Contains(t, m.renderTranscript(), "[1] book.pdf, page 2 (0.500)")
}

func TestModel_FailureKeepsHistory(t *testing.T) {
	svc := &echoService{err: errors.New("model offline")}
	m := New(context.Background(), svc, services.RetryPolicy{}, 0, "")

	m, cmd := typeAndEnter(t, m, "q?")
	m = deliver(t, m, cmd)
	assert.Empty(t, m.History())
	assert.Contains(t, m.status, "model offline")
}

func TestModel_QuestionStopsWithProgramContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &echoService{}
	m := New(ctx, svc, services.RetryPolicy{Retries: 2}, 0, "")

	m, cmd := typeAndEnter(t, m, "q?")
	cancel()
	m = deliver(t, m, cmd)
	assert.Empty(t, m.History())
	assert.Contains(t, m.status, context.Canceled.Error())
	assert.LessOrEqual(t, len(svc.seen), 1, "a cancelled question is not retried")
}

func TestModel_Clear(t *testing.T) {
	m := New(context.Background(), &echoService{}, services.RetryPolicy{}, 0, "")
	m, cmd := typeAndEnter(t, m, "q?")
	m = deliver(t, m, cmd)
	require.Len(t, m.History(), 1)

	m, cmd = typeAndEnter(t, m, clearCommand)
	assert.Nil(t, cmd)
	assert.Empty(t, m.History())
	assert.Equal(t, "No questions yet.", m.renderTranscript())
}

func TestCitations(t *testing.T) {
	assert.Equal(t, "", Citations(nil))
	assert.Equal(t, "[1] a.txt (1.000)", Citations(models.RetrievalResult{{Chunk: models.Chunk{SourceID: "a.txt"}, Score: 1}}))
}
