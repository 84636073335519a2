package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationHistory_AppendAndLast(t *testing.T) {
	h := NewConversationHistory()
	assert.True(t, h.IsEmpty())

	h.Append("What is the capital of France?", "Paris")
	h.Append("And of Spain?", "Madrid")

	require.Equal(t, 2, h.Len())
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, Turn{Question: "And of Spain?", Answer: "Madrid"}, last)
}

func TestConversationHistory_TurnsIsACopy(t *testing.T) {
	h := NewConversationHistory(Turn{Question: "q", Answer: "a"})
	turns := h.Turns()
	turns[0].Answer = "changed"

	last, _ := h.Last()
	assert.Equal(t, "a", last.Answer)
}

func TestConversationHistory_Clear(t *testing.T) {
	h := NewConversationHistory(Turn{Question: "q", Answer: "a"})
	h.Clear()
	assert.Equal(t, 0, h.Len())
	_, ok := h.Last()
	assert.False(t, ok)
}

func TestConversationHistory_NilIsEmpty(t *testing.T) {
	var h *ConversationHistory
	assert.Equal(t, 0, h.Len())
	assert.True(t, h.IsEmpty())
	assert.Nil(t, h.Turns())
}

func TestDocument_SourceAndPage(t *testing.T) {
	doc := Document{Content: "x", Metadata: map[string]any{MetaSource: "a.pdf", MetaPage: float64(3)}}
	assert.Equal(t, "a.pdf", doc.SourceID())
	require.NotNil(t, doc.Page())
	assert.Equal(t, 3, *doc.Page())

	assert.Nil(t, Document{Content: "x"}.Page())
}
