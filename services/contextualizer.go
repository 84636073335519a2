package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github/itish2003/convrag/llm"
	"github/itish2003/convrag/models"
)

// Contextualizer rewrites a follow-up question into a standalone query.
type Contextualizer struct {
	model   llm.Completer
	timeout time.Duration
}

// NewContextualizer creates a contextualizer. A zero timeout means none.
func NewContextualizer(model llm.Completer, timeout time.Duration) *Contextualizer {
	return &Contextualizer{model: model, timeout: timeout}
}

// Contextualize returns question unchanged when history is empty, without
// calling the model. Otherwise it asks the model for a self-contained
// restatement of question given every prior turn.
func (c *Contextualizer) Contextualize(ctx context.Context, question string, history *models.ConversationHistory) (string, error) {
	if history.IsEmpty() {
		return question, nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := c.model.Complete(ctx, llm.Prompt{
		System:  ContextualizeSystemPrompt,
		History: history.Turns(),
		Input:   question,
	})
	if err != nil {
		return "", &GenerationFailure{Op: "contextualize", Err: err}
	}

	standalone := strings.TrimSpace(out)
	if standalone == "" {
		return "", &GenerationFailure{Op: "contextualize", Err: errors.New("model returned an empty question")}
	}
	slog.Debug("contextualized question", "component", "contextualizer", "question", question, "standalone", standalone)
	return standalone, nil
}
