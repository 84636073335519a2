package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github/itish2003/convrag/config"
	"github/itish2003/convrag/llm"
	"github/itish2003/convrag/models"
)

// AnswerPolicy bounds generated answers.
type AnswerPolicy struct {
	MaxSentences   int
	DeclineMessage string
}

// DefaultAnswerPolicy allows three sentences.
func DefaultAnswerPolicy() AnswerPolicy {
	return AnswerPolicy{MaxSentences: 3, DeclineMessage: config.DefaultDeclineMessage}
}

// Synthesizer answers a standalone query from retrieved evidence only.
type Synthesizer struct {
	model   llm.Completer
	policy  AnswerPolicy
	timeout time.Duration
}

// NewSynthesizer creates a synthesizer. Zero policy fields take the defaults.
func NewSynthesizer(model llm.Completer, policy AnswerPolicy, timeout time.Duration) *Synthesizer {
	def := DefaultAnswerPolicy()
	if policy.MaxSentences < 1 {
		policy.MaxSentences = def.MaxSentences
	}
	if strings.TrimSpace(policy.DeclineMessage) == "" {
		policy.DeclineMessage = def.DeclineMessage
	}
	return &Synthesizer{model: model, policy: policy, timeout: timeout}
}

// Policy returns the effective answer policy.
func (s *Synthesizer) Policy() AnswerPolicy { return s.policy }

// Synthesize answers query from chunks, best match first. With no evidence
// it declines without calling the model.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, chunks models.RetrievalResult) (string, error) {
	evidence := Evidence(chunks)
	if evidence == "" {
		return s.policy.DeclineMessage, nil
	}

	system, err := AnswerSystemPrompt(s.policy.MaxSentences, evidence)
	if err != nil {
		return "", &GenerationFailure{Op: "synthesize", Err: err}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.model.Complete(ctx, llm.Prompt{System: system, Input: query})
	if err != nil {
		return "", &GenerationFailure{Op: "synthesize", Err: err}
	}
	answer := strings.TrimSpace(out)
	if answer == "" {
		return "", &GenerationFailure{Op: "synthesize", Err: errors.New("model returned an empty answer")}
	}
	return answer, nil
}

// Evidence joins the chunk contents with blank lines, keeping their order.
// Blank chunks are skipped.
func Evidence(chunks models.RetrievalResult) string {
	parts := make([]string, 0, len(chunks))
	for _, sc := range chunks {
		if text := strings.TrimSpace(sc.Chunk.Content); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}
