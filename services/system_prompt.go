package services

import (
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

// ContextualizeSystemPrompt asks the model to rewrite a follow-up question
// into a standalone one without answering it.
const ContextualizeSystemPrompt = `Given a chat history and the latest user question which might reference context in the chat history, formulate a standalone question which can be understood without the chat history. Do NOT answer the question, just reformulate it if needed and otherwise return it as is.`

const answerTemplate = `You are an assistant for question-answering tasks. Use the following pieces of retrieved context to answer the question. Answer only from the context. If the context does not contain the answer, just say that you don't know. Use {max_sentences} sentences maximum and keep the answer concise.

Context:
{context}`

var answerPrompt = prompts.NewPromptTemplate(answerTemplate, []string{"max_sentences", "context"})

// AnswerSystemPrompt renders the grounded answering instructions around the
// evidence block.
func AnswerSystemPrompt(maxSentences int, evidence string) (string, error) {
	out, err := answerPrompt.Format(map[string]any{
		"max_sentences": maxSentences,
		"context":       evidence,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render answer prompt: %w", err)
	}
	return out, nil
}
