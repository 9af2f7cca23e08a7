// Package answer turns retrieved context and a question into a natural-language
// answer using a chat model.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docrag-go/internal/budget"
	"github.com/54b3r/docrag-go/internal/logging"
)

// SystemPrompt frames the model as a document assistant for travel expense
// and budget questions.
const SystemPrompt = `You are a helpful document assistant for business-trip expense and budget questions.
Answer using only the provided context. If the context does not contain the answer, say so plainly.
When the user asks to make a purchase, approve spending or change a budget, do not perform or promise the action yourself; suggest forwarding the request to the accounts team.
Keep answers short and quote amounts, dates and names exactly as they appear in the context.`

// Answerer produces an answer for a question given retrieved context.
type Answerer interface {
	Answer(ctx context.Context, contextText, question string) (string, error)
}

// ErrEmptyResponse is returned when the model replies with no content.
var ErrEmptyResponse = errors.New("answer: model returned an empty response")

// Chat answers questions with an eino chat model.
type Chat struct {
	model model.BaseChatModel
}

// NewChat returns a Chat backed by m.
func NewChat(m model.BaseChatModel) (*Chat, error) {
	if m == nil {
		return nil, fmt.Errorf("answer: chat model must not be nil")
	}
	return &Chat{model: m}, nil
}

// UserPrompt formats the user turn sent alongside SystemPrompt.
func UserPrompt(contextText, question string) string {
	return "Context: " + contextText + "\n\nQuestion: " + question + "\n\nAnswer:"
}

// Messages builds the full prompt for a question.
func Messages(contextText, question string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(UserPrompt(contextText, question)),
	}
}

// Answer calls the model once and returns its trimmed reply.
func (c *Chat) Answer(ctx context.Context, contextText, question string) (string, error) {
	msgs := Messages(contextText, question)
	log := logging.FromContext(ctx)
	log.Debug("answer: generating", "estimated_tokens", budget.EstimateMessages(msgs))

	out, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("answer: generate: %w", err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(out.Content), nil
}
