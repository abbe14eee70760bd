// Package report builds the post-session deliverable: a prose summary of the
// conversation and a rendered document over the session's dataset.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxquery/voxquery/internal/observability"
	"github.com/voxquery/voxquery/pkg/models"
)

const summarySystemPrompt = `You summarize a finished data-analysis conversation for an emailed report. Write a short prose summary of the questions asked and the findings, in plain language. Do not invent numbers that were not in the conversation.`

// maxSummaryMessages caps how much history is sent for summarization.
const maxSummaryMessages = 200

type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Summarizer turns an ordered session history into report prose.
type Summarizer struct {
	client  completer
	model   string
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewSummarizer creates a summarizer over the given OpenAI client.
func NewSummarizer(client *openai.Client, model string, logger *observability.Logger, metrics *observability.Metrics) *Summarizer {
	return newSummarizer(client, model, logger, metrics)
}

func newSummarizer(client completer, model string, logger *observability.Logger, metrics *observability.Metrics) *Summarizer {
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Summarizer{client: client, model: model, logger: logger, metrics: metrics}
}

// Summarize produces prose from the session history. An empty history yields
// a fixed no-activity summary without an LLM call.
func (s *Summarizer) Summarize(ctx context.Context, history []models.Message) (string, error) {
	if len(history) == 0 {
		return "No questions were asked in this session.", nil
	}
	if len(history) > maxSummaryMessages {
		history = history[len(history)-maxSummaryMessages:]
	}

	var transcript strings.Builder
	for _, m := range history {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript.String()},
		},
		Temperature: 0.2,
	})
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.metrics.LLMRequestCounter.WithLabelValues("summary", status).Inc()
		s.metrics.LLMRequestDuration.WithLabelValues("summary").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return "", fmt.Errorf("summarize session: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("summarize session: no choices returned")
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", errors.New("summarize session: empty summary")
	}
	return summary, nil
}
