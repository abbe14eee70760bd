package enrichment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	openai "github.com/sashabaranov/go-openai"

	"github.com/voxquery/voxquery/internal/observability"
)

// scriptedCompleter returns a canned tool-call response, or an error.
type scriptedCompleter struct {
	arguments string
	err       error
	lastReq   openai.ChatCompletionRequest
}

func (s *scriptedCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ToolCall{{
					Function: openai.FunctionCall{Arguments: s.arguments},
				}},
			},
		}},
	}, nil
}

func TestClassifyRecordsRequestMetrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	completer := &scriptedCompleter{arguments: `{"color":"blue"}`}
	classifier := newOpenAIClassifier(completer, "", metrics)

	value, err := classifier.Classify(context.Background(), Request{
		RowContext:  "The sky is blue.",
		Instruction: "Identify the color mentioned: {context}",
		Column:      "color",
		Allowed:     []string{"blue", "red", "green"},
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if value != "blue" {
		t.Fatalf("expected blue, got %q", value)
	}
	if !strings.Contains(completer.lastReq.Messages[0].Content, "The sky is blue.") {
		t.Fatalf("row context missing from prompt: %q", completer.lastReq.Messages[0].Content)
	}

	expected := `
# HELP voxquery_llm_requests_total LLM requests by purpose and status.
# TYPE voxquery_llm_requests_total counter
voxquery_llm_requests_total{purpose="classify",status="success"} 1
`
	if err := testutil.CollectAndCompare(metrics.LLMRequestCounter, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected request counter state: %v", err)
	}
	if got := testutil.CollectAndCount(metrics.LLMRequestDuration); got != 1 {
		t.Fatalf("expected 1 duration series, got %d", got)
	}
}

func TestClassifyRecordsErrorStatus(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	completer := &scriptedCompleter{err: errors.New("rate limited")}
	classifier := newOpenAIClassifier(completer, "", metrics)

	if _, err := classifier.Classify(context.Background(), Request{
		RowContext:  "Roses are red.",
		Instruction: "color?",
		Column:      "color",
	}); err == nil {
		t.Fatal("expected classification error")
	}

	expected := `
# HELP voxquery_llm_requests_total LLM requests by purpose and status.
# TYPE voxquery_llm_requests_total counter
voxquery_llm_requests_total{purpose="classify",status="error"} 1
`
	if err := testutil.CollectAndCompare(metrics.LLMRequestCounter, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected request counter state: %v", err)
	}
}

func TestClassifyRejectsValueOutsideAllowedSet(t *testing.T) {
	completer := &scriptedCompleter{arguments: `{"color":"purple"}`}
	classifier := newOpenAIClassifier(completer, "", nil)

	_, err := classifier.Classify(context.Background(), Request{
		RowContext:  "Violets are violet.",
		Instruction: "color?",
		Column:      "color",
		Allowed:     []string{"blue", "red", "green"},
	})
	if err == nil || !strings.Contains(err.Error(), "not in allowed set") {
		t.Fatalf("expected allowed-set rejection, got %v", err)
	}
}
