package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxquery/voxquery/internal/sessions"
	"github.com/voxquery/voxquery/pkg/models"
)

// scriptedLLM replays canned responses and records the requests it saw.
type scriptedLLM struct {
	responses []openai.ChatCompletionResponse
	requests  []openai.ChatCompletionRequest
	err       error
}

func (s *scriptedLLM) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	if len(s.responses) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("script exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func textResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			},
		}},
	}
}

func toolCallResponse(callID, name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   callID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      name,
						Arguments: args,
					},
				}},
			},
		}},
	}
}

func loopFixture(t *testing.T, llm *scriptedLLM, tools ...Tool) (*Runtime, *sessions.Registry) {
	t.Helper()
	reg := NewToolRegistry()
	for _, tool := range tools {
		reg.Register(tool)
	}
	store := sessions.NewRegistry()
	if _, err := store.Create(context.Background(), "sess-1"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return newRuntime(llm, reg, store, RuntimeOptions{Model: "test-model"}, nil, nil), store
}

func TestProcessPlainAnswer(t *testing.T) {
	llm := &scriptedLLM{responses: []openai.ChatCompletionResponse{textResponse("There are two rows.")}}
	rt, store := loopFixture(t, llm)

	got, err := rt.Process(context.Background(), "sess-1", "How many rows?")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got != "There are two rows." {
		t.Fatalf("unexpected answer %q", got)
	}

	history, _ := store.History(context.Background(), "sess-1")
	if len(history) != 2 {
		t.Fatalf("expected user+assistant history, got %d entries", len(history))
	}
	if history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected roles %v %v", history[0].Role, history[1].Role)
	}

	// System prompt leads every request.
	first := llm.requests[0]
	if first.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("expected system message first, got %s", first.Messages[0].Role)
	}
}

func TestProcessToolRound(t *testing.T) {
	llm := &scriptedLLM{responses: []openai.ChatCompletionResponse{
		toolCallResponse("call-1", "echo", `{"text":"27.5"}`),
		textResponse("The mean age is 27.5."),
	}}
	rt, _ := loopFixture(t, llm, &echoTool{name: "echo"})

	got, err := rt.Process(context.Background(), "sess-1", "What is the mean age?")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got != "The mean age is 27.5." {
		t.Fatalf("unexpected answer %q", got)
	}

	// Second request must carry the tool call and its result.
	second := llm.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != openai.ChatMessageRoleTool || last.Content != "27.5" || last.ToolCallID != "call-1" {
		t.Fatalf("unexpected tool message %+v", last)
	}
}

func TestProcessToolsAdvertised(t *testing.T) {
	llm := &scriptedLLM{responses: []openai.ChatCompletionResponse{textResponse("ok")}}
	rt, _ := loopFixture(t, llm, &echoTool{name: "echo"})

	if _, err := rt.Process(context.Background(), "sess-1", "hi"); err != nil {
		t.Fatalf("process: %v", err)
	}

	req := llm.requests[0]
	if len(req.Tools) != 1 || req.Tools[0].Function.Name != "echo" {
		t.Fatalf("expected echo tool advertised, got %+v", req.Tools)
	}
	schema, err := json.Marshal(req.Tools[0].Function.Parameters)
	if err != nil || !strings.Contains(string(schema), "text") {
		t.Fatalf("unexpected schema %s (%v)", schema, err)
	}
}

func TestProcessEmptyMessage(t *testing.T) {
	rt, _ := loopFixture(t, &scriptedLLM{})
	if _, err := rt.Process(context.Background(), "sess-1", "   "); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestProcessCompletionError(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("rate limited")}
	rt, _ := loopFixture(t, llm)

	if _, err := rt.Process(context.Background(), "sess-1", "hi"); err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected completion error, got %v", err)
	}
}

func TestProcessRoundLimit(t *testing.T) {
	// The model keeps calling tools; every scripted response is a tool call.
	responses := make([]openai.ChatCompletionResponse, 0, maxToolRounds+2)
	for i := 0; i < maxToolRounds+2; i++ {
		responses = append(responses, toolCallResponse("call", "echo", `{"text":"x"}`))
	}
	llm := &scriptedLLM{responses: responses}
	rt, _ := loopFixture(t, llm, &echoTool{name: "echo"})

	if _, err := rt.Process(context.Background(), "sess-1", "loop forever"); err == nil {
		t.Fatal("expected round limit error")
	}

	// The forced final round must not advertise tools.
	last := llm.requests[len(llm.requests)-1]
	if len(last.Tools) != 0 {
		t.Fatalf("final round should withhold tools, got %d", len(last.Tools))
	}
}
