package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxquery/voxquery/internal/observability"
	"github.com/voxquery/voxquery/internal/sessions"
	"github.com/voxquery/voxquery/pkg/models"
)

const defaultSystemPrompt = `You are a voice-first data analyst. The user has a tabular dataset bound to this session. Answer questions about it by calling the execute_dataframe_code tool with short Go snippets that operate on the bound df handle, or start a background enrichment with enrich_dataset. Keep spoken answers short and concrete; read numbers aloud rather than printing tables.`

// maxToolRounds bounds how many tool-call rounds a single turn may take
// before the runtime forces a final answer.
const maxToolRounds = 8

// completer is the slice of the OpenAI client the runtime needs.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// RuntimeOptions tune the completion loop.
type RuntimeOptions struct {
	Model        string
	SystemPrompt string
	Temperature  float32
}

// Runtime drives one conversational turn: it feeds the session history plus
// the new user message to the LLM, executes any requested tool calls through
// the registry, and loops until the model produces plain text.
type Runtime struct {
	client   completer
	registry *ToolRegistry
	sessions *sessions.Registry
	opts     RuntimeOptions
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewRuntime creates a runtime over the given OpenAI client.
func NewRuntime(client *openai.Client, registry *ToolRegistry, store *sessions.Registry, opts RuntimeOptions, logger *observability.Logger, metrics *observability.Metrics) *Runtime {
	return newRuntime(client, registry, store, opts, logger, metrics)
}

func newRuntime(client completer, registry *ToolRegistry, store *sessions.Registry, opts RuntimeOptions, logger *observability.Logger, metrics *observability.Metrics) *Runtime {
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Runtime{
		client:   client,
		registry: registry,
		sessions: store,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

// Process runs one turn for the session and returns the final assistant
// text. The user message and the final text are appended to the session
// history; intermediate tool traffic is not persisted.
func (rt *Runtime) Process(ctx context.Context, sessionID, userText string) (string, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "", errors.New("empty message")
	}
	ctx = observability.WithSessionID(ctx, sessionID)

	if err := rt.sessions.Append(ctx, sessionID, models.RoleUser, userText); err != nil {
		return "", fmt.Errorf("append user message: %w", err)
	}
	history, err := rt.sessions.History(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	msgs := rt.seedMessages(history)
	tools := rt.openAITools()

	for round := 0; round <= maxToolRounds; round++ {
		req := openai.ChatCompletionRequest{
			Model:       rt.opts.Model,
			Messages:    msgs,
			Temperature: rt.opts.Temperature,
		}
		// The final forced round withholds tools so the model must answer.
		if round < maxToolRounds {
			req.Tools = tools
		}

		resp, err := rt.complete(ctx, req)
		if err != nil {
			return "", fmt.Errorf("completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("completion returned no choices")
		}
		choice := resp.Choices[0].Message

		if len(choice.ToolCalls) == 0 {
			final := strings.TrimSpace(choice.Content)
			if appendErr := rt.sessions.Append(ctx, sessionID, models.RoleAssistant, final); appendErr != nil {
				rt.logger.Warn(ctx, "history append failed", "error", appendErr)
			}
			return final, nil
		}

		msgs = append(msgs, choice)
		for _, call := range choice.ToolCalls {
			result, execErr := rt.registry.Execute(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
			if execErr != nil {
				return "", fmt.Errorf("tool %s: %w", call.Function.Name, execErr)
			}
			rt.logger.Debug(ctx, "tool executed",
				"tool", call.Function.Name,
				"is_error", result.IsError)
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result.Content,
				ToolCallID: call.ID,
			})
		}
	}

	return "", errors.New("turn exceeded tool round limit")
}

func (rt *Runtime) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	start := time.Now()
	resp, err := rt.client.CreateChatCompletion(ctx, req)
	if rt.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		rt.metrics.LLMRequestCounter.WithLabelValues("turn", status).Inc()
		rt.metrics.LLMRequestDuration.WithLabelValues("turn").Observe(time.Since(start).Seconds())
	}
	return resp, err
}

// seedMessages converts the persisted history into the OpenAI wire shape,
// prefixed by the system prompt.
func (rt *Runtime) seedMessages(history []models.Message) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: rt.opts.SystemPrompt,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	return msgs
}

func (rt *Runtime) openAITools() []openai.Tool {
	registered := rt.registry.List()
	out := make([]openai.Tool, 0, len(registered))
	for _, t := range registered {
		var params any
		if err := json.Unmarshal(t.Schema(), &params); err != nil {
			params = map[string]any{"type": "object"}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  params,
			},
		})
	}
	return out
}
