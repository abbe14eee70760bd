// Package enrichment runs background row-by-row LLM classification jobs that
// augment a dataset with a new labeled column, streaming per-row progress to
// listeners while the interactive conversation continues.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxquery/voxquery/internal/observability"
)

// Classifier assigns one of the allowed label values to a serialized row.
type Classifier interface {
	Classify(ctx context.Context, rowContext Request) (string, error)
}

// Request is one row-classification call.
type Request struct {
	// RowContext is the flat "col: value; col: value" serialization of the row.
	RowContext string

	// Instruction is the user's classification prompt.
	Instruction string

	// Column is the target column name.
	Column string

	// Allowed is the closed set of permitted label values.
	Allowed []string
}

// classifyCompleter is the slice of the OpenAI client the classifier needs.
type classifyCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClassifier implements Classifier with a structured function call
// constrained by an enum schema, so the model must return exactly one of the
// allowed values.
type OpenAIClassifier struct {
	client  classifyCompleter
	model   string
	metrics *observability.Metrics
}

// NewOpenAIClassifier creates a classifier. model defaults to gpt-4o-mini.
func NewOpenAIClassifier(apiKey, model string, metrics *observability.Metrics) *OpenAIClassifier {
	return newOpenAIClassifier(openai.NewClient(apiKey), model, metrics)
}

func newOpenAIClassifier(client classifyCompleter, model string, metrics *observability.Metrics) *OpenAIClassifier {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClassifier{client: client, model: model, metrics: metrics}
}

var functionNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// functionName derives a valid function-calling name from the column name.
func functionName(column string) string {
	name := functionNameSanitizer.ReplaceAllString(column, "_")
	if name == "" {
		name = "value"
	}
	return "classify_" + name
}

// classificationSchema builds the single-property object schema; a non-empty
// allowed set becomes an enum constraint.
func classificationSchema(column string, allowed []string) (json.RawMessage, string) {
	prop := map[string]any{
		"type":        "string",
		"description": fmt.Sprintf("The %s of the statement.", column),
	}
	description := fmt.Sprintf("Extract the %q from the input as a string.", column)
	if len(allowed) > 0 {
		prop["enum"] = allowed
		description = fmt.Sprintf("Classify the input according to %q. Must be one of: %s.",
			column, strings.Join(allowed, ", "))
	}
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{column: prop},
		"required":   []string{column},
	}
	payload, _ := json.Marshal(schema)
	return payload, description
}

func (c *OpenAIClassifier) Classify(ctx context.Context, req Request) (string, error) {
	schema, description := classificationSchema(req.Column, req.Allowed)
	name := functionName(req.Column)

	prompt := req.Instruction
	if strings.Contains(prompt, "{context}") {
		prompt = strings.ReplaceAll(prompt, "{context}", req.RowContext)
	} else {
		prompt = prompt + "\n\nInput: " + req.RowContext
	}

	resp, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: description,
				Parameters:  schema,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: name},
		},
	})
	if err != nil {
		return "", fmt.Errorf("classification call: %w", err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return "", fmt.Errorf("classification returned no tool call")
	}

	var args map[string]string
	raw := resp.Choices[0].Message.ToolCalls[0].Function.Arguments
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return "", fmt.Errorf("decode classification arguments %q: %w", raw, err)
	}
	value, ok := args[req.Column]
	if !ok {
		return "", fmt.Errorf("classification result missing %q", req.Column)
	}
	if len(req.Allowed) > 0 && !contains(req.Allowed, value) {
		return "", fmt.Errorf("classification value %q not in allowed set", value)
	}
	return value, nil
}

func (c *OpenAIClassifier) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.LLMRequestCounter.WithLabelValues("classify", status).Inc()
		c.metrics.LLMRequestDuration.WithLabelValues("classify").Observe(time.Since(start).Seconds())
	}
	return resp, err
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
