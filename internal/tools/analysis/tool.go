// Package analysis exposes the data-analysis capabilities as agent tools:
// sandboxed dataframe code execution and background dataset enrichment.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxquery/voxquery/internal/agent"
	"github.com/voxquery/voxquery/internal/dataset"
	"github.com/voxquery/voxquery/internal/enrichment"
	"github.com/voxquery/voxquery/internal/observability"
	"github.com/voxquery/voxquery/internal/sandbox"
)

// ExecuteCodeTool runs a Go snippet against the session's dataset inside the
// sandbox and routes the outcome (text, chart, export candidate).
type ExecuteCodeTool struct {
	executor *sandbox.Executor
	router   *agent.Router
}

// NewExecuteCodeTool creates the execute_dataframe_code tool.
func NewExecuteCodeTool(executor *sandbox.Executor, router *agent.Router) *ExecuteCodeTool {
	return &ExecuteCodeTool{executor: executor, router: router}
}

func (t *ExecuteCodeTool) Name() string { return "execute_dataframe_code" }

func (t *ExecuteCodeTool) Description() string {
	return "Execute a short Go snippet against the session's dataset. The dataset is bound as df; use the charts helper for plots. A single expression returns its value; statements return captured output. Set upload to export the resulting table to a spreadsheet."
}

func (t *ExecuteCodeTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"code": map[string]interface{}{
				"type":        "string",
				"description": "Go code operating on the bound df handle.",
			},
			"analysis_title": map[string]interface{}{
				"type":        "string",
				"description": "Title for the exported spreadsheet (used with upload).",
			},
			"upload": map[string]interface{}{
				"type":        "boolean",
				"description": "Export the resulting table to a spreadsheet.",
			},
		},
		"required": []string{"code"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ExecuteCodeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Code          string `json:"code"`
		AnalysisTitle string `json:"analysis_title"`
		Upload        bool   `json:"upload"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Code) == "" {
		return toolError("code is required"), nil
	}

	sessionID := observability.SessionIDFromContext(ctx)
	t.router.PublishCode(ctx, sessionID, input.Code)
	outcome := t.executor.Execute(ctx, sessionID, input.Code)
	text := t.router.Route(ctx, sessionID, outcome, agent.RouteOptions{
		Upload: input.Upload,
		Title:  input.AnalysisTitle,
	})

	return &agent.ToolResult{
		Content: text,
		IsError: outcome.Kind == sandbox.Failed,
	}, nil
}

// EnrichTool starts a background per-row classification job over the
// session's dataset and acknowledges immediately; progress streams on the
// enrichment broadcast channel.
type EnrichTool struct {
	runner   *enrichment.Runner
	resolver *dataset.Resolver
}

// NewEnrichTool creates the enrich_dataset tool.
func NewEnrichTool(runner *enrichment.Runner, resolver *dataset.Resolver) *EnrichTool {
	return &EnrichTool{runner: runner, resolver: resolver}
}

func (t *EnrichTool) Name() string { return "enrich_dataset" }

func (t *EnrichTool) Description() string {
	return "Start a background job that classifies every row of the session's dataset into a new column, writing the augmented rows to a shared spreadsheet as they complete. Returns immediately; progress is streamed to listeners."
}

func (t *EnrichTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"classification_prompt": map[string]interface{}{
				"type":        "string",
				"description": "Instruction for classifying one row; {context} is replaced by the serialized row.",
			},
			"output_column_name": map[string]interface{}{
				"type":        "string",
				"description": "Name of the new column to write classifications into.",
			},
			"document_title": map[string]interface{}{
				"type":        "string",
				"description": "Title of the destination spreadsheet.",
			},
			"possible_values": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Closed set of allowed classification values.",
			},
		},
		"required": []string{"classification_prompt", "output_column_name", "document_title", "possible_values"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *EnrichTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ClassificationPrompt string   `json:"classification_prompt"`
		OutputColumnName     string   `json:"output_column_name"`
		DocumentTitle        string   `json:"document_title"`
		PossibleValues       []string `json:"possible_values"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.ClassificationPrompt) == "" {
		return toolError("classification_prompt is required"), nil
	}
	if strings.TrimSpace(input.OutputColumnName) == "" {
		return toolError("output_column_name is required"), nil
	}
	if len(input.PossibleValues) == 0 {
		return toolError("possible_values must not be empty"), nil
	}

	sessionID := observability.SessionIDFromContext(ctx)
	frame := t.resolver.Resolve(ctx, sessionID)

	job, err := t.runner.Submit(frame, input.ClassificationPrompt, input.OutputColumnName,
		input.PossibleValues, input.DocumentTitle, sessionID)
	if err != nil {
		return toolError(fmt.Sprintf("could not start enrichment: %v", err)), nil
	}

	return &agent.ToolResult{
		Content: fmt.Sprintf("Enrichment started: classifying %d rows into column %q. Progress will be announced as rows complete.", frame.Len(), job.Column),
	}, nil
}

func toolError(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: message, IsError: true}
}
