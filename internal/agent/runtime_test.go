package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type echoTool struct {
	name string
	fail error
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "echoes its input back" }
func (t *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`)
}

func (t *echoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	if t.fail != nil {
		return nil, t.fail
	}
	var input struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &ToolResult{Content: "invalid parameters", IsError: true}, nil
	}
	return &ToolResult{Content: input.Text}, nil
}

func TestRegistryExecute(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&echoTool{name: "echo"})

	result, err := reg.Execute(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError || result.Content != "hi" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	reg := NewToolRegistry()

	result, err := reg.Execute(context.Background(), "missing", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "unknown tool") {
		t.Fatalf("expected unknown-tool error result, got %+v", result)
	}
}

func TestRegistryToolErrorBecomesResult(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&echoTool{name: "echo", fail: errors.New("boom")})

	result, err := reg.Execute(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "boom") {
		t.Fatalf("expected error result, got %+v", result)
	}
}

func TestRegistryListOrder(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&echoTool{name: "beta"})
	reg.Register(&echoTool{name: "alpha"})
	reg.Register(&echoTool{name: "beta"}) // replacement keeps position

	tools := reg.List()
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if tools[0].Name() != "beta" || tools[1].Name() != "alpha" {
		t.Fatalf("unexpected order: %s, %s", tools[0].Name(), tools[1].Name())
	}
}

func TestRegistryOversizeParams(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&echoTool{name: "echo"})

	big := json.RawMessage(strings.Repeat("x", MaxToolParamsSize+1))
	result, err := reg.Execute(context.Background(), "echo", big)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for oversize params")
	}
}
