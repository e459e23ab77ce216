package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/provider"
	"github.com/dojoai/dojo/internal/schema"
	"github.com/dojoai/dojo/internal/tools"
)

func TestDefaultConfig(t *testing.T) {
	t.Run("Base URL Override", func(t *testing.T) {
		t.Setenv("DOJO_ANTHROPIC_BASE_URL", "http://localhost:9200")
		cfg := DefaultConfig()
		assert.Equal(t, "http://localhost:9200", cfg.BaseURL)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("DOJO_ANTHROPIC_BASE_URL", "")
		cfg := DefaultConfig()
		assert.Equal(t, "https://api.anthropic.com", cfg.BaseURL)
		assert.NotZero(t, cfg.Timeout)
	})
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Run("Primary Name Wins", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-primary")
		t.Setenv("CLAUDE_API_KEY", "sk-ant-secondary")
		t.Setenv("ANTHROPIC_KEY", "")
		assert.Equal(t, "sk-ant-primary", APIKeyFromEnv())
	})

	t.Run("Falls Back Through Aliases", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		t.Setenv("CLAUDE_API_KEY", "")
		t.Setenv("ANTHROPIC_KEY", "sk-ant-legacy")
		assert.Equal(t, "sk-ant-legacy", APIKeyFromEnv())
	})
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CLAUDE_API_KEY", "")
	t.Setenv("ANTHROPIC_KEY", "")

	_, err := New(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not set")

	client, err := New(&Config{APIKey: "sk-ant-test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", client.Name())
}

func TestMaxTokensFor(t *testing.T) {
	tests := []struct {
		model    string
		expected int
	}{
		{"claude-sonnet-4-20250514", 64000},
		{"claude-3-7-sonnet-20250219", 64000},
		{"claude-3-5-haiku-20241022", 8192},
		{"claude-3-haiku-20240307", 4096},
		{"claude-next", 8192},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.expected, maxTokensFor(tt.model))
		})
	}
}

func TestBuildParams(t *testing.T) {
	temperature := 0.2
	req := &provider.Request{
		Model:        "claude-3-5-haiku-20241022",
		SystemPrompt: "You are a refund clerk.",
		Temperature:  &temperature,
		Messages: []ast.Message{
			{Role: ast.RoleUser, Content: "I want my money back"},
			{
				Role:    ast.RoleAssistant,
				Content: "Checking the order now.",
				ToolCalls: []ast.ToolCall{
					{ID: "call_1", Name: "store__find_order", Arguments: `{"order_id":"A1"}`},
				},
			},
			{Role: ast.RoleTool, ToolCallID: "call_1", Content: `{"found":true}`},
		},
		Tools: []tools.ActionSpec{
			{
				Name:        "store__find_order",
				Description: "Look up an order",
				Parameters: schema.JSON{
					Type: "object",
					Properties: map[string]schema.JSON{
						"order_id": {Type: "string"},
					},
					Required: []string{"order_id"},
				},
			},
		},
	}

	params := buildParams(req)

	assert.Equal(t, "claude-3-5-haiku-20241022", string(params.Model))
	assert.Equal(t, int64(8192), params.MaxTokens)
	assert.Equal(t, 0.2, params.Temperature.Value)
	require.Len(t, params.System, 1)
	assert.Equal(t, "You are a refund clerk.", params.System[0].Text)

	require.Len(t, params.Messages, 3)
	require.Len(t, params.Messages[0].Content, 1)
	require.NotNil(t, params.Messages[0].Content[0].OfText)
	assert.Equal(t, "I want my money back", params.Messages[0].Content[0].OfText.Text)

	// Assistant turn carries the text block and the tool_use block.
	require.Len(t, params.Messages[1].Content, 2)
	require.NotNil(t, params.Messages[1].Content[1].OfToolUse)
	assert.Equal(t, "call_1", params.Messages[1].Content[1].OfToolUse.ID)
	assert.Equal(t, "store__find_order", params.Messages[1].Content[1].OfToolUse.Name)

	// Tool results ride in a user message.
	require.NotNil(t, params.Messages[2].Content[0].OfToolResult)
	assert.Equal(t, "call_1", params.Messages[2].Content[0].OfToolResult.ToolUseID)

	require.Len(t, params.Tools, 1)
	require.NotNil(t, params.Tools[0].OfTool)
	assert.Equal(t, "store__find_order", params.Tools[0].OfTool.Name)
	assert.Equal(t, []string{"order_id"}, params.Tools[0].OfTool.InputSchema.Required)
}

func TestBuildParamsMaxTokensOverride(t *testing.T) {
	maxTokens := 512
	params := buildParams(&provider.Request{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: &maxTokens,
	})
	assert.Equal(t, int64(512), params.MaxTokens)
}

func TestEncodeMessages(t *testing.T) {
	t.Run("Skips Empty Assistant Turns", func(t *testing.T) {
		encoded := encodeMessages([]ast.Message{
			{Role: ast.RoleAssistant},
			{Role: ast.RoleUser, Content: "hello"},
		})
		require.Len(t, encoded, 1)
	})

	t.Run("Skips System Entries", func(t *testing.T) {
		encoded := encodeMessages([]ast.Message{
			{Role: ast.RoleSystem, Content: "prompt"},
			{Role: ast.RoleUser, Content: "hi"},
		})
		require.Len(t, encoded, 1)
	})
}

func TestRawArgs(t *testing.T) {
	assert.Equal(t, json.RawMessage(`{}`), rawArgs(""))
	assert.Equal(t, json.RawMessage(`{}`), rawArgs("  "))
	assert.Equal(t, json.RawMessage(`{"n":1}`), rawArgs(`{"n":1}`))
}
