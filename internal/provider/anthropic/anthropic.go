// Package anthropic adapts the Anthropic Messages API to
// provider.Client.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/provider"
)

const defaultMaxTokens = 8192

// maxTokenMap caps completions per model family. Older generations
// reject the 8192 default.
var maxTokenMap = map[string]int{
	"claude-opus-4":     64000,
	"claude-sonnet-4":   64000,
	"claude-3-7-sonnet": 64000,
	"claude-3-5-sonnet": 8192,
	"claude-3-5-haiku":  8192,
	"claude-3-opus":     4096,
	"claude-3-haiku":    4096,
}

// envKeys is the lookup order for an API key when none is configured.
var envKeys = []string{"ANTHROPIC_API_KEY", "CLAUDE_API_KEY", "ANTHROPIC_KEY"}

// Config holds connection settings. Zero fields fall back to
// DefaultConfig and the environment.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func DefaultConfig() *Config {
	cfg := &Config{
		BaseURL: "https://api.anthropic.com",
		Timeout: 120 * time.Second,
	}
	if base := os.Getenv("DOJO_ANTHROPIC_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	return cfg
}

// APIKeyFromEnv returns the first Anthropic key set in the
// environment, or "".
func APIKeyFromEnv() string {
	for _, name := range envKeys {
		if key := os.Getenv(name); key != "" {
			return key
		}
	}
	return ""
}

// Client talks to the Anthropic Messages API.
type Client struct {
	api *anthropic.Client
	cfg *Config
}

func New(cfg *Config) (*Client, error) {
	merged := DefaultConfig()
	if cfg != nil {
		if cfg.APIKey != "" {
			merged.APIKey = cfg.APIKey
		}
		if cfg.BaseURL != "" {
			merged.BaseURL = cfg.BaseURL
		}
		if cfg.Timeout > 0 {
			merged.Timeout = cfg.Timeout
		}
	}
	if merged.APIKey == "" {
		merged.APIKey = APIKeyFromEnv()
	}
	if merged.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key not set (tried %s)", strings.Join(envKeys, ", "))
	}

	api := anthropic.NewClient(
		option.WithAPIKey(merged.APIKey),
		option.WithBaseURL(merged.BaseURL),
		option.WithHTTPClient(&http.Client{Timeout: merged.Timeout}),
	)
	return &Client{api: &api, cfg: merged}, nil
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Reply, error) {
	resp, err := c.api.Messages.New(ctx, buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	reply := &provider.Reply{
		Usage: provider.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	var parts []string
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			parts = append(parts, b.Text)
		case anthropic.ToolUseBlock:
			reply.ToolCalls = append(reply.ToolCalls, ast.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: string(b.Input),
			})
		}
	}
	reply.Text = strings.Join(parts, "\n")
	return reply, nil
}

func buildParams(req *provider.Request) anthropic.MessageNewParams {
	maxTokens := maxTokensFor(req.Model)
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  encodeMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(req.Tools) > 0 {
		toolParams := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, spec := range req.Tools {
			toolParams = append(toolParams, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        spec.Name,
					Description: anthropic.String(spec.Description),
					InputSchema: anthropic.ToolInputSchemaParam{
						Type:       "object",
						Properties: spec.Parameters.Properties,
						Required:   spec.Parameters.Required,
					},
				},
			})
		}
		params.Tools = toolParams
	}
	return params
}

// encodeMessages maps transcript roles onto the Messages API. Tool
// results travel as tool_result blocks inside user messages.
func encodeMessages(history []ast.Message) []anthropic.MessageParam {
	encoded := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case ast.RoleAssistant:
			content := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				content = append(content, anthropic.NewToolUseBlock(call.ID, rawArgs(call.Arguments), call.Name))
			}
			if len(content) == 0 {
				continue
			}
			encoded = append(encoded, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: content,
			})
		case ast.RoleTool:
			encoded = append(encoded, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
				},
			})
		case ast.RoleUser:
			encoded = append(encoded, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})
		}
	}
	return encoded
}

func rawArgs(args string) json.RawMessage {
	if strings.TrimSpace(args) == "" {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(args)
}

func maxTokensFor(model string) int {
	for prefix, tokens := range maxTokenMap {
		if strings.HasPrefix(model, prefix) {
			return tokens
		}
	}
	return defaultMaxTokens
}
