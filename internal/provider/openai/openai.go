// Package openai adapts the OpenAI chat completions API to
// provider.Client.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/provider"
	"github.com/dojoai/dojo/internal/schema"
)

// envKeys is the lookup order for an API key when none is configured.
var envKeys = []string{"OPENAI_API_KEY", "OPENAI_KEY", "OPENAI_TOKEN"}

// Config holds connection settings. Zero fields fall back to
// DefaultConfig and the environment.
type Config struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
}

func DefaultConfig() *Config {
	cfg := &Config{
		BaseURL:    "https://api.openai.com/v1",
		MaxRetries: 3,
	}
	if base := os.Getenv("DOJO_OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	return cfg
}

// APIKeyFromEnv returns the first OpenAI key set in the environment,
// or "".
func APIKeyFromEnv() string {
	for _, name := range envKeys {
		if key := os.Getenv(name); key != "" {
			return key
		}
	}
	return ""
}

// Client talks to the OpenAI chat completions API.
type Client struct {
	api *openai.Client
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
		if cfg.MaxRetries > 0 {
			merged.MaxRetries = cfg.MaxRetries
		}
	}
	if merged.APIKey == "" {
		merged.APIKey = APIKeyFromEnv()
	}
	if merged.APIKey == "" {
		return nil, fmt.Errorf("openai API key not set (tried %s)", strings.Join(envKeys, ", "))
	}

	api := openai.NewClient(
		option.WithAPIKey(merged.APIKey),
		option.WithBaseURL(merged.BaseURL),
		option.WithMaxRetries(merged.MaxRetries),
	)
	return &Client{api: &api, cfg: merged}, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Reply, error) {
	resp, err := c.api.Chat.Completions.New(ctx, buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai completion: response has no choices")
	}

	choice := resp.Choices[0]
	reply := &provider.Reply{
		Text: choice.Message.Content,
		Usage: provider.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	for _, call := range choice.Message.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, ast.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return reply, nil
}

func buildParams(req *provider.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: encodeMessages(req),
		N:        openai.Int(1),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		toolParams := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, spec := range req.Tools {
			fn := openai.FunctionDefinitionParam{Name: spec.Name}
			if spec.Description != "" {
				fn.Description = openai.String(spec.Description)
			}
			if parameters := functionParameters(spec.Parameters); parameters != nil {
				fn.Parameters = parameters
			}
			toolParams = append(toolParams, openai.ChatCompletionToolParam{Function: fn})
		}
		params.Tools = toolParams
	}
	return params
}

// encodeMessages prepends the system prompt and maps transcript roles
// onto the chat completions shapes.
func encodeMessages(req *provider.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case ast.RoleAssistant:
			messages = append(messages, assistantMessage(msg))
		case ast.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case ast.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}

func assistantMessage(msg ast.Message) openai.ChatCompletionMessageParamUnion {
	assistant := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(msg.Content),
		}
	}
	for _, call := range msg.ToolCalls {
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

// functionParameters round-trips a schema through JSON into the loose
// map shape the SDK expects.
func functionParameters(s schema.JSON) openai.FunctionParameters {
	encoded, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var parameters openai.FunctionParameters
	if err := json.Unmarshal(encoded, &parameters); err != nil {
		return nil
	}
	return parameters
}
