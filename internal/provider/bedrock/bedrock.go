// Package bedrock adapts the AWS Bedrock Converse API to
// provider.Client. Credentials come from the standard AWS chain.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/provider"
	"github.com/dojoai/dojo/internal/tools"
)

const defaultRegion = "us-east-1"

// Config holds connection settings. An empty region falls back to
// AWS_REGION and then us-east-1.
type Config struct {
	Region string
}

func DefaultConfig() *Config {
	cfg := &Config{Region: defaultRegion}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.Region = region
	}
	return cfg
}

// Client talks to Bedrock through the non-streaming Converse API.
type Client struct {
	api *bedrockruntime.Client
	cfg *Config
}

func New(ctx context.Context, cfg *Config) (*Client, error) {
	merged := DefaultConfig()
	if cfg != nil && cfg.Region != "" {
		merged.Region = cfg.Region
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(merged.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &Client{api: bedrockruntime.NewFromConfig(awsCfg), cfg: merged}, nil
}

func (c *Client) Name() string { return "bedrock" }

func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Reply, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: encodeMessages(req.Messages),
	}
	if req.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.SystemPrompt},
		}
	}
	if req.MaxTokens != nil || req.Temperature != nil {
		inference := &types.InferenceConfiguration{}
		if req.MaxTokens != nil {
			inference.MaxTokens = aws.Int32(int32(*req.MaxTokens))
		}
		if req.Temperature != nil {
			inference.Temperature = aws.Float32(float32(*req.Temperature))
		}
		input.InferenceConfig = inference
	}
	if len(req.Tools) > 0 {
		toolConfig, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		input.ToolConfig = toolConfig
	}

	output, err := c.api.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}
	return translateOutput(output)
}

// encodeMessages maps transcript roles onto Converse messages. Tool
// results travel inside user messages, matching the Converse contract.
func encodeMessages(history []ast.Message) []types.Message {
	encoded := make([]types.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case ast.RoleAssistant:
			var content []types.ContentBlock
			if msg.Content != "" {
				content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				content = append(content, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(call.ID),
						Name:      aws.String(call.Name),
						Input:     document.NewLazyDocument(decodeArgs(call.Arguments)),
					},
				})
			}
			if len(content) == 0 {
				continue
			}
			encoded = append(encoded, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: content,
			})
		case ast.RoleTool:
			encoded = append(encoded, types.Message{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberToolResult{
						Value: types.ToolResultBlock{
							ToolUseId: aws.String(msg.ToolCallID),
							Content: []types.ToolResultContentBlock{
								&types.ToolResultContentBlockMemberText{Value: msg.Content},
							},
						},
					},
				},
			})
		case ast.RoleUser:
			encoded = append(encoded, types.Message{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: msg.Content},
				},
			})
		}
	}
	return encoded
}

func encodeTools(specs []tools.ActionSpec) (*types.ToolConfiguration, error) {
	list := make([]types.Tool, 0, len(specs))
	for _, spec := range specs {
		encoded, err := json.Marshal(spec.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encoding schema for tool %q: %w", spec.Name, err)
		}
		var schemaDoc map[string]interface{}
		if err := json.Unmarshal(encoded, &schemaDoc); err != nil {
			return nil, fmt.Errorf("encoding schema for tool %q: %w", spec.Name, err)
		}
		// Converse rejects empty tool descriptions.
		description := spec.Description
		if description == "" {
			description = spec.Name
		}
		list = append(list, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(spec.Name),
				Description: aws.String(description),
				InputSchema: &types.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(schemaDoc),
				},
			},
		})
	}
	return &types.ToolConfiguration{Tools: list}, nil
}

func translateOutput(output *bedrockruntime.ConverseOutput) (*provider.Reply, error) {
	message, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("bedrock converse: unexpected output type %T", output.Output)
	}

	reply := &provider.Reply{}
	if output.Usage != nil {
		reply.Usage = provider.Usage{
			InputTokens:  int(aws.ToInt32(output.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
		}
	}
	var parts []string
	for _, block := range message.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			parts = append(parts, b.Value)
		case *types.ContentBlockMemberToolUse:
			args, err := b.Value.Input.MarshalSmithyDocument()
			if err != nil {
				return nil, fmt.Errorf("bedrock converse: decoding tool input: %w", err)
			}
			reply.ToolCalls = append(reply.ToolCalls, ast.ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: string(args),
			})
		}
	}
	reply.Text = strings.Join(parts, "\n")
	return reply, nil
}

func decodeArgs(args string) map[string]interface{} {
	parsed := map[string]interface{}{}
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return map[string]interface{}{}
	}
	return parsed
}
