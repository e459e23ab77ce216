package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/provider"
	"github.com/dojoai/dojo/internal/tools"
)

const (
	defaultModel       = "gpt-5-mini"
	defaultTemperature = 0.2
	defaultMaxTokens   = 1024
)

// LLM asks a hosted model for the next action. When no provider can
// be constructed (typically a missing API key) it degrades to
// deterministic stub responses so modules stay runnable offline.
type LLM struct {
	spec      *Spec
	providers *provider.Registry
}

func newLLM(spec *Spec, providers *provider.Registry) *LLM {
	return &LLM{spec: spec, providers: providers}
}

func (a *LLM) ID() string { return a.spec.ID }

func (a *LLM) Step(ctx context.Context, history []ast.Message, published []PublishedTool) (Action, error) {
	client, err := a.resolveClient()
	if err != nil {
		log.Debug().Err(err).Str("agent", a.spec.ID).Msg("no provider, using stub responses")
		return stubAction(history, credentialHint(provider.InferProvider(a.model()))), nil
	}

	reply, err := client.Complete(ctx, a.buildRequest(history, published))
	if err != nil {
		if ctx.Err() != nil {
			return Action{}, ctx.Err()
		}
		// Surface API failures as a message so the run records them
		// instead of aborting.
		return Action{Type: ActionMessage, Content: fmt.Sprintf("Error calling LLM: %v", err)}, nil
	}
	return parseReply(reply), nil
}

func (a *LLM) model() string {
	if a.spec.Model != "" {
		return a.spec.Model
	}
	return defaultModel
}

// resolveClient prefers an explicit params.provider and otherwise
// infers the provider from the model name.
func (a *LLM) resolveClient() (provider.Client, error) {
	if name, ok := a.spec.Params["provider"].(string); ok && name != "" {
		return a.providers.Get(name)
	}
	return a.providers.ForModel(a.model())
}

func (a *LLM) buildRequest(history []ast.Message, published []PublishedTool) *provider.Request {
	model := a.model()
	req := &provider.Request{
		Model:        model,
		SystemPrompt: a.spec.SystemPrompt,
		Messages:     history,
		Tools:        Functions(published),
	}

	maxTokens := intParam(a.spec.Params, "max_tokens", defaultMaxTokens)
	req.MaxTokens = &maxTokens

	// Nano-tier models reject a temperature parameter.
	if !strings.Contains(model, "nano") {
		temperature := floatParam(a.spec.Params, "temperature", defaultTemperature)
		req.Temperature = &temperature
	}
	return req
}

// parseReply maps a completion onto the action union. Only the first
// tool call is honored; the executor feeds its result back before the
// model gets another turn.
func parseReply(reply *provider.Reply) Action {
	if len(reply.ToolCalls) > 0 {
		call := reply.ToolCalls[0]
		toolName, toolAction := tools.SplitFunctionName(call.Name)
		args := map[string]interface{}{}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			args = map[string]interface{}{}
		}
		return Action{
			Type:       ActionToolCall,
			ToolName:   toolName,
			ToolAction: toolAction,
			ToolArgs:   args,
			ToolCallID: call.ID,
		}
	}
	if reply.Text == "" {
		return Action{Type: ActionStop}
	}
	return Action{Type: ActionMessage, Content: reply.Text}
}

// stubAction produces a deterministic reply keyed off the last user
// message so offline demos still read like a conversation.
func stubAction(history []ast.Message, hint string) Action {
	if last := lastUserContent(history); last != "" {
		content := strings.ToLower(last)
		switch {
		case strings.Contains(content, "refund"):
			return Action{
				Type: ActionMessage,
				Content: "I understand you're inquiring about a refund. Let me look into " +
					"that for you. Could you please provide your order number?",
			}
		case strings.Contains(content, "order"):
			return Action{
				Type:    ActionMessage,
				Content: "I'd be happy to help you with your order. What would you like to know about it?",
			}
		}
	}
	return Action{
		Type:    ActionMessage,
		Content: fmt.Sprintf("[STUB] This is a development stub response. Set %s to enable real completions.", hint),
	}
}

func lastUserContent(history []ast.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == ast.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

func credentialHint(providerName string) string {
	switch providerName {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "bedrock":
		return "AWS credentials"
	default:
		return "OPENAI_API_KEY"
	}
}

func floatParam(params map[string]interface{}, key string, fallback float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
