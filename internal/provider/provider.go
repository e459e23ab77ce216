// Package provider connects agent turns to hosted language models.
//
// Adapters live in subpackages (openai, anthropic, bedrock) and
// translate a Request into the vendor SDK's call shape. The parent
// package stays SDK-free so agents can depend on the Client interface
// without dragging every vendor module into their build.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/tools"
)

// ErrUnknownProvider is returned when a registry lookup names a
// provider nothing registered.
var ErrUnknownProvider = errors.New("unknown provider")

// Client is a single-turn completion client.
type Client interface {
	// Name reports the provider's registry name.
	Name() string

	// Complete sends one conversation turn and returns the model's
	// reply. Implementations honor ctx for cancellation.
	Complete(ctx context.Context, req *Request) (*Reply, error)
}

// Request is one completion turn. Tools carries the flat function
// list (tool__action names) the model may call this turn.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []ast.Message
	Tools        []tools.ActionSpec
	Temperature  *float64
	MaxTokens    *int
}

// Reply is the model's turn. Text and ToolCalls may both be set; the
// executor appends the text first and then dispatches each call.
type Reply struct {
	Text      string
	ToolCalls []ast.ToolCall
	Usage     Usage
}

// Usage counts tokens for one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Factory builds a client on first use. Construction is deferred so a
// missing API key only fails runs that actually reach the provider.
type Factory func() (Client, error)

// Registry maps provider names to lazily constructed clients.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	clients   map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		clients:   make(map[string]Client),
	}
}

// Register installs a factory under name, replacing any previous one.
func (r *Registry) Register(name string, build Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = build
	delete(r.clients, name)
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the client for name, constructing it on first call.
// Failed constructions are not cached so a later call can retry once
// credentials appear.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[name]; ok {
		return client, nil
	}
	build, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	client, err := build()
	if err != nil {
		return nil, fmt.Errorf("constructing provider %q: %w", name, err)
	}
	r.clients[name] = client
	return client, nil
}

// ForModel resolves the client for a model identifier using
// InferProvider.
func (r *Registry) ForModel(model string) (Client, error) {
	name := InferProvider(model)
	if name == "" {
		return nil, fmt.Errorf("cannot infer provider for model %q", model)
	}
	return r.Get(name)
}

// InferProvider maps a model identifier to a provider name. Bedrock
// identifiers ("anthropic.claude-...", inference-profile ARNs) are
// checked before the bare vendor prefixes. Returns "" when the model
// matches nothing.
func InferProvider(model string) string {
	switch {
	case strings.HasPrefix(model, "anthropic.") || strings.HasPrefix(model, "arn:"):
		return "bedrock"
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o"):
		return "openai"
	}
	return ""
}
