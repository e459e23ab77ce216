package cli

import (
	"context"

	"github.com/dojoai/dojo/internal/provider"
	"github.com/dojoai/dojo/internal/provider/anthropic"
	"github.com/dojoai/dojo/internal/provider/bedrock"
	"github.com/dojoai/dojo/internal/provider/openai"
)

// defaultProviders registers every provider adapter. Construction is
// lazy, so a missing API key only fails runs that name that provider.
func defaultProviders() *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register("openai", func() (provider.Client, error) {
		return openai.New(nil)
	})
	registry.Register("anthropic", func() (provider.Client, error) {
		return anthropic.New(nil)
	})
	registry.Register("bedrock", func() (provider.Client, error) {
		return bedrock.New(context.Background(), nil)
	})
	return registry
}
