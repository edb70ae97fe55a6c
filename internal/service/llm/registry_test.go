package llm

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/internal/capabilities"
	"council/internal/config"
	"council/internal/domain"
	"council/internal/domain/models/llm"
	domainllm "council/internal/domain/services/llm"
	"council/internal/service/llm/adapters"
	"council/internal/service/llm/llmtest"
)

const testCapabilities = `provider: fake
models:
  fake-tools:
    display_name: Fake With Tools
    supports_tools: true
    supports_parallel_tools: true
  fake-text:
    display_name: Fake Text Only
    supports_tools: false
    supports_parallel_tools: true
`

func newTestRegistry(t *testing.T, creator AdapterCreatorFunc) *ProviderRegistry {
	t.Helper()
	caps, err := capabilities.NewRegistryFromFS(fstest.MapFS{
		"caps/fake.yaml": &fstest.MapFile{Data: []byte(testCapabilities)},
	}, "caps")
	require.NoError(t, err)

	factory := NewAdapterFactory()
	factory.Register("fake", creator)
	return NewProviderRegistry(factory, caps, adapters.RetryPolicy{}, nil)
}

func TestProviderRegistry_Resolve(t *testing.T) {
	created := 0
	scripted := llmtest.NewScriptedProvider("fake", llmtest.Text("hello"))
	registry := newTestRegistry(t, func() (domainllm.Provider, error) {
		created++
		return scripted, nil
	})

	provider, caps, err := registry.Resolve("fake-tools")
	require.NoError(t, err)
	assert.Equal(t, "fake", provider.Name())
	assert.True(t, caps.FunctionCalling)
	assert.True(t, caps.ParallelToolCalls)

	_, caps, err = registry.Resolve("fake-text")
	require.NoError(t, err)
	assert.False(t, caps.FunctionCalling)
	assert.False(t, caps.ParallelToolCalls, "parallel calls need function calling")

	assert.Equal(t, 1, created, "one adapter per provider")

	conv := llm.NewConversation("", nil)
	conv.AppendUser("hi")
	resp, err := provider.Send(context.Background(), &domainllm.SendRequest{Model: "fake-tools", Conversation: conv})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
}

func TestProviderRegistry_ResolveErrors(t *testing.T) {
	registry := newTestRegistry(t, func() (domainllm.Provider, error) {
		return nil, errors.New("no key")
	})

	_, _, err := registry.Resolve("unknown-model")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = registry.Resolve("fake-tools")
	assert.ErrorContains(t, err, "no key")
}

func TestAdapterFactory_Unsupported(t *testing.T) {
	f := NewAdapterFactory()
	f.Register("b", func() (domainllm.Provider, error) { return nil, nil })
	f.Register("a", func() (domainllm.Provider, error) { return nil, nil })

	_, err := f.CreateAdapter("zzz")
	assert.ErrorContains(t, err, "supported: a, b")
	assert.Equal(t, []string{"a", "b"}, f.Providers())
}

func TestAvailableProviders(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want []string
	}{
		{"no keys", config.Config{}, []string{"lorem"}},
		{"anthropic", config.Config{AnthropicAPIKey: "k"}, []string{"anthropic", "lorem"}},
		{"all", config.Config{AnthropicAPIKey: "k", OpenRouterAPIKey: "k"}, []string{"anthropic", "lorem", "openrouter"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AvailableProviders(&tt.cfg))
		})
	}
}
