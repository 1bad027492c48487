// Package anyllm provides a conversation engine backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/pitchline-ai/pitchline/internal/engine"
)

// Compile-time assertions that the exported types satisfy the engine interfaces.
var _ engine.Provider = (*Provider)(nil)
var _ engine.Call = (*call)(nil)

// Provider implements engine.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq".
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the backend falls
// back to its environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, …).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, name: providerName, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq", providerName)
	}
}

// Name implements engine.Provider.
func (p *Provider) Name() string { return p.name }

// NewCall implements engine.Provider.
func (p *Provider) NewCall(_ context.Context, persona engine.Persona) (engine.Call, error) {
	return &call{provider: p, persona: persona}, nil
}

// call is one phone call's conversational context. It is owned by a single
// session and must not be used concurrently.
type call struct {
	provider *Provider
	persona  engine.Persona
	messages []anyllmlib.Message
}

// Greet implements engine.Call. The greeting instruction is submitted as a
// synthetic user message and discarded afterwards so it never appears as
// caller speech in the context.
func (c *call) Greet(ctx context.Context) (string, error) {
	next := append(c.history(), anyllmlib.Message{Role: "user", Content: c.persona.Greeting()})
	reply, err := c.complete(ctx, next)
	if err != nil {
		return "", fmt.Errorf("anyllm: greeting: %w: %v", engine.ErrUnavailable, err)
	}
	c.messages = append(c.messages, anyllmlib.Message{Role: "assistant", Content: reply})
	return reply, nil
}

// Turn implements engine.Call.
func (c *call) Turn(ctx context.Context, utterance string) (string, error) {
	next := append(c.history(), anyllmlib.Message{Role: "user", Content: utterance})
	reply, err := c.complete(ctx, next)
	if err != nil {
		return "", fmt.Errorf("anyllm: turn: %w: %v", engine.ErrUnavailable, err)
	}
	c.messages = append(c.messages,
		anyllmlib.Message{Role: "user", Content: utterance},
		anyllmlib.Message{Role: "assistant", Content: reply},
	)
	return reply, nil
}

// Close implements engine.Call.
func (c *call) Close() error {
	c.messages = nil
	return nil
}

// history returns the system prompt followed by the recorded conversation.
func (c *call) history() []anyllmlib.Message {
	msgs := make([]anyllmlib.Message, 0, len(c.messages)+1)
	msgs = append(msgs, anyllmlib.Message{
		Role:    anyllmlib.RoleSystem,
		Content: c.persona.SystemPrompt,
	})
	return append(msgs, c.messages...)
}

// complete runs one completion and returns the reply text.
func (c *call) complete(ctx context.Context, messages []anyllmlib.Message) (string, error) {
	params := anyllmlib.CompletionParams{
		Model:    c.provider.model,
		Messages: messages,
	}
	if c.persona.Temperature != 0 {
		t := c.persona.Temperature
		params.Temperature = &t
	}
	if c.persona.MaxReplyTokens > 0 {
		mt := c.persona.MaxReplyTokens
		params.MaxTokens = &mt
	}

	resp, err := c.provider.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}
