// Package openai provides a conversation engine backed by the OpenAI chat
// completions API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/pitchline-ai/pitchline/internal/engine"
)

// Compile-time assertions that the exported types satisfy the engine interfaces.
var _ engine.Provider = (*Provider)(nil)
var _ engine.Call = (*call)(nil)

// Provider implements engine.Provider using the OpenAI API. Any endpoint that
// speaks the chat completions protocol (OpenRouter, vLLM, …) works via
// [WithBaseURL].
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI engine Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Name implements engine.Provider.
func (p *Provider) Name() string { return "openai" }

// NewCall implements engine.Provider.
func (p *Provider) NewCall(_ context.Context, persona engine.Persona) (engine.Call, error) {
	return &call{provider: p, persona: persona}, nil
}

// call is one phone call's conversational context. It is owned by a single
// session and must not be used concurrently.
type call struct {
	provider *Provider
	persona  engine.Persona
	messages []oai.ChatCompletionMessageParamUnion
}

// Greet implements engine.Call. The greeting instruction is submitted as a
// synthetic user message and discarded afterwards so it never appears as
// caller speech in the context.
func (c *call) Greet(ctx context.Context) (string, error) {
	reply, err := c.complete(ctx, append(c.history(), oai.UserMessage(c.persona.Greeting())))
	if err != nil {
		return "", fmt.Errorf("openai: greeting: %w: %v", engine.ErrUnavailable, err)
	}
	c.messages = append(c.messages, oai.AssistantMessage(reply))
	return reply, nil
}

// Turn implements engine.Call.
func (c *call) Turn(ctx context.Context, utterance string) (string, error) {
	next := append(c.history(), oai.UserMessage(utterance))
	reply, err := c.complete(ctx, next)
	if err != nil {
		return "", fmt.Errorf("openai: turn: %w: %v", engine.ErrUnavailable, err)
	}
	c.messages = append(c.messages, oai.UserMessage(utterance), oai.AssistantMessage(reply))
	return reply, nil
}

// Close implements engine.Call. The OpenAI chat API is stateless, so closing
// only drops the local context.
func (c *call) Close() error {
	c.messages = nil
	return nil
}

// history returns the system prompt followed by the recorded conversation.
func (c *call) history() []oai.ChatCompletionMessageParamUnion {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(c.messages)+1)
	msgs = append(msgs, oai.SystemMessage(c.persona.SystemPrompt))
	return append(msgs, c.messages...)
}

// complete runs one chat completion and returns the reply text.
func (c *call) complete(ctx context.Context, messages []oai.ChatCompletionMessageParamUnion) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.provider.model),
		Messages: messages,
	}
	if c.persona.Temperature != 0 {
		params.Temperature = param.NewOpt(c.persona.Temperature)
	}
	if c.persona.MaxReplyTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(c.persona.MaxReplyTokens))
	}

	resp, err := c.provider.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
