package coach

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/pitchline-ai/pitchline/internal/store"
)

// analysisSystemPrompt instructs the model to emit the score lines that
// [ParseScores] extracts, followed by its written assessment.
const analysisSystemPrompt = `You are an experienced sales coach reviewing a cold-call practice session.
The "Seller" lines are the person being coached; the other speaker is a
simulated prospect.

Score the seller's performance. Start your response with exactly these lines,
each scored out of 10:

OVERALL SCORE: N/10
DISCOVERY: N/10
OBJECTION_HANDLING: N/10
VALUE_ARTICULATION: N/10
RELATIONSHIP_BUILDING: N/10
CALL_CONTROL: N/10
CLOSING: N/10

Then write a candid assessment: what worked, what did not, and the two or
three concrete changes that would most improve the next call.`

// summarySystemPrompt asks for a brief recap rather than a scored report.
const summarySystemPrompt = `You are a sales coach. In three or four sentences, summarize how this
practice cold call went for the seller: the prospect's disposition, the key
moments, and how the call ended. No scores, no bullet points.`

var _ Analyzer = (*Client)(nil)

// Client is an [Analyzer] backed by the OpenAI chat completions API.
type Client struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the client.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Client.
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

// New constructs an analysis client.
func New(apiKey string, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("coach: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("coach: model must not be empty")
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

	return &Client{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Analyze implements [Analyzer].
func (c *Client) Analyze(ctx context.Context, rec store.TranscriptRecord) (Feedback, error) {
	raw, err := c.complete(ctx, analysisSystemPrompt, FormatTranscript(rec))
	if err != nil {
		return Feedback{}, fmt.Errorf("coach: analyze %s: %w", rec.CallID, err)
	}
	return ParseScores(raw), nil
}

// QuickSummary implements [Analyzer].
func (c *Client) QuickSummary(ctx context.Context, rec store.TranscriptRecord) (string, error) {
	raw, err := c.complete(ctx, summarySystemPrompt, FormatTranscript(rec))
	if err != nil {
		return "", fmt.Errorf("coach: summarize %s: %w", rec.CallID, err)
	}
	return raw, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
