// Package classifier asks a chat-completion model whether a feed post is slop.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	DefaultEndpoint    = "https://api.openai.com/v1/chat/completions"
	DefaultModel       = "gpt-3.5-turbo"
	DefaultMaxTokens   = 10
	DefaultTemperature = 0.3

	// MinTextLength is the shortest post text, in characters, worth a remote call.
	MinTextLength = 50

	flaggedLabel = "slop"
	maxBodySize  = 1024 * 1024
)

const systemPrompt = `You are a LinkedIn post analyzer. Determine if a post is "slop" (low-quality engagement bait, meaningless inspirational content, fake stories for likes, or generic motivational posts) versus genuine content (job updates, real achievements, industry insights, or authentic personal/professional updates).

Respond with only "SLOP" or "GENUINE".

Examples of SLOP:
- "Agree? 👇 Comment below!" posts
- Fake inspirational stories that seem manufactured
- Generic motivational quotes with no personal context
- Obviously made-up scenarios designed for engagement
- Posts that exist purely to get likes/comments with no real value

Examples of GENUINE:
- Job change announcements
- Real project accomplishments
- Industry analysis or insights
- Authentic personal milestones
- Company updates or news`

type Verdict bool

const (
	NotFlagged Verdict = false
	Flagged    Verdict = true
)

func (v Verdict) String() string {
	if v {
		return "slop"
	}
	return "genuine"
}

// CredentialSource supplies the bearer token; empty means unconfigured.
type CredentialSource interface {
	Credential() string
}

// Reporter receives classification failures. Implementations must be safe for concurrent use.
type Reporter interface {
	ClassifyFailed(err error)
}

type Options struct {
	Endpoint    string
	Model       string
	MaxTokens   int
	// Temperature 0 is deterministic; a negative value selects DefaultTemperature.
	Temperature float64
	HTTPClient  *http.Client
	Reporter    Reporter
}

type Client struct {
	creds       CredentialSource
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	reporter    Reporter
	log         *zap.Logger
}

func New(creds CredentialSource, opts Options, log *zap.Logger) *Client {
	c := &Client{
		creds:       creds,
		endpoint:    opts.Endpoint,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		httpClient:  opts.HTTPClient,
		reporter:    opts.Reporter,
		log:         log,
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.temperature < 0 {
		c.temperature = DefaultTemperature
	}
	if c.httpClient == nil {
		// no timeout: a call runs until it completes or fails
		c.httpClient = &http.Client{}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// TooShort reports whether text falls under the length gate.
func TooShort(text string) bool {
	return utf8.RuneCountInString(text) < MinTextLength
}

// Classify returns Flagged when the model labels text as slop. It never
// returns an error: a missing credential, short text or any remote failure
// yields NotFlagged.
func (c *Client) Classify(ctx context.Context, text string) Verdict {
	key := c.creds.Credential()
	if key == "" {
		c.log.Debug("no credential, skipping classification")
		return NotFlagged
	}
	if TooShort(text) {
		return NotFlagged
	}

	label, err := c.complete(ctx, key, text)
	if err != nil {
		c.log.Warn("classification failed", zap.Error(err))
		if c.reporter != nil {
			c.reporter.ClassifyFailed(err)
		}
		return NotFlagged
	}
	return IsFlaggedLabel(label)
}

// IsFlaggedLabel matches the flagged label anywhere in the reply, ignoring case,
// so "SLOP", "slop." and "  Slop  " all count.
func IsFlaggedLabel(reply string) Verdict {
	return Verdict(strings.Contains(strings.ToLower(strings.TrimSpace(reply)), flaggedLabel))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, key, text string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}
	return out.Choices[0].Message.Content, nil
}
