package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"
)

// promptTemplate enforces the conservative normalization procedure of spec
// §4.4: typo/filler-word tolerance, language-mix tolerance, and a two-factor
// match on subject and exact location before answering YES.
const promptTemplate = `You are adjudicating whether two citizen complaints describe the SAME real-world incident.

Normalize both texts first: ignore typos, filler words, and mixed Filipino/English phrasing. Compare only the underlying facts.

An incident matches ONLY if BOTH of the following hold:
1. Subject match: both complaints describe the same type of problem.
2. Location match: both complaints name the exact same specific location (not merely the same general area).

Complaint A: %s

Complaint B: %s

Respond with exactly one word: YES if both factors match, or NO otherwise. When in doubt, answer NO.`

// AnthropicArbiter calls the Anthropic Messages API to answer the
// same-incident question. Any response other than an exact, trimmed,
// case-insensitive "YES" is treated as NO, and so is any unrecoverable
// call error (spec §4.4, §7): the arbiter degrades to "not the same
// incident" rather than blocking the clustering job.
type AnthropicArbiter struct {
	client     anthropic.Client
	model      anthropic.Model
	maxTokens  int64
	timeout    time.Duration
	maxRetries int
	logger     *logrus.Logger
}

// Config controls AnthropicArbiter construction.
type Config struct {
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

// NewAnthropicArbiter builds an AnthropicArbiter. A nil logger is
// tolerated.
func NewAnthropicArbiter(cfg Config, logger *logrus.Logger) (*AnthropicArbiter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}

	return &AnthropicArbiter{
		client:     anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:      anthropic.Model(cfg.Model),
		maxTokens:  int64(cfg.MaxTokens),
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}, nil
}

var _ Arbiter = (*AnthropicArbiter)(nil)

func generatePrompt(a, b string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(a), strings.TrimSpace(b))
}

// isYes implements the strict contract of spec §4.4: any response other
// than an exact "YES" (case-insensitive, trimmed) means NO.
func isYes(response string) bool {
	return strings.EqualFold(strings.TrimSpace(response), "yes")
}

// SameIncident asks the model whether a and b describe the same incident.
// Transient call failures are logged and treated as NO rather than
// propagated, so arbiter outages degrade the system toward over-creation
// of incidents instead of blocking the clustering job (spec §4.4, §7).
func (c *AnthropicArbiter) SameIncident(ctx context.Context, a, b string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := generatePrompt(a, b)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err == nil {
			if len(message.Content) == 0 || message.Content[0].Type != "text" {
				c.logf(logrus.Fields{"reason": "non-text response"}, nil, "treating arbiter response as NO")
				return false, nil
			}
			return isYes(message.Content[0].Text), nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	c.logf(logrus.Fields{"attempts": c.maxRetries + 1}, lastErr, "arbiter call failed, treating as NO")
	return false, nil
}

func (c *AnthropicArbiter) logf(fields logrus.Fields, err error, msg string) {
	if c.logger == nil {
		return
	}
	entry := c.logger.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn(msg)
}
