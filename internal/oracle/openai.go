package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"canonkeeper/internal/config"
	"canonkeeper/internal/validate"
)

var _ validate.Oracle = (*Client)(nil)

// Client judges candidate changes against a canon excerpt with a chat
// model. One call per validation request; the pipeline owns the timeout
// and treats any error here as a soft skip.
type Client struct {
	api   *openai.Client
	model string
	log   *slog.Logger
}

func New(cfg config.OracleConfig, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oracle API key is not set")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		api:   openai.NewClient(cfg.APIKey),
		model: cfg.Model,
		log:   log,
	}, nil
}

const systemPrompt = `You are a continuity editor for a fictional world.
You are given an excerpt of established canon and one proposed change.
Judge only whether the change contradicts the established canon in tone,
characterization, or plausibility. Structural checks already passed.
Respond with a single JSON object: {"status": "pass" | "warn" | "fail",
"explanation": "<one or two sentences, written for the author>"}.
Use "fail" only for a direct contradiction of established facts.`

type verdictPayload struct {
	Status      string `json:"status"`
	Explanation string `json:"explanation"`
}

func (c *Client) Check(ctx context.Context, diff validate.Diff, excerpt validate.Excerpt) (validate.Verdict, error) {
	prompt, err := renderPrompt(diff, excerpt)
	if err != nil {
		return validate.Verdict{}, err
	}

	c.log.Debug("consulting semantic oracle", "model", c.model, "entity", diff.EntityID)
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		c.log.Warn("semantic oracle call failed", "error", err)
		return validate.Verdict{}, fmt.Errorf("oracle call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return validate.Verdict{}, fmt.Errorf("oracle returned no choices")
	}

	return parseVerdict(resp.Choices[0].Message.Content)
}

func renderPrompt(diff validate.Diff, excerpt validate.Excerpt) (string, error) {
	var b strings.Builder

	b.WriteString("Established canon:\n")
	if len(excerpt.WorldFacts) == 0 {
		b.WriteString("  (nothing established yet)\n")
	}
	for _, fact := range excerpt.WorldFacts {
		fmt.Fprintf(&b, "  - %s\n", fact)
	}
	if excerpt.Truncated {
		b.WriteString("  (excerpt truncated)\n")
	}

	b.WriteString("\nProposed change:\n")
	encoded, err := json.Marshal(diff)
	if err != nil {
		return "", fmt.Errorf("encoding diff: %w", err)
	}
	b.Write(encoded)
	b.WriteString("\n")

	return b.String(), nil
}

func parseVerdict(content string) (validate.Verdict, error) {
	content = strings.TrimSpace(content)
	// Some models still wrap JSON in a fence despite the response format.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var payload verdictPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return validate.Verdict{}, fmt.Errorf("decoding oracle verdict: %w", err)
	}

	switch payload.Status {
	case string(validate.StatusPass), string(validate.StatusWarn), string(validate.StatusFail):
		return validate.Verdict{Status: validate.Status(payload.Status), Explanation: payload.Explanation}, nil
	default:
		return validate.Verdict{}, fmt.Errorf("oracle verdict has unknown status: %q", payload.Status)
	}
}
