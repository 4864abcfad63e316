package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/reviewflow/review"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// maxResponseTokens caps the length of model responses; structured
// review JSON fits comfortably within this.
const maxResponseTokens = 4096

// AnthropicReviewer implements Reviewer using Anthropic's messages API.
//
// Security Warning: NEVER hardcode the API key in source code. Read it
// from an environment variable such as ANTHROPIC_API_KEY.
type AnthropicReviewer struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicReviewer creates an Anthropic-backed reviewer.
//
// Parameters:
//   - apiKey: Anthropic API key (must not be empty)
//   - model: model identifier (empty selects DefaultAnthropicModel)
func NewAnthropicReviewer(apiKey, model string) (*AnthropicReviewer, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicReviewer{
		client: &client,
		model:  model,
	}, nil
}

// Summarize analyzes the diff and returns a structured summary.
func (r *AnthropicReviewer) Summarize(ctx context.Context, diff string) (*review.DiffSummary, error) {
	content, err := r.complete(ctx, summaryPrompt(diff))
	if err != nil {
		return nil, err
	}
	return decodeSummary(content)
}

// DetectFootguns scans the diff for logic errors and latent bugs.
func (r *AnthropicReviewer) DetectFootguns(ctx context.Context, diff string) ([]review.FootgunFinding, error) {
	content, err := r.complete(ctx, footgunPrompt(diff))
	if err != nil {
		return nil, err
	}
	return decodeFootguns(content)
}

// complete sends a single-turn message and concatenates the text blocks
// of the response.
func (r *AnthropicReviewer) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: maxResponseTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", mapAPIError("Anthropic", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("Anthropic returned no text content")
	}
	return sb.String(), nil
}
