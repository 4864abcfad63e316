package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/reviewflow/review"
)

// DefaultGoogleModel is used when no model is configured.
const DefaultGoogleModel = "gemini-1.5-pro"

// GoogleReviewer implements Reviewer using Google's Gemini API.
//
// Security Warning: NEVER hardcode the API key in source code. Read it
// from an environment variable such as GOOGLE_API_KEY.
type GoogleReviewer struct {
	client *genai.Client
	model  string
}

// NewGoogleReviewer creates a Gemini-backed reviewer. The caller owns
// the reviewer and must call Close when done with it.
//
// Parameters:
//   - ctx: context for client initialization
//   - apiKey: Google API key (must not be empty)
//   - model: model identifier (empty selects DefaultGoogleModel)
func NewGoogleReviewer(ctx context.Context, apiKey, model string) (*GoogleReviewer, error) {
	if apiKey == "" {
		return nil, errors.New("Google API key is required")
	}
	if model == "" {
		model = DefaultGoogleModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &GoogleReviewer{
		client: client,
		model:  model,
	}, nil
}

// Close releases the underlying client connection.
func (r *GoogleReviewer) Close() error {
	return r.client.Close()
}

// Summarize analyzes the diff and returns a structured summary.
func (r *GoogleReviewer) Summarize(ctx context.Context, diff string) (*review.DiffSummary, error) {
	content, err := r.complete(ctx, summaryPrompt(diff))
	if err != nil {
		return nil, err
	}
	return decodeSummary(content)
}

// DetectFootguns scans the diff for logic errors and latent bugs.
func (r *GoogleReviewer) DetectFootguns(ctx context.Context, diff string) ([]review.FootgunFinding, error) {
	content, err := r.complete(ctx, footgunPrompt(diff))
	if err != nil {
		return nil, err
	}
	return decodeFootguns(content)
}

// complete generates content in JSON mode and concatenates the text
// parts of the first candidate.
func (r *GoogleReviewer) complete(ctx context.Context, prompt string) (string, error) {
	model := r.client.GenerativeModel(r.model)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", mapAPIError("Google", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("Google returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("Google returned no text content")
	}
	return sb.String(), nil
}
