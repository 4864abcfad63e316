package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/reviewflow/review"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIReviewer implements Reviewer using OpenAI's chat completions API.
//
// Security Warning: NEVER hardcode the API key in source code. Read it
// from an environment variable such as OPENAI_API_KEY.
type OpenAIReviewer struct {
	client *openai.Client
	model  string
}

// NewOpenAIReviewer creates an OpenAI-backed reviewer.
//
// Parameters:
//   - apiKey: OpenAI API key (must not be empty)
//   - model: model identifier, e.g. "gpt-4o" (empty selects DefaultOpenAIModel)
func NewOpenAIReviewer(apiKey, model string) (*OpenAIReviewer, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	return &OpenAIReviewer{
		client: &client,
		model:  model,
	}, nil
}

// Summarize analyzes the diff and returns a structured summary.
func (r *OpenAIReviewer) Summarize(ctx context.Context, diff string) (*review.DiffSummary, error) {
	content, err := r.complete(ctx, summaryPrompt(diff))
	if err != nil {
		return nil, err
	}
	return decodeSummary(content)
}

// DetectFootguns scans the diff for logic errors and latent bugs.
func (r *OpenAIReviewer) DetectFootguns(ctx context.Context, diff string) ([]review.FootgunFinding, error) {
	content, err := r.complete(ctx, footgunPrompt(diff))
	if err != nil {
		return nil, err
	}
	return decodeFootguns(content)
}

// complete sends a single-turn chat completion in JSON-object mode and
// returns the response text.
func (r *OpenAIReviewer) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", mapAPIError("OpenAI", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
