// Package llm provides language-model reviewers for the summarize and
// logic-scan pipeline steps, with OpenAI, Anthropic, Google, and mock
// implementations behind one interface.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/reviewflow/review"
)

// Reviewer produces structured review artifacts from a unified diff.
//
// A Reviewer satisfies both review.Summarizer and review.FootgunDetector,
// so one configured provider serves both LLM steps of the pipeline.
type Reviewer interface {
	// Summarize analyzes the diff and returns a structured summary.
	Summarize(ctx context.Context, diff string) (*review.DiffSummary, error)

	// DetectFootguns scans the diff for logic errors, race conditions,
	// leaks, and silent failures. An empty slice means a clean diff.
	DetectFootguns(ctx context.Context, diff string) ([]review.FootgunFinding, error)
}

// ReviewError represents an LLM provider failure with retryability
// classification.
type ReviewError struct {
	// Code is a machine-readable error category
	// (e.g. "rate_limited", "invalid_api_key", "server_error").
	Code string

	// Message is the human-readable error description.
	Message string

	// Retryable indicates whether the operation may succeed on retry.
	Retryable bool
}

// Error implements the error interface.
func (e *ReviewError) Error() string {
	return fmt.Sprintf("%s: %s (retryable: %v)", e.Code, e.Message, e.Retryable)
}

// summaryPrompt builds the structured-summary prompt shared by all
// providers.
func summaryPrompt(diff string) string {
	var sb strings.Builder

	sb.WriteString("You are an expert code reviewer. Given a git diff, analyze it and provide a structured summary.\n\n")
	sb.WriteString("Return a JSON object with this structure:\n")
	sb.WriteString(`{
  "executive_summary": "High-level overview of the change",
  "what_changed": ["Bullet points of actual changes"],
  "why_it_changed": "Inferred or stated motivation",
  "impact_assessment": "Potential impact on the wider system"
}

`)
	sb.WriteString("Diff to analyze:\n\n")
	sb.WriteString(diff)
	sb.WriteString("\n\nRespond ONLY with valid JSON. No markdown, no explanation, just the JSON object.")

	return sb.String()
}

// footgunPrompt builds the logic-scan prompt shared by all providers.
func footgunPrompt(diff string) string {
	var sb strings.Builder

	sb.WriteString("You are an expert security and logic code reviewer. Given a git diff, analyze it for ")
	sb.WriteString("logical errors, race conditions, memory leaks, or silent failures.\n\n")
	sb.WriteString("Return a JSON object with this structure:\n")
	sb.WriteString(`{
  "footguns": [
    {
      "file_path": "path/from/the/diff",
      "line_number": 10,
      "issue_type": "Race Condition|Memory Leak|Silent Exception|NullPointer|Off-By-One",
      "description": "Brief description of the issue",
      "suggestion": "How to fix it"
    }
  ]
}

`)
	sb.WriteString("Line numbers must refer precisely to lines in the diff. ")
	sb.WriteString("If there are no issues, return an empty list.\n\n")
	sb.WriteString("Diff to analyze:\n\n")
	sb.WriteString(diff)
	sb.WriteString("\n\nRespond ONLY with valid JSON. No markdown, no explanation, just the JSON object.")

	return sb.String()
}

// stripFences removes markdown code fences that models sometimes wrap
// around JSON despite instructions.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// decodeSummary parses a provider response into a DiffSummary.
func decodeSummary(content string) (*review.DiffSummary, error) {
	var summary review.DiffSummary
	if err := json.Unmarshal([]byte(stripFences(content)), &summary); err != nil {
		return nil, fmt.Errorf("invalid summary JSON: %w", err)
	}
	if summary.ExecutiveSummary == "" {
		return nil, errors.New("summary response missing executive_summary")
	}
	return &summary, nil
}

// decodeFootguns parses a provider response into footgun findings.
// Findings without a file path or description are dropped.
func decodeFootguns(content string) ([]review.FootgunFinding, error) {
	var result struct {
		Footguns []review.FootgunFinding `json:"footguns"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &result); err != nil {
		return nil, fmt.Errorf("invalid footguns JSON: %w", err)
	}

	valid := make([]review.FootgunFinding, 0, len(result.Footguns))
	for _, fg := range result.Footguns {
		if fg.FilePath == "" || fg.Description == "" {
			continue
		}
		valid = append(valid, fg)
	}
	return valid, nil
}

// mapAPIError converts provider API errors to ReviewError, distinguishing
// retryable transient failures from permanent ones.
func mapAPIError(provider string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ReviewError{
			Code:      "timeout",
			Message:   provider + " API request timed out",
			Retryable: true,
		}
	}

	lowerErr := strings.ToLower(err.Error())

	// Rate limit errors (retryable)
	if strings.Contains(lowerErr, "rate limit") ||
		strings.Contains(lowerErr, "429") ||
		strings.Contains(lowerErr, "too many requests") {
		return &ReviewError{
			Code:      "rate_limited",
			Message:   provider + " API rate limit exceeded",
			Retryable: true,
		}
	}

	// Authentication errors (permanent)
	if strings.Contains(lowerErr, "invalid api key") ||
		strings.Contains(lowerErr, "incorrect api key") ||
		strings.Contains(lowerErr, "401") ||
		strings.Contains(lowerErr, "403") ||
		strings.Contains(lowerErr, "unauthorized") ||
		strings.Contains(lowerErr, "authentication") {
		return &ReviewError{
			Code:      "invalid_api_key",
			Message:   provider + " API key is invalid or expired",
			Retryable: false,
		}
	}

	// Quota exceeded errors (permanent)
	if strings.Contains(lowerErr, "quota") ||
		strings.Contains(lowerErr, "billing") {
		return &ReviewError{
			Code:      "quota_exceeded",
			Message:   provider + " API quota exceeded",
			Retryable: false,
		}
	}

	// Server errors (retryable)
	if strings.Contains(lowerErr, "500") ||
		strings.Contains(lowerErr, "502") ||
		strings.Contains(lowerErr, "503") ||
		strings.Contains(lowerErr, "504") ||
		strings.Contains(lowerErr, "internal server error") ||
		strings.Contains(lowerErr, "bad gateway") ||
		strings.Contains(lowerErr, "service unavailable") ||
		strings.Contains(lowerErr, "gateway timeout") {
		return &ReviewError{
			Code:      "server_error",
			Message:   fmt.Sprintf("%s API server error: %v", provider, err),
			Retryable: true,
		}
	}

	// Network errors (retryable)
	if strings.Contains(lowerErr, "connection") ||
		strings.Contains(lowerErr, "timeout") ||
		strings.Contains(lowerErr, "network") {
		return &ReviewError{
			Code:      "network_error",
			Message:   fmt.Sprintf("network error calling %s API: %v", provider, err),
			Retryable: true,
		}
	}

	return &ReviewError{
		Code:      "api_error",
		Message:   fmt.Sprintf("%s API error: %v", provider, err),
		Retryable: false,
	}
}
