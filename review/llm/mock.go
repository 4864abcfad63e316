package llm

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/reviewflow/review"
)

// MockReviewer implements Reviewer with pre-configured responses for
// testing pipelines without API calls or costs.
type MockReviewer struct {
	// Summary is returned from Summarize. When nil, a canned summary
	// is returned instead.
	Summary *review.DiffSummary

	// Footguns is returned from DetectFootguns.
	Footguns []review.FootgunFinding

	// Err, when set, is returned from every call.
	Err error

	// Delay simulates API latency before responding.
	Delay time.Duration

	mu             sync.Mutex
	summarizeCalls int
	detectCalls    int
}

// Summarize returns the configured summary after the configured delay.
func (m *MockReviewer) Summarize(ctx context.Context, diff string) (*review.DiffSummary, error) {
	m.mu.Lock()
	m.summarizeCalls++
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Summary != nil {
		return m.Summary, nil
	}
	return &review.DiffSummary{
		ExecutiveSummary: "Mock summary of the change",
		WhatChanged:      []string{"mock change"},
		WhyItChanged:     "mock motivation",
		ImpactAssessment: "mock impact",
	}, nil
}

// DetectFootguns returns the configured findings after the configured
// delay.
func (m *MockReviewer) DetectFootguns(ctx context.Context, diff string) ([]review.FootgunFinding, error) {
	m.mu.Lock()
	m.detectCalls++
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Footguns, nil
}

// SummarizeCalls reports how many times Summarize was invoked.
func (m *MockReviewer) SummarizeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summarizeCalls
}

// DetectCalls reports how many times DetectFootguns was invoked.
func (m *MockReviewer) DetectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectCalls
}

func (m *MockReviewer) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		// Still honor an already-cancelled context.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	select {
	case <-time.After(m.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
