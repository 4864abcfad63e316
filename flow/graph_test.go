package flow

import (
	"context"
	"errors"
	"testing"
)

type graphState struct {
	Log []string
}

func noopHandler(_ context.Context, _ graphState) (graphState, error) {
	return graphState{}, nil
}

func TestGraphBuilderValidation(t *testing.T) {
	tests := []struct {
		name     string
		build    func() (*Graph[graphState], error)
		wantCode string
	}{
		{
			name: "empty step ID",
			build: func() (*Graph[graphState], error) {
				return NewGraphBuilder[graphState]().
					AddStep(Step[graphState]{ID: "", Run: noopHandler}).
					Build()
			},
			wantCode: "EMPTY_STEP_ID",
		},
		{
			name: "nil handler",
			build: func() (*Graph[graphState], error) {
				return NewGraphBuilder[graphState]().
					AddStep(Step[graphState]{ID: "a"}).
					Build()
			},
			wantCode: "NIL_HANDLER",
		},
		{
			name: "duplicate step ID",
			build: func() (*Graph[graphState], error) {
				return NewGraphBuilder[graphState]().
					AddStep(Step[graphState]{ID: "a", Run: noopHandler}).
					AddStep(Step[graphState]{ID: "a", Run: noopHandler}).
					Build()
			},
			wantCode: "DUPLICATE_STEP",
		},
		{
			name: "empty chain",
			build: func() (*Graph[graphState], error) {
				return NewGraphBuilder[graphState]().
					AddStep(Step[graphState]{ID: "a", Run: noopHandler}).
					Chain().
					Build()
			},
			wantCode: "EMPTY_CHAIN",
		},
		{
			name: "no start step",
			build: func() (*Graph[graphState], error) {
				return NewGraphBuilder[graphState]().
					AddStep(Step[graphState]{ID: "a", Run: noopHandler}).
					Build()
			},
			wantCode: "NO_START_STEP",
		},
		{
			name: "chain references unknown step",
			build: func() (*Graph[graphState], error) {
				return NewGraphBuilder[graphState]().
					AddStep(Step[graphState]{ID: "a", Run: noopHandler}).
					Chain("a", "ghost").
					Build()
			},
			wantCode: "STEP_NOT_FOUND",
		},
		{
			name: "interrupt set references unknown step",
			build: func() (*Graph[graphState], error) {
				return NewGraphBuilder[graphState]().
					AddStep(Step[graphState]{ID: "a", Run: noopHandler}).
					Chain("a").
					InterruptBefore("ghost").
					Build()
			},
			wantCode: "STEP_NOT_FOUND",
		},
		{
			name: "chain after custom successor",
			build: func() (*Graph[graphState], error) {
				return NewGraphBuilder[graphState]().
					AddStep(Step[graphState]{ID: "a", Run: noopHandler}).
					SetSuccessor("a", func(string) (string, bool) { return "", false }).
					Chain("a").
					Build()
			},
			wantCode: "SUCCESSOR_CONFLICT",
		},
		{
			name: "custom successor after chain",
			build: func() (*Graph[graphState], error) {
				return NewGraphBuilder[graphState]().
					AddStep(Step[graphState]{ID: "a", Run: noopHandler}).
					Chain("a").
					SetSuccessor("a", func(string) (string, bool) { return "", false }).
					Build()
			},
			wantCode: "SUCCESSOR_CONFLICT",
		},
		{
			name: "nil successor function",
			build: func() (*Graph[graphState], error) {
				return NewGraphBuilder[graphState]().
					AddStep(Step[graphState]{ID: "a", Run: noopHandler}).
					SetSuccessor("a", nil).
					Build()
			},
			wantCode: "NIL_SUCCESSOR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var ee *EngineError
			if !errors.As(err, &ee) {
				t.Fatalf("expected EngineError, got %T", err)
			}
			if ee.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", ee.Code, tt.wantCode)
			}
		})
	}
}

func TestGraphChain(t *testing.T) {
	graph, err := NewGraphBuilder[graphState]().
		AddStep(Step[graphState]{ID: "fetch", Run: noopHandler}).
		AddStep(Step[graphState]{ID: "scan", Run: noopHandler}).
		AddStep(Step[graphState]{ID: "publish", Run: noopHandler}).
		Chain("fetch", "scan", "publish").
		InterruptBefore("publish").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if got := graph.Start(); got != "fetch" {
		t.Errorf("Start() = %q, want %q", got, "fetch")
	}

	if next, ok := graph.NextStep("fetch"); !ok || next != "scan" {
		t.Errorf("NextStep(fetch) = %q, %v; want scan, true", next, ok)
	}
	if next, ok := graph.NextStep("scan"); !ok || next != "publish" {
		t.Errorf("NextStep(scan) = %q, %v; want publish, true", next, ok)
	}
	if _, ok := graph.NextStep("publish"); ok {
		t.Error("NextStep(publish) reported a successor for the terminal step")
	}

	if !graph.Gated("publish") {
		t.Error("Gated(publish) = false, want true")
	}
	if graph.Gated("scan") {
		t.Error("Gated(scan) = true, want false")
	}

	if _, ok := graph.Step("scan"); !ok {
		t.Error("Step(scan) not found")
	}
	if _, ok := graph.Step("ghost"); ok {
		t.Error("Step(ghost) unexpectedly found")
	}
}

func TestGraphCustomSuccessor(t *testing.T) {
	order := map[string]string{"a": "b", "b": "c"}
	graph, err := NewGraphBuilder[graphState]().
		AddStep(Step[graphState]{ID: "a", Run: noopHandler}).
		AddStep(Step[graphState]{ID: "b", Run: noopHandler}).
		AddStep(Step[graphState]{ID: "c", Run: noopHandler}).
		SetSuccessor("a", func(id string) (string, bool) {
			next, ok := order[id]
			return next, ok
		}).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if next, ok := graph.NextStep("b"); !ok || next != "c" {
		t.Errorf("NextStep(b) = %q, %v; want c, true", next, ok)
	}
	if _, ok := graph.NextStep("c"); ok {
		t.Error("NextStep(c) reported a successor for the terminal step")
	}
}

func TestGraphBuilderReuseIsolation(t *testing.T) {
	b := NewGraphBuilder[graphState]().
		AddStep(Step[graphState]{ID: "a", Run: noopHandler}).
		Chain("a")

	first, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// Mutating the builder after Build must not leak into the built graph.
	b.InterruptBefore("a")
	if first.Gated("a") {
		t.Error("built graph gained a gate from post-Build builder mutation")
	}
}
