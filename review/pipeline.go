package review

import (
	"context"
	"fmt"

	"github.com/dshills/reviewflow/flow"
)

// Pipeline step identifiers, in chain order.
const (
	StepFetchPRContext       = "fetch_pr_context"
	StepAnalyzeDiffSummary   = "analyze_diff_summary"
	StepLogicFootgunDetector = "logic_footgun_detector"
	StepSecurityScanner      = "security_scanner"
	StepSemanticImpactFinder = "semantic_impact_finder"
	StepFetchExternalContext = "fetch_external_context"
	StepHumanApproval        = "human_approval"
	StepPostToGitHub         = "post_to_github"
)

// DiffFetcher retrieves the unified diff for a change-set URL.
type DiffFetcher interface {
	FetchDiff(ctx context.Context, prURL string) (string, error)
}

// Summarizer produces a structured summary of a diff.
type Summarizer interface {
	Summarize(ctx context.Context, diff string) (*DiffSummary, error)
}

// FootgunDetector finds logic risks in a diff.
type FootgunDetector interface {
	DetectFootguns(ctx context.Context, diff string) ([]FootgunFinding, error)
}

// SecurityScanner finds security vulnerabilities in a diff.
type SecurityScanner interface {
	Scan(ctx context.Context, diff string) ([]SecurityVulnerability, error)
}

// ImpactSearcher locates call sites affected by symbols the diff changed.
type ImpactSearcher interface {
	FindImpacts(ctx context.Context, diff string) ([]SemanticImpactFinding, error)
}

// ContextFetcher resolves referenced symbols to their definitions in the
// source tree.
type ContextFetcher interface {
	FetchContext(ctx context.Context, diff string) (map[string]string, error)
}

// ReportWriter externalizes the review artifact at the approval gate.
type ReportWriter interface {
	Write(ctx context.Context, report *Report) error
}

// Publisher posts an approved review back to the hosting service.
//
// Publishers own their idempotency: the pipeline may re-invoke Publish
// after a crash between execution and checkpoint write, so a publisher
// must deduplicate (e.g. by a content marker in the posted comment)
// rather than rely on being called exactly once.
type Publisher interface {
	Publish(ctx context.Context, state State) error
}

// Collaborators bundles the external step implementations the pipeline
// consumes. All fields are required by NewGraph.
type Collaborators struct {
	Diff      DiffFetcher
	Summary   Summarizer
	Footguns  FootgunDetector
	Scanner   SecurityScanner
	Impact    ImpactSearcher
	Context   ContextFetcher
	Reports   ReportWriter
	Publisher Publisher
}

func (c Collaborators) validate() error {
	missing := ""
	switch {
	case c.Diff == nil:
		missing = "Diff"
	case c.Summary == nil:
		missing = "Summary"
	case c.Footguns == nil:
		missing = "Footguns"
	case c.Scanner == nil:
		missing = "Scanner"
	case c.Impact == nil:
		missing = "Impact"
	case c.Context == nil:
		missing = "Context"
	case c.Reports == nil:
		missing = "Reports"
	case c.Publisher == nil:
		missing = "Publisher"
	}
	if missing != "" {
		return fmt.Errorf("collaborator %s is required", missing)
	}
	return nil
}

// NewGraph assembles the review pipeline graph.
//
// Chain: fetch_pr_context → analyze_diff_summary → logic_footgun_detector →
// security_scanner → semantic_impact_finder → fetch_external_context →
// human_approval → post_to_github, with an interrupt gate before
// post_to_github.
//
// Failure classification: fetch_pr_context, human_approval and
// post_to_github are fatal (downstream work is meaningless without them);
// the four enrichment steps absorb failures into StepNotes and the
// pipeline proceeds with whatever findings it has.
func NewGraph(c Collaborators) (*flow.Graph[State], error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	b := flow.NewGraphBuilder[State]()

	b.AddStep(flow.Step[State]{
		ID: StepFetchPRContext,
		Run: func(ctx context.Context, state State) (State, error) {
			diff, err := c.Diff.FetchDiff(ctx, state.PRURL)
			if err != nil {
				return State{}, err
			}
			return State{DiffContent: diff}, nil
		},
	})

	b.AddStep(flow.Step[State]{
		ID: StepAnalyzeDiffSummary,
		Run: func(ctx context.Context, state State) (State, error) {
			summary, err := c.Summary.Summarize(ctx, state.DiffContent)
			if err != nil {
				return State{}, err
			}
			return State{Summary: summary}, nil
		},
		Absorbing: true,
		Absorb:    absorbNote(StepAnalyzeDiffSummary),
	})

	b.AddStep(flow.Step[State]{
		ID: StepLogicFootgunDetector,
		Run: func(ctx context.Context, state State) (State, error) {
			findings, err := c.Footguns.DetectFootguns(ctx, state.DiffContent)
			if err != nil {
				return State{}, err
			}
			return State{Footguns: findings}, nil
		},
		Absorbing: true,
		Absorb:    absorbNote(StepLogicFootgunDetector),
	})

	b.AddStep(flow.Step[State]{
		ID: StepSecurityScanner,
		Run: func(ctx context.Context, state State) (State, error) {
			vulns, err := c.Scanner.Scan(ctx, state.DiffContent)
			if err != nil {
				return State{}, err
			}
			return State{SecurityIssues: vulns}, nil
		},
		Absorbing: true,
		Absorb:    absorbNote(StepSecurityScanner),
	})

	b.AddStep(flow.Step[State]{
		ID: StepSemanticImpactFinder,
		Run: func(ctx context.Context, state State) (State, error) {
			impacts, err := c.Impact.FindImpacts(ctx, state.DiffContent)
			if err != nil {
				return State{}, err
			}
			return State{SemanticImpacts: impacts}, nil
		},
		Absorbing: true,
		Absorb:    absorbNote(StepSemanticImpactFinder),
	})

	b.AddStep(flow.Step[State]{
		ID: StepFetchExternalContext,
		Run: func(ctx context.Context, state State) (State, error) {
			defs, err := c.Context.FetchContext(ctx, state.DiffContent)
			if err != nil {
				return State{}, err
			}
			return State{ExternalContext: defs}, nil
		},
		Absorbing: true,
		Absorb:    absorbNote(StepFetchExternalContext),
	})

	b.AddStep(flow.Step[State]{
		ID: StepHumanApproval,
		Run: func(ctx context.Context, state State) (State, error) {
			report := BuildReport(state)
			if err := c.Reports.Write(ctx, report); err != nil {
				return State{}, fmt.Errorf("writing report artifact: %w", err)
			}
			return State{FinalReport: report}, nil
		},
	})

	b.AddStep(flow.Step[State]{
		ID: StepPostToGitHub,
		Run: func(ctx context.Context, state State) (State, error) {
			if state.HumanApproved == nil || !*state.HumanApproved {
				return State{StepNotes: []StepNote{{
					Step:   StepPostToGitHub,
					Detail: "review not approved, nothing posted",
				}}}, nil
			}
			if err := c.Publisher.Publish(ctx, state); err != nil {
				return State{}, err
			}
			return State{}, nil
		},
	})

	b.Chain(
		StepFetchPRContext,
		StepAnalyzeDiffSummary,
		StepLogicFootgunDetector,
		StepSecurityScanner,
		StepSemanticImpactFinder,
		StepFetchExternalContext,
		StepHumanApproval,
		StepPostToGitHub,
	)
	b.InterruptBefore(StepPostToGitHub)

	return b.Build()
}

// absorbNote converts an enrichment step's failure into a StepNote delta.
func absorbNote(stepID string) func(error) State {
	return func(err error) State {
		return State{StepNotes: []StepNote{{
			Step:   stepID,
			Detail: err.Error(),
		}}}
	}
}

// BuildReport assembles the fixed-schema review artifact from the
// accumulated state. Nil findings slices become empty slices so the JSON
// document always carries every section.
func BuildReport(state State) *Report {
	report := &Report{
		PRURL:           state.PRURL,
		Summary:         state.Summary,
		Footguns:        state.Footguns,
		SecurityIssues:  state.SecurityIssues,
		SemanticImpacts: state.SemanticImpacts,
		ExternalContext: state.ExternalContext,
	}
	if report.Footguns == nil {
		report.Footguns = []FootgunFinding{}
	}
	if report.SecurityIssues == nil {
		report.SecurityIssues = []SecurityVulnerability{}
	}
	if report.SemanticImpacts == nil {
		report.SemanticImpacts = []SemanticImpactFinding{}
	}
	if report.ExternalContext == nil {
		report.ExternalContext = map[string]string{}
	}
	return report
}
