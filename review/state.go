package review

import "github.com/dshills/reviewflow/flow"

// State is the typed session state accumulated across the review pipeline.
//
// Merge semantics per field live in MergePolicies, not in step code: scalar
// artifacts and decisions use Replace (a zero delta field means "absent"),
// findings lists use Append so every step's contributions accumulate in
// emission order.
//
// HumanApproved is a pointer because an explicit rejection (false) must be
// distinguishable from "no decision yet" (nil).
type State struct {
	// PRURL identifies the change-set under review. Doubles as the
	// session ID by convention.
	PRURL string `json:"pr_url,omitempty"`

	// DiffContent is the unified diff fetched from the hosting API.
	DiffContent string `json:"diff_content,omitempty"`

	Summary         *DiffSummary            `json:"summary,omitempty"`
	Footguns        []FootgunFinding        `json:"footguns,omitempty"`
	SecurityIssues  []SecurityVulnerability `json:"security_issues,omitempty"`
	SemanticImpacts []SemanticImpactFinding `json:"semantic_impacts,omitempty"`

	// ExternalContext maps referenced symbols to their definitions in the
	// source tree.
	ExternalContext map[string]string `json:"external_context,omitempty"`

	// HumanApproved is the gate decision. Nil until a reviewer decides.
	HumanApproved *bool `json:"human_approved,omitempty"`

	// HumanComment is the reviewer's free-form note for the PR author.
	HumanComment string `json:"human_comment,omitempty"`

	// StepNotes accumulates absorbed-failure and skip notes so a paused
	// session reports which enrichment steps degraded.
	StepNotes []StepNote `json:"step_notes,omitempty"`

	// FinalReport is the artifact assembled at the approval gate.
	FinalReport *Report `json:"final_report,omitempty"`
}

// MergePolicies is the per-field merge-policy table for State.
func MergePolicies() map[string]flow.Policy {
	return map[string]flow.Policy{
		"PRURL":           flow.Replace,
		"DiffContent":     flow.Replace,
		"Summary":         flow.Replace,
		"Footguns":        flow.Append,
		"SecurityIssues":  flow.Append,
		"SemanticImpacts": flow.Append,
		"ExternalContext": flow.Replace,
		"HumanApproved":   flow.Replace,
		"HumanComment":    flow.Replace,
		"StepNotes":       flow.Append,
		"FinalReport":     flow.Replace,
	}
}

// NewReducer builds the State reducer from MergePolicies.
//
// The policy table is validated against the State struct once here; a
// mismatch is a programming bug surfaced immediately, never at advance time.
func NewReducer() (flow.Reducer[State], error) {
	policies, err := flow.NewPolicies[State](MergePolicies())
	if err != nil {
		return nil, err
	}
	return policies.Reducer(), nil
}

// NewInitialState returns the starting state for a fresh review session.
func NewInitialState(prURL string) State {
	return State{PRURL: prURL}
}

// Approval builds the decision delta a reviewer submits at the gate.
func Approval(approved bool, comment string) State {
	return State{
		HumanApproved: &approved,
		HumanComment:  comment,
	}
}
