// Package review implements an automated pull-request review pipeline on top
// of the flow engine: a fixed chain of analysis steps that accumulate typed
// findings, pause for a human approval decision, and publish the result.
package review

// DiffSummary is the structured natural-language summary of a change-set.
type DiffSummary struct {
	// ExecutiveSummary is a high-level overview of the PR.
	ExecutiveSummary string `json:"executive_summary"`

	// WhatChanged lists the actual changes as bullet points.
	WhatChanged []string `json:"what_changed"`

	// WhyItChanged is the inferred or stated motivation.
	WhyItChanged string `json:"why_it_changed"`

	// ImpactAssessment describes potential impact on the wider system.
	ImpactAssessment string `json:"impact_assessment"`
}

// FootgunFinding is a logic-risk finding: race conditions, leaks, silent
// failures, off-by-one errors and similar traps.
type FootgunFinding struct {
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`

	// IssueType categorizes the finding, e.g. "Race Condition",
	// "Silent Exception", "Off-By-One".
	IssueType string `json:"issue_type"`

	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// SecurityVulnerability is one security finding from a scanner or model.
type SecurityVulnerability struct {
	// ToolSource names the producer, e.g. "Semgrep" or "LLM Secret Scan".
	ToolSource string `json:"tool_source"`

	Severity    string `json:"severity"`
	CWE         string `json:"cwe"`
	FilePath    string `json:"file_path"`
	LineNumber  int    `json:"line_number"`
	Description string `json:"description"`
	Remediation string `json:"remediation"`
}

// SemanticImpactFinding records call sites affected by a changed symbol.
type SemanticImpactFinding struct {
	ChangedFunction string `json:"changed_function"`

	// ImpactedCallSites lists "file:line" locations that reference the
	// changed function and may need updates.
	ImpactedCallSites []string `json:"impacted_call_sites"`

	// RequiresUpdate flags findings that need follow-up work.
	RequiresUpdate bool `json:"requires_update"`
}

// StepNote records a degraded step: an absorbed failure's detail, or an
// intentional skip (e.g. publishing without approval).
type StepNote struct {
	Step   string `json:"step"`
	Detail string `json:"detail"`
}

// Report is the persisted review artifact: the fixed-schema document
// externalized at the approval gate and consumed by presentation layers.
// Presentation formats these known fields; it never probes for others.
type Report struct {
	PRURL           string                  `json:"pr_url"`
	Summary         *DiffSummary            `json:"summary,omitempty"`
	Footguns        []FootgunFinding        `json:"footguns"`
	SecurityIssues  []SecurityVulnerability `json:"security_issues"`
	SemanticImpacts []SemanticImpactFinding `json:"semantic_impacts"`

	// ExternalContext maps referenced symbols to their ground-truth
	// definitions pulled from the source tree.
	ExternalContext map[string]string `json:"external_context"`
}
