package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// BanditScanner implements SecurityScanner for Python diffs by running
// the bandit CLI over the diff's added content, the same materialize-and-
// map approach as SemgrepScanner. Combine both with MultiScanner for
// mixed-language PRs.
type BanditScanner struct {
	// Bin is the bandit executable. Defaults to "bandit".
	Bin string

	// Timeout bounds one scan invocation. Defaults to 2 minutes.
	Timeout time.Duration
}

// Scan runs bandit over the diff's added content
// (implements SecurityScanner).
func (b *BanditScanner) Scan(ctx context.Context, diff string) ([]SecurityVulnerability, error) {
	files := parseDiff(diff)
	if len(files) == 0 {
		return []SecurityVulnerability{}, nil
	}

	dir, err := os.MkdirTemp("", "reviewflow-bandit-")
	if err != nil {
		return nil, fmt.Errorf("creating scan workspace: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	lineMap, err := materializeAdded(dir, files)
	if err != nil {
		return nil, err
	}

	bin := b.Bin
	if bin == "" {
		bin = "bandit"
	}
	timeout := b.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-r", "-f", "json", "-q", dir)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Bandit exits 1 when issues exist; only treat it as a failure
		// when no parseable output came back.
		if stdout.Len() == 0 {
			return nil, fmt.Errorf("bandit failed: %w: %s", err, truncate(stderr.String(), 200))
		}
	}

	return parseBanditOutput(stdout.Bytes(), dir, lineMap)
}

// banditResult mirrors the fields of bandit's -f json output the scanner
// consumes.
type banditResult struct {
	Results []struct {
		Filename      string `json:"filename"`
		LineNumber    int    `json:"line_number"`
		IssueSeverity string `json:"issue_severity"`
		IssueText     string `json:"issue_text"`
		TestID        string `json:"test_id"`
		IssueCWE      struct {
			ID int `json:"id"`
		} `json:"issue_cwe"`
	} `json:"results"`
}

// parseBanditOutput converts bandit JSON into SecurityVulnerability
// findings, mapping workspace paths and line numbers back to the diff's.
func parseBanditOutput(out []byte, workspace string, lineMap map[string]map[int]int) ([]SecurityVulnerability, error) {
	var parsed banditResult
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parsing bandit output: %w", err)
	}

	vulns := make([]SecurityVulnerability, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		rel, err := filepath.Rel(workspace, r.Filename)
		if err != nil {
			rel = r.Filename
		}
		rel = filepath.ToSlash(rel)

		line := r.LineNumber
		if mapping, ok := lineMap[rel]; ok {
			if mapped, ok := mapping[line]; ok {
				line = mapped
			}
		}

		cwe := ""
		if r.IssueCWE.ID != 0 {
			cwe = fmt.Sprintf("CWE-%d", r.IssueCWE.ID)
		}

		vulns = append(vulns, SecurityVulnerability{
			ToolSource:  "Bandit",
			Severity:    r.IssueSeverity,
			CWE:         cwe,
			FilePath:    rel,
			LineNumber:  line,
			Description: r.IssueText,
			Remediation: "See the rule documentation for " + r.TestID,
		})
	}

	return vulns, nil
}
