package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// SemgrepScanner implements SecurityScanner by orchestrating the semgrep
// CLI over the changed content of a diff.
//
// The diff's added lines are materialized into a temporary tree (one file
// per touched path, added lines only) and semgrep scans that tree with
// --json output. Line numbers in findings are mapped back to the new-file
// line numbers the diff declares, so they match what a reviewer sees on
// the PR.
//
// Scanner failures (binary missing, timeout, malformed output) surface as
// errors; the pipeline classifies this step absorbing, so a broken scanner
// degrades the review instead of halting it.
type SemgrepScanner struct {
	// Bin is the semgrep executable. Defaults to "semgrep".
	Bin string

	// Config is the ruleset passed to --config. Defaults to "auto".
	Config string

	// Timeout bounds one scan invocation. Defaults to 2 minutes.
	Timeout time.Duration
}

// Scan runs semgrep over the diff's added content
// (implements SecurityScanner).
func (s *SemgrepScanner) Scan(ctx context.Context, diff string) ([]SecurityVulnerability, error) {
	files := parseDiff(diff)
	if len(files) == 0 {
		return []SecurityVulnerability{}, nil
	}

	dir, err := os.MkdirTemp("", "reviewflow-scan-")
	if err != nil {
		return nil, fmt.Errorf("creating scan workspace: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	// lineMap[relative path] maps materialized line number -> diff line
	// number in the new file.
	lineMap, err := materializeAdded(dir, files)
	if err != nil {
		return nil, err
	}

	bin := s.Bin
	if bin == "" {
		bin = "semgrep"
	}
	config := s.Config
	if config == "" {
		config = "auto"
	}
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--json", "--quiet", "--config", config, dir)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Semgrep exits 1 when findings exist; only treat it as a failure
		// when no parseable output came back.
		if stdout.Len() == 0 {
			return nil, fmt.Errorf("semgrep failed: %w: %s", err, truncate(stderr.String(), 200))
		}
	}

	return parseSemgrepOutput(stdout.Bytes(), dir, lineMap)
}

// materializeAdded writes each diff file's added lines into dir and
// returns the per-file mapping from materialized line numbers back to
// new-file line numbers.
func materializeAdded(dir string, files []diffFile) (map[string]map[int]int, error) {
	lineMap := make(map[string]map[int]int, len(files))

	for _, file := range files {
		if len(file.Added) == 0 {
			continue
		}

		rel := filepath.FromSlash(file.Path)
		target := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("creating scan workspace dir: %w", err)
		}

		var sb strings.Builder
		mapping := make(map[int]int, len(file.Added))
		for i, line := range file.Added {
			sb.WriteString(line.Text)
			sb.WriteString("\n")
			mapping[i+1] = line.Number
		}
		if err := os.WriteFile(target, []byte(sb.String()), 0o644); err != nil {
			return nil, fmt.Errorf("writing scan workspace file: %w", err)
		}
		lineMap[file.Path] = mapping
	}

	return lineMap, nil
}

// semgrepResult mirrors the fields of semgrep's --json output the scanner
// consumes.
type semgrepResult struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		Extra struct {
			Severity string `json:"severity"`
			Message  string `json:"message"`
			Metadata struct {
				CWE json.RawMessage `json:"cwe"`
			} `json:"metadata"`
			Fix string `json:"fix"`
		} `json:"extra"`
	} `json:"results"`
}

// parseSemgrepOutput converts semgrep JSON into SecurityVulnerability
// findings, mapping workspace paths and line numbers back to the diff's.
func parseSemgrepOutput(out []byte, workspace string, lineMap map[string]map[int]int) ([]SecurityVulnerability, error) {
	var parsed semgrepResult
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parsing semgrep output: %w", err)
	}

	vulns := make([]SecurityVulnerability, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		rel, err := filepath.Rel(workspace, r.Path)
		if err != nil {
			rel = r.Path
		}
		rel = filepath.ToSlash(rel)

		line := r.Start.Line
		if mapping, ok := lineMap[rel]; ok {
			if mapped, ok := mapping[line]; ok {
				line = mapped
			}
		}

		remediation := r.Extra.Fix
		if remediation == "" {
			remediation = "See the rule documentation for " + r.CheckID
		}

		vulns = append(vulns, SecurityVulnerability{
			ToolSource:  "Semgrep",
			Severity:    r.Extra.Severity,
			CWE:         firstCWE(r.Extra.Metadata.CWE),
			FilePath:    rel,
			LineNumber:  line,
			Description: r.Extra.Message,
			Remediation: remediation,
		})
	}

	return vulns, nil
}

// firstCWE extracts a CWE identifier from semgrep metadata, which encodes
// it as either a string or an array of strings.
func firstCWE(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return cweID(single)
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return cweID(many[0])
	}

	return ""
}

// cweID reduces entries like "CWE-79: Improper Neutralization..." to the
// bare identifier.
func cweID(entry string) string {
	if idx := strings.Index(entry, ":"); idx > 0 {
		return strings.TrimSpace(entry[:idx])
	}
	return strings.TrimSpace(entry)
}

// MultiScanner fans a diff out to several scanners and concatenates their
// findings in scanner order. One broken tool does not void the others:
// per-scanner failures are collected and returned as an error only when
// every scanner failed.
type MultiScanner []SecurityScanner

// Scan runs each scanner in turn (implements SecurityScanner).
func (m MultiScanner) Scan(ctx context.Context, diff string) ([]SecurityVulnerability, error) {
	var (
		vulns []SecurityVulnerability
		errs  []error
	)
	for _, scanner := range m {
		found, err := scanner.Scan(ctx, diff)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		vulns = append(vulns, found...)
	}

	if len(errs) == len(m) && len(m) > 0 {
		return nil, fmt.Errorf("all scanners failed: %w", errors.Join(errs...))
	}
	if vulns == nil {
		vulns = []SecurityVulnerability{}
	}
	return vulns, nil
}
