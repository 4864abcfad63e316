package review

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FileReportWriter implements ReportWriter by writing each report as an
// indented JSON document under Dir, one file per PR.
//
// File names are derived from the PR URL so re-running a session
// overwrites its own artifact instead of accumulating copies.
type FileReportWriter struct {
	// Dir is the artifact directory. Defaults to "reports".
	Dir string
}

// Write persists the report artifact (implements ReportWriter).
func (w *FileReportWriter) Write(_ context.Context, report *Report) error {
	dir := w.Dir
	if dir == "" {
		dir = "reports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	path := filepath.Join(dir, ReportFileName(report.PRURL))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report artifact: %w", err)
	}
	return nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ReportFileName derives a filesystem-safe artifact name from a PR URL,
// e.g. "github.com_acme_api_pull_42.json".
func ReportFileName(prURL string) string {
	name := strings.TrimPrefix(prURL, "https://")
	name = strings.TrimPrefix(name, "http://")
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "review"
	}
	return name + ".json"
}
