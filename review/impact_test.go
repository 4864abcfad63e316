package review

import (
	"os"
	"path/filepath"
	"testing"
)

// writeTree lays out a small source tree for search tests.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func TestParseGrepLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		root     string
		wantPath string
		wantLine int
		wantText string
		ok       bool
	}{
		{"plain", "pkg/a.go:12:\tRetry(3)", ".", "pkg/a.go", 12, "\tRetry(3)", true},
		{"colons in text", "a.go:5:m := map[string]int{}", ".", "a.go", 5, "m := map[string]int{}", true},
		{"root relative", "/src/tree/pkg/a.go:3:Retry()", "/src/tree", "pkg/a.go", 3, "Retry()", true},
		{"no line number", "a.go:xx:text", ".", "", 0, "", false},
		{"no colons", "just text", ".", "", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := parseGrepLine(tt.line, tt.root)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if m.Path != tt.wantPath || m.Line != tt.wantLine || m.Text != tt.wantText {
				t.Errorf("got %+v, want {%s %d %s}", m, tt.wantPath, tt.wantLine, tt.wantText)
			}
		})
	}
}

func TestIsDefinition(t *testing.T) {
	tests := []struct {
		line   string
		symbol string
		want   bool
	}{
		{"func Retry(n int) error {", "Retry", true},
		{"func (c *Client) Retry(n int) error {", "Retry", true},
		{"def retry(n):", "retry", true},
		{"function retry(n) {", "retry", true},
		{"\terr := Retry(3)", "Retry", false},
		{"func Other() { Retry() }", "Retry", false},
	}

	for _, tt := range tests {
		if got := isDefinition(tt.line, tt.symbol); got != tt.want {
			t.Errorf("isDefinition(%q, %q) = %v, want %v", tt.line, tt.symbol, got, tt.want)
		}
	}
}

func TestWalkSearch(t *testing.T) {
	root := writeTree(t, map[string]string{
		"pkg/caller.go":          "package pkg\n\nfunc use() {\n\tRetry(3)\n}\n",
		"pkg/def.go":             "package pkg\n\nfunc Retry(n int) error {\n\treturn nil\n}\n",
		"vendor/dep/skipped.go":  "Retry everywhere\n",
		".git/objects/blob":      "Retry in git internals\n",
		"assets/blob.bin":        "Retry\x00binary\n",
		"docs/notes.md":          "call Retry with care\n",
	})

	matches, err := walkSearch(root, "Retry")
	if err != nil {
		t.Fatalf("walkSearch() error = %v", err)
	}

	byPath := map[string]int{}
	for _, m := range matches {
		byPath[m.Path] = m.Line
	}

	if byPath["pkg/caller.go"] != 4 {
		t.Errorf("caller.go match line = %d, want 4", byPath["pkg/caller.go"])
	}
	if byPath["pkg/def.go"] != 3 {
		t.Errorf("def.go match line = %d, want 3", byPath["pkg/def.go"])
	}
	if byPath["docs/notes.md"] != 1 {
		t.Errorf("notes.md match line = %d, want 1", byPath["docs/notes.md"])
	}
	for _, excluded := range []string{"vendor/dep/skipped.go", ".git/objects/blob", "assets/blob.bin"} {
		if _, ok := byPath[excluded]; ok {
			t.Errorf("%s should have been skipped", excluded)
		}
	}
}

func TestFindImpacts(t *testing.T) {
	root := writeTree(t, map[string]string{
		"pkg/def.go":    "package pkg\n\nfunc Retry(n int) error {\n\treturn nil\n}\n",
		"pkg/caller.go": "package pkg\n\nfunc use() {\n\t_ = Retry(3)\n}\n",
		"cmd/main.go":   "package main\n\nfunc main() {\n\t_ = Retry(1)\n}\n",
	})

	// Force the native walk so the test does not depend on an installed rg.
	searcher := &RipgrepSearcher{Bin: "rg-definitely-not-installed", Root: root}

	diff := "--- a/pkg/def.go\n+++ b/pkg/def.go\n@@ -3,1 +3,1 @@\n-func Retry(n int) error {\n+func Retry(n int, backoff bool) error {\n"

	findings, err := searcher.FindImpacts(t.Context(), diff)
	if err != nil {
		t.Fatalf("FindImpacts() error = %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}

	f := findings[0]
	if f.ChangedFunction != "Retry" {
		t.Errorf("ChangedFunction = %q", f.ChangedFunction)
	}
	if !f.RequiresUpdate {
		t.Error("RequiresUpdate should be set with call sites present")
	}

	sites := map[string]bool{}
	for _, site := range f.ImpactedCallSites {
		sites[site] = true
	}
	if !sites["pkg/caller.go:4"] || !sites["cmd/main.go:4"] {
		t.Errorf("call sites = %v, want pkg/caller.go:4 and cmd/main.go:4", f.ImpactedCallSites)
	}
	if sites["pkg/def.go:3"] {
		t.Error("definition line must not count as a call site")
	}
}

func TestFindImpactsNoChanges(t *testing.T) {
	searcher := &RipgrepSearcher{Root: t.TempDir()}
	findings, err := searcher.FindImpacts(t.Context(), "+\tjust a body line\n")
	if err != nil {
		t.Fatalf("FindImpacts() error = %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("got %d findings for a diff with no definitions", len(findings))
	}
}
