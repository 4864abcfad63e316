package review

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// RipgrepSearcher implements ImpactSearcher by locating references to the
// diff's changed functions across a source tree.
//
// It shells out to ripgrep when available and falls back to a native tree
// walk otherwise, so the step still works on machines without rg
// installed.
type RipgrepSearcher struct {
	// Bin is the ripgrep executable. Defaults to "rg".
	Bin string

	// Root is the source tree to search. Defaults to ".".
	Root string
}

// FindImpacts finds call sites of every function the diff changes
// (implements ImpactSearcher).
//
// Definition lines are excluded from the call-site list; a finding's
// RequiresUpdate flag is set when any call site outside the definition
// remains.
func (r *RipgrepSearcher) FindImpacts(ctx context.Context, diff string) ([]SemanticImpactFinding, error) {
	symbols := changedSymbols(diff)
	if len(symbols) == 0 {
		return []SemanticImpactFinding{}, nil
	}

	root := r.Root
	if root == "" {
		root = "."
	}

	findings := make([]SemanticImpactFinding, 0, len(symbols))
	for _, symbol := range symbols {
		matches, err := searchTree(ctx, r.Bin, root, symbol)
		if err != nil {
			return nil, fmt.Errorf("searching call sites for %s: %w", symbol, err)
		}

		var callSites []string
		for _, m := range matches {
			if isDefinition(m.Text, symbol) {
				continue
			}
			callSites = append(callSites, fmt.Sprintf("%s:%d", m.Path, m.Line))
		}

		findings = append(findings, SemanticImpactFinding{
			ChangedFunction:   symbol,
			ImpactedCallSites: callSites,
			RequiresUpdate:    len(callSites) > 0,
		})
	}

	return findings, nil
}

// isDefinition reports whether a matched line defines the symbol rather
// than calling it.
func isDefinition(line, symbol string) bool {
	for _, pattern := range symbolPatterns {
		if m := pattern.FindStringSubmatch(line); m != nil && m[1] == symbol {
			return true
		}
	}
	return false
}

// grepMatch is one literal-text hit in the source tree.
type grepMatch struct {
	Path string
	Line int
	Text string
}

// searchTree finds literal occurrences of needle under root, via ripgrep
// when the binary is available and a native walk otherwise.
func searchTree(ctx context.Context, bin, root, needle string) ([]grepMatch, error) {
	if bin == "" {
		bin = "rg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return walkSearch(root, needle)
	}
	return ripgrepSearch(ctx, bin, root, needle)
}

// ripgrepSearch parses `rg -n --no-heading` output: path:line:text.
func ripgrepSearch(ctx context.Context, bin, root, needle string) ([]grepMatch, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-n", "--no-heading", "-F", needle, root)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Exit code 1 means no matches; anything else is a real failure.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("ripgrep failed: %w: %s", err, truncate(stderr.String(), 200))
	}

	var matches []grepMatch
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m, ok := parseGrepLine(scanner.Text(), root)
		if ok {
			matches = append(matches, m)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ripgrep output: %w", err)
	}
	return matches, nil
}

// parseGrepLine splits "path:line:text", tolerating colons in the text.
func parseGrepLine(line, root string) (grepMatch, bool) {
	first := strings.Index(line, ":")
	if first <= 0 {
		return grepMatch{}, false
	}

	// Windows drive letters put a colon at index 1.
	if first == 1 && len(line) > 2 {
		next := strings.Index(line[2:], ":")
		if next < 0 {
			return grepMatch{}, false
		}
		first = next + 2
	}

	rest := line[first+1:]
	second := strings.Index(rest, ":")
	if second <= 0 {
		return grepMatch{}, false
	}

	num, err := strconv.Atoi(rest[:second])
	if err != nil {
		return grepMatch{}, false
	}

	path := line[:first]
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		path = filepath.ToSlash(rel)
	}

	return grepMatch{Path: path, Line: num, Text: rest[second+1:]}, true
}

const maxSearchFileSize = 1 << 20 // skip files over 1 MiB in the fallback walk

// walkSearch is the native fallback used when ripgrep is not installed.
func walkSearch(root, needle string) ([]grepMatch, error) {
	var matches []grepMatch

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".git" || name == "node_modules" || name == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxSearchFileSize {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer func() { _ = f.Close() }()

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSearchFileSize)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			text := scanner.Text()
			if bytes.Contains([]byte(text), []byte{0}) {
				// Binary file, stop scanning it.
				return nil
			}
			if strings.Contains(text, needle) {
				matches = append(matches, grepMatch{Path: rel, Line: lineNo, Text: text})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	return matches, nil
}
