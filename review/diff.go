package review

import (
	"regexp"
	"strconv"
	"strings"
)

// diffLine is one added line with its line number in the new file.
type diffLine struct {
	Number int
	Text   string
}

// diffFile is the additions a unified diff makes to one file.
type diffFile struct {
	Path  string
	Added []diffLine
}

var hunkHeaderPattern = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// parseDiff extracts the added lines per file from a unified diff.
// Deleted files (new path /dev/null) are skipped; context and removed
// lines are ignored.
func parseDiff(diff string) []diffFile {
	var (
		files   []diffFile
		current *diffFile
		lineNo  int
		inHunk  bool
	)

	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ "):
			path := strings.TrimPrefix(line, "+++ ")
			path = strings.TrimPrefix(path, "b/")
			inHunk = false
			if path == "/dev/null" {
				current = nil
				continue
			}
			files = append(files, diffFile{Path: path})
			current = &files[len(files)-1]

		case strings.HasPrefix(line, "@@"):
			m := hunkHeaderPattern.FindStringSubmatch(line)
			if m == nil || current == nil {
				inHunk = false
				continue
			}
			start, err := strconv.Atoi(m[1])
			if err != nil {
				inHunk = false
				continue
			}
			lineNo = start
			inHunk = true

		case !inHunk || current == nil:
			// Between hunks, ignore.

		case strings.HasPrefix(line, "+"):
			current.Added = append(current.Added, diffLine{
				Number: lineNo,
				Text:   strings.TrimPrefix(line, "+"),
			})
			lineNo++

		case strings.HasPrefix(line, "-"):
			// Removed line, does not advance the new file's numbering.

		default:
			lineNo++
		}
	}

	return files
}

// Function definition patterns across the languages the pipeline commonly
// reviews. Each pattern captures the function name in group 1.
var symbolPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*[([]`), // Go
	regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`),        // Python
	regexp.MustCompile(`^\s*(?:export\s+)?function\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`), // JavaScript
}

// changedSymbols returns the function names whose definitions the diff
// touches (added or removed definition lines), deduplicated in first-seen
// order.
func changedSymbols(diff string) []string {
	seen := make(map[string]bool)
	var symbols []string

	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "-") {
			continue
		}
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			continue
		}
		text := line[1:]
		for _, pattern := range symbolPatterns {
			m := pattern.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if !seen[m[1]] {
				seen[m[1]] = true
				symbols = append(symbols, m[1])
			}
			break
		}
	}

	return symbols
}
