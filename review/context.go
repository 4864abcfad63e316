package review

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// TreeContextFetcher implements ContextFetcher: for utilities the diff's
// added lines call but do not define, it pulls the defining line from the
// source tree so a reviewer sees the ground-truth definition next to the
// usage.
//
// Shares the ripgrep-or-walk search with RipgrepSearcher.
type TreeContextFetcher struct {
	// Bin is the ripgrep executable. Defaults to "rg".
	Bin string

	// Root is the source tree to search. Defaults to ".".
	Root string

	// MaxSymbols caps how many referenced symbols are resolved per diff.
	// Defaults to 10.
	MaxSymbols int
}

var callPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]{2,})\s*\(`)

// Language keywords and ubiquitous builtins that look like calls but are
// never worth resolving.
var ignoredCallees = map[string]bool{
	"func": true, "def": true, "function": true, "return": true,
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"make": true, "len": true, "cap": true, "new": true, "append": true,
	"print": true, "println": true, "range": true, "str": true, "int": true,
}

// FetchContext resolves referenced-but-not-defined symbols to their
// definitions (implements ContextFetcher).
func (t *TreeContextFetcher) FetchContext(ctx context.Context, diff string) (map[string]string, error) {
	root := t.Root
	if root == "" {
		root = "."
	}
	maxSymbols := t.MaxSymbols
	if maxSymbols <= 0 {
		maxSymbols = 10
	}

	symbols := referencedSymbols(diff, maxSymbols)
	defs := make(map[string]string, len(symbols))

	for _, symbol := range symbols {
		matches, err := searchTree(ctx, t.Bin, root, symbol)
		if err != nil {
			return nil, fmt.Errorf("resolving definition of %s: %w", symbol, err)
		}
		for _, m := range matches {
			if isDefinition(m.Text, symbol) {
				defs[symbol] = fmt.Sprintf("%s:%d: %s", m.Path, m.Line, strings.TrimSpace(m.Text))
				break
			}
		}
	}

	return defs, nil
}

// referencedSymbols extracts callee names from the diff's added lines,
// excluding keywords and functions the diff itself defines. Results are
// sorted for determinism and capped at limit.
func referencedSymbols(diff string, limit int) []string {
	defined := make(map[string]bool)
	for _, symbol := range changedSymbols(diff) {
		defined[symbol] = true
	}

	seen := make(map[string]bool)
	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "+") || strings.HasPrefix(line, "+++") {
			continue
		}
		for _, m := range callPattern.FindAllStringSubmatch(line[1:], -1) {
			name := m[1]
			if ignoredCallees[name] || defined[name] {
				continue
			}
			seen[name] = true
		}
	}

	symbols := make([]string, 0, len(seen))
	for name := range seen {
		symbols = append(symbols, name)
	}
	sort.Strings(symbols)

	if len(symbols) > limit {
		symbols = symbols[:limit]
	}
	return symbols
}
