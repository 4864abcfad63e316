package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// reportMarker is the hidden HTML comment embedded in every posted review
// comment. Publish greps existing comments for it before posting, so a
// re-invoked publish step never duplicates the review.
const reportMarker = "<!-- reviewflow:report -->"

// prURLPattern matches https://github.com/{owner}/{repo}/pull/{number}.
var prURLPattern = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+)/pull/(\d+)$`)

// GitHubClient talks to the GitHub REST API for the two pipeline edges:
// fetching a PR's unified diff and posting the review comment back.
//
// It implements both DiffFetcher and Publisher.
//
// Security Warning: NEVER hardcode the token in source code.
// Read it from an environment variable or a secret manager:
//
//	client := review.NewGitHubClient(os.Getenv("GITHUB_TOKEN"))
type GitHubClient struct {
	token   string
	apiBase string
	http    *http.Client
}

// GitHubOption configures a GitHubClient.
type GitHubOption func(*GitHubClient)

// WithAPIBase overrides the API base URL (default https://api.github.com).
// Useful for GitHub Enterprise and for tests against httptest servers.
func WithAPIBase(base string) GitHubOption {
	return func(c *GitHubClient) {
		c.apiBase = strings.TrimSuffix(base, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) GitHubOption {
	return func(c *GitHubClient) {
		c.http = hc
	}
}

// NewGitHubClient creates a GitHub REST client.
//
// An empty token is allowed for public repositories but will hit much
// stricter rate limits.
func NewGitHubClient(token string, opts ...GitHubOption) *GitHubClient {
	c := &GitHubClient{
		token:   token,
		apiBase: "https://api.github.com",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchDiff retrieves the unified diff for a pull request URL
// (implements DiffFetcher).
//
// Uses the diff media type so GitHub returns the raw patch instead of the
// JSON resource.
func (c *GitHubClient) FetchDiff(ctx context.Context, prURL string) (string, error) {
	owner, repo, number, err := parsePRURL(prURL)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%s", c.apiBase, owner, repo, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building diff request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3.diff")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching diff for %s: %w", prURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading diff response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github returned %d fetching diff for %s: %s",
			resp.StatusCode, prURL, truncate(string(body), 200))
	}

	return string(body), nil
}

// Publish posts the review report as a PR comment (implements Publisher).
//
// Idempotent by content marker: if any existing comment on the PR already
// carries the report marker, Publish returns without posting. This is the
// publish step's own obligation, not the engine's.
func (c *GitHubClient) Publish(ctx context.Context, state State) error {
	owner, repo, number, err := parsePRURL(state.PRURL)
	if err != nil {
		return err
	}

	posted, err := c.alreadyPosted(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	if posted {
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"body": RenderComment(state),
	})
	if err != nil {
		return fmt.Errorf("encoding comment payload: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues/%s/comments", c.apiBase, owner, repo, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building comment request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting review comment to %s: %w", state.PRURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("github returned %d posting comment to %s: %s",
			resp.StatusCode, state.PRURL, truncate(string(body), 200))
	}

	return nil
}

// alreadyPosted checks existing PR comments for the report marker.
func (c *GitHubClient) alreadyPosted(ctx context.Context, owner, repo, number string) (bool, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%s/comments?per_page=100", c.apiBase, owner, repo, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("building comments request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("listing comments: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("github returned %d listing comments: %s",
			resp.StatusCode, truncate(string(body), 200))
	}

	var comments []struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&comments); err != nil {
		return false, fmt.Errorf("decoding comments: %w", err)
	}

	for _, comment := range comments {
		if strings.Contains(comment.Body, reportMarker) {
			return true, nil
		}
	}
	return false, nil
}

func (c *GitHubClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// RenderComment formats the accumulated review as the markdown comment
// body posted to the PR. The report marker is always the first line.
func RenderComment(state State) string {
	var sb strings.Builder
	sb.WriteString(reportMarker)
	sb.WriteString("\n## Automated Review\n\n")

	if state.Summary != nil {
		sb.WriteString("**Summary:** ")
		sb.WriteString(state.Summary.ExecutiveSummary)
		sb.WriteString("\n\n")
	}

	if len(state.Footguns) > 0 {
		sb.WriteString("### Logic Footguns\n")
		for _, fg := range state.Footguns {
			fmt.Fprintf(&sb, "- **%s:%d** [%s] %s\n  Suggestion: %s\n",
				fg.FilePath, fg.LineNumber, fg.IssueType, fg.Description, fg.Suggestion)
		}
		sb.WriteString("\n")
	}

	if len(state.SecurityIssues) > 0 {
		sb.WriteString("### Security Issues\n")
		for _, sec := range state.SecurityIssues {
			fmt.Fprintf(&sb, "- **[%s] %s:%d** (%s, %s) %s\n  Remediation: %s\n",
				sec.Severity, sec.FilePath, sec.LineNumber, sec.ToolSource, sec.CWE,
				sec.Description, sec.Remediation)
		}
		sb.WriteString("\n")
	}

	if len(state.SemanticImpacts) > 0 {
		sb.WriteString("### Semantic Impacts\n")
		for _, imp := range state.SemanticImpacts {
			fmt.Fprintf(&sb, "- `%s` referenced at %d call site(s)\n",
				imp.ChangedFunction, len(imp.ImpactedCallSites))
		}
		sb.WriteString("\n")
	}

	if state.HumanComment != "" {
		sb.WriteString("### Reviewer Note\n")
		sb.WriteString(state.HumanComment)
		sb.WriteString("\n")
	}

	return sb.String()
}

// parsePRURL splits a pull request URL into owner, repo and number.
func parsePRURL(prURL string) (owner, repo, number string, err error) {
	m := prURLPattern.FindStringSubmatch(strings.TrimSuffix(prURL, "/"))
	if m == nil {
		return "", "", "", fmt.Errorf("not a pull request URL: %q", prURL)
	}
	return m[1], m[2], m[3], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
