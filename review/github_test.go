package review

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParsePRURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		owner   string
		repo    string
		number  string
		wantErr bool
	}{
		{"standard", "https://github.com/acme/api/pull/42", "acme", "api", "42", false},
		{"trailing slash", "https://github.com/acme/api/pull/42/", "acme", "api", "42", false},
		{"enterprise host", "https://ghe.example.com/team/svc/pull/7", "team", "svc", "7", false},
		{"http scheme", "http://github.com/acme/api/pull/1", "acme", "api", "1", false},
		{"issue URL", "https://github.com/acme/api/issues/42", "", "", "", true},
		{"not a URL", "acme/api#42", "", "", "", true},
		{"missing number", "https://github.com/acme/api/pull/", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, number, err := parsePRURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parsePRURL(%q) expected error", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePRURL(%q) error = %v", tt.url, err)
			}
			if owner != tt.owner || repo != tt.repo || number != tt.number {
				t.Errorf("got %s/%s#%s, want %s/%s#%s", owner, repo, number, tt.owner, tt.repo, tt.number)
			}
		})
	}
}

func TestFetchDiff(t *testing.T) {
	const diff = "diff --git a/main.go b/main.go\n+func main() {}\n"

	t.Run("requests the diff media type", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/repos/acme/api/pulls/42" {
				t.Errorf("path = %q", r.URL.Path)
			}
			if got := r.Header.Get("Accept"); got != "application/vnd.github.v3.diff" {
				t.Errorf("Accept = %q", got)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
				t.Errorf("Authorization = %q", got)
			}
			fmt.Fprint(w, diff)
		}))
		defer srv.Close()

		client := NewGitHubClient("token-123", WithAPIBase(srv.URL))
		got, err := client.FetchDiff(t.Context(), "https://github.com/acme/api/pull/42")
		if err != nil {
			t.Fatalf("FetchDiff() error = %v", err)
		}
		if got != diff {
			t.Errorf("diff = %q", got)
		}
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewGitHubClient("", WithAPIBase(srv.URL))
		_, err := client.FetchDiff(t.Context(), "https://github.com/acme/api/pull/42")
		if err == nil || !strings.Contains(err.Error(), "404") {
			t.Errorf("FetchDiff() error = %v, want 404", err)
		}
	})

	t.Run("rejects a non-PR URL before any request", func(t *testing.T) {
		client := NewGitHubClient("")
		if _, err := client.FetchDiff(t.Context(), "https://github.com/acme/api"); err == nil {
			t.Error("expected error for non-PR URL")
		}
	})
}

func TestPublish(t *testing.T) {
	approved := true
	state := State{
		PRURL:         "https://github.com/acme/api/pull/42",
		Summary:       &DiffSummary{ExecutiveSummary: "adds retries"},
		HumanApproved: &approved,
	}

	t.Run("posts a marked comment", func(t *testing.T) {
		var postedBody string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodGet:
				fmt.Fprint(w, `[{"body":"unrelated comment"}]`)
			case r.Method == http.MethodPost:
				var payload struct {
					Body string `json:"body"`
				}
				if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
					t.Errorf("decoding payload: %v", err)
				}
				postedBody = payload.Body
				w.WriteHeader(http.StatusCreated)
			}
		}))
		defer srv.Close()

		client := NewGitHubClient("token", WithAPIBase(srv.URL))
		if err := client.Publish(t.Context(), state); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if !strings.HasPrefix(postedBody, reportMarker) {
			t.Errorf("posted comment missing leading marker: %q", postedBody)
		}
		if !strings.Contains(postedBody, "adds retries") {
			t.Errorf("posted comment missing summary: %q", postedBody)
		}
	})

	t.Run("skips when a marked comment exists", func(t *testing.T) {
		posts := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				fmt.Fprintf(w, `[{"body":"%s\nearlier review"}]`, reportMarker)
			case http.MethodPost:
				posts++
				w.WriteHeader(http.StatusCreated)
			}
		}))
		defer srv.Close()

		client := NewGitHubClient("token", WithAPIBase(srv.URL))
		if err := client.Publish(t.Context(), state); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if posts != 0 {
			t.Errorf("posts = %d, want 0 when marker already present", posts)
		}
	})

	t.Run("non-201 post is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				fmt.Fprint(w, `[]`)
				return
			}
			http.Error(w, `{"message":"Validation Failed"}`, http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		client := NewGitHubClient("token", WithAPIBase(srv.URL))
		if err := client.Publish(t.Context(), state); err == nil || !strings.Contains(err.Error(), "422") {
			t.Errorf("Publish() error = %v, want 422", err)
		}
	})
}

func TestRenderComment(t *testing.T) {
	state := State{
		PRURL:   "https://github.com/acme/api/pull/42",
		Summary: &DiffSummary{ExecutiveSummary: "adds retries"},
		Footguns: []FootgunFinding{
			{FilePath: "client.go", LineNumber: 30, IssueType: "Race Condition", Description: "shared counter", Suggestion: "use atomic"},
		},
		SecurityIssues: []SecurityVulnerability{
			{ToolSource: "Semgrep", Severity: "HIGH", CWE: "CWE-798", FilePath: "cfg.go", LineNumber: 4, Description: "hardcoded secret", Remediation: "use env var"},
		},
		SemanticImpacts: []SemanticImpactFinding{
			{ChangedFunction: "Retry", ImpactedCallSites: []string{"a.go:1", "b.go:2"}},
		},
		HumanComment: "please also bump the changelog",
	}

	body := RenderComment(state)

	if !strings.HasPrefix(body, reportMarker+"\n") {
		t.Errorf("marker must be the first line, got %q", body[:40])
	}
	for _, want := range []string{
		"adds retries",
		"client.go:30", "Race Condition", "use atomic",
		"[HIGH] cfg.go:4", "CWE-798", "use env var",
		"`Retry` referenced at 2 call site(s)",
		"please also bump the changelog",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("comment missing %q", want)
		}
	}

	t.Run("empty sections omitted", func(t *testing.T) {
		body := RenderComment(State{PRURL: "https://github.com/acme/api/pull/1"})
		for _, absent := range []string{"Logic Footguns", "Security Issues", "Semantic Impacts", "Reviewer Note"} {
			if strings.Contains(body, absent) {
				t.Errorf("empty comment should omit %q", absent)
			}
		}
	})
}
