// Command reviewflow drives the automated PR-review pipeline: start or
// resume a review session, inspect its checkpoint, and submit the
// approval decision that releases a paused session.
//
// Usage:
//
//	reviewflow run -config reviewflow.yaml -pr https://github.com/acme/api/pull/42
//	reviewflow inspect -pr https://github.com/acme/api/pull/42
//	reviewflow approve -pr https://github.com/acme/api/pull/42 -comment "lgtm"
//	reviewflow reject -pr https://github.com/acme/api/pull/42 -comment "needs tests"
//	reviewflow sessions
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dshills/reviewflow/flow"
	"github.com/dshills/reviewflow/flow/emit"
	"github.com/dshills/reviewflow/flow/store"
	"github.com/dshills/reviewflow/review"
	"github.com/dshills/reviewflow/review/llm"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "reviewflow.yaml", "path to the YAML configuration")
	prURL := fs.String("pr", "", "pull request URL (doubles as the session ID)")
	comment := fs.String("comment", "", "reviewer comment for approve/reject")
	timeout := fs.Duration("timeout", 10*time.Minute, "overall command timeout")
	_ = fs.Parse(os.Args[2:])

	// A missing config file means run on defaults; an unreadable or
	// invalid one is fatal.
	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = ""
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	app, err := newApp(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer app.close()

	switch cmd {
	case "run":
		err = app.run(ctx, *prURL)
	case "inspect":
		err = app.inspect(ctx, *prURL)
	case "approve":
		err = app.decide(ctx, *prURL, true, *comment)
	case "reject":
		err = app.decide(ctx, *prURL, false, *comment)
	case "sessions":
		err = app.sessions(ctx)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: reviewflow <run|inspect|approve|reject|sessions> [flags]")
	fmt.Fprintln(os.Stderr, "run 'reviewflow <command> -h' for command flags")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "reviewflow:", err)
	os.Exit(1)
}

// app bundles the wired engine with whatever needs closing at exit.
type app struct {
	engine  *flow.Engine[review.State]
	closers []func() error
}

func newApp(ctx context.Context, cfg *Config) (*app, error) {
	a := &app{}

	st, err := a.newStore(cfg)
	if err != nil {
		return nil, err
	}

	reviewer, err := a.newReviewer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	github := review.NewGitHubClient(cfg.GitHubToken(), githubOptions(cfg)...)

	graph, err := review.NewGraph(review.Collaborators{
		Diff:     github,
		Summary:  reviewer,
		Footguns: reviewer,
		Scanner:  newScanner(cfg),
		Impact: &review.RipgrepSearcher{
			Bin:  cfg.Search.RipgrepBin,
			Root: cfg.Search.Root,
		},
		Context: &review.TreeContextFetcher{
			Bin:  cfg.Search.RipgrepBin,
			Root: cfg.Search.Root,
		},
		Reports:   &review.FileReportWriter{Dir: cfg.Reports.Dir},
		Publisher: github,
	})
	if err != nil {
		return nil, err
	}

	reducer, err := review.NewReducer()
	if err != nil {
		return nil, err
	}

	emitter := emit.NewLogEmitter(os.Stderr, cfg.Log.JSON)
	engine, err := flow.New(graph, reducer, st, emitter)
	if err != nil {
		return nil, err
	}
	a.engine = engine
	return a, nil
}

func (a *app) newStore(cfg *Config) (store.Store[review.State], error) {
	switch cfg.Store.Driver {
	case "memory":
		// Useful for dry runs only: sessions do not survive the process.
		return store.NewMemStore[review.State](), nil
	case "sqlite":
		st, err := store.NewSQLiteStore[review.State](cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	case "mysql":
		st, err := store.NewMySQLStore[review.State](cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (a *app) newReviewer(ctx context.Context, cfg *Config) (llm.Reviewer, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return llm.NewOpenAIReviewer(cfg.LLMAPIKey(), cfg.LLM.Model)
	case "anthropic":
		return llm.NewAnthropicReviewer(cfg.LLMAPIKey(), cfg.LLM.Model)
	case "google":
		r, err := llm.NewGoogleReviewer(ctx, cfg.LLMAPIKey(), cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	case "mock":
		return &llm.MockReviewer{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func newScanner(cfg *Config) review.SecurityScanner {
	semgrep := &review.SemgrepScanner{
		Bin:    cfg.Scanner.Bin,
		Config: cfg.Scanner.Config,
	}
	if cfg.Scanner.BanditBin == "" {
		return semgrep
	}
	return review.MultiScanner{
		semgrep,
		&review.BanditScanner{Bin: cfg.Scanner.BanditBin},
	}
}

func githubOptions(cfg *Config) []review.GitHubOption {
	var opts []review.GitHubOption
	if cfg.GitHub.APIBase != "" {
		opts = append(opts, review.WithAPIBase(cfg.GitHub.APIBase))
	}
	return opts
}

func (a *app) close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			fmt.Fprintln(os.Stderr, "reviewflow: close:", err)
		}
	}
}

func (a *app) run(ctx context.Context, prURL string) error {
	if prURL == "" {
		return errors.New("run requires -pr")
	}

	res, err := a.engine.StartOrResume(ctx, prURL, review.NewInitialState(prURL))
	if err != nil {
		return err
	}
	return a.report(res, prURL)
}

func (a *app) decide(ctx context.Context, prURL string, approved bool, comment string) error {
	if prURL == "" {
		return errors.New("approve/reject require -pr")
	}

	res, err := a.engine.SubmitDecision(ctx, prURL, review.Approval(approved, comment))
	if err != nil {
		return err
	}
	return a.report(res, prURL)
}

// report prints the advance outcome. A fatal step failure exits
// non-zero so CI wrappers notice; a pause is a normal outcome.
func (a *app) report(res flow.Result[review.State], prURL string) error {
	switch res.Status {
	case flow.StatusPaused:
		fmt.Printf("session %s paused at %s\n", prURL, res.PendingStep)
		fmt.Printf("review the report, then: reviewflow approve -pr %s\n", prURL)
		if len(res.State.StepNotes) > 0 {
			fmt.Println("degraded steps:")
			for _, note := range res.State.StepNotes {
				fmt.Printf("  %s: %s\n", note.Step, note.Detail)
			}
		}
	case flow.StatusCompleted:
		fmt.Printf("session %s completed\n", prURL)
	case flow.StatusFailed:
		return fmt.Errorf("session %s failed at %s: %w", prURL, res.FailedStep, res.Err)
	default:
		fmt.Printf("session %s: %s\n", prURL, res.Status)
	}
	return nil
}

func (a *app) inspect(ctx context.Context, prURL string) error {
	if prURL == "" {
		return errors.New("inspect requires -pr")
	}

	info, err := a.engine.Inspect(ctx, prURL)
	if err != nil {
		return err
	}

	out := map[string]any{
		"session_id":   info.SessionID,
		"status":       info.Status.String(),
		"pending_step": info.PendingStep,
		"version":      info.Version,
	}
	if info.FailedStep != "" {
		out["failed_step"] = info.FailedStep
		out["failure_reason"] = info.FailureReason
	}
	if !info.UpdatedAt.IsZero() {
		out["updated_at"] = info.UpdatedAt.Format(time.RFC3339)
	}
	out["state"] = info.State

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (a *app) sessions(ctx context.Context) error {
	ids, err := a.engine.ListSessions(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		info, err := a.engine.Inspect(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%s\n", id, info.Status, info.PendingStep)
	}
	return nil
}
