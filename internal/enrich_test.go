package internal

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
)

func fakeGitHub(t *testing.T, routes map[string]string) *github.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	client.BaseURL = base
	return client
}

// TestEnricherNil tests that an unconfigured enricher is a safe no-op.
func TestEnricherNil(t *testing.T) {
	if e := NewEnricher("", time.Second, false, nil); e != nil {
		t.Fatalf("expected nil enricher without a token")
	}

	var e *Enricher
	evt := &NormalizedEvent{Kind: KindPush, RepoFullName: "octo/demo", Metadata: map[string]string{}}
	e.Enrich(context.Background(), evt)
	if len(evt.Metadata) != 0 {
		t.Fatalf("nil enricher must not touch the event: %v", evt.Metadata)
	}
}

// TestEnricherPush tests that the head commit gets stats, file names, and a
// patch from the commits API.
func TestEnricherPush(t *testing.T) {
	client := fakeGitHub(t, map[string]string{
		"/repos/octo/demo/commits/bbbb222": `{
			"sha": "bbbb222",
			"html_url": "https://github.com/octo/demo/commit/bbbb222",
			"stats": {"additions": 12, "deletions": 3},
			"files": [
				{"filename": "main.go", "patch": "+added line"},
				{"filename": "util.go", "patch": "-removed line"}
			]
		}`,
	})
	e := &Enricher{client: client, timeout: time.Second, includeDiff: true, logger: testLogger()}

	evt := &NormalizedEvent{
		Kind:         KindPush,
		RepoFullName: "octo/demo",
		Commits:      []Commit{{SHA: "aaaa111"}, {SHA: "bbbb222"}},
		Metadata:     map[string]string{},
	}
	e.Enrich(context.Background(), evt)

	if evt.Metadata["stats"] != "+12 -3" {
		t.Fatalf("expected stats, got %q", evt.Metadata["stats"])
	}
	if evt.Metadata["files"] != "main.go, util.go" {
		t.Fatalf("expected file names, got %q", evt.Metadata["files"])
	}
	if evt.Metadata["url"] != "https://github.com/octo/demo/commit/bbbb222" {
		t.Fatalf("expected commit url, got %q", evt.Metadata["url"])
	}
	head := evt.Commits[1]
	if !strings.Contains(head.DiffSummary, "+added line") || !strings.Contains(head.DiffSummary, "-removed line") {
		t.Fatalf("expected patches in head diff, got %q", head.DiffSummary)
	}
}

// TestEnricherPullRequest tests that PR detail overrides the payload body and
// adds stats.
func TestEnricherPullRequest(t *testing.T) {
	client := fakeGitHub(t, map[string]string{
		"/repos/octo/demo/pulls/7": `{
			"number": 7,
			"state": "open",
			"body": "full body from the API",
			"changed_files": 4,
			"additions": 20,
			"deletions": 5
		}`,
	})
	e := &Enricher{client: client, timeout: time.Second, logger: testLogger()}

	evt := &NormalizedEvent{
		Kind:         KindPullRequest,
		RepoFullName: "octo/demo",
		Metadata:     map[string]string{"number": "7", "body": "truncated payload body"},
	}
	e.Enrich(context.Background(), evt)

	if evt.Metadata["stats"] != "4 (+20 -5)" {
		t.Fatalf("expected PR stats, got %q", evt.Metadata["stats"])
	}
	if evt.Metadata["state"] != "open" {
		t.Fatalf("expected state, got %q", evt.Metadata["state"])
	}
	if evt.Metadata["body"] != "full body from the API" {
		t.Fatalf("expected API body, got %q", evt.Metadata["body"])
	}
}

// TestEnricherIssue tests the issue detail mapping.
func TestEnricherIssue(t *testing.T) {
	client := fakeGitHub(t, map[string]string{
		"/repos/octo/demo/issues/42": `{
			"number": 42,
			"state": "open",
			"comments": 3,
			"labels": [{"name": "bug"}, {"name": "ui"}],
			"assignees": [{"login": "octocat"}]
		}`,
	})
	e := &Enricher{client: client, timeout: time.Second, logger: testLogger()}

	evt := &NormalizedEvent{
		Kind:         KindIssue,
		RepoFullName: "octo/demo",
		Metadata:     map[string]string{"number": "42"},
	}
	e.Enrich(context.Background(), evt)

	if evt.Metadata["labels"] != "bug, ui" {
		t.Fatalf("expected labels, got %q", evt.Metadata["labels"])
	}
	if evt.Metadata["assignees"] != "octocat" {
		t.Fatalf("expected assignees, got %q", evt.Metadata["assignees"])
	}
	if evt.Metadata["comments"] != "3" {
		t.Fatalf("expected comment count, got %q", evt.Metadata["comments"])
	}
}

// TestEnricherAPIFailure tests that an API error leaves the payload-only data
// intact.
func TestEnricherAPIFailure(t *testing.T) {
	client := fakeGitHub(t, map[string]string{})
	e := &Enricher{client: client, timeout: time.Second, logger: testLogger()}

	evt := &NormalizedEvent{
		Kind:         KindPush,
		RepoFullName: "octo/demo",
		Commits:      []Commit{{SHA: "aaaa111", DiffSummary: "M main.go"}},
		Metadata:     map[string]string{"commit_count": "1"},
	}
	e.Enrich(context.Background(), evt)

	if evt.Commits[0].DiffSummary != "M main.go" {
		t.Fatalf("payload diff must survive API failure, got %q", evt.Commits[0].DiffSummary)
	}
	if evt.Metadata["commit_count"] != "1" {
		t.Fatalf("payload metadata must survive API failure, got %v", evt.Metadata)
	}
}

func testLogger() *log.Logger {
	return NewLogger("test")
}
