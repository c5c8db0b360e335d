package internal

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Enricher decorates normalized events with detail the webhook payload does
// not carry, fetched from the GitHub API: commit stats and patches for
// pushes, file counts and full bodies for pull requests, labels and
// assignees for issues. It is optional and failure-tolerant: when the API
// call errors or times out, the event keeps its payload-only data.
type Enricher struct {
	client      *github.Client
	timeout     time.Duration
	includeDiff bool
	logger      *log.Logger
}

// NewEnricher returns nil when no token is configured; a nil Enricher is a
// safe no-op.
func NewEnricher(token string, timeout time.Duration, includeDiff bool, logger *log.Logger) *Enricher {
	if token == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	tc := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	))
	return &Enricher{
		client:      github.NewClient(tc),
		timeout:     timeout,
		includeDiff: includeDiff,
		logger:      logger,
	}
}

func (e *Enricher) Enrich(ctx context.Context, evt *NormalizedEvent) {
	if e == nil {
		return
	}
	owner, repo, ok := splitFullName(evt.RepoFullName)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var err error
	switch evt.Kind {
	case KindPush:
		err = e.enrichPush(ctx, owner, repo, evt)
	case KindPullRequest:
		err = e.enrichPullRequest(ctx, owner, repo, evt)
	case KindIssue:
		err = e.enrichIssue(ctx, owner, repo, evt)
	}
	if err != nil {
		e.logger.Printf("enrich %s %s failed: %v", evt.Kind, evt.RepoFullName, err)
	}
}

func (e *Enricher) enrichPush(ctx context.Context, owner, repo string, evt *NormalizedEvent) error {
	if len(evt.Commits) == 0 {
		return nil
	}
	head := &evt.Commits[len(evt.Commits)-1]

	rc, _, err := e.client.Repositories.GetCommit(ctx, owner, repo, head.SHA, nil)
	if err != nil {
		return err
	}

	evt.Metadata["stats"] = fmt.Sprintf("+%d -%d", rc.GetStats().GetAdditions(), rc.GetStats().GetDeletions())
	evt.Metadata["url"] = rc.GetHTMLURL()

	names := make([]string, 0, 5)
	var patches strings.Builder
	for _, f := range rc.Files {
		if len(names) < 5 {
			names = append(names, f.GetFilename())
		}
		if e.includeDiff && f.GetPatch() != "" {
			patches.WriteString(f.GetPatch())
			patches.WriteByte('\n')
		}
	}
	evt.Metadata["files"] = strings.Join(names, ", ")
	if e.includeDiff && patches.Len() > 0 {
		head.DiffSummary = truncateLines(strings.TrimRight(patches.String(), "\n"), DiffExcerptLen)
	}
	return nil
}

func (e *Enricher) enrichPullRequest(ctx context.Context, owner, repo string, evt *NormalizedEvent) error {
	number, err := strconv.Atoi(evt.Metadata["number"])
	if err != nil {
		return fmt.Errorf("bad PR number %q", evt.Metadata["number"])
	}

	pr, _, err := e.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return err
	}

	evt.Metadata["stats"] = fmt.Sprintf("%d (+%d -%d)", pr.GetChangedFiles(), pr.GetAdditions(), pr.GetDeletions())
	evt.Metadata["state"] = pr.GetState()
	if body := pr.GetBody(); body != "" {
		evt.Metadata["body"] = body
	}
	return nil
}

func (e *Enricher) enrichIssue(ctx context.Context, owner, repo string, evt *NormalizedEvent) error {
	number, err := strconv.Atoi(evt.Metadata["number"])
	if err != nil {
		return fmt.Errorf("bad issue number %q", evt.Metadata["number"])
	}

	issue, _, err := e.client.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return err
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		labels = append(labels, label.GetName())
	}
	assignees := make([]string, 0, len(issue.Assignees))
	for _, a := range issue.Assignees {
		assignees = append(assignees, a.GetLogin())
	}

	evt.Metadata["labels"] = strings.Join(labels, ", ")
	evt.Metadata["assignees"] = strings.Join(assignees, ", ")
	evt.Metadata["comments"] = strconv.Itoa(issue.GetComments())
	evt.Metadata["state"] = issue.GetState()
	if body := issue.GetBody(); body != "" {
		evt.Metadata["body"] = body
	}
	return nil
}

func splitFullName(fullName string) (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(fullName, "/")
	return owner, repo, ok && owner != "" && repo != ""
}
