package internal

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-playground/webhooks/v6/github"
)

type normalizeFunc func(body []byte) (*NormalizedEvent, error)

// normalizers maps the X-GitHub-Event header value to its constructor. Adding
// a kind is a one-entry change here plus a constructor below.
var normalizers = map[string]normalizeFunc{
	"push":         normalizePush,
	"pull_request": normalizePullRequest,
	"issues":       normalizeIssues,
	"create":       normalizeCreate,
	"delete":       normalizeDelete,
}

// Normalize converts a raw provider payload into the canonical event shape.
// Unknown event types yield ErrUnsupportedEvent; payloads missing required
// fields yield a *MalformedPayloadError. Pure: no I/O.
func Normalize(eventType, deliveryID string, body []byte) (*NormalizedEvent, error) {
	fn, ok := normalizers[eventType]
	if !ok {
		return nil, ErrUnsupportedEvent
	}
	evt, err := fn(body)
	if err != nil {
		return nil, err
	}
	evt.DeliveryID = deliveryID
	return evt, nil
}

func normalizePush(body []byte) (*NormalizedEvent, error) {
	var p github.PushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &MalformedPayloadError{EventType: "push", Reason: err.Error()}
	}
	if p.Repository.FullName == "" {
		return nil, &MalformedPayloadError{EventType: "push", Reason: "missing repository.full_name"}
	}
	actor := p.Pusher.Name
	if actor == "" {
		actor = p.Sender.Login
	}
	if actor == "" {
		return nil, &MalformedPayloadError{EventType: "push", Reason: "missing pusher.name"}
	}

	commits := make([]Commit, 0, len(p.Commits))
	for _, c := range p.Commits {
		commits = append(commits, Commit{
			SHA:          c.ID,
			Message:      c.Message,
			Author:       c.Author.Name,
			FilesChanged: len(c.Added) + len(c.Removed) + len(c.Modified),
			DiffSummary:  nameStatusSummary(c.Added, c.Removed, c.Modified),
		})
	}

	// A push without commits is a bare ref update (force push, branch sync).
	action := "push"
	if len(commits) == 0 {
		action = "sync"
	}

	return &NormalizedEvent{
		Kind:         KindPush,
		RepoFullName: p.Repository.FullName,
		Actor:        actor,
		Action:       action,
		Ref:          p.Ref,
		Commits:      commits,
		Metadata: map[string]string{
			"commit_count": strconv.Itoa(len(commits)),
		},
	}, nil
}

func normalizePullRequest(body []byte) (*NormalizedEvent, error) {
	var p github.PullRequestPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &MalformedPayloadError{EventType: "pull_request", Reason: err.Error()}
	}
	if p.Repository.FullName == "" {
		return nil, &MalformedPayloadError{EventType: "pull_request", Reason: "missing repository.full_name"}
	}
	actor := p.Sender.Login
	if actor == "" {
		actor = p.PullRequest.User.Login
	}
	if actor == "" {
		return nil, &MalformedPayloadError{EventType: "pull_request", Reason: "missing sender.login"}
	}

	// GitHub reports a merge as action=closed with the merged flag set.
	action := p.Action
	if action == "closed" && p.PullRequest.Merged {
		action = "merged"
	}

	return &NormalizedEvent{
		Kind:         KindPullRequest,
		RepoFullName: p.Repository.FullName,
		Actor:        actor,
		Action:       action,
		Ref:          p.PullRequest.Head.Ref,
		Metadata: map[string]string{
			"number": strconv.FormatInt(p.Number, 10),
			"title":  p.PullRequest.Title,
			"body":   p.PullRequest.Body,
			"base":   p.PullRequest.Base.Ref,
			"head":   p.PullRequest.Head.Ref,
			"url":    p.PullRequest.HTMLURL,
		},
	}, nil
}

func normalizeIssues(body []byte) (*NormalizedEvent, error) {
	var p github.IssuesPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &MalformedPayloadError{EventType: "issues", Reason: err.Error()}
	}
	if p.Repository.FullName == "" {
		return nil, &MalformedPayloadError{EventType: "issues", Reason: "missing repository.full_name"}
	}
	actor := p.Sender.Login
	if actor == "" {
		actor = p.Issue.User.Login
	}
	if actor == "" {
		return nil, &MalformedPayloadError{EventType: "issues", Reason: "missing sender.login"}
	}

	labels := make([]string, 0, len(p.Issue.Labels))
	for _, label := range p.Issue.Labels {
		labels = append(labels, label.Name)
	}

	return &NormalizedEvent{
		Kind:         KindIssue,
		RepoFullName: p.Repository.FullName,
		Actor:        actor,
		Action:       p.Action,
		Metadata: map[string]string{
			"number": strconv.FormatInt(p.Issue.Number, 10),
			"title":  p.Issue.Title,
			"body":   p.Issue.Body,
			"labels": strings.Join(labels, ", "),
			"url":    p.Issue.HTMLURL,
		},
	}, nil
}

func normalizeCreate(body []byte) (*NormalizedEvent, error) {
	var p github.CreatePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &MalformedPayloadError{EventType: "create", Reason: err.Error()}
	}
	return normalizeRefChange(KindRefCreate, "create", p.Repository.FullName, p.Sender.Login, p.Ref, p.RefType)
}

func normalizeDelete(body []byte) (*NormalizedEvent, error) {
	var p github.DeletePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &MalformedPayloadError{EventType: "delete", Reason: err.Error()}
	}
	return normalizeRefChange(KindRefDelete, "delete", p.Repository.FullName, p.Sender.Login, p.Ref, p.RefType)
}

func normalizeRefChange(kind Kind, eventType, repo, actor, ref, refType string) (*NormalizedEvent, error) {
	if repo == "" {
		return nil, &MalformedPayloadError{EventType: eventType, Reason: "missing repository.full_name"}
	}
	if actor == "" {
		return nil, &MalformedPayloadError{EventType: eventType, Reason: "missing sender.login"}
	}
	return &NormalizedEvent{
		Kind:         kind,
		RepoFullName: repo,
		Actor:        actor,
		Action:       refType,
		Ref:          ref,
		Metadata: map[string]string{
			"ref_type": refType,
		},
	}, nil
}

// nameStatusSummary renders the payload's file lists in git name-status form.
func nameStatusSummary(added, removed, modified []string) string {
	var b strings.Builder
	for _, f := range added {
		b.WriteString("A " + f + "\n")
	}
	for _, f := range removed {
		b.WriteString("D " + f + "\n")
	}
	for _, f := range modified {
		b.WriteString("M " + f + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
