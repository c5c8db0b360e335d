package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Kind is the closed set of event variants the pipeline handles.
type Kind string

const (
	KindPush        Kind = "push"
	KindPullRequest Kind = "pull_request"
	KindIssue       Kind = "issue"
	KindRefCreate   Kind = "ref_create"
	KindRefDelete   Kind = "ref_delete"
)

// Commit is one commit carried by a push event, in payload order.
type Commit struct {
	SHA          string
	Message      string
	Author       string
	FilesChanged int
	// DiffSummary is a name-status style summary built from the payload's
	// file lists, optionally replaced by a real patch excerpt by the
	// enricher.
	DiffSummary string
}

// NormalizedEvent is the canonical shape every supported webhook is reduced
// to. It lives for one request: created by Normalize, consumed by Format.
type NormalizedEvent struct {
	Kind         Kind
	DeliveryID   string
	RepoFullName string
	Actor        string
	Action       string
	Ref          string
	Commits      []Commit
	Metadata     map[string]string
}

// HeadSHA returns the sha of the newest commit, or "" for non-push events.
func (e *NormalizedEvent) HeadSHA() string {
	if len(e.Commits) == 0 {
		return ""
	}
	return e.Commits[len(e.Commits)-1].SHA
}

// DedupKey derives a stable identifier for this delivery. GitHub redeliveries
// reuse the delivery GUID, so resends of the same webhook hash identically.
func (e *NormalizedEvent) DedupKey() string {
	discriminator := e.Ref
	if sha := e.HeadSHA(); sha != "" {
		discriminator = sha
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		e.DeliveryID, string(e.Kind), e.Action, discriminator,
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// Task is one unit of work owned by the scheduler: a rendered message bound
// for the sink, plus the bookkeeping its retry loop mutates.
type Task struct {
	DedupKey      string            `json:"dedup_key"`
	RepoFullName  string            `json:"repo_full_name"`
	Message       string            `json:"message"`
	Attempts      int               `json:"attempts"`
	NextAttemptAt time.Time         `json:"next_attempt_at,omitzero"`
	CreatedAt     time.Time         `json:"created_at"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
