package internal

import (
	"fmt"
	"strings"
)

const (
	// MaxMessageLen is the hard cap on a rendered message, sized for the
	// sink's message limit.
	MaxMessageLen = 4000
	// bodyExcerptLen bounds PR/issue body previews.
	bodyExcerptLen = 200
	// DiffExcerptLen bounds the fenced diff block inside a push message.
	DiffExcerptLen = 1500

	truncationMarker = "...truncated"
)

// Format renders a canonical event into the outbound message text. Output is
// deterministic for a given (event, includeDiff) pair and never exceeds
// MaxMessageLen. Diff content only appears when includeDiff is set.
func Format(evt *NormalizedEvent, includeDiff bool) string {
	var b strings.Builder
	switch evt.Kind {
	case KindPush:
		formatPush(&b, evt, includeDiff)
	case KindPullRequest:
		formatPullRequest(&b, evt)
	case KindIssue:
		formatIssue(&b, evt)
	case KindRefCreate:
		formatRefCreate(&b, evt)
	case KindRefDelete:
		formatRefDelete(&b, evt)
	default:
		fmt.Fprintf(&b, "📫 %s event in %s by %s", evt.Kind, evt.RepoFullName, evt.Actor)
	}
	return truncateLines(b.String(), MaxMessageLen)
}

func formatPush(b *strings.Builder, evt *NormalizedEvent, includeDiff bool) {
	n := len(evt.Commits)
	switch n {
	case 0:
		fmt.Fprintf(b, "🚀 Push event to %s by %s", evt.RepoFullName, evt.Actor)
		if evt.Ref != "" {
			fmt.Fprintf(b, " (%s)", shortRef(evt.Ref))
		}
		return
	case 1:
		fmt.Fprintf(b, "🚀 1 new commit pushed to %s by %s\n", evt.RepoFullName, evt.Actor)
	default:
		fmt.Fprintf(b, "🚀 %d new commits pushed to %s by %s\n", n, evt.RepoFullName, evt.Actor)
	}

	files := 0
	for _, c := range evt.Commits {
		fmt.Fprintf(b, "\n%s %s: %s", shortSHA(c.SHA), c.Author, firstLine(c.Message))
		files += c.FilesChanged
	}

	if stats := evt.Metadata["stats"]; stats != "" {
		fmt.Fprintf(b, "\n\nFiles changed: %d (%s)", files, stats)
	} else {
		fmt.Fprintf(b, "\n\nFiles changed: %d", files)
	}
	if names := evt.Metadata["files"]; names != "" {
		fmt.Fprintf(b, "\nModified files: %s", names)
	}

	if includeDiff {
		if diff := headDiff(evt); diff != "" {
			b.WriteString("\n\nChanges:\n```\n")
			b.WriteString(truncateLines(diff, DiffExcerptLen))
			b.WriteString("\n```")
		}
	}

	if url := evt.Metadata["url"]; url != "" {
		fmt.Fprintf(b, "\n\nView commit: %s", url)
	}
}

func formatPullRequest(b *strings.Builder, evt *NormalizedEvent) {
	fmt.Fprintf(b, "📝 PR #%s %s in %s by %s\n", evt.Metadata["number"], evt.Action, evt.RepoFullName, evt.Actor)
	fmt.Fprintf(b, "\nTitle: %s", evt.Metadata["title"])
	if base, head := evt.Metadata["base"], evt.Metadata["head"]; base != "" && head != "" {
		fmt.Fprintf(b, "\nBranch: %s → %s", head, base)
	}
	if stats := evt.Metadata["stats"]; stats != "" {
		fmt.Fprintf(b, "\nFiles changed: %s", stats)
	}
	if state := evt.Metadata["state"]; state != "" {
		fmt.Fprintf(b, "\nState: %s", state)
	}
	fmt.Fprintf(b, "\n\n%s", excerpt(evt.Metadata["body"], bodyExcerptLen))
	if url := evt.Metadata["url"]; url != "" {
		fmt.Fprintf(b, "\n\nView PR: %s", url)
	}
}

func formatIssue(b *strings.Builder, evt *NormalizedEvent) {
	fmt.Fprintf(b, "🐛 Issue #%s %s in %s by %s\n", evt.Metadata["number"], evt.Action, evt.RepoFullName, evt.Actor)
	fmt.Fprintf(b, "\nTitle: %s", evt.Metadata["title"])
	if state := evt.Metadata["state"]; state != "" {
		fmt.Fprintf(b, "\nState: %s", state)
	}
	fmt.Fprintf(b, "\nLabels: %s", orNone(evt.Metadata["labels"]))
	if assignees := evt.Metadata["assignees"]; assignees != "" {
		fmt.Fprintf(b, "\nAssignees: %s", assignees)
	}
	if comments := evt.Metadata["comments"]; comments != "" {
		fmt.Fprintf(b, "\nComments: %s", comments)
	}
	fmt.Fprintf(b, "\n\n%s", excerpt(evt.Metadata["body"], bodyExcerptLen))
	if url := evt.Metadata["url"]; url != "" {
		fmt.Fprintf(b, "\n\nView issue: %s", url)
	}
}

func formatRefCreate(b *strings.Builder, evt *NormalizedEvent) {
	switch evt.Metadata["ref_type"] {
	case "branch":
		fmt.Fprintf(b, "🌿 New branch '%s' created in %s by %s", evt.Ref, evt.RepoFullName, evt.Actor)
		fmt.Fprintf(b, "\n\nView branch: https://github.com/%s/tree/%s", evt.RepoFullName, evt.Ref)
	case "tag":
		fmt.Fprintf(b, "🏷️ New tag '%s' created in %s by %s", evt.Ref, evt.RepoFullName, evt.Actor)
		fmt.Fprintf(b, "\n\nView tag: https://github.com/%s/releases/tag/%s", evt.RepoFullName, evt.Ref)
	default:
		fmt.Fprintf(b, "📫 New %s '%s' created in %s by %s", evt.Metadata["ref_type"], evt.Ref, evt.RepoFullName, evt.Actor)
	}
}

func formatRefDelete(b *strings.Builder, evt *NormalizedEvent) {
	refType := evt.Metadata["ref_type"]
	fmt.Fprintf(b, "🗑️ %s '%s' deleted from %s by %s", titleCase(refType), evt.Ref, evt.RepoFullName, evt.Actor)
}

// headDiff returns the newest commit's diff summary, if any.
func headDiff(evt *NormalizedEvent) string {
	for i := len(evt.Commits) - 1; i >= 0; i-- {
		if evt.Commits[i].DiffSummary != "" {
			return evt.Commits[i].DiffSummary
		}
	}
	return ""
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func shortRef(ref string) string {
	ref = strings.TrimPrefix(ref, "refs/heads/")
	return strings.TrimPrefix(ref, "refs/tags/")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimRight(s[:i], "\r")
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// excerpt truncates a body preview to max runes, marking the cut.
func excerpt(s string, max int) string {
	if s == "" {
		return "No description"
	}
	s = firstParagraph(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func firstParagraph(s string) string {
	if i := strings.Index(s, "\n\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// truncateLines bounds text to max bytes, cutting at a line boundary and
// appending a marker instead of chopping mid-line. Falls back to a rune
// boundary when the first line alone is over budget, so a multi-byte
// character is never split.
func truncateLines(text string, max int) string {
	if len(text) <= max {
		return text
	}
	budget := max - len(truncationMarker) - 1
	if budget <= 0 {
		return truncationMarker[:max]
	}
	cut := strings.LastIndexByte(text[:budget+1], '\n')
	if cut <= 0 {
		// Single oversized line: cut at the last rune that fits.
		cut = budget
		for cut > 0 && !isRuneStart(text[cut]) {
			cut--
		}
	}
	return text[:cut] + "\n" + truncationMarker
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
