// Package webhook is the HTTP intake surface: one endpoint per provider,
// each normalizing the provider's native payload into canonical events that
// the build service fans out.
package webhook

import "strings"

// ZeroCommit is the sentinel commit ID providers send when a ref was
// deleted. Payloads carrying it are ignored rather than built.
const ZeroCommit = "0000000000000000000000000000000000000000"

// AuthorEmail extracts the bracketed address from a raw "Name <email>"
// author string. A string without brackets is returned as-is so a bare
// address is not lost.
func AuthorEmail(raw string) string {
	close := strings.Index(raw, ">")
	if close < 0 {
		return raw
	}
	raw = raw[:close]
	open := strings.Index(raw, "<")
	if open < 0 {
		return raw
	}
	return raw[open+1:]
}

// BranchFromRef strips the refs/heads/ prefix from a git ref.
func BranchFromRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

// TagFromRef strips the refs/tags/ prefix from a git ref.
func TagFromRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/tags/")
}

// IsTagRef reports whether a git ref names a tag.
func IsTagRef(ref string) bool {
	return strings.HasPrefix(ref, "refs/tags/")
}
