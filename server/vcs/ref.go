package vcs

import "strings"

type RefType string

const (
	BranchRef  RefType = "branch"
	TagRef     RefType = "tag"
	UnknownRef RefType = "unknown"
)

// Ref is a fully resolved vcs ref.
type Ref struct {
	Type RefType
	Name string
}

// ParseRef parses a fully qualified git ref like refs/heads/main into a Ref.
func ParseRef(ref string) Ref {
	switch {
	case strings.HasPrefix(ref, "refs/heads/"):
		return Ref{Type: BranchRef, Name: strings.TrimPrefix(ref, "refs/heads/")}
	case strings.HasPrefix(ref, "refs/tags/"):
		return Ref{Type: TagRef, Name: strings.TrimPrefix(ref, "refs/tags/")}
	default:
		return Ref{Type: UnknownRef, Name: ref}
	}
}
