// Package dedup reconciles the curated and discovered repository streams into
// one canonical repository record.
package dedup

import (
	"strings"
	"unicode"

	"github.com/bull/docshub/internal/apperr"
)

// Canonicalize returns the canonical owner/name identity for a repository:
// trimmed and lowercased. Names without exactly one separator, with an empty
// side or with inner whitespace are rejected.
func Canonicalize(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	owner, repo, ok := strings.Cut(trimmed, "/")
	if !ok || strings.Contains(repo, "/") {
		return "", apperr.Errorf(apperr.KindValidation, "repository name %q must have the form owner/name", name)
	}
	if owner == "" || repo == "" {
		return "", apperr.Errorf(apperr.KindValidation, "repository name %q has an empty owner or name", name)
	}
	if strings.IndexFunc(trimmed, unicode.IsSpace) >= 0 {
		return "", apperr.Errorf(apperr.KindValidation, "repository name %q contains whitespace", name)
	}
	return strings.ToLower(trimmed), nil
}

// SplitName splits a canonical name into owner and repository.
func SplitName(canonical string) (owner, repo string) {
	owner, repo, _ = strings.Cut(canonical, "/")
	return owner, repo
}
