package dedup

import (
	"context"
	"fmt"
	"sync"
)

// Key is the stable internal identifier of a repository row.
type Key int64

// Candidate is one repository mention from a discovery path.
type Candidate struct {
	Name       string
	Source     Source
	Attributes Attributes
}

// Resolution is the outcome of resolving a candidate.
type Resolution struct {
	Key       Key
	Canonical string
	// First is false when the same repository was already resolved in this
	// run; callers use it to fetch files exactly once per run.
	First bool
}

// MergeStore persists merges. Implementations must apply Record.Merge
// atomically against the stored record for canonical.
type MergeStore interface {
	MergeRepository(ctx context.Context, canonical string, src Source, attrs Attributes) (Key, error)
}

// Resolver maps candidates to repository keys for the duration of one run.
type Resolver struct {
	store MergeStore

	mu   sync.Mutex
	seen map[string]Key
}

// NewResolver creates a run-scoped resolver.
func NewResolver(store MergeStore) *Resolver {
	return &Resolver{
		store: store,
		seen:  make(map[string]Key),
	}
}

// Resolve canonicalizes the candidate name, merges its contribution into the
// store and returns the repository key. Malformed names fail with a
// validation error and leave the store untouched.
func (r *Resolver) Resolve(ctx context.Context, c Candidate) (Resolution, error) {
	canonical, err := Canonicalize(c.Name)
	if err != nil {
		return Resolution{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key, err := r.store.MergeRepository(ctx, canonical, c.Source, c.Attributes)
	if err != nil {
		return Resolution{}, fmt.Errorf("merge %s: %w", canonical, err)
	}

	_, seen := r.seen[canonical]
	r.seen[canonical] = key

	return Resolution{Key: key, Canonical: canonical, First: !seen}, nil
}
