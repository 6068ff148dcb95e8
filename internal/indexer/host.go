package indexer

import (
	"context"
	"time"

	"github.com/bull/docshub/internal/dedup"
	"github.com/bull/docshub/internal/extract"
	"github.com/bull/docshub/internal/quality"
	"github.com/bull/docshub/internal/storage"
)

// Metadata is what the host reports about a repository.
type Metadata struct {
	Name          string
	Stars         int
	Language      string
	Description   string
	Topics        []string
	PushedAt      time.Time
	DefaultBranch string
	Archived      bool
}

// FileEntry is a file in a repository tree.
type FileEntry struct {
	Path string
	Size int
}

// Candidate is a repository surfaced by popularity discovery.
type Candidate struct {
	Name        string
	Stars       int
	Language    string
	Description string
	Topics      []string
}

// Host fetches repositories from a source-code host. Errors should carry an
// apperr kind so the orchestrator can decide between retry, skip and abort.
type Host interface {
	FetchMetadata(ctx context.Context, name string) (*Metadata, error)
	ListFiles(ctx context.Context, name, prefix string) ([]FileEntry, error)
	FetchFile(ctx context.Context, name, path string) ([]byte, error)
	SearchPopular(ctx context.Context, minStars, count int) ([]Candidate, error)
}

// Extractor turns raw file content into text and structure.
type Extractor interface {
	Extract(content []byte, format extract.Format) (*extract.Result, error)
}

// Scorer scores an extracted document.
type Scorer interface {
	Score(doc quality.Document, meta quality.RepoMetadata) quality.Result
}

// Store is the subset of the content store the orchestrator writes to.
type Store interface {
	dedup.MergeStore
	UpsertRepository(ctx context.Context, canonical string, patch storage.RepositoryPatch) error
	DecurateRepository(ctx context.Context, canonical string) (bool, error)
	ListRepositories(ctx context.Context, f storage.RepositoryFilter) ([]*storage.Repository, error)
	DocumentUnchanged(ctx context.Context, repoID dedup.Key, path, hash string) (bool, error)
	UpsertDocument(ctx context.Context, in storage.DocumentInput) (storage.UpsertOutcome, error)
	AverageDocumentScore(ctx context.Context, repoID dedup.Key) (float64, bool, error)
	RebuildSearchIndex(ctx context.Context) (*storage.IndexReport, error)
}

var _ Store = (*storage.Store)(nil)
