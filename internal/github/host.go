package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/go-github/v81/github"

	"github.com/bull/docshub/internal/apperr"
	"github.com/bull/docshub/internal/dedup"
	"github.com/bull/docshub/internal/indexer"
)

// maxSearchResults is the most the search API returns for one query.
const maxSearchResults = 1000

// Host fetches repository metadata, trees and files from GitHub.
type Host struct {
	client *Client
	logger *slog.Logger

	// branches caches default branches reported by FetchMetadata.
	branches sync.Map
}

var _ indexer.Host = (*Host)(nil)

// NewHost creates a host backed by client.
func NewHost(client *Client, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{client: client, logger: logger}
}

// FetchMetadata returns the repository's current metadata.
func (h *Host) FetchMetadata(ctx context.Context, name string) (*indexer.Metadata, error) {
	owner, repo, err := split(name)
	if err != nil {
		return nil, err
	}

	r, _, err := h.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, classify("fetch metadata "+name, err)
	}

	meta := &indexer.Metadata{
		Name:          strings.ToLower(r.GetFullName()),
		Stars:         r.GetStargazersCount(),
		Language:      r.GetLanguage(),
		Description:   r.GetDescription(),
		Topics:        r.Topics,
		PushedAt:      r.GetPushedAt().Time,
		DefaultBranch: r.GetDefaultBranch(),
		Archived:      r.GetArchived(),
	}
	if meta.DefaultBranch != "" {
		h.branches.Store(name, meta.DefaultBranch)
	}
	return meta, nil
}

// ListFiles lists the blobs under prefix in the default branch. An empty
// prefix lists the whole tree.
func (h *Host) ListFiles(ctx context.Context, name, prefix string) ([]indexer.FileEntry, error) {
	owner, repo, err := split(name)
	if err != nil {
		return nil, err
	}

	tree, _, err := h.client.Git.GetTree(ctx, owner, repo, h.ref(name), true)
	if err != nil {
		return nil, classify("list files "+name, err)
	}
	if tree.GetTruncated() {
		h.logger.Warn("Repository tree truncated by host", "repository", name, "entries", len(tree.Entries))
	}

	prefix = strings.TrimPrefix(prefix, "/")
	var files []indexer.FileEntry
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		p := entry.GetPath()
		if prefix != "" && !strings.HasPrefix(p, prefix) {
			continue
		}
		files = append(files, indexer.FileEntry{Path: p, Size: entry.GetSize()})
	}
	return files, nil
}

// FetchFile returns the raw content of one file on the default branch.
func (h *Host) FetchFile(ctx context.Context, name, path string) ([]byte, error) {
	owner, repo, err := split(name)
	if err != nil {
		return nil, err
	}
	opts := &github.RepositoryContentGetOptions{Ref: h.ref(name)}

	fileContent, _, _, err := h.client.Repositories.GetContents(ctx, owner, repo, path, opts)
	if err != nil {
		return nil, classify("fetch file "+name+"/"+path, err)
	}
	if fileContent == nil {
		return nil, apperr.Errorf(apperr.KindNotFound, "%s/%s is a directory", name, path)
	}

	// Files over 1 MB come back without inline content.
	if fileContent.GetEncoding() == "none" || (fileContent.Content == nil && fileContent.GetSize() > 0) {
		return h.download(ctx, owner, repo, path, opts)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, apperr.E(apperr.KindInternal, "decode "+name+"/"+path, err)
	}
	return []byte(content), nil
}

func (h *Host) download(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) ([]byte, error) {
	rc, _, err := h.client.Repositories.DownloadContents(ctx, owner, repo, path, opts)
	if err != nil {
		return nil, classify("download "+owner+"/"+repo+"/"+path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, classify("download "+owner+"/"+repo+"/"+path, err)
	}
	return data, nil
}

// SearchPopular returns up to count repositories with at least minStars
// stars, most starred first.
func (h *Host) SearchPopular(ctx context.Context, minStars, count int) ([]indexer.Candidate, error) {
	if count <= 0 {
		return nil, nil
	}
	count = min(count, maxSearchResults)

	opts := &github.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: min(count, 100)},
	}
	query := fmt.Sprintf("stars:>=%d", minStars)

	var out []indexer.Candidate
	for len(out) < count {
		result, resp, err := h.client.Search.Repositories(ctx, query, opts)
		if err != nil {
			return out, classify("search popular", err)
		}
		for _, r := range result.Repositories {
			out = append(out, indexer.Candidate{
				Name:        r.GetFullName(),
				Stars:       r.GetStargazersCount(),
				Language:    r.GetLanguage(),
				Description: r.GetDescription(),
				Topics:      r.Topics,
			})
			if len(out) == count {
				break
			}
		}
		if resp.NextPage == 0 || len(result.Repositories) == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	h.logger.Debug("Discovered popular repositories", "min_stars", minStars, "found", len(out))
	return out, nil
}

// ref returns the cached default branch, or HEAD when metadata has not been
// fetched for name.
func (h *Host) ref(name string) string {
	if v, ok := h.branches.Load(name); ok {
		return v.(string)
	}
	return "HEAD"
}

func split(name string) (owner, repo string, err error) {
	canonical, err := dedup.Canonicalize(name)
	if err != nil {
		return "", "", err
	}
	owner, repo = dedup.SplitName(canonical)
	return owner, repo, nil
}
