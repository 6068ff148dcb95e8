package indexer

import (
	"sync"
	"time"

	"github.com/bull/docshub/internal/apperr"
	"github.com/bull/docshub/internal/metrics"
	"github.com/bull/docshub/internal/storage"
)

// maxFailures bounds the failure list kept in a summary.
const maxFailures = 200

// Failure is one contained failure. Path is empty for repository-level
// failures.
type Failure struct {
	Repository string      `json:"repository,omitempty"`
	Path       string      `json:"path,omitempty"`
	Kind       apperr.Kind `json:"kind"`
	Message    string      `json:"message"`
}

// RunSummary reports what an orchestration run did.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Mode       Mode          `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`

	Candidates         int `json:"candidates"`
	Repositories       int `json:"repositories"`
	RepositoriesFailed int `json:"repositories_failed"`
	Decurated          int `json:"decurated"`

	// Document counters.
	Succeeded int `json:"succeeded"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Retries   int `json:"retries"`

	Rebuilt         bool   `json:"rebuilt"`
	IndexGeneration int64  `json:"index_generation,omitempty"`
	Aborted         bool   `json:"aborted"`
	AbortReason     string `json:"abort_reason,omitempty"`

	Failures          []Failure `json:"failures,omitempty"`
	FailuresTruncated bool      `json:"failures_truncated,omitempty"`
}

// tally accumulates a summary from concurrent workers.
type tally struct {
	mu      sync.Mutex
	summary RunSummary
}

func (t *tally) document(outcome storage.UpsertOutcome) {
	metrics.DocumentsTotal.WithLabelValues(string(outcome)).Inc()
	t.mu.Lock()
	defer t.mu.Unlock()
	if outcome == storage.OutcomeUnchanged {
		t.summary.Unchanged++
		return
	}
	t.summary.Succeeded++
}

func (t *tally) skipped() {
	metrics.DocumentsTotal.WithLabelValues("skipped").Inc()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Skipped++
}

func (t *tally) retries(n int) {
	if n == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Retries += n
}

func (t *tally) fileFailed(repo, path string, err error) {
	metrics.DocumentsTotal.WithLabelValues("failed").Inc()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Failed++
	t.failure(repo, path, err)
}

func (t *tally) repoFailed(repo string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.RepositoriesFailed++
	t.failure(repo, "", err)
}

// failure must be called with mu held.
func (t *tally) failure(repo, path string, err error) {
	if len(t.summary.Failures) >= maxFailures {
		t.summary.FailuresTruncated = true
		return
	}
	t.summary.Failures = append(t.summary.Failures, Failure{
		Repository: repo,
		Path:       path,
		Kind:       apperr.KindOf(err),
		Message:    apperr.Message(err),
	})
}

func (t *tally) changed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary.Succeeded > 0
}

func (t *tally) snapshot() RunSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.summary
	out.Failures = append([]Failure(nil), t.summary.Failures...)
	return out
}

func (t *tally) update(fn func(s *RunSummary)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.summary)
}
