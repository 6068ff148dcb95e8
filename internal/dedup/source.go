package dedup

import "github.com/bull/docshub/internal/apperr"

// Source tags which discovery paths produced a repository.
type Source string

const (
	SourceCurated    Source = "curated"
	SourceDiscovered Source = "discovered"
	SourceBoth       Source = "both"
)

// ParseSource validates a source tag.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceCurated, SourceDiscovered, SourceBoth:
		return Source(s), nil
	}
	return "", apperr.Errorf(apperr.KindValidation, "unknown source %q (want curated, discovered or both)", s)
}

// Curated reports whether the curated path contributed.
func (s Source) Curated() bool {
	return s == SourceCurated || s == SourceBoth
}

// Discovered reports whether the discovery path contributed.
func (s Source) Discovered() bool {
	return s == SourceDiscovered || s == SourceBoth
}

// Merge returns the union of both tags. The empty tag is the identity.
func (s Source) Merge(other Source) Source {
	return fromFlags(s.Curated() || other.Curated(), s.Discovered() || other.Discovered())
}

// WithoutCurated drops the curated contribution. A curated-only tag is kept,
// since a repository never loses its last tag.
func (s Source) WithoutCurated() Source {
	if s == SourceBoth {
		return SourceDiscovered
	}
	return s
}

func (s Source) String() string {
	return string(s)
}

func fromFlags(curated, discovered bool) Source {
	switch {
	case curated && discovered:
		return SourceBoth
	case curated:
		return SourceCurated
	case discovered:
		return SourceDiscovered
	}
	return ""
}
