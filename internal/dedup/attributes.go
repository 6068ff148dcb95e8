package dedup

import "slices"

// Attributes is an optional-field patch over repository metadata.
// A nil pointer (or nil Topics) means "not supplied".
type Attributes struct {
	Stars         *int     `json:"stars,omitempty"`
	Language      *string  `json:"language,omitempty"`
	Description   *string  `json:"description,omitempty"`
	Topics        []string `json:"topics,omitempty"`
	Category      *string  `json:"category,omitempty"`
	ScoreOverride *float64 `json:"score_override,omitempty"`
	Priority      *string  `json:"priority,omitempty"`
}

// Apply returns a copy of a with every field supplied by patch replaced.
func (a Attributes) Apply(patch Attributes) Attributes {
	out := a.clone()
	if patch.Stars != nil {
		out.Stars = ptr(*patch.Stars)
	}
	if patch.Language != nil {
		out.Language = ptr(*patch.Language)
	}
	if patch.Description != nil {
		out.Description = ptr(*patch.Description)
	}
	if patch.Topics != nil {
		out.Topics = slices.Clone(patch.Topics)
	}
	if patch.Category != nil {
		out.Category = ptr(*patch.Category)
	}
	if patch.ScoreOverride != nil {
		out.ScoreOverride = ptr(*patch.ScoreOverride)
	}
	if patch.Priority != nil {
		out.Priority = ptr(*patch.Priority)
	}
	return out
}

// Over layers a on top of lower: fields set on a win, lower fills the gaps.
func (a Attributes) Over(lower Attributes) Attributes {
	return lower.Apply(a)
}

// IsZero reports whether no field is supplied.
func (a Attributes) IsZero() bool {
	return a.Stars == nil && a.Language == nil && a.Description == nil && a.Topics == nil &&
		a.Category == nil && a.ScoreOverride == nil && a.Priority == nil
}

func (a Attributes) clone() Attributes {
	out := a
	if a.Topics != nil {
		out.Topics = slices.Clone(a.Topics)
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return ptr(v)
}
