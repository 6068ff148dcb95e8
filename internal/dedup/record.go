package dedup

// Record is the merge state of one repository: its tag and the metadata each
// discovery path contributed. Curated values take precedence field by field.
type Record struct {
	Source     Source     `json:"source"`
	Curated    Attributes `json:"curated"`
	Discovered Attributes `json:"discovered"`
}

// Merge folds a contribution from src into the record. The contribution
// patches the layer belonging to src; the tag becomes the union.
// Merging into the zero Record creates a record tagged src.
func (r Record) Merge(src Source, attrs Attributes) Record {
	out := Record{
		Source:     r.Source.Merge(src),
		Curated:    r.Curated.clone(),
		Discovered: r.Discovered.clone(),
	}
	if src.Curated() {
		out.Curated = out.Curated.Apply(attrs)
	}
	if src.Discovered() {
		out.Discovered = out.Discovered.Apply(attrs)
	}
	return out
}

// Effective is the metadata callers observe: curated over discovered.
func (r Record) Effective() Attributes {
	return r.Curated.Over(r.Discovered)
}

// Decurate removes the curated contribution, reverting every field to its
// discovered (or computed) value. Stale reports whether nothing but curation
// ever produced the repository; such records keep their tag as history.
func (r Record) Decurate() (out Record, stale bool) {
	out = Record{
		Source:     r.Source.WithoutCurated(),
		Discovered: r.Discovered.clone(),
	}
	return out, !r.Source.Discovered()
}

// Observe records host-reported metadata in the discovered layer without
// changing the tag. Curated values still take precedence.
func (r Record) Observe(attrs Attributes) Record {
	return Record{
		Source:     r.Source,
		Curated:    r.Curated.clone(),
		Discovered: r.Discovered.Apply(attrs),
	}
}
