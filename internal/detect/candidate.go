// Package detect produces PII detection candidates from free-form text.
//
// Candidates are raw, possibly overlapping spans from multiple sources:
// the built-in regex PatternDetector and any external provider (e.g. an
// out-of-process NER tagger) wrapped in the Detector interface. Overlap
// resolution happens later, in internal/resolve.
package detect

import "context"

// Candidate is a single unresolved detection result. Many candidates may
// reference overlapping spans of the same text; [Start,End) indexes bytes
// of the scanned text.
type Candidate struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// Len returns the span length in bytes.
func (c Candidate) Len() int { return c.End - c.Start }

// Overlaps reports whether the two candidates' spans intersect.
func (c Candidate) Overlaps(o Candidate) bool {
	return c.Start < o.End && o.Start < c.End
}

// Detector yields detection candidates for a text. Implementations must
// be safe for concurrent use; candidates from all configured detectors
// are concatenated before reconciliation.
type Detector interface {
	Detect(ctx context.Context, text string) []Candidate
}

// Func adapts a plain function to the Detector interface. Useful for
// wiring external taggers whose results arrive through a callback.
type Func func(ctx context.Context, text string) []Candidate

// Detect implements Detector.
func (f Func) Detect(ctx context.Context, text string) []Candidate {
	return f(ctx, text)
}

// Static is a Detector that always returns the same candidate list,
// regardless of the text. It carries pre-computed results from an
// external tagger into the pipeline.
type Static []Candidate

// Detect implements Detector.
func (s Static) Detect(context.Context, string) []Candidate {
	return []Candidate(s)
}
