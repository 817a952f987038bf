// Package resolve reconciles raw, possibly overlapping detection
// candidates from multiple sources into a single non-overlapping,
// confidence-ranked entity list.
package resolve

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/veil/internal/detect"
	veilotel "github.com/dativo-io/veil/internal/otel"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/resolve")

// Resolve converts candidates into a maximal non-overlapping set.
//
// Candidates whose span is malformed (start >= end) or outside the text's
// bounds are discarded up front. The rest are sorted by score descending,
// tie-broken by span length descending (longer equally-confident spans
// win), then by start ascending for full determinism, and accepted
// greedily: a candidate enters the resolved set only if it overlaps no
// already-accepted span. Rejected candidates are dropped whole; no
// trimmed partial spans are emitted.
//
// The greedy highest-confidence-first selection does not try to maximize
// the count of non-overlapping spans. That is a deliberate trade: the
// most confident detection always survives.
//
// The returned slice is ordered ascending by start.
func Resolve(ctx context.Context, textLen int, candidates []detect.Candidate) []detect.Candidate {
	_, span := tracer.Start(ctx, "resolve.reconcile")
	defer span.End()

	ranked := make([]detect.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Start >= c.End || c.Start < 0 || c.End > textLen {
			continue
		}
		ranked = append(ranked, c)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Len() != ranked[j].Len() {
			return ranked[i].Len() > ranked[j].Len()
		}
		return ranked[i].Start < ranked[j].Start
	})

	var accepted []detect.Candidate
	for _, c := range ranked {
		overlaps := false
		for _, a := range accepted {
			if c.Overlaps(a) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, c)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })

	span.SetAttributes(
		attribute.Int("resolve.candidates", len(candidates)),
		attribute.Int("resolve.accepted", len(accepted)),
	)
	return accepted
}
