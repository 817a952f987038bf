// Package engine wires detection, reconciliation and substitution into
// the pseudonymization pipeline.
//
// A Pseudonymizer is immutable after construction and performs no I/O,
// so one instance may process many documents from many goroutines
// concurrently. Within a document the stages are sequential; across
// documents there is no shared state beyond the read-only salt.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dativo-io/veil/internal/checksum"
	"github.com/dativo-io/veil/internal/detect"
	veilotel "github.com/dativo-io/veil/internal/otel"
	"github.com/dativo-io/veil/internal/resolve"
	"github.com/dativo-io/veil/internal/synth"
)

var (
	tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/engine")
	meter  = veilotel.Meter("github.com/dativo-io/veil/internal/engine")

	documentsProcessed metric.Int64Counter
	entitiesReplaced   metric.Int64Counter
)

func init() {
	documentsProcessed, _ = meter.Int64Counter("veil.documents.processed")
	entitiesReplaced, _ = meter.Int64Counter("veil.entities.replaced")
}

// Replacement records one substitution in the output. Records in a
// Result are ordered ascending by Start. When synthesis failed for the
// span, Unresolved is true and the original text was left in place.
type Replacement struct {
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Original    string  `json:"original"`
	Replacement string  `json:"replacement"`
	EntityType  string  `json:"entity_type"`
	Score       float64 `json:"score"`
	Unresolved  bool    `json:"unresolved,omitempty"`
}

// Result is the outcome of pseudonymizing one text.
type Result struct {
	OriginalText      string        `json:"original_text"`
	PseudonymizedText string        `json:"pseudonymized_text"`
	Replacements      []Replacement `json:"replacements"`
}

// EntitiesFound returns the number of resolved entities.
func (r *Result) EntitiesFound() int { return len(r.Replacements) }

// EntityTypes returns the distinct entity types in the result.
func (r *Result) EntityTypes() []string {
	seen := make(map[string]bool)
	var types []string
	for _, rep := range r.Replacements {
		if !seen[rep.EntityType] {
			seen[rep.EntityType] = true
			types = append(types, rep.EntityType)
		}
	}
	sort.Strings(types)
	return types
}

// Pseudonymizer runs the full pipeline: detectors produce candidates,
// the reconciler selects a non-overlapping set, and the synthesizer
// rewrites each selected span deterministically under the salt.
type Pseudonymizer struct {
	salt      string
	synth     *synth.Synthesizer
	detectors []detect.Detector
}

// Option configures a Pseudonymizer via the functional options pattern.
type Option func(*engineConfig)

type engineConfig struct {
	table         *checksum.Table
	familyMapping map[string]string
	detectors     []detect.Detector
}

// WithFamilyTable overrides the checksum family table. Defaults to
// checksum.DefaultTable().
func WithFamilyTable(t *checksum.Table) Option {
	return func(c *engineConfig) { c.table = t }
}

// WithFamilyMapping overrides the entity-type to checksum-family mapping.
func WithFamilyMapping(m map[string]string) Option {
	return func(c *engineConfig) { c.familyMapping = m }
}

// WithDetectors adds candidate detectors to the pipeline.
func WithDetectors(detectors ...detect.Detector) Option {
	return func(c *engineConfig) { c.detectors = append(c.detectors, detectors...) }
}

// New constructs a Pseudonymizer. The salt must be non-empty: there is
// no process-wide default, so an unset salt is a construction error,
// not a silent fallback.
func New(salt string, opts ...Option) (*Pseudonymizer, error) {
	if salt == "" {
		return nil, fmt.Errorf("salt must not be empty")
	}
	var cfg engineConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.table == nil {
		cfg.table = checksum.DefaultTable()
	}
	return &Pseudonymizer{
		salt:      salt,
		synth:     synth.New(cfg.table, cfg.familyMapping),
		detectors: cfg.detectors,
	}, nil
}

// WithSalt returns a pseudonymizer bound to a different salt, sharing
// the detectors and synthesizer configuration. Lets a server hold one
// configured instance and honor per-request salts.
func (p *Pseudonymizer) WithSalt(salt string) (*Pseudonymizer, error) {
	if salt == "" {
		return nil, fmt.Errorf("salt must not be empty")
	}
	return &Pseudonymizer{salt: salt, synth: p.synth, detectors: p.detectors}, nil
}

// Pseudonymize runs the configured detectors over text and substitutes
// every resolved entity.
func (p *Pseudonymizer) Pseudonymize(ctx context.Context, text string) *Result {
	ctx, span := tracer.Start(ctx, "engine.pseudonymize")
	defer span.End()

	var candidates []detect.Candidate
	for _, d := range p.detectors {
		candidates = append(candidates, d.Detect(ctx, text)...)
	}
	return p.substitute(ctx, text, candidates)
}

// PseudonymizeCandidates substitutes using an externally produced
// candidate list (e.g. from an out-of-process NER tagger), in addition
// to any configured detectors' results.
func (p *Pseudonymizer) PseudonymizeCandidates(ctx context.Context, text string, external []detect.Candidate) *Result {
	ctx, span := tracer.Start(ctx, "engine.pseudonymize_candidates")
	defer span.End()

	candidates := make([]detect.Candidate, 0, len(external))
	candidates = append(candidates, external...)
	for _, d := range p.detectors {
		candidates = append(candidates, d.Detect(ctx, text)...)
	}
	return p.substitute(ctx, text, candidates)
}

// substitute reconciles candidates and rewrites the text back-to-front.
// Processing in descending start order means every edit only touches
// text at or after the current start, so earlier spans never shift no
// matter how replacement lengths differ from the originals.
func (p *Pseudonymizer) substitute(ctx context.Context, text string, candidates []detect.Candidate) *Result {
	_, span := tracer.Start(ctx, "engine.substitute")
	defer span.End()

	entities := resolve.Resolve(ctx, len(text), candidates)

	// Back-to-front
	ordered := make([]detect.Candidate, len(entities))
	copy(ordered, entities)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	out := text
	replacements := make([]Replacement, 0, len(ordered))
	unresolved := 0
	for _, e := range ordered {
		original := text[e.Start:e.End]
		rec := Replacement{
			Start:      e.Start,
			End:        e.End,
			Original:   original,
			EntityType: e.EntityType,
			Score:      e.Score,
		}

		value, err := p.synth.Replace(p.salt, original, e.EntityType)
		if err != nil {
			// One bad entity never aborts the pass: the span keeps its
			// original text and the record is flagged.
			log.Warn().
				Err(err).
				Str("entity_type", e.EntityType).
				Int("start", e.Start).
				Msg("replacement generation failed, span left unresolved")
			rec.Replacement = original
			rec.Unresolved = true
			unresolved++
		} else {
			rec.Replacement = value
			out = out[:e.Start] + value + out[e.End:]
		}
		replacements = append(replacements, rec)
	}

	// Records were accumulated back-to-front; report ascending by start.
	for i, j := 0, len(replacements)-1; i < j; i, j = i+1, j-1 {
		replacements[i], replacements[j] = replacements[j], replacements[i]
	}

	span.SetAttributes(
		attribute.Int("engine.entities", len(entities)),
		attribute.Int("engine.unresolved", unresolved),
	)
	documentsProcessed.Add(ctx, 1)
	entitiesReplaced.Add(ctx, int64(len(entities)-unresolved))
	log.Debug().
		Int("entities", len(entities)).
		Int("unresolved", unresolved).
		Strs("entity_types", entityTypeList(replacements)).
		Func(veilotel.ZerologHook(ctx)).
		Msg("pseudonymized text")

	return &Result{
		OriginalText:      text,
		PseudonymizedText: out,
		Replacements:      replacements,
	}
}

func entityTypeList(replacements []Replacement) []string {
	seen := make(map[string]bool)
	var types []string
	for _, r := range replacements {
		if !seen[r.EntityType] {
			seen[r.EntityType] = true
			types = append(types, r.EntityType)
		}
	}
	sort.Strings(types)
	return types
}

// Redact is a convenience that replaces every resolved entity with a
// type placeholder (e.g. "[PESEL]") instead of a synthesized value.
// Useful when a consumer wants masking rather than pseudonyms.
func Redact(ctx context.Context, text string, candidates []detect.Candidate) string {
	entities := resolve.Resolve(ctx, len(text), candidates)
	out := text
	for i := len(entities) - 1; i >= 0; i-- {
		e := entities[i]
		out = out[:e.Start] + "[" + strings.ToUpper(e.EntityType) + "]" + out[e.End:]
	}
	return out
}
