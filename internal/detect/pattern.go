package detect

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/veil/internal/checksum"
	veilotel "github.com/dativo-io/veil/internal/otel"
	"github.com/dativo-io/veil/patterns"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/detect")

const (
	// DefaultMinScore is the Presidio-compatible minimum confidence
	// threshold. Matches below this score are discarded unless boosted
	// by context words.
	DefaultMinScore = 0.5

	// ContextSimilarityFactor is the score boost applied when context
	// words are found near a match. Matches Presidio's default
	// context_similarity_factor.
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is the number of characters to search before and
	// after a match when looking for context words.
	ContextWindowChars = 100
)

// PatternDetector detects PII candidates using configurable regex
// recognizers with Presidio-style context boosting and hard checksum
// validation gates.
type PatternDetector struct {
	patterns []compiledPattern
	families *checksum.Table
	minScore float64
}

// Option configures a PatternDetector via the functional options pattern.
type Option func(*detectorConfig)

type detectorConfig struct {
	patternFile       string
	enabledEntities   []string
	disabledEntities  []string
	customRecognizers []RecognizerConfig
	minScore          float64
	families          *checksum.Table
}

// WithMinScore overrides the default minimum confidence threshold for matches.
func WithMinScore(score float64) Option {
	return func(c *detectorConfig) { c.minScore = score }
}

// WithPatternFile loads additional recognizers from a patterns YAML file.
// If the file does not exist, it is silently skipped.
func WithPatternFile(path string) Option {
	return func(c *detectorConfig) { c.patternFile = path }
}

// WithEnabledEntities sets a whitelist of entity types. When non-empty,
// only recognizers with a matching supported_entity will be active.
func WithEnabledEntities(entities []string) Option {
	return func(c *detectorConfig) { c.enabledEntities = entities }
}

// WithDisabledEntities sets a blacklist of entity types to exclude.
func WithDisabledEntities(entities []string) Option {
	return func(c *detectorConfig) { c.disabledEntities = entities }
}

// WithCustomRecognizers adds caller-supplied recognizer definitions.
func WithCustomRecognizers(recognizers []RecognizerConfig) Option {
	return func(c *detectorConfig) { c.customRecognizers = recognizers }
}

// WithFamilyTable overrides the checksum family table used by the
// validation gates. Defaults to checksum.DefaultTable().
func WithFamilyTable(t *checksum.Table) Option {
	return func(c *detectorConfig) { c.families = t }
}

// NewPatternDetector creates a regex PII detector. Without options it
// uses the embedded Polish defaults. Options layer file overrides and
// custom recognizers on top.
func NewPatternDetector(opts ...Option) (*PatternDetector, error) {
	var cfg detectorConfig
	for _, o := range opts {
		o(&cfg)
	}

	// Layer 1: embedded defaults
	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}

	// Layer 2: global pattern file (optional)
	var fileRecs []RecognizerConfig
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if rf != nil {
			fileRecs = rf.Recognizers
		}
	}

	// Layer 3: caller-supplied recognizers
	merged := MergeRecognizers(defaults, fileRecs, cfg.customRecognizers)
	merged = FilterByEntities(merged, cfg.enabledEntities, cfg.disabledEntities)

	compiled, err := compilePatterns(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}

	minScore := DefaultMinScore
	if cfg.minScore > 0 {
		minScore = cfg.minScore
	}
	families := cfg.families
	if families == nil {
		families = checksum.DefaultTable()
	}

	return &PatternDetector{patterns: compiled, families: families, minScore: minScore}, nil
}

// MustNewPatternDetector is like NewPatternDetector but panics on error.
// Useful for zero-config startup where the embedded defaults are expected
// to always compile.
func MustNewPatternDetector(opts ...Option) *PatternDetector {
	d, err := NewPatternDetector(opts...)
	if err != nil {
		panic(fmt.Sprintf("detect.NewPatternDetector: %v", err))
	}
	return d
}

// DefaultRecognizers returns the built-in recognizers parsed from the
// embedded pii_pl.yaml file. This is the first layer in the merge chain.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIPLYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded PII patterns: %w", err)
	}
	return rf.Recognizers, nil
}

// Detect scans text for PII candidates. Each regex match goes through hard
// validation gates (identifier checksum, Luhn) and then Presidio-style
// score-based context filtering before being accepted.
func (d *PatternDetector) Detect(ctx context.Context, text string) []Candidate {
	_, span := tracer.Start(ctx, "detect.scan")
	defer span.End()

	var candidates []Candidate
	for _, p := range d.patterns {
		matches := p.pattern.FindAllStringIndex(text, -1)
		for _, match := range matches {
			value := text[match[0]:match[1]]

			// Hard validation gate: identifier family checksum
			if p.checksumFamily != "" && !d.checksumValid(p.checksumFamily, value) {
				continue
			}

			// Hard validation gate: Luhn checksum for payment cards
			if p.validateLuhn && !luhnValid(stripNonDigits(value)) {
				continue
			}

			// Presidio-style confidence: base score + context word boost
			score := enhanceScoreWithContext(text, match[0], p.score, p.contextWords)
			if score < d.minScore {
				continue
			}

			candidates = append(candidates, Candidate{
				EntityType: p.entityType,
				Start:      match[0],
				End:        match[1],
				Score:      score,
				Text:       value,
			})
		}
	}

	span.SetAttributes(attribute.Int("detect.candidate_count", len(candidates)))
	return candidates
}

// checksumValid dispatches a matched value to its family validator. The
// "regon" gate accepts either form, chosen by the match's digit count.
func (d *PatternDetector) checksumValid(family, value string) bool {
	switch family {
	case "pesel":
		return d.families.Validate(checksum.PESEL, value)
	case "nip":
		return d.families.Validate(checksum.NIP, value)
	case "regon":
		return d.families.Validate(checksum.RegonFamilyFor(value), value)
	default:
		return false
	}
}

// enhanceScoreWithContext boosts a match's base score if context words are
// found within +/- ContextWindowChars characters of the match position.
// This mirrors Presidio's LemmaContextAwareEnhancer with a fixed
// context_similarity_factor.
func enhanceScoreWithContext(text string, position int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return baseScore
	}
	start := position - ContextWindowChars
	if start < 0 {
		start = 0
	}
	end := position + ContextWindowChars
	if end > len(text) {
		end = len(text)
	}
	window := strings.ToLower(text[start:end])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			boosted := baseScore + ContextSimilarityFactor
			if boosted > 1.0 {
				boosted = 1.0
			}
			return boosted
		}
	}
	return baseScore
}

// luhnValid checks whether a digit string passes the Luhn algorithm (ISO/IEC 7812).
func luhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// stripNonDigits removes all non-digit characters from s.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
