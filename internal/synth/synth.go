// Package synth generates deterministic replacement values for detected
// PII. A replacement is a pure function of (salt, original value, entity
// type): the seed is a digest prefix over the three inputs and drives a
// fresh, call-scoped generator, so identical inputs yield byte-identical
// output across goroutines and process runs.
package synth

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"unicode"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/dativo-io/veil/internal/checksum"
)

// ErrGenerationExhausted is returned when the bounded re-roll for a
// checksum family never finds a valid leading-digit combination. With the
// default family table this is unreachable (NIP rejects roughly 1 draw in
// 11); the cap guards against pathological substituted spec tables.
var ErrGenerationExhausted = errors.New("exhausted attempts generating a valid identifier")

// maxGenerateAttempts bounds the deterministic re-roll loop for families
// that can reject a leading-digit combination.
const maxGenerateAttempts = 100

// DefaultFamilyMapping maps entity-type labels to checksum family names.
// The "regon" value selects the 9- or 14-digit form from the original's
// digit count at generation time.
func DefaultFamilyMapping() map[string]string {
	return map[string]string{
		"pesel": "pesel",
		"nip":   "nip",
		"regon": "regon",
	}
}

// Synthesizer produces deterministic, shape-matching replacement values.
// It holds only immutable configuration and is safe for concurrent use.
type Synthesizer struct {
	families  *checksum.Table
	familyFor map[string]string
}

// New creates a Synthesizer over the given family table. A nil mapping
// uses DefaultFamilyMapping.
func New(families *checksum.Table, familyMapping map[string]string) *Synthesizer {
	if familyMapping == nil {
		familyMapping = DefaultFamilyMapping()
	}
	return &Synthesizer{families: families, familyFor: familyMapping}
}

// Replace returns the deterministic substitute for original under salt.
// For checksum identifier types the result is itself a valid member of
// the family; for free-form types it mirrors the original's coarse shape.
func (s *Synthesizer) Replace(salt, original, entityType string) (string, error) {
	seed := deriveSeed(salt, entityType, original)

	if famName, ok := s.familyFor[entityType]; ok {
		return s.generateIdentifier(famName, original, seed)
	}

	switch entityType {
	case "person":
		return matchCasing(original, gofakeit.New(seed).Name()), nil
	case "organization":
		return matchCasing(original, gofakeit.New(seed).Company()), nil
	case "location":
		return matchCasing(original, gofakeit.New(seed).City()), nil
	case "email":
		return strings.ToLower(gofakeit.New(seed).Email()), nil
	case "url":
		return gofakeit.New(seed).URL(), nil
	case "ip_address":
		return gofakeit.New(seed).IPv4Address(), nil
	case "date":
		return replaceDate(rand.New(rand.NewSource(seed)), original), nil
	case "phone":
		return replacePhone(rand.New(rand.NewSource(seed)), original), nil
	case "iban":
		// Country prefix and check-digit slot keep their positions;
		// only the account digits are re-drawn.
		return replaceDigits(rand.New(rand.NewSource(seed)), original), nil
	default:
		return shapePreserve(rand.New(rand.NewSource(seed)), original), nil
	}
}

// generateIdentifier draws a valid family member from the seeded
// generator, re-rolling with a secondary seed (seed + attempt index) when
// the family rejects the combination. The generated digits are overlaid
// onto the original's digit positions so grouping punctuation survives.
func (s *Synthesizer) generateIdentifier(famName, original string, seed int64) (string, error) {
	fam, err := resolveFamily(famName, original)
	if err != nil {
		return "", err
	}
	for attempt := int64(0); attempt < maxGenerateAttempts; attempt++ {
		rng := rand.New(rand.NewSource(seed + attempt))
		digits, err := s.families.Generate(fam, rng)
		if errors.Is(err, checksum.ErrNoCheckDigit) {
			continue
		}
		if err != nil {
			return "", err
		}
		return overlayDigits(original, digits), nil
	}
	return "", fmt.Errorf("%s: %w", fam, ErrGenerationExhausted)
}

func resolveFamily(name, original string) (checksum.Family, error) {
	switch name {
	case "pesel":
		return checksum.PESEL, nil
	case "nip":
		return checksum.NIP, nil
	case "regon":
		return checksum.RegonFamilyFor(original), nil
	default:
		return 0, fmt.Errorf("unknown checksum family mapping %q", name)
	}
}

// deriveSeed hashes salt || entityType || lowercase(original) and takes
// the first 8 digest bytes as the generator seed. The entity type is
// included so the same literal occurring under two types gets independent
// seeds; the original is lower-cased so differently-cased mentions of one
// value share a pseudonym.
func deriveSeed(salt, entityType, original string) int64 {
	h := sha256.New()
	_, _ = io.WriteString(h, salt)
	_, _ = io.WriteString(h, entityType)
	_, _ = io.WriteString(h, strings.ToLower(original))
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// overlayDigits writes generated digits into the original's digit
// positions, preserving separators ("123-456-32-18" stays hyphenated).
// Falls back to the bare generated string when digit counts differ.
func overlayDigits(original, generated string) string {
	count := 0
	for _, r := range original {
		if r >= '0' && r <= '9' {
			count++
		}
	}
	if count != len(generated) {
		return generated
	}
	var b strings.Builder
	b.Grow(len(original))
	next := 0
	for _, r := range original {
		if r >= '0' && r <= '9' {
			b.WriteByte(generated[next])
			next++
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// replaceDate draws a plausible calendar date and re-renders it with the
// original's separators and component widths. A four-digit leading run
// is treated as the year (ISO order); otherwise the last run is. Inputs
// without exactly three digit runs fall back to plain digit replacement.
func replaceDate(rng *rand.Rand, original string) string {
	runs := digitRuns(original)
	if len(runs) != 3 {
		return replaceDigits(rng, original)
	}

	day := 1 + rng.Intn(28)
	month := 1 + rng.Intn(12)
	year := 1950 + rng.Intn(60)

	vals := []int{day, month, year}
	if runs[0].end-runs[0].start == 4 {
		vals = []int{year, month, day}
	}

	var b strings.Builder
	last := 0
	for i, r := range runs {
		b.WriteString(original[last:r.start])
		width := r.end - r.start
		v := vals[i]
		switch width {
		case 1:
			v = v%9 + 1
		case 2:
			v %= 100
		}
		fmt.Fprintf(&b, "%0*d", width, v)
		last = r.end
	}
	b.WriteString(original[last:])
	return b.String()
}

type span struct{ start, end int }

func digitRuns(s string) []span {
	var runs []span
	for i := 0; i < len(s); {
		if s[i] < '0' || s[i] > '9' {
			i++
			continue
		}
		j := i
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		runs = append(runs, span{i, j})
		i = j
	}
	return runs
}

// replacePhone re-draws a phone number's digits but keeps an
// international country prefix (e.g. "+48") intact along with all
// grouping punctuation.
func replacePhone(rng *rand.Rand, original string) string {
	keep := 0
	if strings.HasPrefix(original, "+") {
		// "+" plus up to two country-code digits
		keep = 1
		for keep < len(original) && keep <= 2 && original[keep] >= '0' && original[keep] <= '9' {
			keep++
		}
	}
	return original[:keep] + replaceDigits(rng, original[keep:])
}

// replaceDigits re-draws only the digit characters of s.
func replaceDigits(rng *rand.Rand, s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte('0' + rng.Intn(10)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// shapePreserve replaces each character with a random one of the same
// class: digits stay digits, uppercase letters stay uppercase, lowercase
// stay lowercase, everything else is kept verbatim. This is the
// best-effort shape match for types with no dedicated generator.
func shapePreserve(rng *rand.Rand, original string) string {
	var b strings.Builder
	b.Grow(len(original))
	for _, r := range original {
		switch {
		case r >= '0' && r <= '9':
			b.WriteByte(byte('0' + rng.Intn(10)))
		case r >= 'A' && r <= 'Z' || unicode.IsUpper(r):
			b.WriteByte(byte('A' + rng.Intn(26)))
		case r >= 'a' && r <= 'z' || unicode.IsLower(r):
			b.WriteByte(byte('a' + rng.Intn(26)))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// matchCasing adapts the replacement's capitalization to the original's:
// an all-caps original yields an all-caps replacement, a Title Case
// original yields Title Case. Other patterns pass through unchanged.
func matchCasing(original, replacement string) string {
	if original == strings.ToUpper(original) && original != strings.ToLower(original) {
		return strings.ToUpper(replacement)
	}

	words := strings.Fields(original)
	if len(words) > 0 && allTitleCase(words) {
		out := strings.Fields(replacement)
		for i, w := range out {
			out[i] = titleWord(w)
		}
		return strings.Join(out, " ")
	}

	return replacement
}

func allTitleCase(words []string) bool {
	for _, w := range words {
		runes := []rune(w)
		if len(runes) < 2 {
			continue
		}
		if !unicode.IsUpper(runes[0]) {
			return false
		}
		for _, r := range runes[1:] {
			if unicode.IsLetter(r) && !unicode.IsLower(r) {
				return false
			}
		}
	}
	return true
}

func titleWord(w string) string {
	runes := []rune(w)
	if len(runes) == 0 {
		return w
	}
	runes[0] = unicode.ToUpper(runes[0])
	for i := 1; i < len(runes); i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
