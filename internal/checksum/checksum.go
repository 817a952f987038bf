// Package checksum implements the Polish national identifier families
// (PESEL, NIP, REGON) whose final digit is a weighted function of the
// preceding digits. It validates existing numbers and constructs new
// ones from caller-supplied random digits, so generated replacements
// are themselves structurally valid members of the family.
package checksum

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Family identifies a supported checksum identifier family. The set is
// closed: adding a family is a schema change, not runtime registration.
type Family int

const (
	// PESEL is the 11-digit Polish national identification number.
	PESEL Family = iota
	// NIP is the 10-digit Polish tax identification number.
	NIP
	// REGON9 is the 9-digit Polish statistical business register number.
	REGON9
	// REGON14 is the 14-digit extended REGON for local business units.
	REGON14
)

// String returns the family's conventional name.
func (f Family) String() string {
	switch f {
	case PESEL:
		return "PESEL"
	case NIP:
		return "NIP"
	case REGON9:
		return "REGON-9"
	case REGON14:
		return "REGON-14"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// tenRule describes what a family does when the weighted sum mod 11
// comes out to 10, which has no single-digit representation.
type tenRule int

const (
	// tenComplement: check digit is (modulus - sum%modulus) % modulus.
	// Used by PESEL with modulus 10; the value 10 never occurs.
	tenComplement tenRule = iota
	// tenRejects: the leading digits define no valid check digit and
	// must be regenerated. Used by NIP.
	tenRejects
	// tenMapsToZero: a computed value of 10 becomes check digit 0.
	// Used by both REGON forms.
	tenMapsToZero
)

// Spec describes one identifier family: digit count, weight vector and
// check digit rule. Specs are static configuration; a Table verifies
// internal consistency once at construction.
type Spec struct {
	Family      Family
	TotalDigits int
	Weights     []int
	Modulus     int
	rule        tenRule
}

// ErrNoCheckDigit is returned by CheckDigit when the leading digits
// admit no valid check digit under the family's rule (NIP sum mod 11 == 10).
var ErrNoCheckDigit = errors.New("leading digits admit no valid check digit")

// defaultSpecs is the built-in family table. Weights follow the official
// definitions of each register.
var defaultSpecs = []Spec{
	{Family: PESEL, TotalDigits: 11, Weights: []int{1, 3, 7, 9, 1, 3, 7, 9, 1, 3}, Modulus: 10, rule: tenComplement},
	{Family: NIP, TotalDigits: 10, Weights: []int{6, 5, 7, 2, 3, 4, 5, 6, 7}, Modulus: 11, rule: tenRejects},
	{Family: REGON9, TotalDigits: 9, Weights: []int{8, 9, 2, 3, 4, 5, 6, 7}, Modulus: 11, rule: tenMapsToZero},
	{Family: REGON14, TotalDigits: 14, Weights: []int{2, 4, 8, 5, 0, 9, 7, 3, 6, 1, 2, 4, 8}, Modulus: 11, rule: tenMapsToZero},
}

// Table holds verified family specs. Construct with NewTable or DefaultTable.
type Table struct {
	specs map[Family]Spec
}

// NewTable verifies and indexes a spec list. A weight vector whose length
// does not match total_digits-1, or a non-positive modulus, is a fatal
// configuration error: every later CheckDigit call would be unsound.
func NewTable(specs []Spec) (*Table, error) {
	t := &Table{specs: make(map[Family]Spec, len(specs))}
	for _, s := range specs {
		if len(s.Weights) != s.TotalDigits-1 {
			return nil, fmt.Errorf("%s: weight vector has %d entries, want %d for %d total digits",
				s.Family, len(s.Weights), s.TotalDigits-1, s.TotalDigits)
		}
		if s.Modulus <= 1 {
			return nil, fmt.Errorf("%s: modulus must be > 1, got %d", s.Family, s.Modulus)
		}
		if _, dup := t.specs[s.Family]; dup {
			return nil, fmt.Errorf("%s: duplicate family spec", s.Family)
		}
		t.specs[s.Family] = s
	}
	return t, nil
}

// DefaultTable returns the built-in PESEL/NIP/REGON table. The embedded
// specs are expected to always verify.
func DefaultTable() *Table {
	t, err := NewTable(defaultSpecs)
	if err != nil {
		panic(fmt.Sprintf("checksum.DefaultTable: %v", err))
	}
	return t
}

// Spec returns the spec for a family and whether it is known.
func (t *Table) Spec(f Family) (Spec, bool) {
	s, ok := t.specs[f]
	return s, ok
}

// Validate reports whether s is a structurally valid member of the family.
// Spaces and hyphens are stripped first. Any non-digit character or wrong
// length yields false, never an error.
func (t *Table) Validate(f Family, s string) bool {
	spec, ok := t.specs[f]
	if !ok {
		return false
	}
	clean := stripSeparators(s)
	if len(clean) != spec.TotalDigits {
		return false
	}
	digits, ok := parseDigits(clean)
	if !ok {
		return false
	}
	check, err := spec.checkDigit(digits[:len(digits)-1])
	if err != nil {
		return false
	}
	return check == digits[len(digits)-1]
}

// CheckDigit computes the family's check digit for the given leading
// digits. Returns ErrNoCheckDigit when the family rejects the combination.
func (t *Table) CheckDigit(f Family, leading []int) (int, error) {
	spec, ok := t.specs[f]
	if !ok {
		return 0, fmt.Errorf("unknown family %s", f)
	}
	if len(leading) != len(spec.Weights) {
		return 0, fmt.Errorf("%s: got %d leading digits, want %d", f, len(leading), len(spec.Weights))
	}
	return spec.checkDigit(leading)
}

// Generate draws leading digits from rng and appends the check digit,
// returning a valid member of the family. For families with a reject
// rule (NIP) the caller is responsible for retrying with a fresh rng;
// ErrNoCheckDigit is passed through.
func (t *Table) Generate(f Family, rng *rand.Rand) (string, error) {
	spec, ok := t.specs[f]
	if !ok {
		return "", fmt.Errorf("unknown family %s", f)
	}
	leading := make([]int, len(spec.Weights))
	for i := range leading {
		leading[i] = rng.Intn(10)
	}
	check, err := spec.checkDigit(leading)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(spec.TotalDigits)
	for _, d := range leading {
		b.WriteByte(byte('0' + d))
	}
	b.WriteByte(byte('0' + check))
	return b.String(), nil
}

func (s Spec) checkDigit(leading []int) (int, error) {
	sum := 0
	for i, d := range leading {
		sum += d * s.Weights[i]
	}
	v := sum % s.Modulus
	switch s.rule {
	case tenComplement:
		return (s.Modulus - v) % s.Modulus, nil
	case tenRejects:
		if v >= 10 {
			return 0, ErrNoCheckDigit
		}
		return v, nil
	case tenMapsToZero:
		if v == 10 {
			return 0, nil
		}
		return v, nil
	default:
		return 0, fmt.Errorf("%s: unknown check digit rule", s.Family)
	}
}

// RegonFamilyFor returns the REGON form matching the original's
// digit count: 14 digits when the original carries more than 9, the
// 9-digit base form otherwise.
func RegonFamilyFor(original string) Family {
	if len(stripSeparators(original)) > 9 {
		return REGON14
	}
	return REGON9
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, s)
}

func parseDigits(s string) ([]int, bool) {
	digits := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return nil, false
		}
		digits[i] = int(c - '0')
	}
	return digits, true
}
