package detect

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// RecognizerFile is the top-level YAML structure for a recognizer config
// file. Mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's YAML recognizer schema with Veil
// extensions (checksum_family, validate_luhn).
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	// Veil extensions (safe to include — Presidio ignores unknown fields)
	ChecksumFamily string `yaml:"checksum_family,omitempty" json:"checksum_family,omitempty"`
	ValidateLuhn   bool   `yaml:"validate_luhn,omitempty" json:"validate_luhn,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

// LanguageContext holds context words for a specific language.
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

// isEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// contextWords flattens the per-language context lists into one slice.
func (r *RecognizerConfig) contextWords() []string {
	var words []string
	for _, lc := range r.SupportedLanguages {
		words = append(words, lc.Context...)
	}
	return words
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing global config as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// MergeRecognizers layers recognizer lists: embedded defaults first,
// then file overrides, then caller overrides. A later recognizer with
// the same Name replaces the earlier one in place; new names append.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig
	for _, layer := range layers {
		for _, rc := range layer {
			if i, ok := index[rc.Name]; ok {
				merged[i] = rc
				continue
			}
			index[rc.Name] = len(merged)
			merged = append(merged, rc)
		}
	}
	return merged
}

// FilterByEntities keeps recognizers whose supported_entity is in the
// whitelist (when non-empty) and not in the blacklist.
func FilterByEntities(recognizers []RecognizerConfig, enabled, disabled []string) []RecognizerConfig {
	allow := toSet(enabled)
	block := toSet(disabled)

	var kept []RecognizerConfig
	for _, r := range recognizers {
		if len(allow) > 0 && !allow[r.SupportedEntity] {
			continue
		}
		if block[r.SupportedEntity] {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

// compiledPattern is a ready-to-run recognizer pattern.
type compiledPattern struct {
	name           string
	entityType     string
	pattern        *regexp.Regexp
	score          float64
	contextWords   []string
	checksumFamily string
	validateLuhn   bool
}

// compilePatterns converts recognizer configs into runtime patterns.
// Disabled recognizers are skipped. Each regex pattern in a recognizer
// produces one compiledPattern entry, with the entity type normalized to
// the lower_snake_case used internally.
func compilePatterns(recognizers []RecognizerConfig) ([]compiledPattern, error) {
	var patterns []compiledPattern

	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		ctxWords := rec.contextWords()
		for _, p := range rec.Patterns {
			compiled, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			patterns = append(patterns, compiledPattern{
				name:           rec.Name,
				entityType:     entityToType(rec.SupportedEntity),
				pattern:        compiled,
				score:          p.Score,
				contextWords:   ctxWords,
				checksumFamily: rec.ChecksumFamily,
				validateLuhn:   rec.ValidateLuhn,
			})
		}
	}

	return patterns, nil
}

// entityTypeMap converts Presidio entity names (SCREAMING_SNAKE) to the
// lower_snake_case type strings used internally.
var entityTypeMap = map[string]string{
	"EMAIL_ADDRESS":   "email",
	"PHONE_NUMBER":    "phone",
	"PL_PHONE":        "phone",
	"PL_PESEL":        "pesel",
	"PL_NIP":          "nip",
	"PL_REGON":        "regon",
	"PL_ID_CARD":      "id_card",
	"PL_PASSPORT":     "passport",
	"PL_POSTAL_CODE":  "postal_code",
	"PL_BANK_ACCOUNT": "bank_account",
	"IBAN_CODE":       "iban",
	"CREDIT_CARD":     "credit_card",
	"IP_ADDRESS":      "ip_address",
	"PERSON":          "person",
	"ORGANIZATION":    "organization",
	"LOCATION":        "location",
	"DATE_TIME":       "date",
	"URL":             "url",
}

// entityToType maps a Presidio entity name to the internal type string.
// Unknown entities are lowercased as-is (SCREAMING_SNAKE → lower_snake).
func entityToType(entity string) string {
	if t, ok := entityTypeMap[entity]; ok {
		return t
	}
	return strings.ToLower(entity)
}
