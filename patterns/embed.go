// Package patterns provides embedded default recognizer definitions.
// YAML files in this directory use the Presidio-compatible recognizer
// format with Veil extensions (checksum_family, validate_luhn).
package patterns

import _ "embed"

//go:embed pii_pl.yaml
var piiPLYAML []byte

// PIIPLYAML returns the embedded default PII recognizer definitions
// for Polish-language text.
func PIIPLYAML() []byte { return piiPLYAML }
