// Package config holds OPERATOR-LEVEL configuration for a Veil process.
//
// Set via env vars (VEIL_*) or config file (veil.config.yaml). The one
// security-sensitive value is the pseudonymization salt: it decides the
// mapping from real values to pseudonyms, so it must stay constant for a
// data set and secret from consumers of the output. There is NO built-in
// default salt — an unset salt is a hard load error, because a silently
// defaulted salt would make every installation's pseudonyms linkable.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the VEIL_ prefix
// (e.g. "salt" → VEIL_SALT) and to a YAML field in veil.config.yaml.
const (
	KeySalt        = "salt"
	KeyDataDir     = "data_dir"
	KeyPatternFile = "pattern_file"
	KeyMinScore    = "min_score"
	KeyReportsDB   = "reports_db"
)

// MinSaltBytes is the minimum accepted salt length. Shorter salts make
// dictionary attacks on the value→pseudonym mapping cheap.
const MinSaltBytes = 8

// RecommendedSaltBytes triggers a warning when not met.
const RecommendedSaltBytes = 16

// Config holds resolved operator-level configuration for a Veil process.
type Config struct {
	Salt        string  // Pseudonymization salt (required; raw or hex)
	DataDir     string  // Base directory for state (~/.veil)
	PatternFile string  // Optional recognizer overrides YAML
	MinScore    float64 // Detection confidence threshold (0 = built-in default)
	ReportsDB   string  // Optional explicit path to the reports SQLite DB
}

// ReportsDBPath returns the path to the reports SQLite database.
func (c *Config) ReportsDBPath() string {
	if c.ReportsDB != "" {
		return c.ReportsDB
	}
	return filepath.Join(c.DataDir, "reports.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("VEIL")
	viper.AutomaticEnv()
}

// Load reads configuration from Viper (which merges env vars, config
// file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Salt:        viper.GetString(KeySalt),
		DataDir:     resolveDataDir(),
		PatternFile: viper.GetString(KeyPatternFile),
		MinScore:    viper.GetFloat64(KeyMinScore),
		ReportsDB:   viper.GetString(KeyReportsDB),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// A hex-encoded salt is decoded so "deadbeef..." and its raw-byte
	// form configure the same mapping.
	if decoded, ok := decodeHexSalt(cfg.Salt); ok {
		cfg.Salt = decoded
	}

	if len(cfg.Salt) < RecommendedSaltBytes {
		log.Warn().Int("bytes", len(cfg.Salt)).
			Msgf("salt is shorter than the recommended %d bytes", RecommendedSaltBytes)
	}

	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".veil"
	}
	return filepath.Join(home, ".veil")
}

func (c *Config) validate() error {
	if c.Salt == "" {
		return fmt.Errorf("salt is required; set VEIL_SALT or salt in veil.config.yaml")
	}
	n := len(c.Salt)
	if decoded, ok := decodeHexSalt(c.Salt); ok {
		n = len(decoded)
	}
	if n < MinSaltBytes {
		return fmt.Errorf("salt must be at least %d bytes (got %d)", MinSaltBytes, n)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be within [0,1], got %v", c.MinScore)
	}
	return nil
}

// decodeHexSalt decodes salts given as an even-length hex string of at
// least 16 characters. Shorter or non-hex salts are used as raw bytes.
func decodeHexSalt(salt string) (string, bool) {
	if len(salt) < 16 || len(salt)%2 != 0 || !isHexString(salt) {
		return "", false
	}
	decoded, err := hex.DecodeString(salt)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

// isHexString reports whether s consists entirely of hex characters.
// True for the empty string; length is the caller's concern.
func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
