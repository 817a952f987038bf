package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWith(t *testing.T, values map[string]interface{}) (*Config, error) {
	t.Helper()
	viper.Reset()
	viper.SetEnvPrefix("VEIL")
	viper.AutomaticEnv()
	for k, v := range values {
		viper.Set(k, v)
	}
	t.Cleanup(viper.Reset)
	return Load()
}

func TestLoadRequiresSalt(t *testing.T) {
	_, err := loadWith(t, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salt is required")
}

func TestLoadRejectsShortSalt(t *testing.T) {
	_, err := loadWith(t, map[string]interface{}{KeySalt: "short"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least")
}

func TestLoadAcceptsRawSalt(t *testing.T) {
	cfg, err := loadWith(t, map[string]interface{}{KeySalt: "a-long-enough-secret-salt"})
	require.NoError(t, err)
	assert.Equal(t, "a-long-enough-secret-salt", cfg.Salt)
}

func TestLoadDecodesHexSalt(t *testing.T) {
	cfg, err := loadWith(t, map[string]interface{}{KeySalt: "00112233445566778899aabbccddeeff"})
	require.NoError(t, err)
	assert.Len(t, cfg.Salt, 16)
	assert.Equal(t, "\x00\x11\x22\x33\x44\x55\x66\x77\x88\x99\xaa\xbb\xcc\xdd\xee\xff", cfg.Salt)
}

func TestLoadKeepsNonHexSaltRaw(t *testing.T) {
	// Hex-shaped length but a non-hex character: used as raw bytes.
	cfg, err := loadWith(t, map[string]interface{}{KeySalt: "00112233445566778899aabbccddeefg"})
	require.NoError(t, err)
	assert.Equal(t, "00112233445566778899aabbccddeefg", cfg.Salt)
}

func TestIsHexString(t *testing.T) {
	assert.True(t, isHexString("deadBEEF0123"))
	assert.True(t, isHexString(""))
	assert.False(t, isHexString("deadbeeg"))
	assert.False(t, isHexString("dead beef"))
}

func TestLoadValidatesMinScore(t *testing.T) {
	_, err := loadWith(t, map[string]interface{}{
		KeySalt:     "a-long-enough-secret-salt",
		KeyMinScore: 1.5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_score")
}

func TestReportsDBPath(t *testing.T) {
	c := &Config{DataDir: "/tmp/veil-test"}
	assert.Equal(t, "/tmp/veil-test/reports.db", c.ReportsDBPath())

	c.ReportsDB = "/elsewhere/r.db"
	assert.Equal(t, "/elsewhere/r.db", c.ReportsDBPath())
}
