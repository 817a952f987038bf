package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecognizerFile(t *testing.T) {
	yaml := `
recognizers:
  - name: TestRecognizer
    supported_entity: PL_PESEL
    checksum_family: pesel
    patterns:
      - name: p1
        regex: '\d{11}'
        score: 0.6
    supported_languages:
      - language: pl
        context: [pesel, numer]
`
	rf, err := ParseRecognizerFile([]byte(yaml))
	require.NoError(t, err)
	require.Len(t, rf.Recognizers, 1)

	r := rf.Recognizers[0]
	assert.Equal(t, "TestRecognizer", r.Name)
	assert.Equal(t, "pesel", r.ChecksumFamily)
	assert.True(t, r.isEnabled())
	assert.Equal(t, []string{"pesel", "numer"}, r.contextWords())
}

func TestLoadRecognizerFileMissing(t *testing.T) {
	rf, err := LoadRecognizerFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Nil(t, rf)
}

func TestLoadRecognizerFileFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recognizers:\n  - name: A\n    supported_entity: URL\n"), 0o600))

	rf, err := LoadRecognizerFile(path)
	require.NoError(t, err)
	require.Len(t, rf.Recognizers, 1)
	assert.Equal(t, "A", rf.Recognizers[0].Name)
}

func TestMergeRecognizersLayering(t *testing.T) {
	defaults := []RecognizerConfig{
		{Name: "A", SupportedEntity: "PL_PESEL"},
		{Name: "B", SupportedEntity: "EMAIL_ADDRESS"},
	}
	overrides := []RecognizerConfig{
		{Name: "B", SupportedEntity: "EMAIL_ADDRESS", ValidateLuhn: true},
		{Name: "C", SupportedEntity: "URL"},
	}

	merged := MergeRecognizers(defaults, overrides)
	require.Len(t, merged, 3)
	assert.Equal(t, "A", merged[0].Name)
	assert.True(t, merged[1].ValidateLuhn, "later layer replaces B in place")
	assert.Equal(t, "C", merged[2].Name)
}

func TestFilterByEntities(t *testing.T) {
	recs := []RecognizerConfig{
		{Name: "A", SupportedEntity: "PL_PESEL"},
		{Name: "B", SupportedEntity: "EMAIL_ADDRESS"},
		{Name: "C", SupportedEntity: "URL"},
	}

	got := FilterByEntities(recs, []string{"PL_PESEL", "URL"}, nil)
	require.Len(t, got, 2)

	got = FilterByEntities(recs, nil, []string{"EMAIL_ADDRESS"})
	require.Len(t, got, 2)

	got = FilterByEntities(recs, []string{"PL_PESEL", "URL"}, []string{"URL"})
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Name)
}

func TestCompilePatternsRejectsBadRegex(t *testing.T) {
	_, err := compilePatterns([]RecognizerConfig{{
		Name:            "Broken",
		SupportedEntity: "URL",
		Patterns:        []PatternConfig{{Name: "bad", Regex: "([", Score: 0.5}},
	}})
	assert.Error(t, err)
}

func TestCompilePatternsSkipsDisabled(t *testing.T) {
	off := false
	got, err := compilePatterns([]RecognizerConfig{{
		Name:            "Off",
		SupportedEntity: "URL",
		Enabled:         &off,
		Patterns:        []PatternConfig{{Name: "p", Regex: `x`, Score: 0.5}},
	}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEntityToType(t *testing.T) {
	assert.Equal(t, "pesel", entityToType("PL_PESEL"))
	assert.Equal(t, "email", entityToType("EMAIL_ADDRESS"))
	assert.Equal(t, "iban", entityToType("IBAN_CODE"))
	assert.Equal(t, "custom_thing", entityToType("CUSTOM_THING"))
}

func TestDefaultRecognizersParse(t *testing.T) {
	recs, err := DefaultRecognizers()
	require.NoError(t, err)
	assert.NotEmpty(t, recs)

	names := make(map[string]bool)
	for _, r := range recs {
		names[r.Name] = true
	}
	for _, want := range []string{"PeselRecognizer", "NipRecognizer", "RegonRecognizer", "CreditCardRecognizer"} {
		assert.True(t, names[want], want)
	}
}
