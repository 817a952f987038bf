package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult() *engine.Result {
	return &engine.Result{
		OriginalText:      "PESEL: 90010112345",
		PseudonymizedText: "PESEL: 97050447064",
		Replacements: []engine.Replacement{
			{Start: 7, End: 18, Original: "90010112345", Replacement: "97050447064", EntityType: "pesel", Score: 0.95},
		},
	}
}

func TestNewReportStripsOriginals(t *testing.T) {
	r := NewReport("cli", sampleResult())

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "cli", r.Source)
	assert.Equal(t, 1, r.EntitiesFound)
	assert.Equal(t, []string{"pesel"}, r.EntityTypes)
	require.Len(t, r.Replacements, 1)
	assert.Equal(t, "pesel", r.Replacements[0].EntityType)
	// The report never carries the original value.
	assert.NotContains(t, r.PseudonymizedText, "90010112345")
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := NewReport("api", sampleResult())
	require.NoError(t, s.Save(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.EntitiesFound, got.EntitiesFound)
	assert.Equal(t, r.PseudonymizedText, got.PseudonymizedText)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorContains(t, err, "not found")
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := NewReport("cli", sampleResult())
		require.NoError(t, s.Save(ctx, r))
	}
	apiReport := NewReport("api", sampleResult())
	require.NoError(t, s.Save(ctx, apiReport))

	all, err := s.List(ctx, "", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	cliOnly, err := s.List(ctx, "cli", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, cliOnly, 3)

	limited, err := s.List(ctx, "", time.Time{}, time.Time{}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	future, err := s.List(ctx, "", time.Now().Add(time.Hour), time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, future)
}
