// Package testutil provides shared fixtures for tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/dativo-io/veil/internal/detect"
	"github.com/dativo-io/veil/internal/engine"
	"github.com/dativo-io/veil/internal/store"
)

// TestSalt is the fixed salt used across tests; any value-to-pseudonym
// assertions in the suite assume it.
const TestSalt = "test-salt-0123456789"

// SampleLetter is a realistic Polish business letter containing one
// occurrence of each major identifier family. All identifiers are
// checksum-valid so the detection gates accept them.
const SampleLetter = `Szanowny Panie,

w nawiązaniu do rozmowy z dnia 12.03.2024 przesyłam dane do umowy.
PESEL: 44051401359, NIP: 123-456-32-18, REGON: 123456785.
Kontakt: jan.kowalski@example.pl, tel. +48 601 234 567.
Rachunek: PL61109010140000071219812874.

Z poważaniem,
Jan Kowalski
00-950 Warszawa`

// NewTestEngine builds a pseudonymizer with the built-in recognizers and
// TestSalt. Fails the test on construction errors.
func NewTestEngine(t *testing.T) *engine.Pseudonymizer {
	t.Helper()
	eng, err := engine.New(TestSalt, engine.WithDetectors(detect.MustNewPatternDetector()))
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

// NewTestReportStore creates a report store in a temp dir and registers
// t.Cleanup to close it.
func NewTestReportStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}
