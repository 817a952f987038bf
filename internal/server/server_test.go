package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/detect"
	"github.com/dativo-io/veil/internal/engine"
	"github.com/dativo-io/veil/internal/store"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	eng, err := engine.New("test-salt", engine.WithDetectors(detect.MustNewPatternDetector()))
	require.NoError(t, err)
	return NewServer(eng, nil, opts...)
}

func postJSON(t *testing.T, h http.Handler, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(t).Routes()
	req := httptest.NewRequest(http.MethodGet, "/health?detail=true", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestPseudonymizeEndpoint(t *testing.T) {
	h := newTestServer(t).Routes()

	rec := postJSON(t, h, "/v1/pseudonymize", map[string]interface{}{
		"text": "PESEL: 44051401359",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		PseudonymizedText string   `json:"pseudonymized_text"`
		EntitiesFound     int      `json:"entities_found"`
		EntityTypes       []string `json:"entity_types"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.EntitiesFound)
	assert.Equal(t, []string{"pesel"}, resp.EntityTypes)
	assert.NotContains(t, resp.PseudonymizedText, "44051401359")

	// Same request again: deterministic response body.
	rec2 := postJSON(t, h, "/v1/pseudonymize", map[string]interface{}{
		"text": "PESEL: 44051401359",
	}, nil)
	assert.Equal(t, rec.Body.String(), rec2.Body.String())
}

func TestPseudonymizeWithExternalCandidates(t *testing.T) {
	h := newTestServer(t).Routes()

	rec := postJSON(t, h, "/v1/pseudonymize", map[string]interface{}{
		"text": "Jan Kowalski called",
		"candidates": []map[string]interface{}{
			{"entity_type": "person", "start": 0, "end": 12, "score": 0.85},
		},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		PseudonymizedText string `json:"pseudonymized_text"`
		EntitiesFound     int    `json:"entities_found"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.EntitiesFound)
	assert.NotContains(t, resp.PseudonymizedText, "Jan Kowalski")
	assert.Contains(t, resp.PseudonymizedText, " called")
}

func TestPseudonymizePerRequestSalt(t *testing.T) {
	h := newTestServer(t).Routes()

	type resp struct {
		PseudonymizedText string `json:"pseudonymized_text"`
	}
	decode := func(rec *httptest.ResponseRecorder) resp {
		var r resp
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
		return r
	}

	body := map[string]interface{}{"text": "PESEL: 44051401359"}
	base := postJSON(t, h, "/v1/pseudonymize", body, nil)
	require.Equal(t, http.StatusOK, base.Code)

	body["salt"] = "caller-salt-0123456789"
	other := postJSON(t, h, "/v1/pseudonymize", body, nil)
	require.Equal(t, http.StatusOK, other.Code)
	assert.NotEqual(t, decode(base).PseudonymizedText, decode(other).PseudonymizedText)

	// Same caller salt again: same mapping.
	again := postJSON(t, h, "/v1/pseudonymize", body, nil)
	assert.Equal(t, decode(other).PseudonymizedText, decode(again).PseudonymizedText)

	// Too-short salts are rejected.
	body["salt"] = "short"
	rec := postJSON(t, h, "/v1/pseudonymize", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPseudonymizeRejectsEmptyText(t *testing.T) {
	h := newTestServer(t).Routes()
	rec := postJSON(t, h, "/v1/pseudonymize", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateEndpoint(t *testing.T) {
	h := newTestServer(t).Routes()

	tests := []struct {
		family string
		value  string
		want   bool
	}{
		{"pesel", "44051401359", true},
		{"pesel", "44051401358", false},
		{"nip", "123-456-32-18", true},
		{"regon", "123456785", true},
	}
	for _, tt := range tests {
		rec := postJSON(t, h, "/v1/validate", map[string]string{
			"family": tt.family, "value": tt.value,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Valid bool `json:"valid"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, tt.want, resp.Valid, "%s %s", tt.family, tt.value)
	}

	rec := postJSON(t, h, "/v1/validate", map[string]string{
		"family": "ssn", "value": "123",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	h := newTestServer(t, WithAPIKeys(map[string]string{"secret-key": "default"})).Routes()

	body := map[string]interface{}{"text": "PESEL: 44051401359"}

	rec := postJSON(t, h, "/v1/pseudonymize", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h, "/v1/pseudonymize", body, map[string]string{"X-Veil-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h, "/v1/pseudonymize", body, map[string]string{"X-Veil-Key": "secret-key"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h, "/v1/pseudonymize", body, map[string]string{"Authorization": "Bearer secret-key"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReportsRoundTrip(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := newTestServer(t, WithReportStore(st)).Routes()

	rec := postJSON(t, h, "/v1/pseudonymize", map[string]interface{}{
		"text":   "PESEL: 44051401359",
		"report": true,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ReportID string `json:"report_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ReportID)

	req := httptest.NewRequest(http.MethodGet, "/v1/reports/"+resp.ReportID, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var report store.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, resp.ReportID, report.ID)
	assert.Equal(t, 1, report.EntitiesFound)
	assert.NotContains(t, report.PseudonymizedText, "44051401359")

	req = httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
}
