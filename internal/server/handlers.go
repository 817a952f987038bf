package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/veil/internal/checksum"
	"github.com/dativo-io/veil/internal/detect"
	"github.com/dativo-io/veil/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]string{
			"engine": "ok",
		}
		if s.reportStore == nil {
			components["report_store"] = "disabled"
		} else {
			components["report_store"] = "ok"
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

type pseudonymizeRequest struct {
	Text string `json:"text"`
	// Candidates from an external tagger (e.g. an NER service) are
	// merged with the built-in detectors' results.
	Candidates []detect.Candidate `json:"candidates,omitempty"`
	// Salt overrides the server's configured salt for this request,
	// giving the caller its own value-to-pseudonym mapping.
	Salt string `json:"salt,omitempty"`
	// Report persists the run's replacement record when a store is
	// configured.
	Report bool `json:"report,omitempty"`
}

func (s *Server) handlePseudonymize(w http.ResponseWriter, r *http.Request) {
	var req pseudonymizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	eng := s.engine
	if req.Salt != "" {
		if len(req.Salt) < 8 {
			writeError(w, http.StatusBadRequest, "invalid_request", "salt must be at least 8 bytes")
			return
		}
		var err error
		eng, err = eng.WithSalt(req.Salt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	res := eng.PseudonymizeCandidates(r.Context(), req.Text, req.Candidates)

	var reportID string
	if req.Report && s.reportStore != nil {
		report := store.NewReport("api", res)
		if err := s.reportStore.Save(r.Context(), report); err != nil {
			// Persistence failure must not lose the pseudonymization.
			log.Error().Err(err).Msg("saving report failed")
		} else {
			reportID = report.ID
		}
	}

	resp := map[string]interface{}{
		"pseudonymized_text": res.PseudonymizedText,
		"entities_found":     res.EntitiesFound(),
		"entity_types":       res.EntityTypes(),
		"replacements":       res.Replacements,
	}
	if reportID != "" {
		resp["report_id"] = reportID
	}
	writeJSON(w, http.StatusOK, resp)
}

type validateRequest struct {
	Family string `json:"family"`
	Value  string `json:"value"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}

	var valid bool
	switch req.Family {
	case "pesel":
		valid = s.families.Validate(checksum.PESEL, req.Value)
	case "nip":
		valid = s.families.Validate(checksum.NIP, req.Value)
	case "regon":
		valid = s.families.Validate(checksum.RegonFamilyFor(req.Value), req.Value)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "family must be one of: pesel, nip, regon")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"family": req.Family,
		"valid":  valid,
	})
}

func (s *Server) handleReportsList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	source := r.URL.Query().Get("source")

	reports, err := s.reportStore.List(r.Context(), source, time.Time{}, time.Time{}, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

func (s *Server) handleReportGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.reportStore.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
