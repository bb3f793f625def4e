package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tereborace.com/fenix/internal/orchestrator"
	"tereborace.com/fenix/internal/query"
	"tereborace.com/fenix/internal/result"
	"tereborace.com/fenix/internal/skills"
)

// ==== API JSON ====

type apiAskRequest struct {
	Question    string `json:"question"`
	HorizonDays int    `json:"horizon_days"`
	Month       int    `json:"month"`
	Year        int    `json:"year"`
	Summary     bool   `json:"summary"`
}

type apiAnswer struct {
	ID          string        `json:"id"`
	Question    string        `json:"question"`
	Route       string        `json:"route"`
	Metric      string        `json:"metric,omitempty"`
	SQL         string        `json:"sql,omitempty"`
	Spec        *query.Spec   `json:"spec,omitempty"`
	Table       *result.Table `json:"table,omitempty"`
	Summary     string        `json:"summary,omitempty"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
	Error       string        `json:"error,omitempty"`
}

func toAPIAnswer(a orchestrator.Answer, summary string) apiAnswer {
	out := apiAnswer{
		ID:          a.ID,
		Question:    a.Question,
		Route:       string(a.Route),
		Metric:      a.Metric,
		SQL:         a.SQL,
		Spec:        a.Spec,
		Table:       a.Table,
		Summary:     summary,
		Diagnostics: a.Diagnostics,
	}
	if a.Err != nil {
		out.Error = a.Err.Error()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// POST /api/ask
func (s *server) handleAPIAsk(w http.ResponseWriter, r *http.Request) {
	var req apiAskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "JSON inválido: "+err.Error())
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeJSONError(w, http.StatusBadRequest, "falta question")
		return
	}
	prefs := s.app.prefs()
	if req.HorizonDays > 0 {
		prefs.HorizonDays = min(req.HorizonDays, 60)
	}
	prefs.Month, prefs.Year = req.Month, req.Year

	snap, err := s.app.snapshot(r.Context(), false)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	ans := s.app.orch.Ask(r.Context(), snap, req.Question, prefs)
	st := storedAnswer{Answer: ans}
	if req.Summary && ans.Err == nil {
		out := s.app.orch.Gen.Summarize(r.Context(), req.Question, ans.Table)
		st.Summary = out.Value
		if !out.OK() {
			st.Diagnostics = append(st.Diagnostics, out.Diagnostic)
		}
	}
	s.answers.put(st)

	status := http.StatusOK
	if errors.Is(ans.Err, orchestrator.ErrUnanswered) {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, toAPIAnswer(st.Answer, st.Summary))
}

// GET /api/skills
func (s *server) handleAPISkills(w http.ResponseWriter, r *http.Request) {
	cat := s.app.orch.Catalog
	if cat == nil {
		cat = skills.Catalog
	}
	writeJSON(w, http.StatusOK, cat)
}

// GET /api/chart/{id}: datos para Chart.js.
func (s *server) handleAPIChart(w http.ResponseWriter, r *http.Request) {
	a, ok := s.answers.get(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "respuesta no encontrada")
		return
	}
	c, ok := chartOf(a.Table, 20)
	if !ok {
		writeJSON(w, http.StatusOK, chart{})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GET /api/estado
func (s *server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	st := s.app.orch.Gen.Status(s.answers.lastDiagnostics())
	out := map[string]any{
		"api_key":     st.APIKey,
		"model":       st.Model,
		"diagnostics": st.Diagnostics,
		"line":        st.String(),
	}
	if snap, err := s.app.snapshot(r.Context(), false); err == nil {
		out["loaded_at"] = snap.LoadedAt
		out["policy"] = snap.Policy.Name
		out["mb_source"] = snap.Prelude.MBSource
		out["fin_source"] = snap.Prelude.FINSource
	} else {
		out["sheet_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/calibracion
func (s *server) handleAPICalibration(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.snapshot(r.Context(), false)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.app.calibration(snap))
}
