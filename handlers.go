package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"tereborace.com/fenix/internal/llm"
	"tereborace.com/fenix/internal/orchestrator"
	"tereborace.com/fenix/internal/result"
	"tereborace.com/fenix/internal/sheet"
	"tereborace.com/fenix/internal/skills"
)

type server struct {
	app     *app
	tpl     *template.Template
	answers *answerStore
	maxRows int
}

func newServer(a *app) (*server, error) {
	tpl, err := template.New("").
		Funcs(template.FuncMap{
			"label":     label,             // "dias_en_taller" -> "Dias En Taller"
			"join":      strings.Join,      // unir diagnósticos
			"hasPrefix": strings.HasPrefix, // comprobar prefixo
			"toUpper":   strings.ToUpper,   // pasar a maiúsculas
			"trim":      strings.TrimSpace, // quitar espazos arredor
		}).
		ParseFS(tplFS,
			"templates/*.gohtml",
			"templates/partials/*.gohtml",
		)
	if err != nil {
		return nil, err
	}
	return &server{app: a, tpl: tpl, answers: newAnswerStore(64), maxRows: 500}, nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(withLogging(s.app.log))

	assets, _ := fs.Sub(webFS, "webstatic")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(assets))))

	r.Get("/", s.handleIndex)
	r.Post("/ask", s.handleAsk)
	r.Get("/skills/{metric}", s.handleSkill)
	r.Get("/export/{format}", s.handleExport)
	r.Get("/calibracion", s.handleCalibration)
	r.Post("/reload", s.handleReload)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"fenix"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/ask", s.handleAPIAsk)
		r.Get("/skills", s.handleAPISkills)
		r.Get("/chart/{id}", s.handleAPIChart)
		r.Get("/estado", s.handleAPIStatus)
		r.Get("/calibracion", s.handleAPICalibration)
	})
	return r
}

// middleware de log por petición
func withLogging(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("http")
		})
	}
}

// ==== respostas recentes (para exportar e gráficas) ====

type answerStore struct {
	mu    sync.Mutex
	max   int
	order []string
	byID  map[string]storedAnswer
}

type storedAnswer struct {
	orchestrator.Answer
	Summary string
}

func newAnswerStore(max int) *answerStore {
	return &answerStore{max: max, byID: map[string]storedAnswer{}}
}

func (st *answerStore) put(a storedAnswer) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.byID[a.ID]; !ok {
		st.order = append(st.order, a.ID)
	}
	st.byID[a.ID] = a
	for len(st.order) > st.max {
		delete(st.byID, st.order[0])
		st.order = st.order[1:]
	}
}

func (st *answerStore) get(id string) (storedAnswer, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	a, ok := st.byID[id]
	return a, ok
}

// last devolve a resposta máis recente.
func (st *answerStore) last() (storedAnswer, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.order) == 0 {
		return storedAnswer{}, false
	}
	return st.byID[st.order[len(st.order)-1]], true
}

func (st *answerStore) lastDiagnostics() []string {
	if a, ok := st.last(); ok {
		return a.Diagnostics
	}
	return nil
}

// ==== preferencias ====

// prefsFrom le horizonte, mes e ano do formulario ou da query.
func (s *server) prefsFrom(r *http.Request) orchestrator.Prefs {
	p := s.app.prefs()
	if h, err := strconv.Atoi(r.FormValue("horizonte")); err == nil && h > 0 {
		p.HorizonDays = min(h, 60)
	}
	p.Month, _ = strconv.Atoi(r.FormValue("mes"))
	p.Year, _ = strconv.Atoi(r.FormValue("anio"))
	return p
}

// ==== vistas ====

type answerView struct {
	ID          string
	Question    string
	Route       orchestrator.Route
	Metric      string
	SQL         string
	Columns     []string
	Rows        [][]string
	Total       int
	Truncated   bool
	Summary     string
	Error       string
	Diagnostics []string
	HasChart    bool
	Chart       chart
	ChartJSON   template.JS
}

func (s *server) view(a storedAnswer) *answerView {
	v := &answerView{
		ID: a.ID, Question: a.Question, Route: a.Route, Metric: a.Metric, SQL: a.SQL,
		Summary: a.Summary, Diagnostics: a.Diagnostics,
	}
	if a.Err != nil {
		v.Error = a.Err.Error()
		return v
	}
	t := a.Table
	v.Columns, v.Total = t.Columns, t.Len()
	shown := t.Head(s.maxRows)
	v.Truncated = shown.Len() < t.Len()
	for _, r := range formatted(shown).Rows {
		row := make([]string, len(r))
		for i, c := range r {
			row[i] = result.Text(c)
		}
		v.Rows = append(v.Rows, row)
	}
	if c, ok := chartOf(t, 20); ok && len(c.Labels) > 1 {
		b, _ := json.Marshal(c)
		v.HasChart, v.Chart, v.ChartJSON = true, c, template.JS(b)
	}
	return v
}

type pageData struct {
	Skills   []skills.Skill
	Prefs    orchestrator.Prefs
	Status   llm.Status
	Answer   *answerView
	Question string
	Sheets   []string
	Loaded   string
	Error    string
}

func (s *server) page(ctx context.Context, prefs orchestrator.Prefs) pageData {
	pd := pageData{
		Skills: s.app.orch.Catalog,
		Prefs:  prefs,
		Status: s.app.orch.Gen.Status(s.answers.lastDiagnostics()),
	}
	if pd.Skills == nil {
		pd.Skills = skills.Catalog
	}
	snap, err := s.app.snapshot(ctx, false)
	if err != nil {
		pd.Error = err.Error()
		return pd
	}
	pd.Sheets = sheet.Names(snap.Tables)
	pd.Loaded = snap.LoadedAt.Format("02-01-2006 15:04")
	if pd.Prefs.Month == 0 {
		pd.Prefs.Month = int(snap.Today.Month())
	}
	if pd.Prefs.Year == 0 {
		pd.Prefs.Year = snap.Today.Year()
	}
	return pd
}

func (s *server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.ExecuteTemplate(w, name, data); err != nil {
		s.app.log.Error().Err(err).Str("template", name).Msg("render")
	}
}

// ==== handlers ====

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	pd := s.page(r.Context(), s.prefsFrom(r))
	if id := r.URL.Query().Get("id"); id != "" {
		if a, ok := s.answers.get(id); ok {
			pd.Answer, pd.Question = s.view(a), a.Question
		}
	}
	s.render(w, "index.gohtml", pd)
}

func (s *server) handleAsk(w http.ResponseWriter, r *http.Request) {
	prefs := s.prefsFrom(r)
	q := strings.TrimSpace(r.FormValue("q"))
	if q == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	snap, err := s.app.snapshot(r.Context(), false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	ans := s.app.orch.Ask(r.Context(), snap, q, prefs)
	st := storedAnswer{Answer: ans}
	if r.FormValue("resumen") != "" && ans.Err == nil {
		out := s.app.orch.Gen.Summarize(r.Context(), q, ans.Table)
		st.Summary = out.Value
		if !out.OK() {
			st.Diagnostics = append(st.Diagnostics, out.Diagnostic)
		}
	}
	s.answers.put(st)

	pd := s.page(r.Context(), prefs)
	pd.Answer, pd.Question = s.view(st), q
	s.render(w, "index.gohtml", pd)
}

func (s *server) handleSkill(w http.ResponseWriter, r *http.Request) {
	prefs := s.prefsFrom(r)
	snap, err := s.app.snapshot(r.Context(), false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	var p skills.Params
	p.Proveedor = r.FormValue("proveedor")
	p.TopN, _ = strconv.Atoi(r.FormValue("top"))
	ans := s.app.runSkill(snap, chi.URLParam(r, "metric"), p, prefs.WithDefaults(snap.Today))
	st := storedAnswer{Answer: ans}
	s.answers.put(st)

	pd := s.page(r.Context(), prefs)
	pd.Answer = s.view(st)
	s.render(w, "index.gohtml", pd)
}

func (s *server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.snapshot(r.Context(), false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.render(w, "calibracion.gohtml", map[string]any{
		"Calibration": s.app.calibration(snap),
		"Policy":      snap.Policy.Name,
		"Schema":      snap.Prelude.Schema,
	})
}

func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.app.snapshot(r.Context(), true); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ==== exportación ====

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	a, ok := s.answers.get(r.URL.Query().Get("id"))
	if !ok || a.Table == nil {
		http.Error(w, "respuesta no encontrada", http.StatusNotFound)
		return
	}
	name := safeFile(a.Metric)
	if a.Metric == "" {
		name = "fenix_" + a.ID[:8]
	}
	switch chi.URLParam(r, "format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", name))
		if err := writeCSV(w, a.Table); err != nil {
			s.app.log.Error().Err(err).Msg("export csv")
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", name))
		if err := writeXLSX(w, a.Table); err != nil {
			s.app.log.Error().Err(err).Msg("export xlsx")
		}
	default:
		http.NotFound(w, r)
	}
}

// exportCell: números como número, datas dd-mm-yyyy, o resto como texto.
func exportCell(col string, v any) any {
	switch v.(type) {
	case float64, int64, int:
		return v
	case nil:
		return ""
	}
	return formatCell(col, v)
}

func writeCSV(w io.Writer, t *result.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, r := range t.Rows {
		row := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(r) {
				row[i] = result.Text(exportCell(c, r[i]))
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, t *result.Table) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "Sheet1"
	head := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		head[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return err
	}
	for i, r := range t.Rows {
		row := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			if j < len(r) {
				row[j] = exportCell(c, r[j])
			}
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return f.Write(w)
}
