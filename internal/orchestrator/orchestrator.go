// Package orchestrator resolve unha pregunta probando, en orde, a ruta
// semántica (skills), a ruta SQL automática e o analizador heurístico.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tereborace.com/fenix/internal/freeform"
	"tereborace.com/fenix/internal/llm"
	"tereborace.com/fenix/internal/query"
	"tereborace.com/fenix/internal/result"
	"tereborace.com/fenix/internal/sheet"
	"tereborace.com/fenix/internal/skills"
	"tereborace.com/fenix/internal/sqlguard"
)

// ErrUnanswered: ningunha ruta deu resposta.
var ErrUnanswered = errors.New("no pude responder")

// Route identifica a ruta que produciu a resposta.
type Route string

const (
	RouteNone     Route = "ninguna"
	RouteSemantic Route = "semantica"
	RouteAutoSQL  Route = "auto_sql"
	RouteFreeform Route = "heuristica"
)

// Executor executa SQL sobre as follas co preludio das vistas.
type Executor interface {
	Execute(ctx context.Context, sql string, tables map[string]*sheet.Table, prelude string) (*result.Table, error)
}

// Config son os parámetros do orquestrador.
type Config struct {
	LLMTimeout time.Duration
	SQLTimeout time.Duration
	// TrustEmptySkill fai que unha skill ben formada que devolve cero filas
	// sexa a resposta final.
	TrustEmptySkill bool
	// Repair permite un intento de corrección cando o motor rexeita a SQL.
	Repair bool
}

// Prefs son as preferencias da barra lateral.
type Prefs struct {
	HorizonDays int
	Month       int
	Year        int
}

// Answer é o resultado dunha pregunta.
type Answer struct {
	ID          string
	Question    string
	Route       Route
	Metric      string
	Table       *result.Table
	SQL         string
	Spec        *query.Spec
	Diagnostics []string
	Err         error
}

func (a *Answer) diag(format string, args ...any) {
	a.Diagnostics = append(a.Diagnostics, fmt.Sprintf(format, args...))
}

// Orchestrator é sen estado: Ask pódese chamar desde varias gorutinas.
type Orchestrator struct {
	Gen     *llm.Generator
	Exec    Executor
	Catalog []skills.Skill
	Cfg     Config
	Log     zerolog.Logger
}

func timeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// WithDefaults completa horizonte, mes e ano a partir de today.
func (p Prefs) WithDefaults(today time.Time) Prefs {
	if p.HorizonDays <= 0 {
		p.HorizonDays = 7
	}
	if p.Month < 1 || p.Month > 12 {
		p.Month = int(today.Month())
	}
	if p.Year <= 0 {
		p.Year = today.Year()
	}
	return p
}

// Ask resolve question contra snap.
func (o *Orchestrator) Ask(ctx context.Context, snap *Snapshot, question string, prefs Prefs) Answer {
	ans := Answer{ID: uuid.NewString(), Question: question, Route: RouteNone}
	log := o.Log.With().Str("question_id", ans.ID).Logger()
	log.Info().Str("question", question).Msg("ask")
	if snap == nil || snap.Skills == nil {
		ans.diag("planilla no cargada")
		ans.Err = ErrUnanswered
		return ans
	}
	prefs = prefs.WithDefaults(snap.Today)

	if o.semantic(ctx, log, snap, prefs, &ans) {
		return o.done(log, ans)
	}
	if o.autoSQL(ctx, log, snap, prefs, &ans) {
		return o.done(log, ans)
	}
	if o.freeform(log, snap, &ans) {
		return o.done(log, ans)
	}
	ans.Route = RouteNone
	ans.Table = nil
	ans.Err = ErrUnanswered
	log.Warn().Strs("diagnostics", ans.Diagnostics).Msg("unanswered")
	return ans
}

func (o *Orchestrator) done(log zerolog.Logger, ans Answer) Answer {
	if ans.Table != nil {
		ans.Table.PromoteID()
	}
	log.Info().Str("route", string(ans.Route)).Int("rows", ans.Table.Len()).Msg("answered")
	return ans
}

func (o *Orchestrator) catalog() []skills.Skill {
	if o.Catalog != nil {
		return o.Catalog
	}
	return skills.Catalog
}

// ==== Rutas ====

func (o *Orchestrator) semantic(ctx context.Context, log zerolog.Logger, snap *Snapshot, prefs Prefs, ans *Answer) bool {
	if !o.Gen.Available() || len(o.catalog()) == 0 {
		return false
	}
	log.Debug().Msg("route semantic")
	cctx, cancel := timeout(ctx, o.Cfg.LLMTimeout)
	out := o.Gen.Route(cctx, ans.Question, o.catalog(), snap.Catalogs)
	cancel()
	if !out.OK() {
		ans.diag("%s", out.Diagnostic)
		return false
	}

	in := out.Value
	if in.Spec != nil {
		if !in.Spec.HasConstraints() {
			ans.diag("consulta semántica sen filtros")
			return false
		}
		t, err := query.Execute(snap.Skills.MB(), *in.Spec, snap.Today)
		if err != nil {
			ans.diag("consulta semántica: %v", err)
			return false
		}
		if t.Empty() {
			log.Debug().Msg("semantic spec empty, falling through")
			return false
		}
		ans.Route, ans.Spec, ans.Table = RouteSemantic, in.Spec, t
		return true
	}

	p := in.Params
	if p.HorizonDays <= 0 {
		p.HorizonDays = prefs.HorizonDays
	}
	if p.Month == 0 {
		p.Month = prefs.Month
	}
	if p.Year == 0 {
		p.Year = prefs.Year
	}
	t, err := snap.Skills.Run(in.Metric, p)
	if err != nil {
		ans.diag("skill %s: %v", in.Metric, err)
		return false
	}
	if t.Empty() && !o.Cfg.TrustEmptySkill {
		log.Debug().Str("metric", in.Metric).Msg("skill empty, falling through")
		return false
	}
	ans.Route, ans.Metric, ans.Table = RouteSemantic, in.Metric, t
	return true
}

func (o *Orchestrator) autoSQL(ctx context.Context, log zerolog.Logger, snap *Snapshot, prefs Prefs, ans *Answer) bool {
	if !o.Gen.Available() || o.Exec == nil || snap.Prelude.SQL == "" {
		return false
	}
	log.Debug().Msg("route auto_sql")
	params := sqlguard.Params{Month: prefs.Month, Year: prefs.Year, HorizonDays: prefs.HorizonDays}

	cctx, cancel := timeout(ctx, o.Cfg.LLMTimeout)
	gen := o.Gen.GenerateSQL(cctx, ans.Question, snap.Prelude.Schema, params)
	cancel()
	if !gen.OK() {
		ans.diag("%s", gen.Diagnostic)
		return false
	}
	sql := gen.Value
	t, err := o.execute(ctx, snap, sql)
	if err != nil && o.Cfg.Repair {
		ans.diag("SQL error: %v", err)
		cctx, cancel := timeout(ctx, o.Cfg.LLMTimeout)
		fix := o.Gen.RepairSQL(cctx, ans.Question, snap.Prelude.Schema, sql, err.Error(), params)
		cancel()
		if !fix.OK() {
			ans.diag("%s", fix.Diagnostic)
			return false
		}
		sql = fix.Value
		t, err = o.execute(ctx, snap, sql)
	}
	if err != nil {
		ans.diag("SQL error: %v", err)
		return false
	}
	if t.Empty() {
		log.Debug().Str("sql", sql).Msg("auto_sql empty, falling through")
		return false
	}
	ans.Route, ans.SQL, ans.Table = RouteAutoSQL, sql, t
	return true
}

func (o *Orchestrator) execute(ctx context.Context, snap *Snapshot, sql string) (*result.Table, error) {
	cctx, cancel := timeout(ctx, o.Cfg.SQLTimeout)
	defer cancel()
	return o.Exec.Execute(cctx, sql, snap.Tables, snap.Prelude.SQL)
}

func (o *Orchestrator) freeform(log zerolog.Logger, snap *Snapshot, ans *Answer) bool {
	log.Debug().Msg("route freeform")
	spec := freeform.Parse(ans.Question)
	t, err := query.Execute(snap.Skills.MB(), spec, snap.Today)
	if err != nil {
		ans.diag("heurística: %v", err)
		return false
	}
	ans.Route, ans.Spec, ans.Table = RouteFreeform, &spec, t
	return true
}
