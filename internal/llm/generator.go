package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tereborace.com/fenix/internal/result"
	"tereborace.com/fenix/internal/sqlguard"
)

// SummaryRows é o número de filas que se lle pasan ao resumo.
const SummaryRows = 50

// NoKeySummary é o resumo fixo cando non hai modelo.
const NoKeySummary = "Resumen: (sin OPENAI_API_KEY) Se muestran los resultados solicitados."

// Outcome é o resultado dunha chamada ao modelo. Se Diagnostic non está
// baleiro a chamada fallou e Value é o valor cero.
type Outcome[T any] struct {
	Value      T
	Diagnostic string
}

// OK indica se a chamada tivo éxito.
func (o Outcome[T]) OK() bool { return o.Diagnostic == "" }

func failed[T any](format string, args ...any) Outcome[T] {
	return Outcome[T]{Diagnostic: fmt.Sprintf(format, args...)}
}

// Generator envolve un Completer cos prompts de Fénix. Completer nil
// significa que non hai clave configurada.
type Generator struct {
	Completer Completer
	Model     string
	Log       zerolog.Logger
	// Now permite fixar a data nos tests.
	Now func() time.Time
}

// Available indica se hai modelo.
func (g *Generator) Available() bool { return g != nil && g.Completer != nil }

func (g *Generator) today() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Generator) complete(ctx context.Context, what, system, user string) (string, string) {
	if !g.Available() {
		return "", ErrNoAPIKey.Error()
	}
	out, err := g.Completer.Complete(ctx, system, user)
	if err != nil {
		g.Log.Warn().Err(err).Str("call", what).Msg("llm call failed")
		return "", fmt.Sprintf("LLM %s error: %v", what, err)
	}
	return out, ""
}

// GenerateSQL traduce a pregunta a unha consulta SQLite sobre as vistas
// descritas en schema. A saída pásase por sqlguard: se non é segura
// devólvese un diagnóstico.
func (g *Generator) GenerateSQL(ctx context.Context, question, schema string, p sqlguard.Params) Outcome[string] {
	raw, diag := g.complete(ctx, "nl2sql", sqlSystem, sqlPrompt(question, schema, p, g.today()))
	if diag != "" {
		return Outcome[string]{Diagnostic: diag}
	}
	return g.guard(raw, p)
}

// RepairSQL pídelle ao modelo, unha vez, que corrixa unha consulta que o
// motor rexeitou.
func (g *Generator) RepairSQL(ctx context.Context, question, schema, badSQL, engineErr string, p sqlguard.Params) Outcome[string] {
	raw, diag := g.complete(ctx, "repair", sqlSystem, repairPrompt(question, schema, badSQL, engineErr))
	if diag != "" {
		return Outcome[string]{Diagnostic: diag}
	}
	return g.guard(raw, p)
}

func (g *Generator) guard(raw string, p sqlguard.Params) Outcome[string] {
	sql := sqlguard.Sanitize(raw, p)
	if !sqlguard.IsSafe(sql) {
		g.Log.Warn().Str("sql", sql).Msg("unsafe sql rejected")
		return failed[string]("SQL no segura descartada: %s", truncate(sql, 120))
	}
	g.Log.Debug().Str("sql", truncate(sql, 200)).Msg("sql generated")
	return Outcome[string]{Value: sql}
}

// Summarize resume as primeiras filas da táboa para a pregunta. Sen modelo
// devolve NoKeySummary sen diagnóstico.
func (g *Generator) Summarize(ctx context.Context, question string, t *result.Table) Outcome[string] {
	if !g.Available() {
		return Outcome[string]{Value: NoKeySummary}
	}
	if t.Empty() {
		return Outcome[string]{Value: "Sin resultados."}
	}
	out, diag := g.complete(ctx, "summarize", "", summaryPrompt(question, t.Head(SummaryRows).Markdown()))
	if diag != "" {
		return Outcome[string]{Value: "(Error LLM)", Diagnostic: diag}
	}
	return Outcome[string]{Value: strings.TrimSpace(out)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// ==== Estado ====

// Status é a liña de estado do modelo que amosan as interfaces.
type Status struct {
	APIKey      bool
	Model       string
	Diagnostics []string
}

// Status describe a configuración e os diagnósticos da última resposta,
// que pasa quen chama.
func (g *Generator) Status(last []string) Status {
	s := Status{APIKey: g.Available(), Diagnostics: last}
	if g != nil {
		s.Model = g.Model
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	return s
}

func (s Status) String() string {
	key := "no"
	if s.APIKey {
		key = "sí"
	}
	parts := []string{
		"OPENAI_API_KEY presente: " + key,
		"modelo: " + s.Model,
	}
	if len(s.Diagnostics) > 0 {
		parts = append(parts, "último error LLM: "+s.Diagnostics[len(s.Diagnostics)-1])
	}
	return strings.Join(parts, " | ")
}
