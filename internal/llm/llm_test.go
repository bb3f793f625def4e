package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tereborace.com/fenix/internal/canon"
	"tereborace.com/fenix/internal/query"
	"tereborace.com/fenix/internal/result"
	"tereborace.com/fenix/internal/skills"
	"tereborace.com/fenix/internal/sqlguard"
)

type fakeCompleter struct {
	reply  string
	err    error
	system string
	user   string
	calls  int
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.calls++
	f.system, f.user = system, user
	return f.reply, f.err
}

func newGen(c Completer) *Generator {
	return &Generator{
		Completer: c,
		Model:     "test-model",
		Log:       zerolog.Nop(),
		Now:       func() time.Time { return time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC) },
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(" ", "", "", 0)
	assert.ErrorIs(t, err, ErrNoAPIKey)

	c, err := NewOpenAI("sk-test", "", "", 0.1)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model)
}

func TestGenerateSQL(t *testing.T) {
	f := &fakeCompleter{reply: "```sql\nSELECT MB.id FROM MB WHERE strftime('%m', MB.fecha_op) = 'MES_SELECCIONADO';\n```"}
	g := newGen(f)
	out := g.GenerateSQL(context.Background(), "facturación del mes", "View MB(id TEXT)", sqlguard.Params{Month: 3, Year: 2024, HorizonDays: 7})
	require.True(t, out.OK(), out.Diagnostic)
	assert.Equal(t, "SELECT MB.id FROM MB WHERE strftime('%m', MB.fecha_op) = '3' LIMIT 200", out.Value)

	assert.Equal(t, sqlSystem, f.system)
	assert.Contains(t, f.user, "View MB(id TEXT)")
	assert.Contains(t, f.user, "HORIZONTE_DIAS = 7")
	assert.Contains(t, f.user, "'entregados' = MB.entregado_bool = 1")
	assert.Contains(t, f.user, "date('2024-06-15')")
	assert.Contains(t, f.user, "strftime('%m', col)")
	assert.Contains(t, f.user, "facturación del mes")
}

func TestGenerateSQLRejectsUnsafe(t *testing.T) {
	g := newGen(&fakeCompleter{reply: "DROP TABLE MB"})
	out := g.GenerateSQL(context.Background(), "borra todo", "", sqlguard.Params{})
	assert.False(t, out.OK())
	assert.Empty(t, out.Value)
	assert.Contains(t, out.Diagnostic, "no segura")
}

func TestGenerateSQLFailures(t *testing.T) {
	out := newGen(nil).GenerateSQL(context.Background(), "x", "", sqlguard.Params{})
	assert.Equal(t, ErrNoAPIKey.Error(), out.Diagnostic)

	out = newGen(&fakeCompleter{err: errors.New("timeout")}).GenerateSQL(context.Background(), "x", "", sqlguard.Params{})
	assert.Contains(t, out.Diagnostic, "nl2sql")
	assert.Contains(t, out.Diagnostic, "timeout")
}

func TestRepairSQL(t *testing.T) {
	f := &fakeCompleter{reply: "SELECT id FROM MB"}
	out := newGen(f).RepairSQL(context.Background(), "q", "View MB(id TEXT)", "SELECT idd FROM MB", "no such column: idd", sqlguard.Params{})
	require.True(t, out.OK())
	assert.Equal(t, "SELECT id FROM MB LIMIT 200", out.Value)
	assert.Contains(t, f.user, "no such column: idd")
	assert.Contains(t, f.user, "SELECT idd FROM MB")
}

func TestSummarize(t *testing.T) {
	tbl := result.New("id", "monto")
	for i := 0; i < 60; i++ {
		tbl.Append("AB", 10.0)
	}

	out := newGen(nil).Summarize(context.Background(), "q", tbl)
	assert.True(t, out.OK())
	assert.Equal(t, NoKeySummary, out.Value)

	f := &fakeCompleter{reply: "  Todo en orden.  "}
	out = newGen(f).Summarize(context.Background(), "¿cómo vamos?", tbl)
	assert.Equal(t, "Todo en orden.", out.Value)
	assert.Contains(t, f.user, "¿cómo vamos?")
	assert.True(t, strings.HasSuffix(f.user, tbl.Head(SummaryRows).Markdown()), "only the first rows go to the model")

	f = &fakeCompleter{err: errors.New("boom")}
	out = newGen(f).Summarize(context.Background(), "q", tbl)
	assert.False(t, out.OK())

	out = newGen(&fakeCompleter{}).Summarize(context.Background(), "q", result.New("id"))
	assert.Equal(t, "Sin resultados.", out.Value)
}

func TestParseIntentMetric(t *testing.T) {
	in, err := ParseIntent(`{"metric": "top_en_taller", "params": {"top_n": 5, "filters": {"marca": "Toyota"}}}`)
	require.NoError(t, err)
	assert.Equal(t, skills.MetricTopEnTaller, in.Metric)
	assert.Equal(t, 5, in.Params.TopN)
	assert.Equal(t, "Toyota", in.Params.Filters.Marca)
	assert.Nil(t, in.Spec)

	in, err = ParseIntent("```json\n{\"metric\": \"cuentas por pagar\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, skills.MetricFacturasPorPagar, in.Metric, "synonyms resolve to the metric")
}

func TestParseIntentSpec(t *testing.T) {
	in, err := ParseIntent(`Claro: {"spec": {"delivered": true, "invoiced": false, "date_field": "FECHA_ENTREGA",
		"date_range": {"start": "2024-06-01", "end": null, "proximos_dias": null, "ultimos_dias": null},
		"group_by": "marca", "metric": "lista", "sort_desc": true}}`)
	require.NoError(t, err)
	require.NotNil(t, in.Spec)
	assert.Equal(t, true, *in.Spec.Delivered)
	assert.Equal(t, false, *in.Spec.Invoiced)
	assert.Equal(t, query.DateEntrega, in.Spec.DateField)
	require.NotNil(t, in.Spec.DateRange.Start)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *in.Spec.DateRange.Start)
	assert.Nil(t, in.Spec.DateRange.End)
	assert.Equal(t, query.MetricConteo, in.Spec.Metric, "grouped lists become counts")
}

func TestParseIntentRejects(t *testing.T) {
	cases := map[string]string{
		"no json":        "no sé",
		"empty object":   "{}",
		"unknown metric": `{"metric": "ventas_globales"}`,
		"unknown field":  `{"metric": "sin_aprobacion", "extra": 1}`,
		"bad date":       `{"spec": {"date_range": {"start": "ayer"}}}`,
		"wrong type":     `{"metric": "top_en_taller", "params": {"top_n": "cinco"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseIntent(raw)
			assert.Error(t, err)
		})
	}
}

func TestRoute(t *testing.T) {
	f := &fakeCompleter{reply: `{"metric": "sin_aprobacion"}`}
	cats := CatalogsFrom([]canon.ServiceRecord{
		{Marca: "Toyota", TipoCliente: "Empresa", Sucursal: "Centro"},
		{Marca: " TOYOTA ", EstadoServicio: "En Taller"},
		{Marca: "Kia"},
	})
	assert.Equal(t, []string{"Kia", "Toyota"}, cats.Marcas)

	out := newGen(f).Route(context.Background(), "presupuestos sin aprobar", skills.Catalog, cats)
	require.True(t, out.OK(), out.Diagnostic)
	assert.Equal(t, skills.MetricSinAprobacion, out.Value.Metric)
	assert.Equal(t, routeSystem, f.system)
	assert.Contains(t, f.user, "marcas: [Kia, Toyota]")
	assert.Contains(t, f.user, "- sin_aprobacion: Sin aprobación")

	out = newGen(&fakeCompleter{reply: "{}"}).Route(context.Background(), "q", skills.Catalog, cats)
	assert.False(t, out.OK())
	assert.Contains(t, out.Diagnostic, "LLM route")
}

func TestStatus(t *testing.T) {
	s := newGen(&fakeCompleter{}).Status([]string{"a", "LLM nl2sql error: boom"})
	assert.True(t, s.APIKey)
	assert.Equal(t, "OPENAI_API_KEY presente: sí | modelo: test-model | último error LLM: LLM nl2sql error: boom", s.String())

	var g *Generator
	s = g.Status(nil)
	assert.False(t, s.APIKey)
	assert.Equal(t, "OPENAI_API_KEY presente: no | modelo: "+DefaultModel, s.String())
}
