package orchestrator

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
	"tereborace.com/fenix/internal/engine"
	"tereborace.com/fenix/internal/llm"
	"tereborace.com/fenix/internal/result"
	"tereborace.com/fenix/internal/sheet"
	"tereborace.com/fenix/internal/skills"
)

var today = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

func tables() map[string]*sheet.Table {
	return map[string]*sheet.Table{
		"MODELO_BOT": sheet.NewTable("MODELO_BOT", [][]string{
			{"Patente", "OT", "Cliente", "Tipo Cliente", "Marca", "Estado Servicio", "Presupuesto",
				"Fecha Recepción", "Fecha Entrega", "Fecha Facturación", "Facturado", "Monto Neto"},
			{"AB1234", "100", "Pérez Ltda", "Empresa", "Toyota", "Entregado", "Aprobado",
				"01/06/2024", "10/06/2024", "", "No", "1.500.000"},
			{"", "200", "Juan Soto", "Particular", "Kia", "En Taller", "Aprobado",
				"05/06/2024", "", "", "", "300.000"},
			{"CD5678", "300", "Flota SA", "Empresa", "Toyota", "Entregado", "Aprobado",
				"2024-06-02", "11/06/2024", "12/06/2024", "Sí", "2.000.000"},
		}),
	}
}

func snapshot() *Snapshot {
	return NewSnapshot(tables(), SnapshotOptions{Policy: canon.FlagStrict, Today: today})
}

// scripted responde segundo o tipo de chamada (enrutado ou SQL).
type scripted struct {
	route    string
	routeErr error
	sqls     []string
	sqlCalls int
}

func (s *scripted) Complete(_ context.Context, system, _ string) (string, error) {
	if strings.Contains(system, "enrutador") {
		return s.route, s.routeErr
	}
	i := s.sqlCalls
	s.sqlCalls++
	if i >= len(s.sqls) {
		return "", errors.New("no more sql")
	}
	return s.sqls[i], nil
}

type fakeExec struct {
	results []*result.Table
	errs    []error
	queries []string
	prelude string
}

func (f *fakeExec) Execute(_ context.Context, sql string, _ map[string]*sheet.Table, prelude string) (*result.Table, error) {
	i := len(f.queries)
	f.queries = append(f.queries, sql)
	f.prelude = prelude
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return result.New("id"), nil
}

func newOrch(c llm.Completer, exec Executor, cfg Config) *Orchestrator {
	var gen *llm.Generator
	if c != nil {
		gen = &llm.Generator{Completer: c, Log: zerolog.Nop(), Now: func() time.Time { return today }}
	}
	return &Orchestrator{Gen: gen, Exec: exec, Cfg: cfg, Log: zerolog.Nop()}
}

func oneRow() *result.Table {
	t := result.New("cliente", "id")
	t.Append("Flota SA", "CD5678")
	return t
}

func TestNewSnapshot(t *testing.T) {
	s := snapshot()
	assert.Equal(t, "MODELO_BOT", s.Prelude.MBSource)
	assert.Empty(t, s.Prelude.FINSource)
	assert.Len(t, s.Skills.MB(), 3)
	assert.Equal(t, []string{"Kia", "Toyota"}, s.Catalogs.Marcas)
	assert.Equal(t, today, s.Today)
	assert.Equal(t, canon.FlagStrict.Name, s.Policy.Name)

	_, err := s.Skills.FacturasPorPagar(7, "")
	assert.ErrorIs(t, err, skills.ErrNoFinanzas, "no FINANZAS sheet")
}

func TestAskWithoutModelUsesFreeform(t *testing.T) {
	o := newOrch(nil, &fakeExec{}, Config{})
	ans := o.Ask(context.Background(), snapshot(), "entregados sin factura", Prefs{})
	require.NoError(t, ans.Err)
	assert.Equal(t, RouteFreeform, ans.Route)
	require.NotNil(t, ans.Spec)
	assert.True(t, *ans.Spec.Delivered)
	require.Equal(t, 1, ans.Table.Len())
	assert.Equal(t, "id", ans.Table.Columns[0], "identity column first")
	assert.Equal(t, "AB1234", ans.Table.Rows[0][0])
	assert.NotEmpty(t, ans.ID)
}

func TestAskSemanticSkill(t *testing.T) {
	exec := &fakeExec{}
	o := newOrch(&scripted{route: `{"metric": "entregados_sin_factura"}`}, exec, Config{})
	ans := o.Ask(context.Background(), snapshot(), "¿qué entregados faltan por facturar?", Prefs{})
	require.NoError(t, ans.Err)
	assert.Equal(t, RouteSemantic, ans.Route)
	assert.Equal(t, skills.MetricEntregadosSinFactura, ans.Metric)
	assert.Equal(t, 1, ans.Table.Len())
	assert.Empty(t, exec.queries, "no SQL when the skill answers")
}

func TestAskSemanticSpec(t *testing.T) {
	o := newOrch(&scripted{route: `{"spec": {"delivered": false}}`}, &fakeExec{}, Config{})
	ans := o.Ask(context.Background(), snapshot(), "autos en taller", Prefs{})
	assert.Equal(t, RouteSemantic, ans.Route)
	require.NotNil(t, ans.Spec)
	assert.Equal(t, 1, ans.Table.Len())
}

func TestAskUnconstrainedSpecFallsThroughToSQL(t *testing.T) {
	exec := &fakeExec{results: []*result.Table{oneRow()}}
	sc := &scripted{route: `{"spec": {}}`, sqls: []string{"SELECT cliente, id FROM MB"}}
	o := newOrch(sc, exec, Config{})
	ans := o.Ask(context.Background(), snapshot(), "dame todo", Prefs{})
	require.NoError(t, ans.Err)
	assert.Equal(t, RouteAutoSQL, ans.Route)
	assert.Nil(t, ans.Spec)
	assert.Equal(t, 1, sc.sqlCalls)
	require.Len(t, exec.queries, 1)
	assert.Contains(t, ans.Diagnostics, "consulta semántica sen filtros")
}

func TestAskEmptySkillFallsThroughToSQL(t *testing.T) {
	exec := &fakeExec{results: []*result.Table{oneRow()}}
	c := &scripted{route: `{"metric": "entregas_proximos_dias_sin_factura"}`, sqls: []string{"SELECT id, cliente FROM MB"}}
	o := newOrch(c, exec, Config{})
	ans := o.Ask(context.Background(), snapshot(), "entregas de la semana sin factura", Prefs{})

	require.NoError(t, ans.Err)
	assert.Equal(t, RouteAutoSQL, ans.Route)
	assert.Equal(t, "SELECT id, cliente FROM MB LIMIT 200", ans.SQL)
	require.Len(t, exec.queries, 1)
	assert.Contains(t, exec.prelude, "CREATE VIEW MB")
	assert.Equal(t, []string{"id", "cliente"}, ans.Table.Columns, "identity column promoted")
}

func TestAskTrustEmptySkill(t *testing.T) {
	exec := &fakeExec{}
	c := &scripted{route: `{"metric": "entregas_proximos_dias_sin_factura"}`, sqls: []string{"SELECT 1"}}
	o := newOrch(c, exec, Config{TrustEmptySkill: true})
	ans := o.Ask(context.Background(), snapshot(), "entregas de la semana sin factura", Prefs{})

	assert.Equal(t, RouteSemantic, ans.Route)
	assert.True(t, ans.Table.Empty())
	assert.Empty(t, exec.queries)
}

func TestAskRepairsRejectedSQL(t *testing.T) {
	exec := &fakeExec{
		errs:    []error{errors.New("no such column: idd")},
		results: []*result.Table{nil, oneRow()},
	}
	c := &scripted{routeErr: errors.New("down"), sqls: []string{"SELECT idd FROM MB", "SELECT id FROM MB"}}
	o := newOrch(c, exec, Config{Repair: true})
	ans := o.Ask(context.Background(), snapshot(), "lista", Prefs{})

	assert.Equal(t, RouteAutoSQL, ans.Route)
	assert.Equal(t, []string{"SELECT idd FROM MB LIMIT 200", "SELECT id FROM MB LIMIT 200"}, exec.queries)
	assert.Equal(t, "SELECT id FROM MB LIMIT 200", ans.SQL)
	require.Len(t, ans.Diagnostics, 2)
	assert.Contains(t, ans.Diagnostics[0], "down")
	assert.Contains(t, ans.Diagnostics[1], "no such column")
}

func TestAskSQLFailureFallsToFreeform(t *testing.T) {
	exec := &fakeExec{errs: []error{errors.New("boom")}}
	c := &scripted{route: "{}", sqls: []string{"SELECT x FROM MB"}}
	o := newOrch(c, exec, Config{})
	ans := o.Ask(context.Background(), snapshot(), "vehiculos en taller", Prefs{})

	assert.Equal(t, RouteFreeform, ans.Route)
	assert.Empty(t, ans.SQL)
	assert.Len(t, ans.Diagnostics, 2)
	assert.Equal(t, 1, ans.Table.Len())
}

func TestAskUnanswered(t *testing.T) {
	o := newOrch(nil, nil, Config{})
	ans := o.Ask(context.Background(), nil, "lo que sea", Prefs{})
	assert.ErrorIs(t, ans.Err, ErrUnanswered)
	assert.Nil(t, ans.Table)
	assert.Equal(t, RouteNone, ans.Route)
}

func TestAskAutoSQLOnSQLite(t *testing.T) {
	c := &scripted{route: "{}", sqls: []string{
		"```sql\nSELECT cliente, id FROM MB WHERE entregado_bool = 1 AND no_facturado_bool = 1;\n```",
	}}
	o := newOrch(c, engine.SQLite{Log: zerolog.Nop()}, Config{SQLTimeout: 5 * time.Second})
	ans := o.Ask(context.Background(), snapshot(), "entregados sin factura", Prefs{})

	require.NoError(t, ans.Err)
	assert.Equal(t, RouteAutoSQL, ans.Route)
	require.Equal(t, 1, ans.Table.Len())
	assert.Equal(t, []any{"AB1234", "Pérez Ltda"}, ans.Table.Rows[0])
}

func TestPrefsDefaults(t *testing.T) {
	p := Prefs{Month: 13}.WithDefaults(today)
	assert.Equal(t, Prefs{HorizonDays: 7, Month: 6, Year: 2024}, p)
}
