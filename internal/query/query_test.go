package query

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tereborace.com/fenix/internal/canon"
)

var today = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

func day(offset int) sql.NullTime {
	return sql.NullTime{Time: today.AddDate(0, 0, offset), Valid: true}
}

func records() []canon.ServiceRecord {
	return []canon.ServiceRecord{
		{ID: "A1", Cliente: "Pérez", Marca: "Toyota", TipoCliente: "Empresa", Entregado: true, NoFacturado: true,
			FechaEntrega: day(-3), FechaOp: day(-3), Monto: sql.NullFloat64{Float64: 100, Valid: true}},
		{ID: "A2", Cliente: "Soto", Marca: "Kia", TipoCliente: "Particular", Entregado: true, Facturado: true,
			FechaEntrega: day(-40), FechaFacturacion: day(-39), FechaOp: day(-39), Monto: sql.NullFloat64{Float64: 50, Valid: true}},
		{ID: "A3", Cliente: "Pérez", Marca: "toyota", TipoCliente: "empresa", NoFacturado: true,
			FechaRecepcion: day(-10), FechaOp: day(-10), Monto: sql.NullFloat64{Float64: 25.5, Valid: true}},
		{ID: "A4", Cliente: "Rojas", Marca: "Kia", Entregado: true, NoFacturado: true, FechaEntrega: day(4), FechaOp: day(4)},
	}
}

func ids(t *testing.T, rows [][]any) []any {
	t.Helper()
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out
}

func TestValidateDefaultsUnknownEnums(t *testing.T) {
	s := Spec{DateField: "fecha_magica", GroupBy: "por_color", Metric: "promedio", Month: Int(13), TopN: Int(0)}.Validate()
	assert.Equal(t, DateOp, s.DateField)
	assert.Equal(t, GroupNone, s.GroupBy)
	assert.Equal(t, MetricLista, s.Metric)
	assert.Nil(t, s.Month)
	assert.Nil(t, s.TopN)

	s = Spec{GroupBy: "MARCA"}.Validate()
	assert.Equal(t, GroupMarca, s.GroupBy)
	assert.Equal(t, MetricConteo, s.Metric, "grouping a list counts")
}

func TestExecuteFlagsAndText(t *testing.T) {
	tbl, err := Execute(records(), Spec{Delivered: Bool(true), Invoiced: Bool(false), ClienteContains: "perez"}, today)
	require.NoError(t, err)
	assert.Equal(t, []any{"A1"}, ids(t, tbl.Rows))

	tbl, err = Execute(records(), Spec{Invoiced: Bool(true)}, today)
	require.NoError(t, err)
	assert.Equal(t, []any{"A2"}, ids(t, tbl.Rows))
}

func TestExecuteWindowsTakePrecedence(t *testing.T) {
	spec := Spec{
		DateField: DateEntrega,
		DateRange: DateRange{ProximosDias: Int(7)},
		Month:     Int(1),
		Year:      Int(2020),
	}
	tbl, err := Execute(records(), spec, today)
	require.NoError(t, err)
	assert.Equal(t, []any{"A4"}, ids(t, tbl.Rows))

	tbl, err = Execute(records(), Spec{DateField: DateEntrega, DateRange: DateRange{UltimosDias: Int(30)}}, today)
	require.NoError(t, err)
	assert.Equal(t, []any{"A1"}, ids(t, tbl.Rows))
}

func TestExecuteMonthYear(t *testing.T) {
	tbl, err := Execute(records(), Spec{Month: Int(5), Year: Int(2024)}, today)
	require.NoError(t, err)
	assert.Equal(t, []any{"A2"}, ids(t, tbl.Rows), "fecha_op in May 2024")

	start := today.AddDate(0, 0, -10)
	tbl, err = Execute(records(), Spec{DateRange: DateRange{Start: &start}, SortDesc: true}, today)
	require.NoError(t, err)
	assert.Equal(t, []any{"A4", "A1", "A3"}, ids(t, tbl.Rows))
}

func TestExecuteAggregations(t *testing.T) {
	tbl, err := Execute(records(), Spec{Metric: MetricConteo, ClienteContains: "perez"}, today)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(2)}}, tbl.Rows)

	tbl, err = Execute(records(), Spec{GroupBy: GroupMarca, Metric: MetricSumaNeto}, today)
	require.NoError(t, err)
	require.Equal(t, []string{"marca", "casos", "monto_neto"}, tbl.Columns)
	assert.Equal(t, []any{"Toyota", int64(2), 125.5}, tbl.Rows[0])
	assert.Equal(t, []any{"Kia", int64(2), 50.0}, tbl.Rows[1])
}

func TestExecuteTopNAndCap(t *testing.T) {
	var mb []canon.ServiceRecord
	for i := 0; i < 350; i++ {
		mb = append(mb, canon.ServiceRecord{ID: "X"})
	}
	tbl, err := Execute(mb, Spec{}, today)
	require.NoError(t, err)
	assert.Equal(t, MaxRows, tbl.Len())

	tbl, err = Execute(mb, Spec{TopN: Int(5)}, today)
	require.NoError(t, err)
	assert.Equal(t, 5, tbl.Len())
}

func TestHasConstraints(t *testing.T) {
	assert.False(t, Spec{}.HasConstraints())
	assert.True(t, Spec{Delivered: Bool(false)}.HasConstraints())
	assert.True(t, Spec{MarcaExact: "Kia"}.HasConstraints())
}
