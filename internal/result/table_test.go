package result

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPromoteID(t *testing.T) {
	tbl := New("cliente", "monto", "patente")
	tbl.Append("Pérez", 10.5, "AB1234")
	tbl.PromoteID()
	assert.Equal(t, []string{"patente", "cliente", "monto"}, tbl.Columns)
	assert.Equal(t, []any{"AB1234", "Pérez", 10.5}, tbl.Rows[0])
}

func TestPromoteIDFallsBackToOT(t *testing.T) {
	tbl := New("cliente", "ot")
	tbl.Append("Pérez", "200")
	tbl.PromoteID()
	assert.Equal(t, []string{"ot", "cliente"}, tbl.Columns)

	none := New("a", "b")
	none.PromoteID()
	assert.Equal(t, []string{"a", "b"}, none.Columns)
}

func TestMarkdown(t *testing.T) {
	tbl := New("patente", "fecha", "monto")
	tbl.Append("AB|12", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 1500.0)
	tbl.Append("CD", nil, int64(3))
	want := "| patente | fecha | monto |\n" +
		"| --- | --- | --- |\n" +
		"| AB\\|12 | 2024-06-01 | 1500 |\n" +
		"| CD |  | 3 |\n"
	assert.Equal(t, want, tbl.Markdown())
	assert.Equal(t, "", (*Table)(nil).Markdown())
}

func TestLenEmptyHead(t *testing.T) {
	var nilTable *Table
	assert.True(t, nilTable.Empty())
	tbl := New("a")
	assert.True(t, tbl.Empty())
	tbl.Append(1)
	tbl.Append(2)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, 1, tbl.Head(1).Len())
	assert.Equal(t, 2, tbl.Head(10).Len())
}

func TestNullable(t *testing.T) {
	assert.Nil(t, Nullable(sql.NullTime{}))
	assert.Equal(t, 2.5, Nullable(sql.NullFloat64{Float64: 2.5, Valid: true}))
	assert.Equal(t, int64(7), Nullable(sql.NullInt64{Int64: 7, Valid: true}))
	assert.Equal(t, "x", Nullable("x"))
}
