package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFenceAndLastLimit(t *testing.T) {
	got := Sanitize("```sql\nSELECT * FROM MB LIMIT 5 LIMIT 10```", Params{})
	assert.Equal(t, "SELECT * FROM MB LIMIT 10", got)
}

func TestSanitizeKeepsOffsetOfLastLimit(t *testing.T) {
	assert.Equal(t, "SELECT * FROM MB LIMIT 10 OFFSET 20", Sanitize("SELECT * FROM MB LIMIT 10 OFFSET 20", Params{}))
	assert.Equal(t, "SELECT * FROM MB LIMIT 10 OFFSET 5",
		Sanitize("SELECT * FROM MB LIMIT 3 OFFSET 1 LIMIT 10 offset 5;", Params{}))
	assert.Equal(t, "SELECT * FROM MB LIMIT 10", Sanitize("SELECT * FROM MB LIMIT 10 OFFSET 20 LIMIT 10", Params{}))
}

func TestSanitizeAppendsDefaultLimit(t *testing.T) {
	got := Sanitize("SELECT id,\n   cliente\nFROM MB\nWHERE entregado_bool;;", Params{})
	assert.Equal(t, "SELECT id, cliente FROM MB WHERE entregado_bool LIMIT 200", got)
}

func TestSanitizeKeepsInnerLimit(t *testing.T) {
	got := Sanitize("SELECT * FROM (SELECT * FROM MB LIMIT 3) t ORDER BY id", Params{})
	assert.Equal(t, "SELECT * FROM (SELECT * FROM MB LIMIT 3) t ORDER BY id", got)
}

func TestSanitizePlaceholders(t *testing.T) {
	raw := "SELECT * FROM MB WHERE strftime('%m', fecha_op) = printf('%02d', MES_SELECCIONADO) " +
		"AND strftime('%Y', fecha_op) = 'AÑO_SELECCIONADO' AND dias_para_vencer <= {HORIZONTE_DIAS};"
	got := Sanitize(raw, Params{Month: 6, Year: 2024, HorizonDays: 7})
	assert.Equal(t, "SELECT * FROM MB WHERE strftime('%m', fecha_op) = printf('%02d', 6) "+
		"AND strftime('%Y', fecha_op) = '2024' AND dias_para_vencer <= 7 LIMIT 200", got)

	got = Sanitize("SELECT * FROM MB WHERE m = mes_seleccionado AND y = Anio_Seleccionado AND d <= {{horizonte_dias}} AND z = :MES_SELECCIONADO",
		Params{Month: 3, Year: 2024, HorizonDays: 7})
	assert.Equal(t, "SELECT * FROM MB WHERE m = 3 AND y = 2024 AND d <= 7 AND z = 3 LIMIT 200", got)

	got = Sanitize("SELECT mes_seleccionado_x FROM MB", Params{Month: 3})
	assert.Equal(t, "SELECT mes_seleccionado_x FROM MB LIMIT 200", got, "whole words only")

	got = Sanitize("SELECT ANIO_SELECCIONADO", Params{})
	assert.Equal(t, "SELECT ANIO_SELECCIONADO LIMIT 200", got, "zero params are left untouched")
}

func TestSanitizeUnclosedFence(t *testing.T) {
	assert.Equal(t, "SELECT 1 LIMIT 200", Sanitize("```sql\nSELECT 1", Params{}))
}

func TestIsSafe(t *testing.T) {
	safe := []string{
		"SELECT * FROM MB LIMIT 10",
		"  with x AS (SELECT 1) SELECT * FROM x",
		"SELECT REPLACE(cliente, '.', '') FROM MB",
		"SELECT * FROM MB;",
	}
	for _, s := range safe {
		assert.True(t, IsSafe(s), s)
	}
	unsafe := []string{
		"DROP TABLE x",
		"",
		"UPDATE MB SET monto = 0",
		"SELECT 1; DELETE FROM MB",
		"SELECT * FROM MB WHERE 1=1 AND (DELETE FROM MB)",
		"WITH x AS (SELECT 1) INSERT INTO t SELECT * FROM x",
		"PRAGMA table_info(MB)",
		"SELECT 1 FROM MB; ATTACH DATABASE 'x' AS y",
		"REPLACE INTO MB VALUES (1)",
	}
	for _, s := range unsafe {
		assert.False(t, IsSafe(s), s)
	}
}
