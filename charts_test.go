package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tereborace.com/fenix/internal/result"
)

func TestChartSumsFirstNumericByFirstText(t *testing.T) {
	tb := result.New("patente", "tipo_cliente", "monto")
	tb.Append("AB1234", "Empresa", 1500000.0)
	tb.Append("CD5678", "Empresa", 2000000.0)
	tb.Append("EF9012", "Particular", 300000.0)

	c, ok := chartOf(tb, 10)
	require.True(t, ok)
	assert.Equal(t, "tipo_cliente", c.LabelCol, "identity column skipped")
	assert.Equal(t, "monto", c.ValueCol)
	assert.Equal(t, []string{"Empresa", "Particular"}, c.Labels)
	assert.Equal(t, []float64{3500000, 300000}, c.Values)
}

func TestChartCountsWithoutNumbers(t *testing.T) {
	tb := result.New("marca")
	for _, m := range []string{"Kia", "Toyota", "Toyota", ""} {
		tb.Append(m)
	}
	c, ok := chartOf(tb, 2)
	require.True(t, ok)
	assert.Empty(t, c.ValueCol)
	assert.Equal(t, []string{"Toyota", "Kia"}, c.Labels)
	assert.Equal(t, []float64{2, 1}, c.Values)
}

func TestChartEmpty(t *testing.T) {
	_, ok := chartOf(result.New("a"), 10)
	assert.False(t, ok)
	_, ok = chartOf(nil, 10)
	assert.False(t, ok)

	nums := result.New("n")
	nums.Append(1.0)
	_, ok = chartOf(nums, 10)
	assert.False(t, ok, "no text column")
}
