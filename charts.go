package main

import (
	"sort"

	"github.com/shopspring/decimal"

	"tereborace.com/fenix/internal/result"
)

// ==== datos das gráficas ====

// chart é unha serie simple: unha barra por etiqueta.
type chart struct {
	LabelCol string    `json:"label_col"`
	ValueCol string    `json:"value_col"` // baleiro: conta de filas
	Labels   []string  `json:"labels"`
	Values   []float64 `json:"values"`
}

var idCols = map[string]bool{"id": true, "patente": true, "placa": true, "ot": true}

// pickChartColumns escolle a primeira columna de texto (mellor se non é o
// identificador) e a primeira numérica.
func pickChartColumns(t *result.Table) (label, value int) {
	label, value = -1, -1
	firstText := -1
	for i, c := range t.Columns {
		kind := columnKind(t, i)
		switch {
		case kind == "text" && firstText < 0:
			firstText = i
			if !idCols[c] {
				label = i
			}
		case kind == "text" && label < 0 && !idCols[c]:
			label = i
		case kind == "number" && value < 0:
			value = i
		}
	}
	if label < 0 {
		label = firstText
	}
	return label, value
}

// columnKind mira a primeira cela non nula da columna.
func columnKind(t *result.Table, col int) string {
	for _, r := range t.Rows {
		if col >= len(r) || r[col] == nil {
			continue
		}
		switch r[col].(type) {
		case string:
			return "text"
		case float64, int64, int:
			return "number"
		default:
			return "other"
		}
	}
	return ""
}

// chartOf agrega a táboa: suma da primeira columna numérica por etiqueta, ou
// conta de filas se non hai ningunha. Ordena de maior a menor e corta en limit.
func chartOf(t *result.Table, limit int) (chart, bool) {
	if t.Empty() {
		return chart{}, false
	}
	li, vi := pickChartColumns(t)
	if li < 0 {
		return chart{}, false
	}
	c := chart{LabelCol: t.Columns[li]}
	if vi >= 0 {
		c.ValueCol = t.Columns[vi]
	}

	sums := map[string]decimal.Decimal{}
	var order []string
	for _, r := range t.Rows {
		lab := ""
		if li < len(r) {
			lab = result.Text(r[li])
		}
		if lab == "" {
			lab = "(vacío)"
		}
		if _, ok := sums[lab]; !ok {
			order = append(order, lab)
		}
		inc := decimal.NewFromInt(1)
		if vi >= 0 {
			inc = decimal.Zero
			if vi < len(r) {
				if f, ok := numeric(r[vi]); ok {
					inc = decimal.NewFromFloat(f)
				}
			}
		}
		sums[lab] = sums[lab].Add(inc)
	}

	sort.SliceStable(order, func(i, j int) bool { return sums[order[i]].GreaterThan(sums[order[j]]) })
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	for _, lab := range order {
		c.Labels = append(c.Labels, lab)
		c.Values = append(c.Values, sums[lab].InexactFloat64())
	}
	return c, true
}
