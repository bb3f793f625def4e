package canon

import (
	"tereborace.com/fenix/internal/columns"
	"tereborace.com/fenix/internal/sheet"
	"tereborace.com/fenix/internal/textnorm"
)

// ValueCount é un valor normalizado, cantas veces aparece e como se clasifica.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
	Class string `json:"class"`
}

// Calibration expón as decisións do resolutor de columnas e como se
// interpretan os valores dos campos de estado.
type Calibration struct {
	Sheet       string               `json:"sheet"`
	Rows        int                  `json:"rows"`
	Resolutions []columns.Resolution `json:"resolutions"`
	Estados     []ValueCount         `json:"estados_servicio"`
	Facturado   []ValueCount         `json:"facturado_flag"`
}

// Clases dos valores de calibración.
const (
	ClassEntregado   = "entregado"
	ClassEnTaller    = "en_taller"
	ClassFacturado   = "facturado"
	ClassNoFacturado = "no_facturado"
	ClassUnknown     = "desconocido"
)

// Calibrate resolve as columnas MB de t e conta os valores normalizados do
// estado do servizo e do indicador de facturación.
func Calibrate(t *sheet.Table, mapping columns.Mapping) Calibration {
	var c Calibration
	if t == nil {
		c.Resolutions = columns.ResolveAll(nil, MBKeys, mapping)
		return c
	}
	c.Sheet, c.Rows = t.Name, len(t.Rows)
	c.Resolutions = columns.ResolveAll(t.Headers, MBKeys, mapping)
	cols := columns.ColumnMap(c.Resolutions)

	estados := map[string]int{}
	flags := map[string]int{}
	for _, row := range t.Rows {
		if h, ok := cols["estado_servicio"]; ok {
			estados[textnorm.Normalize(row[h])]++
		}
		if h, ok := cols["facturado_flag"]; ok {
			flags[textnorm.Normalize(row[h])]++
		}
	}
	for _, v := range sortedKeys(estados) {
		class := ClassEnTaller
		if Contains(Lit(v), "entreg").Eval(Env{}).Bool {
			class = ClassEntregado
		}
		c.Estados = append(c.Estados, ValueCount{Value: v, Count: estados[v], Class: class})
	}
	for _, v := range sortedKeys(flags) {
		c.Facturado = append(c.Facturado, ValueCount{Value: v, Count: flags[v], Class: classifyFlag(v)})
	}
	return c
}

func classifyFlag(v string) string {
	for _, w := range FacturadoTrue {
		if v == w {
			return ClassFacturado
		}
	}
	for _, w := range FacturadoFalse {
		if v == w {
			return ClassNoFacturado
		}
	}
	return ClassUnknown
}
