// Package sqlgen xera o preludio SQL (as vistas MB e FIN) e a descrición do
// esquema que se lle pasa ao modelo.
package sqlgen

import (
	"strings"
	"time"

	"tereborace.com/fenix/internal/canon"
	"tereborace.com/fenix/internal/columns"
	"tereborace.com/fenix/internal/sheet"
)

// Nomes das follas esperadas na planilla.
const (
	SheetMB  = "MODELO_BOT"
	SheetFIN = "FINANZAS"
)

// Options configura a xeración.
type Options struct {
	Mapping columns.MappingFile
	Policy  canon.InvoicingPolicy
	Today   time.Time
}

// Prelude é o SQL que crea as vistas e o esquema en texto.
type Prelude struct {
	SQL       string
	Schema    string
	MBSource  string
	FINSource string
}

// PickSources escolle a folla de servizos (MODELO_BOT, ou a primeira por
// nome que non sexa FINANZAS) e a de finanzas (pode faltar).
func PickSources(tables map[string]*sheet.Table) (mb, fin string) {
	for _, n := range sheet.Names(tables) {
		switch {
		case strings.EqualFold(n, SheetMB):
			mb = n
		case strings.EqualFold(n, SheetFIN):
			fin = n
		}
	}
	if mb == "" {
		for _, n := range sheet.Names(tables) {
			if n != fin {
				mb = n
				break
			}
		}
	}
	return mb, fin
}

// Build compila as regras canónicas a SQLite sobre as táboas crúas.
func Build(tables map[string]*sheet.Table, opts Options) Prelude {
	var p Prelude
	p.MBSource, p.FINSource = PickSources(tables)

	var sqlParts, schema []string
	if t, ok := tables[p.MBSource]; ok {
		v := canon.MBView(opts.Policy)
		cols := columns.ColumnMap(v.Resolve(t.Headers, opts.Mapping.For(t.Name)))
		sqlParts = append(sqlParts, v.CreateSQL(t.Name, cols, opts.Today))
		schema = append(schema, v.Schema())
	}
	if t, ok := tables[p.FINSource]; ok {
		v := canon.FINView()
		cols := columns.ColumnMap(v.Resolve(t.Headers, opts.Mapping.For(t.Name)))
		sqlParts = append(sqlParts, v.CreateSQL(t.Name, cols, opts.Today))
		schema = append(schema, v.Schema())
	}
	p.SQL = strings.Join(sqlParts, "\n")
	p.Schema = strings.Join(schema, "\n")
	return p
}
