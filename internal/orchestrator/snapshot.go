package orchestrator

import (
	"time"

	"tereborace.com/fenix/internal/canon"
	"tereborace.com/fenix/internal/columns"
	"tereborace.com/fenix/internal/llm"
	"tereborace.com/fenix/internal/sheet"
	"tereborace.com/fenix/internal/skills"
	"tereborace.com/fenix/internal/sqlgen"
)

// Snapshot é o estado derivado dunha carga da planilla. É inmutable e
// compártese entre preguntas concorrentes.
type Snapshot struct {
	Tables   map[string]*sheet.Table
	Prelude  sqlgen.Prelude
	Skills   *skills.Engine
	Catalogs llm.Catalogs
	Policy   canon.InvoicingPolicy
	Today    time.Time
	LoadedAt time.Time
}

// SnapshotOptions configura a construción do Snapshot.
type SnapshotOptions struct {
	Mapping columns.MappingFile
	Policy  canon.InvoicingPolicy
	Today   time.Time
}

// NewSnapshot constrúe as vistas MB e FIN (en memoria e como preludio SQL),
// o motor de skills e os catálogos do enrutador.
func NewSnapshot(tables map[string]*sheet.Table, opts SnapshotOptions) *Snapshot {
	if opts.Policy.Rules == nil {
		opts.Policy = canon.FlagStrict
	}
	if opts.Today.IsZero() {
		opts.Today = time.Now()
	}
	p := sqlgen.Build(tables, sqlgen.Options{Mapping: opts.Mapping, Policy: opts.Policy, Today: opts.Today})

	var mb []canon.ServiceRecord
	var fin []canon.Payable
	if t, ok := tables[p.MBSource]; ok {
		mb = canon.BuildMB(t, canon.Options{Mapping: opts.Mapping.For(t.Name), Policy: opts.Policy, Today: opts.Today})
	}
	if t, ok := tables[p.FINSource]; ok {
		fin = canon.BuildFIN(t, canon.Options{Mapping: opts.Mapping.For(t.Name), Policy: opts.Policy, Today: opts.Today})
		if fin == nil {
			fin = []canon.Payable{}
		}
	}
	eng := skills.New(mb, fin, opts.Today)
	return &Snapshot{
		Tables:   tables,
		Prelude:  p,
		Skills:   eng,
		Catalogs: llm.CatalogsFrom(mb),
		Policy:   opts.Policy,
		Today:    eng.Today(),
		LoadedAt: time.Now(),
	}
}
