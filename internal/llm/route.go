package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"tereborace.com/fenix/internal/canon"
	"tereborace.com/fenix/internal/coerce"
	"tereborace.com/fenix/internal/query"
	"tereborace.com/fenix/internal/skills"
	"tereborace.com/fenix/internal/textnorm"
)

// MaxCatalogValues limita os valores distintos por catálogo no prompt.
const MaxCatalogValues = 80

// Catalogs son os valores distintos de MB que se lle pasan ao modelo para
// que use valores existentes nos filtros exactos.
type Catalogs struct {
	Marcas       []string
	TiposCliente []string
	Estados      []string
	Sucursales   []string
}

// CatalogsFrom recolle os catálogos das filas de MB.
func CatalogsFrom(mb []canon.ServiceRecord) Catalogs {
	var m, t, e, s distinct
	for _, r := range mb {
		m.add(r.Marca)
		t.add(r.TipoCliente)
		e.add(r.EstadoServicio)
		s.add(r.Sucursal)
	}
	return Catalogs{m.list(), t.list(), e.list(), s.list()}
}

type distinct struct {
	seen map[string]bool
	vals []string
}

func (d *distinct) add(v string) {
	v = strings.TrimSpace(v)
	k := textnorm.Normalize(v)
	if k == "" || d.seen[k] {
		return
	}
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	d.seen[k] = true
	d.vals = append(d.vals, v)
}

func (d *distinct) list() []string {
	sort.Strings(d.vals)
	if len(d.vals) > MaxCatalogValues {
		return d.vals[:MaxCatalogValues]
	}
	return d.vals
}

// Intent é a decisión do enrutador: unha métrica do catálogo (Metric e
// Params) ou un QuerySpec.
type Intent struct {
	Metric string
	Params skills.Params
	Spec   *query.Spec
}

type wireRange struct {
	Start        *string `json:"start"`
	End          *string `json:"end"`
	ProximosDias *int    `json:"proximos_dias"`
	UltimosDias  *int    `json:"ultimos_dias"`
}

// wireSpec é query.Spec coas datas como texto.
type wireSpec struct {
	query.Spec
	DateRange wireRange `json:"date_range"`
}

type wireReply struct {
	Metric string        `json:"metric"`
	Params skills.Params `json:"params"`
	Spec   *wireSpec     `json:"spec"`
}

var reJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

func extractJSON(raw string) string {
	if m := reJSON.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	i, j := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if i < 0 || j < i {
		return ""
	}
	return raw[i : j+1]
}

func parseDay(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, ok := coerce.ParseDate(*s)
	if !ok {
		return nil, fmt.Errorf("fecha inválida %q", *s)
	}
	return &t, nil
}

// ParseIntent valida estritamente a resposta JSON do modelo.
func ParseIntent(raw string) (Intent, error) {
	body := extractJSON(raw)
	if body == "" {
		return Intent{}, fmt.Errorf("respuesta sin JSON")
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	var w wireReply
	if err := dec.Decode(&w); err != nil {
		return Intent{}, fmt.Errorf("JSON inválido: %w", err)
	}

	switch {
	case w.Metric != "":
		s, ok := skills.Lookup(w.Metric)
		if !ok {
			return Intent{}, fmt.Errorf("métrica desconocida %q", w.Metric)
		}
		return Intent{Metric: s.Metric, Params: w.Params}, nil
	case w.Spec != nil:
		spec := w.Spec.Spec
		var err error
		if spec.DateRange.Start, err = parseDay(w.Spec.DateRange.Start); err != nil {
			return Intent{}, err
		}
		if spec.DateRange.End, err = parseDay(w.Spec.DateRange.End); err != nil {
			return Intent{}, err
		}
		spec.DateRange.ProximosDias = w.Spec.DateRange.ProximosDias
		spec.DateRange.UltimosDias = w.Spec.DateRange.UltimosDias
		spec = spec.Validate()
		return Intent{Spec: &spec}, nil
	}
	return Intent{}, fmt.Errorf("sin métrica ni consulta")
}

// Route pídelle ao modelo que resolva a pregunta contra o catálogo de
// métricas ou a traduza a un QuerySpec.
func (g *Generator) Route(ctx context.Context, question string, catalog []skills.Skill, cats Catalogs) Outcome[Intent] {
	raw, diag := g.complete(ctx, "route", routeSystem, routePrompt(question, catalog, cats, g.today()))
	if diag != "" {
		return Outcome[Intent]{Diagnostic: diag}
	}
	in, err := ParseIntent(raw)
	if err != nil {
		g.Log.Debug().Err(err).Msg("route reply rejected")
		return failed[Intent]("LLM route: %v", err)
	}
	g.Log.Debug().Str("metric", in.Metric).Bool("spec", in.Spec != nil).Msg("route resolved")
	return Outcome[Intent]{Value: in}
}
