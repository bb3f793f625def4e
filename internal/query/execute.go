package query

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tereborace.com/fenix/internal/canon"
	"tereborace.com/fenix/internal/coerce"
	"tereborace.com/fenix/internal/result"
	"tereborace.com/fenix/internal/skills"
	"tereborace.com/fenix/internal/textnorm"
)

// MaxRows é o tope de filas dunha consulta xenérica.
const MaxRows = 300

// Filters traduce os filtros de texto do Spec aos das skills.
func (s Spec) Filters() skills.Filters {
	return skills.Filters{
		Cliente:        s.ClienteContains,
		TipoCliente:    s.TipoClienteExact,
		Marca:          s.MarcaExact,
		Sucursal:       s.SucursalExact,
		Asesor:         s.AsesorContains,
		Patente:        s.PatenteContains,
		EstadoServicio: s.EstadoServicioContains,
	}
}

// Window calcula a xanela de datas. As xanelas relativas teñen prioridade
// sobre as datas explícitas, e estas sobre mes/ano. ok=false sen xanela.
func (s Spec) Window(today time.Time) (from, to *time.Time, ok bool) {
	today = coerce.Day(today)
	r := s.DateRange
	switch {
	case r.ProximosDias != nil:
		end := today.AddDate(0, 0, *r.ProximosDias)
		return &today, &end, true
	case r.UltimosDias != nil:
		start := today.AddDate(0, 0, -*r.UltimosDias)
		return &start, &today, true
	case r.Start != nil || r.End != nil:
		return r.Start, r.End, true
	case s.Month != nil:
		year := today.Year()
		if s.Year != nil {
			year = *s.Year
		}
		start := time.Date(year, time.Month(*s.Month), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, -1)
		return &start, &end, true
	case s.Year != nil:
		start := time.Date(*s.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(*s.Year, 12, 31, 0, 0, 0, 0, time.UTC)
		return &start, &end, true
	}
	return nil, nil, false
}

// Match indica se r cumpre o Spec (que debe vir validado).
func (s Spec) Match(r canon.ServiceRecord, today time.Time) bool {
	if s.Delivered != nil && r.Entregado != *s.Delivered {
		return false
	}
	if s.Invoiced != nil {
		if *s.Invoiced && !r.Facturado {
			return false
		}
		if !*s.Invoiced && !r.NoFacturado {
			return false
		}
	}
	if !s.Filters().Match(r) {
		return false
	}
	if from, to, ok := s.Window(today); ok && !skills.Between(r.Date(s.DateField), from, to) {
		return false
	}
	return true
}

// Execute aplica o Spec sobre mb: lista (como moito MaxRows filas), conta
// ou suma, con ou sen agrupación.
func Execute(mb []canon.ServiceRecord, spec Spec, today time.Time) (*result.Table, error) {
	spec = spec.Validate()
	var rs []canon.ServiceRecord
	for _, r := range mb {
		if spec.Match(r, today) {
			rs = append(rs, r)
		}
	}
	if spec.GroupBy != GroupNone {
		return grouped(rs, spec), nil
	}
	switch spec.Metric {
	case MetricConteo:
		t := result.New("casos")
		t.Append(int64(len(rs)))
		return t, nil
	case MetricSumaNeto:
		total := sum(rs)
		t := result.New("casos", "monto_neto")
		t.Append(int64(len(rs)), total)
		return t, nil
	}
	return list(rs, spec), nil
}

func list(rs []canon.ServiceRecord, spec Spec) *result.Table {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i].Date(spec.DateField), rs[j].Date(spec.DateField)
		if a.Valid != b.Valid {
			return a.Valid
		}
		if !a.Valid {
			return false
		}
		if spec.SortDesc {
			return a.Time.After(b.Time)
		}
		return a.Time.Before(b.Time)
	})
	limit := MaxRows
	if spec.TopN != nil && *spec.TopN < limit {
		limit = *spec.TopN
	}
	if len(rs) > limit {
		rs = rs[:limit]
	}
	t := result.New("id", "patente", "ot", "cliente", "tipo_cliente", "marca", "sucursal", "asesor",
		"estado_servicio", "fecha_recepcion", "fecha_entrega", "fecha_facturacion", "fecha_op",
		"entregado", "facturado", "dias_en_taller", "monto")
	for _, r := range rs {
		t.Append(r.ID, r.Patente, r.OT, r.Cliente, r.TipoCliente, r.Marca, r.Sucursal, r.Asesor,
			r.EstadoServicio, result.Nullable(r.FechaRecepcion), result.Nullable(r.FechaEntrega),
			result.Nullable(r.FechaFacturacion), result.Nullable(r.FechaOp),
			r.Entregado, r.Facturado, result.Nullable(r.DiasEnTaller), result.Nullable(r.Monto))
	}
	return t
}

func groupValue(r canon.ServiceRecord, by string) string {
	switch by {
	case GroupTipoCliente:
		return r.TipoCliente
	case GroupMarca:
		return r.Marca
	case GroupEstadoServicio:
		return r.EstadoServicio
	default:
		return r.Sucursal
	}
}

func grouped(rs []canon.ServiceRecord, spec Spec) *result.Table {
	type group struct {
		label string
		rows  []canon.ServiceRecord
	}
	var order []*group
	byKey := map[string]*group{}
	for _, r := range rs {
		v := groupValue(r, spec.GroupBy)
		k := textnorm.Normalize(v)
		g, ok := byKey[k]
		if !ok {
			if k == "" {
				v = "(sin dato)"
			}
			g = &group{label: v}
			byKey[k] = g
			order = append(order, g)
		}
		g.rows = append(g.rows, r)
	}

	if spec.Metric == MetricSumaNeto {
		sort.SliceStable(order, func(i, j int) bool { return sum(order[i].rows) > sum(order[j].rows) })
	} else {
		sort.SliceStable(order, func(i, j int) bool { return len(order[i].rows) > len(order[j].rows) })
	}
	if spec.TopN != nil && len(order) > *spec.TopN {
		order = order[:*spec.TopN]
	}
	t := result.New(spec.GroupBy, "casos", "monto_neto")
	for _, g := range order {
		t.Append(g.label, int64(len(g.rows)), sum(g.rows))
	}
	return t
}

func sum(rs []canon.ServiceRecord) float64 {
	total := decimal.Zero
	for _, r := range rs {
		if r.Monto.Valid {
			total = total.Add(decimal.NewFromFloat(r.Monto.Float64))
		}
	}
	f, _ := total.Float64()
	return f
}
