// Package skills responde as seis preguntas prioritarias do negocio con
// regras deterministas sobre as vistas MB e FIN.
package skills

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tereborace.com/fenix/internal/canon"
	"tereborace.com/fenix/internal/coerce"
	"tereborace.com/fenix/internal/result"
	"tereborace.com/fenix/internal/textnorm"
)

// MaxRows é o tope de filas das skills de listado.
const MaxRows = 200

var (
	// ErrNoFinanzas: a planilla non ten folla de finanzas.
	ErrNoFinanzas = errors.New("no hay hoja FINANZAS")
	// ErrInvalidMonth: mes fóra de 1..12.
	ErrInvalidMonth = errors.New("mes inválido")
)

// Engine executa as skills sobre unha instantánea das vistas.
// Non ten estado mutable: pódese usar desde varias gorutinas.
type Engine struct {
	mb    []canon.ServiceRecord
	fin   []canon.Payable
	today time.Time
}

// New crea o motor. fin nil significa que non hai folla de finanzas.
func New(mb []canon.ServiceRecord, fin []canon.Payable, today time.Time) *Engine {
	return &Engine{mb: mb, fin: fin, today: coerce.Day(today)}
}

// Today é a data de referencia do motor.
func (e *Engine) Today() time.Time { return e.today }

// MB devolve a vista de servizos.
func (e *Engine) MB() []canon.ServiceRecord { return e.mb }

func (e *Engine) horizon(days int) (time.Time, time.Time) {
	if days < 0 {
		days = 0
	}
	return e.today, e.today.AddDate(0, 0, days)
}

func capRows(rs []canon.ServiceRecord, n int) []canon.ServiceRecord {
	if n >= 0 && len(rs) > n {
		return rs[:n]
	}
	return rs
}

// EntregadosSinFactura: entregados e sen facturar, por data de entrega
// descendente.
func (e *Engine) EntregadosSinFactura(f Filters) (*result.Table, error) {
	var rs []canon.ServiceRecord
	for _, r := range e.mb {
		if r.Entregado && r.NoFacturado && f.Match(r) && f.InRange(r.FechaEntrega) {
			rs = append(rs, r)
		}
	}
	sort.SliceStable(rs, func(i, j int) bool { return byDate(rs[i].FechaEntrega, rs[j].FechaEntrega, true) })
	t := result.New("id", "patente", "ot", "cliente", "tipo_cliente", "marca", "sucursal", "asesor",
		"estado_servicio", "fecha_entrega", "dias_desde_entrega", "factura_num", "monto")
	for _, r := range capRows(rs, MaxRows) {
		t.Append(r.ID, r.Patente, r.OT, r.Cliente, r.TipoCliente, r.Marca, r.Sucursal, r.Asesor,
			r.EstadoServicio, result.Nullable(r.FechaEntrega), result.Nullable(r.DiasDesdeEntrega),
			r.FacturaNum, result.Nullable(r.Monto))
	}
	return t, nil
}

// FacturasPorPagar: facturas por pagar que vencen entre hoxe e hoxe+h.
func (e *Engine) FacturasPorPagar(horizonDays int, proveedor string) (*result.Table, error) {
	if e.fin == nil {
		return nil, ErrNoFinanzas
	}
	from, to := e.horizon(horizonDays)
	var ps []canon.Payable
	for _, p := range e.fin {
		if p.PorPagar && Between(p.Vencimiento, &from, &to) && contains(p.Proveedor, proveedor) {
			ps = append(ps, p)
		}
	}
	sort.SliceStable(ps, func(i, j int) bool { return byDate(ps[i].Vencimiento, ps[j].Vencimiento, false) })
	if len(ps) > MaxRows {
		ps = ps[:MaxRows]
	}
	t := result.New("factura_num", "proveedor", "vencimiento", "dias_para_vencer", "estado_pago", "monto")
	for _, p := range ps {
		t.Append(p.FacturaNum, p.Proveedor, result.Nullable(p.Vencimiento), result.Nullable(p.DiasParaVencer),
			p.EstadoPago, result.Nullable(p.Monto))
	}
	return t, nil
}

// TopEnTaller: os topN casos non entregados con máis días no taller.
func (e *Engine) TopEnTaller(topN int, f Filters) (*result.Table, error) {
	if topN <= 0 {
		topN = 10
	}
	var rs []canon.ServiceRecord
	for _, r := range e.mb {
		if !r.Entregado && f.Match(r) {
			rs = append(rs, r)
		}
	}
	sort.SliceStable(rs, func(i, j int) bool { return byInt(rs[i].DiasEnTaller, rs[j].DiasEnTaller, true) })
	t := result.New("id", "patente", "ot", "cliente", "tipo_cliente", "marca", "sucursal", "asesor",
		"estado_servicio", "fecha_recepcion", "dias_en_taller")
	for _, r := range capRows(rs, topN) {
		t.Append(r.ID, r.Patente, r.OT, r.Cliente, r.TipoCliente, r.Marca, r.Sucursal, r.Asesor,
			r.EstadoServicio, result.Nullable(r.FechaRecepcion), result.Nullable(r.DiasEnTaller))
	}
	return t, nil
}

// FacturacionPorMesTipo agrupa por tipo de cliente os casos con fecha_op no
// mes indicado e suma o monto neto.
func (e *Engine) FacturacionPorMesTipo(month, year int) (*result.Table, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}
	type group struct {
		tipo  string
		total decimal.Decimal
		casos int64
	}
	var order []string
	groups := map[string]*group{}
	for _, r := range e.mb {
		if !r.FechaOp.Valid || r.FechaOp.Time.Year() != year || int(r.FechaOp.Time.Month()) != month {
			continue
		}
		key := textnorm.Normalize(r.TipoCliente)
		g, ok := groups[key]
		if !ok {
			label := r.TipoCliente
			if key == "" {
				label = "(sin tipo)"
			}
			g = &group{tipo: label}
			groups[key] = g
			order = append(order, key)
		}
		g.casos++
		if r.Monto.Valid {
			g.total = g.total.Add(decimal.NewFromFloat(r.Monto.Float64))
		}
	}
	gs := make([]*group, 0, len(order))
	for _, k := range order {
		gs = append(gs, groups[k])
	}
	sort.SliceStable(gs, func(i, j int) bool { return gs[i].total.GreaterThan(gs[j].total) })
	t := result.New("tipo_cliente", "casos", "monto_neto")
	for _, g := range gs {
		total, _ := g.total.Float64()
		t.Append(g.tipo, g.casos, total)
	}
	return t, nil
}

// EntregasProximosDiasSinFactura: entregados sen facturar cuxa data de
// entrega cae entre hoxe e hoxe+h.
func (e *Engine) EntregasProximosDiasSinFactura(horizonDays int) (*result.Table, error) {
	from, to := e.horizon(horizonDays)
	var rs []canon.ServiceRecord
	for _, r := range e.mb {
		if r.Entregado && r.NoFacturado && Between(r.FechaEntrega, &from, &to) {
			rs = append(rs, r)
		}
	}
	sort.SliceStable(rs, func(i, j int) bool { return byDate(rs[i].FechaEntrega, rs[j].FechaEntrega, false) })
	t := result.New("id", "patente", "ot", "cliente", "tipo_cliente", "fecha_entrega", "estado_servicio",
		"facturado_flag", "monto")
	for _, r := range capRows(rs, MaxRows) {
		t.Append(r.ID, r.Patente, r.OT, r.Cliente, r.TipoCliente, result.Nullable(r.FechaEntrega),
			r.EstadoServicio, r.FacturadoFlag, result.Nullable(r.Monto))
	}
	return t, nil
}

// SinAprobacion aproxima "pendente de aprobación" como non entregado e sen
// facturar: non hai un campo de aprobación fiable.
func (e *Engine) SinAprobacion() (*result.Table, error) {
	var rs []canon.ServiceRecord
	for _, r := range e.mb {
		if !r.Entregado && r.NoFacturado {
			rs = append(rs, r)
		}
	}
	sort.SliceStable(rs, func(i, j int) bool { return byInt(rs[i].DiasEnTaller, rs[j].DiasEnTaller, true) })
	t := result.New("id", "patente", "ot", "cliente", "presupuesto_estado", "estado_servicio",
		"fecha_recepcion", "dias_en_taller")
	for _, r := range capRows(rs, MaxRows) {
		t.Append(r.ID, r.Patente, r.OT, r.Cliente, r.PresupuestoEstado, r.EstadoServicio,
			result.Nullable(r.FechaRecepcion), result.Nullable(r.DiasEnTaller))
	}
	return t, nil
}
