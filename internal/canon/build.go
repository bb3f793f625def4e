// Package canon constrúe as vistas canónicas MB (servizos) e FIN (contas por
// pagar) a partir das follas crúas.
//
// As derivacións decláranse unha soa vez como expresións (rules.go) e
// compílanse a dous destinos: avaliación en memoria (BuildMB, BuildFIN) e
// texto SQL para as vistas do motor (View.CreateSQL).
package canon

import (
	"database/sql"
	"time"

	"tereborace.com/fenix/internal/columns"
	"tereborace.com/fenix/internal/sheet"
)

// ServiceRecord é unha fila da vista MB.
type ServiceRecord struct {
	ID                string
	Patente           string
	OT                string
	Cliente           string
	TipoCliente       string
	Marca             string
	Sucursal          string
	Asesor            string
	EstadoServicio    string
	PresupuestoEstado string
	FacturaNum        string
	FacturadoFlag     string

	FechaRecepcion   sql.NullTime
	FechaEntrega     sql.NullTime
	FechaFacturacion sql.NullTime
	FechaPagoFactura sql.NullTime
	FechaOp          sql.NullTime

	Monto            sql.NullFloat64
	DiasEnTaller     sql.NullInt64
	DiasDesdeEntrega sql.NullInt64

	Entregado   bool
	Facturado   bool
	NoFacturado bool
}

// Date devolve a data do campo indicado (nome de columna de MB).
func (r ServiceRecord) Date(field string) sql.NullTime {
	switch field {
	case "fecha_recepcion":
		return r.FechaRecepcion
	case "fecha_entrega":
		return r.FechaEntrega
	case "fecha_facturacion":
		return r.FechaFacturacion
	case "fecha_pago_factura":
		return r.FechaPagoFactura
	default:
		return r.FechaOp
	}
}

// Payable é unha fila da vista FIN.
type Payable struct {
	FacturaNum     string
	Proveedor      string
	EstadoPago     string
	Vencimiento    sql.NullTime
	Monto          sql.NullFloat64
	PorPagar       bool
	DiasParaVencer sql.NullInt64
}

// Options controla a construción das vistas.
type Options struct {
	Mapping columns.Mapping
	Policy  InvoicingPolicy
	Today   time.Time
}

// BuildMB constrúe a vista MB. É pura: a mesma entrada dá a mesma saída.
// As filas sen patente nin OT mantéñense (ID baleiro).
func BuildMB(t *sheet.Table, opts Options) []ServiceRecord {
	if t == nil {
		return nil
	}
	v := MBView(opts.Policy)
	cols := columns.ColumnMap(v.Resolve(t.Headers, opts.Mapping))
	out := make([]ServiceRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		m := v.evalRow(row, cols, opts.Today)
		out = append(out, ServiceRecord{
			ID:                text(m["id"]),
			Patente:           text(m["patente"]),
			OT:                text(m["ot"]),
			Cliente:           text(m["cliente"]),
			TipoCliente:       text(m["tipo_cliente"]),
			Marca:             text(m["marca"]),
			Sucursal:          text(m["sucursal"]),
			Asesor:            text(m["asesor"]),
			EstadoServicio:    text(m["estado_servicio"]),
			PresupuestoEstado: text(m["presupuesto_estado"]),
			FacturaNum:        text(m["factura_num"]),
			FacturadoFlag:     text(m["facturado_flag"]),
			FechaRecepcion:    date(m["fecha_recepcion"]),
			FechaEntrega:      date(m["fecha_entrega"]),
			FechaFacturacion:  date(m["fecha_facturacion"]),
			FechaPagoFactura:  date(m["fecha_pago_factura"]),
			FechaOp:           date(m["fecha_op"]),
			Monto:             number(m["monto"]),
			DiasEnTaller:      integer(m["dias_en_taller"]),
			DiasDesdeEntrega:  integer(m["dias_desde_entrega"]),
			Entregado:         m["entregado_bool"].Bool,
			Facturado:         m["facturado_bool"].Bool,
			NoFacturado:       m["no_facturado_bool"].Bool,
		})
	}
	return out
}

// BuildFIN constrúe a vista FIN.
func BuildFIN(t *sheet.Table, opts Options) []Payable {
	if t == nil {
		return nil
	}
	v := FINView()
	cols := columns.ColumnMap(v.Resolve(t.Headers, opts.Mapping))
	out := make([]Payable, 0, len(t.Rows))
	for _, row := range t.Rows {
		m := v.evalRow(row, cols, opts.Today)
		out = append(out, Payable{
			FacturaNum:     text(m["factura_num"]),
			Proveedor:      text(m["proveedor"]),
			EstadoPago:     text(m["estado_pago"]),
			Vencimiento:    date(m["vencimiento"]),
			Monto:          number(m["monto"]),
			PorPagar:       m["por_pagar_bool"].Bool,
			DiasParaVencer: integer(m["dias_para_vencer"]),
		})
	}
	return out
}

func text(v Value) string {
	if v.Null {
		return ""
	}
	return v.Text
}

func date(v Value) sql.NullTime {
	if v.Null {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.Date, Valid: true}
}

func number(v Value) sql.NullFloat64 {
	if v.Null {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v.Num, Valid: true}
}

func integer(v Value) sql.NullInt64 {
	if v.Null {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v.Num), Valid: true}
}
