// Package query define QuerySpec, a representación estruturada dunha
// pregunta, e a súa execución xenérica sobre a vista MB.
package query

import (
	"strings"
	"time"

	"tereborace.com/fenix/internal/textnorm"
)

// Campos de data que pode usar unha pregunta.
const (
	DateFacturacion = "fecha_facturacion"
	DateEntrega     = "fecha_entrega"
	DateRecepcion   = "fecha_recepcion"
	DatePago        = "fecha_pago_factura"
	DateOp          = "fecha_op"
)

// Agrupacións.
const (
	GroupNone           = "ninguno"
	GroupTipoCliente    = "tipo_cliente"
	GroupMarca          = "marca"
	GroupEstadoServicio = "estado_servicio"
	GroupSucursal       = "sucursal"
)

// Métricas.
const (
	MetricLista    = "lista"
	MetricConteo   = "conteo"
	MetricSumaNeto = "suma_neto"
)

var (
	dateFields = []string{DateFacturacion, DateEntrega, DateRecepcion, DatePago, DateOp}
	groupBys   = []string{GroupNone, GroupTipoCliente, GroupMarca, GroupEstadoServicio, GroupSucursal}
	metrics    = []string{MetricLista, MetricConteo, MetricSumaNeto}
)

// DateFields, GroupBys e Metrics son os valores válidos dos enums.
func DateFields() []string { return append([]string(nil), dateFields...) }
func GroupBys() []string   { return append([]string(nil), groupBys...) }
func Metrics() []string    { return append([]string(nil), metrics...) }

// DateRange é unha xanela de datas: explícita (Start/End) ou relativa a hoxe.
type DateRange struct {
	Start        *time.Time `json:"start,omitempty"`
	End          *time.Time `json:"end,omitempty"`
	ProximosDias *int       `json:"proximos_dias,omitempty"`
	UltimosDias  *int       `json:"ultimos_dias,omitempty"`
}

// Spec é unha pregunta estruturada. Créase por pregunta, valídase e
// consómese unha vez.
type Spec struct {
	Delivered *bool `json:"delivered,omitempty"`
	Invoiced  *bool `json:"invoiced,omitempty"`

	DateField string    `json:"date_field"`
	DateRange DateRange `json:"date_range"`
	Month     *int      `json:"month,omitempty"`
	Year      *int      `json:"year,omitempty"`

	ClienteContains        string `json:"cliente_contains,omitempty"`
	PatenteContains        string `json:"patente_contains,omitempty"`
	MarcaExact             string `json:"marca_exact,omitempty"`
	TipoClienteExact       string `json:"tipo_cliente_exact,omitempty"`
	SucursalExact          string `json:"sucursal_exact,omitempty"`
	AsesorContains         string `json:"asesor_contains,omitempty"`
	EstadoServicioContains string `json:"estado_servicio_contains,omitempty"`

	GroupBy  string `json:"group_by"`
	Metric   string `json:"metric"`
	TopN     *int   `json:"top_n,omitempty"`
	SortDesc bool   `json:"sort_desc"`
}

func oneOf(v string, valid []string, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, x := range valid {
		if v == x {
			return v
		}
	}
	return def
}

// Validate normaliza o Spec: os enums descoñecidos pasan ao seu valor por
// defecto e os números fóra de rango desaparecen.
func (s Spec) Validate() Spec {
	s.DateField = oneOf(s.DateField, dateFields, DateOp)
	s.GroupBy = oneOf(s.GroupBy, groupBys, GroupNone)
	s.Metric = oneOf(s.Metric, metrics, MetricLista)
	if s.GroupBy != GroupNone && s.Metric == MetricLista {
		s.Metric = MetricConteo
	}
	if s.Month != nil && (*s.Month < 1 || *s.Month > 12) {
		s.Month = nil
	}
	if s.Year != nil && (*s.Year < 1900 || *s.Year > 2200) {
		s.Year = nil
	}
	if s.TopN != nil && *s.TopN <= 0 {
		s.TopN = nil
	}
	if d := s.DateRange.ProximosDias; d != nil && *d < 0 {
		s.DateRange.ProximosDias = nil
	}
	if d := s.DateRange.UltimosDias; d != nil && *d < 0 {
		s.DateRange.UltimosDias = nil
	}
	s.ClienteContains = strings.TrimSpace(s.ClienteContains)
	s.PatenteContains = strings.TrimSpace(s.PatenteContains)
	s.MarcaExact = strings.TrimSpace(s.MarcaExact)
	s.TipoClienteExact = strings.TrimSpace(s.TipoClienteExact)
	s.SucursalExact = strings.TrimSpace(s.SucursalExact)
	s.AsesorContains = strings.TrimSpace(s.AsesorContains)
	s.EstadoServicioContains = strings.TrimSpace(s.EstadoServicioContains)
	return s
}

// HasConstraints indica se o Spec restrinxe algo (flags, datas ou texto).
func (s Spec) HasConstraints() bool {
	return s.Delivered != nil || s.Invoiced != nil ||
		s.DateRange.Start != nil || s.DateRange.End != nil ||
		s.DateRange.ProximosDias != nil || s.DateRange.UltimosDias != nil ||
		s.Month != nil || s.Year != nil ||
		textnorm.Normalize(s.ClienteContains+s.PatenteContains+s.MarcaExact+s.TipoClienteExact+
			s.SucursalExact+s.AsesorContains+s.EstadoServicioContains) != ""
}

// Bool e Int axudan a construír os campos opcionais.
func Bool(b bool) *bool { return &b }
func Int(n int) *int    { return &n }
