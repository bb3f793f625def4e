package skills

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tereborace.com/fenix/internal/result"
	"tereborace.com/fenix/internal/textnorm"
)

// Nomes das métricas (tal como as devolve o enrutador semántico).
const (
	MetricEntregadosSinFactura  = "entregados_sin_factura"
	MetricFacturasPorPagar      = "facturas_por_pagar"
	MetricTopEnTaller           = "top_en_taller"
	MetricFacturacionPorMesTipo = "facturacion_por_mes_tipo"
	MetricEntregasProximosDias  = "entregas_proximos_dias_sin_factura"
	MetricSinAprobacion         = "sin_aprobacion"
)

// Skill describe unha skill para a UI e para a base semántica do modelo.
type Skill struct {
	Metric   string   `json:"metric" yaml:"metric"`
	Title    string   `json:"title" yaml:"title"`
	Synonyms []string `json:"synonyms" yaml:"synonyms"`
}

// Catalog son as seis skills en orde de presentación.
var Catalog = []Skill{
	{MetricEntregadosSinFactura, "Entregados sin factura", []string{
		"entregados sin factura", "entregados pendientes de facturar", "entregados no facturados",
		"vehiculos entregados sin facturar"}},
	{MetricFacturasPorPagar, "Facturas por pagar", []string{
		"facturas por pagar", "cuentas por pagar", "pagos pendientes", "facturas por vencer", "proveedores por pagar"}},
	{MetricTopEnTaller, "Top en taller", []string{
		"top en taller", "mas dias en taller", "vehiculos en taller", "mas tiempo en planta", "atrasados en taller"}},
	{MetricFacturacionPorMesTipo, "Facturación por mes y tipo", []string{
		"facturacion por mes", "facturacion por tipo de cliente", "ventas del mes", "monto facturado por tipo"}},
	{MetricEntregasProximosDias, "Entregas próximos días sin factura", []string{
		"entregas proximos dias", "entregas de la semana sin factura", "proximas entregas sin facturar"}},
	{MetricSinAprobacion, "Sin aprobación", []string{
		"sin aprobacion", "pendientes de aprobacion", "presupuestos sin aprobar", "esperando aprobacion"}},
}

// Lookup busca unha skill polo nome da métrica ou por un sinónimo.
func Lookup(name string) (Skill, bool) {
	n := textnorm.Normalize(strings.ReplaceAll(name, "_", " "))
	for _, s := range Catalog {
		if n == textnorm.Normalize(strings.ReplaceAll(s.Metric, "_", " ")) {
			return s, true
		}
		for _, syn := range s.Synonyms {
			if n == textnorm.Normalize(syn) {
				return s, true
			}
		}
	}
	return Skill{}, false
}

// ErrCatalogFile: o ficheiro de sinónimos non se puido ler.
var ErrCatalogFile = errors.New("catalog file")

// WithSynonyms devolve unha copia de Catalog cos sinónimos extra engadidos
// (métrica → sinónimos).
func WithSynonyms(extra map[string][]string) ([]Skill, error) {
	out := make([]Skill, len(Catalog))
	for i, s := range Catalog {
		s.Synonyms = append([]string(nil), s.Synonyms...)
		out[i] = s
	}
	for metric, syns := range extra {
		found := false
		for i := range out {
			if out[i].Metric == metric {
				out[i].Synonyms = append(out[i].Synonyms, syns...)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: métrica desconocida %q", ErrCatalogFile, metric)
		}
	}
	return out, nil
}

// LoadCatalog le un YAML "métrica: [sinónimos]" e devolve o catálogo
// ampliado.
func LoadCatalog(path string) ([]Skill, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogFile, err)
	}
	var extra map[string][]string
	if err := yaml.Unmarshal(b, &extra); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCatalogFile, path, err)
	}
	return WithSynonyms(extra)
}

// Params son os argumentos comúns das skills.
type Params struct {
	Filters     Filters `json:"filters"`
	HorizonDays int     `json:"horizon_days,omitempty"`
	TopN        int     `json:"top_n,omitempty"`
	Month       int     `json:"month,omitempty"`
	Year        int     `json:"year,omitempty"`
	Proveedor   string  `json:"proveedor,omitempty"`
}

// Run executa a skill da métrica indicada.
func (e *Engine) Run(metric string, p Params) (*result.Table, error) {
	s, ok := Lookup(metric)
	if !ok {
		return nil, fmt.Errorf("skill desconocida %q", metric)
	}
	switch s.Metric {
	case MetricEntregadosSinFactura:
		return e.EntregadosSinFactura(p.Filters)
	case MetricFacturasPorPagar:
		return e.FacturasPorPagar(p.HorizonDays, p.Proveedor)
	case MetricTopEnTaller:
		return e.TopEnTaller(p.TopN, p.Filters)
	case MetricFacturacionPorMesTipo:
		month, year := p.Month, p.Year
		if month == 0 {
			month = int(e.today.Month())
		}
		if year == 0 {
			year = e.today.Year()
		}
		return e.FacturacionPorMesTipo(month, year)
	case MetricEntregasProximosDias:
		return e.EntregasProximosDiasSinFactura(p.HorizonDays)
	default:
		return e.SinAprobacion()
	}
}
