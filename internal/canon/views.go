package canon

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tereborace.com/fenix/internal/columns"
	"tereborace.com/fenix/internal/textnorm"
)

// ==== sinónimos ====

// MBKeys son os campos lóxicos da folla de servizos (MODELO_BOT).
var MBKeys = columns.Keys{
	{Field: "patente", Synonyms: []string{"patente", "placa patente", "placa", "ppu"}},
	{Field: "ot", Synonyms: []string{"# ot", "n° ot", "nro ot", "orden de trabajo", "orden trabajo", "ot"}},
	{Field: "cliente", Synonyms: []string{"nombre cliente", "cliente", "razon social", "r. social"}},
	{Field: "tipo_cliente", Synonyms: []string{"tipo cliente", "tipo de cliente", "segmento", "categoria cliente", "clase cliente"}},
	{Field: "marca", Synonyms: []string{"marca"}},
	{Field: "sucursal", Synonyms: []string{"sucursal", "sede"}},
	{Field: "asesor", Synonyms: []string{"asesor"}},
	{Field: "estado_servicio", Synonyms: []string{"estado servicio", "estado del servicio", "estado entrega", "estado de entrega"}},
	{Field: "presupuesto_estado", Synonyms: []string{"estado presupuesto", "estado del presupuesto", "presupuesto"}},
	{Field: "fecha_recepcion", Synonyms: []string{"fecha recepcion", "fecha de recepcion", "fecha ingreso", "fecha de ingreso"}},
	{Field: "fecha_entrega", Synonyms: []string{"fecha entrega", "fecha de entrega"}},
	{Field: "fecha_facturacion", Synonyms: []string{"fecha facturacion", "fecha de facturacion", "fecha factura"}},
	{Field: "fecha_pago_factura", Synonyms: []string{"fecha pago factura", "fecha de pago", "fecha pago"}},
	{Field: "factura_num", Synonyms: []string{"n° factura", "numero factura", "nro factura", "folio factura", "factura"}},
	{Field: "facturado_flag", Synonyms: []string{"facturado", "estado facturacion", "estado de facturacion"}},
	{Field: "monto", Synonyms: []string{"monto", "total", "monto neto", "total neto", "venta neta", "monto principal neto", "valor"}},
	{Field: "dias_en_planta", Synonyms: []string{"numero dias en planta", "dias en planta", "dias en taller"}},
}

// FINKeys son os campos lóxicos da folla de finanzas.
var FINKeys = columns.Keys{
	{Field: "factura_num", Synonyms: []string{"n° factura", "folio", "folio factura", "numero factura", "nro factura"}},
	{Field: "proveedor", Synonyms: []string{"proveedor", "nombre proveedor", "razon social", "cliente"}},
	{Field: "vencimiento", Synonyms: []string{"fecha vencimiento", "vencimiento", "fecha de vencimiento", "f. vencimiento"}},
	{Field: "estado_pago", Synonyms: []string{"estado pago", "estado de pago", "pagado", "pago"}},
	{Field: "monto", Synonyms: []string{"monto", "total", "monto neto", "monto principal neto", "importe", "valor"}},
}

// ==== vocabularios (xa normalizados) ====

// FacturadoTrue son os valores do indicador que significan "facturado".
var FacturadoTrue = normSet(
	"si", "sí", "si.", "si !", "si ok", "sí ok", "facturado", "facturada",
	"emitida", "emitido", "ok", "con factura", "1", "true",
)

// FacturadoFalse son os valores que significan "sen facturar".
var FacturadoFalse = normSet(
	"no", "no.", "no !", "pendiente", "por facturar", "sin factura",
	"no emitida", "no emitido", "0", "false", "",
)

// PagoPendiente son os estados de pago que contan como "por pagar".
var PagoPendiente = normSet(
	"pendiente", "por pagar", "no", "impago", "abierta", "abierto", "sin pago",
)

func normSet(vals ...string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		n := textnorm.Normalize(v)
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// ==== política de facturación ====

// InvoicingPolicy decide se un caso está facturado. Só hai dúas, con nome.
type InvoicingPolicy struct {
	Name  string
	Rules func() (facturado, noFacturado Expr)
}

// FlagStrict: o indicador manda. Facturado se está no vocabulario certo;
// calquera outro valor (baleiro ou descoñecido) é "sen facturar".
var FlagStrict = InvoicingPolicy{
	Name: "flag_strict",
	Rules: func() (Expr, Expr) {
		f := InSet(Norm(Col("facturado_flag")), FacturadoTrue)
		return f, Not(f)
	},
}

// EvidenceBased: sen facturar se falta o número, falta a data ou o
// indicador está no vocabulario falso.
var EvidenceBased = InvoicingPolicy{
	Name: "evidence_based",
	Rules: func() (Expr, Expr) {
		nf := Or(
			IsEmpty(Col("factura_num")),
			IsNull(DateOf(Col("fecha_facturacion"))),
			InSet(Norm(Col("facturado_flag")), FacturadoFalse),
		)
		return Not(nf), nf
	},
}

// PolicyByName devolve a política configurada; baleiro é FlagStrict.
func PolicyByName(name string) (InvoicingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", FlagStrict.Name, "flag-strict", "strict":
		return FlagStrict, nil
	case EvidenceBased.Name, "evidence-based", "evidence":
		return EvidenceBased, nil
	}
	return InvoicingPolicy{}, fmt.Errorf("unknown invoicing policy %q", name)
}

// ==== vistas ====

// ViewColumn é unha columna de saída e a súa derivación.
type ViewColumn struct {
	Name string
	Expr Expr
}

// View é a táboa de regras dunha vista canónica.
type View struct {
	Name    string
	Keys    columns.Keys
	Columns []ViewColumn
}

// MBView é a táboa de regras da vista MB para a política indicada.
func MBView(policy InvoicingPolicy) View {
	if policy.Rules == nil {
		policy = FlagStrict
	}
	facturado, noFacturado := policy.Rules()
	recepcion := DateOf(Col("fecha_recepcion"))
	entrega := DateOf(Col("fecha_entrega"))
	facturacion := DateOf(Col("fecha_facturacion"))
	return View{
		Name: "MB",
		Keys: MBKeys,
		Columns: []ViewColumn{
			{"id", Coalesce(NullIfEmpty(Col("patente")), NullIfEmpty(Col("ot")))},
			{"patente", Col("patente")},
			{"ot", Col("ot")},
			{"cliente", Col("cliente")},
			{"tipo_cliente", Col("tipo_cliente")},
			{"marca", Col("marca")},
			{"sucursal", Col("sucursal")},
			{"asesor", Col("asesor")},
			{"estado_servicio", Col("estado_servicio")},
			{"presupuesto_estado", Col("presupuesto_estado")},
			{"fecha_recepcion", recepcion},
			{"fecha_entrega", entrega},
			{"fecha_facturacion", facturacion},
			{"fecha_pago_factura", DateOf(Col("fecha_pago_factura"))},
			{"factura_num", Col("factura_num")},
			{"facturado_flag", Col("facturado_flag")},
			{"monto", NumberOf(Col("monto"))},
			{"dias_en_taller", Coalesce(
				IntOf(NumberOf(Col("dias_en_planta"))),
				DaysBetween(recepcion, Coalesce(entrega, Today())),
			)},
			{"dias_desde_entrega", DaysBetween(entrega, Today())},
			{"entregado_bool", Contains(Norm(Col("estado_servicio")), "entreg")},
			{"facturado_bool", facturado},
			{"no_facturado_bool", noFacturado},
			{"fecha_op", Coalesce(facturacion, entrega, recepcion)},
		},
	}
}

// FINView é a táboa de regras da vista FIN.
func FINView() View {
	venc := DateOf(Col("vencimiento"))
	return View{
		Name: "FIN",
		Keys: FINKeys,
		Columns: []ViewColumn{
			{"factura_num", Col("factura_num")},
			{"proveedor", Col("proveedor")},
			{"vencimiento", venc},
			{"estado_pago", Col("estado_pago")},
			{"monto", NumberOf(Col("monto"))},
			{"por_pagar_bool", Or(
				IsEmpty(Col("estado_pago")),
				InSet(Norm(Col("estado_pago")), PagoPendiente),
			)},
			{"dias_para_vencer", DaysBetween(Today(), venc)},
		},
	}
}

// Resolve busca as columnas reais da vista en headers.
func (v View) Resolve(headers []string, explicit columns.Mapping) []columns.Resolution {
	return columns.ResolveAll(headers, v.Keys, explicit)
}

// CreateSQL compila a vista a SQLite sobre a táboa source. As columnas
// resoltas veñen de Resolve.
func (v View) CreateSQL(source string, cols map[string]string, today time.Time) string {
	env := SQLEnv{Columns: cols, Today: today}
	sel := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		sel[i] = c.Expr.SQL(env) + " AS " + c.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "DROP VIEW IF EXISTS %s;\n", v.Name)
	fmt.Fprintf(&b, "CREATE VIEW %s AS SELECT\n  %s\nFROM %s;\n",
		v.Name, strings.Join(sel, ",\n  "), QuoteIdent(source))
	return b.String()
}

// Schema describe a vista en texto plano: "View MB(id TEXT, …)".
func (v View) Schema() string {
	parts := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		parts[i] = c.Name + " " + c.Expr.Kind().SQLType()
	}
	return fmt.Sprintf("View %s(%s)", v.Name, strings.Join(parts, ", "))
}

// ColumnNames devolve os nomes das columnas de saída en orde.
func (v View) ColumnNames() []string {
	out := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		out[i] = c.Name
	}
	return out
}

// evalRow avalía todas as columnas da vista para unha fila.
func (v View) evalRow(row map[string]string, cols map[string]string, today time.Time) map[string]Value {
	env := Env{Row: row, Columns: cols, Today: today}
	out := make(map[string]Value, len(v.Columns))
	for _, c := range v.Columns {
		out[c.Name] = c.Expr.Eval(env)
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
