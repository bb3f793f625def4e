package llm

import (
	"fmt"
	"strings"
	"time"

	"tereborace.com/fenix/internal/query"
	"tereborace.com/fenix/internal/skills"
	"tereborace.com/fenix/internal/sqlguard"
)

const sqlSystem = "Devuelve SOLO SQL SQLite seguro (una consulta SELECT); nada de texto extra."

// Equivalencias de negocio que se lle explican ao modelo.
const equivalences = `- 'entregados' = MB.entregado_bool = 1
- 'en taller' / 'no entregados' = MB.entregado_bool = 0
- 'facturados' = MB.facturado_bool = 1
- 'no facturado' / 'sin factura' = MB.no_facturado_bool = 1
- 'por pagar' = FIN.por_pagar_bool = 1
- Para facturación mensual usa MB.fecha_op (fecha de facturación, si no entrega, si no recepción).`

const dialect = `- Devuelve SOLO una consulta SQL SQLite válida y segura (sin comentarios ni explicación).
- Usa las vistas MB y FIN. Evita SELECT *.
- Si usas MB, selecciona primero MB.id.
- Las fechas son texto 'YYYY-MM-DD'; compáralas con date('%[1]s') (hoy) y date('%[1]s', '+N days').
- Para mes y año usa strftime('%%m', col) y strftime('%%Y', col) con ceros a la izquierda.
- Los booleanos valen 1 o 0.
- Un solo LIMIT (200) si no se especifica. No agregues ';'.`

const fewShot = `Q: ¿Cuáles son los vehículos entregados que aún no han sido facturados?
A:
SELECT MB.id, MB.cliente, MB.fecha_entrega, MB.dias_desde_entrega
FROM MB
WHERE MB.entregado_bool = 1 AND MB.no_facturado_bool = 1
ORDER BY MB.fecha_entrega DESC
LIMIT 200

Q: ¿Cuántos días tienen los vehículos en el taller?
A:
SELECT MB.id, MB.cliente, MB.fecha_recepcion, MB.dias_en_taller
FROM MB
WHERE MB.entregado_bool = 0
ORDER BY MB.dias_en_taller DESC
LIMIT 200

Q: Facturación de marzo por tipo de cliente
A:
SELECT MB.tipo_cliente, COUNT(*) AS casos, SUM(MB.monto) AS monto_neto
FROM MB
WHERE strftime('%m', MB.fecha_op) = '03' AND strftime('%Y', MB.fecha_op) = 'ANIO_SELECCIONADO'
GROUP BY MB.tipo_cliente
ORDER BY monto_neto DESC
LIMIT 200

Q: ¿Cuáles son las facturas que se deben pagar en los próximos días?
A:
SELECT FIN.factura_num, FIN.proveedor, FIN.vencimiento, FIN.monto
FROM FIN
WHERE FIN.por_pagar_bool = 1
  AND FIN.vencimiento BETWEEN date('%[1]s') AND date('%[1]s', '+HORIZONTE_DIAS days')
ORDER BY FIN.vencimiento ASC
LIMIT 200`

func sqlPrompt(question, schema string, p sqlguard.Params, today time.Time) string {
	day := today.Format("2006-01-02")
	var b strings.Builder
	b.WriteString("# Esquema disponible\n")
	b.WriteString(schema)
	b.WriteString("\n\n# Instrucciones\n")
	fmt.Fprintf(&b, dialect, day)
	b.WriteString("\n")
	b.WriteString(equivalences)
	b.WriteString("\n\n# Parámetros\n")
	fmt.Fprintf(&b, "HORIZONTE_DIAS = %d\nMES_SELECCIONADO = %d\nANIO_SELECCIONADO = %d\n", p.HorizonDays, p.Month, p.Year)
	b.WriteString("\n# Ejemplos\n")
	b.WriteString(strings.ReplaceAll(fewShot, "%[1]s", day))
	b.WriteString("\n\nAhora devuelve la SQL para:\n")
	b.WriteString(question)
	return b.String()
}

func repairPrompt(question, schema, badSQL, engineErr string) string {
	var b strings.Builder
	b.WriteString("# Esquema disponible\n")
	b.WriteString(schema)
	b.WriteString("\n\n# Equivalencias\n")
	b.WriteString(equivalences)
	b.WriteString("\n\nLa siguiente consulta SQLite falló.\n")
	fmt.Fprintf(&b, "Pregunta: %s\nSQL:\n%s\nError: %s\n", question, badSQL, engineErr)
	b.WriteString("\nDevuelve SOLO la consulta corregida.")
	return b.String()
}

func summaryPrompt(question, table string) string {
	return fmt.Sprintf("Eres un analista. Resume y prioriza para gestión la siguiente tabla "+
		"respecto a la pregunta: %q. Sé claro y accionable.\n\n%s", question, table)
}

// ==== Enrutador semántico ====

const routeSystem = `Eres un enrutador de consultas en español para una planilla de vehículos de un taller.
Devuelves SOLO un JSON válido, sin texto adicional, con UNA de estas formas:

1) Una métrica del catálogo:
{"metric": "<métrica>", "params": {"horizon_days": int, "top_n": int, "month": int, "year": int, "proveedor": "string",
  "filters": {"cliente": "string", "tipo_cliente": "string", "marca": "string", "sucursal": "string",
              "asesor": "string", "patente": "string", "estado_servicio": "string"}}}

2) Una consulta estructurada:
{"spec": {"delivered": true|false|null, "invoiced": true|false|null,
  "date_field": "fecha_facturacion|fecha_entrega|fecha_recepcion|fecha_pago_factura|fecha_op",
  "date_range": {"start": "YYYY-MM-DD"|null, "end": "YYYY-MM-DD"|null, "proximos_dias": int|null, "ultimos_dias": int|null},
  "month": int|null, "year": int|null,
  "cliente_contains": "string", "patente_contains": "string", "marca_exact": "string",
  "tipo_cliente_exact": "string", "sucursal_exact": "string", "asesor_contains": "string",
  "estado_servicio_contains": "string",
  "group_by": "ninguno|tipo_cliente|marca|estado_servicio|sucursal",
  "metric": "lista|conteo|suma_neto", "top_n": int|null, "sort_desc": true|false}}

3) Si no sabes: {}

REGLAS:
- Prefiere una métrica del catálogo cuando la pregunta coincide con ella.
- entregados→delivered=true; en taller/no entregados→delivered=false; con factura→invoiced=true; sin factura/no facturados→invoiced=false.
- Si habla de facturación → fecha_facturacion; entrega→fecha_entrega; recepción→fecha_recepcion; pago→fecha_pago_factura; si no dice, fecha_op.
- Usa SOLO valores exactos de los catálogos para marca, tipo de cliente y sucursal (si no hay match, omítelo).`

func routePrompt(question string, catalog []skills.Skill, cats Catalogs, today time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hoy: %s\n\n# Métricas del catálogo\n", today.Format("2006-01-02"))
	for _, s := range catalog {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", s.Metric, s.Title, strings.Join(s.Synonyms, "; "))
	}
	b.WriteString("\n# Catálogos de la planilla\n")
	fmt.Fprintf(&b, "marcas: %s\n", list(cats.Marcas))
	fmt.Fprintf(&b, "tipo_cliente: %s\n", list(cats.TiposCliente))
	fmt.Fprintf(&b, "estado_servicio: %s\n", list(cats.Estados))
	fmt.Fprintf(&b, "sucursal: %s\n", list(cats.Sucursales))
	fmt.Fprintf(&b, "group_by válidos: %s\n", list(query.GroupBys()))
	b.WriteString("\nPregunta:\n")
	b.WriteString(question)
	return b.String()
}

func list(vs []string) string {
	if len(vs) == 0 {
		return "[]"
	}
	return "[" + strings.Join(vs, ", ") + "]"
}
