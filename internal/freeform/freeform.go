// Package freeform extrae un query.Spec dunha pregunta libre en castelán con
// regras de palabras clave, sen gramática nin modelo.
package freeform

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"tereborace.com/fenix/internal/coerce"
	"tereborace.com/fenix/internal/query"
	"tereborace.com/fenix/internal/textnorm"
)

// Meses en castelán, normalizados.
var Months = map[string]int{
	"enero": 1, "febrero": 2, "marzo": 3, "abril": 4, "mayo": 5, "junio": 6, "julio": 7,
	"agosto": 8, "septiembre": 9, "setiembre": 9, "octubre": 10, "noviembre": 11, "diciembre": 12,
}

const dateLit = `(\d{1,2}[/-]\d{1,2}[/-]\d{4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})`

var (
	punctRe = regexp.MustCompile(`[¿?¡!,;:()"'“”]`)

	notInvoicedRe = regexp.MustCompile(`\b(?:sin factur|no factur|pendientes? (?:de|por) factur|por factur)\w*`)
	notDelivRe    = regexp.MustCompile(`\b(?:en taller|no entreg|sin entreg)`)

	rangeRe = regexp.MustCompile(`\b(?:del|entre(?: el)?)\s+` + dateLit + `\s+(?:al|y|hasta(?: el)?)\s+` + dateLit)
	desdeRe = regexp.MustCompile(`\bdesde(?: el)?\s+` + dateLit)
	hastaRe = regexp.MustCompile(`\bhasta(?: el)?\s+` + dateLit)
	dateRe  = regexp.MustCompile(dateLit)

	monthRe = regexp.MustCompile(`\b(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre)\b`)
	yearRe  = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

	proximosRe = regexp.MustCompile(`\bproxim[oa]s?\s+(\d{1,3})\s+dias?\b`)
	ultimosRe  = regexp.MustCompile(`\bultim[oa]s?\s+(\d{1,3})\s+dias?\b`)
	topRe      = regexp.MustCompile(`\btop\s+(\d{1,3})\b`)

	countRe = regexp.MustCompile(`\b(?:cuant[oa]s|cantidad|numero de)\b`)
	sumRe   = regexp.MustCompile(`\b(?:monto|montos|total|suma|sumar|cuanto)\b`)

	valueRe = regexp.MustCompile(`^[a-z0-9\-\.]+$`)
)

// dateFocus en orde: a primeira palabra clave presente decide.
var dateFocus = []struct{ key, field string }{
	{"factur", query.DateFacturacion},
	{"entreg", query.DateEntrega},
	{"recep", query.DateRecepcion},
	{"pago", query.DatePago},
}

var groupHints = []struct{ phrase, group string }{
	{"por tipo de cliente", query.GroupTipoCliente},
	{"por tipo cliente", query.GroupTipoCliente},
	{"por marca", query.GroupMarca},
	{"por estado", query.GroupEstadoServicio},
	{"por sucursal", query.GroupSucursal},
	{"por sede", query.GroupSucursal},
}

var connectors = map[string]bool{
	"en": true, "con": true, "de": true, "del": true, "que": true, "y": true, "sin": true,
	"desde": true, "hasta": true, "entre": true, "para": true, "por": true, "al": true,
	"los": true, "las": true,
}

// palabras que pechan un valor aínda que encaixen na clase de caracteres
var keywordPrefixes = []string{"entreg", "factur", "taller", "recep", "pago", "pagad", "proxim", "ultim", "pendiente"}

type label struct {
	words []string
	set   func(s *query.Spec, v string)
}

// máis longas primeiro
var labels = []label{
	{[]string{"tipo", "de", "cliente"}, func(s *query.Spec, v string) { s.TipoClienteExact = v }},
	{[]string{"tipo", "cliente"}, func(s *query.Spec, v string) { s.TipoClienteExact = v }},
	{[]string{"estado", "del", "servicio"}, func(s *query.Spec, v string) { s.EstadoServicioContains = v }},
	{[]string{"estado", "de", "servicio"}, func(s *query.Spec, v string) { s.EstadoServicioContains = v }},
	{[]string{"estado", "servicio"}, func(s *query.Spec, v string) { s.EstadoServicioContains = v }},
	{[]string{"cliente"}, func(s *query.Spec, v string) { s.ClienteContains = v }},
	{[]string{"marca"}, func(s *query.Spec, v string) { s.MarcaExact = v }},
	{[]string{"patente"}, func(s *query.Spec, v string) { s.PatenteContains = v }},
	{[]string{"placa"}, func(s *query.Spec, v string) { s.PatenteContains = v }},
	{[]string{"sucursal"}, func(s *query.Spec, v string) { s.SucursalExact = v }},
	{[]string{"sede"}, func(s *query.Spec, v string) { s.SucursalExact = v }},
	{[]string{"asesor"}, func(s *query.Spec, v string) { s.AsesorContains = v }},
}

// Parse converte a pregunta nun Spec validado.
//
// O foco de data é o da primeira palabra clave presente (factur, entreg,
// recep, pago), pero un "factur" dentro dunha negación ("sin factura",
// "pendientes de facturar") non conta: "entregados sin factura" filtra pola
// data de entrega e non pola de facturación.
func Parse(question string) query.Spec {
	q := textnorm.Normalize(punctRe.ReplaceAllString(question, " "))
	var s query.Spec

	// foco de data, sen contar o "factur" das negacións ("sin factura")
	focus := notInvoicedRe.ReplaceAllString(q, " ")
	s.DateField = query.DateOp
	for _, f := range dateFocus {
		if strings.Contains(focus, f.key) {
			s.DateField = f.field
			break
		}
	}

	if strings.Contains(q, "entreg") {
		s.Delivered = query.Bool(true)
	}
	if notDelivRe.MatchString(q) {
		s.Delivered = query.Bool(false)
	}

	if notInvoicedRe.MatchString(q) {
		s.Invoiced = query.Bool(false)
	} else if strings.Contains(q, "facturad") {
		s.Invoiced = query.Bool(true)
	}

	parseDates(q, &s)

	rest := dateRe.ReplaceAllString(q, " ")
	if m := monthRe.FindStringSubmatch(rest); m != nil {
		s.Month = query.Int(Months[m[1]])
	}
	if m := yearRe.FindStringSubmatch(rest); m != nil {
		y, _ := strconv.Atoi(m[1])
		s.Year = query.Int(y)
	}

	if m := proximosRe.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		s.DateRange.ProximosDias = query.Int(n)
	} else if strings.Contains(q, "proxima semana") {
		s.DateRange.ProximosDias = query.Int(7)
	}
	if m := ultimosRe.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		s.DateRange.UltimosDias = query.Int(n)
	} else if strings.Contains(q, "ultima semana") {
		s.DateRange.UltimosDias = query.Int(7)
	}

	parseLabels(strings.Fields(rest), &s)
	parseAggregation(q, &s)
	return s.Validate()
}

func parseDates(q string, s *query.Spec) {
	set := func(dst **time.Time, lit string) {
		if t, ok := coerce.ParseDate(lit); ok {
			*dst = &t
		}
	}
	if m := rangeRe.FindStringSubmatch(q); m != nil {
		set(&s.DateRange.Start, m[1])
		set(&s.DateRange.End, m[2])
		return
	}
	if m := desdeRe.FindStringSubmatch(q); m != nil {
		set(&s.DateRange.Start, m[1])
	}
	if m := hastaRe.FindStringSubmatch(q); m != nil {
		set(&s.DateRange.End, m[1])
	}
}

func parseAggregation(q string, s *query.Spec) {
	for _, h := range groupHints {
		if strings.Contains(q, h.phrase) {
			s.GroupBy = h.group
			break
		}
	}
	if countRe.MatchString(q) {
		s.Metric = query.MetricConteo
	}
	if sumRe.MatchString(q) && (s.GroupBy != "" || s.Metric == "") {
		s.Metric = query.MetricSumaNeto
	}
	if m := topRe.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		s.TopN = query.Int(n)
	}
	// o máis recente primeiro, salvo cando se mira cara adiante
	s.SortDesc = s.DateRange.ProximosDias == nil
}

func labelAt(words []string, i int) (label, int) {
	for _, l := range labels {
		if i+len(l.words) > len(words) {
			continue
		}
		ok := true
		for k, w := range l.words {
			if words[i+k] != w {
				ok = false
				break
			}
		}
		if ok {
			return l, len(l.words)
		}
	}
	return label{}, 0
}

func stopsValue(words []string, i int) bool {
	w := words[i]
	if !valueRe.MatchString(w) || connectors[w] {
		return true
	}
	if _, ok := Months[w]; ok {
		return true
	}
	if yearRe.MatchString(w) && len(w) == 4 {
		return true
	}
	for _, p := range keywordPrefixes {
		if strings.HasPrefix(w, p) {
			return true
		}
	}
	_, n := labelAt(words, i)
	return n > 0
}

// parseLabels busca "cliente X", "marca X"… O valor remata na primeira
// palabra de enlace, palabra clave ou outra etiqueta. "por marca" é unha
// agrupación, non un filtro. Gaña a primeira aparición de cada etiqueta.
func parseLabels(words []string, s *query.Spec) {
	seen := map[string]bool{}
	for i := 0; i < len(words); {
		l, n := labelAt(words, i)
		if n == 0 {
			i++
			continue
		}
		j := i + n
		if i > 0 && words[i-1] == "por" {
			i = j
			continue
		}
		var val []string
		for j < len(words) && !stopsValue(words, j) {
			val = append(val, words[j])
			j++
		}
		key := strings.Join(l.words, " ")
		if len(val) > 0 && !seen[key] {
			seen[key] = true
			l.set(s, strings.Join(val, " "))
		}
		i = j
	}
}
