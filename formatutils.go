package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tereborace.com/fenix/internal/coerce"
	"tereborace.com/fenix/internal/result"
	"tereborace.com/fenix/internal/textnorm"
)

// ==== utilidades de presentación ====

var (
	amountWords = []string{"monto", "neto", "total", "valor", "precio", "costo", "importe", "suma", "facturacion"}
	dateWords   = []string{"fecha", "vencimiento"}
)

func hasWord(col string, words []string) bool {
	n := textnorm.Normalize(strings.ReplaceAll(col, "_", " "))
	for _, w := range words {
		if strings.Contains(n, w) {
			return true
		}
	}
	return false
}

// isDateColumn: "fecha_entrega", "Fecha Vencimiento"...
func isDateColumn(col string) bool { return hasWord(col, dateWords) }

// isAmountColumn: importes en pesos. As datas teñen prioridade
// ("fecha_facturacion" é data, non importe).
func isAmountColumn(col string) bool {
	return !isDateColumn(col) && hasWord(col, amountWords)
}

// numeric le números das celas, incluídos os textos tipo "1.234.567".
func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		return coerce.ParseNumber(x)
	}
	return 0, false
}

// formatCLP: $ 1.234.567, sen decimais.
func formatCLP(f float64) string {
	n := decimal.NewFromFloat(f).Round(0).IntPart()
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	intp := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range intp {
		if i > 0 && (len(intp)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "$ " + b.String()
}

// formatDate: dd-mm-yyyy. Se o texto non parece data devólvese tal cal.
func formatDate(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.Format("02-01-2006")
	case string:
		if d, ok := coerce.ParseDate(x); ok {
			return d.Format("02-01-2006")
		}
		return x
	}
	return result.Text(v)
}

// formatCell formata unha cela segundo o nome da columna.
func formatCell(col string, v any) string {
	if v == nil {
		return ""
	}
	if _, ok := v.(time.Time); ok || isDateColumn(col) {
		return formatDate(v)
	}
	if isAmountColumn(col) {
		if f, ok := numeric(v); ok {
			return formatCLP(f)
		}
	}
	if b, ok := v.(bool); ok {
		if b {
			return "Sí"
		}
		return "No"
	}
	return result.Text(v)
}

var caser = cases.Title(language.Spanish)

// label: "dias_en_taller" -> "Dias En Taller".
func label(col string) string {
	return caser.String(strings.ReplaceAll(col, "_", " "))
}

func safeFile(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r == '.' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return r
		}
		return -1
	}, s)
	if s == "" {
		s = "export"
	}
	return s
}

// formatted devolve unha copia da táboa coas celas xa formatadas para amosar.
func formatted(t *result.Table) *result.Table {
	if t == nil {
		return result.New()
	}
	out := result.New(t.Columns...)
	for _, r := range t.Rows {
		row := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(r) {
				row[i] = formatCell(c, r[i])
			}
		}
		out.Append(row...)
	}
	return out
}
