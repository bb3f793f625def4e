// Package coerce converte os valores de texto da planilla a datas e números.
package coerce

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// DateLayouts son os formatos aceptados, na orde en que se proban.
// Día-primeiro vai antes que mes-primeiro: "03/04/2024" é o 3 de abril.
var DateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2006-1-2",
	"2006/1/2",
	"1/2/2006",
}

// ISODate é o formato canónico co que as datas saen das vistas.
const ISODate = "2006-01-02"

// ParseDate proba DateLayouts en orde; gaña o primeiro que funcione.
// Ignora unha parte horaria final ("… 10:30" ou "…T00:00:00").
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NullDate é ParseDate devolvendo sql.NullTime.
func NullDate(s string) sql.NullTime {
	t, ok := ParseDate(s)
	return sql.NullTime{Time: t, Valid: ok}
}

// ParseNumber converte un importe con formato latino ("1.234.567,89"):
// o punto é separador de milleiros e a coma decimal. Non detecta locale.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}
	// quitar puntos de milleiro e cambiar coma por punto
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// NullNumber é ParseNumber devolvendo sql.NullFloat64.
func NullNumber(s string) sql.NullFloat64 {
	f, ok := ParseNumber(s)
	return sql.NullFloat64{Float64: f, Valid: ok}
}

// DaysBetween conta os días naturais de from a to (negativo se to é anterior).
func DaysBetween(from, to time.Time) int64 {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int64(t.Sub(f).Hours() / 24)
}

// Day trunca t á súa data (UTC, medianoite).
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
