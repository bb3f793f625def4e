// Package sqlguard limpa o SQL que devolve o modelo e decide se é seguro
// executalo.
package sqlguard

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultLimit engádese cando a consulta non ten LIMIT.
const DefaultLimit = 200

// Params son os valores dos marcadores con nome.
type Params struct {
	Month       int
	Year        int
	HorizonDays int
}

var (
	reFence       = regexp.MustCompile("(?is)```(?:sqlite|sql)?\\s*(.+?)```")
	reOpenFence   = regexp.MustCompile("(?is)^\\s*```(?:sqlite|sql)?\\s*")
	reTrailLimit  = regexp.MustCompile(`(?i)\s*\bLIMIT\s+(\d+)(?:\s+OFFSET\s+(\d+))?\s*$`)
	reLimit       = regexp.MustCompile(`(?i)\bLIMIT\b`)
	reStartSelect = regexp.MustCompile(`(?i)^\s*(SELECT|WITH)\b`)
	reDangerous   = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|ATTACH|DETACH|PRAGMA|TRUNCATE|VACUUM|REPLACE\s+INTO)\b`)
)

type placeholder struct {
	re  *regexp.Regexp
	val string
}

// placeholders acepta NOME, {NOME}, {{NOME}} e :NOME sen distinguir
// maiúsculas. Os valores cero non se substitúen.
func placeholders(p Params) []placeholder {
	var out []placeholder
	add := func(v int, names ...string) {
		if v == 0 {
			return
		}
		for _, n := range names {
			out = append(out, placeholder{
				re:  regexp.MustCompile(`(?i)(?:\{\{|\{|:)?\b` + regexp.QuoteMeta(n) + `\b(?:\}\}|\})?`),
				val: strconv.Itoa(v),
			})
		}
	}
	add(p.Month, "MES_SELECCIONADO")
	add(p.Year, "AÑO_SELECCIONADO", "ANIO_SELECCIONADO")
	add(p.HorizonDays, "HORIZONTE_DIAS")
	return out
}

// Sanitize aplica, en orde: extraer o bloque ``` se o hai; substituír os
// marcadores; quitar os ";" finais; colapsar espazos; quitar os LIMIT
// finais conservando o último co seu OFFSET; e, se non queda ningún LIMIT,
// engadir LIMIT 200.
func Sanitize(raw string, p Params) string {
	s := raw
	if m := reFence.FindStringSubmatch(s); m != nil {
		s = m[1]
	} else {
		s = reOpenFence.ReplaceAllString(s, "")
	}
	for _, ph := range placeholders(p) {
		s = ph.re.ReplaceAllLiteralString(s, ph.val)
	}
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	s = strings.Join(strings.Fields(s), " ")

	last := ""
	for {
		m := reTrailLimit.FindStringSubmatchIndex(s)
		if m == nil {
			break
		}
		if last == "" {
			last = "LIMIT " + s[m[2]:m[3]]
			if m[4] >= 0 {
				last += " OFFSET " + s[m[4]:m[5]]
			}
		}
		s = strings.TrimSpace(s[:m[0]])
	}
	switch {
	case last != "":
		s += " " + last
	case !reLimit.MatchString(s):
		s += " LIMIT " + strconv.Itoa(DefaultLimit)
	}
	return s
}

// IsSafe é certo se a sentenza é unha soa consulta SELECT (ou WITH) sen
// palabras que modifiquen datos ou esquema.
func IsSafe(sql string) bool {
	s := strings.TrimSpace(sql)
	if s == "" || !reStartSelect.MatchString(s) {
		return false
	}
	if strings.Contains(strings.TrimRight(s, "; "), ";") {
		return false
	}
	return !reDangerous.MatchString(s)
}
