// Package textnorm canoniza texto libre para comparacións robustas.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize elimina diacríticos, pasa a minúsculas, recorta e colapsa os
// espazos internos a un só. Só para comparar, nunca para amosar.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	space := false
	// NFD separa a letra da súa marca (Mn), que descartamos
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsSpace(r) {
			space = b.Len() > 0
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Contains indica se needle aparece en s despois de normalizar ambos.
// Un needle baleiro sempre coincide.
func Contains(s, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return true
	}
	return strings.Contains(Normalize(s), n)
}

// Equal compara dúas cadeas ignorando maiúsculas, acentos e espazos extra.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
