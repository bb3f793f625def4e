// Package columns localiza as columnas reais dunha planilla a partir dos
// sinónimos de cada campo lóxico, ou dun mapeo explícito.
package columns

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tereborace.com/fenix/internal/textnorm"
)

// Key asocia un campo lóxico cos seus sinónimos en orde de prioridade.
type Key struct {
	Field    string
	Synonyms []string
}

// Keys é un mapa de sinónimos ordenado.
type Keys []Key

// Fields devolve os nomes dos campos lóxicos en orde.
func (ks Keys) Fields() []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = k.Field
	}
	return out
}

// Source indica como se resolveu un campo.
type Source string

const (
	FromExplicit Source = "explicit"
	FromSynonym  Source = "synonym"
	Absent       Source = "absent"
)

// Resolution é a decisión tomada para un campo (para calibración).
type Resolution struct {
	Field   string `json:"field"`
	Column  string `json:"column"`
	Source  Source `json:"source"`
	Synonym string `json:"synonym,omitempty"`
}

// Mapping é o mapeo explícito campo -> cabeceira exacta dunha folla.
type Mapping map[string]string

// Resolve busca a columna real para field. Orde:
//  1. mapeo explícito, se a cabeceira existe;
//  2. por cada sinónimo (en orde): cabeceira igual, ou a primeira que o contén;
//  3. ausente. Nunca é un erro.
//
// Os sinónimos de ata dous caracteres só coinciden con palabras enteiras.
// A igualdade exacta vai antes da busca por subcadea: non gaña sempre a
// primeira cabeceira que contén o sinónimo ("Total" fronte a "Subtotal").
func Resolve(headers []string, field string, synonyms []string, explicit Mapping) (string, bool) {
	r := resolve(headers, field, synonyms, explicit)
	return r.Column, r.Source != Absent
}

func resolve(headers []string, field string, synonyms []string, explicit Mapping) Resolution {
	res := Resolution{Field: field, Source: Absent}
	if want, ok := explicit[field]; ok && want != "" {
		for _, h := range headers {
			if h == want {
				res.Column, res.Source = h, FromExplicit
				return res
			}
		}
	}
	normHeaders := make([]string, len(headers))
	for i, h := range headers {
		normHeaders[i] = textnorm.Normalize(h)
	}
	for _, syn := range synonyms {
		s := textnorm.Normalize(syn)
		if s == "" {
			continue
		}
		idx := -1
		for i, nh := range normHeaders {
			if nh == s {
				idx = i
				break
			}
		}
		if idx < 0 {
			for i, nh := range normHeaders {
				if containsSynonym(nh, s) {
					idx = i
					break
				}
			}
		}
		if idx >= 0 {
			res.Column, res.Source, res.Synonym = headers[idx], FromSynonym, syn
			return res
		}
	}
	return res
}

// containsSynonym aplica a regra de palabra enteira aos sinónimos curtos
// ("ot" non debe atopar "total").
func containsSynonym(header, syn string) bool {
	if len([]rune(syn)) > 2 {
		return strings.Contains(header, syn)
	}
	for _, w := range strings.FieldsFunc(header, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '.' || r == '#' || r == '/' || r == '°' || r == 'º'
	}) {
		if w == syn {
			return true
		}
	}
	return false
}

// ResolveAll resolve todos os campos de keys.
func ResolveAll(headers []string, keys Keys, explicit Mapping) []Resolution {
	out := make([]Resolution, 0, len(keys))
	for _, k := range keys {
		out = append(out, resolve(headers, k.Field, k.Synonyms, explicit))
	}
	return out
}

// ColumnMap converte as resolucións nun mapa campo -> columna (só as atopadas).
func ColumnMap(res []Resolution) map[string]string {
	m := make(map[string]string, len(res))
	for _, r := range res {
		if r.Source != Absent {
			m[r.Field] = r.Column
		}
	}
	return m
}

// ==== mapeo persistido ====

// MappingFile é o contido do ficheiro YAML: folla -> campo -> cabeceira.
type MappingFile map[string]Mapping

// ErrMappingFile envolve os erros de lectura do ficheiro de mapeo.
var ErrMappingFile = errors.New("column mapping file")

// LoadMapping le o ficheiro YAML. Un path baleiro ou inexistente devolve un
// mapeo baleiro: o mapeo é opcional.
func LoadMapping(path string) (MappingFile, error) {
	if strings.TrimSpace(path) == "" {
		return MappingFile{}, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return MappingFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMappingFile, err)
	}
	var mf MappingFile
	if err := yaml.Unmarshal(b, &mf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMappingFile, path, err)
	}
	if mf == nil {
		mf = MappingFile{}
	}
	return mf, nil
}

// For devolve o mapeo da folla sheet (comparación sen maiúsculas).
func (mf MappingFile) For(sheet string) Mapping {
	if m, ok := mf[sheet]; ok {
		return m
	}
	for name, m := range mf {
		if strings.EqualFold(name, sheet) {
			return m
		}
	}
	return nil
}
