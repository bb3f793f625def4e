// Package sheet carga as follas da planilla como táboas de texto e
// mantén unha copia en caché de só lectura.
package sheet

import (
	"sort"
	"strings"
)

// Table son as filas dunha folla: cabeceira -> valor, todo texto.
type Table struct {
	Name    string              `json:"name"`
	Headers []string            `json:"headers"`
	Rows    []map[string]string `json:"rows"`
}

// NewTable constrúe unha táboa desde unha matriz de celas onde a primeira
// fila é a cabeceira. Descarta cabeceiras baleiras e duplicadas sen
// distinguir maiúsculas (fica a primeira), igual que os nomes de columna de
// SQLite, e as filas completamente baleiras.
func NewTable(name string, cells [][]string) *Table {
	t := &Table{Name: name}
	if len(cells) == 0 {
		return t
	}
	seen := map[string]bool{}
	idx := []int{}
	for i, h := range cells[0] {
		h = strings.TrimSpace(h)
		key := strings.ToLower(h)
		if h == "" || seen[key] {
			continue
		}
		seen[key] = true
		t.Headers = append(t.Headers, h)
		idx = append(idx, i)
	}
	for _, raw := range cells[1:] {
		row := make(map[string]string, len(t.Headers))
		empty := true
		for j, i := range idx {
			v := ""
			if i < len(raw) {
				v = strings.TrimSpace(raw[i])
			}
			if v != "" {
				empty = false
			}
			row[t.Headers[j]] = v
		}
		if !empty {
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

// Len devolve o número de filas.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Pick busca unha táboa polo nome sen distinguir maiúsculas.
func Pick(tables map[string]*Table, name string) (*Table, bool) {
	if t, ok := tables[name]; ok {
		return t, true
	}
	for n, t := range tables {
		if strings.EqualFold(n, name) {
			return t, true
		}
	}
	return nil, false
}

// Names devolve os nomes das táboas ordenados.
func Names(tables map[string]*Table) []string {
	out := make([]string, 0, len(tables))
	for n := range tables {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func allowedName(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}
