// Package result define a táboa de resultados que se entrega á capa de
// presentación.
package result

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Table é un resultado tabular. As celas son string, int64, float64, bool,
// time.Time ou nil.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// New crea unha táboa baleira coas columnas indicadas.
func New(cols ...string) *Table {
	return &Table{Columns: cols, Rows: [][]any{}}
}

// Append engade unha fila.
func (t *Table) Append(cells ...any) {
	t.Rows = append(t.Rows, cells)
}

// Len devolve o número de filas; nil conta como 0.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty é certo para nil ou sen filas.
func (t *Table) Empty() bool { return t.Len() == 0 }

// Head devolve unha copia coas primeiras n filas.
func (t *Table) Head(n int) *Table {
	if t == nil {
		return nil
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// Index devolve a posición da columna ou -1.
func (t *Table) Index(col string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, col) {
			return i
		}
	}
	return -1
}

// PromoteID move a columna identificadora (id, patente ou placa; se non, ot)
// á primeira posición.
func (t *Table) PromoteID() {
	if t == nil {
		return
	}
	idx := -1
	for _, name := range []string{"id", "patente", "placa", "ot"} {
		if idx = t.Index(name); idx >= 0 {
			break
		}
	}
	if idx <= 0 {
		return
	}
	t.Columns = moveFirst(t.Columns, idx)
	for i, r := range t.Rows {
		if idx < len(r) {
			t.Rows[i] = moveFirst(r, idx)
		}
	}
}

func moveFirst[T any](s []T, idx int) []T {
	out := make([]T, 0, len(s))
	out = append(out, s[idx])
	out = append(out, s[:idx]...)
	return append(out, s[idx+1:]...)
}

// Markdown rende a táboa como táboa markdown (para o resumo do LLM).
func (t *Table) Markdown() string {
	if t == nil || len(t.Columns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(t.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(t.Columns)) + "\n")
	for _, r := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i := range cells {
			if i < len(r) {
				cells[i] = strings.ReplaceAll(Text(r[i]), "|", "\\|")
			}
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}

// Text converte unha cela a texto plano (sen formato de moeda).
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case sql.NullTime:
		if !x.Valid {
			return ""
		}
		return Text(x.Time)
	default:
		return fmt.Sprint(x)
	}
}

// Nullable converte os tipos sql.Null* en celas (nil se non son válidos).
func Nullable(v any) any {
	switch x := v.(type) {
	case sql.NullTime:
		if x.Valid {
			return x.Time
		}
		return nil
	case sql.NullFloat64:
		if x.Valid {
			return x.Float64
		}
		return nil
	case sql.NullInt64:
		if x.Valid {
			return x.Int64
		}
		return nil
	case sql.NullString:
		if x.Valid {
			return x.String
		}
		return nil
	}
	return v
}
