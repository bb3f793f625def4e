package engine

import (
	"database/sql"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"tereborace.com/fenix/internal/canon"
	"tereborace.com/fenix/internal/coerce"
	"tereborace.com/fenix/internal/textnorm"
)

// DriverName é o driver sqlite3 coas funcións de normalización rexistradas
// en cada conexión.
const DriverName = "sqlite3_fenix"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: registerFuncs,
	})
}

func asText(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	default:
		return fmt.Sprint(x), true
	}
}

// norm_text(x) -> texto normalizado; NULL -> ''
func normText(v any) any {
	s, _ := asText(v)
	return textnorm.Normalize(s)
}

// parse_fecha(x) -> 'YYYY-MM-DD' ou NULL
func parseFecha(v any) any {
	s, ok := asText(v)
	if !ok {
		return nil
	}
	t, ok := coerce.ParseDate(s)
	if !ok {
		return nil
	}
	return t.Format(coerce.ISODate)
}

// parse_monto(x) -> REAL ou NULL
func parseMonto(v any) any {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	s, ok := asText(v)
	if !ok {
		return nil
	}
	f, ok := coerce.ParseNumber(s)
	if !ok {
		return nil
	}
	return f
}

// Rexistra as funcións que usan as vistas canónicas.
func registerFuncs(c *sqlite3.SQLiteConn) error {
	funcs := []struct {
		name string
		impl func(any) any
	}{
		{canon.FuncNorm, normText},
		{canon.FuncDate, parseFecha},
		{canon.FuncNumber, parseMonto},
	}
	for _, f := range funcs {
		if err := c.RegisterFunc(f.name, f.impl, true); err != nil { // pure=true
			return fmt.Errorf("register %s: %w", f.name, err)
		}
	}
	return nil
}
