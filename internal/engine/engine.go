// Package engine executa SQL de só lectura sobre as follas cargadas nunha
// base SQLite en memoria.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"tereborace.com/fenix/internal/canon"
	"tereborace.com/fenix/internal/result"
	"tereborace.com/fenix/internal/sheet"
)

var (
	// ErrLoad: non se puideron cargar as follas.
	ErrLoad = errors.New("engine: load tables")
	// ErrPrelude: o preludio (vistas) fallou.
	ErrPrelude = errors.New("engine: prelude")
	// ErrQuery: a consulta fallou.
	ErrQuery = errors.New("engine: query")
)

// SQLite abre unha base en memoria nova para cada execución: as preguntas
// concorrentes non comparten estado.
type SQLite struct {
	Log zerolog.Logger
}

// Column é unha columna dunha táboa ou vista.
type Column struct{ Name, Type string }

// open devolve unha base en memoria cunha única conexión (cada conexión
// :memory: é unha base distinta).
func open() (*sql.DB, error) {
	db, err := sql.Open(DriverName, ":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// load crea unha táboa TEXT por folla e insire as filas nunha transacción.
func load(ctx context.Context, db *sql.DB, tables map[string]*sheet.Table) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range sheet.Names(tables) {
		t := tables[name]
		if t == nil || len(t.Headers) == 0 {
			continue
		}
		cols := make([]string, len(t.Headers))
		marks := make([]string, len(t.Headers))
		for i, h := range t.Headers {
			cols[i] = canon.QuoteIdent(h) + " TEXT"
			marks[i] = "?"
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)",
			canon.QuoteIdent(name), strings.Join(cols, ", "))); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)",
			canon.QuoteIdent(name), strings.Join(marks, ", ")))
		if err != nil {
			return err
		}
		args := make([]any, len(t.Headers))
		for _, row := range t.Rows {
			for i, h := range t.Headers {
				args[i] = row[h]
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				stmt.Close()
				return fmt.Errorf("insert %s: %w", name, err)
			}
		}
		stmt.Close()
	}
	return tx.Commit()
}

// prepare abre a base, carga as follas, executa o preludio e pasa a só
// lectura.
func prepare(ctx context.Context, tables map[string]*sheet.Table, prelude string) (*sql.DB, error) {
	db, err := open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	if err := load(ctx, db, tables); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	if strings.TrimSpace(prelude) != "" {
		if _, err := db.ExecContext(ctx, prelude); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %v", ErrPrelude, err)
		}
	}
	// Read-only reforzado a nivel de sesión
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrPrelude, err)
	}
	return db, nil
}

// Execute carga tables, executa prelude e despois query.
func (e SQLite) Execute(ctx context.Context, query string, tables map[string]*sheet.Table, prelude string) (*result.Table, error) {
	db, err := prepare(ctx, tables, prelude)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	e.Log.Debug().Str("sql", firstLine(query)).Msg("engine execute")
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	out := result.New(cols...)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQuery, err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out.Append(vals...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return out, nil
}

// Describe executa o preludio e lista as columnas de cada vista creada.
// Serve para comprobar que o preludio compila contra as follas reais.
func (e SQLite) Describe(ctx context.Context, tables map[string]*sheet.Table, prelude string) (map[string][]Column, error) {
	db, err := prepare(ctx, tables, prelude)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	views, err := listViews(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	out := make(map[string][]Column, len(views))
	for _, v := range views {
		cols, err := viewColumns(ctx, db, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQuery, err)
		}
		out[v] = cols
	}
	return out, nil
}

func listViews(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='view' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func viewColumns(ctx context.Context, db *sql.DB, view string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", canon.QuoteIdent(view)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Column
	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		res = append(res, Column{Name: name, Type: ctype})
	}
	return res, rows.Err()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
