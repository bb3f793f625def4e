package canon

import (
	"fmt"
	"math"
	"strings"
	"time"

	"tereborace.com/fenix/internal/coerce"
	"tereborace.com/fenix/internal/textnorm"
)

// Funcións SQL que o motor rexistra desde as mesmas implementacións Go
// (textnorm, coerce), para que as vistas SQL e BuildMB/BuildFIN coincidan.
const (
	FuncNorm   = "norm_text"
	FuncDate   = "parse_fecha"
	FuncNumber = "parse_monto"
)

// Kind é o tipo dun valor derivado.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindNumber
	KindBool
	KindInt
)

// SQLType é o tipo que amosamos no esquema para o LLM.
func (k Kind) SQLType() string {
	switch k {
	case KindDate:
		return "DATE"
	case KindNumber:
		return "DOUBLE"
	case KindInt:
		return "INTEGER"
	case KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// Value é o resultado de avaliar unha expresión sobre unha fila.
type Value struct {
	Kind Kind
	Null bool
	Text string
	Date time.Time
	Num  float64
	Bool bool
}

func nullOf(k Kind) Value { return Value{Kind: k, Null: true} }

// Env é o contexto de avaliación: a fila crúa, as columnas resoltas e hoxe.
type Env struct {
	Row     map[string]string
	Columns map[string]string
	Today   time.Time
}

// SQLEnv é o contexto de compilación a SQL.
type SQLEnv struct {
	Columns map[string]string
	Today   time.Time
}

// Expr é un nodo da táboa de regras. Ten dúas saídas: Eval (en memoria)
// e SQL (texto para as vistas).
type Expr interface {
	Kind() Kind
	Eval(env Env) Value
	SQL(env SQLEnv) string
}

// ==== nodos ====

type colExpr struct{ field string }

// Col referencia o campo lóxico field; se a columna non se atopou é NULL.
func Col(field string) Expr { return colExpr{field} }

func (colExpr) Kind() Kind { return KindText }
func (e colExpr) Eval(env Env) Value {
	h, ok := env.Columns[e.field]
	if !ok {
		return nullOf(KindText)
	}
	return Value{Kind: KindText, Text: env.Row[h]}
}
func (e colExpr) SQL(env SQLEnv) string {
	h, ok := env.Columns[e.field]
	if !ok {
		return "NULL"
	}
	return QuoteIdent(h)
}

type litExpr struct{ s string }

// Lit é un texto literal.
func Lit(s string) Expr { return litExpr{s} }

func (litExpr) Kind() Kind          { return KindText }
func (e litExpr) Eval(Env) Value    { return Value{Kind: KindText, Text: e.s} }
func (e litExpr) SQL(SQLEnv) string { return QuoteLiteral(e.s) }

type normExpr struct{ e Expr }

// Norm aplica textnorm.Normalize; NULL pasa a "".
func Norm(e Expr) Expr { return normExpr{e} }

func (normExpr) Kind() Kind { return KindText }
func (n normExpr) Eval(env Env) Value {
	v := n.e.Eval(env)
	return Value{Kind: KindText, Text: textnorm.Normalize(v.Text)}
}
func (n normExpr) SQL(env SQLEnv) string { return FuncNorm + "(" + n.e.SQL(env) + ")" }

type dateExpr struct{ e Expr }

// DateOf converte texto a data con coerce.ParseDate.
func DateOf(e Expr) Expr { return dateExpr{e} }

func (dateExpr) Kind() Kind { return KindDate }
func (d dateExpr) Eval(env Env) Value {
	v := d.e.Eval(env)
	if v.Null {
		return nullOf(KindDate)
	}
	t, ok := coerce.ParseDate(v.Text)
	if !ok {
		return nullOf(KindDate)
	}
	return Value{Kind: KindDate, Date: t}
}
func (d dateExpr) SQL(env SQLEnv) string { return FuncDate + "(" + d.e.SQL(env) + ")" }

type numberExpr struct{ e Expr }

// NumberOf converte texto a número con coerce.ParseNumber.
func NumberOf(e Expr) Expr { return numberExpr{e} }

func (numberExpr) Kind() Kind { return KindNumber }
func (n numberExpr) Eval(env Env) Value {
	v := n.e.Eval(env)
	if v.Null {
		return nullOf(KindNumber)
	}
	f, ok := coerce.ParseNumber(v.Text)
	if !ok {
		return nullOf(KindNumber)
	}
	return Value{Kind: KindNumber, Num: f}
}
func (n numberExpr) SQL(env SQLEnv) string { return FuncNumber + "(" + n.e.SQL(env) + ")" }

type intExpr struct{ e Expr }

// IntOf trunca un número a enteiro, como CAST(... AS INTEGER).
func IntOf(e Expr) Expr { return intExpr{e} }

func (intExpr) Kind() Kind { return KindInt }
func (i intExpr) Eval(env Env) Value {
	v := i.e.Eval(env)
	if v.Null {
		return nullOf(KindInt)
	}
	return Value{Kind: KindInt, Num: math.Trunc(v.Num)}
}
func (i intExpr) SQL(env SQLEnv) string { return "CAST(" + i.e.SQL(env) + " AS INTEGER)" }

type nullIfEmptyExpr struct{ e Expr }

// NullIfEmpty recorta o texto e devolve NULL se queda baleiro.
func NullIfEmpty(e Expr) Expr { return nullIfEmptyExpr{e} }

func (nullIfEmptyExpr) Kind() Kind { return KindText }
func (n nullIfEmptyExpr) Eval(env Env) Value {
	v := n.e.Eval(env)
	s := strings.TrimSpace(v.Text)
	if v.Null || s == "" {
		return nullOf(KindText)
	}
	return Value{Kind: KindText, Text: s}
}
func (n nullIfEmptyExpr) SQL(env SQLEnv) string {
	return "NULLIF(TRIM(" + n.e.SQL(env) + "), '')"
}

type coalesceExpr struct{ es []Expr }

// Coalesce devolve o primeiro valor non nulo. Todos deben ser do mesmo Kind.
func Coalesce(es ...Expr) Expr { return coalesceExpr{es} }

func (c coalesceExpr) Kind() Kind { return c.es[0].Kind() }
func (c coalesceExpr) Eval(env Env) Value {
	for _, e := range c.es {
		if v := e.Eval(env); !v.Null {
			return v
		}
	}
	return nullOf(c.Kind())
}
func (c coalesceExpr) SQL(env SQLEnv) string {
	parts := make([]string, len(c.es))
	for i, e := range c.es {
		parts[i] = e.SQL(env)
	}
	return "COALESCE(" + strings.Join(parts, ", ") + ")"
}

type containsExpr struct {
	e      Expr
	needle string
}

// Contains é certo se o texto contén needle. NULL é falso.
func Contains(e Expr, needle string) Expr { return containsExpr{e, needle} }

func (containsExpr) Kind() Kind { return KindBool }
func (c containsExpr) Eval(env Env) Value {
	v := c.e.Eval(env)
	return Value{Kind: KindBool, Bool: !v.Null && strings.Contains(v.Text, c.needle)}
}
func (c containsExpr) SQL(env SQLEnv) string {
	return fmt.Sprintf("(instr(COALESCE(%s, ''), %s) > 0)", c.e.SQL(env), QuoteLiteral(c.needle))
}

type inSetExpr struct {
	e   Expr
	set []string
}

// InSet é certo se o texto é un dos valores de set. NULL cóntase como "".
func InSet(e Expr, set []string) Expr { return inSetExpr{e, set} }

func (inSetExpr) Kind() Kind { return KindBool }
func (s inSetExpr) Eval(env Env) Value {
	v := s.e.Eval(env)
	for _, w := range s.set {
		if v.Text == w {
			return Value{Kind: KindBool, Bool: true}
		}
	}
	return Value{Kind: KindBool}
}
func (s inSetExpr) SQL(env SQLEnv) string {
	lits := make([]string, len(s.set))
	for i, w := range s.set {
		lits[i] = QuoteLiteral(w)
	}
	return fmt.Sprintf("(COALESCE(%s, '') IN (%s))", s.e.SQL(env), strings.Join(lits, ", "))
}

type isEmptyExpr struct{ e Expr }

// IsEmpty é certo para NULL ou texto en branco.
func IsEmpty(e Expr) Expr { return isEmptyExpr{e} }

func (isEmptyExpr) Kind() Kind { return KindBool }
func (i isEmptyExpr) Eval(env Env) Value {
	v := i.e.Eval(env)
	return Value{Kind: KindBool, Bool: v.Null || strings.TrimSpace(v.Text) == ""}
}
func (i isEmptyExpr) SQL(env SQLEnv) string {
	return "(TRIM(COALESCE(" + i.e.SQL(env) + ", '')) = '')"
}

type isNullExpr struct{ e Expr }

// IsNull é certo se o valor é NULL (p.ex. unha data que non se puido ler).
func IsNull(e Expr) Expr { return isNullExpr{e} }

func (isNullExpr) Kind() Kind { return KindBool }
func (i isNullExpr) Eval(env Env) Value {
	return Value{Kind: KindBool, Bool: i.e.Eval(env).Null}
}
func (i isNullExpr) SQL(env SQLEnv) string { return "(" + i.e.SQL(env) + " IS NULL)" }

type notExpr struct{ e Expr }

// Not nega un booleano.
func Not(e Expr) Expr { return notExpr{e} }

func (notExpr) Kind() Kind { return KindBool }
func (n notExpr) Eval(env Env) Value {
	return Value{Kind: KindBool, Bool: !n.e.Eval(env).Bool}
}
func (n notExpr) SQL(env SQLEnv) string { return "(NOT " + n.e.SQL(env) + ")" }

type boolOpExpr struct {
	op string
	es []Expr
}

// And e Or combinan booleanos.
func And(es ...Expr) Expr { return boolOpExpr{"AND", es} }
func Or(es ...Expr) Expr  { return boolOpExpr{"OR", es} }

func (boolOpExpr) Kind() Kind { return KindBool }
func (b boolOpExpr) Eval(env Env) Value {
	and := b.op == "AND"
	for _, e := range b.es {
		v := e.Eval(env).Bool
		if and && !v {
			return Value{Kind: KindBool}
		}
		if !and && v {
			return Value{Kind: KindBool, Bool: true}
		}
	}
	return Value{Kind: KindBool, Bool: and}
}
func (b boolOpExpr) SQL(env SQLEnv) string {
	parts := make([]string, len(b.es))
	for i, e := range b.es {
		parts[i] = e.SQL(env)
	}
	return "(" + strings.Join(parts, " "+b.op+" ") + ")"
}

type daysExpr struct{ from, to Expr }

// DaysBetween conta os días de from a to; NULL se falta algunha data.
func DaysBetween(from, to Expr) Expr { return daysExpr{from, to} }

func (daysExpr) Kind() Kind { return KindInt }
func (d daysExpr) Eval(env Env) Value {
	f, t := d.from.Eval(env), d.to.Eval(env)
	if f.Null || t.Null {
		return nullOf(KindInt)
	}
	return Value{Kind: KindInt, Num: float64(coerce.DaysBetween(f.Date, t.Date))}
}
func (d daysExpr) SQL(env SQLEnv) string {
	return fmt.Sprintf("CAST(julianday(%s) - julianday(%s) AS INTEGER)", d.to.SQL(env), d.from.SQL(env))
}

type todayExpr struct{}

// Today é a data de referencia; en SQL compílase como literal.
func Today() Expr { return todayExpr{} }

func (todayExpr) Kind() Kind { return KindDate }
func (todayExpr) Eval(env Env) Value {
	return Value{Kind: KindDate, Date: coerce.Day(env.Today)}
}
func (todayExpr) SQL(env SQLEnv) string {
	return QuoteLiteral(env.Today.Format(coerce.ISODate))
}

// ==== SQL utils ====

// QuoteIdent envolve un identificador en comiñas dobres.
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// QuoteLiteral envolve un texto en comiñas simples.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
