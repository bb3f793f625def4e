package skills

import (
	"database/sql"
	"time"

	"tereborace.com/fenix/internal/canon"
	"tereborace.com/fenix/internal/coerce"
	"tereborace.com/fenix/internal/textnorm"
)

// Filters son os filtros opcionais das skills. Combínanse con AND e un
// filtro baleiro non restrinxe nada. Todos ignoran maiúsculas e acentos.
type Filters struct {
	Cliente        string     `json:"cliente,omitempty"`         // contén
	TipoCliente    string     `json:"tipo_cliente,omitempty"`    // exacto
	Marca          string     `json:"marca,omitempty"`           // exacto
	Sucursal       string     `json:"sucursal,omitempty"`        // exacto
	Asesor         string     `json:"asesor,omitempty"`          // contén
	Patente        string     `json:"patente,omitempty"`         // contén
	EstadoServicio string     `json:"estado_servicio,omitempty"` // contén
	Desde          *time.Time `json:"desde,omitempty"`
	Hasta          *time.Time `json:"hasta,omitempty"`
}

// Match aplica os filtros de texto a r.
func (f Filters) Match(r canon.ServiceRecord) bool {
	return contains(r.Cliente, f.Cliente) &&
		exact(r.TipoCliente, f.TipoCliente) &&
		exact(r.Marca, f.Marca) &&
		exact(r.Sucursal, f.Sucursal) &&
		contains(r.Asesor, f.Asesor) &&
		contains(r.Patente, f.Patente) &&
		contains(r.EstadoServicio, f.EstadoServicio)
}

// InRange comproba Desde/Hasta sobre d. Se hai rango e d é nula, non pasa.
func (f Filters) InRange(d sql.NullTime) bool {
	if f.Desde == nil && f.Hasta == nil {
		return true
	}
	return Between(d, f.Desde, f.Hasta)
}

// Between comproba from <= d <= to por días; os extremos nil están abertos.
func Between(d sql.NullTime, from, to *time.Time) bool {
	if !d.Valid {
		return false
	}
	day := coerce.Day(d.Time)
	if from != nil && day.Before(coerce.Day(*from)) {
		return false
	}
	if to != nil && day.After(coerce.Day(*to)) {
		return false
	}
	return true
}

func contains(value, needle string) bool {
	return textnorm.Contains(value, needle)
}

func exact(value, want string) bool {
	if textnorm.Normalize(want) == "" {
		return true
	}
	return textnorm.Equal(value, want)
}

// ==== orde ====

// byDate ordena por data; as nulas sempre ao final.
func byDate(a, b sql.NullTime, desc bool) bool {
	if a.Valid != b.Valid {
		return a.Valid
	}
	if !a.Valid {
		return false
	}
	if desc {
		return a.Time.After(b.Time)
	}
	return a.Time.Before(b.Time)
}

// byInt ordena por enteiro; os nulos sempre ao final.
func byInt(a, b sql.NullInt64, desc bool) bool {
	if a.Valid != b.Valid {
		return a.Valid
	}
	if !a.Valid {
		return false
	}
	if desc {
		return a.Int64 > b.Int64
	}
	return a.Int64 < b.Int64
}
