package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"  Entregado  ":        "entregado",
		"FACTURACIÓN":          "facturacion",
		"Fecha   de\tRecepción": "fecha de recepcion",
		"Año":                  "ano",
		"N° Factura":           "n° factura",
		"Pérez\n  Núñez":       "perez nunez",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, s := range []string{"Sí OK", "  Vehículos   ENTREGADOS ", "ñandú"} {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestContainsAndEqual(t *testing.T) {
	assert.True(t, Contains("Automotora Pérez Ltda.", "perez"))
	assert.True(t, Contains("cualquier cosa", ""))
	assert.False(t, Contains("Toyota", "nissan"))
	assert.True(t, Equal("Empresa", "  EMPRESA "))
	assert.True(t, Equal("Sucursal Ñuñoa", "sucursal nunoa"))
	assert.False(t, Equal("Particular", "Empresa"))
}
