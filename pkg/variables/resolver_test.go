package variables_test

import (
	"testing"
	"time"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/variables"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 5, 4, 14, 7, 9, 0, time.UTC)

func sys() variables.System {
	return variables.System{
		NombreMarca:          "Cafe Sol",
		Canal:                domain.CanalWhatsApp,
		IdentificadorUsuario: "56900000000",
		UltimaRespuesta:      "quiero agendar",
		Now:                  now,
	}
}

func TestResolve(t *testing.T) {
	vars := map[string]string{"nombre": "Ana", "email_cliente": "a@b.com"}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"Plain Text", "sin variables", "sin variables"},
		{"Instance Variable", "Hola {{nombre}}!", "Hola Ana!"},
		{"Whitespace Tolerated", "{{ email_cliente }}", "a@b.com"},
		{"Repeated", "{{nombre}} {{nombre}}", "Ana Ana"},
		{"System Variables", "{{nombre_marca}} via {{canal}} el {{fecha_actual}} a las {{hora_actual}}", "Cafe Sol via whatsapp el 2026-05-04 a las 14:07"},
		{"Timestamp", "{{timestamp}}", "2026-05-04T14:07:09Z"},
		{"Unresolved Renders Empty", "[{{desconocida}}]", "[]"},
		{"Malformed Left Alone", "{{ }} {nombre}", "{{ }} {nombre}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, variables.Resolve(tt.template, vars, sys()))
		})
	}
}

func TestResolve_SystemCannotBeShadowed(t *testing.T) {
	vars := map[string]string{"canal": "fax", "ultima_respuesta": "otra"}
	assert.Equal(t, "whatsapp|quiero agendar", variables.Resolve("{{canal}}|{{ultima_respuesta}}", vars, sys()))
}

func TestResolveStrict(t *testing.T) {
	out, missing := variables.ResolveStrict("{{a}} {{b}} {{a}} {{nombre_marca}}", map[string]string{"b": "x"}, sys())
	assert.Equal(t, " x  Cafe Sol", out)
	assert.Equal(t, []string{"a"}, missing)
}

func TestScan(t *testing.T) {
	assert.Equal(t, []string{"email_cliente", "fecha_cita", "canal"},
		variables.Scan("{{email_cliente}} {{ fecha_cita }} {{email_cliente}} {{canal}}"))
	assert.Nil(t, variables.Scan("nada"))
}

func TestName(t *testing.T) {
	assert.Equal(t, "edad", variables.Name("{{edad}}"))
	assert.Equal(t, "edad", variables.Name(" edad "))
	assert.Equal(t, "x {{edad}}", variables.Name("x {{edad}}"))
}

func TestSystemFor(t *testing.T) {
	inst := domain.NewInstance("i", "f", domain.CanalWeb, "u1", "n", now)
	inst.UltimaRespuesta = "hola"
	s := variables.SystemFor(inst, "Marca", now)

	v, ok := variables.Lookup("identificador_usuario", nil, s)
	assert.True(t, ok)
	assert.Equal(t, "u1", v)
	assert.True(t, variables.IsSystem("hora_actual"))
	assert.False(t, variables.IsSystem("email"))
}
