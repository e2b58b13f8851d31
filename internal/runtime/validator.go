package runtime

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Reply types a pregunta can require.
const (
	RespuestaTexto    = "texto"
	RespuestaNumero   = "numero"
	RespuestaEmail    = "email"
	RespuestaTelefono = "telefono"
	RespuestaFecha    = "fecha"
	RespuestaOpcion   = "opcion"
)

// DefaultMensajeError is sent when a reply fails validation and the node has no message of its own.
const DefaultMensajeError = "La respuesta no es válida. Por favor, inténtalo nuevamente."

var replyValidator = validator.New()

var telefonoPattern = regexp.MustCompile(`^\+?[0-9 ()\-]{7,20}$`)

var fechaLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "02-01-2006"}

// checkReply validates reply against tipo. It returns the value to store, which is
// the trimmed reply except for numbers and dates, and whether the reply is acceptable.
func checkReply(tipo, reply string) (string, bool) {
	v := strings.TrimSpace(reply)
	switch tipo {
	case RespuestaNumero:
		n := strings.ReplaceAll(v, ",", ".")
		if replyValidator.Var(n, "required,numeric") != nil {
			return "", false
		}
		return n, true
	case RespuestaEmail:
		if replyValidator.Var(v, "required,email") != nil {
			return "", false
		}
		return v, true
	case RespuestaTelefono:
		digits := 0
		for _, r := range v {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if !telefonoPattern.MatchString(v) || digits < 7 || digits > 15 {
			return "", false
		}
		return v, true
	case RespuestaFecha:
		for _, layout := range fechaLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.Format("2006-01-02"), true
			}
		}
		return "", false
	}
	return v, true
}
