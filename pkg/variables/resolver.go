// Package variables interpolates {{name}} tokens against a conversation's variables.
//
// System variables resolve first and cannot be shadowed by instance variables.
// Unresolved tokens render as the empty string.
package variables

import (
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/flujos/pkg/domain"
)

// System variable names.
const (
	NombreMarca          = "nombre_marca"
	Canal                = "canal"
	IdentificadorUsuario = "identificador_usuario"
	FechaActual          = "fecha_actual"
	HoraActual           = "hora_actual"
	Timestamp            = "timestamp"
	UltimaRespuesta      = "ultima_respuesta"
)

// Formats used when rendering clock-derived system variables.
const (
	FechaLayout = "2006-01-02"
	HoraLayout  = "15:04"
)

var systemNames = map[string]bool{
	NombreMarca:          true,
	Canal:                true,
	IdentificadorUsuario: true,
	FechaActual:          true,
	HoraActual:           true,
	Timestamp:            true,
	UltimaRespuesta:      true,
}

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\-]+)\s*\}\}`)

// System holds the values of the system variables for one resolution.
type System struct {
	NombreMarca          string
	Canal                domain.Canal
	IdentificadorUsuario string
	UltimaRespuesta      string
	Now                  time.Time
}

// SystemFor builds the system variables of an instance at the given time.
func SystemFor(inst *domain.Instance, marca string, now time.Time) System {
	return System{
		NombreMarca:          marca,
		Canal:                inst.Canal,
		IdentificadorUsuario: inst.IdentificadorUsuario,
		UltimaRespuesta:      inst.UltimaRespuesta,
		Now:                  now,
	}
}

// Lookup returns the value of a system variable.
func (s System) Lookup(name string) (string, bool) {
	switch name {
	case NombreMarca:
		return s.NombreMarca, true
	case Canal:
		return string(s.Canal), true
	case IdentificadorUsuario:
		return s.IdentificadorUsuario, true
	case FechaActual:
		return s.Now.Format(FechaLayout), true
	case HoraActual:
		return s.Now.Format(HoraLayout), true
	case Timestamp:
		return s.Now.Format(time.RFC3339), true
	case UltimaRespuesta:
		return s.UltimaRespuesta, true
	}
	return "", false
}

// IsSystem reports whether name is a reserved system variable.
func IsSystem(name string) bool {
	return systemNames[name]
}

// Lookup resolves a single variable name with system precedence.
func Lookup(name string, vars map[string]string, sys System) (string, bool) {
	if v, ok := sys.Lookup(name); ok {
		return v, true
	}
	v, ok := vars[name]
	return v, ok
}

// Resolve replaces every {{name}} token in template.
func Resolve(template string, vars map[string]string, sys System) string {
	out, _ := resolve(template, vars, sys)
	return out
}

// ResolveStrict behaves like Resolve and also reports the names that did not resolve, in order of appearance.
func ResolveStrict(template string, vars map[string]string, sys System) (string, []string) {
	return resolve(template, vars, sys)
}

func resolve(template string, vars map[string]string, sys System) (string, []string) {
	if !strings.Contains(template, "{{") {
		return template, nil
	}
	var missing []string
	seen := map[string]bool{}
	out := tokenPattern.ReplaceAllStringFunc(template, func(tok string) string {
		name := tokenPattern.FindStringSubmatch(tok)[1]
		if v, ok := Lookup(name, vars, sys); ok {
			return v
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return ""
	})
	return out, missing
}

// Scan returns the variable names referenced by template, deduplicated in order of appearance.
func Scan(template string) []string {
	matches := tokenPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Name extracts a bare variable name from either "name" or "{{name}}".
func Name(ref string) string {
	ref = strings.TrimSpace(ref)
	if m := tokenPattern.FindStringSubmatch(ref); m != nil && m[0] == ref {
		return m[1]
	}
	return ref
}
