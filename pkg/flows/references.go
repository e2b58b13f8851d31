package flows

import (
	"sort"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/variables"
)

// Default variables written by nodes without an explicit destination.
const (
	VarContextoConocimiento = "contexto_conocimiento"
	VarRespuestaIA          = "respuesta_ia"
	VarRespuestaAgente      = "respuesta_agente"
	VarUltimaTareaID        = "ultima_tarea_id"
	VarUltimaCitaID         = "ultima_cita_id"
	VarFechaCita            = "fecha_cita"
	VarHoraCita             = "hora_cita"
	RawSuffix               = "_raw"
)

// Templates returns the interpolated text fields of a node's datos.
func Templates(d domain.NodeData) []string {
	switch d := d.(type) {
	case domain.MensajeData:
		return []string{d.Texto}
	case domain.PreguntaData:
		return []string{d.Texto, d.Validacion.MensajeError}
	case domain.GuardarVariableData:
		return []string{d.Valor}
	case domain.GuardarBDData:
		keys := make([]string, 0, len(d.Campos))
		for k := range d.Campos {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]string, len(keys))
		for i, k := range keys {
			out[i] = d.Campos[k]
		}
		return out
	case domain.BuscarConocimientoData:
		return []string{d.Consulta}
	case domain.RespuestaIAData:
		return []string{d.Instrucciones}
	case domain.ReconocerRespuestaData:
		return []string{d.Instrucciones}
	case domain.UsarAgenteData:
		return []string{d.Instrucciones}
	case domain.CrearTareaData:
		return []string{d.Titulo, d.Descripcion}
	case domain.TransferirHumanoData:
		return []string{d.MensajeUsuario, d.MensajeEjecutivo, d.Motivo}
	case domain.AgendarCitaData:
		return []string{d.Titulo, d.Descripcion}
	case domain.EsperarData:
		return []string{d.MensajeEspera}
	case domain.FinData:
		return []string{d.MensajeDespedida}
	}
	return nil
}

// Reads returns the variable names a node reads, in order of appearance.
func Reads(n domain.Node) []string {
	var names []string
	seen := map[string]bool{}
	addAll := func(list []string) {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	for _, t := range Templates(n.Datos) {
		addAll(variables.Scan(t))
	}
	switch d := n.Datos.(type) {
	case domain.CondicionData:
		addAll([]string{variables.Name(d.Variable)})
	case domain.AgendarCitaData:
		addAll([]string{VarFechaCita, VarHoraCita})
	}
	return names
}

// Writes returns the variable names a node writes.
func Writes(n domain.Node) []string {
	switch d := n.Datos.(type) {
	case domain.PreguntaData:
		return []string{d.VariableDestino}
	case domain.EsperarData:
		return []string{d.VariableDestino}
	case domain.GuardarVariableData:
		return []string{d.Variable}
	case domain.BuscarConocimientoData:
		dest := d.VariableDestino
		if dest == "" {
			dest = VarContextoConocimiento
		}
		return []string{dest, dest + RawSuffix}
	case domain.RespuestaIAData:
		return []string{VarRespuestaIA}
	case domain.ReconocerRespuestaData:
		out := make([]string, len(d.Extracciones))
		for i, x := range d.Extracciones {
			out[i] = x.Variable
		}
		return out
	case domain.UsarAgenteData:
		if d.VariableDestino != "" {
			return []string{d.VariableDestino}
		}
		return []string{VarRespuestaAgente}
	case domain.CrearTareaData:
		return []string{VarUltimaTareaID}
	case domain.AgendarCitaData:
		return []string{VarUltimaCitaID}
	}
	return nil
}

// Warnings reports variables that are read somewhere but written by no node of the flow.
// They are not errors: such variables render empty, or may be seeded by an earlier flow.
func Warnings(f *domain.Flow) []Violation {
	written := map[string]bool{}
	for _, n := range f.Nodos {
		for _, w := range Writes(n) {
			written[w] = true
		}
	}
	var out []Violation
	for _, n := range f.Nodos {
		for _, r := range Reads(n) {
			if r == "" || written[r] || variables.IsSystem(r) {
				continue
			}
			out = append(out, Violation{
				Code:    CodeVariableNoDeclarada,
				NodeID:  n.ID,
				Message: "variable " + r + " is read but no node writes it",
			})
		}
	}
	return out
}
