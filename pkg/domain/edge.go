package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Handle names used on node output ports.
const (
	HandleTrue         = "true"
	HandleFalse        = "false"
	buttonHandlePrefix = "boton_"
)

// ButtonHandle returns the handle name of the button at index i.
func ButtonHandle(i int) string {
	return buttonHandlePrefix + strconv.Itoa(i)
}

// ParseButtonHandle returns the button index encoded in handle.
func ParseButtonHandle(handle string) (int, bool) {
	if !strings.HasPrefix(handle, buttonHandlePrefix) {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(handle, buttonHandlePrefix))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// ConditionKind tags the variants of Condition.
type ConditionKind string

const (
	CondBoton             ConditionKind = "boton"
	CondResultadoTrue     ConditionKind = "resultado_true"
	CondResultadoFalse    ConditionKind = "resultado_false"
	CondSalidaIA          ConditionKind = "salida_ia"
	CondRespuestaExacta   ConditionKind = "respuesta_exacta"
	CondRespuestaContiene ConditionKind = "respuesta_contiene"
)

// Condition selects when an edge is taken. A nil Condition is the default edge.
type Condition interface {
	Kind() ConditionKind
	isCondition()
}

// Boton is taken when the user picks the button at Indice.
type Boton struct {
	Indice int    `json:"indice" yaml:"indice"`
	Valor  string `json:"valor,omitempty" yaml:"valor,omitempty"`
}

// ResultadoTrue is taken when a condicion node evaluates to true.
type ResultadoTrue struct{}

// ResultadoFalse is taken when a condicion node evaluates to false.
type ResultadoFalse struct{}

// SalidaIA is taken when the classifier chooses the salida whose id is Valor.
type SalidaIA struct {
	Valor       string `json:"valor" yaml:"valor"`
	Descripcion string `json:"descripcion,omitempty" yaml:"descripcion,omitempty"`
}

// RespuestaExacta is taken when the reply equals Valor, ignoring case.
type RespuestaExacta struct {
	Valor string `json:"valor" yaml:"valor"`
}

// RespuestaContiene is taken when the reply contains Valor, ignoring case.
type RespuestaContiene struct {
	Valor string `json:"valor" yaml:"valor"`
}

func (Boton) Kind() ConditionKind             { return CondBoton }
func (ResultadoTrue) Kind() ConditionKind     { return CondResultadoTrue }
func (ResultadoFalse) Kind() ConditionKind    { return CondResultadoFalse }
func (SalidaIA) Kind() ConditionKind          { return CondSalidaIA }
func (RespuestaExacta) Kind() ConditionKind   { return CondRespuestaExacta }
func (RespuestaContiene) Kind() ConditionKind { return CondRespuestaContiene }

func (Boton) isCondition()             {}
func (ResultadoTrue) isCondition()     {}
func (ResultadoFalse) isCondition()    {}
func (SalidaIA) isCondition()          {}
func (RespuestaExacta) isCondition()   {}
func (RespuestaContiene) isCondition() {}

// ParseHandle lifts a raw handle name into a Condition, given the kind of the source node.
// Unknown handles yield nil.
func ParseHandle(source NodeType, handle string) Condition {
	switch source {
	case NodeCondicion:
		switch handle {
		case HandleTrue:
			return ResultadoTrue{}
		case HandleFalse:
			return ResultadoFalse{}
		}
	case NodeReconocerRespuesta:
		if handle != "" {
			return SalidaIA{Valor: handle}
		}
	case NodeMensaje, NodePregunta:
		if i, ok := ParseButtonHandle(handle); ok {
			return Boton{Indice: i}
		}
	}
	return nil
}

// HandleFor returns the canonical handle name of c, or "" for conditions without a port.
func HandleFor(c Condition) string {
	switch v := c.(type) {
	case Boton:
		return ButtonHandle(v.Indice)
	case ResultadoTrue:
		return HandleTrue
	case ResultadoFalse:
		return HandleFalse
	case SalidaIA:
		return v.Valor
	}
	return ""
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID           string
	Origen       string
	Destino      string
	SourceHandle string
	Label        string
	Condicion    Condition
}

type conditionWire struct {
	Tipo        ConditionKind `json:"tipo" yaml:"tipo"`
	Indice      int           `json:"indice,omitempty" yaml:"indice,omitempty"`
	Valor       string        `json:"valor,omitempty" yaml:"valor,omitempty"`
	Descripcion string        `json:"descripcion,omitempty" yaml:"descripcion,omitempty"`
}

type edgeWire struct {
	ID           string         `json:"id" yaml:"id"`
	Origen       string         `json:"origen" yaml:"origen"`
	Destino      string         `json:"destino" yaml:"destino"`
	SourceHandle string         `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	Label        string         `json:"label,omitempty" yaml:"label,omitempty"`
	Condicion    *conditionWire `json:"condicion,omitempty" yaml:"condicion,omitempty"`
}

func (e Edge) toWire() edgeWire {
	w := edgeWire{
		ID:           e.ID,
		Origen:       e.Origen,
		Destino:      e.Destino,
		SourceHandle: e.SourceHandle,
		Label:        e.Label,
	}
	if e.Condicion != nil {
		cw := conditionWire{Tipo: e.Condicion.Kind()}
		switch v := e.Condicion.(type) {
		case Boton:
			cw.Indice, cw.Valor = v.Indice, v.Valor
		case SalidaIA:
			cw.Valor, cw.Descripcion = v.Valor, v.Descripcion
		case RespuestaExacta:
			cw.Valor = v.Valor
		case RespuestaContiene:
			cw.Valor = v.Valor
		}
		w.Condicion = &cw
	}
	return w
}

func (e *Edge) fromWire(w edgeWire) error {
	e.ID = w.ID
	e.Origen = w.Origen
	e.Destino = w.Destino
	e.SourceHandle = w.SourceHandle
	e.Label = w.Label
	e.Condicion = nil
	if w.Condicion == nil {
		return nil
	}
	switch w.Condicion.Tipo {
	case CondBoton:
		e.Condicion = Boton{Indice: w.Condicion.Indice, Valor: w.Condicion.Valor}
	case CondResultadoTrue:
		e.Condicion = ResultadoTrue{}
	case CondResultadoFalse:
		e.Condicion = ResultadoFalse{}
	case CondSalidaIA:
		e.Condicion = SalidaIA{Valor: w.Condicion.Valor, Descripcion: w.Condicion.Descripcion}
	case CondRespuestaExacta:
		e.Condicion = RespuestaExacta{Valor: w.Condicion.Valor}
	case CondRespuestaContiene:
		e.Condicion = RespuestaContiene{Valor: w.Condicion.Valor}
	case "":
	default:
		return fmt.Errorf("edge %q: unknown condicion tipo %q", w.ID, w.Condicion.Tipo)
	}
	return nil
}

// MarshalJSON encodes the condition as a tagged object.
func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.toWire())
}

// UnmarshalJSON decodes the tagged condition object.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var w edgeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return e.fromWire(w)
}

// MarshalYAML encodes the edge for YAML flow files.
func (e Edge) MarshalYAML() (any, error) {
	return e.toWire(), nil
}

// UnmarshalYAML decodes the edge from YAML flow files.
func (e *Edge) UnmarshalYAML(value *yaml.Node) error {
	var w edgeWire
	if err := value.Decode(&w); err != nil {
		return err
	}
	return e.fromWire(w)
}
