package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// NodeData is the typed payload of a node. There is exactly one implementation per NodeType.
type NodeData interface {
	Kind() NodeType
	isNodeData()
}

// InicioData is the payload of the entry node. It carries no configuration.
type InicioData struct{}

// MensajeData sends a message, optionally offering up to three buttons.
type MensajeData struct {
	Texto       string   `json:"texto" yaml:"texto" validate:"required"`
	TipoMensaje string   `json:"tipo_mensaje,omitempty" yaml:"tipo_mensaje,omitempty" validate:"omitempty,oneof=texto botones"`
	Botones     []string `json:"botones,omitempty" yaml:"botones,omitempty" validate:"max=3,dive,required"`
}

// HasButtons reports whether the message offers button choices.
func (d MensajeData) HasButtons() bool {
	return d.TipoMensaje == "botones" && len(d.Botones) > 0
}

// Validacion configures how a pregunta reply is checked.
type Validacion struct {
	Requerido    bool   `json:"requerido" yaml:"requerido"`
	MensajeError string `json:"mensaje_error,omitempty" yaml:"mensaje_error,omitempty"`
}

// PreguntaData asks a question and suspends until the reply arrives.
type PreguntaData struct {
	Texto           string     `json:"texto" yaml:"texto" validate:"required"`
	VariableDestino string     `json:"variable_destino" yaml:"variable_destino" validate:"required,varname"`
	TipoRespuesta   string     `json:"tipo_respuesta,omitempty" yaml:"tipo_respuesta,omitempty" validate:"omitempty,oneof=texto numero email telefono fecha opcion"`
	Botones         []string   `json:"botones,omitempty" yaml:"botones,omitempty" validate:"max=3,dive,required"`
	Validacion      Validacion `json:"validacion" yaml:"validacion"`
}

// Condition operators understood by condicion nodes.
const (
	OpIgual    = "igual"
	OpNoIgual  = "no_igual"
	OpContiene = "contiene"
	OpNoVacio  = "no_vacio"
	OpVacio    = "vacio"
	OpMayorQue = "mayor_que"
	OpMenorQue = "menor_que"
	OpRegex    = "regex"
)

// CondicionData branches on a variable.
type CondicionData struct {
	Variable string `json:"variable" yaml:"variable" validate:"required"`
	Operador string `json:"operador" yaml:"operador" validate:"required,oneof=igual no_igual contiene no_vacio vacio mayor_que menor_que regex"`
	Valor    string `json:"valor,omitempty" yaml:"valor,omitempty"`
}

// GuardarVariableData writes a literal, a system-derived value or an expression result.
type GuardarVariableData struct {
	Variable  string `json:"variable" yaml:"variable" validate:"required,varname"`
	Valor     string `json:"valor,omitempty" yaml:"valor,omitempty"`
	Origen    string `json:"origen,omitempty" yaml:"origen,omitempty" validate:"omitempty,oneof=literal fecha_actual hora_actual timestamp ultima_respuesta canal identificador_usuario"`
	Expresion string `json:"expresion,omitempty" yaml:"expresion,omitempty"`
}

// GuardarBDData writes a row to the data store.
type GuardarBDData struct {
	Tabla  string            `json:"tabla,omitempty" yaml:"tabla,omitempty"`
	Campos map[string]string `json:"campos" yaml:"campos" validate:"required,min=1"`
}

// BuscarConocimientoData queries the knowledge base.
type BuscarConocimientoData struct {
	Consulta        string   `json:"consulta" yaml:"consulta" validate:"required"`
	Categorias      []string `json:"categorias,omitempty" yaml:"categorias,omitempty"`
	MaxResultados   int      `json:"max_resultados,omitempty" yaml:"max_resultados,omitempty" validate:"omitempty,min=1,max=20"`
	VariableDestino string   `json:"variable_destino,omitempty" yaml:"variable_destino,omitempty" validate:"omitempty,varname"`
}

// RespuestaIAData asks the AI completion service for a reply and sends it.
type RespuestaIAData struct {
	Instrucciones    string `json:"instrucciones" yaml:"instrucciones" validate:"required"`
	UsarConocimiento bool   `json:"usar_conocimiento,omitempty" yaml:"usar_conocimiento,omitempty"`
	IncluirVariables bool   `json:"incluir_variables,omitempty" yaml:"incluir_variables,omitempty"`
}

// Salida is one labeled output of a reconocer_respuesta node.
type Salida struct {
	ID          string `json:"id" yaml:"id" validate:"required"`
	Etiqueta    string `json:"etiqueta" yaml:"etiqueta" validate:"required"`
	Descripcion string `json:"descripcion,omitempty" yaml:"descripcion,omitempty"`
}

// Extraccion names a field the classifier should extract into a variable.
type Extraccion struct {
	Variable    string `json:"variable" yaml:"variable" validate:"required,varname"`
	Descripcion string `json:"descripcion,omitempty" yaml:"descripcion,omitempty"`
}

// ReconocerRespuestaData classifies the latest reply into one of its salidas.
type ReconocerRespuestaData struct {
	Instrucciones string       `json:"instrucciones,omitempty" yaml:"instrucciones,omitempty"`
	Salidas       []Salida     `json:"salidas" yaml:"salidas" validate:"required,min=1,dive"`
	Extracciones  []Extraccion `json:"extracciones,omitempty" yaml:"extracciones,omitempty" validate:"dive"`
	SalidaDefault string       `json:"salida_default,omitempty" yaml:"salida_default,omitempty"`
}

// SalidaIDs returns the ids of the configured salidas in order.
func (d ReconocerRespuestaData) SalidaIDs() []string {
	ids := make([]string, len(d.Salidas))
	for i, s := range d.Salidas {
		ids[i] = s.ID
	}
	return ids
}

// UsarAgenteData delegates the reply to a configured AI agent.
type UsarAgenteData struct {
	AgenteID        string `json:"agente_id" yaml:"agente_id" validate:"required"`
	Instrucciones   string `json:"instrucciones,omitempty" yaml:"instrucciones,omitempty"`
	VariableDestino string `json:"variable_destino,omitempty" yaml:"variable_destino,omitempty" validate:"omitempty,varname"`
	EnviarRespuesta bool   `json:"enviar_respuesta,omitempty" yaml:"enviar_respuesta,omitempty"`
}

// CrearTareaData creates a follow-up task.
type CrearTareaData struct {
	Titulo      string `json:"titulo" yaml:"titulo" validate:"required"`
	Descripcion string `json:"descripcion,omitempty" yaml:"descripcion,omitempty"`
	Prioridad   string `json:"prioridad,omitempty" yaml:"prioridad,omitempty" validate:"omitempty,oneof=baja media alta"`
}

// TransferirHumanoData hands the conversation over to a human operator.
type TransferirHumanoData struct {
	MensajeUsuario   string `json:"mensaje_usuario,omitempty" yaml:"mensaje_usuario,omitempty"`
	MensajeEjecutivo string `json:"mensaje_ejecutivo,omitempty" yaml:"mensaje_ejecutivo,omitempty"`
	Motivo           string `json:"motivo,omitempty" yaml:"motivo,omitempty"`
}

// AgendarCitaData books a calendar event from the fecha_cita / hora_cita variables.
type AgendarCitaData struct {
	Titulo          string `json:"titulo,omitempty" yaml:"titulo,omitempty"`
	DuracionMinutos int    `json:"duracion_minutos,omitempty" yaml:"duracion_minutos,omitempty" validate:"omitempty,min=5,max=480"`
	Descripcion     string `json:"descripcion,omitempty" yaml:"descripcion,omitempty"`
}

// EsperarData suspends until the next inbound message and stores it verbatim.
type EsperarData struct {
	MensajeEspera   string `json:"mensaje_espera,omitempty" yaml:"mensaje_espera,omitempty"`
	VariableDestino string `json:"variable_destino" yaml:"variable_destino" validate:"required,varname"`
}

// Fin actions.
const (
	AccionCerrar         = "cerrar"
	AccionVolverMenu     = "volver_menu"
	AccionReiniciarFlujo = "reiniciar_flujo"
)

// FinData ends the conversation.
type FinData struct {
	MensajeDespedida string `json:"mensaje_despedida,omitempty" yaml:"mensaje_despedida,omitempty"`
	Accion           string `json:"accion,omitempty" yaml:"accion,omitempty" validate:"omitempty,oneof=cerrar volver_menu reiniciar_flujo"`
}

func (InicioData) Kind() NodeType             { return NodeInicio }
func (MensajeData) Kind() NodeType            { return NodeMensaje }
func (PreguntaData) Kind() NodeType           { return NodePregunta }
func (CondicionData) Kind() NodeType          { return NodeCondicion }
func (GuardarVariableData) Kind() NodeType    { return NodeGuardarVariable }
func (GuardarBDData) Kind() NodeType          { return NodeGuardarBD }
func (BuscarConocimientoData) Kind() NodeType { return NodeBuscarConocimiento }
func (RespuestaIAData) Kind() NodeType        { return NodeRespuestaIA }
func (ReconocerRespuestaData) Kind() NodeType { return NodeReconocerRespuesta }
func (UsarAgenteData) Kind() NodeType         { return NodeUsarAgente }
func (CrearTareaData) Kind() NodeType         { return NodeCrearTarea }
func (TransferirHumanoData) Kind() NodeType   { return NodeTransferirHumano }
func (AgendarCitaData) Kind() NodeType        { return NodeAgendarCita }
func (EsperarData) Kind() NodeType            { return NodeEsperar }
func (FinData) Kind() NodeType                { return NodeFin }

func (InicioData) isNodeData()             {}
func (MensajeData) isNodeData()            {}
func (PreguntaData) isNodeData()           {}
func (CondicionData) isNodeData()          {}
func (GuardarVariableData) isNodeData()    {}
func (GuardarBDData) isNodeData()          {}
func (BuscarConocimientoData) isNodeData() {}
func (RespuestaIAData) isNodeData()        {}
func (ReconocerRespuestaData) isNodeData() {}
func (UsarAgenteData) isNodeData()         {}
func (CrearTareaData) isNodeData()         {}
func (TransferirHumanoData) isNodeData()   {}
func (AgendarCitaData) isNodeData()        {}
func (EsperarData) isNodeData()            {}
func (FinData) isNodeData()                {}

func emptyData(t NodeType) NodeData {
	switch t {
	case NodeInicio:
		return InicioData{}
	case NodeMensaje:
		return MensajeData{}
	case NodePregunta:
		return PreguntaData{}
	case NodeCondicion:
		return CondicionData{}
	case NodeGuardarVariable:
		return GuardarVariableData{}
	case NodeGuardarBD:
		return GuardarBDData{}
	case NodeBuscarConocimiento:
		return BuscarConocimientoData{}
	case NodeRespuestaIA:
		return RespuestaIAData{}
	case NodeReconocerRespuesta:
		return ReconocerRespuestaData{}
	case NodeUsarAgente:
		return UsarAgenteData{}
	case NodeCrearTarea:
		return CrearTareaData{}
	case NodeTransferirHumano:
		return TransferirHumanoData{}
	case NodeAgendarCita:
		return AgendarCitaData{}
	case NodeEsperar:
		return EsperarData{}
	case NodeFin:
		return FinData{}
	}
	return nil
}

// DecodeData converts a loosely-typed datos map into the variant for tipo.
// It checks shape only; semantic validation happens when the flow is validated.
func DecodeData(tipo NodeType, raw map[string]any) (NodeData, error) {
	target := emptyData(tipo)
	if target == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, tipo)
	}
	if len(raw) == 0 {
		return target, nil
	}

	// Decode into a pointer to a fresh value of the variant's concrete type.
	ptr := newDataPointer(tipo)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           ptr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build datos decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid datos for %s: %w", tipo, err)
	}
	return derefData(ptr), nil
}

func newDataPointer(t NodeType) any {
	switch t {
	case NodeInicio:
		return &InicioData{}
	case NodeMensaje:
		return &MensajeData{}
	case NodePregunta:
		return &PreguntaData{}
	case NodeCondicion:
		return &CondicionData{}
	case NodeGuardarVariable:
		return &GuardarVariableData{}
	case NodeGuardarBD:
		return &GuardarBDData{}
	case NodeBuscarConocimiento:
		return &BuscarConocimientoData{}
	case NodeRespuestaIA:
		return &RespuestaIAData{}
	case NodeReconocerRespuesta:
		return &ReconocerRespuestaData{}
	case NodeUsarAgente:
		return &UsarAgenteData{}
	case NodeCrearTarea:
		return &CrearTareaData{}
	case NodeTransferirHumano:
		return &TransferirHumanoData{}
	case NodeAgendarCita:
		return &AgendarCitaData{}
	case NodeEsperar:
		return &EsperarData{}
	case NodeFin:
		return &FinData{}
	}
	return nil
}

func derefData(ptr any) NodeData {
	switch v := ptr.(type) {
	case *InicioData:
		return *v
	case *MensajeData:
		return *v
	case *PreguntaData:
		return *v
	case *CondicionData:
		return *v
	case *GuardarVariableData:
		return *v
	case *GuardarBDData:
		return *v
	case *BuscarConocimientoData:
		return *v
	case *RespuestaIAData:
		return *v
	case *ReconocerRespuestaData:
		return *v
	case *UsarAgenteData:
		return *v
	case *CrearTareaData:
		return *v
	case *TransferirHumanoData:
		return *v
	case *AgendarCitaData:
		return *v
	case *EsperarData:
		return *v
	case *FinData:
		return *v
	}
	return nil
}

// Buttons returns the button labels offered by a mensaje or pregunta node.
func (n Node) Buttons() []string {
	switch d := n.Datos.(type) {
	case MensajeData:
		if d.HasButtons() {
			return d.Botones
		}
	case PreguntaData:
		return d.Botones
	}
	return nil
}
