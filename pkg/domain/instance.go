package domain

import "time"

// InstanceEstado is the execution state of a conversation instance.
type InstanceEstado string

const (
	InstanceActiva      InstanceEstado = "activa"      // Running or suspended waiting for input
	InstanceCompletada  InstanceEstado = "completada"  // Reached a fin node
	InstanceTransferida InstanceEstado = "transferida" // Paused pending human action
	InstanceCancelada   InstanceEstado = "cancelada"   // Stopped by an operator or by expiry
	InstanceError       InstanceEstado = "error"       // A node failed
)

// Terminal reports whether no further execution can happen from this estado.
func (e InstanceEstado) Terminal() bool {
	return e == InstanceCompletada || e == InstanceCancelada || e == InstanceError
}

// Espera describes what a suspended instance is waiting for.
type Espera string

const (
	EsperaNinguna Espera = ""        // Not suspended
	EsperaEntrada Espera = "entrada" // Free-form reply (pregunta, esperar, mensaje before a classifier)
	EsperaBotones Espera = "botones" // A button choice
)

// Instance is one execution of a flow for one user on one channel.
type Instance struct {
	ID                   string         `json:"id"`
	FlowID               string         `json:"flow_id"`
	Canal                Canal          `json:"canal"`
	IdentificadorUsuario string         `json:"identificador_usuario"`
	Estado               InstanceEstado `json:"estado"`

	// Variables is the per-conversation variable store.
	Variables map[string]string `json:"variables"`

	// NodoActual is the node the instance is paused at (or executing).
	NodoActual      string `json:"nodo_actual"`
	Esperando       Espera `json:"esperando,omitempty"`
	UltimaRespuesta string `json:"ultima_respuesta,omitempty"`

	// Visitas counts handler invocations per node; it feeds idempotency keys.
	Visitas map[string]int `json:"visitas,omitempty"`

	// AccionFinal records the fin accion (or operator close) that ended the instance.
	AccionFinal string `json:"accion_final,omitempty"`

	Version       int       `json:"version"`
	CreadoEn      time.Time `json:"creado_en"`
	ActualizadoEn time.Time `json:"actualizado_en"`
}

// NewInstance creates an active instance positioned at startNodeID.
func NewInstance(id, flowID string, canal Canal, usuario, startNodeID string, now time.Time) *Instance {
	return &Instance{
		ID:                   id,
		FlowID:               flowID,
		Canal:                canal,
		IdentificadorUsuario: usuario,
		Estado:               InstanceActiva,
		Variables:            make(map[string]string),
		NodoActual:           startNodeID,
		Visitas:              make(map[string]int),
		CreadoEn:             now,
		ActualizadoEn:        now,
	}
}

// Suspended reports whether the instance is active and waiting for the next inbound message.
func (i *Instance) Suspended() bool {
	return i.Estado == InstanceActiva && i.Esperando != EsperaNinguna
}

// Clone returns a copy with its own maps, safe for mutation.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	next := *i
	next.Variables = make(map[string]string, len(i.Variables))
	for k, v := range i.Variables {
		next.Variables[k] = v
	}
	next.Visitas = make(map[string]int, len(i.Visitas))
	for k, v := range i.Visitas {
		next.Visitas[k] = v
	}
	return &next
}

// ConversationKey identifies the conversation a message belongs to, independent of any flow.
func ConversationKey(canal Canal, usuario string) string {
	return string(canal) + ":" + usuario
}
