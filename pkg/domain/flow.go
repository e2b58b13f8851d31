package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Canal identifies the messaging channel a conversation happens on.
type Canal string

const (
	CanalWhatsApp  Canal = "whatsapp"
	CanalInstagram Canal = "instagram"
	CanalWeb       Canal = "web"
)

// Valid reports whether c is one of the supported channels.
func (c Canal) Valid() bool {
	switch c {
	case CanalWhatsApp, CanalInstagram, CanalWeb:
		return true
	}
	return false
}

// FlowEstado is the lifecycle state of a flow definition.
type FlowEstado string

const (
	FlowBorrador FlowEstado = "borrador" // Editable, never matched
	FlowActivo   FlowEstado = "activo"   // Matched against inbound messages
	FlowPausado  FlowEstado = "pausado"  // Kept, but not matched
)

// TriggerTipo selects how a flow is started.
type TriggerTipo string

const (
	TriggerKeyword      TriggerTipo = "keyword"
	TriggerFirstMessage TriggerTipo = "first_message"
)

// TriggerModo selects how keywords are compared against the inbound text.
type TriggerModo string

const (
	ModoContiene TriggerModo = "contiene"
	ModoIgual    TriggerModo = "igual"
)

// Trigger is the rule deciding when a flow begins for an inbound message.
type Trigger struct {
	Tipo  TriggerTipo `json:"trigger_tipo" yaml:"trigger_tipo"`
	Modo  TriggerModo `json:"trigger_modo,omitempty" yaml:"trigger_modo,omitempty"`
	Valor string      `json:"trigger_valor,omitempty" yaml:"trigger_valor,omitempty"`
}

// Keywords splits Valor on '|' and returns the trimmed, non-empty keywords.
func (t Trigger) Keywords() []string {
	parts := strings.Split(t.Valor, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Flow is a directed graph describing an automated conversation.
type Flow struct {
	ID          string `json:"id" yaml:"id"`
	MarcaID     string `json:"marca_id,omitempty" yaml:"marca_id,omitempty"`
	Nombre      string `json:"nombre" yaml:"nombre"`
	Descripcion string `json:"descripcion,omitempty" yaml:"descripcion,omitempty"`

	Trigger `yaml:",inline"`

	Canales []Canal    `json:"canales" yaml:"canales"`
	Estado  FlowEstado `json:"estado" yaml:"estado"`
	Nodos   []Node     `json:"nodos" yaml:"nodos"`
	Edges   []Edge     `json:"edges" yaml:"edges"`

	// Version is incremented by the store on every successful write.
	Version       int       `json:"version" yaml:"version"`
	CreadoEn      time.Time `json:"creado_en" yaml:"creado_en"`
	ActualizadoEn time.Time `json:"actualizado_en" yaml:"actualizado_en"`
}

// Node returns the node with the given id.
func (f *Flow) Node(id string) (*Node, bool) {
	for i := range f.Nodos {
		if f.Nodos[i].ID == id {
			return &f.Nodos[i], true
		}
	}
	return nil, false
}

// StartNode returns the first inicio node of the flow.
func (f *Flow) StartNode() (*Node, bool) {
	for i := range f.Nodos {
		if f.Nodos[i].Tipo == NodeInicio {
			return &f.Nodos[i], true
		}
	}
	return nil, false
}

// Outgoing returns the edges leaving nodeID, sorted by handle and id for deterministic routing.
func (f *Flow) Outgoing(nodeID string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Origen == nodeID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SourceHandle != out[j].SourceHandle {
			return out[i].SourceHandle < out[j].SourceHandle
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HasCanal reports whether the flow is scoped to canal.
func (f *Flow) HasCanal(canal Canal) bool {
	for _, c := range f.Canales {
		if c == canal {
			return true
		}
	}
	return false
}

// Normalize keeps SourceHandle and Condicion of every edge consistent with each other,
// deriving whichever one is missing from the kind of the source node.
func (f *Flow) Normalize() {
	for i := range f.Edges {
		e := &f.Edges[i]
		src, ok := f.Node(e.Origen)
		if !ok {
			continue
		}
		if e.Condicion == nil && e.SourceHandle != "" {
			e.Condicion = ParseHandle(src.Tipo, e.SourceHandle)
		}
		if e.SourceHandle == "" && e.Condicion != nil {
			e.SourceHandle = HandleFor(e.Condicion)
		}
	}
}

// Clone returns a deep copy of the flow.
func (f *Flow) Clone() (*Flow, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal flow: %w", err)
	}
	var out Flow
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
	}
	return &out, nil
}
