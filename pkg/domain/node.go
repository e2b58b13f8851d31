package domain

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// NodeType defines the behavior of a step in the flow.
type NodeType string

const (
	NodeInicio             NodeType = "inicio"
	NodeMensaje            NodeType = "mensaje"
	NodePregunta           NodeType = "pregunta"
	NodeCondicion          NodeType = "condicion"
	NodeGuardarVariable    NodeType = "guardar_variable"
	NodeGuardarBD          NodeType = "guardar_bd"
	NodeBuscarConocimiento NodeType = "buscar_conocimiento"
	NodeRespuestaIA        NodeType = "respuesta_ia"
	NodeCrearTarea         NodeType = "crear_tarea"
	NodeTransferirHumano   NodeType = "transferir_humano"
	NodeAgendarCita        NodeType = "agendar_cita"
	NodeReconocerRespuesta NodeType = "reconocer_respuesta"
	NodeUsarAgente         NodeType = "usar_agente"
	NodeEsperar            NodeType = "esperar"
	NodeFin                NodeType = "fin"
)

// NodeTypes lists every supported node kind.
var NodeTypes = []NodeType{
	NodeInicio, NodeMensaje, NodePregunta, NodeCondicion, NodeGuardarVariable,
	NodeGuardarBD, NodeBuscarConocimiento, NodeRespuestaIA, NodeCrearTarea,
	NodeTransferirHumano, NodeAgendarCita, NodeReconocerRespuesta, NodeUsarAgente,
	NodeEsperar, NodeFin,
}

// Valid reports whether t is a known node kind.
func (t NodeType) Valid() bool {
	for _, k := range NodeTypes {
		if k == t {
			return true
		}
	}
	return false
}

// ConsumesInput reports whether the node kind suspends the instance for free-form input.
func (t NodeType) ConsumesInput() bool {
	return t == NodePregunta || t == NodeEsperar
}

// Position is the canvas placement of a node.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node represents a typed step in the flow graph.
type Node struct {
	ID       string
	Tipo     NodeType
	Posicion Position
	// Datos carries the payload for Tipo. Its dynamic type always matches Tipo.
	Datos NodeData
}

type nodeWire struct {
	ID       string         `json:"id" yaml:"id"`
	Tipo     NodeType       `json:"tipo" yaml:"tipo"`
	Posicion Position       `json:"posicion" yaml:"posicion"`
	Datos    map[string]any `json:"datos,omitempty" yaml:"datos,omitempty"`
}

type nodeOut struct {
	ID       string   `json:"id" yaml:"id"`
	Tipo     NodeType `json:"tipo" yaml:"tipo"`
	Posicion Position `json:"posicion" yaml:"posicion"`
	Datos    NodeData `json:"datos" yaml:"datos"`
}

// MarshalJSON encodes the node with its typed payload under "datos".
func (n Node) MarshalJSON() ([]byte, error) {
	datos := n.Datos
	if datos == nil {
		datos = emptyData(n.Tipo)
	}
	return json.Marshal(nodeOut{ID: n.ID, Tipo: n.Tipo, Posicion: n.Posicion, Datos: datos})
}

// UnmarshalJSON decodes "datos" into the variant selected by "tipo".
func (n *Node) UnmarshalJSON(data []byte) error {
	var w nodeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return n.fromWire(w)
}

// MarshalYAML mirrors MarshalJSON for YAML flow files.
func (n Node) MarshalYAML() (any, error) {
	datos := n.Datos
	if datos == nil {
		datos = emptyData(n.Tipo)
	}
	return nodeOut{ID: n.ID, Tipo: n.Tipo, Posicion: n.Posicion, Datos: datos}, nil
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML flow files.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var w nodeWire
	if err := value.Decode(&w); err != nil {
		return err
	}
	return n.fromWire(w)
}

func (n *Node) fromWire(w nodeWire) error {
	datos, err := DecodeData(w.Tipo, w.Datos)
	if err != nil {
		return fmt.Errorf("node %q: %w", w.ID, err)
	}
	n.ID = w.ID
	n.Tipo = w.Tipo
	n.Posicion = w.Posicion
	n.Datos = datos
	return nil
}
