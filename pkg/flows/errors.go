package flows

import (
	"errors"
	"fmt"
	"strings"
)

// Violation codes.
const (
	CodeInicioFaltante      = "inicio_faltante"
	CodeInicioDuplicado     = "inicio_duplicado"
	CodeInicioSalidas       = "inicio_salidas"
	CodeNodoIDVacio         = "nodo_id_vacio"
	CodeNodoDuplicado       = "nodo_duplicado"
	CodeTipoDesconocido     = "tipo_desconocido"
	CodeDatosInvalidos      = "datos_invalidos"
	CodeExpresionInvalida   = "expresion_invalida"
	CodeEdgeIDVacio         = "edge_id_vacio"
	CodeEdgeDuplicado       = "edge_duplicado"
	CodeEdgeOrigen          = "edge_origen_inexistente"
	CodeEdgeDestino         = "edge_destino_inexistente"
	CodeCondicionEdges      = "condicion_edges"
	CodeHandleInvalido      = "handle_invalido"
	CodeHandleDuplicado     = "handle_duplicado"
	CodeBotonSinEdge        = "boton_sin_edge"
	CodeSalidaDefault       = "salida_default_invalida"
	CodeSalidaAmbigua       = "salida_ambigua"
	CodeFinConSalida        = "fin_con_salida"
	CodeCanalesVacios       = "canales_vacios"
	CodeCanalInvalido       = "canal_invalido"
	CodeTriggerInvalido     = "trigger_invalido"
	CodeTriggerValorVacio   = "trigger_valor_vacio"
	CodeVariableNoDeclarada = "variable_no_declarada"
)

// Violation is one broken invariant of a flow graph.
type Violation struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	var where []string
	if v.NodeID != "" {
		where = append(where, "node "+v.NodeID)
	}
	if v.EdgeID != "" {
		where = append(where, "edge "+v.EdgeID)
	}
	if v.Field != "" {
		where = append(where, "field "+v.Field)
	}
	if len(where) == 0 {
		return fmt.Sprintf("[%s] %s", v.Code, v.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", v.Code, strings.Join(where, ", "), v.Message)
}

// ValidationError reports every invariant a flow violates.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "invalid flow: " + e.Violations[0].String()
	}
	msg := fmt.Sprintf("invalid flow, %d violations:\n", len(e.Violations))
	for i, v := range e.Violations {
		msg += fmt.Sprintf("  %d. %s\n", i+1, v.String())
	}
	return msg
}

// Has reports whether a violation with the given code is present.
func (e *ValidationError) Has(code string) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Violations returns the violations carried by err, or nil if err is not a *ValidationError.
func Violations(err error) []Violation {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Violations
	}
	return nil
}
