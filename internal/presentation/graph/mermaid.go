package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/flujos/pkg/domain"
)

// GraphOverlay contains execution state to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	FailedNodes  []string
	CurrentNode  string
	// TraversedEdges holds the ids of edges the instance actually followed.
	TraversedEdges map[string]bool
}

// GenerateMermaid produces a Mermaid flowchart for a flow.
// It applies semantic styling:
// - inicio: ((Circle))
// - pregunta / esperar: [/Parallelogram/]
// - condicion / reconocer_respuesta: {Rhombus}
// - side-effect nodes: [[Subroutine]]
// - transferir_humano: {{Hexagon}}
// - fin: ([Stadium])
// It also applies overlay styles (visited/current/error) if provided.
func GenerateMermaid(f *domain.Flow, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range f.Nodos {
		safeID := sanitizeMermaidID(node.ID)
		opener, closer := shape(node.Tipo)
		label := strings.ReplaceAll(node.ID, "\"", "'")
		sb.WriteString(fmt.Sprintf("    %s%s\"%s <br/> %s\"%s\n", safeID, opener, label, node.Tipo, closer))
	}

	for i, e := range f.Edges {
		from, to := sanitizeMermaidID(e.Origen), sanitizeMermaidID(e.Destino)
		arrow := "-->"
		if overlay != nil && overlay.TraversedEdges[e.ID] {
			arrow = "==>"
		}
		if text := edgeLabel(e); text != "" {
			text = strings.ReplaceAll(text, "\"", "'")
			arrow = fmt.Sprintf("-- \"%s\" -->", text)
			if overlay != nil && overlay.TraversedEdges[e.ID] {
				arrow = fmt.Sprintf("== \"%s\" ==>", text)
			}
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", from, arrow, to))
		if overlay != nil && overlay.TraversedEdges[e.ID] {
			sb.WriteString(fmt.Sprintf("    linkStyle %d stroke:#01579b,stroke-width:3px;\n", i))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high contrast regardless of theme
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#b71c1c,stroke-width:3px,color:#000;\n")

		styled := make(map[string]bool)
		writeClass := func(ids []string, class string) {
			for _, id := range ids {
				safeID := sanitizeMermaidID(id)
				if safeID == "" || styled[safeID] {
					continue
				}
				styled[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s %s;\n", safeID, class))
			}
		}
		// Failure and position win over a plain visit.
		writeClass(overlay.FailedNodes, "failed")
		if overlay.CurrentNode != "" {
			writeClass([]string{overlay.CurrentNode}, "current")
		}
		writeClass(overlay.VisitedNodes, "visited")
	}

	return sb.String()
}

func shape(t domain.NodeType) (string, string) {
	switch t {
	case domain.NodeInicio:
		return "((", "))"
	case domain.NodePregunta, domain.NodeEsperar:
		return "[/", "/]"
	case domain.NodeCondicion, domain.NodeReconocerRespuesta:
		return "{", "}"
	case domain.NodeGuardarBD, domain.NodeBuscarConocimiento, domain.NodeRespuestaIA,
		domain.NodeUsarAgente, domain.NodeCrearTarea, domain.NodeAgendarCita:
		return "[[", "]]"
	case domain.NodeTransferirHumano:
		return "{{", "}}"
	case domain.NodeFin:
		return "([", "])"
	}
	return "[", "]"
}

func edgeLabel(e domain.Edge) string {
	if e.Label != "" {
		return e.Label
	}
	switch c := e.Condicion.(type) {
	case domain.Boton:
		if c.Valor != "" {
			return c.Valor
		}
		return fmt.Sprintf("boton %d", c.Indice+1)
	case domain.ResultadoTrue:
		return "sí"
	case domain.ResultadoFalse:
		return "no"
	case domain.SalidaIA:
		return c.Valor
	case domain.RespuestaExacta:
		return "= " + c.Valor
	case domain.RespuestaContiene:
		return "~ " + c.Valor
	}
	return ""
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
