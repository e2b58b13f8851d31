package monitor

import (
	"context"
	"errors"

	"github.com/aretw0/flujos/internal/presentation/graph"
	"github.com/aretw0/flujos/pkg/domain"
)

// NodeTrace is the reconstructed state of one node.
type NodeTrace struct {
	NodoID string            `json:"nodo_id"`
	Tipo   domain.NodeType   `json:"tipo"`
	Estado domain.LogEstado  `json:"estado"`
	// Visitas counts the log entries written for the node.
	Visitas int              `json:"visitas"`
	Ultima  *domain.LogEntry `json:"ultima,omitempty"`
}

// EdgeTrace marks whether the instance followed an edge.
type EdgeTrace struct {
	Edge      domain.Edge `json:"edge"`
	Recorrido bool        `json:"recorrido"`
}

// Replay joins an instance's log with its flow graph.
type Replay struct {
	Instance *domain.Instance `json:"instance"`
	// Flow is nil when the flow was deleted after the instance ran.
	Flow  *domain.Flow     `json:"flow,omitempty"`
	Nodos []NodeTrace      `json:"nodos"`
	Edges []EdgeTrace      `json:"edges"`
	// Camino is the sequence of nodes executed, consecutive repeats collapsed.
	Camino []string         `json:"camino"`
	Logs   []domain.LogEntry `json:"logs"`
}

// Replay reconstructs the execution of an instance. Every node of the flow without
// log entries is reported as no_alcanzado; for the others the latest entry wins.
func (s *Service) Replay(ctx context.Context, id string) (*Replay, error) {
	inst, err := s.instances.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.logs.List(ctx, id)
	if err != nil {
		return nil, err
	}
	flow, err := s.flows.Get(ctx, inst.FlowID)
	if err != nil {
		if !errors.Is(err, domain.ErrFlowNotFound) {
			return nil, err
		}
		s.logger.WarnContext(ctx, "replaying instance of a deleted flow", "instance_id", id, "flow_id", inst.FlowID)
		flow = nil
	}
	return Build(inst, flow, entries), nil
}

// Build assembles a Replay from already loaded data. flow may be nil.
func Build(inst *domain.Instance, flow *domain.Flow, entries []domain.LogEntry) *Replay {
	r := &Replay{Instance: inst, Flow: flow, Logs: entries}

	latest := make(map[string]int, len(entries))
	visits := make(map[string]int, len(entries))
	var seen []string
	for i, e := range entries {
		if _, ok := latest[e.NodoID]; !ok {
			seen = append(seen, e.NodoID)
		}
		latest[e.NodoID] = i
		visits[e.NodoID]++
		if n := len(r.Camino); n == 0 || r.Camino[n-1] != e.NodoID {
			r.Camino = append(r.Camino, e.NodoID)
		}
	}

	trace := func(id string, tipo domain.NodeType) NodeTrace {
		i, ok := latest[id]
		if !ok {
			return NodeTrace{NodoID: id, Tipo: tipo, Estado: domain.LogNoAlcanzado}
		}
		e := entries[i]
		return NodeTrace{NodoID: id, Tipo: e.TipoNodo, Estado: e.Estado, Visitas: visits[id], Ultima: &e}
	}

	if flow == nil {
		for _, id := range seen {
			r.Nodos = append(r.Nodos, trace(id, ""))
		}
		return r
	}

	for _, n := range flow.Nodos {
		nt := trace(n.ID, n.Tipo)
		nt.Tipo = n.Tipo
		r.Nodos = append(r.Nodos, nt)
	}

	routed, steps := traversals(entries)
	for _, e := range flow.Edges {
		recorrido := (e.ID != "" && routed[e.ID]) || steps[[2]string{e.Origen, e.Destino}]
		r.Edges = append(r.Edges, EdgeTrace{Edge: e, Recorrido: recorrido})
	}
	return r
}

// traversals collects the edges entries say they left by. Moves between nodes whose
// leaving entry names no edge are returned as (origen, destino) pairs instead.
func traversals(entries []domain.LogEntry) (map[string]bool, map[[2]string]bool) {
	routed := make(map[string]bool)
	steps := make(map[[2]string]bool)
	for i, e := range entries {
		if id, ok := e.DatosSalida[domain.LogEdgeKey].(string); ok && id != "" {
			routed[id] = true
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if prev.NodoID == e.NodoID {
			continue
		}
		if id, ok := prev.DatosSalida[domain.LogEdgeKey].(string); ok && id != "" {
			continue
		}
		steps[[2]string{prev.NodoID, e.NodoID}] = true
	}
	return routed, steps
}

// Node returns the trace of one node.
func (r *Replay) Node(id string) (NodeTrace, bool) {
	for _, n := range r.Nodos {
		if n.NodoID == id {
			return n, true
		}
	}
	return NodeTrace{}, false
}

// Mermaid renders the replay as a Mermaid flowchart with visited, current and failed nodes highlighted.
// It returns "" when the flow is gone.
func (r *Replay) Mermaid() string {
	if r.Flow == nil {
		return ""
	}
	overlay := &graph.GraphOverlay{TraversedEdges: make(map[string]bool)}
	for _, n := range r.Nodos {
		switch n.Estado {
		case domain.LogError:
			overlay.FailedNodes = append(overlay.FailedNodes, n.NodoID)
		case domain.LogEjecutado, domain.LogEsperando:
			overlay.VisitedNodes = append(overlay.VisitedNodes, n.NodoID)
		}
	}
	if r.Instance != nil && !r.Instance.Estado.Terminal() {
		overlay.CurrentNode = r.Instance.NodoActual
	}
	for _, e := range r.Edges {
		if e.Recorrido {
			overlay.TraversedEdges[e.Edge.ID] = true
		}
	}
	return graph.GenerateMermaid(r.Flow, overlay)
}
