package runtime

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/flujos/pkg/domain"
)

// conditionOf returns the routing condition of an edge, deriving it from the handle for
// flows that were stored without normalized conditions.
func (x *execution) conditionOf(e domain.Edge) domain.Condition {
	if e.Condicion != nil || e.SourceHandle == "" {
		return e.Condicion
	}
	src, ok := x.flow.Node(e.Origen)
	if !ok {
		return nil
	}
	return domain.ParseHandle(src.Tipo, e.SourceHandle)
}

// pick returns the destination of the first edge leaving node whose condition satisfies
// match, and remembers that edge as the one the current step routed through.
func (x *execution) pick(node *domain.Node, match func(domain.Condition) bool) (string, bool) {
	for _, e := range x.flow.Outgoing(node.ID) {
		if match(x.conditionOf(e)) {
			x.routed = e.ID
			return e.Destino, true
		}
	}
	x.routed = ""
	return "", false
}

// defaultEdge returns the destination of the first unconditional edge leaving node.
func (x *execution) defaultEdge(node *domain.Node) (string, bool) {
	return x.pick(node, func(c domain.Condition) bool { return c == nil })
}

// next returns the default destination, or "" when the node is a dead end.
func (x *execution) next(node *domain.Node) string {
	to, _ := x.defaultEdge(node)
	return to
}

// edgeWhere returns the destination of the first edge whose condition satisfies match.
func (x *execution) edgeWhere(node *domain.Node, match func(domain.Condition) bool) (string, bool) {
	return x.pick(node, func(c domain.Condition) bool { return c != nil && match(c) })
}

func (x *execution) buttonEdge(node *domain.Node, index int) (string, error) {
	to, ok := x.edgeWhere(node, func(c domain.Condition) bool {
		b, ok := c.(domain.Boton)
		return ok && b.Indice == index
	})
	if !ok {
		return "", fmt.Errorf("%w: button %d", ErrNoRoute, index)
	}
	return to, nil
}

func (x *execution) resultEdge(node *domain.Node, result bool) (string, error) {
	to, ok := x.edgeWhere(node, func(c domain.Condition) bool {
		if result {
			_, ok := c.(domain.ResultadoTrue)
			return ok
		}
		_, ok := c.(domain.ResultadoFalse)
		return ok
	})
	if !ok {
		return "", fmt.Errorf("%w: resultado %t", ErrNoRoute, result)
	}
	return to, nil
}

func (x *execution) salidaEdge(node *domain.Node, salida string) (string, bool) {
	return x.edgeWhere(node, func(c domain.Condition) bool {
		s, ok := c.(domain.SalidaIA)
		return ok && s.Valor == salida
	})
}

// replyEdge routes free-form input: respuesta_exacta and respuesta_contiene edges first,
// in edge order, then the unconditional edge.
func (x *execution) replyEdge(node *domain.Node, reply string) string {
	text := strings.ToLower(strings.TrimSpace(reply))
	to, ok := x.edgeWhere(node, func(c domain.Condition) bool {
		switch c := c.(type) {
		case domain.RespuestaExacta:
			return text == strings.ToLower(strings.TrimSpace(c.Valor))
		case domain.RespuestaContiene:
			v := strings.ToLower(strings.TrimSpace(c.Valor))
			return v != "" && strings.Contains(text, v)
		}
		return false
	})
	if ok {
		return to
	}
	return x.next(node)
}

// matchButton maps a reply to a button index. It accepts the label, ignoring case,
// or the 1-based position of the button.
func matchButton(botones []string, reply string) (int, bool) {
	text := strings.TrimSpace(reply)
	for i, b := range botones {
		if strings.EqualFold(text, strings.TrimSpace(b)) {
			return i, true
		}
	}
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(botones) {
		return n - 1, true
	}
	return 0, false
}
