package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/flows"
	"github.com/aretw0/flujos/pkg/ports"
)

// DefaultMaxResultados is the knowledge search limit when a node does not set one.
const DefaultMaxResultados = 3

func handleBuscarConocimiento(ctx context.Context, x *execution, node *domain.Node, _ *string) (outcome, error) {
	d, err := datos[domain.BuscarConocimientoData](node)
	if err != nil {
		return outcome{}, err
	}
	kb := x.engine.adapters.Knowledge
	if kb == nil {
		return outcome{}, fmt.Errorf("%w: knowledge search", ErrNoAdapter)
	}

	query := x.resolve(d.Consulta)
	limit := d.MaxResultados
	if limit <= 0 {
		limit = DefaultMaxResultados
	}

	var hits []ports.Snippet
	err = x.call(ctx, node, "knowledge", func(ctx context.Context) error {
		var err error
		hits, err = kb.Search(ctx, query, d.Categorias, limit)
		return err
	})
	if err != nil {
		return outcome{}, err
	}

	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Titulo != "" {
			parts = append(parts, h.Titulo+": "+h.Contenido)
			continue
		}
		parts = append(parts, h.Contenido)
	}
	raw, err := json.Marshal(hits)
	if err != nil {
		return outcome{}, fmt.Errorf("failed to encode results: %w", err)
	}

	dest := d.VariableDestino
	if dest == "" {
		dest = flows.VarContextoConocimiento
	}
	x.set(dest, strings.Join(parts, "\n\n"))
	x.set(dest+flows.RawSuffix, string(raw))

	return outcome{
		next:    x.next(node),
		entrada: map[string]any{"consulta": query, "categorias": d.Categorias, "limite": limit},
		salida:  map[string]any{"resultados": len(hits), "variable": dest},
	}, nil
}
