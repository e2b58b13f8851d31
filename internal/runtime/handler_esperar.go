package runtime

import (
	"context"

	"github.com/aretw0/flujos/pkg/domain"
)

func handleEsperar(ctx context.Context, x *execution, node *domain.Node, input *string) (outcome, error) {
	d, err := datos[domain.EsperarData](node)
	if err != nil {
		return outcome{}, err
	}
	if input == nil {
		if d.MensajeEspera != "" {
			if err := x.send(ctx, node, x.resolve(d.MensajeEspera), nil); err != nil {
				return outcome{}, err
			}
		}
		return outcome{wait: domain.EsperaEntrada}, nil
	}

	x.set(d.VariableDestino, *input)
	return outcome{
		next:    x.replyEdge(node, *input),
		entrada: map[string]any{"respuesta": *input},
		salida:  map[string]any{d.VariableDestino: *input},
	}, nil
}
