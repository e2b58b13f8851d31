package runtime

import (
	"context"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/variables"
)

func handleCondicion(_ context.Context, x *execution, node *domain.Node, _ *string) (outcome, error) {
	d, err := datos[domain.CondicionData](node)
	if err != nil {
		return outcome{}, err
	}
	left, _ := x.lookup(variables.Name(d.Variable))
	right := x.resolve(d.Valor)
	result := Compare(d.Operador, left, right)

	to, err := x.resultEdge(node, result)
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		next:    to,
		entrada: map[string]any{"variable": d.Variable, "operador": d.Operador, "valor": right},
		salida:  map[string]any{"resultado": result, "actual": left},
	}, nil
}
