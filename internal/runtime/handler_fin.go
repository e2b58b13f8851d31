package runtime

import (
	"context"

	"github.com/aretw0/flujos/pkg/domain"
)

func handleFin(ctx context.Context, x *execution, node *domain.Node, _ *string) (outcome, error) {
	d, err := datos[domain.FinData](node)
	if err != nil {
		return outcome{}, err
	}
	if d.MensajeDespedida != "" {
		if err := x.send(ctx, node, x.resolve(d.MensajeDespedida), nil); err != nil {
			return outcome{}, err
		}
	}
	accion := d.Accion
	if accion == "" {
		accion = domain.AccionCerrar
	}
	return outcome{
		estado: domain.InstanceCompletada,
		accion: accion,
		salida: map[string]any{"accion": accion},
	}, nil
}
