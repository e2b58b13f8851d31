package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/flows"
	"github.com/aretw0/flujos/pkg/ports"
)

func handleCrearTarea(ctx context.Context, x *execution, node *domain.Node, _ *string) (outcome, error) {
	d, err := datos[domain.CrearTareaData](node)
	if err != nil {
		return outcome{}, err
	}
	tasks := x.engine.adapters.Tasks
	if tasks == nil {
		return outcome{}, fmt.Errorf("%w: tasks", ErrNoAdapter)
	}

	prioridad := d.Prioridad
	if prioridad == "" {
		prioridad = "media"
	}
	task := ports.Task{
		Titulo:         x.resolve(d.Titulo),
		Descripcion:    x.resolve(d.Descripcion),
		Prioridad:      prioridad,
		InstanceID:     x.inst.ID,
		IdempotencyKey: x.idempotencyKey(node),
	}

	var id string
	err = x.call(ctx, node, "tasks", func(ctx context.Context) error {
		var err error
		id, err = tasks.Create(ctx, task)
		return err
	})
	if err != nil {
		return outcome{}, err
	}
	x.set(flows.VarUltimaTareaID, id)
	return outcome{
		next:    x.next(node),
		entrada: map[string]any{"titulo": task.Titulo, "prioridad": prioridad},
		salida:  map[string]any{"id": id},
	}, nil
}
