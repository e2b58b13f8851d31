package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
)

// DefaultTabla receives guardar_bd rows from nodes that do not name a table.
const DefaultTabla = "registros"

func handleGuardarBD(ctx context.Context, x *execution, node *domain.Node, _ *string) (outcome, error) {
	d, err := datos[domain.GuardarBDData](node)
	if err != nil {
		return outcome{}, err
	}
	store := x.engine.adapters.Data
	if store == nil {
		return outcome{}, fmt.Errorf("%w: data store", ErrNoAdapter)
	}

	campos := make(map[string]string, len(d.Campos))
	for k, v := range d.Campos {
		campos[k] = x.resolve(v)
	}
	tabla := d.Tabla
	if tabla == "" {
		tabla = DefaultTabla
	}
	req := ports.WriteRequest{
		Tabla:          tabla,
		Campos:         campos,
		InstanceID:     x.inst.ID,
		IdempotencyKey: x.idempotencyKey(node),
	}

	var id string
	err = x.call(ctx, node, "data_store", func(ctx context.Context) error {
		var err error
		id, err = store.Write(ctx, req)
		return err
	})
	if err != nil {
		return outcome{}, err
	}

	entrada := make(map[string]any, len(campos)+1)
	for k, v := range campos {
		entrada[k] = v
	}
	entrada["tabla"] = tabla
	return outcome{
		next:    x.next(node),
		entrada: entrada,
		salida:  map[string]any{"id": id},
	}, nil
}
