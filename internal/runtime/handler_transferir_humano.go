package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
)

// DefaultMensajeEjecutivo is sent to operators when the node sets no message of its own.
const DefaultMensajeEjecutivo = "Conversación transferida desde un flujo automático."

// handleTransferirHumano notifies operators and parks the instance in estado transferida.
func handleTransferirHumano(ctx context.Context, x *execution, node *domain.Node, _ *string) (outcome, error) {
	d, err := datos[domain.TransferirHumanoData](node)
	if err != nil {
		return outcome{}, err
	}
	h := x.engine.adapters.Handoff
	if h == nil {
		return outcome{}, fmt.Errorf("%w: handoff", ErrNoAdapter)
	}

	mensaje := x.resolve(d.MensajeEjecutivo)
	if mensaje == "" {
		mensaje = DefaultMensajeEjecutivo
	}
	req := ports.HandoffRequest{
		Kind:                 ports.HandoffTransfer,
		InstanceID:           x.inst.ID,
		FlowID:               x.flow.ID,
		Canal:                x.inst.Canal,
		IdentificadorUsuario: x.inst.IdentificadorUsuario,
		Mensaje:              mensaje,
		Motivo:               x.resolve(d.Motivo),
		Variables:            x.variablesCopy(),
	}
	if err := x.call(ctx, node, "handoff", func(ctx context.Context) error {
		return h.Notify(ctx, req)
	}); err != nil {
		return outcome{}, err
	}

	if d.MensajeUsuario != "" {
		if err := x.send(ctx, node, x.resolve(d.MensajeUsuario), nil); err != nil {
			return outcome{}, err
		}
	}
	return outcome{
		estado:  domain.InstanceTransferida,
		entrada: map[string]any{"motivo": req.Motivo},
		salida:  map[string]any{"mensaje_ejecutivo": mensaje},
	}, nil
}
