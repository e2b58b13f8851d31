package runtime

import (
	"context"

	"github.com/aretw0/flujos/pkg/domain"
)

// handleMensaje sends the message. With buttons the instance waits for a choice; when the
// next node classifies the reply it waits for free-form input; otherwise it advances.
func handleMensaje(ctx context.Context, x *execution, node *domain.Node, input *string) (outcome, error) {
	d, err := datos[domain.MensajeData](node)
	if err != nil {
		return outcome{}, err
	}
	botones := node.Buttons()

	if input != nil {
		if len(botones) == 0 {
			return outcome{next: x.next(node), entrada: map[string]any{"respuesta": *input}}, nil
		}
		i, ok := matchButton(botones, *input)
		if !ok {
			// Offer the options again without advancing.
			if err := x.send(ctx, node, x.resolve(d.Texto), botones); err != nil {
				return outcome{}, err
			}
			return outcome{
				wait:    domain.EsperaBotones,
				entrada: map[string]any{"respuesta": *input},
				salida:  map[string]any{"valido": false},
			}, nil
		}
		to, err := x.buttonEdge(node, i)
		if err != nil {
			return outcome{}, err
		}
		return outcome{
			next:    to,
			entrada: map[string]any{"respuesta": *input},
			salida:  map[string]any{"boton": i, "valor": botones[i]},
		}, nil
	}

	texto := x.resolve(d.Texto)
	if err := x.send(ctx, node, texto, botones); err != nil {
		return outcome{}, err
	}
	out := outcome{entrada: map[string]any{"texto": texto}}
	if len(botones) > 0 {
		out.entrada["botones"] = botones
		out.wait = domain.EsperaBotones
		return out, nil
	}

	next := x.next(node)
	if n, ok := x.flow.Node(next); ok && n.Tipo == domain.NodeReconocerRespuesta {
		out.wait = domain.EsperaEntrada
		return out, nil
	}
	out.next = next
	return out, nil
}
