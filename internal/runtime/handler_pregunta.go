package runtime

import (
	"context"
	"strings"

	"github.com/aretw0/flujos/pkg/domain"
)

// handlePregunta asks on the first visit and suspends. On resume it validates the reply,
// re-prompting without advancing when it does not fit.
func handlePregunta(ctx context.Context, x *execution, node *domain.Node, input *string) (outcome, error) {
	d, err := datos[domain.PreguntaData](node)
	if err != nil {
		return outcome{}, err
	}
	espera := domain.EsperaEntrada
	if len(d.Botones) > 0 {
		espera = domain.EsperaBotones
	}

	if input == nil {
		texto := x.resolve(d.Texto)
		if err := x.send(ctx, node, texto, d.Botones); err != nil {
			return outcome{}, err
		}
		return outcome{wait: espera, entrada: map[string]any{"texto": texto}}, nil
	}

	reply := *input
	entrada := map[string]any{"respuesta": reply}

	if len(d.Botones) > 0 {
		if i, ok := matchButton(d.Botones, reply); ok {
			to, err := x.buttonEdge(node, i)
			if err != nil {
				return outcome{}, err
			}
			x.set(d.VariableDestino, d.Botones[i])
			return outcome{
				next:    to,
				entrada: entrada,
				salida:  map[string]any{"valido": true, "boton": i, d.VariableDestino: d.Botones[i]},
			}, nil
		}
		// Free text is only accepted when a fallback edge exists.
		if _, ok := x.defaultEdge(node); !ok || d.TipoRespuesta == RespuestaOpcion {
			return x.reprompt(ctx, node, d, espera, entrada)
		}
	}

	if strings.TrimSpace(reply) == "" && d.Validacion.Requerido {
		return x.reprompt(ctx, node, d, espera, entrada)
	}
	value, ok := checkReply(d.TipoRespuesta, reply)
	if !ok && (d.Validacion.Requerido || strings.TrimSpace(reply) != "") {
		return x.reprompt(ctx, node, d, espera, entrada)
	}

	x.set(d.VariableDestino, value)
	return outcome{
		next:    x.replyEdge(node, reply),
		entrada: entrada,
		salida:  map[string]any{"valido": true, d.VariableDestino: value},
	}, nil
}

func (x *execution) reprompt(ctx context.Context, node *domain.Node, d domain.PreguntaData, espera domain.Espera, entrada map[string]any) (outcome, error) {
	msg := d.Validacion.MensajeError
	if strings.TrimSpace(msg) == "" {
		msg = DefaultMensajeError
	}
	if err := x.send(ctx, node, x.resolve(msg), d.Botones); err != nil {
		return outcome{}, err
	}
	return outcome{
		wait:      espera,
		logEstado: domain.LogEsperando,
		entrada:   entrada,
		salida:    map[string]any{"valido": false},
	}, nil
}
