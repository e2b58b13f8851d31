package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/flows"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/aretw0/flujos/pkg/variables"
)

// ErrUnrecognized is returned when the classifier picks no configured salida and the node has no default.
var ErrUnrecognized = fmt.Errorf("%w: reply not recognized", ErrNoRoute)

func (x *execution) ai() (ports.AI, error) {
	if x.engine.adapters.AI == nil {
		return nil, fmt.Errorf("%w: ai", ErrNoAdapter)
	}
	return x.engine.adapters.AI, nil
}

func (x *execution) completeAI(ctx context.Context, node *domain.Node, prompt string, c ports.AIContext) (string, error) {
	ai, err := x.ai()
	if err != nil {
		return "", err
	}
	var reply string
	err = x.call(ctx, node, "ai", func(ctx context.Context) error {
		var err error
		reply, err = ai.Complete(ctx, prompt, c)
		return err
	})
	return reply, err
}

func handleRespuestaIA(ctx context.Context, x *execution, node *domain.Node, _ *string) (outcome, error) {
	d, err := datos[domain.RespuestaIAData](node)
	if err != nil {
		return outcome{}, err
	}
	c := ports.AIContext{UltimaRespuesta: x.inst.UltimaRespuesta}
	if d.IncluirVariables {
		c.Variables = x.variablesCopy()
	}
	if d.UsarConocimiento {
		c.Conocimiento = x.inst.Variables[flows.VarContextoConocimiento]
	}

	prompt := x.resolve(d.Instrucciones)
	reply, err := x.completeAI(ctx, node, prompt, c)
	if err != nil {
		return outcome{}, err
	}
	x.set(flows.VarRespuestaIA, reply)
	if err := x.send(ctx, node, reply, nil); err != nil {
		return outcome{}, err
	}
	return outcome{
		next:    x.next(node),
		entrada: map[string]any{"instrucciones": prompt},
		salida:  map[string]any{"respuesta": reply},
	}, nil
}

func handleUsarAgente(ctx context.Context, x *execution, node *domain.Node, _ *string) (outcome, error) {
	d, err := datos[domain.UsarAgenteData](node)
	if err != nil {
		return outcome{}, err
	}
	c := ports.AIContext{
		Variables:       x.variablesCopy(),
		Conocimiento:    x.inst.Variables[flows.VarContextoConocimiento],
		UltimaRespuesta: x.inst.UltimaRespuesta,
		AgenteID:        d.AgenteID,
	}
	prompt := x.resolve(d.Instrucciones)
	reply, err := x.completeAI(ctx, node, prompt, c)
	if err != nil {
		return outcome{}, err
	}

	dest := d.VariableDestino
	if dest == "" {
		dest = flows.VarRespuestaAgente
	}
	x.set(dest, reply)
	if d.EnviarRespuesta {
		if err := x.send(ctx, node, reply, nil); err != nil {
			return outcome{}, err
		}
	}
	return outcome{
		next:    x.next(node),
		entrada: map[string]any{"agente_id": d.AgenteID, "instrucciones": prompt},
		salida:  map[string]any{dest: reply},
	}, nil
}

// handleReconocerRespuesta classifies ultima_respuesta into one of the salidas and
// stores the requested extractions.
func handleReconocerRespuesta(ctx context.Context, x *execution, node *domain.Node, _ *string) (outcome, error) {
	d, err := datos[domain.ReconocerRespuestaData](node)
	if err != nil {
		return outcome{}, err
	}
	ai, err := x.ai()
	if err != nil {
		return outcome{}, err
	}

	labels := make([]ports.Label, len(d.Salidas))
	for i, s := range d.Salidas {
		labels[i] = ports.Label{ID: s.ID, Etiqueta: s.Etiqueta, Descripcion: s.Descripcion}
	}
	fields := make([]ports.Field, len(d.Extracciones))
	for i, f := range d.Extracciones {
		fields[i] = ports.Field{Name: f.Variable, Descripcion: f.Descripcion}
	}
	text := x.inst.UltimaRespuesta
	c := ports.AIContext{
		Variables:       x.variablesCopy(),
		UltimaRespuesta: text,
		Instrucciones:   x.resolve(d.Instrucciones),
	}

	var cls ports.Classification
	err = x.call(ctx, node, "ai", func(ctx context.Context) error {
		var err error
		cls, err = ai.Classify(ctx, text, labels, fields, c)
		return err
	})
	if err != nil {
		return outcome{}, err
	}

	extracted := map[string]any{}
	for _, f := range d.Extracciones {
		if v, ok := cls.Fields[f.Variable]; ok && !variables.IsSystem(f.Variable) {
			x.set(f.Variable, v)
			extracted[f.Variable] = v
		}
	}

	salida := cls.Label
	to, ok := x.salidaEdge(node, salida)
	if !ok && d.SalidaDefault != "" {
		salida = d.SalidaDefault
		to, ok = x.salidaEdge(node, salida)
	}
	if !ok {
		return outcome{}, fmt.Errorf("%w: classifier returned %q", ErrUnrecognized, cls.Label)
	}
	return outcome{
		next:    to,
		entrada: map[string]any{"texto": text},
		salida:  map[string]any{"salida": salida, "clasificacion": cls.Label, "extracciones": extracted},
	}, nil
}
