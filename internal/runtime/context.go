package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/variables"
)

// execution is the state of one run of one instance.
type execution struct {
	engine *Engine
	flow   *domain.Flow
	inst   *domain.Instance
	res    *Result
	// routed is the id of the edge picked by the running handler, if any.
	routed string
}

// outcome is what a handler decided for the instance.
type outcome struct {
	// next is the node to continue at. Empty with no other field set ends the conversation.
	next string
	// wait suspends the instance at the current node.
	wait domain.Espera
	// estado moves the instance to transferida or completada.
	estado domain.InstanceEstado
	accion string

	logEstado domain.LogEstado
	entrada   map[string]any
	salida    map[string]any
}

// run executes nodes until the instance stops. It reports whether a fin node asked to restart the flow.
// Node failures end the run with the instance in estado error; only store failures are returned.
func (x *execution) run(ctx context.Context, input *string, budget *int) (bool, error) {
	e, inst := x.engine, x.inst
	for {
		node, ok := x.flow.Node(inst.NodoActual)
		if !ok {
			return false, x.fail(ctx, &domain.Node{ID: inst.NodoActual}, time.Now(), ErrNodeMissing)
		}
		if *budget <= 0 {
			return false, x.fail(ctx, node, time.Now(), ErrStepLimit)
		}
		*budget--

		if inst.Visitas == nil {
			inst.Visitas = make(map[string]int)
		}
		inst.Visitas[node.ID]++
		started := time.Now()
		e.emitNodeEnter(ctx, x, node)

		x.routed = ""
		out, err := x.invoke(ctx, node, input)
		input = nil
		if err != nil {
			return false, x.fail(ctx, node, started, err)
		}

		estado := out.logEstado
		if estado == "" {
			estado = domain.LogEjecutado
			if out.wait != domain.EsperaNinguna {
				estado = domain.LogEsperando
			}
		}
		salida := out.salida
		if out.next != "" && x.routed != "" && out.wait == domain.EsperaNinguna && out.estado == "" {
			salida = withRoutedEdge(salida, x.routed)
		}
		if err := x.record(ctx, node, started, estado, out.entrada, salida, nil); err != nil {
			return false, err
		}

		switch {
		case out.wait != domain.EsperaNinguna:
			inst.Esperando = out.wait
			x.res.Motivo = MotivoSuspendida
			return false, nil
		case out.estado == domain.InstanceTransferida:
			inst.Estado = domain.InstanceTransferida
			inst.Esperando = domain.EsperaNinguna
			x.res.Motivo = MotivoTransferida
			return false, nil
		case out.estado == domain.InstanceCompletada:
			x.complete(out.accion)
			return out.accion == domain.AccionReiniciarFlujo, nil
		case out.next == "":
			// Dead end: nothing left to do.
			x.complete("")
			return false, nil
		}
		inst.NodoActual = out.next
		inst.Esperando = domain.EsperaNinguna
	}
}

func withRoutedEdge(salida map[string]any, edgeID string) map[string]any {
	out := make(map[string]any, len(salida)+1)
	for k, v := range salida {
		out[k] = v
	}
	out[domain.LogEdgeKey] = edgeID
	return out
}

func (x *execution) complete(accion string) {
	x.inst.Estado = domain.InstanceCompletada
	x.inst.Esperando = domain.EsperaNinguna
	x.inst.AccionFinal = accion
	x.res.Motivo = MotivoCompletada
}

// invoke dispatches the node to its handler, turning panics into errors.
func (x *execution) invoke(ctx context.Context, node *domain.Node, input *string) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	h, ok := x.engine.handlers[node.Tipo]
	if !ok {
		return outcome{}, fmt.Errorf("%w: %q", domain.ErrUnknownNodeType, node.Tipo)
	}
	return h(ctx, x, node, input)
}

// fail records the error entry and moves the instance to estado error.
func (x *execution) fail(ctx context.Context, node *domain.Node, started time.Time, cause error) error {
	nodeErr := &NodeError{NodeID: node.ID, Tipo: node.Tipo, Cause: cause}
	x.engine.logger.WarnContext(ctx, "node failed",
		"flow_id", x.flow.ID, "instance_id", x.inst.ID, "node_id", node.ID, "error", cause)

	x.inst.Estado = domain.InstanceError
	x.inst.Esperando = domain.EsperaNinguna
	x.res.Motivo = MotivoError
	x.res.Err = nodeErr

	msg := cause.Error()
	return x.record(ctx, node, started, domain.LogError, nil, nil, &msg)
}

func (x *execution) record(ctx context.Context, node *domain.Node, started time.Time, estado domain.LogEstado, entrada, salida map[string]any, errMsg *string) error {
	e := x.engine
	elapsed := time.Since(started)
	entry := domain.LogEntry{
		ID:             e.newID(),
		ConversacionID: x.inst.ID,
		NodoID:         node.ID,
		TipoNodo:       node.Tipo,
		Estado:         estado,
		DuracionMs:     elapsed.Milliseconds(),
		DatosEntrada:   entrada,
		DatosSalida:    salida,
		Error:          errMsg,
		Timestamp:      e.now(),
	}
	e.emitNodeLeave(ctx, x, node, estado, elapsed)
	if err := e.logs.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append log for node %s: %w", node.ID, err)
	}
	x.res.Entradas = append(x.res.Entradas, entry)
	return nil
}

// system returns the system variables at this moment.
func (x *execution) system() variables.System {
	return variables.SystemFor(x.inst, x.engine.nombreMarca, x.engine.now())
}

// resolve interpolates template against the instance variables.
func (x *execution) resolve(template string) string {
	return variables.Resolve(template, x.inst.Variables, x.system())
}

// lookup reads one variable with system precedence.
func (x *execution) lookup(name string) (string, bool) {
	return variables.Lookup(name, x.inst.Variables, x.system())
}

func (x *execution) set(name, value string) {
	if x.inst.Variables == nil {
		x.inst.Variables = make(map[string]string)
	}
	x.inst.Variables[name] = value
}

// idempotencyKey identifies one visit of a node by an instance.
func (x *execution) idempotencyKey(node *domain.Node) string {
	return fmt.Sprintf("%s:%s:%d", x.inst.ID, node.ID, x.inst.Visitas[node.ID])
}

func (x *execution) variablesCopy() map[string]string {
	out := make(map[string]string, len(x.inst.Variables))
	for k, v := range x.inst.Variables {
		out[k] = v
	}
	return out
}
