package flujos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/flujos/internal/runtime"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/aretw0/flujos/pkg/trigger"
)

var (
	// ErrUnsupportedCanal is returned for messages from a channel the engine does not serve.
	ErrUnsupportedCanal = errors.New("unsupported canal")
	// ErrMissingUsuario is returned when an inbound message has no user identifier.
	ErrMissingUsuario = errors.New("identificador_usuario is required")
)

// Motivo explains why a run stopped.
type Motivo = runtime.Motivo

// Outcome reports the engine actions taken for one inbound message or operator action.
type Outcome struct {
	// Decision is what the trigger matcher decided: no_match, start, resume or handoff.
	Decision   string                  `json:"decision"`
	Instance   *domain.Instance        `json:"instance,omitempty"`
	Reiniciada *domain.Instance        `json:"reiniciada,omitempty"`
	Enviados   []ports.OutboundMessage `json:"enviados,omitempty"`
	Entradas   []domain.LogEntry       `json:"entradas,omitempty"`
	Motivo     Motivo                  `json:"motivo,omitempty"`
	// Error carries the failing node's message when Motivo is error.
	Error string `json:"error,omitempty"`
}

// Current returns the instance that will receive the next inbound message, if any.
func (o *Outcome) Current() *domain.Instance {
	if o.Reiniciada != nil {
		return o.Reiniciada
	}
	return o.Instance
}

func outcomeOf(kind trigger.Kind, res *runtime.Result) *Outcome {
	out := &Outcome{
		Decision:   kind.String(),
		Instance:   res.Instance,
		Reiniciada: res.Reiniciada,
		Enviados:   res.Enviados,
		Entradas:   res.Entradas,
		Motivo:     res.Motivo,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

// HandleInboundMessage processes one message from a channel: it resumes the conversation
// waiting for it, forwards it to the operator of a transferred conversation, or starts the
// first flow whose trigger matches. Messages of one conversation are processed one at a time.
// A message that matches nothing yields an Outcome with Decision no_match and no error.
func (e *Engine) HandleInboundMessage(ctx context.Context, canal domain.Canal, usuario, texto string) (*Outcome, error) {
	if !canal.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCanal, canal)
	}
	usuario = strings.TrimSpace(usuario)
	if usuario == "" {
		return nil, ErrMissingUsuario
	}
	clean, err := e.cleanText(texto)
	if err != nil {
		return nil, err
	}

	in := trigger.Inbound{Canal: canal, IdentificadorUsuario: usuario, Texto: clean}
	var out *Outcome
	err = e.sessions.WithLock(ctx, domain.ConversationKey(canal, usuario), func(ctx context.Context) error {
		var err error
		out, err = e.dispatch(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// dispatch runs under the conversation lock.
func (e *Engine) dispatch(ctx context.Context, in trigger.Inbound) (*Outcome, error) {
	for {
		d, err := e.matcher.Match(ctx, in)
		if err != nil {
			return nil, err
		}

		switch d.Kind {
		case trigger.NoMatch:
			e.logger.DebugContext(ctx, "inbound matched no flow", "canal", in.Canal)
			return &Outcome{Decision: d.Kind.String()}, nil

		case trigger.Start:
			res, err := e.runtime.Start(ctx, d.Flow, in.Canal, in.IdentificadorUsuario, in.Texto)
			if err != nil {
				return nil, err
			}
			return outcomeOf(d.Kind, res), nil

		case trigger.Resume:
			res, err := e.runtime.Resume(ctx, d.Flow, d.Instance, in.Texto)
			if errors.Is(err, domain.ErrVersionConflict) {
				return e.reconcile(ctx, d.Kind, d.Instance.ID, err)
			}
			if err != nil {
				return nil, err
			}
			return outcomeOf(d.Kind, res), nil

		case trigger.Handoff:
			return e.forwardToOperator(ctx, d.Instance, in.Texto)

		case trigger.Orphaned:
			// The flow, or the node the conversation waits at, was removed under it.
			// Close it and match again so the message can still start a flow.
			if err := e.closeOrphan(ctx, d.Instance); err != nil {
				return nil, err
			}
			continue
		}
		return nil, fmt.Errorf("unexpected trigger decision %s", d.Kind)
	}
}

// reconcile handles a run whose final save lost to a concurrent writer. Detener is the only
// writer that bypasses the conversation lock, so a terminal instance means it was stopped.
func (e *Engine) reconcile(ctx context.Context, kind trigger.Kind, id string, cause error) (*Outcome, error) {
	current, err := e.stores.Instances.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w (reload failed: %v)", cause, err)
	}
	if !current.Estado.Terminal() {
		return nil, cause
	}
	e.logger.InfoContext(ctx, "instance stopped while running", "instance_id", id, "estado", current.Estado)
	return &Outcome{Decision: kind.String(), Instance: current, Motivo: runtime.MotivoCancelada}, nil
}

func (e *Engine) forwardToOperator(ctx context.Context, inst *domain.Instance, texto string) (*Outcome, error) {
	if e.adapters.Handoff != nil {
		req := ports.HandoffRequest{
			Kind:                 ports.HandoffInbound,
			InstanceID:           inst.ID,
			FlowID:               inst.FlowID,
			Canal:                inst.Canal,
			IdentificadorUsuario: inst.IdentificadorUsuario,
			Mensaje:              texto,
		}
		if err := e.adapters.Handoff.Notify(ctx, req); err != nil {
			return nil, fmt.Errorf("failed to forward message to operator: %w", err)
		}
	}
	inst.UltimaRespuesta = texto
	inst.ActualizadoEn = e.now()
	if err := e.stores.Instances.Save(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to save instance %s: %w", inst.ID, err)
	}
	e.logger.DebugContext(ctx, "message forwarded to operator", "instance_id", inst.ID)
	return &Outcome{Decision: trigger.Handoff.String(), Instance: inst, Motivo: runtime.MotivoTransferida}, nil
}

func (e *Engine) closeOrphan(ctx context.Context, inst *domain.Instance) error {
	inst.Estado = domain.InstanceCancelada
	inst.Esperando = domain.EsperaNinguna
	inst.ActualizadoEn = e.now()
	if err := e.stores.Instances.Save(ctx, inst); err != nil {
		return fmt.Errorf("failed to cancel orphaned instance %s: %w", inst.ID, err)
	}
	e.logger.WarnContext(ctx, "cancelled orphaned instance", "instance_id", inst.ID, "flow_id", inst.FlowID, "node_id", inst.NodoActual)
	return nil
}
