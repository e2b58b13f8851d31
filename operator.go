package flujos

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/flujos/internal/runtime"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/aretw0/flujos/pkg/trigger"
)

// withInstance loads an instance, takes its conversation lock and reloads it under the lock.
func (e *Engine) withInstance(ctx context.Context, id string, fn func(ctx context.Context, inst *domain.Instance) error) error {
	inst, err := e.stores.Instances.Get(ctx, id)
	if err != nil {
		return err
	}
	key := domain.ConversationKey(inst.Canal, inst.IdentificadorUsuario)
	return e.sessions.WithLock(ctx, key, func(ctx context.Context) error {
		fresh, err := e.stores.Instances.Get(ctx, id)
		if err != nil {
			return err
		}
		return fn(ctx, fresh)
	})
}

func requireTransferida(inst *domain.Instance) error {
	if inst.Estado.Terminal() {
		return fmt.Errorf("instance %s is %s: %w", inst.ID, inst.Estado, domain.ErrInstanceClosed)
	}
	if inst.Estado != domain.InstanceTransferida {
		return fmt.Errorf("instance %s is %s, not transferida: %w", inst.ID, inst.Estado, domain.ErrInvalidTransition)
	}
	return nil
}

// Respond sends texto to the user of a transferred conversation on behalf of a human operator.
func (e *Engine) Respond(ctx context.Context, instanceID, texto string) (*ports.OutboundMessage, error) {
	clean, err := e.cleanText(texto)
	if err != nil {
		return nil, err
	}
	var msg *ports.OutboundMessage
	err = e.withInstance(ctx, instanceID, func(ctx context.Context, inst *domain.Instance) error {
		if err := requireTransferida(inst); err != nil {
			return err
		}
		out := ports.OutboundMessage{
			Canal:                inst.Canal,
			IdentificadorUsuario: inst.IdentificadorUsuario,
			Texto:                clean,
			InstanceID:           inst.ID,
			NodeID:               inst.NodoActual,
		}
		if e.adapters.Messenger != nil {
			if err := e.adapters.Messenger.Send(ctx, out); err != nil {
				return fmt.Errorf("failed to send operator reply: %w", err)
			}
		}
		// Operator activity keeps the conversation from expiring.
		inst.ActualizadoEn = e.now()
		if err := e.stores.Instances.Save(ctx, inst); err != nil {
			return fmt.Errorf("failed to save instance %s: %w", inst.ID, err)
		}
		msg = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// CloseHandoff ends a transferred conversation. The instance completes with accion
// volver_menu, so the next message from the user can start a first_message flow again.
func (e *Engine) CloseHandoff(ctx context.Context, instanceID string) (*domain.Instance, error) {
	var closed *domain.Instance
	err := e.withInstance(ctx, instanceID, func(ctx context.Context, inst *domain.Instance) error {
		if err := requireTransferida(inst); err != nil {
			return err
		}
		inst.Estado = domain.InstanceCompletada
		inst.AccionFinal = domain.AccionVolverMenu
		inst.Esperando = domain.EsperaNinguna
		inst.ActualizadoEn = e.now()
		if err := e.stores.Instances.Save(ctx, inst); err != nil {
			return fmt.Errorf("failed to save instance %s: %w", inst.ID, err)
		}
		e.logger.InfoContext(ctx, "handoff closed", "instance_id", inst.ID)
		closed = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// ResumeHandoff hands a transferred conversation back to its flow. Execution continues at
// nodeID when given, otherwise at the transferir_humano node's successor; without a successor
// the instance completes.
func (e *Engine) ResumeHandoff(ctx context.Context, instanceID, nodeID string) (*Outcome, error) {
	var out *Outcome
	err := e.withInstance(ctx, instanceID, func(ctx context.Context, inst *domain.Instance) error {
		if err := requireTransferida(inst); err != nil {
			return err
		}
		flow, err := e.stores.Flows.Get(ctx, inst.FlowID)
		if err != nil {
			return err
		}

		target := nodeID
		if target != "" {
			if _, ok := flow.Node(target); !ok {
				return fmt.Errorf("node %q in flow %s: %w", target, flow.ID, runtime.ErrNodeMissing)
			}
		} else if edges := flow.Outgoing(inst.NodoActual); len(edges) > 0 {
			target = edges[0].Destino
		}

		if target == "" {
			inst.Estado = domain.InstanceCompletada
			inst.AccionFinal = domain.AccionCerrar
			inst.ActualizadoEn = e.now()
			if err := e.stores.Instances.Save(ctx, inst); err != nil {
				return fmt.Errorf("failed to save instance %s: %w", inst.ID, err)
			}
			out = &Outcome{Decision: trigger.Resume.String(), Instance: inst, Motivo: runtime.MotivoCompletada}
			return nil
		}

		inst.Estado = domain.InstanceActiva
		inst.NodoActual = target
		inst.Esperando = domain.EsperaNinguna
		res, err := e.runtime.Continue(ctx, flow, inst)
		if err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "handoff resumed", "instance_id", inst.ID, "node_id", target)
		out = outcomeOf(trigger.Resume, res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Detener force-stops an instance without running any node. It does not take the
// conversation lock; an in-flight run observes the stop when it saves.
func (e *Engine) Detener(ctx context.Context, instanceID string) (*domain.Instance, error) {
	return e.monitor.Detener(ctx, instanceID)
}

// ExpireIdle moves conversations that are suspended or transferred and have been idle for
// longer than maxIdle to estado policy, which must be cancelada or error.
// It returns how many instances were expired.
func (e *Engine) ExpireIdle(ctx context.Context, maxIdle time.Duration, policy domain.InstanceEstado) (int, error) {
	if policy != domain.InstanceCancelada && policy != domain.InstanceError {
		return 0, fmt.Errorf("expiry policy must be %s or %s, got %q: %w",
			domain.InstanceCancelada, domain.InstanceError, policy, domain.ErrInvalidTransition)
	}
	if maxIdle <= 0 {
		return 0, fmt.Errorf("max idle must be positive, got %s", maxIdle)
	}

	cutoff := e.now().Add(-maxIdle)
	stale, err := e.stores.Instances.List(ctx, ports.InstanceFilter{
		Estados:       []domain.InstanceEstado{domain.InstanceActiva, domain.InstanceTransferida},
		UpdatedBefore: cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list idle instances: %w", err)
	}

	expired := 0
	for _, candidate := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		err := e.withInstance(ctx, candidate.ID, func(ctx context.Context, inst *domain.Instance) error {
			// A message may have arrived since the listing.
			if inst.Estado.Terminal() || !inst.ActualizadoEn.Before(cutoff) {
				return nil
			}
			inst.Estado = policy
			inst.Esperando = domain.EsperaNinguna
			inst.ActualizadoEn = e.now()
			if err := e.stores.Instances.Save(ctx, inst); err != nil {
				return err
			}
			expired++
			return nil
		})
		if err != nil {
			e.logger.WarnContext(ctx, "failed to expire instance", "instance_id", candidate.ID, "err", err)
		}
	}
	if expired > 0 {
		e.logger.InfoContext(ctx, "expired idle instances", "count", expired, "policy", policy)
	}
	return expired, nil
}
