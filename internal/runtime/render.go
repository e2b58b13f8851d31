package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
)

// send delivers a message to the conversation and records it in the result.
func (x *execution) send(ctx context.Context, node *domain.Node, texto string, botones []string) error {
	msg := ports.OutboundMessage{
		Canal:                x.inst.Canal,
		IdentificadorUsuario: x.inst.IdentificadorUsuario,
		Texto:                texto,
		Botones:              botones,
		InstanceID:           x.inst.ID,
		NodeID:               node.ID,
	}
	if m := x.engine.adapters.Messenger; m != nil {
		err := x.call(ctx, node, "messenger", func(ctx context.Context) error {
			return m.Send(ctx, msg)
		})
		if err != nil {
			return err
		}
	}
	x.res.Enviados = append(x.res.Enviados, msg)
	return nil
}

// call runs fn under the adapter timeout. fn runs on its own goroutine so an adapter
// that ignores its context cannot hold the conversation past the deadline.
func (x *execution) call(ctx context.Context, node *domain.Node, adapter string, fn func(context.Context) error) error {
	e := x.engine
	callCtx, cancel := context.WithTimeout(ctx, e.adapterTimeout)
	defer cancel()

	started := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%s adapter panic: %v", adapter, r)
			}
		}()
		done <- fn(callCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		err = fmt.Errorf("%s adapter: %w", adapter, callCtx.Err())
	}
	e.emitAdapterCall(ctx, x, node, adapter, time.Since(started), err != nil)
	if err != nil {
		e.logger.DebugContext(ctx, "adapter call failed", "adapter", adapter, "node_id", node.ID, "error", err)
	}
	return err
}

func (e *Engine) emitNodeEnter(ctx context.Context, x *execution, node *domain.Node) {
	if e.hooks.OnNodeEnter == nil {
		return
	}
	e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		EventBase: x.eventBase(domain.EventNodeEnter),
		NodeID:    node.ID,
		NodeType:  node.Tipo,
	})
}

func (e *Engine) emitNodeLeave(ctx context.Context, x *execution, node *domain.Node, estado domain.LogEstado, d time.Duration) {
	if e.hooks.OnNodeLeave == nil {
		return
	}
	e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
		EventBase: x.eventBase(domain.EventNodeLeave),
		NodeID:    node.ID,
		NodeType:  node.Tipo,
		Estado:    estado,
		Duration:  d,
	})
}

func (e *Engine) emitAdapterCall(ctx context.Context, x *execution, node *domain.Node, adapter string, d time.Duration, isErr bool) {
	if e.hooks.OnAdapterCall == nil {
		return
	}
	e.hooks.OnAdapterCall(ctx, &domain.AdapterEvent{
		EventBase: x.eventBase(domain.EventAdapterCall),
		NodeID:    node.ID,
		Adapter:   adapter,
		Duration:  d,
		IsError:   isErr,
	})
}

func (x *execution) eventBase(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp:  x.engine.now(),
		Type:       t,
		FlowID:     x.flow.ID,
		InstanceID: x.inst.ID,
	}
}
