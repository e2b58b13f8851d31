package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/flujos/internal/logging"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/google/uuid"
)

// Motivo explains why a run stopped.
type Motivo string

const (
	MotivoSuspendida  Motivo = "suspendida"
	MotivoTransferida Motivo = "transferida"
	MotivoCompletada  Motivo = "completada"
	MotivoError       Motivo = "error"
	MotivoCancelada   Motivo = "cancelada"
)

// Adapters groups the side-effect services nodes call into. Any of them may be nil;
// a node that needs a missing adapter fails with ErrNoAdapter.
// A nil Messenger is allowed: outbound messages are then only reported in Result.
type Adapters struct {
	Messenger ports.Messenger
	AI        ports.AI
	Knowledge ports.KnowledgeSearch
	Data      ports.DataStore
	Tasks     ports.Tasks
	Calendar  ports.Calendar
	Handoff   ports.Handoff
}

// Result reports what one Start, Resume or Continue call did.
type Result struct {
	// Instance is the instance the call ran, after persisting.
	Instance *domain.Instance
	// Reiniciada is the fresh instance created by a fin node with accion reiniciar_flujo.
	Reiniciada *domain.Instance
	Enviados   []ports.OutboundMessage
	Entradas   []domain.LogEntry
	Motivo     Motivo
	// Err is set when Motivo is MotivoError.
	Err *NodeError
}

// Current returns the instance that will receive the next inbound message.
func (r *Result) Current() *domain.Instance {
	if r.Reiniciada != nil {
		return r.Reiniciada
	}
	return r.Instance
}

// Engine executes flow instances node by node until they suspend, transfer or end.
// It persists the instance after every call and appends one log entry per node execution.
// Callers serialize calls per conversation.
type Engine struct {
	instances ports.InstanceStore
	logs      ports.LogStore
	adapters  Adapters
	handlers  map[domain.NodeType]handler

	logger         *slog.Logger
	hooks          domain.LifecycleHooks
	now            func() time.Time
	newID          func() string
	adapterTimeout time.Duration
	maxSteps       int
	nombreMarca    string
	exprs          *expressions
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithClock overrides the time source used for timestamps and system variables.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides how instance and log entry ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// WithAdapterTimeout bounds every adapter call. Zero keeps the default.
func WithAdapterTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.adapterTimeout = d
		}
	}
}

// WithMaxSteps bounds the node executions driven by one call. Zero keeps the default.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithNombreMarca sets the value of the nombre_marca system variable.
func WithNombreMarca(nombre string) Option {
	return func(e *Engine) {
		e.nombreMarca = nombre
	}
}

// Defaults.
const (
	DefaultAdapterTimeout = 10 * time.Second
	DefaultMaxSteps       = 100
)

// NewEngine creates an engine that persists through the given stores.
func NewEngine(instances ports.InstanceStore, logs ports.LogStore, adapters Adapters, opts ...Option) *Engine {
	e := &Engine{
		instances:      instances,
		logs:           logs,
		adapters:       adapters,
		logger:         logging.NewNop(),
		now:            time.Now,
		newID:          uuid.NewString,
		adapterTimeout: DefaultAdapterTimeout,
		maxSteps:       DefaultMaxSteps,
		exprs:          newExpressions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.handlers = defaultHandlers()
	return e
}

// Start creates a new instance of flow for the conversation and runs it until it stops.
// texto is the message that triggered the flow; it becomes ultima_respuesta.
func (e *Engine) Start(ctx context.Context, flow *domain.Flow, canal domain.Canal, usuario, texto string) (*Result, error) {
	inst, err := e.newInstance(flow, canal, usuario)
	if err != nil {
		return nil, err
	}
	inst.UltimaRespuesta = texto
	e.logger.InfoContext(ctx, "starting instance", "flow_id", flow.ID, "instance_id", inst.ID, "canal", canal)
	return e.drive(ctx, flow, inst, nil)
}

// Resume delivers texto to a suspended instance and runs it until it stops again.
// An active instance that is not suspended continues from its current node and texto only
// updates ultima_respuesta.
func (e *Engine) Resume(ctx context.Context, flow *domain.Flow, inst *domain.Instance, texto string) (*Result, error) {
	if inst.Estado.Terminal() {
		return nil, fmt.Errorf("instance %s is %s: %w", inst.ID, inst.Estado, domain.ErrInstanceClosed)
	}
	if inst.Estado != domain.InstanceActiva {
		return nil, fmt.Errorf("cannot resume instance %s in estado %s: %w", inst.ID, inst.Estado, domain.ErrInvalidTransition)
	}
	next := inst.Clone()
	next.UltimaRespuesta = texto
	var input *string
	if next.Suspended() {
		input = &texto
	}
	e.logger.DebugContext(ctx, "resuming instance", "flow_id", flow.ID, "instance_id", inst.ID, "node_id", inst.NodoActual)
	return e.drive(ctx, flow, next, input)
}

// Continue runs an active instance from its current node without delivering input.
// It is used after an operator hands a transferred conversation back to the flow.
func (e *Engine) Continue(ctx context.Context, flow *domain.Flow, inst *domain.Instance) (*Result, error) {
	if inst.Estado != domain.InstanceActiva {
		return nil, fmt.Errorf("cannot continue instance %s in estado %s: %w", inst.ID, inst.Estado, domain.ErrInvalidTransition)
	}
	next := inst.Clone()
	next.Esperando = domain.EsperaNinguna
	return e.drive(ctx, flow, next, nil)
}

func (e *Engine) newInstance(flow *domain.Flow, canal domain.Canal, usuario string) (*domain.Instance, error) {
	start, ok := flow.StartNode()
	if !ok {
		return nil, fmt.Errorf("flow %s: %w", flow.ID, domain.ErrNoStartNode)
	}
	return domain.NewInstance(e.newID(), flow.ID, canal, usuario, start.ID, e.now()), nil
}

// drive runs inst and, when its fin node restarts the flow, the fresh instance that replaces it.
// Both share one step budget.
func (e *Engine) drive(ctx context.Context, flow *domain.Flow, inst *domain.Instance, input *string) (*Result, error) {
	res := &Result{Instance: inst}
	budget := e.maxSteps
	cur := inst
	for {
		x := &execution{engine: e, flow: flow, inst: cur, res: res}
		restart, err := x.run(ctx, input, &budget)
		if err != nil {
			return nil, err
		}
		cur.ActualizadoEn = e.now()
		if err := e.instances.Save(ctx, cur); err != nil {
			return nil, fmt.Errorf("failed to save instance %s: %w", cur.ID, err)
		}
		if !restart {
			return res, nil
		}

		fresh, err := e.newInstance(flow, cur.Canal, cur.IdentificadorUsuario)
		if err != nil {
			return nil, err
		}
		e.logger.InfoContext(ctx, "restarting flow", "flow_id", flow.ID, "instance_id", cur.ID, "new_instance_id", fresh.ID)
		res.Reiniciada = fresh
		cur = fresh
		input = nil
	}
}
