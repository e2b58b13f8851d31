package flujos

import (
	"log/slog"
	"time"

	"github.com/aretw0/flujos/internal/logging"
	"github.com/aretw0/flujos/internal/runtime"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/monitor"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/aretw0/flujos/pkg/session"
	"github.com/aretw0/flujos/pkg/trigger"
)

// Adapters groups the side-effect services flows call into.
type Adapters = runtime.Adapters

// Stores groups the persistence ports the Engine needs.
type Stores struct {
	Flows     ports.FlowStore
	Instances ports.InstanceStore
	Logs      ports.LogStore
}

// Engine is the high-level entry point for the flujos library.
// It serializes inbound messages per conversation, matches triggers and drives
// the runtime, and exposes the operator actions of the handoff and monitor.
type Engine struct {
	stores   Stores
	adapters Adapters

	runtime  *runtime.Engine
	matcher  *trigger.Matcher
	sessions *session.Manager
	monitor  *monitor.Service

	runtimeOpts  []runtime.Option
	locker       ports.DistributedLocker
	lockTTL      time.Duration
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	now          func() time.Time
	maxInputSize int
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLocker serializes conversations across replicas through a distributed lock.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithLockTTL sets how long a distributed conversation lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.lockTTL = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithClock(now))
	}
}

// WithIDGenerator overrides how instance and log ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithIDGenerator(fn))
	}
}

// WithAdapterTimeout bounds every adapter call.
func WithAdapterTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithAdapterTimeout(d))
	}
}

// WithMaxSteps bounds the node executions driven by one inbound message.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxSteps(n))
	}
}

// WithNombreMarca sets the value of the nombre_marca system variable.
func WithNombreMarca(nombre string) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithNombreMarca(nombre))
	}
}

// WithMaxInputSize overrides the size limit, in bytes, of user and operator text.
// Non-positive values keep DefaultMaxInputSize.
func WithMaxInputSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxInputSize = n
		}
	}
}

// New wires an Engine over the given stores and adapters.
func New(stores Stores, adapters Adapters, opts ...Option) *Engine {
	eng := &Engine{
		stores:       stores,
		adapters:     adapters,
		now:          time.Now,
		maxInputSize: DefaultMaxInputSize,
	}
	for _, opt := range opts {
		opt(eng)
	}

	// Ensure logger is initialized (so we don't pass nil down, which would overwrite defaults)
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(eng.hooks),
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)
	eng.runtime = runtime.NewEngine(stores.Instances, stores.Logs, adapters, runtimeOpts...)

	eng.matcher = trigger.NewMatcher(stores.Flows, stores.Instances, trigger.WithLogger(eng.logger))

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	if eng.lockTTL > 0 {
		sessionOpts = append(sessionOpts, session.WithLockTTL(eng.lockTTL))
	}
	eng.sessions = session.NewManager(sessionOpts...)

	eng.monitor = monitor.NewService(stores.Flows, stores.Instances, stores.Logs,
		monitor.WithLogger(eng.logger),
		monitor.WithClock(eng.now),
	)
	return eng
}

// Monitor returns the read-side monitor service sharing the engine's stores.
func (e *Engine) Monitor() *monitor.Service {
	return e.monitor
}
