package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/flujos"
	"github.com/aretw0/flujos/internal/config"
	"github.com/aretw0/flujos/pkg/adapters/file"
	"github.com/aretw0/flujos/pkg/adapters/memory"
	"github.com/aretw0/flujos/pkg/adapters/openai"
	"github.com/aretw0/flujos/pkg/adapters/postgres"
	"github.com/aretw0/flujos/pkg/adapters/redis"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/flows"
	"github.com/aretw0/flujos/pkg/metrics"
	"github.com/aretw0/flujos/pkg/persistence/middleware"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/yaml.v3"
)

// KnowledgeFile is loaded from the storage directory into the in-memory knowledge base when present.
const KnowledgeFile = "conocimiento.yaml"

// AppOptions overrides parts of the wiring derived from the configuration.
type AppOptions struct {
	// Messenger receives outbound messages. Nil keeps them in the Outcome only.
	Messenger ports.Messenger
	// Handoff receives operator notifications. Nil uses an in-memory recorder.
	Handoff ports.Handoff
	// Debug logs every node and adapter call.
	Debug bool
}

// App is a fully wired engine with the services the commands need.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Engine   *flujos.Engine
	Flows    *flows.Service
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	closers []func() error
}

// Close releases database and redis connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

type backends struct {
	stores flujos.Stores
	data   ports.DataStore
	locker ports.DistributedLocker
}

// NewApp builds the stores and adapters selected by cfg and wires an Engine over them.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger, opts AppOptions) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	b, err := app.openBackends(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	if err := app.applyPrivacy(&b.stores); err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics, err = metrics.New(app.Registry)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	knowledge, err := loadKnowledge(filepath.Join(cfg.Storage.Dir, KnowledgeFile))
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	adapters := flujos.Adapters{
		Messenger: opts.Messenger,
		AI:        newAI(cfg.OpenAI, logger),
		Knowledge: knowledge,
		Data:      b.data,
		Tasks:     memory.NewTasks(),
		Calendar:  memory.NewCalendar(),
		Handoff:   opts.Handoff,
	}
	if adapters.Handoff == nil {
		adapters.Handoff = memory.NewHandoff()
	}

	hooks := app.Metrics.Hooks()
	if opts.Debug {
		hooks = domain.ChainHooks(hooks, debugHooks(logger))
	}

	engineOpts := []flujos.Option{
		flujos.WithLogger(logger),
		flujos.WithLifecycleHooks(hooks),
		flujos.WithAdapterTimeout(cfg.Engine.AdapterTimeout),
		flujos.WithMaxSteps(cfg.Engine.MaxSteps),
		flujos.WithLockTTL(cfg.Engine.LockTTL),
		flujos.WithNombreMarca(cfg.Marca),
	}
	if b.locker != nil {
		engineOpts = append(engineOpts, flujos.WithLocker(b.locker))
	}
	if cfg.Engine.MaxInputSize > 0 {
		engineOpts = append(engineOpts, flujos.WithMaxInputSize(cfg.Engine.MaxInputSize))
	}

	app.Engine = flujos.New(b.stores, adapters, engineOpts...)
	app.Flows = flows.NewService(b.stores.Flows, flows.WithLogger(logger))
	return app, nil
}

// openBackends selects the stores for the configured driver. Redis keeps flows on disk;
// postgres keeps instances and logs on disk.
func (a *App) openBackends(ctx context.Context) (backends, error) {
	s := a.Config.Storage
	b := backends{
		stores: flujos.Stores{
			Flows:     file.NewFlowStore(s.Dir),
			Instances: file.NewInstanceStore(s.Dir),
			Logs:      file.NewLogStore(s.Dir),
		},
		data: memory.NewDataStore(),
	}

	switch s.Driver {
	case config.DriverMemory:
		b.stores = flujos.Stores{
			Flows:     memory.NewFlowStore(),
			Instances: memory.NewInstanceStore(),
			Logs:      memory.NewLogStore(),
		}

	case config.DriverFile:

	case config.DriverRedis:
		client := redis.NewClient(s.RedisAddr, s.RedisPassword, s.RedisDB)
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return b, fmt.Errorf("failed to connect to redis at %s: %w", s.RedisAddr, err)
		}
		opts := []redis.Option{redis.WithPrefix(s.RedisPrefix), redis.WithTTL(s.RedisTTL)}
		b.stores.Instances = redis.NewInstanceStore(client, opts...)
		b.stores.Logs = redis.NewLogStore(client, opts...)
		b.locker = redis.NewLocker(client, s.RedisPrefix)
		a.Logger.Info("using redis storage", "addr", s.RedisAddr, "prefix", s.RedisPrefix)

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, a.Logger, s.PostgresURL)
		if err != nil {
			return b, err
		}
		a.closers = append(a.closers, db.Close)
		b.stores.Flows = postgres.NewFlowStore(db)
		b.data = postgres.NewDataStore(db)
		a.Logger.Info("using postgres storage")

	default:
		return b, fmt.Errorf("unknown storage driver %q", s.Driver)
	}
	return b, nil
}

// applyPrivacy wraps the instance store with encryption and the log store with key masking
// when the privacy section asks for it.
func (a *App) applyPrivacy(stores *flujos.Stores) error {
	p := a.Config.Privacy
	active, fallback, err := p.Keys()
	if err != nil {
		return err
	}
	if active != nil {
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		if err != nil {
			return err
		}
		stores.Instances = mw(stores.Instances)
	}
	if len(p.MaskKeys) > 0 {
		mw, err := middleware.NewPIIMiddleware(p.MaskKeys)
		if err != nil {
			return err
		}
		stores.Logs = mw(stores.Logs)
	}
	return nil
}

func newAI(cfg config.OpenAI, logger *slog.Logger) ports.AI {
	if cfg.APIKey == "" {
		return memory.RuleAI{}
	}
	opts := []openai.Option{
		openai.WithAPIKey(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithLogger(logger),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

// loadKnowledge reads knowledge base documents from path. A missing file yields an empty base.
func loadKnowledge(path string) (*memory.KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return memory.NewKnowledgeBase(), nil
		}
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}
	var docs []struct {
		ID        string `yaml:"id"`
		Titulo    string `yaml:"titulo"`
		Contenido string `yaml:"contenido"`
		Categoria string `yaml:"categoria"`
	}
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	out := make([]memory.Document, len(docs))
	for i, d := range docs {
		out[i] = memory.Document{ID: d.ID, Titulo: d.Titulo, Contenido: d.Contenido, Categoria: d.Categoria}
	}
	return memory.NewKnowledgeBase(out...), nil
}

func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("enter node", "instance_id", e.InstanceID, "node_id", e.NodeID, "type", e.NodeType)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("leave node", "instance_id", e.InstanceID, "node_id", e.NodeID, "estado", e.Estado, "duration", e.Duration)
		},
		OnAdapterCall: func(ctx context.Context, e *domain.AdapterEvent) {
			if e.IsError {
				logger.Debug("adapter call failed", "instance_id", e.InstanceID, "adapter", e.Adapter, "duration", e.Duration)
				return
			}
			logger.Debug("adapter call", "instance_id", e.InstanceID, "adapter", e.Adapter, "duration", e.Duration)
		},
	}
}
