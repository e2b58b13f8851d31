// Package monitor reconstructs what happened in a conversation instance from its
// execution log and flow graph.
//
// The monitor never takes the conversation lock. Reads are eventually consistent
// with a step chain that is still running; Detener is the only write it performs.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/flujos/internal/logging"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
)

// Service answers monitor queries over the stores.
type Service struct {
	flows     ports.FlowStore
	instances ports.InstanceStore
	logs      ports.LogStore
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used when stopping instances.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a monitor Service.
func NewService(flows ports.FlowStore, instances ports.InstanceStore, logs ports.LogStore, opts ...Option) *Service {
	s := &Service{
		flows:     flows,
		instances: instances,
		logs:      logs,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns instances matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ports.InstanceFilter) ([]*domain.Instance, error) {
	return s.instances.List(ctx, filter)
}

// Get returns one instance.
func (s *Service) Get(ctx context.Context, id string) (*domain.Instance, error) {
	return s.instances.Get(ctx, id)
}

// Logs returns the execution log of an instance in append order.
func (s *Service) Logs(ctx context.Context, id string) ([]domain.LogEntry, error) {
	if _, err := s.instances.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.logs.List(ctx, id)
}

// Detener force-stops an instance: estado becomes cancelada and no node runs.
// A step chain still running for the instance loses its final save with a version conflict.
func (s *Service) Detener(ctx context.Context, id string) (*domain.Instance, error) {
	for attempt := 0; ; attempt++ {
		inst, err := s.instances.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if inst.Estado.Terminal() {
			return nil, fmt.Errorf("instance %s is %s: %w", id, inst.Estado, domain.ErrInstanceClosed)
		}
		inst.Estado = domain.InstanceCancelada
		inst.Esperando = domain.EsperaNinguna
		inst.ActualizadoEn = s.now()
		err = s.instances.Save(ctx, inst)
		if err == nil {
			s.logger.InfoContext(ctx, "instance stopped by operator", "instance_id", id, "flow_id", inst.FlowID)
			return inst, nil
		}
		// Lost a race with the engine; re-read and try again.
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= 2 {
			return nil, fmt.Errorf("failed to stop instance %s: %w", id, err)
		}
	}
}
