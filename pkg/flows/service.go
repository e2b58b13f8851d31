// Package flows implements authoring operations on flow definitions: create, edit,
// activate, pause, duplicate and delete, all guarded by graph validation.
//
// A write that fails validation returns a *ValidationError and leaves the stored
// flow untouched.
package flows

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/flujos/internal/logging"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/layout"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Service manages flow definitions on top of a FlowStore.
type Service struct {
	store  ports.FlowStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides the id generator used for flows, nodes and edges.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// NewService creates a flow Service.
func NewService(store ports.FlowStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logging.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput holds the fields of a new flow.
type CreateInput struct {
	MarcaID     string         `json:"marca_id"`
	Nombre      string         `json:"nombre"`
	Descripcion string         `json:"descripcion"`
	Trigger     domain.Trigger `json:"trigger"`
	Canales     []domain.Canal `json:"canales"`
	Nodos       []domain.Node  `json:"nodos"`
	Edges       []domain.Edge  `json:"edges"`
}

// Create stores a new flow in estado borrador. A flow created without nodes gets an inicio node.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Flow, error) {
	now := s.now()
	f := &domain.Flow{
		ID:            s.newID(),
		MarcaID:       in.MarcaID,
		Nombre:        in.Nombre,
		Descripcion:   in.Descripcion,
		Trigger:       in.Trigger,
		Canales:       in.Canales,
		Estado:        domain.FlowBorrador,
		Nodos:         in.Nodos,
		Edges:         in.Edges,
		CreadoEn:      now,
		ActualizadoEn: now,
	}
	if f.Tipo == "" {
		f.Tipo = domain.TriggerKeyword
	}
	if f.Tipo == domain.TriggerKeyword && f.Modo == "" {
		f.Modo = domain.ModoContiene
	}
	if len(f.Nodos) == 0 {
		f.Nodos = []domain.Node{{ID: s.newID(), Tipo: domain.NodeInicio, Datos: domain.InicioData{}}}
	}
	f.Normalize()
	if err := Validate(f); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}
	s.logger.Info("flow created", "flow_id", f.ID, "nombre", f.Nombre)
	return f, nil
}

// Get returns a flow by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Flow, error) {
	return s.store.Get(ctx, id)
}

// List returns the flows matching filter.
func (s *Service) List(ctx context.Context, filter ports.FlowFilter) ([]*domain.Flow, error) {
	return s.store.List(ctx, filter)
}

// GraphUpdate replaces the graph of a flow. A non-zero Version must match the stored one.
type GraphUpdate struct {
	Nodos   []domain.Node `json:"nodos"`
	Edges   []domain.Edge `json:"edges"`
	Version int           `json:"version,omitempty"`
}

// Update replaces nodos and edges after validating the resulting graph.
// An active flow must stay activatable.
func (s *Service) Update(ctx context.Context, id string, upd GraphUpdate) (*domain.Flow, error) {
	return s.mutate(ctx, id, upd.Version, func(f *domain.Flow) error {
		f.Nodos = upd.Nodos
		f.Edges = upd.Edges
		f.Normalize()
		return s.validateFor(f)
	})
}

// UpdateTrigger changes the trigger and the channel scope.
func (s *Service) UpdateTrigger(ctx context.Context, id string, trigger domain.Trigger, canales []domain.Canal) (*domain.Flow, error) {
	return s.mutate(ctx, id, 0, func(f *domain.Flow) error {
		f.Trigger = trigger
		f.Canales = canales
		return s.validateFor(f)
	})
}

// Rename changes the display fields.
func (s *Service) Rename(ctx context.Context, id, nombre, descripcion string) (*domain.Flow, error) {
	return s.mutate(ctx, id, 0, func(f *domain.Flow) error {
		f.Nombre = nombre
		f.Descripcion = descripcion
		return nil
	})
}

// Activate moves a borrador or pausado flow to activo.
func (s *Service) Activate(ctx context.Context, id string) (*domain.Flow, error) {
	return s.mutate(ctx, id, 0, func(f *domain.Flow) error {
		if f.Estado == domain.FlowActivo {
			return nil
		}
		if f.Estado != domain.FlowBorrador && f.Estado != domain.FlowPausado {
			return fmt.Errorf("%w: cannot activate from %s", domain.ErrInvalidTransition, f.Estado)
		}
		if err := ValidateActivation(f); err != nil {
			return err
		}
		f.Estado = domain.FlowActivo
		return nil
	})
}

// Pause moves an activo flow to pausado. Instances already running keep going.
func (s *Service) Pause(ctx context.Context, id string) (*domain.Flow, error) {
	return s.mutate(ctx, id, 0, func(f *domain.Flow) error {
		if f.Estado == domain.FlowPausado {
			return nil
		}
		if f.Estado != domain.FlowActivo {
			return fmt.Errorf("%w: cannot pause from %s", domain.ErrInvalidTransition, f.Estado)
		}
		f.Estado = domain.FlowPausado
		return nil
	})
}

// Duplicate deep-copies a flow with fresh node and edge ids, in estado borrador.
func (s *Service) Duplicate(ctx context.Context, id string) (*domain.Flow, error) {
	src, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cp, err := src.Clone()
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(cp.Nodos))
	for i := range cp.Nodos {
		fresh := s.newID()
		ids[cp.Nodos[i].ID] = fresh
		cp.Nodos[i].ID = fresh
	}
	for i := range cp.Edges {
		cp.Edges[i].ID = s.newID()
		cp.Edges[i].Origen = ids[cp.Edges[i].Origen]
		cp.Edges[i].Destino = ids[cp.Edges[i].Destino]
	}

	now := s.now()
	cp.ID = s.newID()
	cp.Nombre = src.Nombre + " (copia)"
	cp.Estado = domain.FlowBorrador
	cp.Version = 0
	cp.CreadoEn = now
	cp.ActualizadoEn = now

	if err := s.store.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to save duplicate: %w", err)
	}
	s.logger.Info("flow duplicated", "flow_id", cp.ID, "source_id", src.ID)
	return cp, nil
}

// Delete removes a flow. Instances of the flow are cancelled the next time they are touched.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}
	s.logger.Info("flow deleted", "flow_id", id)
	return nil
}

// ApplyLayout recomputes every node position and persists them.
func (s *Service) ApplyLayout(ctx context.Context, id string) (*domain.Flow, error) {
	return s.mutate(ctx, id, 0, func(f *domain.Flow) error {
		layout.Apply(f)
		return nil
	})
}

// Import reads a flow graph from YAML or JSON and stores it as a new borrador.
// Ids are kept when present; positions are computed when every node sits at the origin.
func (s *Service) Import(ctx context.Context, r io.Reader) (*domain.Flow, error) {
	var f domain.Flow
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode flow: %w", err)
	}

	now := s.now()
	if f.ID == "" {
		f.ID = s.newID()
	}
	if f.Tipo == "" {
		f.Tipo = domain.TriggerKeyword
	}
	f.Estado = domain.FlowBorrador
	f.Version = 0
	f.CreadoEn = now
	f.ActualizadoEn = now
	for i := range f.Edges {
		if f.Edges[i].ID == "" {
			f.Edges[i].ID = s.newID()
		}
	}
	f.Normalize()
	if unplaced(f.Nodos) {
		layout.Apply(&f)
	}
	if err := Validate(&f); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, &f); err != nil {
		return nil, fmt.Errorf("failed to save imported flow: %w", err)
	}
	s.logger.Info("flow imported", "flow_id", f.ID, "nodes", len(f.Nodos))
	return &f, nil
}

func unplaced(nodes []domain.Node) bool {
	for _, n := range nodes {
		if n.Posicion != (domain.Position{}) {
			return false
		}
	}
	return len(nodes) > 0
}

// validateFor applies the rules matching the flow's estado.
func (s *Service) validateFor(f *domain.Flow) error {
	if f.Estado == domain.FlowActivo {
		return ValidateActivation(f)
	}
	return Validate(f)
}

// mutate loads, changes and saves a flow. Nothing is written when change fails.
func (s *Service) mutate(ctx context.Context, id string, version int, change func(*domain.Flow) error) (*domain.Flow, error) {
	f, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if version != 0 && version != f.Version {
		return nil, fmt.Errorf("%w: flow %s is at version %d, got %d", domain.ErrVersionConflict, id, f.Version, version)
	}
	if err := change(f); err != nil {
		return nil, err
	}
	f.ActualizadoEn = s.now()
	if err := s.store.Save(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}
	s.logger.Debug("flow saved", "flow_id", f.ID, "version", f.Version, "estado", f.Estado)
	return f, nil
}
