package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
)

// FlowStore implements ports.FlowStore in memory.
// Safe for concurrent use.
type FlowStore struct {
	data map[string]*domain.Flow
	mu   sync.RWMutex
}

// NewFlowStore creates a new in-memory flow store.
func NewFlowStore() *FlowStore {
	return &FlowStore{
		data: make(map[string]*domain.Flow),
	}
}

// Save persists a copy of the flow after checking its version.
func (s *FlowStore) Save(ctx context.Context, flow *domain.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := 0
	if prev, ok := s.data[flow.ID]; ok {
		current = prev.Version
	}
	if flow.Version != current {
		return fmt.Errorf("%w: flow %s is at version %d, got %d", domain.ErrVersionConflict, flow.ID, current, flow.Version)
	}

	// Deep copy to ensure isolation, similar to serialization
	copied, err := flow.Clone()
	if err != nil {
		return err
	}
	copied.Version = current + 1
	s.data[flow.ID] = copied
	flow.Version = copied.Version
	return nil
}

// Get returns a copy so callers can't mutate store state directly by pointer.
func (s *FlowStore) Get(ctx context.Context, id string) (*domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.data[id]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}
	return f.Clone()
}

// List returns matching flows ordered by creation.
func (s *FlowStore) List(ctx context.Context, filter ports.FlowFilter) ([]*domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Flow, 0, len(s.data))
	for _, f := range s.data {
		if !filter.Match(f) {
			continue
		}
		c, err := f.Clone()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	ports.SortFlows(out)
	return out, nil
}

// Delete removes the flow.
func (s *FlowStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// InstanceStore implements ports.InstanceStore in memory.
// Safe for concurrent use.
type InstanceStore struct {
	data map[string]*domain.Instance
	mu   sync.RWMutex
}

// NewInstanceStore creates a new in-memory instance store.
func NewInstanceStore() *InstanceStore {
	return &InstanceStore{
		data: make(map[string]*domain.Instance),
	}
}

// Save persists a copy of the instance after checking its version.
func (s *InstanceStore) Save(ctx context.Context, inst *domain.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := 0
	if prev, ok := s.data[inst.ID]; ok {
		current = prev.Version
	}
	if inst.Version != current {
		return fmt.Errorf("%w: instance %s is at version %d, got %d", domain.ErrVersionConflict, inst.ID, current, inst.Version)
	}

	copied := inst.Clone()
	copied.Version = current + 1
	s.data[inst.ID] = copied
	inst.Version = copied.Version
	return nil
}

// Get returns a copy of the instance.
func (s *InstanceStore) Get(ctx context.Context, id string) (*domain.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.data[id]
	if !ok {
		return nil, domain.ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

// List returns matching instances, newest first.
func (s *InstanceStore) List(ctx context.Context, filter ports.InstanceFilter) ([]*domain.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Instance, 0)
	for _, inst := range s.data {
		if filter.Match(inst) {
			out = append(out, inst.Clone())
		}
	}
	ports.SortInstances(out)
	return filter.ApplyLimit(out), nil
}

// LogStore implements ports.LogStore in memory.
type LogStore struct {
	data map[string][]domain.LogEntry
	mu   sync.RWMutex
}

// NewLogStore creates a new in-memory log store.
func NewLogStore() *LogStore {
	return &LogStore{
		data: make(map[string][]domain.LogEntry),
	}
}

// Append adds entries at the end of their instance's trace.
func (s *LogStore) Append(ctx context.Context, entries ...domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.data[e.ConversacionID] = append(s.data[e.ConversacionID], e)
	}
	return nil
}

// List returns a copy of the trace of one instance.
func (s *LogStore) List(ctx context.Context, conversacionID string) ([]domain.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.data[conversacionID]
	out := make([]domain.LogEntry, len(entries))
	copy(out, entries)
	return out, nil
}
