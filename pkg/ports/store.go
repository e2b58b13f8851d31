package ports

import (
	"context"
	"sort"
	"time"

	"github.com/aretw0/flujos/pkg/domain"
)

// FlowFilter narrows FlowStore.List. Zero fields match everything.
type FlowFilter struct {
	MarcaID string
	Estado  domain.FlowEstado
	Canal   domain.Canal
}

// Match reports whether f satisfies the filter.
func (ff FlowFilter) Match(f *domain.Flow) bool {
	if ff.MarcaID != "" && f.MarcaID != ff.MarcaID {
		return false
	}
	if ff.Estado != "" && f.Estado != ff.Estado {
		return false
	}
	if ff.Canal != "" && !f.HasCanal(ff.Canal) {
		return false
	}
	return true
}

// FlowStore persists flow definitions.
type FlowStore interface {
	// Save writes the flow atomically. The flow's Version must match the stored version
	// (0 for a new flow), otherwise domain.ErrVersionConflict is returned and nothing is written.
	// On success the flow's Version is incremented.
	Save(ctx context.Context, flow *domain.Flow) error

	// Get returns domain.ErrFlowNotFound if the flow does not exist.
	Get(ctx context.Context, id string) (*domain.Flow, error)

	// List returns matching flows ordered by CreadoEn then ID.
	List(ctx context.Context, filter FlowFilter) ([]*domain.Flow, error)

	Delete(ctx context.Context, id string) error
}

// InstanceFilter narrows InstanceStore.List. Zero fields match everything.
type InstanceFilter struct {
	FlowID               string
	Canal                domain.Canal
	IdentificadorUsuario string
	Estados              []domain.InstanceEstado

	// UpdatedBefore keeps only instances whose ActualizadoEn is strictly older.
	UpdatedBefore time.Time

	// Limit caps the result size when positive.
	Limit int
}

// Match reports whether inst satisfies the filter. Limit is not considered.
func (f InstanceFilter) Match(inst *domain.Instance) bool {
	if f.FlowID != "" && inst.FlowID != f.FlowID {
		return false
	}
	if f.Canal != "" && inst.Canal != f.Canal {
		return false
	}
	if f.IdentificadorUsuario != "" && inst.IdentificadorUsuario != f.IdentificadorUsuario {
		return false
	}
	if len(f.Estados) > 0 {
		found := false
		for _, e := range f.Estados {
			if inst.Estado == e {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.UpdatedBefore.IsZero() && !inst.ActualizadoEn.Before(f.UpdatedBefore) {
		return false
	}
	return true
}

// InstanceStore persists conversation instances.
// This allows for durable execution: an instance suspended at a pregunta survives a restart.
type InstanceStore interface {
	// Save writes the instance. The instance's Version must match the stored version
	// (0 for a new instance), otherwise domain.ErrVersionConflict is returned.
	// On success the instance's Version is incremented.
	Save(ctx context.Context, inst *domain.Instance) error

	// Get returns domain.ErrInstanceNotFound if the instance does not exist.
	Get(ctx context.Context, id string) (*domain.Instance, error)

	// List returns matching instances, newest first (CreadoEn descending, then ID descending).
	List(ctx context.Context, filter InstanceFilter) ([]*domain.Instance, error)
}

// LogStore is the append-only execution trace.
type LogStore interface {
	// Append writes entries in order. Entries are never mutated afterwards.
	Append(ctx context.Context, entries ...domain.LogEntry) error

	// List returns the entries of one instance in append order.
	List(ctx context.Context, conversacionID string) ([]domain.LogEntry, error)
}

// SortFlows orders flows by CreadoEn then ID, the order FlowStore.List returns.
func SortFlows(flows []*domain.Flow) {
	sort.SliceStable(flows, func(i, j int) bool {
		if !flows[i].CreadoEn.Equal(flows[j].CreadoEn) {
			return flows[i].CreadoEn.Before(flows[j].CreadoEn)
		}
		return flows[i].ID < flows[j].ID
	})
}

// SortInstances orders instances newest first, the order InstanceStore.List returns.
func SortInstances(list []*domain.Instance) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreadoEn.Equal(list[j].CreadoEn) {
			return list[i].CreadoEn.After(list[j].CreadoEn)
		}
		return list[i].ID > list[j].ID
	})
}

// ApplyLimit truncates list to the filter's Limit.
func (f InstanceFilter) ApplyLimit(list []*domain.Instance) []*domain.Instance {
	if f.Limit > 0 && len(list) > f.Limit {
		return list[:f.Limit]
	}
	return list
}
