package http

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/flujos/pkg/domain"
)

// StreamManager fans instance diffs out to SSE subscribers.
// It remembers the last snapshot sent for each watched instance.
type StreamManager struct {
	mu          sync.Mutex
	subscribers map[string]map[chan string]struct{} // instance id -> channels
	last        map[string]*domain.Instance
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
		last:        make(map[string]*domain.Instance),
		logger:      logger,
	}
}

// Subscribe registers a channel for inst's updates, with inst as the current snapshot.
func (sm *StreamManager) Subscribe(inst *domain.Instance) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	id := inst.ID
	ch := make(chan string, 10)
	if _, ok := sm.subscribers[id]; !ok {
		sm.subscribers[id] = make(map[chan string]struct{})
		sm.last[id] = inst.Clone()
	}
	sm.subscribers[id][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[id]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, id)
				delete(sm.last, id)
			}
		}
	}
}

// Publish sends the diff between the last snapshot and inst to its subscribers.
func (sm *StreamManager) Publish(inst *domain.Instance) {
	if inst == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	subs, ok := sm.subscribers[inst.ID]
	if !ok {
		return
	}
	diff := domain.Diff(sm.last[inst.ID], inst)
	sm.last[inst.ID] = inst.Clone()
	if diff == nil {
		return
	}
	data, err := json.Marshal(diff)
	if err != nil {
		sm.logger.Error("SSE: failed to encode diff", "instance_id", inst.ID, "error", err)
		return
	}
	for ch := range subs {
		select {
		case ch <- string(data):
		default:
			// Slow client, drop.
			sm.logger.Warn("SSE: client buffer full, dropping message", "instance_id", inst.ID)
		}
	}
}
