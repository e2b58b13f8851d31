package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/flujos/pkg/ports"
	"github.com/google/uuid"
)

// Row is a record written through DataStore.
type Row struct {
	ID             string
	Tabla          string
	Campos         map[string]string
	InstanceID     string
	IdempotencyKey string
}

// DataStore implements ports.DataStore in memory, deduplicating by idempotency key.
type DataStore struct {
	mu   sync.Mutex
	rows []Row
	keys map[string]string
}

// NewDataStore creates an empty data store.
func NewDataStore() *DataStore {
	return &DataStore{keys: make(map[string]string)}
}

// Write appends a row unless the idempotency key was already seen.
func (d *DataStore) Write(ctx context.Context, req ports.WriteRequest) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if req.IdempotencyKey != "" {
		if id, ok := d.keys[req.IdempotencyKey]; ok {
			return id, nil
		}
	}
	campos := make(map[string]string, len(req.Campos))
	for k, v := range req.Campos {
		campos[k] = v
	}
	row := Row{ID: uuid.NewString(), Tabla: req.Tabla, Campos: campos, InstanceID: req.InstanceID, IdempotencyKey: req.IdempotencyKey}
	d.rows = append(d.rows, row)
	if req.IdempotencyKey != "" {
		d.keys[req.IdempotencyKey] = row.ID
	}
	return row.ID, nil
}

// Rows returns every written row in order.
func (d *DataStore) Rows() []Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Row(nil), d.rows...)
}

// Tasks implements ports.Tasks in memory.
type Tasks struct {
	mu    sync.Mutex
	tasks map[string]ports.Task
	keys  map[string]string
	order []string
}

// NewTasks creates an empty task service.
func NewTasks() *Tasks {
	return &Tasks{tasks: make(map[string]ports.Task), keys: make(map[string]string)}
}

// Create records the task and returns its id.
func (t *Tasks) Create(ctx context.Context, task ports.Task) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.keys[task.IdempotencyKey]; ok && task.IdempotencyKey != "" {
		return id, nil
	}
	id := uuid.NewString()
	t.tasks[id] = task
	t.order = append(t.order, id)
	if task.IdempotencyKey != "" {
		t.keys[task.IdempotencyKey] = id
	}
	return id, nil
}

// All returns the created tasks in creation order.
func (t *Tasks) All() []ports.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ports.Task, len(t.order))
	for i, id := range t.order {
		out[i] = t.tasks[id]
	}
	return out
}

// Calendar implements ports.Calendar in memory.
type Calendar struct {
	mu     sync.Mutex
	events []ports.Event
	keys   map[string]string
}

// NewCalendar creates an empty calendar.
func NewCalendar() *Calendar {
	return &Calendar{keys: make(map[string]string)}
}

// CreateEvent books the event and returns its id.
func (c *Calendar) CreateEvent(ctx context.Context, ev ports.Event) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.keys[ev.IdempotencyKey]; ok && ev.IdempotencyKey != "" {
		return id, nil
	}
	id := uuid.NewString()
	c.events = append(c.events, ev)
	if ev.IdempotencyKey != "" {
		c.keys[ev.IdempotencyKey] = id
	}
	return id, nil
}

// Events returns the booked events.
func (c *Calendar) Events() []ports.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.Event(nil), c.events...)
}

// Handoff implements ports.Handoff by recording notifications.
type Handoff struct {
	mu       sync.Mutex
	requests []ports.HandoffRequest
}

// NewHandoff creates an empty handoff recorder.
func NewHandoff() *Handoff {
	return &Handoff{}
}

// Notify records the request.
func (h *Handoff) Notify(ctx context.Context, req ports.HandoffRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	return nil
}

// Requests returns the recorded notifications.
func (h *Handoff) Requests() []ports.HandoffRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ports.HandoffRequest(nil), h.requests...)
}

// Outbox implements ports.Messenger by recording outbound messages.
type Outbox struct {
	mu       sync.Mutex
	messages []ports.OutboundMessage
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Send records the message.
func (o *Outbox) Send(ctx context.Context, msg ports.OutboundMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	return nil
}

// Messages returns the recorded messages.
func (o *Outbox) Messages() []ports.OutboundMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ports.OutboundMessage(nil), o.messages...)
}

// Texts returns only the text of recorded messages.
func (o *Outbox) Texts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.messages))
	for i, m := range o.messages {
		out[i] = m.Texto
	}
	return out
}

// Document is one entry of the in-memory knowledge base.
type Document struct {
	ID        string
	Titulo    string
	Contenido string
	Categoria string
}

// KnowledgeBase implements ports.KnowledgeSearch with term-overlap scoring.
type KnowledgeBase struct {
	docs []Document
}

// NewKnowledgeBase creates a knowledge base over docs.
func NewKnowledgeBase(docs ...Document) *KnowledgeBase {
	return &KnowledgeBase{docs: docs}
}

// Search scores each document by the share of query terms it contains.
func (k *KnowledgeBase) Search(ctx context.Context, query string, categorias []string, limit int) ([]ports.Snippet, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	allowed := make(map[string]bool, len(categorias))
	for _, c := range categorias {
		allowed[c] = true
	}

	var hits []ports.Snippet
	for _, d := range k.docs {
		if len(allowed) > 0 && !allowed[d.Categoria] {
			continue
		}
		text := strings.ToLower(d.Titulo + " " + d.Contenido)
		matched := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, ports.Snippet{
			ID:        d.ID,
			Titulo:    d.Titulo,
			Contenido: d.Contenido,
			Categoria: d.Categoria,
			Score:     float64(matched) / float64(len(terms)),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// RuleAI implements ports.AI without a model: Complete renders the prompt and
// Classify picks the first label whose id or etiqueta appears in the text.
type RuleAI struct{}

// Complete echoes the prompt, followed by the knowledge context when present.
func (RuleAI) Complete(ctx context.Context, prompt string, c ports.AIContext) (string, error) {
	if c.Conocimiento != "" {
		return fmt.Sprintf("%s\n\n%s", prompt, c.Conocimiento), nil
	}
	return prompt, nil
}

// Classify matches labels by case-insensitive substring.
func (RuleAI) Classify(ctx context.Context, text string, labels []ports.Label, extract []ports.Field, c ports.AIContext) (ports.Classification, error) {
	lower := strings.ToLower(text)
	for _, l := range labels {
		for _, cand := range []string{l.ID, l.Etiqueta} {
			if cand != "" && strings.Contains(lower, strings.ToLower(cand)) {
				return ports.Classification{Label: l.ID, Fields: map[string]string{}}, nil
			}
		}
	}
	return ports.Classification{Fields: map[string]string{}}, nil
}
