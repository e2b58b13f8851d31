package ports

import (
	"context"
	"time"

	"github.com/aretw0/flujos/pkg/domain"
)

// AIContext is the conversation context passed to the AI service.
type AIContext struct {
	Variables       map[string]string
	Conocimiento    string
	UltimaRespuesta string
	// Instrucciones carries node-level guidance for classification.
	Instrucciones string
	// AgenteID is set when a usar_agente node delegates to a configured agent.
	AgenteID string
}

// Label is one classification target.
type Label struct {
	ID          string
	Etiqueta    string
	Descripcion string
}

// Field is a named value the classifier should extract.
type Field struct {
	Name        string
	Descripcion string
}

// Classification is the result of AI.Classify.
type Classification struct {
	// Label is the chosen Label.ID, or "" when nothing fits.
	Label  string
	Fields map[string]string
}

// AI is the completion and classification service.
type AI interface {
	Complete(ctx context.Context, prompt string, c AIContext) (string, error)
	Classify(ctx context.Context, text string, labels []Label, extract []Field, c AIContext) (Classification, error)
}

// Snippet is one ranked knowledge search hit.
type Snippet struct {
	ID        string  `json:"id"`
	Titulo    string  `json:"titulo"`
	Contenido string  `json:"contenido"`
	Categoria string  `json:"categoria,omitempty"`
	Score     float64 `json:"score"`
}

// KnowledgeSearch queries the knowledge base.
type KnowledgeSearch interface {
	Search(ctx context.Context, query string, categorias []string, limit int) ([]Snippet, error)
}

// WriteRequest is a guardar_bd row.
type WriteRequest struct {
	Tabla          string
	Campos         map[string]string
	InstanceID     string
	IdempotencyKey string
}

// DataStore writes rows for guardar_bd nodes.
type DataStore interface {
	// Write inserts the row and returns its id. Repeating a write with the same
	// IdempotencyKey returns the id of the existing row without writing again.
	Write(ctx context.Context, req WriteRequest) (string, error)
}

// Task is a follow-up created by crear_tarea.
type Task struct {
	Titulo         string
	Descripcion    string
	Prioridad      string
	InstanceID     string
	IdempotencyKey string
}

// Tasks is the task service.
type Tasks interface {
	Create(ctx context.Context, task Task) (string, error)
}

// Event is a calendar booking created by agendar_cita.
type Event struct {
	Titulo         string
	Inicio         time.Time
	Duracion       time.Duration
	Descripcion    string
	InstanceID     string
	IdempotencyKey string
}

// Calendar is the calendar service.
type Calendar interface {
	CreateEvent(ctx context.Context, ev Event) (string, error)
}

// HandoffKind distinguishes handoff notifications.
type HandoffKind string

const (
	HandoffTransfer HandoffKind = "transferencia" // The flow handed the conversation over
	HandoffInbound  HandoffKind = "mensaje"       // The user wrote while the conversation is transferred
)

// HandoffRequest notifies human operators.
type HandoffRequest struct {
	Kind                 HandoffKind
	InstanceID           string
	FlowID               string
	Canal                domain.Canal
	IdentificadorUsuario string
	Mensaje              string
	Motivo               string
	Variables            map[string]string
}

// Handoff is the human handoff channel.
type Handoff interface {
	Notify(ctx context.Context, req HandoffRequest) error
}

// OutboundMessage is sent to the user.
type OutboundMessage struct {
	Canal                domain.Canal `json:"canal"`
	IdentificadorUsuario string       `json:"identificador_usuario"`
	Texto                string       `json:"texto"`
	Botones              []string     `json:"botones,omitempty"`
	InstanceID           string       `json:"instance_id,omitempty"`
	NodeID               string       `json:"node_id,omitempty"`
}

// Messenger sends outbound messages to the user's channel.
type Messenger interface {
	Send(ctx context.Context, msg OutboundMessage) error
}
