package domain

import "time"

// LogEstado is the outcome recorded for one node visit.
type LogEstado string

const (
	LogEjecutado   LogEstado = "ejecutado"
	LogError       LogEstado = "error"
	LogEsperando   LogEstado = "esperando"
	LogNoAlcanzado LogEstado = "no_alcanzado" // Synthesized at read time, never stored
)

// LogEdgeKey names the DatosSalida field holding the id of the edge a node left by.
const LogEdgeKey = "edge_id"

// LogEntry is one append-only execution trace row.
type LogEntry struct {
	ID             string         `json:"id"`
	ConversacionID string         `json:"conversacion_id"`
	NodoID         string         `json:"nodo_id"`
	TipoNodo       NodeType       `json:"tipo_nodo"`
	Estado         LogEstado      `json:"estado"`
	DuracionMs     int64          `json:"duracion_ms"`
	DatosEntrada   map[string]any `json:"datos_entrada,omitempty"`
	DatosSalida    map[string]any `json:"datos_salida,omitempty"`
	Error          *string        `json:"error"`
	Timestamp      time.Time      `json:"timestamp"`
}
