// Package console implements the messenger and handoff ports on a terminal or any io.Writer.
// `flujos chat` uses it to show the bot's replies; `flujos serve` uses Handoff to surface
// operator notifications on its output.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aretw0/flujos/pkg/ports"
)

// RenderFunc turns message text into terminal output, e.g. markdown through glamour.
type RenderFunc func(string) (string, error)

// Messenger writes outbound messages to w.
type Messenger struct {
	mu     sync.Mutex
	w      io.Writer
	render RenderFunc
	prefix string
}

// Option configures a Messenger.
type Option func(*Messenger)

// WithRenderer renders each message text before writing it.
// A render failure falls back to the raw text.
func WithRenderer(r RenderFunc) Option {
	return func(m *Messenger) {
		m.render = r
	}
}

// WithPrefix is written before every message, e.g. "bot> ".
func WithPrefix(p string) Option {
	return func(m *Messenger) {
		m.prefix = p
	}
}

// NewMessenger creates a Messenger writing to w.
func NewMessenger(w io.Writer, opts ...Option) *Messenger {
	m := &Messenger{w: w}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send writes the message text followed by its numbered buttons.
func (m *Messenger) Send(ctx context.Context, msg ports.OutboundMessage) error {
	text := msg.Texto
	if m.render != nil {
		if out, err := m.render(text); err == nil {
			text = strings.TrimRight(out, "\n")
		}
	}

	var sb strings.Builder
	sb.WriteString(m.prefix)
	sb.WriteString(text)
	sb.WriteString("\n")
	sb.WriteString(FormatButtons(msg.Botones))

	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := io.WriteString(m.w, sb.String())
	return err
}

// FormatButtons lists buttons as "  1) label" lines, the numbers users may reply with.
func FormatButtons(botones []string) string {
	var sb strings.Builder
	for i, b := range botones {
		fmt.Fprintf(&sb, "  %d) %s\n", i+1, b)
	}
	return sb.String()
}

// Handoff writes operator notifications to w, one line each.
type Handoff struct {
	mu sync.Mutex
	w  io.Writer
}

// NewHandoff creates a Handoff writing to w.
func NewHandoff(w io.Writer) *Handoff {
	return &Handoff{w: w}
}

// Notify writes the request.
func (h *Handoff) Notify(ctx context.Context, req ports.HandoffRequest) error {
	var line string
	switch req.Kind {
	case ports.HandoffTransfer:
		line = fmt.Sprintf(">>> transferencia %s (%s/%s): %s", req.InstanceID, req.Canal, req.IdentificadorUsuario, req.Mensaje)
		if req.Motivo != "" {
			line += " [" + req.Motivo + "]"
		}
	default:
		line = fmt.Sprintf(">>> mensaje %s (%s/%s): %s", req.InstanceID, req.Canal, req.IdentificadorUsuario, req.Mensaje)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, line)
	return err
}
