// Package trigger decides what an inbound message does: resume a suspended
// conversation, start a new flow, or nothing.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/flujos/internal/logging"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
)

// Kind is the outcome of matching an inbound message.
type Kind int

const (
	// NoMatch means no instance is resumed and no flow starts.
	NoMatch Kind = iota
	// Start means Flow should start a new instance.
	Start
	// Resume means Instance is waiting for this message.
	Resume
	// Handoff means Instance is transferred to a human; the message goes to the operator.
	Handoff
	// Orphaned means Instance is in flight but its flow, or the node it waits at, no longer exists.
	Orphaned
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "start"
	case Resume:
		return "resume"
	case Handoff:
		return "handoff"
	case Orphaned:
		return "orphaned"
	}
	return "no_match"
}

// Inbound is a message received from a channel.
type Inbound struct {
	Canal                domain.Canal `json:"canal"`
	IdentificadorUsuario string       `json:"identificador_usuario"`
	Texto                string       `json:"texto"`
}

// Decision is the result of Match.
type Decision struct {
	Kind     Kind
	Flow     *domain.Flow
	Instance *domain.Instance
}

// Matcher selects at most one flow or instance per inbound message.
type Matcher struct {
	flows     ports.FlowStore
	instances ports.InstanceStore
	logger    *slog.Logger
}

// Option configures the Matcher.
type Option func(*Matcher)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// NewMatcher creates a Matcher over the given stores.
func NewMatcher(flows ports.FlowStore, instances ports.InstanceStore, opts ...Option) *Matcher {
	m := &Matcher{flows: flows, instances: instances, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match decides what to do with in. An in-flight instance for the conversation always
// wins over trigger matching. Otherwise active flows scoped to the channel are tried,
// keyword flows first, each group in creation order.
func (m *Matcher) Match(ctx context.Context, in Inbound) (Decision, error) {
	inflight, err := m.instances.List(ctx, ports.InstanceFilter{
		Canal:                in.Canal,
		IdentificadorUsuario: in.IdentificadorUsuario,
		Estados:              []domain.InstanceEstado{domain.InstanceActiva, domain.InstanceTransferida},
		Limit:                1,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to look up conversation: %w", err)
	}
	if len(inflight) > 0 {
		return m.inflight(ctx, inflight[0])
	}

	candidates, err := m.flows.List(ctx, ports.FlowFilter{Estado: domain.FlowActivo, Canal: in.Canal})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to list active flows: %w", err)
	}

	for _, f := range candidates {
		if f.Tipo == domain.TriggerKeyword && MatchKeyword(f.Trigger, in.Texto) {
			m.logger.Debug("keyword trigger matched", "flow_id", f.ID, "canal", in.Canal)
			return Decision{Kind: Start, Flow: f}, nil
		}
	}
	for _, f := range candidates {
		if f.Tipo != domain.TriggerFirstMessage {
			continue
		}
		ok, err := m.firstMessageArmed(ctx, f, in)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			m.logger.Debug("first_message trigger matched", "flow_id", f.ID, "canal", in.Canal)
			return Decision{Kind: Start, Flow: f}, nil
		}
	}
	return Decision{Kind: NoMatch}, nil
}

func (m *Matcher) inflight(ctx context.Context, inst *domain.Instance) (Decision, error) {
	f, err := m.flows.Get(ctx, inst.FlowID)
	if errors.Is(err, domain.ErrFlowNotFound) {
		return Decision{Kind: Orphaned, Instance: inst}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load flow %s: %w", inst.FlowID, err)
	}
	if inst.Estado == domain.InstanceTransferida {
		return Decision{Kind: Handoff, Flow: f, Instance: inst}, nil
	}
	if _, ok := f.Node(inst.NodoActual); !ok {
		m.logger.Debug("instance waits at a removed node", "instance_id", inst.ID, "node_id", inst.NodoActual)
		return Decision{Kind: Orphaned, Flow: f, Instance: inst}, nil
	}
	// Paused flows keep serving their in-flight instances.
	return Decision{Kind: Resume, Flow: f, Instance: inst}, nil
}

// firstMessageArmed reports whether a first_message flow may start for this user:
// either the user never ran it on this channel, or the last run was abandoned
// (cancelada, error) or ended with volver_menu.
func (m *Matcher) firstMessageArmed(ctx context.Context, f *domain.Flow, in Inbound) (bool, error) {
	prev, err := m.instances.List(ctx, ports.InstanceFilter{
		FlowID:               f.ID,
		Canal:                in.Canal,
		IdentificadorUsuario: in.IdentificadorUsuario,
		Limit:                1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to list previous instances: %w", err)
	}
	if len(prev) == 0 {
		return true, nil
	}
	last := prev[0]
	switch {
	case last.Estado == domain.InstanceCancelada, last.Estado == domain.InstanceError:
		return true, nil
	case last.AccionFinal == domain.AccionVolverMenu:
		return true, nil
	}
	return false, nil
}

// MatchKeyword applies a keyword trigger to texto, ignoring case.
// contiene matches any keyword as a substring; igual matches a keyword exactly after trimming.
func MatchKeyword(t domain.Trigger, texto string) bool {
	text := strings.ToLower(strings.TrimSpace(texto))
	if text == "" {
		return false
	}
	for _, kw := range t.Keywords() {
		kw = strings.ToLower(kw)
		switch t.Modo {
		case domain.ModoIgual:
			if text == kw {
				return true
			}
		default:
			if strings.Contains(text, kw) {
				return true
			}
		}
	}
	return false
}
