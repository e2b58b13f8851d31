package trigger_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/flujos/pkg/adapters/memory"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func TestMatchKeyword(t *testing.T) {
	contiene := domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoContiene, Valor: "agendar|reservar"}
	igual := domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoIgual, Valor: "agendar|reservar"}

	assert.True(t, trigger.MatchKeyword(contiene, "quiero agendar una hora"))
	assert.True(t, trigger.MatchKeyword(contiene, "RESERVAR"))
	assert.False(t, trigger.MatchKeyword(contiene, "hola"))

	assert.True(t, trigger.MatchKeyword(igual, "agendar"))
	assert.True(t, trigger.MatchKeyword(igual, "  Agendar "))
	assert.False(t, trigger.MatchKeyword(igual, "quiero agendar"))

	empty := domain.Trigger{Tipo: domain.TriggerKeyword, Valor: " | "}
	assert.False(t, trigger.MatchKeyword(empty, "cualquier cosa"))
}

type fixture struct {
	flows     *memory.FlowStore
	instances *memory.InstanceStore
	matcher   *trigger.Matcher
}

func newFixture() *fixture {
	fs := memory.NewFlowStore()
	is := memory.NewInstanceStore()
	return &fixture{flows: fs, instances: is, matcher: trigger.NewMatcher(fs, is)}
}

func (fx *fixture) addFlow(t *testing.T, id string, tr domain.Trigger, created time.Time, canales ...domain.Canal) *domain.Flow {
	t.Helper()
	if len(canales) == 0 {
		canales = []domain.Canal{domain.CanalWhatsApp}
	}
	f := &domain.Flow{
		ID:       id,
		Nombre:   id,
		Trigger:  tr,
		Canales:  canales,
		Estado:   domain.FlowActivo,
		Nodos:    []domain.Node{{ID: "i", Tipo: domain.NodeInicio, Datos: domain.InicioData{}}},
		CreadoEn: created,
	}
	require.NoError(t, fx.flows.Save(context.Background(), f))
	return f
}

func inbound(texto string) trigger.Inbound {
	return trigger.Inbound{Canal: domain.CanalWhatsApp, IdentificadorUsuario: "569", Texto: texto}
}

func TestMatch_KeywordBeforeFirstMessage(t *testing.T) {
	fx := newFixture()
	fx.addFlow(t, "bienvenida", domain.Trigger{Tipo: domain.TriggerFirstMessage}, t0)
	fx.addFlow(t, "agenda", domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoContiene, Valor: "agendar"}, t0.Add(time.Hour))

	d, err := fx.matcher.Match(context.Background(), inbound("quiero agendar"))
	require.NoError(t, err)
	assert.Equal(t, trigger.Start, d.Kind)
	assert.Equal(t, "agenda", d.Flow.ID)

	d, err = fx.matcher.Match(context.Background(), inbound("hola"))
	require.NoError(t, err)
	assert.Equal(t, trigger.Start, d.Kind)
	assert.Equal(t, "bienvenida", d.Flow.ID)
}

func TestMatch_CreationOrderTiebreak(t *testing.T) {
	fx := newFixture()
	kw := domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoContiene, Valor: "hola"}
	fx.addFlow(t, "b-later", kw, t0.Add(time.Minute))
	fx.addFlow(t, "z-first", kw, t0)
	fx.addFlow(t, "a-first", kw, t0)

	d, err := fx.matcher.Match(context.Background(), inbound("hola"))
	require.NoError(t, err)
	assert.Equal(t, "a-first", d.Flow.ID)
}

func TestMatch_ChannelAndEstadoScope(t *testing.T) {
	fx := newFixture()
	kw := domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoContiene, Valor: "hola"}
	fx.addFlow(t, "web-only", kw, t0, domain.CanalWeb)
	paused := fx.addFlow(t, "paused", kw, t0)
	paused.Estado = domain.FlowPausado
	require.NoError(t, fx.flows.Save(context.Background(), paused))

	d, err := fx.matcher.Match(context.Background(), inbound("hola"))
	require.NoError(t, err)
	assert.Equal(t, trigger.NoMatch, d.Kind)
}

func TestMatch_ResumeBypassesTriggers(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	f := fx.addFlow(t, "agenda", domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoContiene, Valor: "agendar"}, t0)
	fx.addFlow(t, "otro", domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoContiene, Valor: "x@y.com"}, t0)

	inst := domain.NewInstance("inst-1", f.ID, domain.CanalWhatsApp, "569", "i", t0)
	inst.Esperando = domain.EsperaEntrada
	require.NoError(t, fx.instances.Save(ctx, inst))

	d, err := fx.matcher.Match(ctx, inbound("x@y.com"))
	require.NoError(t, err)
	assert.Equal(t, trigger.Resume, d.Kind)
	assert.Equal(t, "inst-1", d.Instance.ID)
	assert.Equal(t, "agenda", d.Flow.ID)
}

func TestMatch_TransferredGoesToHandoff(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	f := fx.addFlow(t, "soporte", domain.Trigger{Tipo: domain.TriggerFirstMessage}, t0)
	inst := domain.NewInstance("inst-h", f.ID, domain.CanalWhatsApp, "569", "t", t0)
	inst.Estado = domain.InstanceTransferida
	require.NoError(t, fx.instances.Save(ctx, inst))

	d, err := fx.matcher.Match(ctx, inbound("sigo esperando"))
	require.NoError(t, err)
	assert.Equal(t, trigger.Handoff, d.Kind)
}

func TestMatch_OrphanedInstance(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	inst := domain.NewInstance("inst-o", "deleted-flow", domain.CanalWhatsApp, "569", "p", t0)
	inst.Esperando = domain.EsperaEntrada
	require.NoError(t, fx.instances.Save(ctx, inst))

	d, err := fx.matcher.Match(ctx, inbound("hola"))
	require.NoError(t, err)
	assert.Equal(t, trigger.Orphaned, d.Kind)
	assert.Equal(t, "inst-o", d.Instance.ID)
}

func TestMatch_RemovedNodeIsOrphaned(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	f := fx.addFlow(t, "agenda", domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoContiene, Valor: "agendar"}, t0)

	inst := domain.NewInstance("inst-r", f.ID, domain.CanalWhatsApp, "569", "p1", t0)
	inst.Esperando = domain.EsperaEntrada
	require.NoError(t, fx.instances.Save(ctx, inst))

	d, err := fx.matcher.Match(ctx, inbound("x@y.com"))
	require.NoError(t, err)
	assert.Equal(t, trigger.Orphaned, d.Kind)
	assert.Equal(t, "inst-r", d.Instance.ID)
}

func TestMatch_FirstMessageRearm(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	f := fx.addFlow(t, "bienvenida", domain.Trigger{Tipo: domain.TriggerFirstMessage}, t0)

	done := domain.NewInstance("inst-1", f.ID, domain.CanalWhatsApp, "569", "fin", t0)
	done.Estado = domain.InstanceCompletada
	done.AccionFinal = domain.AccionCerrar
	require.NoError(t, fx.instances.Save(ctx, done))

	d, err := fx.matcher.Match(ctx, inbound("hola de nuevo"))
	require.NoError(t, err)
	assert.Equal(t, trigger.NoMatch, d.Kind, "first_message fires once per conversation")

	menu := domain.NewInstance("inst-2", f.ID, domain.CanalWhatsApp, "569", "fin", t0.Add(time.Minute))
	menu.Estado = domain.InstanceCompletada
	menu.AccionFinal = domain.AccionVolverMenu
	require.NoError(t, fx.instances.Save(ctx, menu))

	d, err = fx.matcher.Match(ctx, inbound("hola de nuevo"))
	require.NoError(t, err)
	assert.Equal(t, trigger.Start, d.Kind, "volver_menu re-arms first_message")

	// Another user is unaffected by this history.
	other := inbound("hola")
	other.IdentificadorUsuario = "otro"
	d, err = fx.matcher.Match(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, trigger.Start, d.Kind)
}
