package monitor_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/flujos/pkg/adapters/memory"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/monitor"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func sampleFlow() *domain.Flow {
	return &domain.Flow{
		ID:      "f1",
		Nombre:  "Leads",
		Trigger: domain.Trigger{Tipo: domain.TriggerFirstMessage},
		Canales: []domain.Canal{domain.CanalWeb},
		Estado:  domain.FlowActivo,
		Nodos: []domain.Node{
			{ID: "inicio", Tipo: domain.NodeInicio, Datos: domain.InicioData{}},
			{ID: "p1", Tipo: domain.NodePregunta, Datos: domain.PreguntaData{Texto: "Email?", VariableDestino: "email_cliente"}},
			{ID: "bd", Tipo: domain.NodeGuardarBD, Datos: domain.GuardarBDData{Tabla: "leads"}},
			{ID: "fin", Tipo: domain.NodeFin, Datos: domain.FinData{}},
		},
		Edges: []domain.Edge{
			{ID: "e1", Origen: "inicio", Destino: "p1"},
			{ID: "e2", Origen: "p1", Destino: "bd"},
			{ID: "e3", Origen: "bd", Destino: "fin"},
		},
		CreadoEn: t0,
	}
}

func entry(id, nodo string, tipo domain.NodeType, estado domain.LogEstado, at time.Duration) domain.LogEntry {
	e := domain.LogEntry{ID: id, ConversacionID: "i1", NodoID: nodo, TipoNodo: tipo, Estado: estado, Timestamp: t0.Add(at)}
	if estado == domain.LogError {
		msg := "boom"
		e.Error = &msg
	}
	return e
}

type fixture struct {
	flows     *memory.FlowStore
	instances *memory.InstanceStore
	logs      *memory.LogStore
	svc       *monitor.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	fx := &fixture{
		flows:     memory.NewFlowStore(),
		instances: memory.NewInstanceStore(),
		logs:      memory.NewLogStore(),
	}
	require.NoError(t, fx.flows.Save(ctx, sampleFlow()))

	inst := domain.NewInstance("i1", "f1", domain.CanalWeb, "u1", "bd", t0)
	inst.Estado = domain.InstanceError
	require.NoError(t, fx.instances.Save(ctx, inst))

	require.NoError(t, fx.logs.Append(ctx,
		entry("l1", "inicio", domain.NodeInicio, domain.LogEjecutado, 0),
		entry("l2", "p1", domain.NodePregunta, domain.LogEsperando, time.Second),
		entry("l3", "p1", domain.NodePregunta, domain.LogEjecutado, time.Minute),
		entry("l4", "bd", domain.NodeGuardarBD, domain.LogError, time.Minute+time.Second),
	))
	fx.svc = monitor.NewService(fx.flows, fx.instances, fx.logs, monitor.WithClock(func() time.Time { return t0.Add(time.Hour) }))
	return fx
}

func TestReplay_MarksRoutedEdgeOnly(t *testing.T) {
	ctx := context.Background()
	f := &domain.Flow{
		ID:     "f2",
		Nombre: "Menú",
		Estado: domain.FlowActivo,
		Nodos: []domain.Node{
			{ID: "inicio", Tipo: domain.NodeInicio, Datos: domain.InicioData{}},
			{ID: "m", Tipo: domain.NodeMensaje, Datos: domain.MensajeData{Texto: "¿Qué necesitas?", TipoMensaje: "botones", Botones: []string{"Horarios", "Dirección", "Otro"}}},
			{ID: "info", Tipo: domain.NodeFin, Datos: domain.FinData{}},
			{ID: "fin", Tipo: domain.NodeFin, Datos: domain.FinData{}},
		},
		Edges: []domain.Edge{
			{ID: "e0", Origen: "inicio", Destino: "m"},
			{ID: "b0", Origen: "m", Destino: "info", SourceHandle: "boton_0"},
			{ID: "b1", Origen: "m", Destino: "info", SourceHandle: "boton_1"},
			{ID: "b2", Origen: "m", Destino: "fin", SourceHandle: "boton_2"},
		},
		CreadoEn: t0,
	}
	fx := &fixture{flows: memory.NewFlowStore(), instances: memory.NewInstanceStore(), logs: memory.NewLogStore()}
	require.NoError(t, fx.flows.Save(ctx, f))
	inst := domain.NewInstance("i3", "f2", domain.CanalWeb, "u3", "info", t0)
	inst.Estado = domain.InstanceCompletada
	require.NoError(t, fx.instances.Save(ctx, inst))

	left := func(e domain.LogEntry, edgeID string) domain.LogEntry {
		e.ConversacionID = "i3"
		e.DatosSalida = map[string]any{domain.LogEdgeKey: edgeID}
		return e
	}
	require.NoError(t, fx.logs.Append(ctx,
		left(entry("l1", "inicio", domain.NodeInicio, domain.LogEjecutado, 0), "e0"),
		domain.LogEntry{ID: "l2", ConversacionID: "i3", NodoID: "m", TipoNodo: domain.NodeMensaje, Estado: domain.LogEsperando, Timestamp: t0.Add(time.Second)},
		left(entry("l3", "m", domain.NodeMensaje, domain.LogEjecutado, time.Minute), "b1"),
		domain.LogEntry{ID: "l4", ConversacionID: "i3", NodoID: "info", TipoNodo: domain.NodeFin, Estado: domain.LogEjecutado, Timestamp: t0.Add(time.Minute + time.Second)},
	))
	fx.svc = monitor.NewService(fx.flows, fx.instances, fx.logs)

	r, err := fx.svc.Replay(ctx, "i3")
	require.NoError(t, err)
	recorridos := map[string]bool{}
	for _, e := range r.Edges {
		recorridos[e.Edge.ID] = e.Recorrido
	}
	assert.Equal(t, map[string]bool{"e0": true, "b0": false, "b1": true, "b2": false}, recorridos)
}

func TestReplay(t *testing.T) {
	fx := newFixture(t)
	r, err := fx.svc.Replay(context.Background(), "i1")
	require.NoError(t, err)

	require.Len(t, r.Nodos, 4)
	p1, ok := r.Node("p1")
	require.True(t, ok)
	assert.Equal(t, domain.LogEjecutado, p1.Estado, "latest entry wins")
	assert.Equal(t, 2, p1.Visitas)
	assert.Equal(t, "l3", p1.Ultima.ID)

	bd, _ := r.Node("bd")
	assert.Equal(t, domain.LogError, bd.Estado)
	fin, _ := r.Node("fin")
	assert.Equal(t, domain.LogNoAlcanzado, fin.Estado)
	assert.Zero(t, fin.Visitas)
	assert.Nil(t, fin.Ultima)

	assert.Equal(t, []string{"inicio", "p1", "bd"}, r.Camino)
	recorridos := map[string]bool{}
	for _, e := range r.Edges {
		recorridos[e.Edge.ID] = e.Recorrido
	}
	assert.Equal(t, map[string]bool{"e1": true, "e2": true, "e3": false}, recorridos)

	diagram := r.Mermaid()
	assert.Contains(t, diagram, "class bd failed;")
	assert.Contains(t, diagram, "class inicio visited;")
	assert.NotContains(t, diagram, " current;\n", "terminal instances have no current node")
}

func TestReplayDeletedFlow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.flows.Delete(ctx, "f1"))

	r, err := fx.svc.Replay(ctx, "i1")
	require.NoError(t, err)
	assert.Nil(t, r.Flow)
	assert.Empty(t, r.Edges)
	require.Len(t, r.Nodos, 3, "only logged nodes are known")
	assert.Equal(t, domain.NodeGuardarBD, r.Nodos[2].Tipo)
	assert.Equal(t, "", r.Mermaid())
}

func TestReplayUnknownInstance(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Replay(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrInstanceNotFound)

	_, err = fx.svc.Logs(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
}

func TestLogsAndList(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	logs, err := fx.svc.Logs(ctx, "i1")
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.Equal(t, "l1", logs[0].ID)

	list, err := fx.svc.List(ctx, ports.InstanceFilter{FlowID: "f1", Estados: []domain.InstanceEstado{domain.InstanceError}})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = fx.svc.List(ctx, ports.InstanceFilter{Canal: domain.CanalWhatsApp})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDetener(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	active := domain.NewInstance("i2", "f1", domain.CanalWeb, "u2", "p1", t0)
	active.Esperando = domain.EsperaEntrada
	require.NoError(t, fx.instances.Save(ctx, active))

	stopped, err := fx.svc.Detener(ctx, "i2")
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceCancelada, stopped.Estado)
	assert.Equal(t, domain.EsperaNinguna, stopped.Esperando)
	assert.Equal(t, "p1", stopped.NodoActual, "no node runs")
	assert.True(t, stopped.ActualizadoEn.Equal(t0.Add(time.Hour)))

	logs, err := fx.logs.List(ctx, "i2")
	require.NoError(t, err)
	assert.Empty(t, logs)

	_, err = fx.svc.Detener(ctx, "i2")
	assert.ErrorIs(t, err, domain.ErrInstanceClosed)

	_, err = fx.svc.Detener(ctx, "i1")
	assert.ErrorIs(t, err, domain.ErrInstanceClosed, "error is terminal")
}

func TestBuildMermaidCurrentNode(t *testing.T) {
	inst := domain.NewInstance("i3", "f1", domain.CanalWeb, "u3", "p1", t0)
	inst.Esperando = domain.EsperaEntrada
	r := monitor.Build(inst, sampleFlow(), []domain.LogEntry{
		entry("a", "inicio", domain.NodeInicio, domain.LogEjecutado, 0),
		entry("b", "p1", domain.NodePregunta, domain.LogEsperando, time.Second),
	})
	diagram := r.Mermaid()
	assert.True(t, strings.Contains(diagram, "class p1 current;"))
	assert.Contains(t, diagram, "inicio ==> p1")
}
