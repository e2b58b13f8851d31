package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contractTime = time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

// SampleFlow returns a small valid flow used by the contract suites.
func SampleFlow(id string) *domain.Flow {
	return &domain.Flow{
		ID:      id,
		Nombre:  "Contrato " + id,
		Trigger: domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoContiene, Valor: "hola"},
		Canales: []domain.Canal{domain.CanalWeb},
		Estado:  domain.FlowBorrador,
		Nodos: []domain.Node{
			{ID: "inicio", Tipo: domain.NodeInicio, Datos: domain.InicioData{}},
			{ID: "p1", Tipo: domain.NodePregunta, Datos: domain.PreguntaData{Texto: "Tu email?", VariableDestino: "email_cliente", TipoRespuesta: "email"}},
			{ID: "fin", Tipo: domain.NodeFin, Datos: domain.FinData{MensajeDespedida: "Chao", Accion: domain.AccionCerrar}},
		},
		Edges: []domain.Edge{
			{ID: "e1", Origen: "inicio", Destino: "p1"},
			{ID: "e2", Origen: "p1", Destino: "fin"},
		},
		CreadoEn:      contractTime,
		ActualizadoEn: contractTime,
	}
}

// RunFlowStoreContract verifies that a FlowStore implementation adheres to the interface contract.
func RunFlowStoreContract(t *testing.T, store ports.FlowStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Save and Get", func(t *testing.T) {
		f := SampleFlow("flow-a")
		require.NoError(t, store.Save(ctx, f))
		assert.Equal(t, 1, f.Version, "Save should bump the version")

		loaded, err := store.Get(ctx, "flow-a")
		require.NoError(t, err)
		assert.Equal(t, f.Nombre, loaded.Nombre)
		assert.Equal(t, f.Trigger, loaded.Trigger)
		assert.Equal(t, 1, loaded.Version)
		require.Len(t, loaded.Nodos, 3)
		p1, ok := loaded.Node("p1")
		require.True(t, ok)
		assert.Equal(t, "email_cliente", p1.Datos.(domain.PreguntaData).VariableDestino)
		assert.Len(t, loaded.Edges, 2)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "missing-flow")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("Stale Version Is Rejected", func(t *testing.T) {
		f := SampleFlow("flow-b")
		require.NoError(t, store.Save(ctx, f))

		stale, err := store.Get(ctx, "flow-b")
		require.NoError(t, err)
		fresh, err := store.Get(ctx, "flow-b")
		require.NoError(t, err)

		fresh.Nombre = "renamed"
		require.NoError(t, store.Save(ctx, fresh))

		stale.Nombre = "lost update"
		assert.ErrorIs(t, store.Save(ctx, stale), domain.ErrVersionConflict)

		loaded, err := store.Get(ctx, "flow-b")
		require.NoError(t, err)
		assert.Equal(t, "renamed", loaded.Nombre, "a rejected write must not touch the stored flow")
	})

	t.Run("List Filters", func(t *testing.T) {
		f := SampleFlow("flow-c")
		f.Estado = domain.FlowActivo
		f.Canales = []domain.Canal{domain.CanalWhatsApp}
		f.CreadoEn = contractTime.Add(time.Hour)
		require.NoError(t, store.Save(ctx, f))

		active, err := store.List(ctx, ports.FlowFilter{Estado: domain.FlowActivo, Canal: domain.CanalWhatsApp})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "flow-c", active[0].ID)

		all, err := store.List(ctx, ports.FlowFilter{})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), 3)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, SampleFlow("flow-d")))
		require.NoError(t, store.Delete(ctx, "flow-d"))
		_, err := store.Get(ctx, "flow-d")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})
}

// RunInstanceStoreContract verifies that an InstanceStore implementation adheres to the interface contract.
func RunInstanceStoreContract(t *testing.T, store ports.InstanceStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Save and Get", func(t *testing.T) {
		inst := domain.NewInstance("inst-a", "flow-a", domain.CanalWhatsApp, "56911111111", "p1", contractTime)
		inst.Variables["email_cliente"] = "a@b.com"
		inst.Esperando = domain.EsperaEntrada
		inst.Visitas["p1"] = 1
		require.NoError(t, store.Save(ctx, inst))
		assert.Equal(t, 1, inst.Version)

		loaded, err := store.Get(ctx, "inst-a")
		require.NoError(t, err)
		assert.Equal(t, "p1", loaded.NodoActual)
		assert.Equal(t, domain.EsperaEntrada, loaded.Esperando)
		assert.Equal(t, "a@b.com", loaded.Variables["email_cliente"])
		assert.Equal(t, 1, loaded.Visitas["p1"])
		assert.True(t, loaded.CreadoEn.Equal(contractTime))
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "missing-instance")
		assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
	})

	t.Run("Stale Version Is Rejected", func(t *testing.T) {
		inst := domain.NewInstance("inst-b", "flow-a", domain.CanalWeb, "u-b", "p1", contractTime)
		require.NoError(t, store.Save(ctx, inst))

		stale, err := store.Get(ctx, "inst-b")
		require.NoError(t, err)

		inst.Estado = domain.InstanceCancelada
		require.NoError(t, store.Save(ctx, inst))

		stale.Variables["x"] = "1"
		assert.ErrorIs(t, store.Save(ctx, stale), domain.ErrVersionConflict)

		loaded, err := store.Get(ctx, "inst-b")
		require.NoError(t, err)
		assert.Equal(t, domain.InstanceCancelada, loaded.Estado)
		assert.Empty(t, loaded.Variables["x"])
	})

	t.Run("Mutating Loaded Copy Does Not Leak", func(t *testing.T) {
		loaded, err := store.Get(ctx, "inst-a")
		require.NoError(t, err)
		loaded.Variables["email_cliente"] = "changed"

		again, err := store.Get(ctx, "inst-a")
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", again.Variables["email_cliente"])
	})

	t.Run("List By Conversation Newest First", func(t *testing.T) {
		older := domain.NewInstance("inst-c1", "flow-c", domain.CanalInstagram, "u-c", "inicio", contractTime)
		older.Estado = domain.InstanceCompletada
		newer := domain.NewInstance("inst-c2", "flow-c", domain.CanalInstagram, "u-c", "inicio", contractTime.Add(time.Minute))
		require.NoError(t, store.Save(ctx, older))
		require.NoError(t, store.Save(ctx, newer))

		got, err := store.List(ctx, ports.InstanceFilter{Canal: domain.CanalInstagram, IdentificadorUsuario: "u-c"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "inst-c2", got[0].ID)
		assert.Equal(t, "inst-c1", got[1].ID)

		done, err := store.List(ctx, ports.InstanceFilter{FlowID: "flow-c", Estados: []domain.InstanceEstado{domain.InstanceCompletada}})
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, "inst-c1", done[0].ID)

		limited, err := store.List(ctx, ports.InstanceFilter{FlowID: "flow-c", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("List UpdatedBefore", func(t *testing.T) {
		stale := domain.NewInstance("inst-d", "flow-d", domain.CanalWeb, "u-d", "p1", contractTime.Add(-48*time.Hour))
		require.NoError(t, store.Save(ctx, stale))

		got, err := store.List(ctx, ports.InstanceFilter{FlowID: "flow-d", UpdatedBefore: contractTime.Add(-24 * time.Hour)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "inst-d", got[0].ID)

		none, err := store.List(ctx, ports.InstanceFilter{FlowID: "flow-d", UpdatedBefore: contractTime.Add(-72 * time.Hour)})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

// RunLogStoreContract verifies that a LogStore implementation adheres to the interface contract.
func RunLogStoreContract(t *testing.T, store ports.LogStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Append and List In Order", func(t *testing.T) {
		msg := "calendar timeout"
		entries := []domain.LogEntry{
			{ID: "l1", ConversacionID: "inst-log", NodoID: "inicio", TipoNodo: domain.NodeInicio, Estado: domain.LogEjecutado, Timestamp: contractTime},
			{ID: "l2", ConversacionID: "inst-log", NodoID: "p1", TipoNodo: domain.NodePregunta, Estado: domain.LogEsperando, Timestamp: contractTime.Add(time.Second),
				DatosSalida: map[string]any{"texto": "Tu email?"}},
		}
		require.NoError(t, store.Append(ctx, entries...))
		require.NoError(t, store.Append(ctx, domain.LogEntry{ID: "l3", ConversacionID: "inst-log", NodoID: "cita", TipoNodo: domain.NodeAgendarCita,
			Estado: domain.LogError, Error: &msg, DuracionMs: 10000, Timestamp: contractTime.Add(2 * time.Second)}))
		require.NoError(t, store.Append(ctx, domain.LogEntry{ID: "other", ConversacionID: "inst-other", NodoID: "inicio", Timestamp: contractTime}))

		got, err := store.List(ctx, "inst-log")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"l1", "l2", "l3"}, []string{got[0].ID, got[1].ID, got[2].ID})
		assert.Equal(t, "Tu email?", got[1].DatosSalida["texto"])
		require.NotNil(t, got[2].Error)
		assert.Equal(t, msg, *got[2].Error)
		assert.Equal(t, int64(10000), got[2].DuracionMs)
	})

	t.Run("List Unknown Instance Is Empty", func(t *testing.T) {
		got, err := store.List(ctx, "inst-none")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
