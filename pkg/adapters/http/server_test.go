package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/flujos"
	"github.com/aretw0/flujos/pkg/adapters/memory"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/flows"
	"github.com/aretw0/flujos/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	handler http.Handler
	flows   *flows.Service
	outbox  *memory.Outbox
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := memory.NewFlowStore()
	outbox := memory.NewOutbox()
	eng := flujos.New(flujos.Stores{
		Flows:     fs,
		Instances: memory.NewInstanceStore(),
		Logs:      memory.NewLogStore(),
	}, flujos.Adapters{Messenger: outbox, Handoff: memory.NewHandoff()})

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	svc := flows.NewService(fs)
	return &harness{
		handler: NewHandler(Config{
			Flows:     svc,
			Engine:    eng,
			Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			OnInbound: m.ObserveInbound,
		}),
		flows:  svc,
		outbox: outbox,
	}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

const saludoJSON = `{
	"nombre": "Saludo",
	"trigger": {"trigger_tipo": "keyword", "trigger_modo": "contiene", "trigger_valor": "hola"},
	"canales": ["web"],
	"nodos": [
		{"id": "inicio", "tipo": "inicio"},
		{"id": "m", "tipo": "mensaje", "datos": {"texto": "¡Hola!"}},
		{"id": "fin", "tipo": "fin", "datos": {"mensaje_despedida": "Chao"}}
	],
	"edges": [
		{"id": "e1", "origen": "inicio", "destino": "m"},
		{"id": "e2", "origen": "m", "destino": "fin"}
	]
}`

func (h *harness) activeSaludo(t *testing.T) *domain.Flow {
	t.Helper()
	w := h.do(t, http.MethodPost, "/flows", saludoJSON)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	f := decodeBody[domain.Flow](t, w)
	assert.Equal(t, domain.FlowBorrador, f.Estado)

	w = h.do(t, http.MethodPost, "/flows/"+f.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return ptr(decodeBody[domain.Flow](t, w))
}

func violationCodes(body errorBody) []string {
	codes := make([]string, 0, len(body.Violations))
	for _, v := range body.Violations {
		codes = append(codes, v.Code)
	}
	return codes
}

func ptr[T any](v T) *T {
	return &v
}

func (h *harness) activeHandoff(t *testing.T) *domain.Flow {
	t.Helper()
	ctx := context.Background()
	f, err := h.flows.Create(ctx, flows.CreateInput{
		Nombre:  "Soporte",
		Trigger: domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoContiene, Valor: "ayuda"},
		Canales: []domain.Canal{domain.CanalWhatsApp},
		Nodos: []domain.Node{
			{ID: "inicio", Tipo: domain.NodeInicio, Datos: domain.InicioData{}},
			{ID: "th", Tipo: domain.NodeTransferirHumano, Datos: domain.TransferirHumanoData{MensajeUsuario: "Te comunico con un ejecutivo"}},
			{ID: "fin", Tipo: domain.NodeFin, Datos: domain.FinData{}},
		},
		Edges: []domain.Edge{
			{ID: "e1", Origen: "inicio", Destino: "th"},
			{ID: "e2", Origen: "th", Destino: "fin"},
		},
	})
	require.NoError(t, err)
	f, err = h.flows.Activate(ctx, f.ID)
	require.NoError(t, err)
	return f
}

func TestFlowsLifecycle(t *testing.T) {
	h := newHarness(t)
	f := h.activeSaludo(t)
	assert.Equal(t, domain.FlowActivo, f.Estado)

	w := h.do(t, http.MethodGet, "/flows?estado=activo&canal=web", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]domain.Flow](t, w), 1)

	w = h.do(t, http.MethodGet, "/flows?canal=instagram", nil)
	assert.Empty(t, decodeBody[[]domain.Flow](t, w))

	// Broken graph: rejected with the full violation list, nothing saved.
	w = h.do(t, http.MethodPut, "/flows/"+f.ID+"/graph", flows.GraphUpdate{
		Nodos: f.Nodos,
		Edges: append(f.Edges, domain.Edge{ID: "e3", Origen: "m", Destino: "nope"}),
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, violationCodes(decodeBody[errorBody](t, w)), flows.CodeEdgeDestino)

	// Stale version.
	w = h.do(t, http.MethodPut, "/flows/"+f.ID+"/graph", flows.GraphUpdate{Nodos: f.Nodos, Edges: f.Edges, Version: f.Version + 5})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(t, http.MethodPut, "/flows/"+f.ID+"/trigger", triggerRequest{
		Trigger: domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoIgual, Valor: "menu"},
		Canales: []domain.Canal{domain.CanalWeb, domain.CanalWhatsApp},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "menu", decodeBody[domain.Flow](t, w).Valor)

	w = h.do(t, http.MethodPost, "/flows/"+f.ID+"/layout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	laid := decodeBody[domain.Flow](t, w)
	inicio, _ := laid.Node("inicio")
	fin, _ := laid.Node("fin")
	assert.Less(t, inicio.Posicion.Y, fin.Posicion.Y)

	w = h.do(t, http.MethodPost, "/flows/"+f.ID+"/duplicate", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	dup := decodeBody[domain.Flow](t, w)
	assert.NotEqual(t, f.ID, dup.ID)
	assert.Equal(t, domain.FlowBorrador, dup.Estado)

	w = h.do(t, http.MethodGet, "/flows/"+f.ID+"/mermaid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "graph TD"))

	w = h.do(t, http.MethodPost, "/flows/"+f.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(t, http.MethodPost, "/flows/"+f.ID+"/pause", nil)
	assert.Equal(t, http.StatusOK, w.Code, "pausing twice is a no-op")

	w = h.do(t, http.MethodDelete, "/flows/"+f.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(t, http.MethodGet, "/flows/"+f.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidateFlow(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/flows/validate", saludoJSON)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decodeBody[validateResponse](t, w).Valid)

	sinInicio := `{"nombre":"x","canales":["web"],"trigger_tipo":"keyword","trigger_valor":"x",
		"nodos":[{"id":"fin","tipo":"fin"}],"edges":[]}`
	w = h.do(t, http.MethodPost, "/flows/validate", sinInicio)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, violationCodes(decodeBody[errorBody](t, w)), flows.CodeInicioFaltante)

	w = h.do(t, http.MethodPost, "/flows/validate", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInboundAndMonitor(t *testing.T) {
	h := newHarness(t)
	f := h.activeSaludo(t)

	w := h.do(t, http.MethodPost, "/inbound", inboundRequest{Canal: domain.CanalWeb, IdentificadorUsuario: "u1", Texto: "hola!"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decodeBody[flujos.Outcome](t, w)
	assert.Equal(t, "start", out.Decision)
	require.NotNil(t, out.Instance)
	assert.Equal(t, domain.InstanceCompletada, out.Instance.Estado)
	assert.Equal(t, []string{"¡Hola!", "Chao"}, h.outbox.Texts())

	w = h.do(t, http.MethodPost, "/inbound", inboundRequest{Canal: domain.CanalWeb, IdentificadorUsuario: "u2", Texto: "nada que ver"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no_match", decodeBody[flujos.Outcome](t, w).Decision)

	w = h.do(t, http.MethodPost, "/inbound", inboundRequest{Canal: "sms", IdentificadorUsuario: "u1", Texto: "hola"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/instances?flow_id="+f.ID+"&estado=completada,cancelada", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeBody[[]domain.Instance](t, w), 1)

	id := out.Instance.ID
	w = h.do(t, http.MethodGet, "/instances/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/instances/"+id+"/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeBody[[]domain.LogEntry](t, w))

	w = h.do(t, http.MethodGet, "/instances/"+id+"/replay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rep struct {
		Camino []string `json:"camino"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, []string{"inicio", "m", "fin"}, rep.Camino)

	w = h.do(t, http.MethodGet, "/instances/"+id+"/replay?format=mermaid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "==>")

	w = h.do(t, http.MethodGet, "/instances/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `flujos_inbound_messages_total{decision="start"} 1`)
	assert.Contains(t, w.Body.String(), `flujos_inbound_messages_total{decision="no_match"} 1`)

	w = h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOperatorEndpoints(t *testing.T) {
	h := newHarness(t)
	h.activeHandoff(t)

	w := h.do(t, http.MethodPost, "/inbound", inboundRequest{Canal: domain.CanalWhatsApp, IdentificadorUsuario: "+569", Texto: "necesito ayuda"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decodeBody[flujos.Outcome](t, w)
	require.Equal(t, domain.InstanceTransferida, out.Instance.Estado)
	id := out.Instance.ID

	w = h.do(t, http.MethodPost, "/instances/"+id+"/respond", respondRequest{Texto: "Hola, soy Ana"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, h.outbox.Texts(), "Hola, soy Ana")

	w = h.do(t, http.MethodPost, "/instances/"+id+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.InstanceCompletada, decodeBody[flujos.Outcome](t, w).Instance.Estado)

	w = h.do(t, http.MethodPost, "/instances/"+id+"/close", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "closed instances reject operator actions")
	w = h.do(t, http.MethodPost, "/instances/"+id+"/detener", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDetenerAndClose(t *testing.T) {
	h := newHarness(t)
	h.activeHandoff(t)

	start := func(usuario string) string {
		w := h.do(t, http.MethodPost, "/inbound", inboundRequest{Canal: domain.CanalWhatsApp, IdentificadorUsuario: usuario, Texto: "ayuda"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decodeBody[flujos.Outcome](t, w).Instance.ID
	}

	a := start("a")
	w := h.do(t, http.MethodPost, "/instances/"+a+"/close", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.InstanceCompletada, decodeBody[domain.Instance](t, w).Estado)

	b := start("b")
	w = h.do(t, http.MethodPost, "/instances/"+b+"/detener", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.InstanceCancelada, decodeBody[domain.Instance](t, w).Estado)

	w = h.do(t, http.MethodPost, "/instances/"+b+"/resume", `{"nodo_id":"fin"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSubscribeEvents(t *testing.T) {
	h := newHarness(t)
	h.activeHandoff(t)
	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	w := h.do(t, http.MethodPost, "/inbound", inboundRequest{Canal: domain.CanalWhatsApp, IdentificadorUsuario: "+569", Texto: "ayuda"})
	require.Equal(t, http.StatusOK, w.Code)
	id := decodeBody[flujos.Outcome](t, w).Instance.ID

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/instances/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if strings.HasPrefix(sc.Text(), "data: ") {
				lines <- strings.TrimPrefix(sc.Text(), "data: ")
			}
		}
	}()

	next := func() string {
		select {
		case l, ok := <-lines:
			require.True(t, ok, "stream closed")
			return l
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for SSE data")
			return ""
		}
	}

	assert.Equal(t, "connected", next())
	var initial domain.InstanceDiff
	require.NoError(t, json.Unmarshal([]byte(next()), &initial))
	require.NotNil(t, initial.Estado)
	assert.Equal(t, domain.InstanceTransferida, *initial.Estado)

	stop, err := http.Post(srv.URL+"/instances/"+id+"/detener", "application/json", nil)
	require.NoError(t, err)
	stop.Body.Close()
	require.Equal(t, http.StatusOK, stop.StatusCode)

	var diff domain.InstanceDiff
	require.NoError(t, json.Unmarshal([]byte(next()), &diff))
	assert.Equal(t, id, diff.InstanceID)
	require.NotNil(t, diff.Estado)
	assert.Equal(t, domain.InstanceCancelada, *diff.Estado)
	assert.Nil(t, diff.NodoActual, "only changed fields are sent")
}

func TestSubscribeEventsUnknownInstance(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/instances/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
