package metrics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooksRecordActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	hooks := domain.ChainHooks(m.Hooks(), domain.LifecycleHooks{})
	ctx := context.Background()

	hooks.OnNodeEnter(ctx, &domain.NodeEvent{NodeID: "p1", NodeType: domain.NodePregunta})
	hooks.OnNodeLeave(ctx, &domain.NodeEvent{NodeID: "p1", NodeType: domain.NodePregunta, Estado: domain.LogEsperando, Duration: time.Millisecond})
	hooks.OnNodeLeave(ctx, &domain.NodeEvent{NodeID: "bd", NodeType: domain.NodeGuardarBD, Estado: domain.LogError})
	hooks.OnAdapterCall(ctx, &domain.AdapterEvent{Adapter: "data_store", Duration: 20 * time.Millisecond})
	hooks.OnAdapterCall(ctx, &domain.AdapterEvent{Adapter: "data_store", IsError: true})
	m.ObserveInbound("start")
	m.ObserveInbound("start")
	m.ObserveExpired(3)

	expected := `
# HELP flujos_adapter_calls_total Side-effect adapter calls by adapter and status.
# TYPE flujos_adapter_calls_total counter
flujos_adapter_calls_total{adapter="data_store",status="error"} 1
flujos_adapter_calls_total{adapter="data_store",status="ok"} 1
# HELP flujos_inbound_messages_total Inbound messages by matcher decision.
# TYPE flujos_inbound_messages_total counter
flujos_inbound_messages_total{decision="start"} 2
# HELP flujos_instances_expired_total Idle instances closed by the expiry sweep.
# TYPE flujos_instances_expired_total counter
flujos_instances_expired_total 3
# HELP flujos_node_visits_total Node executions by node type and outcome.
# TYPE flujos_node_visits_total counter
flujos_node_visits_total{estado="error",node_type="guardar_bd"} 1
flujos_node_visits_total{estado="esperando",node_type="pregunta"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"flujos_adapter_calls_total", "flujos_inbound_messages_total", "flujos_instances_expired_total", "flujos_node_visits_total"))
	n, err := testutil.GatherAndCount(reg, "flujos_adapter_duration_seconds", "flujos_node_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "one series per adapter and per node type")
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.New(reg)
	require.NoError(t, err)
	_, err = metrics.New(reg)
	assert.Error(t, err)
}
