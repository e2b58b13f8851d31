package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var testTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

const sampleFlowJSON = `{
  "id": "f1",
  "nombre": "Bienvenida",
  "trigger_tipo": "keyword",
  "trigger_modo": "contiene",
  "trigger_valor": "hola | buenas ||",
  "canales": ["whatsapp"],
  "estado": "activo",
  "nodos": [
    {"id": "n1", "tipo": "inicio", "posicion": {"x": 0, "y": 0}},
    {"id": "n2", "tipo": "mensaje", "posicion": {"x": 0, "y": 160},
     "datos": {"texto": "Elige", "tipo_mensaje": "botones", "botones": ["Ventas", "Soporte"]}},
    {"id": "n3", "tipo": "condicion", "datos": {"variable": "edad", "operador": "mayor_que", "valor": "17"}},
    {"id": "n4", "tipo": "buscar_conocimiento", "datos": {"consulta": "{{pregunta}}", "max_resultados": 3}},
    {"id": "n5", "tipo": "fin"}
  ],
  "edges": [
    {"id": "e1", "origen": "n1", "destino": "n2"},
    {"id": "e2", "origen": "n2", "destino": "n3", "sourceHandle": "boton_0"},
    {"id": "e3", "origen": "n2", "destino": "n5", "condicion": {"tipo": "boton", "indice": 1}},
    {"id": "e4", "origen": "n3", "destino": "n4", "sourceHandle": "true"},
    {"id": "e5", "origen": "n3", "destino": "n5", "condicion": {"tipo": "resultado_false"}}
  ]
}`

func TestFlow_JSONDecodesTypedData(t *testing.T) {
	var f Flow
	require.NoError(t, json.Unmarshal([]byte(sampleFlowJSON), &f))

	assert.Equal(t, TriggerKeyword, f.Tipo)
	assert.Equal(t, []string{"hola", "buenas"}, f.Keywords())

	n2, ok := f.Node("n2")
	require.True(t, ok)
	msg, ok := n2.Datos.(MensajeData)
	require.True(t, ok, "datos should decode into MensajeData")
	assert.True(t, msg.HasButtons())
	assert.Equal(t, []string{"Ventas", "Soporte"}, n2.Buttons())

	n4, _ := f.Node("n4")
	assert.Equal(t, 3, n4.Datos.(BuscarConocimientoData).MaxResultados)

	n1, _ := f.Node("n1")
	assert.Equal(t, InicioData{}, n1.Datos)
}

func TestFlow_Normalize(t *testing.T) {
	var f Flow
	require.NoError(t, json.Unmarshal([]byte(sampleFlowJSON), &f))
	f.Normalize()

	byID := map[string]Edge{}
	for _, e := range f.Edges {
		byID[e.ID] = e
	}
	assert.Nil(t, byID["e1"].Condicion)
	assert.Equal(t, Boton{Indice: 0}, byID["e2"].Condicion)
	assert.Equal(t, "boton_1", byID["e3"].SourceHandle)
	assert.Equal(t, ResultadoTrue{}, byID["e4"].Condicion)
	assert.Equal(t, HandleFalse, byID["e5"].SourceHandle)
}

func TestFlow_Outgoing_Deterministic(t *testing.T) {
	var f Flow
	require.NoError(t, json.Unmarshal([]byte(sampleFlowJSON), &f))
	out := f.Outgoing("n2")
	require.Len(t, out, 2)
	assert.Equal(t, "e2", out[0].ID)
	assert.Equal(t, "e3", out[1].ID)
}

func TestFlow_CloneIsDeep(t *testing.T) {
	var f Flow
	require.NoError(t, json.Unmarshal([]byte(sampleFlowJSON), &f))

	c, err := f.Clone()
	require.NoError(t, err)
	c.Nodos[0].ID = "changed"
	c.Edges[0].Destino = "changed"

	assert.Equal(t, "n1", f.Nodos[0].ID)
	assert.Equal(t, "n2", f.Edges[0].Destino)
	assert.Equal(t, f.Nodos[2].Datos, c.Nodos[2].Datos)
}

func TestFlow_YAMLRoundTrip(t *testing.T) {
	var f Flow
	require.NoError(t, json.Unmarshal([]byte(sampleFlowJSON), &f))

	data, err := yaml.Marshal(&f)
	require.NoError(t, err)
	assert.Contains(t, string(data), "trigger_tipo: keyword")

	var back Flow
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, f.Nombre, back.Nombre)
	assert.Equal(t, f.Trigger, back.Trigger)
	assert.Equal(t, f.Nodos, back.Nodos)
	assert.Equal(t, f.Edges, back.Edges)
}

func TestNode_UnknownType(t *testing.T) {
	var n Node
	err := json.Unmarshal([]byte(`{"id":"x","tipo":"teletransportar"}`), &n)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownNodeType))
}

func TestEdge_UnknownCondition(t *testing.T) {
	var e Edge
	err := json.Unmarshal([]byte(`{"id":"e","origen":"a","destino":"b","condicion":{"tipo":"magia"}}`), &e)
	assert.Error(t, err)
}

func TestParseHandle(t *testing.T) {
	assert.Equal(t, SalidaIA{Valor: "compra"}, ParseHandle(NodeReconocerRespuesta, "compra"))
	assert.Nil(t, ParseHandle(NodeCondicion, "maybe"))
	assert.Nil(t, ParseHandle(NodeMensaje, "boton_x"))
	assert.Nil(t, ParseHandle(NodeInicio, "true"))

	i, ok := ParseButtonHandle(ButtonHandle(2))
	assert.True(t, ok)
	assert.Equal(t, 2, i)
}

func TestInstance_Clone(t *testing.T) {
	inst := NewInstance("i1", "f1", CanalWeb, "u1", "n1", testTime)
	inst.Variables["a"] = "1"

	c := inst.Clone()
	c.Variables["a"] = "2"
	c.Visitas["n1"] = 3

	assert.Equal(t, "1", inst.Variables["a"])
	assert.Zero(t, inst.Visitas["n1"])
	assert.False(t, inst.Suspended())
	assert.True(t, InstanceCancelada.Terminal())
	assert.False(t, InstanceTransferida.Terminal())
}
