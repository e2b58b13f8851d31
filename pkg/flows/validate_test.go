package flows_test

import (
	"testing"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/flows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inicio(id string) domain.Node {
	return domain.Node{ID: id, Tipo: domain.NodeInicio, Datos: domain.InicioData{}}
}

func mensaje(id, texto string, botones ...string) domain.Node {
	d := domain.MensajeData{Texto: texto}
	if len(botones) > 0 {
		d.TipoMensaje = "botones"
		d.Botones = botones
	}
	return domain.Node{ID: id, Tipo: domain.NodeMensaje, Datos: d}
}

func condicion(id string) domain.Node {
	return domain.Node{ID: id, Tipo: domain.NodeCondicion, Datos: domain.CondicionData{Variable: "edad", Operador: domain.OpMayorQue, Valor: "17"}}
}

func fin(id string) domain.Node {
	return domain.Node{ID: id, Tipo: domain.NodeFin, Datos: domain.FinData{}}
}

func edge(id, from, to, handle string) domain.Edge {
	return domain.Edge{ID: id, Origen: from, Destino: to, SourceHandle: handle}
}

func violationCodes(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	var codes []string
	for _, v := range flows.Violations(err) {
		codes = append(codes, v.Code)
	}
	return codes
}

func TestValidate_Valid(t *testing.T) {
	f := &domain.Flow{
		Nodos: []domain.Node{inicio("i"), condicion("c"), mensaje("m", "hola {{nombre}}"), fin("f")},
		Edges: []domain.Edge{
			edge("e1", "i", "c", ""),
			edge("e2", "c", "m", "true"),
			edge("e3", "c", "f", "false"),
			edge("e4", "m", "f", ""),
		},
	}
	assert.NoError(t, flows.Validate(f))
}

func TestValidate_InicioCount(t *testing.T) {
	none := &domain.Flow{Nodos: []domain.Node{fin("f")}}
	assert.Contains(t, violationCodes(t, flows.Validate(none)), flows.CodeInicioFaltante)

	two := &domain.Flow{Nodos: []domain.Node{inicio("a"), inicio("b")}}
	assert.Contains(t, violationCodes(t, flows.Validate(two)), flows.CodeInicioDuplicado)

	one := &domain.Flow{Nodos: []domain.Node{inicio("a")}}
	assert.NoError(t, flows.Validate(one))
}

func TestValidate_CondicionTwoEdges(t *testing.T) {
	base := func(edges ...domain.Edge) *domain.Flow {
		return &domain.Flow{
			Nodos: []domain.Node{inicio("i"), condicion("c"), fin("a"), fin("b"), fin("x")},
			Edges: append([]domain.Edge{edge("e0", "i", "c", "")}, edges...),
		}
	}

	t.Run("Third Edge Rejected", func(t *testing.T) {
		f := base(edge("t", "c", "a", "true"), edge("f", "c", "b", "false"), edge("x", "c", "x", "true"))
		assert.Contains(t, violationCodes(t, flows.Validate(f)), flows.CodeCondicionEdges)
	})

	t.Run("Same Handle Twice Rejected", func(t *testing.T) {
		f := base(edge("t", "c", "a", "true"), edge("t2", "c", "b", "true"))
		assert.Contains(t, violationCodes(t, flows.Validate(f)), flows.CodeCondicionEdges)
	})

	t.Run("Missing Branch Rejected", func(t *testing.T) {
		f := base(edge("t", "c", "a", "true"))
		assert.Contains(t, violationCodes(t, flows.Validate(f)), flows.CodeCondicionEdges)
	})

	t.Run("Condition Objects Accepted", func(t *testing.T) {
		f := base(
			domain.Edge{ID: "t", Origen: "c", Destino: "a", Condicion: domain.ResultadoTrue{}},
			domain.Edge{ID: "f", Origen: "c", Destino: "b", Condicion: domain.ResultadoFalse{}},
		)
		assert.NoError(t, flows.Validate(f))
	})
}

func TestValidate_Edges(t *testing.T) {
	f := &domain.Flow{
		Nodos: []domain.Node{inicio("i"), fin("f")},
		Edges: []domain.Edge{
			edge("e1", "i", "f", ""),
			edge("e1", "ghost", "f", ""),
			edge("e2", "i", "nowhere", ""),
		},
	}
	codes := violationCodes(t, flows.Validate(f))
	assert.Contains(t, codes, flows.CodeEdgeDuplicado)
	assert.Contains(t, codes, flows.CodeEdgeOrigen)
	assert.Contains(t, codes, flows.CodeEdgeDestino)
}

func TestValidate_Buttons(t *testing.T) {
	t.Run("One Edge Per Button", func(t *testing.T) {
		f := &domain.Flow{
			Nodos: []domain.Node{inicio("i"), mensaje("m", "Elige", "A", "B"), fin("a"), fin("b")},
			Edges: []domain.Edge{
				edge("e0", "i", "m", ""),
				edge("e1", "m", "a", "boton_0"),
				edge("e2", "m", "b", "boton_1"),
			},
		}
		assert.NoError(t, flows.Validate(f))
	})

	t.Run("Out Of Range And Missing", func(t *testing.T) {
		f := &domain.Flow{
			Nodos: []domain.Node{inicio("i"), mensaje("m", "Elige", "A", "B"), fin("a")},
			Edges: []domain.Edge{
				edge("e0", "i", "m", ""),
				edge("e1", "m", "a", "boton_0"),
				edge("e2", "m", "a", "boton_5"),
			},
		}
		codes := violationCodes(t, flows.Validate(f))
		assert.Contains(t, codes, flows.CodeHandleInvalido)
		assert.Contains(t, codes, flows.CodeBotonSinEdge)
	})

	t.Run("More Than Three Buttons", func(t *testing.T) {
		f := &domain.Flow{Nodos: []domain.Node{inicio("i"), mensaje("m", "Elige", "A", "B", "C", "D")}}
		err := flows.Validate(f)
		require.Error(t, err)
		var found bool
		for _, v := range flows.Violations(err) {
			if v.Code == flows.CodeDatosInvalidos && v.Field == "botones" {
				found = true
			}
		}
		assert.True(t, found, "expected a botones violation, got %v", err)
	})
}

func TestValidate_ReconocerHandles(t *testing.T) {
	rec := domain.Node{ID: "r", Tipo: domain.NodeReconocerRespuesta, Datos: domain.ReconocerRespuestaData{
		Salidas: []domain.Salida{{ID: "compra", Etiqueta: "Compra"}, {ID: "soporte", Etiqueta: "Soporte"}},
	}}
	f := &domain.Flow{
		Nodos: []domain.Node{inicio("i"), rec, fin("a"), fin("b")},
		Edges: []domain.Edge{
			edge("e0", "i", "r", ""),
			edge("e1", "r", "a", "compra"),
			edge("e2", "r", "b", "reclamo"),
		},
	}
	codes := violationCodes(t, flows.Validate(f))
	assert.Equal(t, []string{flows.CodeHandleInvalido}, codes)
}

func TestValidate_DatosFields(t *testing.T) {
	f := &domain.Flow{
		Nodos: []domain.Node{
			inicio("i"),
			{ID: "p", Tipo: domain.NodePregunta, Datos: domain.PreguntaData{Texto: "?", VariableDestino: "canal", TipoRespuesta: "color"}},
			{ID: "g", Tipo: domain.NodeGuardarVariable, Datos: domain.GuardarVariableData{Variable: "total", Expresion: "precio *"}},
			{ID: "m", Tipo: domain.NodeMensaje, Datos: domain.PreguntaData{Texto: "wrong kind"}},
		},
	}
	err := flows.Validate(f)
	require.Error(t, err)

	byField := map[string]string{}
	for _, v := range flows.Violations(err) {
		byField[v.NodeID+"."+v.Field] = v.Code
	}
	assert.Equal(t, flows.CodeDatosInvalidos, byField["p.variable_destino"], "system variables are not writable")
	assert.Equal(t, flows.CodeDatosInvalidos, byField["p.tipo_respuesta"])
	assert.Equal(t, flows.CodeExpresionInvalida, byField["g.expresion"])
	assert.Equal(t, flows.CodeDatosInvalidos, byField["m."])
}

func TestValidateActivation(t *testing.T) {
	f := &domain.Flow{
		Trigger: domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoIgual, Valor: " | "},
		Nodos:   []domain.Node{inicio("i")},
	}
	codes := violationCodes(t, flows.ValidateActivation(f))
	assert.ElementsMatch(t, []string{flows.CodeCanalesVacios, flows.CodeTriggerValorVacio}, codes)

	f.Canales = []domain.Canal{domain.CanalWeb}
	f.Valor = "hola"
	assert.NoError(t, flows.ValidateActivation(f))

	f.Trigger = domain.Trigger{Tipo: domain.TriggerFirstMessage}
	assert.NoError(t, flows.ValidateActivation(f))
}

func TestWarnings(t *testing.T) {
	f := &domain.Flow{
		Nodos: []domain.Node{
			inicio("i"),
			{ID: "p", Tipo: domain.NodePregunta, Datos: domain.PreguntaData{Texto: "Email?", VariableDestino: "email"}},
			mensaje("m", "{{email}} {{nombre_marca}} {{telefono}}"),
		},
	}
	w := flows.Warnings(f)
	require.Len(t, w, 1)
	assert.Equal(t, "m", w[0].NodeID)
	assert.Contains(t, w[0].Message, "telefono")
}

func TestValidationError_Message(t *testing.T) {
	err := &flows.ValidationError{Violations: []flows.Violation{{Code: "x", NodeID: "n", Message: "bad"}}}
	assert.Equal(t, "invalid flow: [x] node n: bad", err.Error())
	assert.True(t, err.Has("x"))
}
