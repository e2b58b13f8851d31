package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/flujos/pkg/adapters/memory"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/persistence/middleware"
	"github.com/aretw0/flujos/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Contract(t *testing.T) {
	mw, err := middleware.NewPIIMiddleware([]string{"password"})
	require.NoError(t, err)
	tests.RunLogStoreContract(t, mw(memory.NewLogStore()))
}

func TestPIIMiddleware_Masking(t *testing.T) {
	underlyingStore := memory.NewLogStore()
	// Mask keys containing "email" or "telefono"
	mw, err := middleware.NewPIIMiddleware([]string{"email", "^telefono"})
	require.NoError(t, err)
	secureStore := mw(underlyingStore)
	ctx := context.Background()

	entry := domain.LogEntry{
		ID:             "l1",
		ConversacionID: "i1",
		NodoID:         "guardar",
		TipoNodo:       domain.NodeGuardarBD,
		Estado:         domain.LogEjecutado,
		DatosEntrada: map[string]any{
			"tabla": "leads",
			"campos": map[string]any{
				"nombre":        "Ana",
				"email_cliente": "ana@example.com",
				"telefono":      "+56911112222",
			},
		},
		DatosSalida: map[string]any{"registro_id": "r1"},
	}

	require.NoError(t, secureStore.Append(ctx, entry))

	// The caller's entry is not modified
	assert.Equal(t, "ana@example.com", entry.DatosEntrada["campos"].(map[string]any)["email_cliente"])

	stored, err := secureStore.List(ctx, "i1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	campos := stored[0].DatosEntrada["campos"].(map[string]any)
	assert.Equal(t, "Ana", campos["nombre"])
	assert.Equal(t, middleware.Mask, campos["email_cliente"])
	assert.Equal(t, middleware.Mask, campos["telefono"])
	assert.Equal(t, "leads", stored[0].DatosEntrada["tabla"])
	assert.Equal(t, "r1", stored[0].DatosSalida["registro_id"])
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}
