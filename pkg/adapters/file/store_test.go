package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/flujos/pkg/adapters/file"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/aretw0/flujos/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure the file stores implement the ports.
var (
	_ ports.FlowStore     = (*file.FlowStore)(nil)
	_ ports.InstanceStore = (*file.InstanceStore)(nil)
	_ ports.LogStore      = (*file.LogStore)(nil)
)

func TestFileFlowStore_Contract(t *testing.T) {
	tests.RunFlowStoreContract(t, file.NewFlowStore(t.TempDir()))
}

func TestFileInstanceStore_Contract(t *testing.T) {
	tests.RunInstanceStoreContract(t, file.NewInstanceStore(t.TempDir()))
}

func TestFileLogStore_Contract(t *testing.T) {
	tests.RunLogStoreContract(t, file.NewLogStore(t.TempDir()))
}

const handWritten = `id: soporte
nombre: Soporte
trigger_tipo: keyword
trigger_modo: contiene
trigger_valor: ayuda|soporte
canales: [web]
estado: activo
nodos:
  - id: inicio
    tipo: inicio
  - id: c
    tipo: condicion
    datos:
      variable: "{{canal}}"
      operador: igual
      valor: web
  - id: si
    tipo: fin
  - id: no
    tipo: fin
edges:
  - {id: e1, origen: inicio, destino: c}
  - {id: e2, origen: c, destino: si, sourceHandle: "true"}
  - {id: e3, origen: c, destino: "no", sourceHandle: "false"}
`

func TestFileFlowStore_HandWrittenFile(t *testing.T) {
	dir := t.TempDir()
	store := file.NewFlowStore(dir)
	require.NoError(t, os.MkdirAll(store.Dir(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "soporte.yaml"), []byte(handWritten), 0644))

	f, err := store.Get(context.Background(), "soporte")
	require.NoError(t, err)
	assert.Equal(t, []string{"ayuda", "soporte"}, f.Keywords())

	c, ok := f.Node("c")
	require.True(t, ok)
	assert.Equal(t, "igual", c.Datos.(domain.CondicionData).Operador)
	assert.Equal(t, domain.ResultadoTrue{}, f.Edges[1].Condicion, "conditions are derived from handles on load")
	assert.Equal(t, domain.ResultadoFalse{}, f.Edges[2].Condicion)

	active, err := store.List(context.Background(), ports.FlowFilter{Estado: domain.FlowActivo, Canal: domain.CanalWeb})
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestFileStores_RejectPathIDs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	inst := domain.NewInstance("../escape", "f", domain.CanalWeb, "u", "inicio", tests.SampleFlow("x").CreadoEn)
	assert.Error(t, file.NewInstanceStore(dir).Save(ctx, inst))

	_, err := file.NewFlowStore(dir).Get(ctx, "a/b")
	assert.Error(t, err)

	_, err = file.NewLogStore(dir).List(ctx, `..\x`)
	assert.Error(t, err)
}

func TestFileInstanceStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := file.NewInstanceStore(dir)

	inst := domain.NewInstance("i1", "f", domain.CanalWeb, "u", "inicio", tests.SampleFlow("x").CreadoEn)
	for i := 0; i < 3; i++ {
		inst.Variables["n"] = string(rune('a' + i))
		require.NoError(t, store.Save(ctx, inst))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "instances"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "i1.json", entries[0].Name())

	loaded, err := store.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Version)
	assert.Equal(t, "c", loaded.Variables["n"])
}
