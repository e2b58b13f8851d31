package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const soporteYAML = `id: soporte
nombre: Soporte
trigger_tipo: keyword
trigger_modo: contiene
trigger_valor: ayuda
canales: [web]
estado: activo
nodos:
  - id: inicio
    tipo: inicio
  - id: m
    tipo: mensaje
    datos:
      texto: "Hola {{nombre}}"
  - id: fin
    tipo: fin
edges:
  - {id: e1, origen: inicio, destino: m}
  - {id: e2, origen: m, destino: fin}
`

const rotoYAML = `id: roto
nombre: Roto
canales: [web]
nodos:
  - id: fin
    tipo: fin
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestValidateCommand(t *testing.T) {
	ok := writeFile(t, "soporte.yaml", soporteYAML)
	broken := writeFile(t, "roto.yaml", rotoYAML)

	out, err := run(t, "validate", ok)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ soporte (Soporte)")
	assert.Contains(t, out, "warning [variable_no_declarada]")

	out, err = run(t, "validate", "--strict", ok)
	assert.ErrorIs(t, err, errInvalidFlows)
	assert.Contains(t, out, "✗ soporte (Soporte)")

	out, err = run(t, "validate", broken)
	assert.ErrorIs(t, err, errInvalidFlows)
	assert.Contains(t, out, "[inicio_faltante]")
}

func TestValidateCommand_ExampleFlows(t *testing.T) {
	out, err := run(t, "validate", "--activation", filepath.Join("..", "..", "examples", "flows", "soporte.yaml"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ soporte (Soporte)")
	assert.NotContains(t, out, "warning")
}

func TestGraphCommand_File(t *testing.T) {
	path := writeFile(t, "soporte.yaml", soporteYAML)
	out, err := run(t, "graph", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD\n"), out)
	assert.Contains(t, out, "inicio")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flujos version "), out)
}

func TestDescribeTrigger(t *testing.T) {
	tests := []struct {
		trigger domain.Trigger
		want    string
	}{
		{domain.Trigger{Tipo: domain.TriggerKeyword, Modo: domain.ModoContiene, Valor: "hola"}, "keyword/contiene:hola"},
		{domain.Trigger{Tipo: domain.TriggerKeyword, Valor: "hola"}, "keyword:hola"},
		{domain.Trigger{Tipo: domain.TriggerKeyword}, "keyword"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describeTrigger(tt.trigger))
	}
}
