package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/flujos/pkg/adapters/openai"
	"github.com/aretw0/flujos/pkg/ports"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.AI = (*openai.Client)(nil)

// fakeAPI answers every chat completion with content and records the last request body.
func fakeAPI(t *testing.T, content string, status int) (*httptest.Server, *map[string]any) {
	t.Helper()
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &last)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func newClient(srv *httptest.Server) *openai.Client {
	return openai.New(
		openai.WithAPIKey("test-key"),
		openai.WithBaseURL(srv.URL+"/"),
		openai.WithModel("gpt-4o-mini"),
		openai.WithRequestOptions(openaiopt.WithMaxRetries(0)),
	)
}

func TestComplete(t *testing.T) {
	srv, last := fakeAPI(t, "  Atendemos de 9 a 18.  ", http.StatusOK)
	ai := newClient(srv)

	out, err := ai.Complete(context.Background(), "¿Horario?", ports.AIContext{
		Variables:    map[string]string{"nombre_marca": "Clínica Sol"},
		Conocimiento: "Horario: 9 a 18",
	})
	require.NoError(t, err)
	assert.Equal(t, "Atendemos de 9 a 18.", out)

	req := *last
	assert.Equal(t, "gpt-4o-mini", req["model"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 2)
	system := msgs[0].(map[string]any)["content"].(string)
	assert.Contains(t, system, "nombre_marca: Clínica Sol")
	assert.Contains(t, system, "Horario: 9 a 18")
	assert.Equal(t, "¿Horario?", msgs[1].(map[string]any)["content"])
}

func TestClassify(t *testing.T) {
	labels := []ports.Label{
		{ID: "agendar", Etiqueta: "Agendar hora"},
		{ID: "precio", Etiqueta: "Consultar precio"},
	}
	extract := []ports.Field{{Name: "fecha", Descripcion: "fecha pedida"}, {Name: "edad", Descripcion: "edad"}}

	cases := []struct {
		name    string
		content string
		label   string
		fields  map[string]string
	}{
		{"known label", `{"label":"agendar","fields":{"fecha":"2026-03-02","edad":41}}`, "agendar", map[string]string{"fecha": "2026-03-02", "edad": "41"}},
		{"unknown label", `{"label":"otro","fields":{}}`, "", map[string]string{}},
		{"empty values skipped", `{"label":"precio","fields":{"fecha":"","extra":"x"}}`, "precio", map[string]string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, last := fakeAPI(t, tc.content, http.StatusOK)
			got, err := newClient(srv).Classify(context.Background(), "quiero hora el lunes", labels, extract, ports.AIContext{})
			require.NoError(t, err)
			assert.Equal(t, tc.label, got.Label)
			assert.Equal(t, tc.fields, got.Fields)

			format := (*last)["response_format"].(map[string]any)
			assert.Equal(t, "json_object", format["type"])
		})
	}
}

func TestClassifyInvalidJSON(t *testing.T) {
	srv, _ := fakeAPI(t, "no es json", http.StatusOK)
	_, err := newClient(srv).Classify(context.Background(), "hola", nil, nil, ports.AIContext{})
	assert.ErrorContains(t, err, "invalid classification json")
}

func TestAPIError(t *testing.T) {
	srv, _ := fakeAPI(t, "", http.StatusInternalServerError)
	_, err := newClient(srv).Complete(context.Background(), "hola", ports.AIContext{})
	assert.Error(t, err)
}
