// Package openai implements ports.AI on the OpenAI chat completions API,
// or any server that speaks it (set the base URL).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aretw0/flujos/internal/logging"
	"github.com/aretw0/flujos/pkg/ports"
	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// ErrEmptyResponse is returned when the API answers without choices.
var ErrEmptyResponse = errors.New("openai: empty response")

// Client implements ports.AI.
type Client struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

type options struct {
	apiKey     string
	baseURL    string
	model      string
	logger     *slog.Logger
	requestOps []openaiopt.RequestOption
}

// Option configures the Client.
type Option func(*options)

// WithAPIKey sets the API key. Without it the SDK reads OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the client at a compatible server.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRequestOptions passes raw SDK options (retries, HTTP client, headers).
func WithRequestOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.requestOps = append(o.requestOps, opts...) }
}

// New creates a Client.
func New(opts ...Option) *Client {
	o := options{model: DefaultModel, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	var clientOpts []openaiopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.requestOps...)

	return &Client{
		client: openai.NewClient(clientOpts...),
		model:  o.model,
		logger: o.logger,
	}
}

// systemPrompt renders the conversation context the model sees.
func systemPrompt(c ports.AIContext, base string) string {
	var b strings.Builder
	b.WriteString(base)
	if c.AgenteID != "" {
		fmt.Fprintf(&b, "\nAgente: %s", c.AgenteID)
	}
	if c.Instrucciones != "" {
		fmt.Fprintf(&b, "\nInstrucciones: %s", c.Instrucciones)
	}
	if len(c.Variables) > 0 {
		keys := make([]string, 0, len(c.Variables))
		for k := range c.Variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nVariables de la conversación:")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n- %s: %s", k, c.Variables[k])
		}
	}
	if c.Conocimiento != "" {
		fmt.Fprintf(&b, "\nConocimiento relevante:\n%s", c.Conocimiento)
	}
	if c.UltimaRespuesta != "" {
		fmt.Fprintf(&b, "\nÚltimo mensaje del usuario: %s", c.UltimaRespuesta)
	}
	return b.String()
}

func (c *Client) chat(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	params.Model = shared.ChatModel(c.model)
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	c.logger.DebugContext(ctx, "ai completion", "model", c.model, "tokens", resp.Usage.TotalTokens)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Complete answers prompt as the brand's assistant.
func (c *Client) Complete(ctx context.Context, prompt string, ac ports.AIContext) (string, error) {
	return c.chat(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(ac, "Eres un asistente de atención al cliente. Responde en español, breve y cordial.")),
			openai.UserMessage(prompt),
		},
	})
}

type classifyReply struct {
	Label  string         `json:"label"`
	Fields map[string]any `json:"fields"`
}

// Classify asks for a JSON object naming one label id and the extracted fields.
// A label outside the given set comes back as "".
func (c *Client) Classify(ctx context.Context, text string, labels []ports.Label, extract []ports.Field, ac ports.AIContext) (ports.Classification, error) {
	var b strings.Builder
	b.WriteString("Clasifica el mensaje del usuario en una de estas etiquetas:")
	for _, l := range labels {
		fmt.Fprintf(&b, "\n- id %q: %s", l.ID, l.Etiqueta)
		if l.Descripcion != "" {
			fmt.Fprintf(&b, " (%s)", l.Descripcion)
		}
	}
	if len(extract) > 0 {
		b.WriteString("\nExtrae además estos campos si aparecen:")
		for _, f := range extract {
			fmt.Fprintf(&b, "\n- %s: %s", f.Name, f.Descripcion)
		}
	}
	b.WriteString("\nResponde solo con JSON: {\"label\": \"<id o vacío>\", \"fields\": {\"<campo>\": \"<valor>\"}}.")

	content, err := c.chat(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(ac, b.String())),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return ports.Classification{}, err
	}
	return parseClassification(content, labels, extract)
}

func parseClassification(content string, labels []ports.Label, extract []ports.Field) (ports.Classification, error) {
	var reply classifyReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return ports.Classification{}, fmt.Errorf("openai: invalid classification json: %w", err)
	}

	out := ports.Classification{Fields: map[string]string{}}
	for _, l := range labels {
		if l.ID == reply.Label {
			out.Label = l.ID
			break
		}
	}
	for _, f := range extract {
		v, ok := reply.Fields[f.Name]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				out.Fields[f.Name] = val
			}
		default:
			out.Fields[f.Name] = fmt.Sprint(val)
		}
	}
	return out, nil
}
