package cli

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aretw0/flujos/pkg/domain"
)

// jsonInbound is one line of JSON-Lines input. Missing fields default to ChatOptions.
type jsonInbound struct {
	Canal                domain.Canal `json:"canal"`
	IdentificadorUsuario string       `json:"identificador_usuario"`
	Texto                string       `json:"texto"`
}

type jsonError struct {
	Error string `json:"error"`
}

// ChatJSON reads inbound messages as JSON Lines and writes one Outcome per line.
// A line may be an object with canal, identificador_usuario and texto, a JSON string,
// or plain text; the last two use the channel and user of opts.
func ChatJSON(ctx context.Context, app *App, opts ChatOptions) error {
	enc := json.NewEncoder(opts.Out)
	lines := readLines(ctx, opts.In)

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		in := parseJSONInbound(line, opts)
		out, err := app.Engine.HandleInboundMessage(ctx, in.Canal, in.IdentificadorUsuario, in.Texto)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err := enc.Encode(jsonError{Error: err.Error()}); err != nil {
				return err
			}
			continue
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
}

func parseJSONInbound(line string, opts ChatOptions) jsonInbound {
	in := jsonInbound{Canal: opts.Canal, IdentificadorUsuario: opts.Usuario}

	if strings.HasPrefix(line, "{") {
		var msg jsonInbound
		if err := json.Unmarshal([]byte(line), &msg); err == nil {
			if msg.Canal != "" {
				in.Canal = msg.Canal
			}
			if msg.IdentificadorUsuario != "" {
				in.IdentificadorUsuario = msg.IdentificadorUsuario
			}
			in.Texto = msg.Texto
			return in
		}
	}
	// Try to unquote if it's a JSON string
	var s string
	if err := json.Unmarshal([]byte(line), &s); err == nil {
		in.Texto = s
		return in
	}
	in.Texto = line
	return in
}

