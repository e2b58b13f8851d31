package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aretw0/flujos/internal/presentation/tui"
	"github.com/aretw0/flujos/pkg/domain"
)

// Chat commands. Anything else is sent to the engine as the user's message.
const (
	CmdSalir   = "/salir"
	CmdEstado  = "/estado"
	CmdDetener = "/detener"
)

// ChatOptions configures a local conversation.
type ChatOptions struct {
	Canal   domain.Canal
	Usuario string
	In      io.Reader
	Out     io.Writer
	// Plain disables prompt styling, for piped input and tests.
	Plain bool
}

// Chat simulates one user talking to the engine through the terminal until the
// input ends, ctx is cancelled or the user types /salir. Bot replies reach Out
// through the App's Messenger.
func Chat(ctx context.Context, app *App, opts ChatOptions) error {
	lines := readLines(ctx, opts.In)
	c := &chat{app: app, opts: opts}

	for {
		c.prompt()
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(opts.Out)
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
		if line == CmdSalir {
			c.system("Hasta luego.")
			return nil
		}
		if err := c.handle(ctx, line); err != nil {
			return err
		}
	}
}

type chat struct {
	app     *App
	opts    ChatOptions
	current string
}

func (c *chat) prompt() {
	if c.opts.Plain {
		return
	}
	fmt.Fprint(c.opts.Out, tui.Prompt(c.opts.Usuario))
}

func (c *chat) system(format string, args ...any) {
	if c.opts.Plain {
		fmt.Fprintf(c.opts.Out, ">>> "+format+"\n", args...)
		return
	}
	fmt.Fprintln(c.opts.Out, tui.System(format, args...))
}

func (c *chat) handle(ctx context.Context, line string) error {
	switch line {
	case CmdEstado:
		c.status(ctx)
		return nil
	case CmdDetener:
		if c.current == "" {
			c.system("No hay conversación en curso.")
			return nil
		}
		inst, err := c.app.Engine.Detener(ctx, c.current)
		if err != nil {
			c.system("No se pudo detener: %v", err)
			return nil
		}
		c.system("Conversación %s %s.", inst.ID, inst.Estado)
		return nil
	}

	out, err := c.app.Engine.HandleInboundMessage(ctx, c.opts.Canal, c.opts.Usuario, line)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.system("Error: %v", err)
		return nil
	}

	switch out.Decision {
	case "no_match":
		c.system("Ningún flujo activo responde a %q.", line)
		return nil
	case "handoff":
		c.system("Mensaje enviado al operador.")
		return nil
	case "start":
		c.system("Flujo %s iniciado.", out.Instance.FlowID)
	}

	inst := out.Current()
	if inst == nil {
		return nil
	}
	c.current = inst.ID
	if out.Reiniciada != nil {
		c.system("Flujo %s reiniciado.", out.Reiniciada.FlowID)
	}
	switch {
	case inst.Estado == domain.InstanceTransferida:
		c.system("Conversación transferida a un agente humano.")
	case inst.Estado.Terminal():
		c.system("Conversación %s.", inst.Estado)
		if out.Error != "" {
			c.system("Error en %s: %s", inst.NodoActual, out.Error)
		}
		c.current = ""
	}
	return nil
}

func (c *chat) status(ctx context.Context) {
	if c.current == "" {
		c.system("No hay conversación en curso.")
		return
	}
	inst, err := c.app.Engine.Monitor().Get(ctx, c.current)
	if err != nil {
		c.system("Error: %v", err)
		return
	}
	c.system("Instancia %s del flujo %s: %s en %s", inst.ID, inst.FlowID, inst.Estado, inst.NodoActual)
	names := make([]string, 0, len(inst.Variables))
	for k := range inst.Variables {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(c.opts.Out, "    %s = %s\n", k, inst.Variables[k])
	}
}

// readLines pumps r line by line until it ends or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
