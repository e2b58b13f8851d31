package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/flujos"
	"github.com/aretw0/flujos/internal/cli"
	"github.com/aretw0/flujos/internal/presentation/tui"
	"github.com/aretw0/flujos/pkg/adapters/console"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the active flows from the terminal",
	Long: `Simulates one user on one channel. Every line you type is handled as an inbound
message; replies are printed as the bot. Commands: /estado, /detener, /salir.
With --json, stdin is read as JSON Lines and every outcome is written as one JSON object.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		canal, _ := cmd.Flags().GetString("canal")
		usuario, _ := cmd.Flags().GetString("usuario")
		jsonMode, _ := cmd.Flags().GetBool("json")
		if !domain.Canal(canal).Valid() {
			return fmt.Errorf("unknown canal %q (whatsapp, instagram, web)", canal)
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		chatOpts := cli.ChatOptions{
			Canal:   domain.Canal(canal),
			Usuario: usuario,
			In:      os.Stdin,
			Out:     os.Stdout,
		}
		if jsonMode {
			app, err := openApp(sigCtx, cmd, cli.AppOptions{})
			if err != nil {
				return err
			}
			defer app.Close()
			return cli.ChatJSON(sigCtx, app, chatOpts)
		}

		interactive := tui.IsTerminal(os.Stdout) && tui.IsTerminal(os.Stdin)
		msgOpts := []console.Option{console.WithPrefix("bot> ")}
		if render := tui.RendererFor(os.Stdout); render != nil {
			msgOpts = append(msgOpts, console.WithRenderer(render))
		}

		app, err := openApp(sigCtx, cmd, cli.AppOptions{
			Messenger: console.NewMessenger(os.Stdout, msgOpts...),
			Handoff:   console.NewHandoff(os.Stdout),
		})
		if err != nil {
			return err
		}
		defer app.Close()

		if interactive {
			tui.PrintBanner(os.Stdout, flujos.Version)
		}
		chatOpts.Plain = !interactive
		return cli.Chat(sigCtx, app, chatOpts)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("canal", string(domain.CanalWeb), "Channel the messages come from")
	chatCmd.Flags().StringP("usuario", "u", "local", "User identifier")
	chatCmd.Flags().Bool("json", false, "Read and write JSON Lines instead of text")
}
