package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/flujos/internal/cli"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/spf13/cobra"
)

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "Manage stored flows",
}

var flowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored flows",
	RunE: func(cmd *cobra.Command, args []string) error {
		estado, _ := cmd.Flags().GetString("estado")
		canal, _ := cmd.Flags().GetString("canal")

		ctx := contextOf(cmd)
		app, err := openApp(ctx, cmd, cli.AppOptions{})
		if err != nil {
			return err
		}
		defer app.Close()

		list, err := app.Flows.List(ctx, ports.FlowFilter{Estado: domain.FlowEstado(estado), Canal: domain.Canal(canal)})
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNOMBRE\tESTADO\tTRIGGER\tCANALES\tVERSION")
		for _, f := range list {
			canales := make([]string, len(f.Canales))
			for i, c := range f.Canales {
				canales[i] = string(c)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", f.ID, f.Nombre, f.Estado, describeTrigger(f.Trigger), strings.Join(canales, ","), f.Version)
		}
		return tw.Flush()
	},
}

var flowsImportCmd = &cobra.Command{
	Use:   "import <flow-file>",
	Short: "Store a flow file (YAML or JSON) as a new draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		activate, _ := cmd.Flags().GetBool("activate")

		ctx := contextOf(cmd)
		app, err := openApp(ctx, cmd, cli.AppOptions{})
		if err != nil {
			return err
		}
		defer app.Close()

		r, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		f, err := app.Flows.Import(ctx, r)
		if err != nil {
			return err
		}
		if activate {
			if f, err = app.Flows.Activate(ctx, f.ID); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", f.ID, f.Nombre, f.Estado)
		return nil
	},
}

// flowAction builds a subcommand that applies one flows.Service transition to a flow id.
func flowAction(use, short string, apply func(*cli.App, *cobra.Command, string) (*domain.Flow, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <flow-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(contextOf(cmd), cmd, cli.AppOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			f, err := apply(app, cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, version %d)\n", f.ID, f.Nombre, f.Estado, f.Version)
			return nil
		},
	}
}

func describeTrigger(t domain.Trigger) string {
	if t.Valor == "" {
		return string(t.Tipo)
	}
	if t.Modo == "" {
		return fmt.Sprintf("%s:%s", t.Tipo, t.Valor)
	}
	return fmt.Sprintf("%s/%s:%s", t.Tipo, t.Modo, t.Valor)
}

func init() {
	rootCmd.AddCommand(flowsCmd)
	flowsCmd.AddCommand(flowsListCmd, flowsImportCmd)

	flowsListCmd.Flags().String("estado", "", "Only flows in this estado (borrador, activo, pausado)")
	flowsListCmd.Flags().String("canal", "", "Only flows serving this canal")
	flowsImportCmd.Flags().Bool("activate", false, "Activate the flow after importing it")

	flowsCmd.AddCommand(
		flowAction("activate", "Activate a flow so its trigger starts conversations", func(app *cli.App, cmd *cobra.Command, id string) (*domain.Flow, error) {
			return app.Flows.Activate(contextOf(cmd), id)
		}),
		flowAction("pause", "Stop a flow from starting new conversations", func(app *cli.App, cmd *cobra.Command, id string) (*domain.Flow, error) {
			return app.Flows.Pause(contextOf(cmd), id)
		}),
		flowAction("duplicate", "Copy a flow as a new draft", func(app *cli.App, cmd *cobra.Command, id string) (*domain.Flow, error) {
			return app.Flows.Duplicate(contextOf(cmd), id)
		}),
	)
	rootCmd.AddCommand(flowAction("layout", "Recompute node positions of a flow", func(app *cli.App, cmd *cobra.Command, id string) (*domain.Flow, error) {
		return app.Flows.ApplyLayout(contextOf(cmd), id)
	}))
}
