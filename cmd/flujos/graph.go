package main

import (
	"fmt"
	"os"

	"github.com/aretw0/flujos/internal/cli"
	"github.com/aretw0/flujos/internal/presentation/graph"
	"github.com/aretw0/flujos/pkg/adapters/file"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [flow-id|flow-file]",
	Short: "Export a flow or a conversation replay as a Mermaid diagram",
	Long: `Outputs a Mermaid diagram (graph TD) of a stored flow or a flow file.
With --instance, the diagram highlights the path one conversation took.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instanceID, _ := cmd.Flags().GetString("instance")
		out := cmd.OutOrStdout()

		if instanceID == "" && len(args) == 1 {
			if _, err := os.Stat(args[0]); err == nil {
				f, err := file.ReadFlowFile(args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(out, graph.GenerateMermaid(f, nil))
				return nil
			}
		}

		ctx := contextOf(cmd)
		app, err := openApp(ctx, cmd, cli.AppOptions{})
		if err != nil {
			return err
		}
		defer app.Close()

		if instanceID != "" {
			replay, err := app.Engine.Monitor().Replay(ctx, instanceID)
			if err != nil {
				return err
			}
			fmt.Fprint(out, replay.Mermaid())
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("a flow id, a flow file or --instance is required")
		}

		f, err := app.Flows.Get(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(out, graph.GenerateMermaid(f, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("instance", "i", "", "Render the replay of this conversation instance")
}
