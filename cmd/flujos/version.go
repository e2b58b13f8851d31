package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/flujos"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of flujos",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "flujos version %s\n", strings.TrimSpace(flujos.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
