package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/flujos/internal/cli"
	"github.com/aretw0/flujos/pkg/adapters/file"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/flows"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/spf13/cobra"
)

var errInvalidFlows = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate [flow-file...]",
	Short: "Check flows for structural errors",
	Long: `Validates the given flow files, or every stored flow when none are given.
Active flows (or all of them with --activation) are also checked for a usable trigger
and channels. With --strict, warnings such as variables nobody writes fail the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		activation, _ := cmd.Flags().GetBool("activation")
		strict, _ := cmd.Flags().GetBool("strict")

		var list []*domain.Flow
		if len(args) > 0 {
			for _, path := range args {
				f, err := file.ReadFlowFile(path)
				if err != nil {
					return err
				}
				list = append(list, f)
			}
		} else {
			app, err := openApp(contextOf(cmd), cmd, cli.AppOptions{})
			if err != nil {
				return err
			}
			defer app.Close()
			list, err = app.Flows.List(contextOf(cmd), ports.FlowFilter{})
			if err != nil {
				return err
			}
		}

		if !reportValidation(cmd.OutOrStdout(), list, activation, strict) {
			return errInvalidFlows
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("activation", false, "Apply the activation rules to every flow")
	validateCmd.Flags().Bool("strict", false, "Treat warnings as errors")
}

// reportValidation prints one block per flow and reports whether all passed.
func reportValidation(w io.Writer, list []*domain.Flow, activation, strict bool) bool {
	ok := true
	for _, f := range list {
		var err error
		if activation || f.Estado == domain.FlowActivo {
			err = flows.ValidateActivation(f)
		} else {
			err = flows.Validate(f)
		}
		warnings := flows.Warnings(f)

		switch {
		case err != nil:
			ok = false
			fmt.Fprintf(w, "✗ %s (%s)\n", f.ID, f.Nombre)
			if vs := flows.Violations(err); len(vs) > 0 {
				for _, v := range vs {
					fmt.Fprintf(w, "    %s\n", v)
				}
			} else {
				fmt.Fprintf(w, "    %v\n", err)
			}
		case strict && len(warnings) > 0:
			ok = false
			fmt.Fprintf(w, "✗ %s (%s)\n", f.ID, f.Nombre)
		default:
			fmt.Fprintf(w, "✓ %s (%s)\n", f.ID, f.Nombre)
		}
		for _, v := range warnings {
			fmt.Fprintf(w, "    warning %s\n", v)
		}
	}
	return ok
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
