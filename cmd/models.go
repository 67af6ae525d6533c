package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Show the current model and the candidates that would be tried",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("resolve"); err != nil {
			return err
		}
		svc, err := initResolver(ctx, cfg)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "provider: %s\n", cfg.Provider.Name)  //nolint:errcheck
		fmt.Fprintf(out, "current:  %s\n", svc.CurrentModel()) //nolint:errcheck
		fmt.Fprintln(out, "candidates:")                       //nolint:errcheck
		for i, m := range svc.ListAvailableModels(ctx) {
			fmt.Fprintf(out, "  %d. %s\n", i+1, m) //nolint:errcheck
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
