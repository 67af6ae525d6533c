package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	resolveAddress   string
	resolvePrincipal string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the listing status of one address",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("resolve"); err != nil {
			return err
		}
		svc, err := initResolver(ctx, cfg)
		if err != nil {
			return err
		}

		res := svc.Resolve(ctx, resolvePrincipal, resolveAddress)
		zap.L().Debug("resolved",
			zap.String("address", resolveAddress),
			zap.String("source", string(res.Source)),
			zap.String("model", res.Model),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(res), "encode resolution")
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveAddress, "address", "", "property address (required)")
	resolveCmd.Flags().StringVar(&resolvePrincipal, "principal", "", "caller identity used to namespace the cache")
	_ = resolveCmd.MarkFlagRequired("address")
	rootCmd.AddCommand(resolveCmd)
}
