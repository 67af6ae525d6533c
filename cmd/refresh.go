package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/propstatus/internal/scheduler"
)

var refreshTenants []string

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one status refresh pass and write confident statuses back",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, err := initResolver(ctx, cfg)
		if err != nil {
			return err
		}

		rcfg := cfg.Refresh
		if len(refreshTenants) > 0 {
			rcfg.Tenants = refreshTenants
		}
		sum := scheduler.NewRefresher(st, svc, scheduler.NewNotifier(rcfg.WebhookURL), rcfg).RunOnce(ctx)

		fmt.Fprintf(cmd.OutOrStdout(), //nolint:errcheck
			"tenants=%d resolved=%d updated=%d unchanged=%d skipped=%d failed=%d notified=%d\n",
			sum.Tenants, sum.Resolved, sum.Updated, sum.Unchanged, sum.Skipped, sum.Failed, sum.Notified)
		return nil
	},
}

func init() {
	refreshCmd.Flags().StringSliceVar(&refreshTenants, "tenant", nil, "tenants to refresh (default from config, else all)")
	rootCmd.AddCommand(refreshCmd)
}
