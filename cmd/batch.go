package main

import (
	"fmt"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/propstatus/internal/model"
)

var (
	batchTenant      string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve the status of every property of a tenant",
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

		props, err := st.ListByTenant(ctx, batchTenant)
		if err != nil {
			return eris.Wrap(err, "list properties")
		}
		if len(props) == 0 {
			zap.L().Info("no properties for tenant", zap.String("tenant", batchTenant))
			return nil
		}

		svc, err := initResolver(ctx, cfg)
		if err != nil {
			return err
		}

		entries := svc.ResolveBatch(ctx, batchTenant, propertyItems(props), batchConcurrency)
		out := cmd.OutOrStdout()
		for _, line := range batchLines(props, entries) {
			fmt.Fprintln(out, line) //nolint:errcheck
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchTenant, "tenant", "", "tenant whose properties are resolved (required)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent resolutions (default from config)")
	_ = batchCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(batchCmd)
}

func propertyItems(props []model.Property) []model.BatchItem {
	items := make([]model.BatchItem, len(props))
	for i, p := range props {
		items[i] = model.BatchItem{ID: strconv.FormatInt(p.ID, 10), Address: p.Address}
	}
	return items
}

// batchLines renders one line per property, ordered by id.
func batchLines(props []model.Property, entries map[string]model.BatchEntry) []string {
	sorted := make([]model.Property, len(props))
	copy(sorted, props)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	lines := make([]string, 0, len(sorted))
	for _, p := range sorted {
		e := entries[strconv.FormatInt(p.ID, 10)]
		switch {
		case e.Error != nil:
			lines = append(lines, fmt.Sprintf("%d\t%s\terror: %s", p.ID, p.Address, e.Error.Error))
		default:
			lines = append(lines, fmt.Sprintf("%d\t%s\t%s", p.ID, p.Address, e.Summary))
		}
	}
	return lines
}
