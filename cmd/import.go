package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/propstatus/internal/importer"
)

var (
	importCSVPath string
	importTenant  string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a tenant's properties from CSV into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrapf(err, "open csv %s", importCSVPath)
		}
		defer f.Close() //nolint:errcheck

		props, err := importer.ParseCSV(f, importTenant)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportProperties(ctx, props)
		if err != nil {
			return eris.Wrap(err, "import properties")
		}

		zap.L().Info("import complete",
			zap.String("tenant", importTenant),
			zap.Int("parsed", len(props)),
			zap.Int64("written", n),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	importCmd.Flags().StringVar(&importTenant, "tenant", "", "tenant owning the imported properties (required)")
	_ = importCmd.MarkFlagRequired("csv")
	_ = importCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(importCmd)
}
