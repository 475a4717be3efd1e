package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"rating_calculator/pkg/core/app"
)

var ingestIndex string

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Split documents and add them to a vector index",
	Long: `Load PDF, HTML, text and markdown files (directories are walked), split
them into overlapping chunks and add the chunks to the named index. The index
is created on first use and reused afterwards.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			wf, err := a.Ingestor(ctx, ingestIndex)
			if err != nil {
				return err
			}
			report, err := wf.Run(ctx, args...)
			if err != nil {
				return err
			}
			printIngestReport(cmd.OutOrStdout(), report)
			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d documents failed", len(failed), len(report.Assets))
			}
			return nil
		})
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestIndex, "index", "i", "", "index name, e.g. repsol_cuentas")
	_ = ingestCmd.MarkFlagRequired("index")
	rootCmd.AddCommand(ingestCmd)
}
