package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"rating_calculator/pkg/core/app"
)

var (
	batchIndex string
	batchType  string
	batchK     int
	batchAll   bool
	batchOut   string
)

var batchCmd = &cobra.Command{
	Use:   "batch [field]...",
	Short: "Extract several fields concurrently and summarize them together",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			names := args
			if batchAll {
				all, err := a.Definitions.ListFields()
				if err != nil {
					return err
				}
				names = all
			}
			if len(names) == 0 {
				return fmt.Errorf("no fields given; pass field names or --all")
			}

			svc, err := a.RAG(ctx, batchIndex)
			if err != nil {
				return err
			}
			k := batchK
			if k <= 0 {
				k = a.Config.Retrieval.K
			}
			batch, err := svc.ExtractMany(ctx, names, batchType, k)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printHeader(out, "batch extraction", "index", batchIndex, "fields", fmt.Sprint(len(names)))
			for _, it := range batch.Items {
				if it.Error != "" {
					fmt.Fprintf(out, "%s %s\n", errorStyle.Render(it.Variable), dimStyle.Render(it.Error))
					continue
				}
				fmt.Fprintf(out, "%s\n%s\n\n", successStyle.Render(it.Variable), it.Value)
			}
			if batch.Summary != nil {
				fmt.Fprintln(out, titleStyle.Render("summary"))
				fmt.Fprintln(out, batch.Summary.Content)
			}

			if batchOut == "" {
				return nil
			}
			return writeJSON(batchOut, batch)
		})
	},
}

// writeJSON writes v indented to path, creating parent directories.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func init() {
	batchCmd.Flags().StringVarP(&batchIndex, "index", "i", "", "index to search")
	batchCmd.Flags().StringVarP(&batchType, "type", "t", "", "quantitative or qualitative (default from each definition)")
	batchCmd.Flags().IntVarP(&batchK, "k", "k", 0, "chunks to retrieve per field (default retrieval.k)")
	batchCmd.Flags().BoolVar(&batchAll, "all", false, "extract every field definition")
	batchCmd.Flags().StringVarP(&batchOut, "out", "o", "", "write the batch as JSON to this file")
	_ = batchCmd.MarkFlagRequired("index")
	rootCmd.AddCommand(batchCmd)
}
