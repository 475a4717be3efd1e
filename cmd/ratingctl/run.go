package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"rating_calculator/pkg/core/app"
	"rating_calculator/pkg/core/pipeline"
)

var (
	runCompany string
	runType    string
	runAll     bool
	runJSON    bool
	runOut     string
)

var runCmd = &cobra.Command{
	Use:   "run [field_id]",
	Short: "Extract a company field: initial, alternative and critique",
	Long: `Run the extraction chain of a company field over every index of the
company. With --all every field of the company registry is extracted and, when
--out is set, each result is saved as <out>/<company>/<field_id>.json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !runAll && len(args) == 0 {
			return fmt.Errorf("pass a field id or --all")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			ids := args
			if runAll {
				reg, err := a.Runner.Registry(runCompany)
				if err != nil {
					return err
				}
				ids = nil
				for _, f := range reg.Fields {
					ids = append(ids, f.FieldID)
				}
			}

			out := cmd.OutOrStdout()
			var failed int
			for _, id := range ids {
				res, err := a.Runner.Run(ctx, runCompany, id, runType)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", errorStyle.Render(id), err)
					continue
				}
				if err := printResult(out, res); err != nil {
					return err
				}
				if runOut != "" {
					path := filepath.Join(runOut, runCompany, id+".json")
					if err := writeJSON(path, res); err != nil {
						return err
					}
					fmt.Fprintln(out, dimStyle.Render("saved "+path))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d extractions failed", failed, len(ids))
			}
			return nil
		})
	},
}

func printResult(w io.Writer, res *pipeline.Result) error {
	if runJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printHeader(w, res.FieldID, "company", res.Company, "type", res.FieldType, "run", res.RunID)
	if res.Mock {
		fmt.Fprintln(w, warnStyle.Render(pipeline.MockWarning))
	}
	for _, p := range []struct {
		name    string
		payload map[string]interface{}
	}{
		{"initial", res.Initial},
		{"alternative", res.Alternative},
		{"critique", res.Critique},
	} {
		if err := printPayload(w, p.name, p.payload); err != nil {
			return err
		}
	}
	if res.Summary != "" {
		fmt.Fprintln(w, titleStyle.Render("summary"))
		fmt.Fprintln(w, res.Summary)
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runCompany, "company", "", "company key from the companies config")
	runCmd.Flags().StringVarP(&runType, "type", "t", "", "Numeric, Table or String (default from the field catalog)")
	runCmd.Flags().BoolVar(&runAll, "all", false, "extract every field of the company")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print results as JSON")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "directory to save results in")
	_ = runCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(runCmd)
}
