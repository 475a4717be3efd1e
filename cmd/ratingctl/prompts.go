package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"rating_calculator/pkg/core/app"
	"rating_calculator/pkg/core/catalog"
	"rating_calculator/pkg/core/logging"
	"rating_calculator/pkg/core/prompt"
	"rating_calculator/pkg/core/promptset"
	"rating_calculator/pkg/core/utils"
)

var (
	renderVars     map[string]string
	renderVarsFile string
	bundleProcess  string
	bundleOut      string
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect and render prompt templates",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, _, err := openPrompts()
		if err != nil {
			return err
		}
		names, err := o.List()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var promptsInfoCmd = &cobra.Command{
	Use:   "info <template>",
	Short: "Show a template's description, author and variables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, _, err := openPrompts()
		if err != nil {
			return err
		}
		info, err := o.GetTemplateInfo(args[0])
		if err != nil {
			return err
		}
		printTemplateInfo(cmd, info)
		return nil
	},
}

var promptsRenderCmd = &cobra.Command{
	Use:   "render <template>",
	Short: "Render a template with --var and --vars-file values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, _, err := openPrompts()
		if err != nil {
			return err
		}
		vars, err := renderVariables()
		if err != nil {
			return err
		}
		text, err := o.GetPrompt(args[0], vars)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var promptsBundleCmd = &cobra.Command{
	Use:   "bundle <name>",
	Short: "Build every prompt of a field or question definition",
	Long: `Build the prompt bundle of a definition: a field for the extraction
process or a question for the evaluation process. With --out each prompt is
written to <out>/<process>_<name>_<prompt>.md.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, defs, err := openPrompts()
		if err != nil {
			return err
		}
		opts := promptset.Options{Process: bundleProcess}
		if bundleProcess == promptset.ProcessEvaluation {
			opts.QuestionName = args[0]
		} else {
			opts.FieldName = args[0]
		}
		set, err := promptset.NewBuilder(o, defs, logging.Named("promptset")).Load(opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		entries := set.Flatten()
		printHeader(out, args[0], "process", bundleProcess, "prompts", fmt.Sprint(len(entries)))
		if bundleOut != "" {
			if err := os.MkdirAll(bundleOut, 0o755); err != nil {
				return err
			}
		}
		for _, e := range entries {
			if bundleOut == "" {
				fmt.Fprintln(out, titleStyle.Render(promptset.DisplayLabel(e.Key)))
				fmt.Fprintln(out, e.Text)
				fmt.Fprintln(out)
				continue
			}
			path := filepath.Join(bundleOut, promptset.FileStub(bundleProcess, args[0], e.Key)+".md")
			if err := os.WriteFile(path, []byte(e.Text), 0o644); err != nil {
				return err
			}
			fmt.Fprintln(out, dimStyle.Render("wrote ")+path)
		}
		return nil
	},
}

func openPrompts() (*prompt.Orchestrator, *catalog.Loader, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return app.NewPrompts(cfg.Prompts, logging.Named("app"))
}

// renderVariables merges --vars-file (YAML) with --var; --var wins.
func renderVariables() (map[string]interface{}, error) {
	vars := map[string]interface{}{}
	if renderVarsFile != "" {
		data, err := os.ReadFile(renderVarsFile)
		if err != nil {
			return nil, err
		}
		vars, err = utils.UnmarshalYAMLMap(data)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", renderVarsFile, err)
		}
	}
	for k, v := range renderVars {
		vars[k] = v
	}
	return vars, nil
}

func printTemplateInfo(cmd *cobra.Command, info *prompt.TemplateInfo) {
	out := cmd.OutOrStdout()
	printHeader(out, info.Name, "author", info.Author)
	fmt.Fprintln(out, info.Description)
	fmt.Fprintf(out, "%s %s\n", dimStyle.Render("variables:"), strings.Join(info.Variables, ", "))
	if len(info.Frontmatter) > 0 {
		keys := make([]string, 0, len(info.Frontmatter))
		for k := range info.Frontmatter {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(out, "%s %s\n", dimStyle.Render("frontmatter:"), strings.Join(keys, ", "))
	}
}

func init() {
	promptsRenderCmd.Flags().StringToStringVar(&renderVars, "var", nil, "template variable, e.g. --var language=es")
	promptsRenderCmd.Flags().StringVar(&renderVarsFile, "vars-file", "", "YAML file with template variables")
	promptsBundleCmd.Flags().StringVarP(&bundleProcess, "process", "p", promptset.ProcessExtraction, "extraction or evaluation")
	promptsBundleCmd.Flags().StringVarP(&bundleOut, "out", "o", "", "directory to write the prompts to")

	promptsCmd.AddCommand(promptsListCmd, promptsInfoCmd, promptsRenderCmd, promptsBundleCmd)
	rootCmd.AddCommand(promptsCmd)
}
