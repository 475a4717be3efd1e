package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"rating_calculator/pkg/core/app"
	"rating_calculator/pkg/core/rag"
)

var (
	askIndex       string
	askType        string
	askK           int
	askShowPrompts bool
	askSummarize   bool
)

var askCmd = &cobra.Command{
	Use:   "ask <field>",
	Short: "Retrieve chunks for a field definition and extract it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			svc, err := a.RAG(ctx, askIndex)
			if err != nil {
				return err
			}
			def, err := a.Definitions.Field(args[0])
			if err != nil {
				return err
			}
			k := askK
			if k <= 0 {
				k = a.Config.Retrieval.K
			}
			ans, err := svc.RetrieveWithAnswer(ctx, def, askType, k)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printHeader(out, args[0], "index", askIndex, "chunks", fmt.Sprint(len(ans.Chunks)))
			if askShowPrompts {
				printPrompts(out, ans)
			}
			fmt.Fprintln(out, ans.Content)

			if askSummarize {
				sum, err := svc.Summarize(ctx, ans.Text())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, titleStyle.Render("summary"))
				fmt.Fprintln(out, sum.Content)
			}
			return nil
		})
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize a text file, or stdin when no file is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			svc := rag.NewService(a.Prompts, nil, a.Agents, rag.Config{Definitions: a.Definitions}, nil)
			ans, err := svc.Summarize(ctx, string(data))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ans.Content)
			return nil
		})
	},
}

func printPrompts(w io.Writer, ans *rag.Answer) {
	fmt.Fprintln(w, titleStyle.Render("system prompt"))
	fmt.Fprintln(w, dimStyle.Render(ans.SystemPrompt))
	fmt.Fprintln(w, titleStyle.Render("user prompt"))
	fmt.Fprintln(w, dimStyle.Render(ans.UserPrompt))
}

func init() {
	askCmd.Flags().StringVarP(&askIndex, "index", "i", "", "index to search")
	askCmd.Flags().StringVarP(&askType, "type", "t", "", "quantitative or qualitative (default from the definition)")
	askCmd.Flags().IntVarP(&askK, "k", "k", 0, "chunks to retrieve (default retrieval.k)")
	askCmd.Flags().BoolVar(&askShowPrompts, "show-prompts", false, "print the rendered prompts")
	askCmd.Flags().BoolVar(&askSummarize, "summarize", false, "summarize the extracted text")
	_ = askCmd.MarkFlagRequired("index")

	rootCmd.AddCommand(askCmd, summarizeCmd)
}
