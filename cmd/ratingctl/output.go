package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"rating_calculator/pkg/core/ingest"
	"rating_calculator/pkg/core/knowledge"
	"rating_calculator/pkg/core/schema"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1)
)

// printHeader writes a title followed by "key: value" pairs on one line.
func printHeader(w io.Writer, title string, kv ...string) {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, dimStyle.Render(kv[i]+":")+" "+kv[i+1])
	}
	fmt.Fprintln(w, titleStyle.Render(title))
	if len(parts) > 0 {
		fmt.Fprintln(w, strings.Join(parts, "  "))
	}
}

// printPayload renders an extraction or critique payload inside a box.
func printPayload(w io.Writer, name string, payload interface{}) error {
	var buf bytes.Buffer
	if err := schema.Render(&buf, payload); err != nil {
		return err
	}
	fmt.Fprintln(w, titleStyle.Render(name))
	fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(buf.String(), "\n")))
	return nil
}

func printIngestReport(w io.Writer, r *ingest.Report) {
	for _, a := range r.Assets {
		status := successStyle.Render(string(a.Status))
		detail := fmt.Sprintf("%d pages, %d chunks", a.Pages, a.Chunks)
		if a.Status == knowledge.StatusError {
			status = errorStyle.Render(string(a.Status))
			detail = fmt.Sprint(a.Metadata["error"])
		}
		fmt.Fprintf(w, "%s %s %s\n", status, a.Name, dimStyle.Render(detail))
	}
	fmt.Fprintf(w, "Total chunks: %d | Time: %.2fs\n", r.TotalChunks, r.Elapsed.Seconds())
}
