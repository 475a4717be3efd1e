package utils

import (
	"bytes"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// CleanMarkdown strips an outer ```markdown (or bare ```) fence so model
// output can be rendered as Markdown.
func CleanMarkdown(input string) string {
	cleaned := strings.TrimSpace(input)

	if strings.HasPrefix(cleaned, "```markdown") && strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```markdown")
		cleaned = strings.TrimSuffix(cleaned, "```")
		return strings.TrimSpace(cleaned)
	}
	if strings.HasPrefix(cleaned, "```") && strings.HasSuffix(cleaned, "```") && len(cleaned) >= 6 {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
		return strings.TrimSpace(cleaned)
	}
	return cleaned
}

// MarkdownBody converts Markdown (GFM tables and fenced code) to an HTML
// fragment. When conversion fails the escaped source is wrapped in <pre>.
func MarkdownBody(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "<pre>" + html.EscapeString(src) + "</pre>"
	}
	return buf.String()
}

// MarkdownToHTML renders src as a standalone, styled HTML page.
func MarkdownToHTML(src string) string {
	return previewHead + MarkdownBody(src) + previewTail
}

// Outline returns the text of the h1-h3 headings of an HTML document, in order.
func Outline(htmlDoc string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlDoc))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

const previewHead = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width, initial-scale=1"/>
<style>
:root { --text: #0f172a; --muted: #475569; --border: #e2e8f0; --soft: #f8fafc; --codebg: #0b1020; --codefg: #e5e7eb; --accent: #2563eb; }
body { margin: 18px; font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial; line-height: 1.6; color: var(--text); }
h1, h2, h3 { letter-spacing: -0.02em; margin: 0.8rem 0 0.4rem; }
a { color: var(--accent); text-decoration: none; }
pre { padding: 14px; border: 1px solid var(--border); border-radius: 14px; overflow-x: auto; background: var(--codebg); color: var(--codefg); }
code { background: rgba(2, 6, 23, 0.06); padding: 0.15rem 0.35rem; border-radius: 8px; font-size: 0.95em; }
pre code { background: transparent; padding: 0; color: inherit; }
table { border-collapse: collapse; width: 100%; margin: 14px 0; border: 1px solid var(--border); }
th, td { border-bottom: 1px solid var(--border); padding: 10px 12px; vertical-align: top; }
th { background: var(--soft); text-align: left; }
blockquote { margin: 14px 0; padding: 10px 12px; border-left: 4px solid var(--border); background: var(--soft); color: var(--muted); }
hr { border: none; border-top: 1px solid var(--border); margin: 16px 0; }
</style>
</head>
<body>`

const previewTail = `</body>
</html>
`
