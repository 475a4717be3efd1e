// Package ingest loads source documents page by page, splits them into
// chunks and stores the chunks in a vector index.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"

	"rating_calculator/pkg/core/knowledge"
)

// ErrUnsupportedType is returned for files no loader handles.
var ErrUnsupportedType = errors.New("unsupported document type")

// ErrNoText is returned when a document yields no extractable text.
var ErrNoText = errors.New("no text extracted")

// Page is the text of one page. Number is 1-based.
type Page struct {
	Number int
	Label  string
	Text   string
}

// AssetTypeOf maps a file extension to its loader, or "" when unsupported.
func AssetTypeOf(path string) knowledge.AssetType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return knowledge.AssetPDF
	case ".html", ".htm":
		return knowledge.AssetWeb
	case ".txt", ".md", ".markdown":
		return knowledge.AssetText
	}
	return ""
}

// LoadPages reads a document with the loader for its extension.
func LoadPages(ctx context.Context, path string) ([]Page, error) {
	switch AssetTypeOf(path) {
	case knowledge.AssetPDF:
		return LoadPDF(ctx, path)
	case knowledge.AssetWeb:
		return LoadHTML(path)
	case knowledge.AssetText:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoText)
		}
		return []Page{{Number: 1, Label: "1", Text: text}}, nil
	}
	return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedType)
}

// =============================================================================
// PDF
// =============================================================================

// LoadPDF extracts the plain text of every page. Pages without a text layer
// are skipped. When the reader fails or finds no text at all, pdftotext
// (poppler-utils) is tried if it is installed.
func LoadPDF(ctx context.Context, path string) ([]Page, error) {
	pages, err := readPDFPages(path)
	if err == nil && len(pages) > 0 {
		return pages, nil
	}
	if _, lookErr := exec.LookPath("pdftotext"); lookErr != nil {
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoText)
	}
	return pdftotextPages(ctx, path)
}

func readPDFPages(path string) (pages []Page, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	// the reader panics on some malformed xref tables
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	total := r.NumPage()
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Label: strconv.Itoa(i), Text: text})
	}
	return pages, nil
}

// pdftotextPages runs pdftotext once and splits its output on form feeds.
func pdftotextPages(ctx context.Context, path string) ([]Page, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext %s: %w", filepath.Base(path), err)
	}

	var pages []Page
	for i, raw := range bytes.Split(out, []byte{'\f'}) {
		text := strings.TrimSpace(string(raw))
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Label: strconv.Itoa(i + 1), Text: text})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoText)
	}
	return pages, nil
}

// =============================================================================
// HTML
// =============================================================================

// LoadHTML keeps the main content of a saved web page as a single page.
func LoadHTML(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text, err := HTMLText(string(data), "file://"+filepath.ToSlash(path))
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoText)
	}
	return []Page{{Number: 1, Label: "1", Text: text}}, nil
}

// HTMLText extracts readable text: go-readability isolates the article and
// goquery flattens its blocks, one per line (table rows joined with " | ").
// Pages readability rejects are flattened whole.
func HTMLText(html, rawURL string) (string, error) {
	content := html
	title := ""
	if pageURL, err := url.Parse(rawURL); err == nil {
		if article, err := readability.NewParser().Parse(strings.NewReader(html), pageURL); err == nil && strings.TrimSpace(article.Content) != "" {
			content = article.Content
			title = strings.TrimSpace(article.Title)
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	doc.Find("script,style,noscript").Remove()

	var lines []string
	if title != "" {
		lines = append(lines, title)
	}
	doc.Find("h1,h2,h3,h4,p,li,tr,pre").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "tr" {
			var cells []string
			s.Find("th,td").Each(func(_ int, c *goquery.Selection) {
				cells = append(cells, collapseSpace(c.Text()))
			})
			if row := strings.Join(cells, " | "); strings.Trim(row, " |") != "" {
				lines = append(lines, row)
			}
			return
		}
		// nested blocks are emitted by their own selection
		if s.Find("p,li,tr,pre").Length() > 0 {
			return
		}
		if line := collapseSpace(s.Text()); line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 || (title != "" && len(lines) == 1) {
		if body := collapseSpace(doc.Find("body").Text()); body != "" {
			lines = append(lines, body)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
