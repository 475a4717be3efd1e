package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"rating_calculator/pkg/core/knowledge"
)

func runeSplitter(size, overlap int) *RecursiveSplitter {
	s := NewRecursiveSplitter(size, overlap)
	s.Length = utf8.RuneCountInString
	return s
}

func TestSplitterMergesWithOverlap(t *testing.T) {
	s := runeSplitter(10, 4)
	assert.Equal(t, []string{"aaaa bbbb", "bbbb cccc", "cccc dddd"}, s.Split("aaaa bbbb cccc dddd"))

	s = runeSplitter(10, 3)
	assert.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, s.Split("aaaa bbbb cccc dddd"))
}

func TestSplitterFallsBackToCharacters(t *testing.T) {
	s := runeSplitter(10, 3)
	assert.Equal(t, []string{"abcdefghij", "hijklmnop"}, s.Split("abcdefghijklmnop"))
}

func TestSplitterPrefersParagraphs(t *testing.T) {
	s := runeSplitter(20, 0)
	text := "first paragraph\n\nsecond one here\n\nthird"
	assert.Equal(t, []string{"first paragraph", "second one here", "third"}, s.Split(text))

	assert.Empty(t, s.Split(""))
}

func TestSplitterDefaults(t *testing.T) {
	s := NewRecursiveSplitter(0, -1)
	assert.Equal(t, DefaultChunkSize, s.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, s.ChunkOverlap)
	assert.Equal(t, DefaultSeparators, s.Separators)

	s = NewRecursiveSplitter(50, 80)
	assert.Equal(t, 5, s.ChunkOverlap)

	short := "Net debt fell to 4,100 million euros."
	assert.Equal(t, []string{short}, s.Split(short))
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("debt"))
	// 4 words -> 5, two punctuation marks -> 1
	assert.Equal(t, 6, EstimateTokens("net debt, fell sharply."))
}

func TestCountTokens(t *testing.T) {
	assert.Zero(t, CountTokens(""))

	if _, err := tokenEncoder(); err != nil {
		assert.Equal(t, EstimateTokens("net debt, fell sharply."), CountTokens("net debt, fell sharply."))
		t.Skipf("%s ranks unavailable: %v", TokenEncoding, err)
	}
	assert.Equal(t, 2, CountTokens("hello world"))
}

func TestHTMLTextWithoutReadability(t *testing.T) {
	html := `<html><head><title>T</title><style>p{}</style></head><body>
<h1>Report</h1>
<p>Net   debt fell.</p>
<table><tr><th>Year</th><th>Amount</th></tr><tr><td>2026</td><td>1,200</td></tr></table>
<ul><li>one</li></ul>
<script>var x = 1;</script>
</body></html>`
	text, err := HTMLText(html, "://not a url")
	require.NoError(t, err)
	assert.Equal(t, "Report\nNet debt fell.\nYear | Amount\n2026 | 1,200\none", text)
}

func TestLoadPages(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("  CFO: Jane Roe\n"), 0o644))

	pages, err := LoadPages(context.Background(), txt)
	require.NoError(t, err)
	assert.Equal(t, []Page{{Number: 1, Label: "1", Text: "CFO: Jane Roe"}}, pages)

	_, err = LoadPages(context.Background(), filepath.Join(dir, "sheet.csv"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	empty := filepath.Join(dir, "empty.md")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o644))
	_, err = LoadPages(context.Background(), empty)
	assert.ErrorIs(t, err, ErrNoText)

	broken := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(broken, []byte("not a pdf"), 0o644))
	_, err = LoadPages(context.Background(), broken)
	assert.Error(t, err)
}

func TestAssetTypeOf(t *testing.T) {
	assert.Equal(t, knowledge.AssetPDF, AssetTypeOf("Report.PDF"))
	assert.Equal(t, knowledge.AssetWeb, AssetTypeOf("page.htm"))
	assert.Equal(t, knowledge.AssetText, AssetTypeOf("a.md"))
	assert.Equal(t, knowledge.AssetType(""), AssetTypeOf("a.docx"))
}

func TestLanguageDetector(t *testing.T) {
	d := NewLanguageDetector()
	assert.Equal(t, "", d.Detect("   "))
	assert.Equal(t, "es", d.Detect("La compañía redujo su deuda financiera neta durante el ejercicio gracias a la generación de caja de sus negocios."))
	assert.Equal(t, "en", d.Detect("The company reduced its net financial debt during the year thanks to strong cash generation across its businesses."))
}

type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e lengthEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (lengthEmbedder) Name() string { return "length" }

func TestWorkflowRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Gross debt maturities.\n\nBonds due 2027."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("# CFO\n\nThe CFO also leads investor relations."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.csv"), []byte("x"), 0o644))
	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	core, logs := observer.New(zapcore.InfoLevel)
	vs := knowledge.NewVectorStore(knowledge.NewMemoryIndex(), lengthEmbedder{}, nil)
	w := NewWorkflow(vs, Options{Workers: 2}, zap.New(core).Sugar())

	report, err := w.Run(context.Background(), dir, empty)
	require.NoError(t, err)
	require.Len(t, report.Assets, 3)
	assert.Equal(t, "a.txt", report.Assets[0].Name)
	assert.Equal(t, "b.md", report.Assets[1].Name)
	assert.Equal(t, knowledge.StatusIndexed, report.Assets[0].Status)
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "empty.txt", report.Failed()[0].Name)

	n, err := vs.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.TotalChunks, n)
	assert.Equal(t, 2, n)

	var messages []string
	for _, e := range logs.All() {
		messages = append(messages, e.Message)
	}
	joined := strings.Join(messages, "\n")
	assert.Contains(t, joined, "[a.txt] Split into 1 sub-documents.")
	assert.Contains(t, joined, "[b.md] Split into 1 sub-documents.")
	assert.Contains(t, joined, "Total chunks: 2 | Time: ")

	hits, err := vs.SimilaritySearchWithScore(context.Background(), "x", 5)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, 1, h.Page)
		assert.Equal(t, "1", h.Metadata[knowledge.MetaPageLabel])
		assert.True(t, strings.HasPrefix(h.Source, dir))
	}
}

func TestWorkflowMissingPath(t *testing.T) {
	w := NewWorkflow(knowledge.NewVectorStore(knowledge.NewMemoryIndex(), lengthEmbedder{}, nil), Options{}, nil)
	_, err := w.Run(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)

	_, err = w.Run(context.Background(), t.TempDir())
	assert.EqualError(t, err, "no documents to ingest")
}

func TestSplitPagesKeepsPosition(t *testing.T) {
	w := NewWorkflow(nil, Options{ChunkSize: 5, ChunkOverlap: 0}, nil)
	asset := knowledge.NewAsset("r.pdf", knowledge.AssetPDF, "/docs/r.pdf")
	asset.Language = "es"
	chunks := w.SplitPages(asset, []Page{
		{Number: 3, Label: "3", Text: "uno dos tres cuatro cinco seis"},
		{Number: 4, Label: "4", Text: "siete"},
	})
	require.GreaterOrEqual(t, len(chunks), 3)
	last := chunks[len(chunks)-1]
	assert.Equal(t, "siete", last.Content)
	assert.Equal(t, 4, last.Page)
	assert.Equal(t, "/docs/r.pdf", last.Source)
	assert.Equal(t, asset.ID, last.AssetID)
	assert.Equal(t, "es", chunks[0].Metadata[knowledge.MetaLanguage])
	assert.Equal(t, 3, chunks[0].Page)
}
