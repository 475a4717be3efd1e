package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rating_calculator/pkg/core/knowledge"
	"rating_calculator/pkg/core/logging"
	"rating_calculator/pkg/core/workers"
)

// Store receives the chunks of each document. *knowledge.VectorStore
// satisfies it.
type Store interface {
	AddChunks(ctx context.Context, chunks []knowledge.Chunk) error
}

// Options configures a Workflow.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// Workers loading documents in parallel; chunks are stored in input order.
	Workers int
	// DetectLanguage adds a "language" metadata entry to every chunk.
	DetectLanguage bool
}

// Report summarizes one Run.
type Report struct {
	Assets      []*knowledge.Asset `json:"assets"`
	TotalChunks int                `json:"total_chunks"`
	Elapsed     time.Duration      `json:"elapsed"`
}

// Failed returns the assets that could not be ingested.
func (r *Report) Failed() []*knowledge.Asset {
	var out []*knowledge.Asset
	for _, a := range r.Assets {
		if a.Status == knowledge.StatusError {
			out = append(out, a)
		}
	}
	return out
}

// Workflow turns documents into stored chunks.
type Workflow struct {
	store    Store
	splitter *RecursiveSplitter
	language *LanguageDetector
	workers  int
	log      *zap.SugaredLogger
}

// NewWorkflow builds a workflow writing into store.
func NewWorkflow(store Store, opts Options, log *zap.SugaredLogger) *Workflow {
	w := &Workflow{
		store:    store,
		splitter: NewRecursiveSplitter(opts.ChunkSize, opts.ChunkOverlap),
		workers:  opts.Workers,
		log:      logging.OrNop(log),
	}
	if opts.DetectLanguage {
		w.language = NewLanguageDetector()
	}
	return w
}

// Splitter returns the configured splitter.
func (w *Workflow) Splitter() *RecursiveSplitter { return w.splitter }

type loaded struct {
	asset  *knowledge.Asset
	chunks []knowledge.Chunk
}

// Run ingests the given files. Directories are expanded to the supported
// files they contain. A document that fails to load is marked as an error in
// the report and the run goes on; a store failure aborts the run.
func (w *Workflow) Run(ctx context.Context, paths ...string) (*Report, error) {
	start := time.Now()
	files, err := ExpandPaths(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no documents to ingest")
	}
	if _, err := tokenEncoder(); err != nil {
		w.log.Warnw("token encoding unavailable, chunk sizes are estimated", "encoding", TokenEncoding, "error", err)
	}

	pool, err := workers.NewPool("ingest", w.workers, w.log)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	results := make([]loaded, len(files))
	errs := pool.Run(ctx, len(files), func(ctx context.Context, i int) error {
		asset, chunks, err := w.loadDocument(ctx, files[i])
		results[i] = loaded{asset: asset, chunks: chunks}
		return err
	})

	report := &Report{}
	for i, res := range results {
		if res.asset == nil {
			res.asset = knowledge.NewAsset(filepath.Base(files[i]), AssetTypeOf(files[i]), files[i])
		}
		report.Assets = append(report.Assets, res.asset)

		if errs[i] != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			res.asset.MarkAsError(errs[i].Error())
			w.log.Errorf("[%s] %v", res.asset.Name, errs[i])
			continue
		}

		w.log.Infof("[%s] Split into %d sub-documents.", res.asset.Name, len(res.chunks))
		if err := w.store.AddChunks(ctx, res.chunks); err != nil {
			res.asset.MarkAsError(err.Error())
			return report, fmt.Errorf("storing chunks of %s: %w", res.asset.Name, err)
		}
		res.asset.MarkAsProcessed(len(res.chunks))
		report.TotalChunks += len(res.chunks)
	}

	report.Elapsed = time.Since(start)
	w.log.Infof("Total chunks: %d | Time: %.2fs", report.TotalChunks, report.Elapsed.Seconds())
	return report, nil
}

func (w *Workflow) loadDocument(ctx context.Context, path string) (*knowledge.Asset, []knowledge.Chunk, error) {
	asset := knowledge.NewAsset(filepath.Base(path), AssetTypeOf(path), path)
	pages, err := LoadPages(ctx, path)
	if err != nil {
		return asset, nil, err
	}
	asset.Pages = len(pages)

	if w.language != nil {
		var sample strings.Builder
		for _, p := range pages {
			if sample.Len() > languageSample {
				break
			}
			sample.WriteString(p.Text)
			sample.WriteByte('\n')
		}
		asset.Language = w.language.Detect(sample.String())
	}
	return asset, w.SplitPages(asset, pages), nil
}

// SplitPages splits each page separately so every chunk keeps the source
// path and page number of its text.
func (w *Workflow) SplitPages(asset *knowledge.Asset, pages []Page) []knowledge.Chunk {
	var chunks []knowledge.Chunk
	now := time.Now()
	for _, p := range pages {
		for _, text := range w.splitter.Split(p.Text) {
			meta := map[string]string{knowledge.MetaPageLabel: p.Label}
			if asset.Language != "" {
				meta[knowledge.MetaLanguage] = asset.Language
			}
			chunks = append(chunks, knowledge.Chunk{
				ID:        uuid.NewString(),
				AssetID:   asset.ID,
				Content:   text,
				Source:    asset.Source,
				Page:      p.Number,
				Metadata:  meta,
				CreatedAt: now,
			})
		}
	}
	return chunks
}

// ExpandPaths checks that every path exists and replaces directories with
// the supported files inside them, sorted by name.
func ExpandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("document not found: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && AssetTypeOf(e.Name()) != "" {
				found = append(found, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}
