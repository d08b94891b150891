// Package ingest rebuilds the knowledge base from the corpus directory:
// enumerate documents, extract text, chunk, embed, persist, publish.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
	"github.com/hqlin/tcm-assistant/internal/rag/chunker"
	"github.com/hqlin/tcm-assistant/internal/rag/embedding"
	"github.com/hqlin/tcm-assistant/internal/rag/vectorindex"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

// ErrIngestBusy is returned when a run is requested while another is still
// in flight. At most one ingestion runs at a time.
var ErrIngestBusy = errors.New("an ingestion run is already in progress")

// Remote is the alternate sink for chunk storage when a vector database
// backend is configured instead of the local snapshot index.
type Remote interface {
	UpsertChunks(ctx context.Context, docName string, chunks []string) error
}

type Pipeline struct {
	emb       embedding.Embedder
	handle    *vectorindex.Handle
	remote    Remote
	corpusDir string
	indexDir  string
	cfg       chunker.Config
	busy      atomic.Bool
	logger    *logx.Logger
}

func New(emb embedding.Embedder, handle *vectorindex.Handle, corpusDir, indexDir string) *Pipeline {
	return &Pipeline{
		emb:       emb,
		handle:    handle,
		corpusDir: corpusDir,
		indexDir:  indexDir,
		cfg:       chunker.DefaultConfig(),
		logger:    logx.NewLogger("ingest"),
	}
}

// UseRemote routes chunk storage to a vector database instead of the local
// index. Must be set before the first Run.
func (p *Pipeline) UseRemote(r Remote) { p.remote = r }

// Busy reports whether a run is currently in flight.
func (p *Pipeline) Busy() bool { return p.busy.Load() }

// Run performs one full ingestion pass and reports what it processed. An
// empty corpus directory is a no-op, never a reason to discard a previously
// persisted index. Per-document failures are logged and counted, not fatal.
func (p *Pipeline) Run(ctx context.Context) (jobmodel.IngestReport, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return jobmodel.IngestReport{}, ErrIngestBusy
	}
	defer p.busy.Store(false)

	loggr := p.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY))

	if err := os.MkdirAll(p.corpusDir, 0750); err != nil {
		return jobmodel.IngestReport{}, fmt.Errorf("creating corpus directory: %w", err)
	}

	files, err := p.listDocuments()
	if err != nil {
		return jobmodel.IngestReport{}, fmt.Errorf("enumerating corpus: %w", err)
	}
	if len(files) == 0 {
		loggr.Warn("No documents found in corpus directory", "dir", p.corpusDir)
		return jobmodel.IngestReport{NoDocuments: true}, nil
	}
	loggr.Info("Starting ingestion", "documents", len(files))

	if p.remote != nil {
		return p.runRemote(ctx, loggr, files)
	}
	return p.runLocal(ctx, loggr, files)
}

func (p *Pipeline) runLocal(ctx context.Context, loggr *logx.Logger, files []string) (jobmodel.IngestReport, error) {
	var report jobmodel.IngestReport
	var idx *vectorindex.Index

	type pendingDoc struct {
		name   string
		chunks []string
	}
	var pending []pendingDoc

	flush := func() {
		if len(pending) == 0 {
			return
		}
		var batch []string
		for _, d := range pending {
			batch = append(batch, d.chunks...)
		}
		if err := idx.Add(ctx, batch); err != nil {
			// one bad document must not sink its batch-mates; retry each
			// document alone so only the offender is skipped
			loggr.Warn("Batch embedding failed, retrying documents individually",
				"documents", len(pending), "error", err)
			for _, d := range pending {
				if err := idx.Add(ctx, d.chunks); err != nil {
					loggr.Error("Skipping document after embedding failure",
						"document", d.name, "error", err)
					report.Skipped++
					continue
				}
				report.Documents++
				report.Chunks += len(d.chunks)
			}
		} else {
			report.Documents += len(pending)
			report.Chunks += len(batch)
		}
		pending = pending[:0]
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := filepath.Base(path)

		chunks, ok := p.chunkDocument(loggr, path)
		if !ok {
			report.Skipped++
			continue
		}

		// the first usable document anchors the index; everything after
		// rides in fixed-size batches
		if idx == nil {
			built, err := vectorindex.Build(ctx, chunks, p.emb)
			if err != nil {
				loggr.Error("Skipping document, could not build index from it",
					"document", name, "error", err)
				report.Skipped++
				continue
			}
			idx = built
			report.Documents++
			report.Chunks += len(chunks)
			continue
		}

		pending = append(pending, pendingDoc{name: name, chunks: chunks})
		if len(pending) >= config.IngestBatchSize {
			flush()
		}
	}
	flush()

	if idx == nil {
		return report, fmt.Errorf("no document could be ingested: %w", vectorindex.ErrEmptyCorpus)
	}
	if err := idx.Save(p.indexDir); err != nil {
		return report, fmt.Errorf("persisting index: %w", err)
	}
	// readers see the new index only after it is safely on disk
	p.handle.Swap(idx)
	report.Entries = idx.Len()

	loggr.Info("Ingestion complete", "documents", report.Documents,
		"chunks", report.Chunks, "skipped", report.Skipped, "entries", report.Entries)
	return report, nil
}

func (p *Pipeline) runRemote(ctx context.Context, loggr *logx.Logger, files []string) (jobmodel.IngestReport, error) {
	var report jobmodel.IngestReport

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := filepath.Base(path)

		chunks, ok := p.chunkDocument(loggr, path)
		if !ok {
			report.Skipped++
			continue
		}
		if err := p.remote.UpsertChunks(ctx, name, chunks); err != nil {
			loggr.Error("Skipping document after upsert failure", "document", name, "error", err)
			report.Skipped++
			continue
		}
		report.Documents++
		report.Chunks += len(chunks)
	}

	report.Entries = report.Chunks
	loggr.Info("Ingestion complete", "documents", report.Documents,
		"chunks", report.Chunks, "skipped", report.Skipped)
	return report, nil
}

// chunkDocument extracts and splits one document; ok is false when the
// document should be skipped.
func (p *Pipeline) chunkDocument(loggr *logx.Logger, path string) ([]string, bool) {
	kind := kindFor(path)
	text, err := extractText(path, kind)
	if err != nil {
		loggr.Error("Skipping document, extraction failed", "document", filepath.Base(path), "error", err)
		return nil, false
	}
	if strings.TrimSpace(text) == "" {
		loggr.Warn("Skipping document with no extractable text", "document", filepath.Base(path))
		return nil, false
	}
	chunks := chunker.Split(text, p.cfg)
	if len(chunks) == 0 {
		return nil, false
	}
	return chunks, true
}

// listDocuments walks the corpus directory recursively and returns the
// supported files in a stable order.
func (p *Pipeline) listDocuments() ([]string, error) {
	var files []string
	err := filepath.WalkDir(p.corpusDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if kindFor(path) == kindUnsupported {
			p.logger.Warn("Ignoring unsupported file", "file", d.Name())
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
