package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hqlin/tcm-assistant/internal/rag/vectorindex"
)

// fakeEmbedder produces deterministic vectors; it can be told to fail on
// chunks containing a marker, or to block until released.
type fakeEmbedder struct {
	failOn  string
	started chan struct{}
	release chan struct{}
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if f.failOn != "" && strings.Contains(t, f.failOn) {
			return nil, errors.New("embedding refused")
		}
		v := make([]float32, 3)
		for i, r := range t {
			v[i%3] += float32(r % 101)
		}
		out = append(out, v)
	}
	return out, nil
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0640); err != nil {
		t.Fatal(err)
	}
}

func TestRunEmptyCorpusDirectory(t *testing.T) {
	base := t.TempDir()
	corpus := filepath.Join(base, "missing") // does not exist yet
	handle := vectorindex.NewHandle()

	p := New(&fakeEmbedder{}, handle, corpus, filepath.Join(base, "idx"))
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run on empty corpus errored: %v", err)
	}
	if !report.NoDocuments {
		t.Error("report should flag NoDocuments")
	}
	if _, statErr := os.Stat(corpus); statErr != nil {
		t.Error("corpus directory should have been created")
	}
	if handle.Populated() {
		t.Error("handle must stay empty after a no-document run")
	}
}

func TestRunEmptyCorpusKeepsExistingIndex(t *testing.T) {
	base := t.TempDir()
	emb := &fakeEmbedder{}
	handle := vectorindex.NewHandle()
	indexDir := filepath.Join(base, "idx")

	existing, err := vectorindex.Build(context.Background(), []string{"舊有條目"}, emb)
	if err != nil {
		t.Fatal(err)
	}
	if err := existing.Save(indexDir); err != nil {
		t.Fatal(err)
	}
	handle.Swap(existing)

	p := New(emb, handle, filepath.Join(base, "corpus"), indexDir)
	report, err := p.Run(context.Background())
	if err != nil || !report.NoDocuments {
		t.Fatalf("expected clean NoDocuments run, got report=%+v err=%v", report, err)
	}
	if handle.Len() != 1 {
		t.Error("existing index was replaced by an empty run")
	}
	loaded, err := vectorindex.Load(indexDir, emb)
	if err != nil {
		t.Fatalf("persisted snapshot no longer loads: %v", err)
	}
	if loaded.Len() != 1 {
		t.Errorf("persisted snapshot was clobbered: len=%d", loaded.Len())
	}
}

func TestRunIngestsDocuments(t *testing.T) {
	base := t.TempDir()
	corpus := filepath.Join(base, "corpus")
	indexDir := filepath.Join(base, "idx")
	if err := os.MkdirAll(corpus, 0750); err != nil {
		t.Fatal(err)
	}

	// seven docs so the batch boundary (first + 5 + 1) is crossed
	for i := 0; i < 7; i++ {
		writeDoc(t, corpus, fmt.Sprintf("doc%d.txt", i), fmt.Sprintf("文件%d：人參補氣，當歸補血。", i))
	}
	writeDoc(t, corpus, "notes.bin", "ignored") // unsupported extension

	handle := vectorindex.NewHandle()
	p := New(&fakeEmbedder{}, handle, corpus, indexDir)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Documents != 7 {
		t.Errorf("ingested %d documents, want 7", report.Documents)
	}
	if report.Skipped != 0 {
		t.Errorf("skipped %d documents, want 0", report.Skipped)
	}
	if report.Chunks == 0 || report.Entries != report.Chunks {
		t.Errorf("report chunk accounting wrong: %+v", report)
	}
	if !handle.Populated() || handle.Len() != report.Entries {
		t.Error("handle does not serve the ingested index")
	}
	if !vectorindex.SnapshotExists(indexDir) {
		t.Error("no snapshot persisted")
	}
}

func TestRunSkipsBadDocuments(t *testing.T) {
	base := t.TempDir()
	corpus := filepath.Join(base, "corpus")
	if err := os.MkdirAll(corpus, 0750); err != nil {
		t.Fatal(err)
	}

	writeDoc(t, corpus, "a_good.txt", "黃連清熱燥濕。")
	writeDoc(t, corpus, "b_empty.txt", "   \n\n")
	writeDoc(t, corpus, "c_broken.pdf", "this is not a pdf")
	writeDoc(t, corpus, "d_good.txt", "茯苓利水滲濕。")

	handle := vectorindex.NewHandle()
	p := New(&fakeEmbedder{}, handle, corpus, filepath.Join(base, "idx"))

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Documents != 2 {
		t.Errorf("ingested %d documents, want 2", report.Documents)
	}
	if report.Skipped != 2 {
		t.Errorf("skipped %d documents, want 2", report.Skipped)
	}
}

func TestRunFirstDocumentFailureDoesNotAbort(t *testing.T) {
	base := t.TempDir()
	corpus := filepath.Join(base, "corpus")
	if err := os.MkdirAll(corpus, 0750); err != nil {
		t.Fatal(err)
	}
	// lexicographically first doc triggers an embedding failure; the next
	// usable doc must anchor the index instead
	writeDoc(t, corpus, "a.txt", "POISON 這份文件無法嵌入。")
	writeDoc(t, corpus, "b.txt", "甘草調和諸藥。")

	handle := vectorindex.NewHandle()
	p := New(&fakeEmbedder{failOn: "POISON"}, handle, corpus, filepath.Join(base, "idx"))

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Documents != 1 || report.Skipped != 1 {
		t.Errorf("got report %+v, want 1 ingested and 1 skipped", report)
	}
	if !handle.Populated() {
		t.Error("index was never anchored despite a usable document")
	}
}

func TestRunPoisonedDocumentDoesNotSinkBatch(t *testing.T) {
	base := t.TempDir()
	corpus := filepath.Join(base, "corpus")
	if err := os.MkdirAll(corpus, 0750); err != nil {
		t.Fatal(err)
	}

	// doc0 anchors the index; doc1-doc5 share one batch with the poisoned
	// doc3 in the middle; doc6 flushes alone at the end
	for i := 0; i < 7; i++ {
		content := fmt.Sprintf("文件%d：麥冬養陰生津。", i)
		if i == 3 {
			content = "POISON 這份文件無法嵌入。"
		}
		writeDoc(t, corpus, fmt.Sprintf("doc%d.txt", i), content)
	}

	handle := vectorindex.NewHandle()
	p := New(&fakeEmbedder{failOn: "POISON"}, handle, corpus, filepath.Join(base, "idx"))

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Documents != 6 {
		t.Errorf("ingested %d documents, want 6", report.Documents)
	}
	if report.Skipped != 1 {
		t.Errorf("skipped %d documents, want only the poisoned one", report.Skipped)
	}
	if report.Entries != report.Chunks {
		t.Errorf("entry accounting wrong: %+v", report)
	}
	if handle.Len() != report.Entries {
		t.Error("handle does not serve the surviving documents")
	}
}

func TestRunAllDocumentsFail(t *testing.T) {
	base := t.TempDir()
	corpus := filepath.Join(base, "corpus")
	if err := os.MkdirAll(corpus, 0750); err != nil {
		t.Fatal(err)
	}
	writeDoc(t, corpus, "a.txt", "POISON one")
	writeDoc(t, corpus, "b.txt", "POISON two")

	handle := vectorindex.NewHandle()
	p := New(&fakeEmbedder{failOn: "POISON"}, handle, corpus, filepath.Join(base, "idx"))

	report, err := p.Run(context.Background())
	if !errors.Is(err, vectorindex.ErrEmptyCorpus) {
		t.Errorf("got err %v, want wrapped ErrEmptyCorpus", err)
	}
	if report.Skipped != 2 {
		t.Errorf("skipped %d, want 2", report.Skipped)
	}
	if handle.Populated() {
		t.Error("handle must stay empty when every document fails")
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	base := t.TempDir()
	corpus := filepath.Join(base, "corpus")
	if err := os.MkdirAll(corpus, 0750); err != nil {
		t.Fatal(err)
	}
	writeDoc(t, corpus, "a.txt", "陳皮理氣健脾。")

	emb := &fakeEmbedder{started: make(chan struct{}), release: make(chan struct{})}
	handle := vectorindex.NewHandle()
	p := New(emb, handle, corpus, filepath.Join(base, "idx"))

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		done <- err
	}()

	<-emb.started // first run is now inside the embedding call
	if _, err := p.Run(context.Background()); !errors.Is(err, ErrIngestBusy) {
		t.Errorf("second run got %v, want ErrIngestBusy", err)
	}
	close(emb.release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// the flag is released once the run ends
	emb.started = nil
	if _, err := p.Run(context.Background()); err != nil {
		t.Errorf("run after completion got %v, want nil", err)
	}
}

type fakeRemote struct {
	upserts map[string]int
	failOn  string
}

func (f *fakeRemote) UpsertChunks(ctx context.Context, docName string, chunks []string) error {
	if docName == f.failOn {
		return errors.New("remote unavailable")
	}
	if f.upserts == nil {
		f.upserts = map[string]int{}
	}
	f.upserts[docName] += len(chunks)
	return nil
}

func TestRunRemoteBackend(t *testing.T) {
	base := t.TempDir()
	corpus := filepath.Join(base, "corpus")
	if err := os.MkdirAll(corpus, 0750); err != nil {
		t.Fatal(err)
	}
	writeDoc(t, corpus, "a.txt", "白朮健脾益氣。")
	writeDoc(t, corpus, "b.txt", "山藥補脾養胃。")

	remote := &fakeRemote{failOn: "b.txt"}
	handle := vectorindex.NewHandle()
	p := New(&fakeEmbedder{}, handle, corpus, filepath.Join(base, "idx"))
	p.UseRemote(remote)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Documents != 1 || report.Skipped != 1 {
		t.Errorf("got report %+v, want 1 upserted and 1 skipped", report)
	}
	if _, ok := remote.upserts["a.txt"]; !ok {
		t.Error("surviving document never reached the remote store")
	}
	if handle.Populated() {
		t.Error("remote runs must not touch the local handle")
	}
}
