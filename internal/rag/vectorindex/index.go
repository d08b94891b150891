// Package vectorindex implements an exact nearest-neighbor index over
// (embedding, chunk text) pairs. Vectors are L2-normalized at insert so
// ranking is a cosine similarity computed as a dot product; the corpus is a
// small collection of classical texts, so exact search beats maintaining an
// approximate structure.
package vectorindex

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hqlin/tcm-assistant/internal/rag/embedding"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

var (
	// ErrEmptyCorpus is returned by Build when given zero chunks; the
	// caller decides whether that is fatal or a no-op.
	ErrEmptyCorpus = errors.New("cannot build index from zero chunks")
)

const (
	snapshotFile = "index.gob"
	metaFile     = "meta.json"
)

// Index holds the accumulated vectors and their chunk texts. Append-only
// during an ingestion run; safe for concurrent Search.
type Index struct {
	mu      sync.RWMutex
	emb     embedding.Embedder
	dim     int
	vectors [][]float32
	texts   []string
	logger  *logx.Logger
}

// snapshot is the on-disk representation: embeddings are stored as data so a
// Load never needs the original embedding session.
type snapshot struct {
	Dim     int
	Vectors [][]float32
	Texts   []string
}

type meta struct {
	Dim     int       `json:"dimension"`
	Entries int       `json:"entries"`
	SavedAt time.Time `json:"saved_at"`
}

// New returns an empty index bound to the given embedder. The embedder's
// dimension is fixed for the index's lifetime.
func New(emb embedding.Embedder) *Index {
	return &Index{emb: emb, dim: emb.Dimension(), logger: logx.NewLogger("vectorindex")}
}

// Build constructs an index from a non-empty chunk set.
func Build(ctx context.Context, chunks []string, emb embedding.Embedder) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyCorpus
	}
	idx := New(emb)
	if err := idx.Add(ctx, chunks); err != nil {
		return nil, err
	}
	return idx, nil
}

// Add embeds the chunks and appends them. Existing entries are never
// updated or removed.
func (x *Index) Add(ctx context.Context, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := x.emb.EmbedBatch(ctx, chunks)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("vector %d has dimension %d, index holds %d", i, len(v), x.dim)
		}
		normalize(v)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.vectors = append(x.vectors, vectors...)
	x.texts = append(x.texts, chunks...)
	return nil
}

// Search returns up to k chunk texts ranked by descending cosine
// similarity. Ties go to the earlier-inserted chunk. An empty result means
// the index is empty.
func (x *Index) Search(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		return nil, fmt.Errorf("invalid k: %d", k)
	}
	if x.Len() == 0 {
		return nil, nil
	}

	q, err := x.emb.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(q) != x.dim {
		return nil, fmt.Errorf("query vector has dimension %d, index holds %d", len(q), x.dim)
	}
	normalize(q)

	x.mu.RLock()
	defer x.mu.RUnlock()

	scores := make([]float64, len(x.vectors))
	for i, v := range x.vectors {
		scores[i] = dot(v, q)
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	// stable keeps insertion order among equal scores
	sort.SliceStable(idxs, func(a, b int) bool {
		return scores[idxs[a]] > scores[idxs[b]]
	})

	if k > len(idxs) {
		k = len(idxs)
	}
	results := make([]string, 0, k)
	for _, i := range idxs[:k] {
		results = append(results, x.texts[i])
	}
	return results, nil
}

// Len reports the number of entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Save persists the full index state under dir. The snapshot is written to
// a temporary file and renamed into place, so a crash mid-write never
// leaves a loadable corrupt index.
func (x *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	x.mu.RLock()
	snap := snapshot{Dim: x.dim, Vectors: x.vectors, Texts: x.texts}
	x.mu.RUnlock()

	tmp, err := os.CreateTemp(dir, snapshotFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, snapshotFile)); err != nil {
		return fmt.Errorf("swapping snapshot into place: %w", err)
	}

	// the sidecar is advisory; the snapshot already landed, so a failure
	// here must not fail the save
	m, _ := json.Marshal(meta{Dim: snap.Dim, Entries: len(snap.Texts), SavedAt: time.Now()})
	if err := os.WriteFile(filepath.Join(dir, metaFile), m, 0640); err != nil {
		x.logger.Warn("Could not write index meta sidecar", "error", err)
	}
	return nil
}

// Load restores a persisted index. The embedder is only used for future
// queries and appends; stored vectors are data, not recomputed.
func Load(dir string, emb embedding.Embedder) (*Index, error) {
	f, err := os.Open(filepath.Join(dir, snapshotFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if len(snap.Vectors) != len(snap.Texts) {
		return nil, fmt.Errorf("snapshot holds %d vectors but %d texts", len(snap.Vectors), len(snap.Texts))
	}
	if snap.Dim != emb.Dimension() {
		return nil, fmt.Errorf("snapshot dimension %d does not match embedder dimension %d", snap.Dim, emb.Dimension())
	}

	return &Index{
		emb:     emb,
		dim:     snap.Dim,
		vectors: snap.Vectors,
		texts:   snap.Texts,
		logger:  logx.NewLogger("vectorindex"),
	}, nil
}

// SnapshotExists reports whether dir holds a loadable snapshot.
func SnapshotExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, snapshotFile))
	return err == nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
