package vectorindex

import (
	"context"
	"sync/atomic"
)

// Searcher is the read side consumed by the retrieval tool.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
	Populated() bool
}

// Handle is the explicitly owned, injectable reference to the current
// index. Ingestion builds a fresh Index and swaps it in only after the
// snapshot is persisted, so in-flight searches keep reading the prior
// consistent state.
type Handle struct {
	ptr atomic.Pointer[Index]
}

func NewHandle() *Handle { return &Handle{} }

// Swap publishes idx to all readers.
func (h *Handle) Swap(idx *Index) {
	h.ptr.Store(idx)
}

// Current returns the active index, or nil before the first successful
// ingestion or load.
func (h *Handle) Current() *Index {
	return h.ptr.Load()
}

func (h *Handle) Populated() bool {
	idx := h.ptr.Load()
	return idx != nil && idx.Len() > 0
}

func (h *Handle) Len() int {
	if idx := h.ptr.Load(); idx != nil {
		return idx.Len()
	}
	return 0
}

// Search runs against the active snapshot; with no index loaded it reports
// an empty result, not an error.
func (h *Handle) Search(ctx context.Context, query string, k int) ([]string, error) {
	idx := h.ptr.Load()
	if idx == nil {
		return nil, nil
	}
	return idx.Search(ctx, query, k)
}
