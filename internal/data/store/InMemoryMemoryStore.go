package store

import (
	"context"
	"sync"

	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
)

// InMemoryMemoryStore keeps per-thread conversation windows in process
// memory. Each thread retains at most the configured number of turns.
type InMemoryMemoryStore struct {
	chatLock *sync.RWMutex
	chatMap  map[string][]jobmodel.Turn
	window   int
}

func InitInMemoryMemoryStore() *InMemoryMemoryStore {
	return &InMemoryMemoryStore{
		chatLock: new(sync.RWMutex),
		chatMap:  make(map[string][]jobmodel.Turn),
		window:   config.MemoryWindowTurns,
	}
}

func (store *InMemoryMemoryStore) Append(ctx context.Context, threadId string, turn jobmodel.Turn) error {
	store.chatLock.Lock()
	defer store.chatLock.Unlock()

	turns := append(store.chatMap[threadId], turn)
	if len(turns) > store.window {
		turns = turns[len(turns)-store.window:]
	}
	store.chatMap[threadId] = turns
	return nil
}

func (store *InMemoryMemoryStore) History(ctx context.Context, threadId string) ([]jobmodel.Turn, error) {
	store.chatLock.RLock()
	defer store.chatLock.RUnlock()

	turns := store.chatMap[threadId]
	out := make([]jobmodel.Turn, len(turns))
	copy(out, turns)
	return out, nil
}
