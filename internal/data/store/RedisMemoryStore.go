package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/data/redisstore"
	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

// RedisMemoryStore persists conversation windows as Redis lists: RPUSH on
// commit, LTRIM to the window, and a rolling TTL so idle threads expire.
type RedisMemoryStore struct {
	store  *redisstore.Store
	window int64
	logger *logx.Logger
}

func GetRedisMemoryStore(ctx context.Context) *RedisMemoryStore {
	rs := redisstore.GetRedisStore(ctx, config.RedisMessageBank)
	if rs == nil {
		return nil
	}
	return &RedisMemoryStore{
		store:  rs,
		window: config.MemoryWindowTurns,
		logger: logx.NewLogger("memory_store"),
	}
}

func (s *RedisMemoryStore) Append(ctx context.Context, threadId string, turn jobmodel.Turn) error {
	log := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY), "thread", threadId)

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshalling turn: %w", err)
	}

	key := threadKey(threadId)
	if err := s.store.ListPush(ctx, key, data); err != nil {
		log.Error("Error appending turn", "error", err)
		return err
	}
	if err := s.store.ListTrimLast(ctx, key, s.window); err != nil {
		log.Error("Error trimming thread window", "error", err)
		return err
	}
	if err := s.store.Expire(ctx, key, config.RedisMemoryTTL); err != nil {
		log.Error("Error refreshing thread TTL", "error", err)
	}
	return nil
}

func (s *RedisMemoryStore) History(ctx context.Context, threadId string) ([]jobmodel.Turn, error) {
	log := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY), "thread", threadId)

	entries, err := s.store.ListGetAll(ctx, threadKey(threadId))
	if err != nil && !s.store.IsNil(err) {
		log.Error("Error reading thread history", "error", err)
		return nil, err
	}

	turns := make([]jobmodel.Turn, 0, len(entries))
	for _, e := range entries {
		var turn jobmodel.Turn
		if err := json.Unmarshal([]byte(e), &turn); err != nil {
			log.Error("Dropping unreadable turn", "error", err)
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func threadKey(threadId string) string {
	return "thread:" + threadId
}

// TestMemoryStore wires the store around an injected Redis client.
func TestMemoryStore(store *redisstore.Store) *RedisMemoryStore {
	return &RedisMemoryStore{
		store:  store,
		window: config.MemoryWindowTurns,
		logger: logx.NewLogger("test_memory_store"),
	}
}
