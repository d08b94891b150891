package store

import (
	"context"
	"encoding/json"

	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/data/redisstore"
	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

type RedisJobStore struct {
	store  *redisstore.Store
	logger *logx.Logger
}

// GetRedisJobStore returns nil when Redis is unreachable; the caller is
// expected to fall back to the in-memory store.
func GetRedisJobStore(ctx context.Context) *RedisJobStore {
	rs := redisstore.GetRedisStore(ctx, config.RedisJobStore)
	if rs == nil {
		return nil
	}
	return &RedisJobStore{
		store:  rs,
		logger: logx.NewLogger("job_store"),
	}
}

func (s *RedisJobStore) SaveJob(ctx context.Context, job jobmodel.Job) error {
	log := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY), "jobId", job.Id)
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	err = s.store.Set(ctx, job.Id, data, config.RedisJobStoreTTL)
	if err == nil {
		log.Debug("Saved job to Redis")
	}
	return err
}

func (s *RedisJobStore) GetJob(ctx context.Context, jobId string) (jobmodel.Job, bool) {
	var job jobmodel.Job
	log := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY), "jobId", jobId)

	val, err := s.store.Get(ctx, jobId)
	if s.store.IsNil(err) {
		return job, false
	} else if err != nil {
		log.Error("Error reading job from Redis", "error", err)
		return job, false
	}

	if err = json.Unmarshal([]byte(val), &job); err != nil {
		log.Error("Error unmarshalling job", "error", err)
		return job, false
	}
	return job, true
}

func (s *RedisJobStore) DeleteJob(ctx context.Context, jobID string) {
	if err := s.store.Del(ctx, jobID); err != nil {
		s.logger.Error("Error deleting job from Redis", "jobId", jobID, "error", err)
		return
	}
	s.logger.Debug("Job deleted from Redis", "jobId", jobID)
}

// TestJobStore wires the store around an injected Redis client.
func TestJobStore(store *redisstore.Store) *RedisJobStore {
	return &RedisJobStore{
		store:  store,
		logger: logx.NewLogger("test_job_store"),
	}
}
