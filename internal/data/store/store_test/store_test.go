package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/data/redisstore"
	"github.com/hqlin/tcm-assistant/internal/data/store"
	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *redisstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, redisstore.NewTestStore(client)
}

func TestRedisJobStore_Lifecycle(t *testing.T) {
	mr, internal := newTestStore(t)
	jobStore := store.TestJobStore(internal)

	ctx := context.WithValue(context.Background(), config.TRACE_ID_KEY, "test-trace")
	jobID := "job_abc_123"

	testJob := jobmodel.Job{
		Id:     jobID,
		Status: jobmodel.JobStatusRunning,
		JobPayload: jobmodel.JobPayload{
			Question: "人參的功效？",
		},
	}

	t.Run("Save and Get Roundtrip", func(t *testing.T) {
		if err := jobStore.SaveJob(ctx, testJob); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}

		retrieved, found := jobStore.GetJob(ctx, jobID)
		if !found {
			t.Fatal("Job was saved but not found in Redis")
		}
		if retrieved.JobPayload.Question != testJob.JobPayload.Question {
			t.Errorf("Data mismatch! Got %s, want %s",
				retrieved.JobPayload.Question, testJob.JobPayload.Question)
		}
		if retrieved.Status != jobmodel.JobStatusRunning {
			t.Errorf("Status mismatch: %s", retrieved.Status)
		}
	})

	t.Run("Get Non-Existent Job", func(t *testing.T) {
		if _, found := jobStore.GetJob(ctx, "ghost-id"); found {
			t.Error("Expected found=false for non-existent key")
		}
	})

	t.Run("Delete Job", func(t *testing.T) {
		jobStore.DeleteJob(ctx, jobID)
		if mr.Exists(jobID) {
			t.Error("Job still exists in Redis after DeleteJob call")
		}
	})
}

func TestRedisJobStore_Race(t *testing.T) {
	_, internal := newTestStore(t)
	jobStore := store.TestJobStore(internal)

	ctx := context.WithValue(context.Background(), config.TRACE_ID_KEY, "race-trace")
	job := jobmodel.Job{Id: "race-job"}

	const workers = 50
	for i := 0; i < workers; i++ {
		go func() {
			_ = jobStore.SaveJob(ctx, job)
			_, _ = jobStore.GetJob(ctx, "race-job")
		}()
	}
}

func TestRedisMemoryStore_AppendAndHistory(t *testing.T) {
	_, internal := newTestStore(t)
	memory := store.TestMemoryStore(internal)

	ctx := context.WithValue(context.Background(), config.TRACE_ID_KEY, "test-trace")

	turns := []jobmodel.Turn{
		{Question: "第一問", Answer: "第一答"},
		{Question: "第二問", Answer: "第二答", ToolCalls: []jobmodel.ToolExchange{
			{Name: "search_documents", Input: `{"query":"q"}`, Output: "內容"},
		}},
	}
	for _, turn := range turns {
		if err := memory.Append(ctx, "thread-1", turn); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	history, err := memory.History(ctx, "thread-1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d turns, want 2", len(history))
	}
	if history[0].Question != "第一問" || history[1].Answer != "第二答" {
		t.Errorf("history out of order: %+v", history)
	}
	if len(history[1].ToolCalls) != 1 || history[1].ToolCalls[0].Output != "內容" {
		t.Errorf("tool exchange lost in roundtrip: %+v", history[1])
	}
}

func TestRedisMemoryStore_WindowBound(t *testing.T) {
	_, internal := newTestStore(t)
	memory := store.TestMemoryStore(internal)
	ctx := context.WithValue(context.Background(), config.TRACE_ID_KEY, "test-trace")

	total := config.MemoryWindowTurns + 7
	for i := 0; i < total; i++ {
		err := memory.Append(ctx, "busy", jobmodel.Turn{Question: fmt.Sprintf("問題%d", i)})
		if err != nil {
			t.Fatal(err)
		}
	}

	history, err := memory.History(ctx, "busy")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != config.MemoryWindowTurns {
		t.Fatalf("window holds %d turns, want %d", len(history), config.MemoryWindowTurns)
	}
	// the oldest surviving turn is the first one inside the window
	if want := fmt.Sprintf("問題%d", total-config.MemoryWindowTurns); history[0].Question != want {
		t.Errorf("oldest turn is %q, want %q", history[0].Question, want)
	}
}

func TestRedisMemoryStore_ThreadIsolation(t *testing.T) {
	_, internal := newTestStore(t)
	memory := store.TestMemoryStore(internal)
	ctx := context.WithValue(context.Background(), config.TRACE_ID_KEY, "test-trace")

	if err := memory.Append(ctx, "alice", jobmodel.Turn{Question: "甲"}); err != nil {
		t.Fatal(err)
	}
	if err := memory.Append(ctx, "bob", jobmodel.Turn{Question: "乙"}); err != nil {
		t.Fatal(err)
	}

	aliceHistory, _ := memory.History(ctx, "alice")
	bobHistory, _ := memory.History(ctx, "bob")
	if len(aliceHistory) != 1 || len(bobHistory) != 1 {
		t.Fatalf("histories mixed: alice=%d bob=%d", len(aliceHistory), len(bobHistory))
	}
	if aliceHistory[0].Question != "甲" || bobHistory[0].Question != "乙" {
		t.Error("turns attributed to the wrong thread")
	}

	empty, err := memory.History(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Errorf("unknown thread should have empty history, got %v err=%v", empty, err)
	}
}

func TestInMemoryMemoryStore_Window(t *testing.T) {
	memory := store.InitInMemoryMemoryStore()
	ctx := context.Background()

	total := config.MemoryWindowTurns + 3
	for i := 0; i < total; i++ {
		_ = memory.Append(ctx, "t", jobmodel.Turn{Question: fmt.Sprintf("問題%d", i)})
	}
	history, _ := memory.History(ctx, "t")
	if len(history) != config.MemoryWindowTurns {
		t.Fatalf("window holds %d, want %d", len(history), config.MemoryWindowTurns)
	}
	if want := fmt.Sprintf("問題%d", total-config.MemoryWindowTurns); history[0].Question != want {
		t.Errorf("oldest turn is %q, want %q", history[0].Question, want)
	}
}

func TestInMemoryJobStore_Lifecycle(t *testing.T) {
	jobStore := store.InitInMemoryJobStore()
	ctx := context.Background()

	job := jobmodel.Job{Id: "j1", Status: jobmodel.JobStatusQueued}
	if err := jobStore.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	got, found := jobStore.GetJob(ctx, "j1")
	if !found || got.Status != jobmodel.JobStatusQueued {
		t.Errorf("roundtrip failed: %+v found=%v", got, found)
	}
	jobStore.DeleteJob(ctx, "j1")
	if _, found := jobStore.GetJob(ctx, "j1"); found {
		t.Error("job survived deletion")
	}
}
