package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hqlin/tcm-assistant/internal/agent"
	"github.com/hqlin/tcm-assistant/internal/agent/tools"
	"github.com/hqlin/tcm-assistant/internal/data/store"
	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
	"github.com/hqlin/tcm-assistant/internal/job"
	"github.com/hqlin/tcm-assistant/internal/rag/ingest"
	"github.com/hqlin/tcm-assistant/internal/rag/llm"
	"github.com/hqlin/tcm-assistant/internal/rag/vectorindex"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

// staticProvider always answers with the same text, no tool calls.
type staticProvider struct {
	answer string
}

func (p staticProvider) Chat(ctx context.Context, system string, msgs []llm.Message, specs []llm.ToolSpec) (llm.Reply, error) {
	return llm.Reply{Text: p.answer}, nil
}

// unusedEmbedder satisfies the pipeline constructor; the tests below only
// run ingestion against an empty corpus, so it is never called.
type unusedEmbedder struct{}

func (unusedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedder should not be called")
}

func (unusedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedder should not be called")
}

func (unusedEmbedder) Dimension() int { return 3 }

type mockJobStore struct {
	mu    sync.Mutex
	saved []jobmodel.Job
}

func (m *mockJobStore) SaveJob(ctx context.Context, j jobmodel.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, j)
	return nil
}

func (m *mockJobStore) GetJob(ctx context.Context, jobId string) (jobmodel.Job, bool) {
	return jobmodel.Job{}, false
}

func (m *mockJobStore) DeleteJob(ctx context.Context, jobID string) {}

// finalState returns the last saved state of the given job id, if any.
func (m *mockJobStore) finalState(jobId string) (jobmodel.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.saved) - 1; i >= 0; i-- {
		if m.saved[i].Id == jobId {
			return m.saved[i], true
		}
	}
	return jobmodel.Job{}, false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWorkerPool_Flow(t *testing.T) {
	jobStore := &mockJobStore{}
	jobSvc := &job.Service{
		JobChannel:        make(chan jobmodel.Job, 10),
		DispatcherChannel: make(chan bool, 10),
		JobStore:          jobStore,
		MemoryStore:       store.InitInMemoryMemoryStore(),
	}

	conversationAgent := agent.New(staticProvider{answer: "補氣養血。"}, tools.NewRegistry(), jobSvc.MemoryStore)
	pipeline := ingest.New(unusedEmbedder{}, vectorindex.NewHandle(), t.TempDir(), t.TempDir())

	stopChan := make(chan bool)
	wg := &sync.WaitGroup{}

	InitServices(jobSvc, conversationAgent, pipeline)
	InitWorkerPool(stopChan, wg)

	t.Run("dispatcher starts a worker", func(t *testing.T) {
		jobSvc.DispatcherChannel <- true
		waitFor(t, "a worker to start", func() bool {
			return atomic.LoadInt64(&currentWorkerCount) >= 1
		})
	})

	t.Run("worker answers a query job", func(t *testing.T) {
		jobSvc.JobChannel <- jobmodel.Job{
			Id:         "job-query",
			ThreadId:   "thread-1",
			JobType:    jobmodel.JobTypeQuery,
			JobPayload: jobmodel.JobPayload{Question: "氣虛如何調理？"},
			Status:     jobmodel.JobStatusQueued,
		}

		waitFor(t, "the query job to complete", func() bool {
			j, ok := jobStore.finalState("job-query")
			return ok && j.Status == jobmodel.JobStatusComplete
		})

		final, _ := jobStore.finalState("job-query")
		if final.JobPayload.Answer != "補氣養血。" {
			t.Errorf("unexpected answer %q", final.JobPayload.Answer)
		}
		if final.CurrentStep != jobmodel.Complete {
			t.Errorf("expected step Complete, got %s", final.CurrentStep)
		}
	})

	t.Run("worker runs an ingestion job", func(t *testing.T) {
		jobSvc.JobChannel <- jobmodel.Job{
			Id:      "job-ingest",
			JobType: jobmodel.JobTypeIngest,
			Status:  jobmodel.JobStatusQueued,
		}

		waitFor(t, "the ingestion job to complete", func() bool {
			j, ok := jobStore.finalState("job-ingest")
			return ok && j.Status == jobmodel.JobStatusComplete
		})

		final, _ := jobStore.finalState("job-ingest")
		if final.JobPayload.Ingest == nil || !final.JobPayload.Ingest.NoDocuments {
			t.Errorf("expected an empty-corpus ingest report, got %+v", final.JobPayload.Ingest)
		}
	})

	t.Run("stop signal retires workers", func(t *testing.T) {
		close(stopChan)

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("workers did not stop within timeout")
		}
	})
}

func TestWorker_IdleTimeout(t *testing.T) {
	oldTimeout, oldMin := idleWorkerTimeout, minWorkerCount
	idleWorkerTimeout, minWorkerCount = 50*time.Millisecond, 0
	defer func() { idleWorkerTimeout, minWorkerCount = oldTimeout, oldMin }()

	atomic.StoreInt64(&currentWorkerCount, 0)
	logger = logx.NewLogger("worker_pool_test")

	jobSvc := &job.Service{JobChannel: make(chan jobmodel.Job)}
	InitServices(jobSvc, nil, nil)

	workerWaitGroup = &sync.WaitGroup{}
	stopWorkerChannel = make(chan bool)

	createWorker()

	waitFor(t, "the idle worker to retire", func() bool {
		return atomic.LoadInt64(&currentWorkerCount) == 0
	})
}
