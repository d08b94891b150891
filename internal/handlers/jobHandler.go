package handlers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hqlin/tcm-assistant/internal/api"
	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
	"github.com/hqlin/tcm-assistant/internal/job"
	"github.com/hqlin/tcm-assistant/internal/metrics"
	"github.com/hqlin/tcm-assistant/internal/rag/ingest"
	"github.com/hqlin/tcm-assistant/internal/rag/vectorindex"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

var (
	handlerInstance *JobHandler //private singleton
	once            sync.Once
	logJH           *logx.Logger
)

type JobHandler struct {
	service  *job.Service
	index    vectorindex.Searcher
	pipeline *ingest.Pipeline
}

func InitJobHandler(jobService *job.Service, index vectorindex.Searcher, pipeline *ingest.Pipeline) {
	once.Do(func() {
		handlerInstance = &JobHandler{
			service:  jobService,
			index:    index,
			pipeline: pipeline,
		}

		logJH = logx.NewLogger("job_handler")
		logRH = logx.NewLogger("request_handler")
		logJH.Info("Starting job handler")
	})
}

func CreateNewJob(newJob newJobData) {
	log := logJH.With("traceId", newJob.traceId, "jobId", newJob.id)
	log.Info("Creating new job")
	handlerInstance.pushToJobChannel(newJob)
}

func GetJobStatus(id string, traceId string) (result jobmodel.Job, isFound bool) {
	ctxC := context.WithValue(context.Background(), config.TRACE_ID_KEY, traceId)
	if handlerInstance != nil {
		return handlerInstance.service.JobStore.GetJob(ctxC, id)
	}
	return result, false
}

func ValidateChatRequest(chatReq api.ChatRequest) bool {
	if handlerInstance == nil {
		return false
	}
	return chatReq.Message != ""
}

// private methods
func (h *JobHandler) pushToJobChannel(newJob newJobData) {
	_job := jobmodel.Job{}
	_job.Id = newJob.id
	_job.CreatedTime = time.Now()
	_job.TraceId = newJob.traceId
	_job.Status = jobmodel.JobStatusQueued

	if newJob.isIngest {
		_job.CurrentStep = jobmodel.IngestInit
		_job.JobType = jobmodel.JobTypeIngest
	} else {
		_job.JobType = jobmodel.JobTypeQuery
		_job.ThreadId = newJob.threadId
		_job.JobPayload.Question = newJob.message
		_job.CurrentStep = jobmodel.QueryInit
	}

	//metrics
	metrics.IncrementJobsInQueue()

	h.service.JobChannel <- _job //blocking send so the system cannot be overwhelmed
	logJH.Info("Created new job", "type", _job.JobType)

	// a new worker is signaled every N requests; ingestion always gets one
	// since a run can hold a worker for minutes
	accurateCount := atomic.AddInt64(&h.service.RequestCount, 1)
	if accurateCount%config.RequestsPerNewWorkerCount == 0 || _job.JobType == jobmodel.JobTypeIngest {
		metrics.StartDispatcherSignalCount() //metrics
		h.service.DispatcherChannel <- true
	}
}
