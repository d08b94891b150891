package worker

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
	"github.com/hqlin/tcm-assistant/internal/metrics"
	"github.com/hqlin/tcm-assistant/internal/rag/ingest"
)

func executeJob(job jobmodel.Job) {
	start := time.Now()
	defer func() {
		metrics.CaptureJobMetrics(string(job.Status), time.Since(start))
	}()

	ctxTrace := context.WithValue(context.Background(), config.TRACE_ID_KEY, job.TraceId)
	log := logger.With("traceId", job.TraceId, "jobId", job.Id)
	log.Debug("Processing job", "type", job.JobType)

	saveJobState(ctxTrace, job, jobmodel.JobStatusRunning)

	if job.JobType == jobmodel.JobTypeIngest {
		ctx, cancel := context.WithTimeout(ctxTrace, config.IngestRunTimeout)
		job = runIngestion(ctx, job)
		cancel()
	} else {
		ctx, cancel := context.WithTimeout(ctxTrace, config.AgentTurnTimeout)
		job = answerQuery(ctx, job)
		cancel()
	}

	job.EndTime = time.Now()
	if job.Status != jobmodel.JobStatusError {
		job.Status = jobmodel.JobStatusComplete
		job.CurrentStep = jobmodel.Complete
	}
	if err := _jobService.JobStore.SaveJob(ctxTrace, job); err != nil {
		log.Error("Failed to save final job state", "error", err)
	}
}

func answerQuery(ctx context.Context, job jobmodel.Job) jobmodel.Job {
	job.CurrentStep = jobmodel.AgentLoop
	start := time.Now()

	answer, err := _agent.Answer(ctx, job.ThreadId, job.JobPayload.Question)
	metrics.CaptureExecutionMetrics("agent", time.Since(start))
	if err != nil {
		logger.Error("Agent turn failed", "error", err)
		job.Status = jobmodel.JobStatusError
		job.Error = jobmodel.JobError{Code: http.StatusInternalServerError, Message: "Could not process question", Retry: true}
		return job
	}

	job.JobPayload.Answer = answer
	return job
}

func runIngestion(ctx context.Context, job jobmodel.Job) jobmodel.Job {
	job.CurrentStep = jobmodel.IngestRunning
	start := time.Now()

	report, err := _pipeline.Run(ctx)
	metrics.CaptureExecutionMetrics("ingest", time.Since(start))
	job.JobPayload.Ingest = &report

	switch {
	case errors.Is(err, ingest.ErrIngestBusy):
		job.Status = jobmodel.JobStatusError
		job.Error = jobmodel.JobError{Code: http.StatusConflict, Message: err.Error(), Retry: true}
	case err != nil:
		logger.Error("Ingestion run failed", "error", err)
		job.Status = jobmodel.JobStatusError
		job.Error = jobmodel.JobError{Code: http.StatusInternalServerError, Message: "Ingestion failed: " + err.Error(), Retry: true}
	default:
		metrics.SetIndexEntries(report.Entries)
	}
	return job
}

func removeWorker(reason string) {
	workerWaitGroup.Done()
	atomic.AddInt64(&currentWorkerCount, -1)
	logger.Info("Removed worker", "reason", reason, "workerCount", currentWorkerCount)
	metrics.DecrementActiveWorkerCount()
}

func saveJobState(ctx context.Context, job jobmodel.Job, jobStatus jobmodel.JobStatus) {
	job.Status = jobStatus
	if err := _jobService.JobStore.SaveJob(ctx, job); err != nil {
		logger.Error("Failed to update job status", "error", err)
	}
}
