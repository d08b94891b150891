package api

import (
	"time"

	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
)

type JobExternalStatus string

const (
	JobStatusError JobExternalStatus = "Error"
)

type JobResponse struct {
	Id        string            `json:"id" example:"job_cz109"`
	ThreadId  string            `json:"thread_id,omitempty" example:"thread_550"`
	Result    Result            `json:"result"`
	Error     *JobOutgoingError `json:"error,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
}

type JobOutgoingError struct {
	Code    int    `json:"code" example:"400"`
	Message string `json:"message" example:"Job not found"`
	Retry   bool   `json:"can_retry" example:"false"`
}

type ChatResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Result struct {
	Status string                 `json:"status"`
	Chat   *ChatResponse          `json:"chat_response,omitempty"`
	Ingest *jobmodel.IngestReport `json:"ingest_report,omitempty"`
}

type InitJobResponse struct {
	Id        string `json:"id"`
	StatusURL string `json:"status_url"`
}

// StatusSummary is the GET / payload: a quick operational readout.
type StatusSummary struct {
	Status         string `json:"status"`
	IndexPopulated bool   `json:"index_populated"`
	IndexEntries   int    `json:"index_entries"`
	IngestRunning  bool   `json:"ingest_running"`
}

// requests---------------------

type ChatRequest struct {
	Message  string `json:"message" validate:"required"`
	ThreadID string `json:"threadID,omitempty"`
}

type JobStatusRequest struct {
	JobId string `json:"job_id" validate:"required"`
}
