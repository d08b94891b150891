package jobmodel

import (
	"context"
	"time"
)

type JobStatus string
type InternalStatus string
type JobType string

const (
	JobStatusQueued   JobStatus = "QUEUED"
	JobStatusRunning  JobStatus = "RUNNING"
	JobStatusComplete JobStatus = "COMPLETE"
	JobStatusError    JobStatus = "Error"

	QueryInit     InternalStatus = "Init"
	AgentLoop     InternalStatus = "AgentLoop"
	ToolCall      InternalStatus = "ToolCall"
	LLMCall       InternalStatus = "LLM"
	MemoryCall    InternalStatus = "Memory"
	IngestInit    InternalStatus = "IngestInit"
	IngestRunning InternalStatus = "IngestRunning"
	Complete      InternalStatus = "Complete"

	JobTypeQuery  JobType = "Query"
	JobTypeIngest JobType = "Ingest"
)

type Job struct {
	Id          string         `json:"id"`
	ThreadId    string         `json:"thread_id,omitempty"`
	TraceId     string         `json:"trace_id"`
	JobType     JobType        `json:"job_type"`
	JobPayload  JobPayload     `json:"job_payload"`
	Error       JobError       `json:"error,omitempty"`
	CreatedTime time.Time      `json:"created_time"`
	EndTime     time.Time      `json:"end_time,omitempty"`
	Status      JobStatus      `json:"status"`
	CurrentStep InternalStatus `json:"current_step"`
}

type JobError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

type JobPayload struct {
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`

	// filled for ingestion jobs
	Ingest *IngestReport `json:"ingest,omitempty"`
}

// IngestReport is the observable outcome of one ingestion run. NoDocuments
// distinguishes "operational, nothing to load" from a hard failure.
type IngestReport struct {
	Documents   int  `json:"documents"`
	Chunks      int  `json:"chunks"`
	Skipped     int  `json:"skipped"`
	Entries     int  `json:"entries"`
	NoDocuments bool `json:"no_documents,omitempty"`
}

// Turn is one committed conversation exchange on a thread. Tool traffic is
// retained so the next turn replays it as context.
type Turn struct {
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	ToolCalls []ToolExchange `json:"tool_calls,omitempty"`
	At        time.Time      `json:"at"`
}

// ToolExchange is a single tool invocation and its result string.
type ToolExchange struct {
	Name   string `json:"name"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output"`
}

type JobStore interface {
	GetJob(ctx context.Context, jobId string) (Job, bool)
	SaveJob(ctx context.Context, job Job) error
	DeleteJob(ctx context.Context, jobID string)
}

// MemoryStore keeps per-thread conversation history. Histories of different
// thread ids never mix; Append keeps at most the configured window of turns.
type MemoryStore interface {
	Append(ctx context.Context, threadId string, turn Turn) error
	History(ctx context.Context, threadId string) ([]Turn, error)
}
