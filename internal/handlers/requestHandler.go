package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/hqlin/tcm-assistant/internal/adapter"
	"github.com/hqlin/tcm-assistant/internal/adapter/utils"
	"github.com/hqlin/tcm-assistant/internal/api"
	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

var logRH *logx.Logger

type newJobData struct {
	id       string
	threadId string
	message  string
	traceId  string
	isIngest bool
}

// RootHandler reports a quick operational summary: whether the knowledge
// index holds anything and whether an ingestion run is active.
func RootHandler(w http.ResponseWriter, r *http.Request) {
	summary := api.StatusSummary{Status: "ok"}
	if handlerInstance != nil {
		summary.IndexPopulated = handlerInstance.index.Populated()
		summary.IngestRunning = handlerInstance.pipeline.Busy()
		if counter, ok := handlerInstance.index.(interface{ Len() int }); ok {
			summary.IndexEntries = counter.Len()
		}
	}
	writeJsonResponse(w, http.StatusOK, summary)
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ChatHandler accepts a question, queues a query job and returns the job id
// for polling.
func ChatHandler(w http.ResponseWriter, request *http.Request) {
	if !validateContext(request.Context()) {
		logRH.Warn("Invalid context by request", "remote", request.RemoteAddr)
		return
	}

	var requestData api.ChatRequest
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logRH.Error("Couldn't close the chat handler reader", "error", err)
		}
	}(request.Body)

	if err := json.NewDecoder(request.Body).Decode(&requestData); err != nil || !ValidateChatRequest(requestData) {
		logRH.Warn("Bad chat request", "error", err)
		WriteErrorResponse(w, http.StatusBadRequest, requestData.ThreadID, "Bad Request")
		return
	}

	threadID := requestData.ThreadID
	if threadID == "" {
		threadID = utils.GetNewUUID()
		logRH.Debug("New conversation thread", "threadId", threadID)
	}

	newJob := newJobData{
		id:       utils.GetNewUUID(),
		threadId: threadID,
		message:  requestData.Message,
		traceId:  request.Context().Value(config.TRACE_ID_KEY).(string),
	}
	CreateNewJob(newJob)
	writeJsonResponse(w, http.StatusAccepted, adapter.ToInitJobResponse(newJob.id))
}

// GetStatusHandler retrieves the current status of a job by id.
func GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}

	idString := utils.GetChiURLParam(r, "id")
	result, isFound := validateId(idString, r.Context().Value(config.TRACE_ID_KEY).(string))
	if !isFound {
		WriteErrorResponse(w, http.StatusNotFound, idString, "Job not found")
		return
	}

	writeJsonResponse(w, http.StatusOK, adapter.ToAPIResponse(result))
}

// PostIngestHandler queues a corpus re-ingestion run. At most one run may
// be active; a second request is rejected outright.
func PostIngestHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logRH.Warn("Invalid context by request", "remote", r.RemoteAddr)
		return
	}

	if handlerInstance.pipeline.Busy() {
		WriteErrorResponse(w, http.StatusConflict, "", "An ingestion run is already in progress")
		return
	}

	newJob := newJobData{
		id:       utils.GetNewUUID(),
		traceId:  r.Context().Value(config.TRACE_ID_KEY).(string),
		isIngest: true,
	}
	CreateNewJob(newJob)
	writeJsonResponse(w, http.StatusAccepted, adapter.ToInitJobResponse(newJob.id))
}
