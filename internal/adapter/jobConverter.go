package adapter

import (
	"fmt"
	"time"

	"github.com/hqlin/tcm-assistant/internal/api"
	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
)

func ToInitJobResponse(id string) api.InitJobResponse {
	return api.InitJobResponse{
		Id:        id,
		StatusURL: fmt.Sprintf("status/%s", id),
	}
}

func ToAPIResponse(job jobmodel.Job) api.JobResponse {
	var errorPtr *api.JobOutgoingError
	if job.Error.Message != "" || job.Error.Code != 0 {
		errorPtr = &api.JobOutgoingError{
			Code:    job.Error.Code,
			Message: job.Error.Message,
			Retry:   job.Error.Retry,
		}
	}

	result := api.Result{
		Status: string(job.Status),
		Chat:   toChatResponse(job.JobPayload),
		Ingest: job.JobPayload.Ingest,
	}

	return api.JobResponse{
		Id:        job.Id,
		ThreadId:  job.ThreadId,
		StartTime: job.CreatedTime,
		EndTime:   job.EndTime,
		Error:     errorPtr,
		Result:    result,
	}
}

func toChatResponse(payload jobmodel.JobPayload) *api.ChatResponse {
	if payload.Answer == "" {
		return nil
	}
	return &api.ChatResponse{
		Question: payload.Question,
		Answer:   payload.Answer,
	}
}

func BadRequest(id string, message string, code int) api.JobResponse {
	return api.JobResponse{
		Id:        id,
		StartTime: time.Time{},
		EndTime:   time.Time{},
		Result: api.Result{
			Status: string(api.JobStatusError),
		},
		Error: &api.JobOutgoingError{
			Code:    code,
			Message: message,
			Retry:   false,
		},
	}
}
