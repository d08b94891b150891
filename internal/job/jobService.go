package job

import (
	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
)

type Service struct {
	JobChannel        chan jobmodel.Job
	RequestCount      int64
	DispatcherChannel chan bool
	JobStore          jobmodel.JobStore
	MemoryStore       jobmodel.MemoryStore
}

type ServiceConfig struct {
	JobChannel        chan jobmodel.Job
	RequestCount      int64
	DispatcherChannel chan bool
	JobStore          jobmodel.JobStore
	MemoryStore       jobmodel.MemoryStore
}

func InitJobService(cfg ServiceConfig) *Service {
	return &Service{
		JobChannel:        cfg.JobChannel,
		RequestCount:      cfg.RequestCount,
		DispatcherChannel: cfg.DispatcherChannel,
		JobStore:          cfg.JobStore,
		MemoryStore:       cfg.MemoryStore,
	}
}
