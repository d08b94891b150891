package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hqlin/tcm-assistant/internal/agent"
	"github.com/hqlin/tcm-assistant/internal/agent/tools"
	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/data/store"
	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
	"github.com/hqlin/tcm-assistant/internal/handlers"
	"github.com/hqlin/tcm-assistant/internal/httpclient"
	"github.com/hqlin/tcm-assistant/internal/job"
	mcpserver "github.com/hqlin/tcm-assistant/internal/mcp"
	"github.com/hqlin/tcm-assistant/internal/metrics"
	"github.com/hqlin/tcm-assistant/internal/rag/embedding"
	"github.com/hqlin/tcm-assistant/internal/rag/embedding/google"
	"github.com/hqlin/tcm-assistant/internal/rag/embedding/openaiembed"
	"github.com/hqlin/tcm-assistant/internal/rag/ingest"
	"github.com/hqlin/tcm-assistant/internal/rag/llm"
	"github.com/hqlin/tcm-assistant/internal/rag/llm/deepseek"
	"github.com/hqlin/tcm-assistant/internal/rag/llm/gemini"
	"github.com/hqlin/tcm-assistant/internal/rag/vectorindex"
	"github.com/hqlin/tcm-assistant/internal/rag/vectorindex/qdrantstore"
	"github.com/hqlin/tcm-assistant/internal/server"
	"github.com/hqlin/tcm-assistant/internal/worker"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

var (
	listenAddr        string
	mcpMode           bool
	requestCount      int64
	stopWorkerChannel chan bool
	workerWaitGroup   sync.WaitGroup
)

func main() {
	_ = godotenv.Load()

	logx.Init(config.IS_PROD, config.LOG_LEVEL_PROD)
	logger := logx.NewLogger("main")

	flag.StringVar(&listenAddr, "listen-addr", config.ServerListenAddr, "server listen address")
	flag.BoolVar(&mcpMode, "mcp", false, "serve the tools over MCP stdio instead of HTTP")
	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		logger.Error("Configuration error", "error", err)
		os.Exit(1)
	}

	serviceContext, closeExternalServices := context.WithCancel(context.Background())
	defer closeExternalServices()

	httpClient := httpclient.Pooled()

	var emb embedding.Embedder
	switch config.EmbeddingProvider {
	case "google":
		g, err := google.New(serviceContext, config.GoogleEmbeddingModel, config.GoogleAPIKey)
		if err != nil {
			logger.Error("Could not create embedding client", "error", err)
			os.Exit(1)
		}
		emb = g
	default:
		emb = openaiembed.New(config.OpenAIAPIKey, httpClient)
	}

	handle := vectorindex.NewHandle()
	var searcher vectorindex.Searcher = handle
	pipeline := ingest.New(emb, handle, config.CorpusDirectory, config.IndexDirectory)

	if config.VectorBackend == "qdrant" {
		qs, err := qdrantstore.New(serviceContext, emb)
		if err != nil {
			logger.Error("Qdrant backend unavailable", "error", err)
			os.Exit(1)
		}
		pipeline.UseRemote(qs)
		searcher = qs
	} else if vectorindex.SnapshotExists(config.IndexDirectory) {
		idx, err := vectorindex.Load(config.IndexDirectory, emb)
		if err != nil {
			// still serve; the retrieval tool reports no data until the
			// next successful ingestion
			logger.Error("Could not load persisted index", "error", err)
		} else {
			handle.Swap(idx)
			metrics.SetIndexEntries(idx.Len())
			logger.Info("Loaded persisted index", "entries", idx.Len())
		}
	}

	retrieval := tools.NewRetrievalTool(searcher)
	temporal := tools.NewTemporalTool()

	if mcpMode {
		runMCP(logger, retrieval, temporal)
		return
	}

	var provider llm.Provider
	switch config.LLMProvider {
	case "gemini":
		g, err := gemini.New(serviceContext, config.GeminiModelName, config.GoogleAPIKey)
		if err != nil {
			logger.Error("Could not create LLM client", "error", err)
			os.Exit(1)
		}
		provider = g
	default:
		provider = deepseek.New(config.DeepSeekAPIKey, httpClient)
	}

	//init buffered job channel
	jobChannel := make(chan jobmodel.Job, config.BufferLimit)
	dispatcherChannel := make(chan bool, 1)
	stopWorkerChannel = make(chan bool, 1)

	serviceConfig := job.ServiceConfig{
		JobChannel:        jobChannel,
		RequestCount:      requestCount,
		DispatcherChannel: dispatcherChannel,
	}

	jobStore := store.GetRedisJobStore(serviceContext)
	memoryStore := store.GetRedisMemoryStore(serviceContext)
	if jobStore == nil || memoryStore == nil {
		logger.Error("Redis stores are offline, falling back to in-memory stores")
		serviceConfig.JobStore = store.InitInMemoryJobStore()
		serviceConfig.MemoryStore = store.InitInMemoryMemoryStore()
	} else {
		serviceConfig.JobStore = jobStore
		serviceConfig.MemoryStore = memoryStore
	}

	logger.Info("Starting job service")
	service := job.InitJobService(serviceConfig)

	conversationAgent := agent.New(provider, tools.NewRegistry(retrieval, temporal), serviceConfig.MemoryStore)

	handlers.InitJobHandler(service, searcher, pipeline)

	//init worker pool
	worker.InitServices(service, conversationAgent, pipeline)
	worker.InitWorkerPool(stopWorkerChannel, &workerWaitGroup)

	//server handling
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	stopExecution := make(chan bool, 1)

	shutdownParams := server.ShutdownParams{
		GracefulShutdown: gracefulShutdown,
		StopExecution:    stopExecution,
		WorkerStop:       stopWorkerChannel,
		Group:            &workerWaitGroup,
		CloseServices:    closeExternalServices,
	}
	go server.ShutDownHandler(shutdownParams)
	go server.CreateServer(listenAddr)

	<-stopExecution
	logger.Info("Server stopped")
}

func runMCP(logger *logx.Logger, retrieval *tools.RetrievalTool, temporal *tools.TemporalTool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := mcpserver.NewServer(retrieval, temporal)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("MCP server exited", "error", err)
		os.Exit(1)
	}
}
