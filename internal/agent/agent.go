// Package agent runs the bounded tool-calling conversation loop.
package agent

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hqlin/tcm-assistant/internal/agent/tools"
	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/domain/jobmodel"
	"github.com/hqlin/tcm-assistant/internal/metrics"
	"github.com/hqlin/tcm-assistant/internal/rag/llm"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

// threadLockStripes bounds the lock set: thread ids hash onto a fixed set
// of mutexes instead of growing a map entry per thread forever.
const threadLockStripes = 64

type Agent struct {
	provider llm.Provider
	registry *tools.Registry
	memory   jobmodel.MemoryStore
	maxSteps int
	logger   *logx.Logger

	locks [threadLockStripes]sync.Mutex
}

func New(provider llm.Provider, registry *tools.Registry, memory jobmodel.MemoryStore) *Agent {
	return &Agent{
		provider: provider,
		registry: registry,
		memory:   memory,
		maxSteps: config.AgentMaxSteps,
		logger:   logx.NewLogger("agent"),
	}
}

// Answer runs one conversation turn for the thread. Turns on the same
// thread are serialized; distinct threads proceed independently. The turn
// is committed to memory only when the model produced a final answer — a
// failed or exhausted turn leaves the thread history exactly as it was,
// and the user gets the fixed apology instead.
func (a *Agent) Answer(ctx context.Context, threadId string, question string) (string, error) {
	lock := a.threadLock(threadId)
	lock.Lock()
	defer lock.Unlock()

	loggr := a.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY), "thread", threadId)
	loggr.Info("Processing question", "question", question)

	history, err := a.memory.History(ctx, threadId)
	if err != nil {
		// a degraded turn beats no turn; the thread just loses context
		loggr.Error("Could not load thread history, continuing without it", "error", err)
		history = nil
	}

	msgs := replayHistory(history)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
	specs := a.registry.Specs()

	var exchanges []jobmodel.ToolExchange

	for step := 0; step < a.maxSteps; step++ {
		reply, err := a.provider.Chat(ctx, config.SystemPrompt, msgs, specs)
		if err != nil {
			loggr.Error("Model call failed, aborting turn", "step", step, "error", err)
			return config.ApologyAnswer, nil
		}

		if len(reply.ToolCalls) > 0 {
			msgs = append(msgs, llm.Message{
				Role:      llm.RoleAssistant,
				Content:   reply.Text,
				ToolCalls: reply.ToolCalls,
			})
			results := make([]llm.ToolResult, 0, len(reply.ToolCalls))
			for _, call := range reply.ToolCalls {
				loggr.Info("Dispatching tool call", "tool", call.Name, "step", step)
				metrics.IncrementToolCalls(call.Name)
				res := a.registry.Dispatch(ctx, call)
				results = append(results, res)
				exchanges = append(exchanges, jobmodel.ToolExchange{
					Name:   call.Name,
					Input:  call.Input,
					Output: res.Output,
				})
			}
			msgs = append(msgs, llm.Message{Role: llm.RoleTool, ToolResults: results})
			continue
		}

		if reply.Text != "" {
			a.commit(ctx, loggr, threadId, jobmodel.Turn{
				Question:  question,
				Answer:    reply.Text,
				ToolCalls: exchanges,
				At:        time.Now(),
			})
			loggr.Info("Generated answer", "steps", step+1)
			return reply.Text, nil
		}

		loggr.Warn("Model produced neither text nor tool calls, aborting turn", "step", step)
		return config.ApologyAnswer, nil
	}

	loggr.Warn("Step budget exhausted without a final answer", "maxSteps", a.maxSteps)
	return config.ApologyAnswer, nil
}

func (a *Agent) commit(ctx context.Context, loggr *logx.Logger, threadId string, turn jobmodel.Turn) {
	if err := a.memory.Append(ctx, threadId, turn); err != nil {
		// the answer still goes out; only continuity suffers
		loggr.Error("Could not persist turn to memory", "error", err)
	}
}

// threadLock maps a thread id onto its stripe. The same id always gets the
// same mutex; two ids sharing a stripe merely serialize against each other.
func (a *Agent) threadLock(threadId string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(threadId))
	return &a.locks[h.Sum32()%threadLockStripes]
}

// replayHistory reconstructs the model-visible message sequence from
// committed turns, tool traffic included. Call ids are synthesized since
// providers only require that a tool result references its call.
func replayHistory(history []jobmodel.Turn) []llm.Message {
	var msgs []llm.Message
	for ti, turn := range history {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: turn.Question})
		if len(turn.ToolCalls) > 0 {
			calls := make([]llm.ToolCall, 0, len(turn.ToolCalls))
			results := make([]llm.ToolResult, 0, len(turn.ToolCalls))
			for ci, ex := range turn.ToolCalls {
				id := fmt.Sprintf("replay-%d-%d", ti, ci)
				calls = append(calls, llm.ToolCall{ID: id, Name: ex.Name, Input: ex.Input})
				results = append(results, llm.ToolResult{CallID: id, Name: ex.Name, Output: ex.Output})
			}
			msgs = append(msgs,
				llm.Message{Role: llm.RoleAssistant, ToolCalls: calls},
				llm.Message{Role: llm.RoleTool, ToolResults: results},
			)
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: turn.Answer})
	}
	return msgs
}
