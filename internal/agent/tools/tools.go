// Package tools holds the closed set of tools the conversation agent may
// call. Tool failures are folded into result strings so the model always
// gets something to reason over.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hqlin/tcm-assistant/internal/almanac"
	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/rag/llm"
	"github.com/hqlin/tcm-assistant/internal/rag/vectorindex"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

const (
	// NoDataAnswer is what the retrieval tool reports on a miss or before
	// any corpus has been ingested. The model treats it as a signal, not an
	// answer.
	NoDataAnswer = "I couldn't find any relevant information in the documents for your query."

	// SearchFailedAnswer stands in for the result when the search itself
	// errors; the turn continues.
	SearchFailedAnswer = "I encountered an error while searching the documents."
)

type Tool interface {
	Spec() llm.ToolSpec
	Invoke(ctx context.Context, input string) string
}

// Registry dispatches model tool calls by name.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		name := t.Spec().Name
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r
}

// Specs lists the tool declarations in registration order.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// Dispatch runs one tool call and always produces a result, even for
// unknown tools or malformed arguments.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	result := llm.ToolResult{CallID: call.ID, Name: call.Name}

	tool, ok := r.tools[call.Name]
	if !ok {
		result.Output = fmt.Sprintf("unknown tool: %s", call.Name)
		return result
	}

	input := ""
	if param := tool.Spec().ParamName; param != "" && call.Input != "" {
		var args map[string]any
		if err := json.Unmarshal([]byte(call.Input), &args); err != nil {
			result.Output = fmt.Sprintf("invalid arguments for %s: %v", call.Name, err)
			return result
		}
		if s, ok := args[param].(string); ok {
			input = s
		}
	}

	result.Output = tool.Invoke(ctx, input)
	return result
}

// RetrievalTool searches the knowledge base and hands back the matching
// passages joined as paragraphs.
type RetrievalTool struct {
	index  vectorindex.Searcher
	topK   int
	logger *logx.Logger
}

func NewRetrievalTool(index vectorindex.Searcher) *RetrievalTool {
	return &RetrievalTool{
		index:  index,
		topK:   config.RetrievalTopK,
		logger: logx.NewLogger("tool_search"),
	}
}

func (t *RetrievalTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "search_documents",
		Description: "Search for relevant documents in Chinese Traditional Medicine.",
		ParamName:   "query",
		ParamDesc:   "The search query：e.g: 熱、寒、咳嗽、頭痛穴道",
	}
}

func (t *RetrievalTool) Invoke(ctx context.Context, query string) string {
	loggr := t.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY))
	loggr.Info("Searching documents", "query", query)

	if !t.index.Populated() {
		loggr.Warn("Search before any corpus was ingested")
		return NoDataAnswer
	}

	matches, err := t.index.Search(ctx, query, t.topK)
	if err != nil {
		loggr.Error("Error searching documents", "error", err)
		return SearchFailedAnswer
	}
	if len(matches) == 0 || strings.TrimSpace(matches[0]) == "" {
		loggr.Warn("No relevant documents found", "query", query)
		return NoDataAnswer
	}

	loggr.Info("Found relevant documents", "count", len(matches))
	return strings.Join(matches, "\n\n")
}

// TemporalTool reports the current time in traditional terms: shichen,
// season and solar terms.
type TemporalTool struct {
	now    func() time.Time
	logger *logx.Logger
}

func NewTemporalTool() *TemporalTool {
	return &TemporalTool{now: time.Now, logger: logx.NewLogger("tool_time")}
}

func (t *TemporalTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "get_time_and_season",
		Description: "Get current time information including traditional Chinese time, period and season. 獲取當前的節氣、時辰",
	}
}

func (t *TemporalTool) Invoke(ctx context.Context, _ string) string {
	result := almanac.Describe(t.now())
	t.logger.Info("Time information", "result", result)
	return result
}
