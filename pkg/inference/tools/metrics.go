package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// ToolStats aggregates executions of one tool.
type ToolStats struct {
	Calls         int           `json:"calls" yaml:"calls"`
	Errors        int           `json:"errors" yaml:"errors"`
	InputBytes    int64         `json:"input_bytes" yaml:"input_bytes"`
	OutputBytes   int64         `json:"output_bytes" yaml:"output_bytes"`
	OutputTokens  int64         `json:"output_tokens" yaml:"output_tokens"`
	TotalDuration time.Duration `json:"total_duration" yaml:"total_duration"`
	MaxDuration   time.Duration `json:"max_duration" yaml:"max_duration"`
}

func (s *ToolStats) add(o ToolStats) {
	s.Calls += o.Calls
	s.Errors += o.Errors
	s.InputBytes += o.InputBytes
	s.OutputBytes += o.OutputBytes
	s.OutputTokens += o.OutputTokens
	s.TotalDuration += o.TotalDuration
	if o.MaxDuration > s.MaxDuration {
		s.MaxDuration = o.MaxDuration
	}
}

func (s ToolStats) AvgDuration() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Calls)
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Since   time.Time            `json:"since" yaml:"since"`
	Total   ToolStats            `json:"total" yaml:"total"`
	PerTool map[string]ToolStats `json:"per_tool" yaml:"per_tool"`
}

// Metrics accumulates tool execution statistics for the lifetime of one agent.
type Metrics struct {
	mu      sync.Mutex
	since   time.Time
	perTool map[string]*ToolStats
}

func NewMetrics() *Metrics {
	return &Metrics{
		since:   time.Now(),
		perTool: map[string]*ToolStats{},
	}
}

// Record adds one execution.
func (m *Metrics) Record(toolName string, inputBytes int, output string, d time.Duration, isError bool) {
	tokens := CountTokens(output)

	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.perTool[toolName]
	if !ok {
		st = &ToolStats{}
		m.perTool[toolName] = st
	}
	one := ToolStats{
		Calls:         1,
		InputBytes:    int64(inputBytes),
		OutputBytes:   int64(len(output)),
		OutputTokens:  int64(tokens),
		TotalDuration: d,
		MaxDuration:   d,
	}
	if isError {
		one.Errors = 1
	}
	st.add(one)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := MetricsSnapshot{Since: m.since, PerTool: make(map[string]ToolStats, len(m.perTool))}
	for name, st := range m.perTool {
		snap.PerTool[name] = *st
		snap.Total.add(*st)
	}
	return snap
}

// Reset drops all accumulated statistics.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = time.Now()
	m.perTool = map[string]*ToolStats{}
}

// Summary formats the snapshot as a small table.
func (m *Metrics) Summary() string {
	snap := m.Snapshot()
	if snap.Total.Calls == 0 {
		return "No tool calls recorded."
	}

	names := make([]string, 0, len(snap.PerTool))
	for name := range snap.PerTool {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Tool calls: %d (%d errors), %s in, %s out, ~%d tokens out\n",
		snap.Total.Calls, snap.Total.Errors,
		formatBytes(snap.Total.InputBytes), formatBytes(snap.Total.OutputBytes), snap.Total.OutputTokens)
	for _, name := range names {
		st := snap.PerTool[name]
		fmt.Fprintf(&sb, "  %-16s calls=%-3d errors=%-3d avg=%-8s max=%-8s out=%s\n",
			name, st.Calls, st.Errors,
			st.AvgDuration().Round(time.Millisecond), st.MaxDuration.Round(time.Millisecond),
			formatBytes(st.OutputBytes))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// CountTokens approximates the number of model tokens in s using cl100k_base. If the
// codec cannot be loaded or fails on s it falls back to len/4.
func CountTokens(s string) int {
	if s == "" {
		return 0
	}
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("tools: tokenizer unavailable, estimating tokens")
			return
		}
		codec = c
	})
	if codec == nil {
		return (len(s) + 3) / 4
	}
	ids, _, err := codec.Encode(s)
	if err != nil {
		return (len(s) + 3) / 4
	}
	return len(ids)
}
