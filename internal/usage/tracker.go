package usage

import (
	"context"
	"sort"
	"sync"

	"hypocycle/internal/metrics"
	"hypocycle/ports"

	"go.uber.org/zap"
)

// Summary aggregates usage for one model
type Summary struct {
	Model            string         `json:"model"`
	Provider         string         `json:"provider"`
	Calls            int            `json:"calls"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens"`
	Operations       map[string]int `json:"operations"`
}

// Tracker handles LLM usage accounting for the lifetime of the process
type Tracker struct {
	recorder *metrics.Recorder
	logger   *zap.Logger

	mu      sync.Mutex
	byModel map[string]*Summary
}

var _ ports.UsageRecorder = (*Tracker)(nil)

// NewTracker creates a tracker; recorder may be nil
func NewTracker(recorder *metrics.Recorder, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		recorder: recorder,
		logger:   logger,
		byModel:  make(map[string]*Summary),
	}
}

// RecordUsage adds one call's usage. Invalid data is logged and dropped so
// tracking never fails the caller.
func (t *Tracker) RecordUsage(ctx context.Context, operation string, u *ports.UsageData) {
	if u == nil {
		t.logger.Warn("nil usage data provided", zap.String("operation", operation))
		return
	}
	if u.PromptTokens < 0 || u.CompletionTokens < 0 || u.TotalTokens < 0 {
		t.logger.Warn("invalid token counts",
			zap.String("operation", operation),
			zap.Int("prompt_tokens", u.PromptTokens),
			zap.Int("completion_tokens", u.CompletionTokens))
		return
	}

	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}

	t.mu.Lock()
	s, ok := t.byModel[u.Model]
	if !ok {
		s = &Summary{Model: u.Model, Provider: u.Provider, Operations: map[string]int{}}
		t.byModel[u.Model] = s
	}
	s.Calls++
	s.PromptTokens += u.PromptTokens
	s.CompletionTokens += u.CompletionTokens
	s.TotalTokens += total
	s.Operations[operation]++
	t.mu.Unlock()

	t.recorder.LLMTokens(u.Model, u.PromptTokens, u.CompletionTokens)
}

// Summaries returns a copy of the per-model totals, sorted by model
func (t *Tracker) Summaries() []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Summary, 0, len(t.byModel))
	for _, s := range t.byModel {
		c := *s
		c.Operations = make(map[string]int, len(s.Operations))
		for k, v := range s.Operations {
			c.Operations[k] = v
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// TotalTokens returns the token count across all models
func (t *Tracker) TotalTokens() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, s := range t.byModel {
		total += s.TotalTokens
	}
	return total
}
