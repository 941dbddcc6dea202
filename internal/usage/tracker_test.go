package usage

import (
	"context"
	"sync"
	"testing"

	"hypocycle/internal/metrics"
	"hypocycle/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Aggregates(t *testing.T) {
	tr := NewTracker(nil, nil)
	ctx := context.Background()

	tr.RecordUsage(ctx, "interpret", &ports.UsageData{Model: "b", Provider: "anthropic", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	tr.RecordUsage(ctx, "interpret", &ports.UsageData{Model: "b", Provider: "anthropic", PromptTokens: 1, CompletionTokens: 2})
	tr.RecordUsage(ctx, "interpret", &ports.UsageData{Model: "a", Provider: "mock"})

	sums := tr.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, "a", sums[0].Model)
	assert.Equal(t, "b", sums[1].Model)
	assert.Equal(t, 2, sums[1].Calls)
	assert.Equal(t, 11, sums[1].PromptTokens)
	assert.Equal(t, 18, sums[1].TotalTokens)
	assert.Equal(t, 2, sums[1].Operations["interpret"])
	assert.Equal(t, 18, tr.TotalTokens())
}

func TestTracker_DropsInvalid(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.RecordUsage(context.Background(), "interpret", nil)
	tr.RecordUsage(context.Background(), "interpret", &ports.UsageData{Model: "m", PromptTokens: -1})

	assert.Empty(t, tr.Summaries())
}

func TestTracker_SummariesAreCopies(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.RecordUsage(context.Background(), "interpret", &ports.UsageData{Model: "m", PromptTokens: 1})

	sums := tr.Summaries()
	sums[0].Operations["interpret"] = 99
	assert.Equal(t, 1, tr.Summaries()[0].Operations["interpret"])
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordUsage(context.Background(), "interpret", &ports.UsageData{Model: "m", PromptTokens: 2, CompletionTokens: 1})
		}()
	}
	wg.Wait()
	assert.Equal(t, 150, tr.TotalTokens())
}

func TestTracker_Metrics(t *testing.T) {
	rec := metrics.NewRecorder()
	tr := NewTracker(rec, nil)
	tr.RecordUsage(context.Background(), "interpret", &ports.UsageData{Model: "m", PromptTokens: 7, CompletionTokens: 3})

	families, err := rec.Registry().Gather()
	require.NoError(t, err)

	tokens := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "hypocycle_llm_tokens_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "direction" {
					tokens[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"prompt": 7, "completion": 3}, tokens)
}
