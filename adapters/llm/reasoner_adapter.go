package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"hypocycle/domain/core"
	"hypocycle/domain/plan"
	"hypocycle/domain/spec"
	"hypocycle/ports"

	"go.uber.org/zap"
)

// Source tags interpretations produced by this package.
const Source = "llm"

// Config holds LLM adapter configuration
type Config struct {
	Model               string        // e.g., "claude-sonnet-4-5-20250929"
	APIKey              string        // Anthropic API key
	BaseURL             string        // Optional override
	Temperature         float64       // 0 keeps interpretations reproducible
	MaxTokens           int           // Max tokens in response
	Timeout             time.Duration // Request timeout
	FallbackToHeuristic bool          // Fallback to heuristic on error
}

// ReasonerAdapter implements ReasoningPort using an LLM. Answers are cached
// per (hypothesis, schema version) so repeated calls agree.
type ReasonerAdapter struct {
	config    Config
	llmClient ports.LLMClient
	fallback  ports.ReasoningPort
	usage     ports.UsageRecorder
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[core.Hash]plan.Interpretation
}

// NewReasonerAdapter creates a new LLM reasoning adapter
func NewReasonerAdapter(config Config, fallback ports.ReasoningPort, logger *zap.Logger) (*ReasonerAdapter, error) {
	client, err := newLLMClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewReasonerAdapterWithClient(config, client, fallback, logger), nil
}

// NewReasonerAdapterWithClient wires an explicit client, used by tests.
func NewReasonerAdapterWithClient(config Config, client ports.LLMClient, fallback ports.ReasoningPort, logger *zap.Logger) *ReasonerAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &ReasonerAdapter{
		config:    config,
		llmClient: client,
		fallback:  fallback,
		logger:    logger,
		cache:     make(map[core.Hash]plan.Interpretation),
	}
}

// WithUsage reports token usage of every model call to u.
func (a *ReasonerAdapter) WithUsage(u ports.UsageRecorder) *ReasonerAdapter {
	a.usage = u
	return a
}

// planResponse is the JSON shape the model is asked to produce.
type planResponse struct {
	Recognized bool            `json:"recognized"`
	Reason     string          `json:"reason"`
	Plan       *plan.SweepPlan `json:"plan"`
}

// Interpret asks the model for a sweep plan.
func (a *ReasonerAdapter) Interpret(ctx context.Context, hypothesis, schemaVersion string) (plan.Interpretation, error) {
	if err := spec.CheckVersion(schemaVersion); err != nil {
		return plan.Interpretation{}, err
	}
	key := core.NewHash([]byte(schemaVersion + "\x00" + strings.TrimSpace(hypothesis)))
	if cached, ok := a.cached(key); ok {
		return cached, nil
	}

	// GUARDRAIL: Timeout
	callCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	prompt := BuildPrompt(hypothesis, schemaVersion)
	resp, err := a.llmClient.ChatCompletionWithUsage(callCtx, a.config.Model, prompt, a.config.MaxTokens)
	if err != nil {
		return a.fallbackOr(ctx, hypothesis, schemaVersion, fmt.Errorf("LLM call failed: %w", err))
	}
	if resp.Usage != nil {
		a.logger.Debug("llm interpretation",
			zap.String("model", resp.Usage.Model),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.String("prompt_hash", core.NewHash([]byte(prompt)).Short()))
		if a.usage != nil {
			a.usage.RecordUsage(ctx, "interpret", resp.Usage)
		}
	}

	interp, err := ParseInterpretation(resp.Content, schemaVersion)
	if err != nil {
		return a.fallbackOr(ctx, hypothesis, schemaVersion, err)
	}
	a.store(key, interp)
	return interp, nil
}

func (a *ReasonerAdapter) fallbackOr(ctx context.Context, hypothesis, schemaVersion string, cause error) (plan.Interpretation, error) {
	if a.config.FallbackToHeuristic && a.fallback != nil {
		a.logger.Warn("llm interpretation failed, using heuristic fallback", zap.Error(cause))
		return a.fallback.Interpret(ctx, hypothesis, schemaVersion)
	}
	return plan.Interpretation{}, cause
}

func (a *ReasonerAdapter) cached(key core.Hash) (plan.Interpretation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	interp, ok := a.cache[key]
	if ok && interp.Plan != nil {
		p := interp.Plan.Clone()
		interp.Plan = &p
	}
	return interp, ok
}

func (a *ReasonerAdapter) store(key core.Hash, interp plan.Interpretation) {
	if interp.Plan != nil {
		p := interp.Plan.Clone()
		interp.Plan = &p
	}
	a.mu.Lock()
	a.cache[key] = interp
	a.mu.Unlock()
}

// BuildPrompt renders the interpretation request.
func BuildPrompt(hypothesis, schemaVersion string) string {
	var b strings.Builder
	b.WriteString("Decide whether the hypothesis below can be tested by sweeping ONE numeric parameter of a ")
	b.WriteString("cell-imaging sample specification while every other field stays fixed.\n\n")
	fmt.Fprintf(&b, "Hypothesis: %q\n", hypothesis)
	fmt.Fprintf(&b, "Schema version: %s\n", schemaVersion)
	fmt.Fprintf(&b, "Sweepable fields: %s\n\n", strings.Join(spec.SweepableFields(), ", "))
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"recognized": true|false, "reason": "...", "plan": {"topic": "snake_case_id_prefix", `)
	b.WriteString(`"varying_field": "...", "values": [ascending numbers, at least 2], "unit": "...", `)
	b.WriteString(`"measurement": {"label": "...", "unit": "...", "scale": number}, `)
	b.WriteString(`"template": {full sample specification with schema_version "` + schemaVersion + `"}}}`)
	b.WriteString("\nOmit plan when recognized is false.")
	return b.String()
}

// ParseInterpretation decodes and checks a model response.
func ParseInterpretation(content, schemaVersion string) (plan.Interpretation, error) {
	var resp planResponse
	if err := json.Unmarshal([]byte(cleanJSONContent(content)), &resp); err != nil {
		return plan.Interpretation{}, fmt.Errorf("failed to parse LLM response: %w", err)
	}
	if !resp.Recognized {
		reason := strings.TrimSpace(resp.Reason)
		if reason == "" {
			reason = "reasoning service did not recognize the hypothesis"
		}
		return plan.Unrecognized(Source, reason), nil
	}
	if resp.Plan == nil {
		return plan.Interpretation{}, core.NewSchemaViolation("plan", "sweep plan when recognized is true", "missing")
	}
	if resp.Plan.Template.SchemaVersion != schemaVersion {
		return plan.Interpretation{}, core.NewSchemaViolation("plan.template.schema_version", schemaVersion, resp.Plan.Template.SchemaVersion)
	}
	if err := resp.Plan.Validate(); err != nil {
		return plan.Interpretation{}, err
	}
	return plan.Recognized(Source, *resp.Plan), nil
}

// cleanJSONContent strips markdown fences and any chatter around the first
// JSON object.
func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
