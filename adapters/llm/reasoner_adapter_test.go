package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"hypocycle/adapters/llm/heuristic"
	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/ports"
)

func densityPlanJSON(t *testing.T) string {
	t.Helper()
	interp, err := heuristic.NewReasoner(nil).Interpret(context.Background(),
		"p53 accumulation varies with cell density", spec.SchemaVersion)
	if err != nil {
		t.Fatalf("heuristic interpret: %v", err)
	}
	raw, err := json.Marshal(planResponse{Recognized: true, Plan: interp.Plan})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func TestInterpret_RecognizedPlan(t *testing.T) {
	client := &MockLLMClient{Response: "```json\n" + densityPlanJSON(t) + "\n```"}
	adapter := NewReasonerAdapterWithClient(Config{Model: "test-model"}, client, nil, nil)

	got, err := adapter.Interpret(context.Background(), "p53 accumulation varies with cell density", spec.SchemaVersion)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsRecognized() {
		t.Fatalf("expected recognized interpretation, got %+v", got)
	}
	if got.Source != Source {
		t.Errorf("expected source %q, got %q", Source, got.Source)
	}
	if got.Plan.Topic != "p53_density_exp" || len(got.Plan.Values) != 4 {
		t.Errorf("unexpected plan: %+v", got.Plan)
	}
	if !strings.Contains(client.Prompts[0], spec.FieldCellDensity) {
		t.Error("prompt should list the sweepable fields")
	}
}

func TestInterpret_CachesPerHypothesis(t *testing.T) {
	client := &MockLLMClient{Response: densityPlanJSON(t)}
	adapter := NewReasonerAdapterWithClient(Config{Model: "test-model"}, client, nil, nil)
	ctx := context.Background()

	first, err := adapter.Interpret(ctx, "p53 accumulation varies with cell density", spec.SchemaVersion)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first.Plan.Values[0] = -1

	second, err := adapter.Interpret(ctx, "p53 accumulation varies with cell density", spec.SchemaVersion)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Calls != 1 {
		t.Errorf("expected one LLM call, got %d", client.Calls)
	}
	if second.Plan.Values[0] != 25000 {
		t.Errorf("cached plan was aliased: %v", second.Plan.Values)
	}
}

func TestInterpret_Unrecognized(t *testing.T) {
	client := &MockLLMClient{Response: `Sure! {"recognized": false, "reason": "not a single-parameter sweep"}`}
	adapter := NewReasonerAdapterWithClient(Config{Model: "test-model"}, client, nil, nil)

	got, err := adapter.Interpret(context.Background(), "unrelated nonsense topic", spec.SchemaVersion)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsRecognized() {
		t.Fatal("expected unrecognized")
	}
	if got.Reason != "not a single-parameter sweep" {
		t.Errorf("unexpected reason %q", got.Reason)
	}
}

func TestInterpret_InvalidPlanIsSchemaViolation(t *testing.T) {
	client := &MockLLMClient{Response: `{"recognized": true, "plan": {"topic": "x", "varying_field": "biological_context.cell_density", "values": [1], "template": {"schema_version": "1.0.0"}}}`}
	adapter := NewReasonerAdapterWithClient(Config{Model: "test-model"}, client, nil, nil)

	_, err := adapter.Interpret(context.Background(), "p53 rises with cell density", spec.SchemaVersion)
	if !core.IsSchemaViolation(err) {
		t.Fatalf("expected schema violation, got %v", err)
	}
}

func TestInterpret_FallbackToHeuristic(t *testing.T) {
	client := &MockLLMClient{Error: errors.New("rate limited")}
	adapter := NewReasonerAdapterWithClient(
		Config{Model: "test-model", FallbackToHeuristic: true},
		client, heuristic.NewReasoner(nil), nil)

	got, err := adapter.Interpret(context.Background(), "p53 accumulation varies with cell density", spec.SchemaVersion)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Source != heuristic.Source {
		t.Errorf("expected heuristic source, got %q", got.Source)
	}

	noFallback := NewReasonerAdapterWithClient(Config{Model: "test-model"}, client, nil, nil)
	if _, err := noFallback.Interpret(context.Background(), "p53 accumulation varies with cell density", spec.SchemaVersion); err == nil {
		t.Fatal("expected error without fallback")
	}
}

func TestInterpret_VersionMismatch(t *testing.T) {
	client := &MockLLMClient{Response: densityPlanJSON(t)}
	adapter := NewReasonerAdapterWithClient(Config{Model: "test-model"}, client, nil, nil)

	_, err := adapter.Interpret(context.Background(), "p53 accumulation varies with cell density", "0.1.0")
	if !core.IsSchemaViolation(err) {
		t.Fatalf("expected schema violation, got %v", err)
	}
	if client.Calls != 0 {
		t.Error("the model must not be called for a mismatched schema version")
	}
}

func TestCleanJSONContent(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		"Here you go: {\"a\":1}":  `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
	}
	for in, want := range tests {
		if got := cleanJSONContent(in); got != want {
			t.Errorf("cleanJSONContent(%q) = %q, want %q", in, got, want)
		}
	}
}

type usageRecords struct {
	ops    []string
	models []string
}

func (u *usageRecords) RecordUsage(ctx context.Context, operation string, usage *ports.UsageData) {
	u.ops = append(u.ops, operation)
	u.models = append(u.models, usage.Model)
}

func TestInterpret_ReportsUsageOncePerCall(t *testing.T) {
	client := &MockLLMClient{Response: densityPlanJSON(t)}
	rec := &usageRecords{}
	adapter := NewReasonerAdapterWithClient(Config{Model: "test-model"}, client, nil, nil).WithUsage(rec)

	for i := 0; i < 2; i++ {
		if _, err := adapter.Interpret(context.Background(), "p53 accumulation varies with cell density", spec.SchemaVersion); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(rec.ops) != 1 || rec.ops[0] != "interpret" || rec.models[0] != "test-model" {
		t.Errorf("unexpected usage records: %+v", rec)
	}
}
