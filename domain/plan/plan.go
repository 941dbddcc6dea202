package plan

import (
	"fmt"
	"math"
	"strings"

	"hypocycle/domain/core"
	"hypocycle/domain/spec"
)

// Status tags an Interpretation.
type Status string

const (
	StatusRecognized   Status = "recognized"
	StatusUnrecognized Status = "unrecognized"
)

// Measurement describes what the instrument reports for each sample.
type Measurement struct {
	Label string  `json:"label" yaml:"label"`
	Unit  string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Scale float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
}

// SweepPlan is a single-parameter experimental design: the template is
// copied once per value with VaryingField overridden.
type SweepPlan struct {
	Topic        string                   `json:"topic" yaml:"topic"` // sample id prefix
	VaryingField string                   `json:"varying_field" yaml:"varying_field"`
	Values       []float64                `json:"values" yaml:"values"`
	Unit         string                   `json:"unit,omitempty" yaml:"unit,omitempty"`
	Measurement  Measurement              `json:"measurement" yaml:"measurement"`
	Template     spec.SampleSpecification `json:"template" yaml:"template"`
}

// MinSweepPoints is the smallest sweep that supports trend analysis.
const MinSweepPoints = 2

// Validate checks the plan itself, before any spec is built from it.
func (p SweepPlan) Validate() error {
	if strings.TrimSpace(p.Topic) == "" {
		return core.NewSchemaViolation("plan.topic", "non-empty sample id prefix", "")
	}
	if !spec.IsSweepable(p.VaryingField) {
		return core.NewSchemaViolation("plan.varying_field",
			"one of "+strings.Join(spec.SweepableFields(), ", "), p.VaryingField)
	}
	if len(p.Values) < MinSweepPoints {
		return core.NewSchemaViolation("plan.values",
			fmt.Sprintf("at least %d sweep values", MinSweepPoints), fmt.Sprintf("%d", len(p.Values)))
	}
	seen := make(map[float64]bool, len(p.Values))
	for i, v := range p.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.NewSchemaViolation(fmt.Sprintf("plan.values[%d]", i), "finite number", fmt.Sprintf("%g", v))
		}
		if seen[v] {
			return core.NewSchemaViolation(fmt.Sprintf("plan.values[%d]", i), "distinct sweep values", fmt.Sprintf("%g", v))
		}
		seen[v] = true
	}
	if s := p.Measurement.Scale; s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return core.NewSchemaViolation("plan.measurement.scale", "finite number >= 0", fmt.Sprintf("%g", s))
	}
	return spec.CheckVersion(p.Template.SchemaVersion)
}

// Clone returns an independent copy of the plan.
func (p SweepPlan) Clone() SweepPlan {
	out := p
	out.Values = append([]float64(nil), p.Values...)
	out.Template = p.Template.Clone()
	return out
}

// Interpretation is the tagged result of a reasoning collaborator: either a
// recognized plan or an unrecognized signal with a reason.
type Interpretation struct {
	Status Status     `json:"status"`
	Plan   *SweepPlan `json:"plan,omitempty"`
	Source string     `json:"source"` // "heuristic" | "llm"
	Reason string     `json:"reason,omitempty"`
}

func Recognized(source string, p SweepPlan) Interpretation {
	return Interpretation{Status: StatusRecognized, Plan: &p, Source: source}
}

func Unrecognized(source, reason string) Interpretation {
	return Interpretation{Status: StatusUnrecognized, Source: source, Reason: reason}
}

// IsRecognized reports whether the interpretation carries a plan.
func (i Interpretation) IsRecognized() bool {
	return i.Status == StatusRecognized && i.Plan != nil
}

// Batch is the Interpreter's output: an ordered, validated set of specs and
// the plan that produced them.
type Batch struct {
	Hypothesis string                     `json:"hypothesis"`
	Source     string                     `json:"source"`
	Plan       SweepPlan                  `json:"plan"`
	Specs      []spec.SampleSpecification `json:"specs"`
}

// Len returns the number of specs in the batch.
func (b *Batch) Len() int {
	return len(b.Specs)
}
