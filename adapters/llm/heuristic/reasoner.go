package heuristic

import (
	"context"
	"strings"

	"hypocycle/domain/plan"
	"hypocycle/domain/spec"
)

// Source tags interpretations produced by this package.
const Source = "heuristic"

// Reasoner interprets hypotheses with a deterministic pattern table.
type Reasoner struct {
	catalog *Catalog
}

// NewReasoner creates a heuristic reasoner. A nil catalog uses DefaultCatalog.
func NewReasoner(catalog *Catalog) *Reasoner {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Reasoner{catalog: catalog}
}

// Interpret matches the normalized hypothesis against the catalog.
func (r *Reasoner) Interpret(ctx context.Context, hypothesis, schemaVersion string) (plan.Interpretation, error) {
	if err := ctx.Err(); err != nil {
		return plan.Interpretation{}, err
	}
	if err := spec.CheckVersion(schemaVersion); err != nil {
		return plan.Interpretation{}, err
	}

	normalized := Normalize(hypothesis)
	if normalized == "" {
		return plan.Unrecognized(Source, "empty hypothesis"), nil
	}
	pattern, ok := r.catalog.Match(normalized)
	if !ok {
		return plan.Unrecognized(Source, "no known hypothesis pattern matched"), nil
	}
	return plan.Recognized(Source, pattern.Plan()), nil
}

// Normalize lowercases and collapses whitespace.
func Normalize(hypothesis string) string {
	return strings.Join(strings.Fields(strings.ToLower(hypothesis)), " ")
}
