package ports

import (
	"context"

	"hypocycle/domain/plan"
)

// ReasoningPort decides whether a hypothesis is a recognized class and, if so,
// which single-parameter sweep tests it. Implementations must be
// deterministic for the same (hypothesis, schemaVersion) pair.
type ReasoningPort interface {
	Interpret(ctx context.Context, hypothesis, schemaVersion string) (plan.Interpretation, error)
}
