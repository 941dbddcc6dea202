package ports

import (
	"time"

	"hypocycle/domain/core"
)

// Cycle event types, in the order a successful cycle emits them
const (
	EventCycleStarted   = "cycle_started"
	EventInterpreted    = "interpreted"
	EventExecuted       = "executed"
	EventAnalyzed       = "analyzed"
	EventCycleCompleted = "cycle_completed"
	EventCycleFailed    = "cycle_failed"
)

// CycleEvent reports the progress of one cycle.
type CycleEvent struct {
	CycleID   core.CycleID   `json:"cycle_id"`
	Type      string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// CycleEventSink receives cycle events. Publish must not block.
type CycleEventSink interface {
	Publish(event CycleEvent)
}
