// ABOUTME: Lifecycle events emitted by the orchestrator during a run, delivered
// ABOUTME: through an optional callback for CLIs and servers to observe progress.
package pipeline

import "time"

// EventType identifies the kind of orchestrator lifecycle event.
type EventType string

const (
	EventPipelineStarted   EventType = "pipeline.started"
	EventPipelineCompleted EventType = "pipeline.completed"
	EventPipelineFailed    EventType = "pipeline.failed"
	EventStepStarted       EventType = "step.started"
	EventStepCompleted     EventType = "step.completed"
	EventStepFailed        EventType = "step.failed"
	EventStepRetrying      EventType = "step.retrying"
)

// Event represents a lifecycle event emitted during pipeline execution.
type Event struct {
	Type      EventType
	Step      string
	Data      map[string]any
	Timestamp time.Time
}
