package dotflow

import (
	"log/slog"
	"time"
)

// EventType identifies an engine lifecycle event.
type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventRunCompleted    EventType = "run.completed"
	EventRunFailed       EventType = "run.failed"
	EventStageStarted    EventType = "stage.started"
	EventStageCompleted  EventType = "stage.completed"
	EventStageFailed     EventType = "stage.failed"
	EventStageRetrying   EventType = "stage.retrying"
	EventCheckpointSaved EventType = "checkpoint.saved"
)

// Event is one lifecycle notification emitted during a run. Stage
// events carry the node id; run events leave it empty. Data holds
// event-specific detail such as the outcome status or error text.
type Event struct {
	Type      EventType
	RunID     string
	NodeID    string
	Timestamp time.Time
	Data      map[string]any
}

// EventEmitter receives engine lifecycle events. Emit is called from
// the traversal loop, so implementations should return quickly and
// must never panic the run; hand slow consumers a bus subscription
// instead.
type EventEmitter interface {
	Emit(ev Event)
}

// NoopEmitter discards every event. It backs engines constructed
// without an emitter.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a function to the EventEmitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

// MultiEmitter fans one event out to several emitters in order.
type MultiEmitter []EventEmitter

func (m MultiEmitter) Emit(ev Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ev)
		}
	}
}

// LogEmitter writes events to a structured logger, one line per event.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger uses slog.Default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(ev Event) {
	attrs := make([]any, 0, 8)
	attrs = append(attrs, "run_id", ev.RunID)
	if ev.NodeID != "" {
		attrs = append(attrs, "node_id", ev.NodeID)
	}
	for k, v := range ev.Data {
		attrs = append(attrs, k, v)
	}
	l.logger.Info(string(ev.Type), attrs...)
}
