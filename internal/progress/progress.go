package progress

import "time"

// Stage identifies which part of episode generation is active.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageScript     Stage = "script"
	StageSegment    Stage = "segment"
	StageSynthesize Stage = "synthesize"
	StageAssemble   Stage = "assemble"
	StageComplete   Stage = "complete"
	StageFailed     Stage = "failed"
)

// Event carries progress information from the pipeline to a renderer or
// record store.
type Event struct {
	Stage        Stage
	Message      string
	Percent      float64 // 0.0–1.0
	SegmentNum   int
	SegmentTotal int
	Elapsed      time.Duration
	Error        error
	// Set on StageComplete.
	AudioURL string
	Duration string
	SizeMB   float64
}

// Callback is the function signature for progress event handlers.
type Callback func(Event)

// NopCallback is a no-op progress callback for tests and silent mode.
func NopCallback(Event) {}

// NewEvent creates an Event with common fields populated.
func NewEvent(stage Stage, msg string, pct float64, start time.Time) Event {
	return Event{
		Stage:   stage,
		Message: msg,
		Percent: pct,
		Elapsed: time.Since(start),
	}
}

// Multi fans an event out to every non-nil callback.
func Multi(cbs ...Callback) Callback {
	return func(e Event) {
		for _, cb := range cbs {
			if cb != nil {
				cb(e)
			}
		}
	}
}
