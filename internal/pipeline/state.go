package pipeline

import (
	"time"

	"github.com/apresai/papercast/internal/progress"
)

// State is a step of the audio pipeline. States advance strictly in
// declaration order; Published and Failed are terminal.
type State string

const (
	StateIngesting     State = "ingesting"
	StateScripting     State = "scripting"
	StateReceived      State = "received"
	StateCleaned       State = "cleaned"
	StateLengthBounded State = "length_bounded"
	StateSegmented     State = "segmented"
	StateSynthesizing  State = "synthesizing"
	StateAssembling    State = "assembling"
	StatePublished     State = "published"
	StateFailed        State = "failed"
)

// Transition records entry into a state.
type Transition struct {
	State State
	At    time.Time
}

func (s State) Terminal() bool {
	return s == StatePublished || s == StateFailed
}

// stageFor maps a pipeline state to the coarser progress stage.
func stageFor(s State) progress.Stage {
	switch s {
	case StateIngesting:
		return progress.StageIngest
	case StateScripting:
		return progress.StageScript
	case StateSynthesizing:
		return progress.StageSynthesize
	case StateAssembling:
		return progress.StageAssemble
	case StatePublished:
		return progress.StageComplete
	case StateFailed:
		return progress.StageFailed
	default:
		return progress.StageSegment
	}
}

var stateMessages = map[State]string{
	StateIngesting:     "Ingesting source...",
	StateScripting:     "Generating script...",
	StateReceived:      "Received transcript",
	StateCleaned:       "Cleaned transcript",
	StateLengthBounded: "Applied length budget",
	StateSegmented:     "Segmented transcript",
	StateSynthesizing:  "Synthesizing audio...",
	StateAssembling:    "Assembling episode...",
	StatePublished:     "Published",
	StateFailed:        "Failed",
}

// Percent positions for the audio states; synthesis fills the gap between
// synthStart and synthEnd segment by segment.
const (
	synthStart = 0.10
	synthEnd   = 0.90
)

var statePercent = map[State]float64{
	StateReceived:      0,
	StateCleaned:       0.02,
	StateLengthBounded: 0.04,
	StateSegmented:     0.06,
	StateSynthesizing:  synthStart,
	StateAssembling:    0.92,
	StatePublished:     1,
}
