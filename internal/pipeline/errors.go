package pipeline

import (
	"errors"
	"fmt"

	"github.com/apresai/papercast/internal/assembly"
	"github.com/apresai/papercast/internal/tts"
)

// Kind lets callers tell bad input apart from collaborator and local
// resource failures.
type Kind string

const (
	KindInput    Kind = "input"
	KindProvider Kind = "provider"
	KindResource Kind = "resource"
)

// Error is the failure of one pipeline state.
type Error struct {
	Stage   State
	Kind    Kind
	Segment int // failing utterance ordinal, or -1
	Message string
	Err     error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s/%s]", e.Stage, e.Kind)
	if e.Segment >= 0 {
		prefix = fmt.Sprintf("[%s/%s segment %d]", e.Stage, e.Kind, e.Segment)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func inputError(stage State, msg string) *Error {
	return &Error{Stage: stage, Kind: KindInput, Segment: -1, Message: msg}
}

func synthesisError(err error) *Error {
	e := &Error{Stage: StateSynthesizing, Kind: KindProvider, Segment: -1, Message: "synthesis failed", Err: err}
	var segErr *tts.SegmentError
	if errors.As(err, &segErr) {
		e.Segment = segErr.Index
	}
	return e
}

func assemblyError(err error) *Error {
	e := &Error{Stage: StateAssembling, Segment: -1, Err: err}
	switch {
	case errors.Is(err, assembly.ErrNoAudio):
		e.Kind, e.Message = KindInput, "nothing to assemble"
	case errors.Is(err, assembly.ErrScratch):
		e.Kind, e.Message = KindResource, "scratch storage failed"
	default:
		e.Kind, e.Message = KindProvider, "publish failed"
	}
	return e
}

// KindOf reports the kind of a pipeline error, or "" for anything else.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
