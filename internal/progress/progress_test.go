package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// stepClock advances by step on every call.
func stepClock(step time.Duration) func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

func TestBar(t *testing.T) {
	assert.Equal(t, "[##........]", bar(0.25, 10))
	assert.Equal(t, "[..........]", bar(-1, 10))
	assert.Equal(t, "[##########]", bar(2, 10))
}

func TestClock(t *testing.T) {
	assert.Equal(t, "0:00", clock(0))
	assert.Equal(t, "1:05", clock(65*time.Second))
	assert.Equal(t, "12:00", clock(12*time.Minute))
}

func TestPlainDisplayThrottlesSegments(t *testing.T) {
	var buf bytes.Buffer
	d := newDisplay(&buf, false, 80, time.Now)

	d.Handle(Event{Stage: StageSegment, Message: "Segmented 25 utterances"})
	for i := 1; i <= 25; i++ {
		d.Handle(Event{Stage: StageSynthesize, Message: "Synthesizing", SegmentNum: i, SegmentTotal: 25})
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1+3, "segment lines at 10, 20 and 25 only")
	assert.Contains(t, lines[0], "segment: Segmented 25 utterances")
	assert.Contains(t, lines[3], "synthesize: Synthesizing (25/25)")
}

func TestFinishPublished(t *testing.T) {
	var buf bytes.Buffer
	d := newDisplay(&buf, false, 80, stepClock(time.Second))

	d.Handle(Event{Stage: StageScript, Message: "Generating script"})
	d.Handle(Event{Stage: StageSynthesize, Message: "Synthesizing", SegmentNum: 1, SegmentTotal: 2})
	d.Handle(Event{Stage: StageSynthesize, Message: "Synthesizing", SegmentNum: 2, SegmentTotal: 2})
	d.Handle(Event{Stage: StageComplete, Message: "Published", AudioURL: "file:///out/audio/x.mp3", Duration: "3:10", SizeMB: 2.5})
	buf.Reset()
	d.Finish()

	out := buf.String()
	assert.Contains(t, out, "Published file:///out/audio/x.mp3")
	assert.Contains(t, out, "3:10 of audio, 2.5 MB, 2 segments")
	assert.Contains(t, out, "Took 0:04 (script 0:01, synthesize 0:02)")
}

func TestFinishWithoutAudio(t *testing.T) {
	var buf bytes.Buffer
	d := newDisplay(&buf, false, 80, time.Now)
	d.Handle(Event{Stage: StageComplete, Message: "Script saved"})
	buf.Reset()
	d.Finish()
	assert.Contains(t, buf.String(), "  Script saved\n")
	assert.NotContains(t, buf.String(), "Published")
}

func TestFinishFailed(t *testing.T) {
	var buf bytes.Buffer
	d := newDisplay(&buf, false, 80, time.Now)
	d.Handle(Event{Stage: StageSynthesize, Message: "Synthesizing", Percent: 0.4, SegmentNum: 1, SegmentTotal: 3})
	d.Handle(Event{Stage: StageFailed, Message: "Failed", Error: errors.New("segment 2: quota")})

	assert.Equal(t, 0.4, d.last.Percent, "a failure keeps the bar where it was")
	buf.Reset()
	d.Finish()
	assert.Contains(t, buf.String(), "Failed during synthesize: segment 2: quota")
}

func TestTTYDisplayRedraws(t *testing.T) {
	var buf bytes.Buffer
	d := newDisplay(&buf, true, 80, stepClock(10*time.Second))

	d.Handle(Event{Stage: StageScript, Message: "Generating script", Percent: 0.2})
	d.Handle(Event{Stage: StageSynthesize, Message: "Synthesizing", Percent: 0.3})
	d.Handle(Event{Stage: StageSynthesize, Message: "Synthesizing", Percent: 0.5, SegmentNum: 2, SegmentTotal: 6})

	out := buf.String()
	assert.Contains(t, out, "\033[2K")
	assert.Contains(t, out, " 50%")
	// Two segments took 10s since synthesis began, four remain.
	assert.Contains(t, out, "segment 2/6  ~0:20 left")
	assert.Equal(t, 3, d.drawn)
}

func TestMulti(t *testing.T) {
	var got []Stage
	cb := Multi(nil, func(e Event) { got = append(got, e.Stage) }, NopCallback)
	cb(Event{Stage: StageAssemble})
	assert.Equal(t, []Stage{StageAssemble}, got)
}
