package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

// Display renders episode progress for the CLI. On a terminal it redraws a
// stage line, a bar and, while synthesizing, a segment counter with an
// estimate of the time left. Elsewhere it prints one line per stage change
// and every tenth segment.
type Display struct {
	out   io.Writer
	tty   bool
	width int
	start time.Time
	now   func() time.Time

	last     Event
	spans    []span
	segments int
	drawn    int // lines to erase before the next redraw
}

// span is the wall time one stage was active.
type span struct {
	stage      Stage
	began, end time.Time
}

// NewDisplay writes to out, detecting whether it is a terminal and how
// wide it is.
func NewDisplay(out *os.File) *Display {
	tty := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
	width := 80
	if tty {
		if w, _, err := term.GetSize(out.Fd()); err == nil && w > 0 {
			width = w
		}
	}
	return newDisplay(out, tty, width, time.Now)
}

func newDisplay(out io.Writer, tty bool, width int, now func() time.Time) *Display {
	return &Display{out: out, tty: tty, width: width, start: now(), now: now}
}

// Handle records an event and redraws. It satisfies Callback.
func (d *Display) Handle(e Event) {
	now := d.now()
	e.Elapsed = now.Sub(d.start)
	switch e.Stage {
	case StageComplete:
		e.Percent = 1
	case StageFailed:
		e.Percent = d.last.Percent
	}
	if e.SegmentTotal > d.segments {
		d.segments = e.SegmentTotal
	}
	d.enter(e.Stage, now)
	d.last = e

	if d.tty {
		d.redraw(e, now)
		return
	}
	d.print(e)
}

// enter closes the open span when the stage changes. Terminal stages only
// close.
func (d *Display) enter(s Stage, now time.Time) {
	if n := len(d.spans); n > 0 {
		open := &d.spans[n-1]
		if open.stage == s && open.end.IsZero() {
			return
		}
		if open.end.IsZero() {
			open.end = now
		}
	}
	if s == StageComplete || s == StageFailed {
		return
	}
	d.spans = append(d.spans, span{stage: s, began: now})
}

func (d *Display) current() (span, bool) {
	if len(d.spans) == 0 {
		return span{}, false
	}
	return d.spans[len(d.spans)-1], true
}

// remaining extrapolates the average segment time so far over the segments
// still to go.
func (d *Display) remaining(e Event, now time.Time) (time.Duration, bool) {
	cur, ok := d.current()
	if !ok || cur.stage != StageSynthesize || e.SegmentNum <= 0 || e.SegmentNum >= e.SegmentTotal {
		return 0, false
	}
	per := now.Sub(cur.began) / time.Duration(e.SegmentNum)
	return per * time.Duration(e.SegmentTotal-e.SegmentNum), true
}

func (d *Display) redraw(e Event, now time.Time) {
	d.erase()

	lines := []string{
		fmt.Sprintf("  %-10s %s", e.Stage, e.Message),
		fmt.Sprintf("  %s %3d%%  %s", bar(e.Percent, d.barWidth()), int(e.Percent*100), clock(e.Elapsed)),
	}
	if e.SegmentTotal > 0 {
		seg := fmt.Sprintf("  segment %d/%d", e.SegmentNum, e.SegmentTotal)
		if left, ok := d.remaining(e, now); ok {
			seg += fmt.Sprintf("  ~%s left", clock(left))
		}
		lines = append(lines, seg)
	}
	fmt.Fprint(d.out, strings.Join(lines, "\n"))
	d.drawn = len(lines)
}

func (d *Display) print(e Event) {
	if e.SegmentTotal > 0 {
		if e.SegmentNum != e.SegmentTotal && e.SegmentNum%10 != 0 {
			return
		}
		fmt.Fprintf(d.out, "[%s] %s: %s (%d/%d)\n", clock(e.Elapsed), e.Stage, e.Message, e.SegmentNum, e.SegmentTotal)
		return
	}
	fmt.Fprintf(d.out, "[%s] %s: %s\n", clock(e.Elapsed), e.Stage, e.Message)
}

func (d *Display) erase() {
	if d.drawn == 0 {
		return
	}
	fmt.Fprint(d.out, "\r\033[2K")
	for i := 1; i < d.drawn; i++ {
		fmt.Fprint(d.out, "\033[A\033[2K")
	}
	fmt.Fprint(d.out, "\r")
	d.drawn = 0
}

// Finish clears the live display and prints the outcome with a per-stage
// timing breakdown.
func (d *Display) Finish() {
	d.erase()
	e := d.last

	if e.Error != nil {
		failedIn := "run"
		if cur, ok := d.current(); ok {
			failedIn = string(cur.stage)
		}
		fmt.Fprintf(d.out, "\n  Failed during %s: %v\n", failedIn, e.Error)
		return
	}
	if e.Stage != StageComplete {
		return
	}

	if e.AudioURL == "" {
		fmt.Fprintf(d.out, "\n  %s\n", e.Message)
	} else {
		fmt.Fprintf(d.out, "\n  Published %s\n", e.AudioURL)
		details := []string{fmt.Sprintf("%.1f MB", e.SizeMB)}
		if e.Duration != "" {
			details = append([]string{e.Duration + " of audio"}, details...)
		}
		if d.segments > 0 {
			details = append(details, fmt.Sprintf("%d segments", d.segments))
		}
		fmt.Fprintf(d.out, "  %s\n", strings.Join(details, ", "))
	}
	fmt.Fprintf(d.out, "  Took %s%s\n", clock(e.Elapsed), d.breakdown())
}

func (d *Display) breakdown() string {
	if len(d.spans) == 0 {
		return ""
	}
	parts := make([]string, 0, len(d.spans))
	for _, s := range d.spans {
		if s.end.IsZero() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", s.stage, clock(s.end.Sub(s.began))))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// barWidth leaves room for "  [" + bar + "] 100%  0:00".
func (d *Display) barWidth() int {
	return min(max(d.width-16, 20), 60)
}

func bar(pct float64, width int) string {
	pct = min(max(pct, 0), 1)
	filled := int(pct * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// clock formats d as M:SS.
func clock(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
