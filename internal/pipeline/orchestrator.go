package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/papercast/internal/assembly"
	"github.com/apresai/papercast/internal/objectstore"
	"github.com/apresai/papercast/internal/observability"
	"github.com/apresai/papercast/internal/progress"
	"github.com/apresai/papercast/internal/script"
	"github.com/apresai/papercast/internal/tts"
)

var tracer = otel.Tracer("papercast-pipeline")

// Config wires the orchestrator's collaborators.
type Config struct {
	Provider  tts.Provider
	Directory *tts.Directory
	Synthesis tts.SynthesizerConfig
	Assembler *assembly.Assembler
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Orchestrator drives a transcript through cleaning, segmentation,
// synthesis and assembly. It is safe for concurrent use; each call owns
// its own state.
type Orchestrator struct {
	cfg Config
	log *slog.Logger
	now func() time.Time
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Provider == nil {
		return nil, errors.New("pipeline: provider is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("pipeline: voice directory is required")
	}
	if cfg.Assembler == nil {
		return nil, errors.New("pipeline: assembler is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{cfg: cfg, log: log, now: time.Now}, nil
}

// Request is one audio generation job.
type Request struct {
	Script    string
	EpisodeID string
	// Voices nil means the directory's default preset.
	Voices tts.VoiceSelection
	// TargetWords caps the spoken length; 0 means unlimited.
	TargetWords int
	Progress    progress.Callback
}

// Result describes a published episode.
type Result struct {
	EpisodeID   string
	AudioURL    string
	Key         string
	Tier        script.Tier
	Utterances  int
	Duration    time.Duration
	SizeBytes   int64
	Transitions []Transition
}

// run is the per-call state of one GenerateAudio invocation.
type run struct {
	o       *Orchestrator
	ctx     context.Context
	span    trace.Span
	id      string
	start   time.Time
	report  progress.Callback
	mu      sync.Mutex
	history []Transition
}

// enter records a transition and reports it. States only move forward.
func (r *run) enter(s State, pct float64, msg string) {
	r.enterWith(s, progress.NewEvent(stageFor(s), msg, pct, r.start))
}

func (r *run) enterWith(s State, ev progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, Transition{State: s, At: r.o.now()})
	r.span.AddEvent("stage_transition", trace.WithAttributes(
		attribute.String("state", string(s)),
	))
	r.o.log.InfoContext(r.ctx, "pipeline state",
		"episode_id", r.id,
		"state", string(s),
		"message", ev.Message,
	)
	r.report(ev)
}

// segmentDone reports synthesis progress; called from worker goroutines.
func (r *run) segmentDone(done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pct := synthStart + (synthEnd-synthStart)*float64(done)/float64(total)
	ev := progress.NewEvent(progress.StageSynthesize,
		fmt.Sprintf("Synthesized segment %d/%d", done, total), pct, r.start)
	ev.SegmentNum = done
	ev.SegmentTotal = total
	r.report(ev)
}

func (r *run) fail(e *Error) *Error {
	r.mu.Lock()
	r.history = append(r.history, Transition{State: StateFailed, At: r.o.now()})
	r.mu.Unlock()

	r.span.RecordError(e)
	r.span.SetStatus(codes.Error, e.Message)
	r.o.log.ErrorContext(r.ctx, "pipeline failed",
		"episode_id", r.id,
		"stage", string(e.Stage),
		"kind", string(e.Kind),
		"segment", e.Segment,
		"error", e.Err,
	)
	r.o.cfg.Metrics.EpisodeFailed(r.ctx, string(e.Stage), string(e.Kind))

	ev := progress.NewEvent(progress.StageFailed, e.Error(), 0, r.start)
	ev.Error = e
	r.report(ev)
	return e
}

// GenerateAudio turns a raw transcript into a published audio artifact.
// It never retries a failed state and publishes nothing unless every
// segment was synthesized.
func (o *Orchestrator) GenerateAudio(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.generate_audio",
		trace.WithAttributes(
			attribute.String("episode_id", req.EpisodeID),
			attribute.String("tts_provider", o.cfg.Provider.Name()),
		),
	)
	defer span.End()

	report := req.Progress
	if report == nil {
		report = progress.NopCallback
	}
	r := &run{o: o, ctx: ctx, span: span, id: req.EpisodeID, start: o.now(), report: report}

	r.enter(StateReceived, statePercent[StateReceived], stateMessages[StateReceived])
	switch {
	case strings.TrimSpace(req.EpisodeID) == "":
		return nil, r.fail(inputError(StateReceived, "episode id is required"))
	case strings.TrimSpace(req.Script) == "":
		return nil, r.fail(inputError(StateReceived, "script is empty"))
	case req.TargetWords < 0:
		return nil, r.fail(inputError(StateReceived, fmt.Sprintf("target words must be >= 0, got %d", req.TargetWords)))
	}

	cleaned := script.Clean(req.Script)
	r.enter(StateCleaned, statePercent[StateCleaned], stateMessages[StateCleaned])

	bounded := script.Shorten(cleaned, req.TargetWords)
	r.enter(StateLengthBounded, statePercent[StateLengthBounded],
		fmt.Sprintf("%s (%d words)", stateMessages[StateLengthBounded], script.WordCount(bounded)))

	seg := script.Segment(bounded)
	if seg.Empty() {
		return nil, r.fail(inputError(StateSegmented, "transcript produced no utterances"))
	}
	span.SetAttributes(
		attribute.String("tier", seg.Tier.String()),
		attribute.Int("utterances", len(seg.Utterances)),
	)
	r.enter(StateSegmented, statePercent[StateSegmented],
		fmt.Sprintf("%s: %d utterances (%s)", stateMessages[StateSegmented], len(seg.Utterances), seg.Tier))
	for _, issue := range script.Review(seg) {
		o.log.WarnContext(ctx, "script review",
			"episode_id", req.EpisodeID,
			"category", issue.Category,
			"issue", issue.Message,
		)
	}

	sel := req.Voices
	if sel == nil {
		sel = tts.Preset{ID: o.cfg.Directory.DefaultPreset()}
	}
	voices := o.cfg.Directory.Resolve(sel)

	r.enter(StateSynthesizing, statePercent[StateSynthesizing],
		fmt.Sprintf("Synthesizing %d segments (%s, %s)...", len(seg.Utterances), voices.Host.DisplayName, voices.Expert.DisplayName))

	synthCfg := o.cfg.Synthesis
	if synthCfg.Logger == nil {
		synthCfg.Logger = o.log
	}
	providerName := o.cfg.Provider.Name()
	synthCfg.OnSegment = func(done, total int) {
		o.cfg.Metrics.SegmentSynthesized(ctx, providerName)
		r.segmentDone(done, total)
	}
	synthStarted := o.now()
	segments, err := tts.NewSynthesizer(o.cfg.Provider, synthCfg).SynthesizeAll(ctx, seg.Utterances, voices)
	if err != nil {
		return nil, r.fail(synthesisError(err))
	}
	o.cfg.Metrics.SynthesisDuration(ctx, providerName, o.now().Sub(synthStarted))

	r.enter(StateAssembling, statePercent[StateAssembling], stateMessages[StateAssembling])
	art, err := o.cfg.Assembler.Assemble(ctx, objectstore.AudioKey(req.EpisodeID), segments)
	if err != nil {
		return nil, r.fail(assemblyError(err))
	}

	o.cfg.Metrics.EpisodePublished(ctx, seg.Tier.String())
	done := progress.NewEvent(progress.StageComplete, stateMessages[StatePublished], statePercent[StatePublished], r.start)
	done.AudioURL = art.URL
	done.Duration = assembly.FormatDuration(art.Duration)
	done.SizeMB = float64(art.Size) / (1024 * 1024)
	r.enterWith(StatePublished, done)

	r.mu.Lock()
	history := append([]Transition(nil), r.history...)
	r.mu.Unlock()

	return &Result{
		EpisodeID:   req.EpisodeID,
		AudioURL:    art.URL,
		Key:         art.Key,
		Tier:        seg.Tier,
		Utterances:  len(seg.Utterances),
		Duration:    art.Duration,
		SizeBytes:   art.Size,
		Transitions: history,
	}, nil
}
