package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/papercast/internal/assembly"
	"github.com/apresai/papercast/internal/bus"
	"github.com/apresai/papercast/internal/ingest"
	"github.com/apresai/papercast/internal/observability"
	"github.com/apresai/papercast/internal/pipeline"
	"github.com/apresai/papercast/internal/progress"
	"github.com/apresai/papercast/internal/store"
	"github.com/apresai/papercast/internal/tts"
)

// ErrBusy is returned when every task slot is taken.
var ErrBusy = errors.New("max concurrent tasks reached")

// progressInterval throttles record-store writes within a stage.
const progressInterval = 2 * time.Second

// EpisodeJob asks for a full source-to-audio run.
type EpisodeJob struct {
	Source         string // URL, arXiv id, or file path
	InputText      string // inline alternative to Source
	TechnicalLevel string
	HostPersona    string
	ExpertPersona  string
	CustomTopics   []string
	TargetWords    int
	Preset         string
	HostVoice      string
	ExpertVoice    string
}

// AudioJob asks for audio from an existing transcript.
type AudioJob struct {
	Script      string
	Title       string
	TargetWords int
	Preset      string
	HostVoice   string
	ExpertVoice string
}

// TaskDeps wires a TaskManager.
type TaskDeps struct {
	Store         store.Store
	Bus           *bus.Client
	Orchestrator  *pipeline.Orchestrator
	Producer      *pipeline.Producer
	ProviderName  string
	ScriptModel   string
	MaxInputChars int
	MaxTasks      int
	// EpisodeTimeout bounds a single run; zero means no limit.
	EpisodeTimeout time.Duration
	Logger         *slog.Logger
}

// TaskManager runs episodes in background goroutines, one per episode.
type TaskManager struct {
	deps    TaskDeps
	log     *slog.Logger
	baseCtx context.Context // cancelled on shutdown

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	maxTasks int
	running  int
	wg       sync.WaitGroup
}

// NewTaskManager creates a task manager. baseCtx should be cancelled on
// SIGTERM so running episodes are marked failed instead of left dangling.
func NewTaskManager(baseCtx context.Context, deps TaskDeps) *TaskManager {
	maxTasks := deps.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 5
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &TaskManager{
		deps:     deps,
		log:      log,
		baseCtx:  baseCtx,
		cancels:  make(map[string]context.CancelFunc),
		maxTasks: maxTasks,
	}
}

// StartEpisode records a new episode and starts its run. The id is
// returned immediately.
func (tm *TaskManager) StartEpisode(ctx context.Context, job EpisodeJob) (string, error) {
	if job.Source == "" && job.InputText == "" {
		return "", errors.New("either source or input_text is required")
	}
	source := job.Source
	if source == "" {
		source = "inline text"
	}
	ep := store.Episode{
		Source: source,
		Model:  tm.deps.ScriptModel,
		Preset: job.Preset,
	}
	return tm.start(ctx, ep, func(ctx context.Context, id string, cb progress.Callback) (*store.Completion, error) {
		if tm.deps.Producer == nil {
			return nil, errors.New("script generation is not configured")
		}
		p := *tm.deps.Producer
		if job.InputText != "" {
			text := job.InputText
			p.Ingest = func(context.Context, string) (*ingest.Paper, error) {
				return ingest.FromText(text, "inline text")
			}
		}
		res, err := p.Produce(ctx, pipeline.EpisodeRequest{
			EpisodeID:      id,
			Source:         source,
			TechnicalLevel: job.TechnicalLevel,
			HostPersona:    job.HostPersona,
			ExpertPersona:  job.ExpertPersona,
			CustomTopics:   job.CustomTopics,
			TargetWords:    job.TargetWords,
			MaxInputChars:  tm.deps.MaxInputChars,
			Voices:         tts.ParseSelection(job.HostVoice, job.ExpertVoice, job.Preset),
			Progress:       cb,
			OnTranscript: func(_ *ingest.Paper, transcript string) {
				if err := tm.deps.Store.SaveTranscript(ctx, id, transcript); err != nil {
					tm.log.WarnContext(ctx, "save transcript failed", "episode_id", id, "error", err)
				}
			},
		})
		if err != nil {
			return nil, err
		}
		return completion(res.Title, res.Result), nil
	})
}

// StartAudio records a new episode from a finished transcript.
func (tm *TaskManager) StartAudio(ctx context.Context, job AudioJob) (string, error) {
	if job.Script == "" {
		return "", errors.New("script is required")
	}
	ep := store.Episode{
		Title:      job.Title,
		Source:     "transcript",
		Preset:     job.Preset,
		Transcript: job.Script,
	}
	return tm.start(ctx, ep, func(ctx context.Context, id string, cb progress.Callback) (*store.Completion, error) {
		res, err := tm.deps.Orchestrator.GenerateAudio(ctx, pipeline.Request{
			Script:      job.Script,
			EpisodeID:   id,
			Voices:      tts.ParseSelection(job.HostVoice, job.ExpertVoice, job.Preset),
			TargetWords: job.TargetWords,
			Progress:    cb,
		})
		if err != nil {
			return nil, err
		}
		return completion(job.Title, res), nil
	})
}

func completion(title string, res *pipeline.Result) *store.Completion {
	return &store.Completion{
		Title:      title,
		AudioKey:   res.Key,
		AudioURL:   res.AudioURL,
		Duration:   assembly.FormatDuration(res.Duration),
		SizeBytes:  res.SizeBytes,
		Tier:       res.Tier.String(),
		Utterances: res.Utterances,
	}
}

type runFunc func(ctx context.Context, id string, cb progress.Callback) (*store.Completion, error)

func (tm *TaskManager) start(ctx context.Context, ep store.Episode, fn runFunc) (string, error) {
	id, err := store.NewEpisodeID()
	if err != nil {
		return "", err
	}

	tm.mu.Lock()
	if tm.running >= tm.maxTasks {
		tm.mu.Unlock()
		return "", fmt.Errorf("%w (%d)", ErrBusy, tm.maxTasks)
	}
	tm.running++

	// The run outlives the request but stays on its trace.
	taskCtx := observability.DetachTraceContextFrom(ctx, tm.baseCtx)
	var cancel context.CancelFunc
	if tm.deps.EpisodeTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(taskCtx, tm.deps.EpisodeTimeout)
	} else {
		taskCtx, cancel = context.WithCancel(taskCtx)
	}
	tm.cancels[id] = cancel
	tm.mu.Unlock()

	ep.ID = id
	ep.Status = store.StatusSubmitted
	ep.StageMessage = "Submitted"
	ep.TTSProvider = tm.deps.ProviderName
	if err := tm.deps.Store.Create(ctx, ep); err != nil {
		tm.release(id)
		return "", fmt.Errorf("create episode: %w", err)
	}
	tm.deps.Bus.PublishStatus(ctx, bus.StatusEvent{EpisodeID: id, Status: string(store.StatusSubmitted)})

	tm.wg.Add(1)
	go tm.run(taskCtx, id, fn)

	return id, nil
}

func (tm *TaskManager) release(id string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if cancel, ok := tm.cancels[id]; ok {
		cancel()
		delete(tm.cancels, id)
	}
	tm.running--
}

// CancelTask cancels a running episode. The run marks it failed.
func (tm *TaskManager) CancelTask(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	cancel, ok := tm.cancels[id]
	if ok {
		cancel()
	}
	return ok
}

// Running reports the number of episodes in flight.
func (tm *TaskManager) Running() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.running
}

// Wait blocks until every run has finished or ctx is done.
func (tm *TaskManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tm *TaskManager) run(ctx context.Context, id string, fn runFunc) {
	defer tm.wg.Done()
	defer tm.release(id)

	ctx, span := tracer.Start(ctx, "episode.run",
		trace.WithAttributes(attribute.String("episode_id", id)),
	)
	defer span.End()

	log := tm.log.With("episode_id", id)
	started := time.Now()

	c, err := fn(ctx, id, tm.progressWriter(ctx, id, log))

	// Record writes must land even when the run context is gone.
	writeCtx, writeCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer writeCancel()

	if err != nil {
		stage, msg := failureOf(err)
		switch {
		case ctx.Err() == nil:
		case tm.baseCtx.Err() != nil:
			msg = "server shutdown during processing"
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			msg = "episode timed out"
		default:
			msg = "cancelled"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "episode failed")
		log.ErrorContext(ctx, "episode failed", "stage", stage, "error", err, "elapsed", time.Since(started).Round(time.Second).String())
		if ferr := tm.deps.Store.Fail(writeCtx, id, stage, msg); ferr != nil {
			log.ErrorContext(writeCtx, "mark failed", "error", ferr)
		}
		tm.deps.Bus.PublishStatus(writeCtx, bus.StatusEvent{
			EpisodeID: id,
			Status:    string(store.StatusFailed),
			Message:   msg,
			Error:     err.Error(),
		})
		return
	}

	if err := tm.deps.Store.Complete(writeCtx, id, *c); err != nil {
		log.ErrorContext(writeCtx, "complete episode failed", "error", err)
	}
	tm.deps.Bus.PublishStatus(writeCtx, bus.StatusEvent{
		EpisodeID: id,
		Status:    string(store.StatusComplete),
		Percent:   1,
		AudioURL:  c.AudioURL,
	})
	span.SetAttributes(
		attribute.String("audio_url", c.AudioURL),
		attribute.Int64("size_bytes", c.SizeBytes),
	)
	span.SetStatus(codes.Ok, "complete")
	log.InfoContext(ctx, "episode complete",
		"audio_url", c.AudioURL,
		"duration", c.Duration,
		"elapsed", time.Since(started).Round(time.Second).String(),
	)
}

// progressWriter persists progress, at most once per interval except on
// stage changes, and mirrors it onto the bus.
func (tm *TaskManager) progressWriter(ctx context.Context, id string, log *slog.Logger) progress.Callback {
	var (
		mu        sync.Mutex
		lastWrite time.Time
		lastStage progress.Stage
	)
	return func(evt progress.Event) {
		// Terminal states are written by run.
		if evt.Stage == progress.StageComplete || evt.Stage == progress.StageFailed {
			return
		}

		mu.Lock()
		now := time.Now()
		stageChanged := evt.Stage != lastStage
		if !stageChanged && now.Sub(lastWrite) < progressInterval {
			mu.Unlock()
			return
		}
		lastWrite, lastStage = now, evt.Stage
		mu.Unlock()

		status := mapStage(evt.Stage)
		if err := tm.deps.Store.UpdateProgress(ctx, id, status, evt.Percent, evt.Message); err != nil {
			log.WarnContext(ctx, "update progress failed", "error", err)
		}
		tm.deps.Bus.PublishStatus(ctx, bus.StatusEvent{
			EpisodeID: id,
			Status:    string(status),
			Percent:   evt.Percent,
			Message:   evt.Message,
		})
	}
}

func failureOf(err error) (stage, msg string) {
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		return string(pe.Stage), pe.Error()
	}
	return "unknown", err.Error()
}

// mapStage maps a progress stage to a record status.
func mapStage(stage progress.Stage) store.Status {
	switch stage {
	case progress.StageIngest:
		return store.StatusIngesting
	case progress.StageScript:
		return store.StatusScripting
	case progress.StageSegment:
		return store.StatusSegmenting
	case progress.StageSynthesize:
		return store.StatusSynthesizing
	case progress.StageAssemble:
		return store.StatusAssembling
	case progress.StageComplete:
		return store.StatusComplete
	case progress.StageFailed:
		return store.StatusFailed
	default:
		return store.StatusSubmitted
	}
}
