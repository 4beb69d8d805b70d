package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/papercast/internal/ingest"
	"github.com/apresai/papercast/internal/progress"
	"github.com/apresai/papercast/internal/script"
	"github.com/apresai/papercast/internal/tts"
)

// MinSourceWords is the smallest source that can carry a conversation.
const MinSourceWords = 100

// Share of overall progress spent before audio generation begins.
const audioPhaseStart = 0.30

// IngestFunc resolves a source reference into paper text.
type IngestFunc func(ctx context.Context, source string) (*ingest.Paper, error)

// DefaultIngest picks an ingester from the shape of the source.
func DefaultIngest(ctx context.Context, source string) (*ingest.Paper, error) {
	return ingest.NewIngester(source).Ingest(ctx, source)
}

// EpisodeRequest is a full source-to-audio job.
type EpisodeRequest struct {
	EpisodeID      string
	Source         string
	TechnicalLevel string
	HostPersona    string
	ExpertPersona  string
	CustomTopics   []string
	TargetWords    int
	MaxInputChars  int
	Voices         tts.VoiceSelection
	Progress       progress.Callback
	// OnTranscript receives the paper and raw transcript before synthesis.
	OnTranscript func(paper *ingest.Paper, transcript string)
}

// EpisodeResult adds the source metadata to an audio Result.
type EpisodeResult struct {
	*Result
	Title      string
	Transcript string
}

// Producer runs ingestion and script generation ahead of an Orchestrator.
type Producer struct {
	Ingest       IngestFunc
	Generator    script.Generator
	Orchestrator *Orchestrator
}

// Produce ingests the source, writes a transcript and generates its audio.
func (p *Producer) Produce(ctx context.Context, req EpisodeRequest) (*EpisodeResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.produce",
		trace.WithAttributes(
			attribute.String("episode_id", req.EpisodeID),
			attribute.String("source_type", ingest.DetectSource(req.Source).String()),
		),
	)
	defer span.End()

	report := req.Progress
	if report == nil {
		report = progress.NopCallback
	}
	start := time.Now()
	failed := func(e *Error) (*EpisodeResult, error) {
		span.RecordError(e)
		span.SetStatus(codes.Error, e.Message)
		ev := progress.NewEvent(progress.StageFailed, e.Error(), 0, start)
		ev.Error = e
		report(ev)
		return nil, e
	}

	if strings.TrimSpace(req.Source) == "" {
		return failed(inputError(StateIngesting, "source is required"))
	}

	ingestFn := p.Ingest
	if ingestFn == nil {
		ingestFn = DefaultIngest
	}
	report(progress.NewEvent(progress.StageIngest, stateMessages[StateIngesting], 0, start))
	paper, err := ingestFn(ctx, req.Source)
	if err != nil {
		return failed(&Error{Stage: StateIngesting, Kind: KindInput, Segment: -1, Message: "failed to extract content", Err: err})
	}
	if paper.WordCount < MinSourceWords {
		return failed(inputError(StateIngesting,
			fmt.Sprintf("input too short (%d words), need at least %d", paper.WordCount, MinSourceWords)))
	}
	span.SetAttributes(attribute.String("title", paper.Title), attribute.Int("source_words", paper.WordCount))
	report(progress.NewEvent(progress.StageIngest,
		fmt.Sprintf("Ingested %d words from %s", paper.WordCount, paper.Source), 0.10, start))

	maxChars := req.MaxInputChars
	if maxChars <= 0 {
		maxChars = ingest.DefaultMaxChars
	}

	report(progress.NewEvent(progress.StageScript, stateMessages[StateScripting], 0.12, start))
	transcript, err := p.Generator.Generate(ctx, script.Request{
		Paper:          paper,
		Text:           ingest.SmartTruncate(paper.Text, maxChars),
		TechnicalLevel: req.TechnicalLevel,
		HostPersona:    req.HostPersona,
		ExpertPersona:  req.ExpertPersona,
		CustomTopics:   req.CustomTopics,
		TargetWords:    req.TargetWords,
	})
	if err != nil {
		return failed(&Error{Stage: StateScripting, Kind: KindProvider, Segment: -1, Message: "failed to generate script", Err: err})
	}
	report(progress.NewEvent(progress.StageScript,
		fmt.Sprintf("Script ready (%d words)", script.WordCount(transcript)), audioPhaseStart, start))

	if req.OnTranscript != nil {
		req.OnTranscript(paper, transcript)
	}

	res, err := p.Orchestrator.GenerateAudio(ctx, Request{
		Script:      transcript,
		EpisodeID:   req.EpisodeID,
		Voices:      req.Voices,
		TargetWords: req.TargetWords,
		Progress:    rescale(report, audioPhaseStart, 1),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audio generation failed")
		return nil, err
	}

	return &EpisodeResult{Result: res, Title: paper.Title, Transcript: transcript}, nil
}

// rescale maps audio-phase percents into [lo, hi] of the overall run.
func rescale(cb progress.Callback, lo, hi float64) progress.Callback {
	return func(e progress.Event) {
		if e.Stage != progress.StageFailed && e.Stage != progress.StageComplete {
			e.Percent = lo + (hi-lo)*e.Percent
		}
		cb(e)
	}
}
