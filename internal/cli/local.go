package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apresai/papercast/internal/app"
	"github.com/apresai/papercast/internal/assembly"
	"github.com/apresai/papercast/internal/config"
	"github.com/apresai/papercast/internal/ingest"
	"github.com/apresai/papercast/internal/objectstore"
	"github.com/apresai/papercast/internal/observability"
	"github.com/apresai/papercast/internal/pipeline"
	"github.com/apresai/papercast/internal/script"
	"github.com/apresai/papercast/internal/store"
	"github.com/apresai/papercast/internal/tts"
)

// localEnv is the CLI's pipeline: artifacts in the output directory and
// episode records in a SQLite file beside them.
type localEnv struct {
	cfg     config.Config
	log     *slog.Logger
	files   *objectstore.FileStore
	store   store.Store
	runtime *app.Runtime
}

// localConfig loads the config file and environment, then applies flags.
// The CLI always writes to the output directory.
func localConfig() (config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	cfg.Storage.Backend = "file"
	cfg.Storage.Dir = flagOutputDir
	cfg.Store.Backend = "sqlite"
	cfg.Store.Path = filepath.Join(flagOutputDir, "papercast.db")
	if cfg.Pipeline.ScratchDir == "" {
		cfg.Pipeline.ScratchDir = filepath.Join(flagOutputDir, ".scratch")
	}

	setIf(&cfg.TTS.Provider, flagTTS)
	setIf(&cfg.TTS.Preset, flagPreset)
	setIf(&cfg.TTS.APIKey, flagElevenLabsKey)
	setIf(&cfg.Script.Model, flagModel)
	setIf(&cfg.Script.TechnicalLevel, flagLevel)
	setIf(&cfg.Script.HostPersona, flagHostPersona)
	setIf(&cfg.Script.ExpertPersona, flagExpertPersona)
	setIf(&cfg.Script.AnthropicKey, flagAnthropicKey)
	if flagWorkers > 0 {
		cfg.TTS.Workers = flagWorkers
	}
	if flagTargetWords > 0 {
		cfg.Script.TargetWords = flagTargetWords
	}
	if flagVerbose {
		cfg.Telemetry.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setIf(target *string, value string) {
	if strings.TrimSpace(value) != "" {
		*target = value
	}
}

func cliLogger(cfg config.Config) *slog.Logger {
	level := "warn"
	if flagVerbose {
		level = cfg.Telemetry.LogLevel
	}
	return observability.NewLogger(os.Stderr, level)
}

func openLocalStore(ctx context.Context) (store.Store, error) {
	cfg, err := localConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(flagOutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return store.OpenSQLite(ctx, cfg.Store.Path)
}

// openLocal wires the pipeline. withAudio=false skips the TTS provider
// checks that script-only runs don't need.
func openLocal(ctx context.Context, withAudio bool) (*localEnv, error) {
	cfg, err := localConfig()
	if err != nil {
		return nil, err
	}
	log := cliLogger(cfg)

	files, err := objectstore.NewFileStore(cfg.Storage.Dir, "")
	if err != nil {
		return nil, err
	}
	st, err := store.OpenSQLite(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	env := &localEnv{cfg: cfg, log: log, files: files, store: st}
	if !withAudio {
		gen, err := script.NewGenerator(cfg.Script.Model, cfg.Script.AnthropicKey)
		if err != nil {
			st.Close()
			return nil, err
		}
		env.runtime = &app.Runtime{Producer: &pipeline.Producer{Generator: gen}}
		return env, nil
	}

	if err := os.MkdirAll(cfg.Pipeline.ScratchDir, 0o755); err != nil {
		st.Close()
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	rt, err := app.Build(ctx, cfg, app.Options{
		Store:  files,
		Prober: assembly.FFProbe{},
		Logger: log,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	env.runtime = rt
	return env, nil
}

func (e *localEnv) Close() {
	if e.runtime != nil && e.runtime.Provider != nil {
		e.runtime.Provider.Close()
	}
	e.store.Close()
}

func (e *localEnv) voices() tts.VoiceSelection {
	return tts.ParseSelection(flagHostVoice, flagExpertVoice, e.cfg.TTS.Preset)
}

func (e *localEnv) topics() []string {
	var out []string
	for _, t := range strings.Split(flagTopics, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// writeScript ingests and writes a transcript file without synthesis.
func (e *localEnv) writeScript(ctx context.Context, out io.Writer) error {
	start := time.Now()
	paper, err := pipeline.DefaultIngest(ctx, flagInput)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", flagInput, err)
	}
	if paper.WordCount < pipeline.MinSourceWords {
		return fmt.Errorf("input too short (%d words), need at least %d", paper.WordCount, pipeline.MinSourceWords)
	}
	text := ingest.SmartTruncate(paper.Text, e.cfg.Script.MaxInputChars)
	transcript, err := e.runtime.Producer.Generator.Generate(ctx, script.Request{
		Paper:          paper,
		Text:           text,
		TechnicalLevel: e.cfg.Script.TechnicalLevel,
		HostPersona:    e.cfg.Script.HostPersona,
		ExpertPersona:  e.cfg.Script.ExpertPersona,
		CustomTopics:   e.topics(),
		TargetWords:    e.cfg.Script.TargetWords,
	})
	if err != nil {
		return fmt.Errorf("generate script: %w", err)
	}

	id, err := store.NewEpisodeID()
	if err != nil {
		return err
	}
	path, err := e.saveTranscript(ctx, id, transcript)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nScript: %s\n  Title: %s\n  Words: %d\n  Time:  %s\n",
		path, paper.Title, script.WordCount(transcript), time.Since(start).Round(time.Second))
	return nil
}

// generate runs the full source-to-audio pipeline and records the episode.
func (e *localEnv) generate(ctx context.Context, out io.Writer) error {
	id, err := store.NewEpisodeID()
	if err != nil {
		return err
	}
	if err := e.store.Create(ctx, store.Episode{
		ID:          id,
		Source:      flagInput,
		Status:      store.StatusSubmitted,
		TTSProvider: e.cfg.TTS.Provider,
		Model:       e.cfg.Script.Model,
		Preset:      e.cfg.TTS.Preset,
	}); err != nil {
		return err
	}

	cb, finish := progressCallback()
	res, err := e.runtime.Producer.Produce(ctx, pipeline.EpisodeRequest{
		EpisodeID:      id,
		Source:         flagInput,
		TechnicalLevel: e.cfg.Script.TechnicalLevel,
		HostPersona:    e.cfg.Script.HostPersona,
		ExpertPersona:  e.cfg.Script.ExpertPersona,
		CustomTopics:   e.topics(),
		TargetWords:    e.cfg.Script.TargetWords,
		MaxInputChars:  e.cfg.Script.MaxInputChars,
		Voices:         e.voices(),
		Progress:       cb,
		OnTranscript: func(_ *ingest.Paper, transcript string) {
			if err := e.store.SaveTranscript(ctx, id, transcript); err != nil {
				e.log.Warn("save transcript failed", "episode_id", id, "error", err)
			}
			if _, err := e.saveTranscript(ctx, id, transcript); err != nil {
				e.log.Warn("write transcript file failed", "episode_id", id, "error", err)
			}
		},
	})
	finish()
	if err != nil {
		e.recordFailure(id, err)
		return err
	}
	return e.recordSuccess(ctx, out, id, res.Title, res.Result)
}

// synthesize turns an existing transcript into audio.
func (e *localEnv) synthesize(ctx context.Context, out io.Writer, transcript, path string) error {
	id, err := store.NewEpisodeID()
	if err != nil {
		return err
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := e.store.Create(ctx, store.Episode{
		ID:          id,
		Title:       title,
		Source:      path,
		Status:      store.StatusSubmitted,
		TTSProvider: e.cfg.TTS.Provider,
		Preset:      e.cfg.TTS.Preset,
		Transcript:  transcript,
	}); err != nil {
		return err
	}

	cb, finish := progressCallback()
	res, err := e.runtime.Orchestrator.GenerateAudio(ctx, pipeline.Request{
		Script:      transcript,
		EpisodeID:   id,
		Voices:      e.voices(),
		TargetWords: e.cfg.Script.TargetWords,
		Progress:    cb,
	})
	finish()
	if err != nil {
		e.recordFailure(id, err)
		return err
	}
	return e.recordSuccess(ctx, out, id, title, res)
}

func (e *localEnv) recordSuccess(ctx context.Context, out io.Writer, id, title string, res *pipeline.Result) error {
	err := e.store.Complete(ctx, id, store.Completion{
		Title:      title,
		AudioKey:   res.Key,
		AudioURL:   res.AudioURL,
		Duration:   assembly.FormatDuration(res.Duration),
		SizeBytes:  res.SizeBytes,
		Tier:       res.Tier.String(),
		Utterances: res.Utterances,
	})
	if err != nil {
		e.log.Warn("record episode failed", "episode_id", id, "error", err)
	}

	fmt.Fprintf(out, "\nEpisode %s\n", id)
	if title != "" {
		fmt.Fprintf(out, "  Title:      %s\n", title)
	}
	fmt.Fprintf(out, "  Audio:      %s\n", res.AudioURL)
	fmt.Fprintf(out, "  Duration:   %s\n", assembly.FormatDuration(res.Duration))
	fmt.Fprintf(out, "  Size:       %.1f MB\n", float64(res.SizeBytes)/(1024*1024))
	fmt.Fprintf(out, "  Utterances: %d (%s)\n", res.Utterances, res.Tier)
	return nil
}

// recordFailure writes the failure with a fresh context so an interrupt
// still leaves a terminal record.
func (e *localEnv) recordFailure(id string, err error) {
	stage, msg := "unknown", err.Error()
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		stage = string(pe.Stage)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := e.store.Fail(ctx, id, stage, msg); ferr != nil {
		e.log.Warn("record failure failed", "episode_id", id, "error", ferr)
	}
}

func (e *localEnv) saveTranscript(ctx context.Context, id, transcript string) (string, error) {
	key := "transcripts/" + id + ".txt"
	if _, err := e.files.Put(ctx, key, strings.NewReader(transcript), int64(len(transcript)), "text/plain; charset=utf-8"); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return filepath.Join(e.cfg.Storage.Dir, filepath.FromSlash(key)), nil
}
