// Package app assembles the episode pipeline from configuration. The CLI
// and the server share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apresai/papercast/internal/assembly"
	"github.com/apresai/papercast/internal/config"
	"github.com/apresai/papercast/internal/observability"
	"github.com/apresai/papercast/internal/pipeline"
	"github.com/apresai/papercast/internal/script"
	"github.com/apresai/papercast/internal/tts"
)

// Runtime holds the wired pipeline.
type Runtime struct {
	Provider     tts.Provider
	Directory    *tts.Directory
	Orchestrator *pipeline.Orchestrator
	Producer     *pipeline.Producer
}

// Options carries the collaborators that differ between entry points.
type Options struct {
	Store   assembly.ObjectStore
	Prober  assembly.Prober
	Metrics *observability.Metrics
	Logger  *slog.Logger
	// SkipScript leaves Producer nil, for audio-only use without LLM keys.
	SkipScript bool
}

// VoiceDirectory returns the configured voice directory: the file named in
// tts.voices_file, or the embedded one for the provider.
func VoiceDirectory(cfg config.TTSConfig) (*tts.Directory, error) {
	if cfg.VoicesFile != "" {
		return tts.LoadDirectory(cfg.VoicesFile)
	}
	return tts.DefaultDirectory(cfg.Provider)
}

// Build constructs the provider, directory, orchestrator and producer.
func Build(ctx context.Context, cfg config.Config, opts Options) (*Runtime, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	dir, err := VoiceDirectory(cfg.TTS)
	if err != nil {
		return nil, err
	}
	if dir.Provider() != cfg.TTS.Provider {
		return nil, fmt.Errorf("voice directory is for %q but tts.provider is %q", dir.Provider(), cfg.TTS.Provider)
	}

	provider, err := tts.NewProvider(ctx, cfg.TTS.Provider, tts.ProviderConfig{
		APIKey:  cfg.TTS.APIKey,
		BaseURL: cfg.TTS.BaseURL,
		Timeout: cfg.TTS.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("create tts provider: %w", err)
	}

	orch, err := pipeline.New(pipeline.Config{
		Provider:  provider,
		Directory: dir,
		Synthesis: tts.SynthesizerConfig{
			ModelID:      cfg.TTS.ModelID,
			OutputFormat: cfg.TTS.OutputFormat,
			Workers:      cfg.TTS.Workers,
			MaxAttempts:  cfg.TTS.MaxAttempts,
			Logger:       log,
		},
		Assembler: assembly.NewAssembler(opts.Store, cfg.Pipeline.ScratchDir, opts.Prober, log),
		Metrics:   opts.Metrics,
		Logger:    log,
	})
	if err != nil {
		provider.Close()
		return nil, err
	}

	rt := &Runtime{Provider: provider, Directory: dir, Orchestrator: orch}
	if opts.SkipScript {
		return rt, nil
	}

	gen, err := script.NewGenerator(cfg.Script.Model, cfg.Script.AnthropicKey)
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("create script generator: %w", err)
	}
	rt.Producer = &pipeline.Producer{
		Ingest:       pipeline.DefaultIngest,
		Generator:    gen,
		Orchestrator: orch,
	}
	return rt, nil
}

// Close releases the provider's connections.
func (r *Runtime) Close() error {
	return r.Provider.Close()
}
