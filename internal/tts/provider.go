package tts

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// VoiceSettings are the per-utterance synthesis parameters. Floats are in
// [0,1].
type VoiceSettings struct {
	Stability       float64
	Style           float64
	SimilarityBoost float64
	SpeakerBoost    bool
}

// SynthesisRequest is one call to a TTS provider. PreviousText and NextText
// are continuity hints and are never spoken.
type SynthesisRequest struct {
	Text         string
	Voice        VoiceIdentity
	ModelID      string
	Settings     VoiceSettings
	PreviousText string
	NextText     string
	OutputFormat string
}

// Provider synthesizes speech for a single utterance.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
	Close() error
}

// ProviderNames lists the supported providers.
func ProviderNames() []string {
	return []string{"elevenlabs", "google", "polly"}
}

// ProviderConfig carries provider construction settings.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewProvider creates a TTS provider by name.
func NewProvider(ctx context.Context, name string, cfg ProviderConfig) (Provider, error) {
	switch name {
	case "elevenlabs":
		return NewElevenLabsProvider(cfg), nil
	case "google":
		return NewGoogleProvider(ctx)
	case "polly":
		return NewPollyProvider(ctx)
	default:
		return nil, fmt.Errorf("unknown TTS provider %q: choose elevenlabs, google, or polly", name)
	}
}

// Retry constants shared by all providers.
const (
	defaultInitialBackoff = 1 * time.Second
	defaultBackoffMulti   = 2
	defaultMaxBackoff     = 10 * time.Second
)

// RetryableError signals that the operation can be retried.
type RetryableError struct {
	StatusCode int
	Body       string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// WithRetry runs fn up to attempts times, backing off exponentially between
// attempts. Only RetryableError is retried. attempts <= 1 runs fn once.
func WithRetry(ctx context.Context, attempts int, fn func() error) error {
	return withRetry(ctx, attempts, defaultInitialBackoff, fn)
}

func withRetry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var re *RetryableError
		if !errors.As(err, &re) {
			return err
		}
		lastErr = err

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(defaultBackoffMulti)
			if backoff > defaultMaxBackoff {
				backoff = defaultMaxBackoff
			}
		}
	}
	return lastErr
}
