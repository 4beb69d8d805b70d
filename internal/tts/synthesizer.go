package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/apresai/papercast/internal/script"
)

// contextRunes bounds each continuity hint.
const contextRunes = 200

const (
	DefaultModelID      = "eleven_multilingual_v2"
	DefaultOutputFormat = "mp3_44100_128"
)

// SegmentError reports which utterance failed to synthesize.
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// SynthesizerConfig tunes a Synthesizer. Zero values select sequential
// synthesis with a single attempt per segment.
type SynthesizerConfig struct {
	ModelID      string
	OutputFormat string
	Workers      int
	MaxAttempts  int
	Logger       *slog.Logger
	// OnSegment is called after each segment completes, from the worker
	// goroutine that synthesized it.
	OnSegment func(done, total int)
}

// Synthesizer turns ordered utterances into ordered audio segments.
type Synthesizer struct {
	provider Provider
	cfg      SynthesizerConfig
	log      *slog.Logger
}

func NewSynthesizer(p Provider, cfg SynthesizerConfig) *Synthesizer {
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = DefaultOutputFormat
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Synthesizer{provider: p, cfg: cfg, log: log}
}

// PlanRequests builds every provider request up front. Continuity hints come
// from the utterance text alone, so requests are independent of each other's
// audio and may run in any order.
func PlanRequests(utts []script.Utterance, voices VoicePair, modelID, outputFormat string) []SynthesisRequest {
	reqs := make([]SynthesisRequest, len(utts))
	for i, u := range utts {
		req := SynthesisRequest{
			Text:         u.Text,
			Voice:        voices.For(u.Speaker),
			ModelID:      modelID,
			Settings:     Classify(u.Text).Settings,
			OutputFormat: outputFormat,
		}
		if i > 0 {
			req.PreviousText = lastRunes(utts[i-1].Text, contextRunes)
		}
		if i+1 < len(utts) {
			req.NextText = firstRunes(utts[i+1].Text, contextRunes)
		}
		reqs[i] = req
	}
	return reqs
}

// SynthesizeAll returns one audio payload per utterance, in utterance order.
// Any segment failure cancels the remaining work and returns a
// *SegmentError; no partial output is returned.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, utts []script.Utterance, voices VoicePair) ([][]byte, error) {
	reqs := PlanRequests(utts, voices, s.cfg.ModelID, s.cfg.OutputFormat)
	out := make([][]byte, len(reqs))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i := range reqs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A slot may open only after another segment has failed.
			if err := gctx.Err(); err != nil {
				return err
			}
			audio, err := s.synthesizeOne(gctx, reqs[i])
			if err != nil {
				return &SegmentError{Index: i, Err: err}
			}
			out[i] = audio
			n := int(done.Add(1))
			s.log.DebugContext(gctx, "segment synthesized",
				"segment", i,
				"speaker", utts[i].Speaker.String(),
				"bytes", len(audio),
				"done", n,
				"total", len(reqs),
			)
			if s.cfg.OnSegment != nil {
				s.cfg.OnSegment(n, len(reqs))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Synthesizer) synthesizeOne(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	var audio []byte
	err := WithRetry(ctx, s.cfg.MaxAttempts, func() error {
		data, err := s.provider.Synthesize(ctx, req)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return fmt.Errorf("%s returned no audio", s.provider.Name())
		}
		audio = data
		return nil
	})
	return audio, err
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
