package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io/v1/text-to-speech"

	// Long scripts take minutes per call on the provider side.
	defaultSynthesisTimeout = 300 * time.Second
)

type elevenLabsRequest struct {
	Text          string                 `json:"text"`
	ModelID       string                 `json:"model_id"`
	VoiceSettings *elevenLabsVoiceParams `json:"voice_settings,omitempty"`
	PreviousText  string                 `json:"previous_text,omitempty"`
	NextText      string                 `json:"next_text,omitempty"`
}

type elevenLabsVoiceParams struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// ElevenLabsProvider implements Provider using the ElevenLabs TTS API.
type ElevenLabsProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewElevenLabsProvider builds a provider. An empty APIKey falls back to
// ELEVENLABS_API_KEY.
func NewElevenLabsProvider(cfg ProviderConfig) *ElevenLabsProvider {
	p := &ElevenLabsProvider{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if p.baseURL == "" {
		p.baseURL = elevenLabsBaseURL
	}
	if p.apiKey == "" {
		p.apiKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if p.httpClient.Timeout <= 0 {
		p.httpClient.Timeout = defaultSynthesisTimeout
	}
	return p
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	reqBody := elevenLabsRequest{
		Text:    req.Text,
		ModelID: req.ModelID,
		VoiceSettings: &elevenLabsVoiceParams{
			Stability:       req.Settings.Stability,
			SimilarityBoost: req.Settings.SimilarityBoost,
			Style:           req.Settings.Style,
			UseSpeakerBoost: req.Settings.SpeakerBoost,
		},
		PreviousText: req.PreviousText,
		NextText:     req.NextText,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	format := req.OutputFormat
	if format == "" {
		format = DefaultOutputFormat
	}
	endpoint := fmt.Sprintf("%s/%s?output_format=%s", p.baseURL, url.PathEscape(req.Voice.ProviderVoiceID), url.QueryEscape(format))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	res, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests ||
		res.StatusCode >= http.StatusInternalServerError {
		errBody, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &RetryableError{
			StatusCode: res.StatusCode,
			Body:       string(errBody),
		}
	}

	if res.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("ElevenLabs API error (status %d): %s", res.StatusCode, string(errBody))
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func (p *ElevenLabsProvider) Close() error { return nil }
