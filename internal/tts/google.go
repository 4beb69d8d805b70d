package tts

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
)

// GoogleSpeechAPI is the subset of the Cloud TTS client used here.
type GoogleSpeechAPI interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// GoogleProvider implements Provider using Google Cloud TTS (Chirp 3 HD).
// Chirp voices take no style controls or continuity hints, so settings
// other than the voice are ignored.
type GoogleProvider struct {
	client GoogleSpeechAPI
}

func NewGoogleProvider(ctx context.Context) (*GoogleProvider, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create Google TTS client: %w", err)
	}
	return &GoogleProvider{client: client}, nil
}

func NewGoogleProviderWithClient(client GoogleSpeechAPI) *GoogleProvider {
	return &GoogleProvider{client: client}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	lang := req.Voice.Language
	if lang == "" {
		lang = "en-US"
	}
	resp, err := p.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         req.Voice.ProviderVoiceID,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Google TTS synthesize: %w", err)
	}
	return resp.AudioContent, nil
}

func (p *GoogleProvider) Close() error { return p.client.Close() }
