package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
)

// PollyAPI is the subset of the Polly client used here.
type PollyAPI interface {
	SynthesizeSpeech(ctx context.Context, in *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyProvider implements Provider using AWS Polly (Generative engine).
// Style settings and continuity hints have no Polly equivalent.
type PollyProvider struct {
	client PollyAPI
}

func NewPollyProvider(ctx context.Context) (*PollyProvider, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for Polly: %w", err)
	}
	return &PollyProvider{client: polly.NewFromConfig(awsCfg)}, nil
}

func NewPollyProviderWithClient(client PollyAPI) *PollyProvider {
	return &PollyProvider{client: client}
}

func (p *PollyProvider) Name() string { return "polly" }

func (p *PollyProvider) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	lang := types.LanguageCode(req.Voice.Language)
	if lang == "" {
		lang = types.LanguageCodeEnUs
	}

	resp, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       types.EngineGenerative,
		OutputFormat: types.OutputFormatMp3,
		SampleRate:   aws.String("24000"),
		Text:         aws.String(req.Text),
		TextType:     types.TextTypeText,
		VoiceId:      types.VoiceId(req.Voice.ProviderVoiceID),
		LanguageCode: lang,
	})
	if err != nil {
		var re *awshttp.ResponseError
		if errors.As(err, &re) && (re.HTTPStatusCode() == http.StatusTooManyRequests || re.HTTPStatusCode() >= 500) {
			return nil, &RetryableError{StatusCode: re.HTTPStatusCode(), Body: err.Error()}
		}
		return nil, fmt.Errorf("Polly synthesize: %w", err)
	}
	defer resp.AudioStream.Close()

	data, err := io.ReadAll(resp.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("Polly read audio: %w", err)
	}
	return data, nil
}

func (p *PollyProvider) Close() error { return nil }
