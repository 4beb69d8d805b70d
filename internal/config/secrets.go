package config

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadSecrets fills API keys that are still empty from Secrets Manager,
// reading "<secret_prefix><NAME>" for each. Missing secrets are logged and
// skipped so local env vars keep working.
func LoadSecrets(ctx context.Context, client SecretsAPI, cfg *Config, logger *slog.Logger) {
	if cfg.AWS.SecretPrefix == "" {
		return
	}

	targets := map[string]*string{
		"ANTHROPIC_API_KEY":  &cfg.Script.AnthropicKey,
		"ELEVENLABS_API_KEY": &cfg.TTS.APIKey,
	}
	for name, dst := range targets {
		if *dst != "" {
			continue
		}
		secretID := cfg.AWS.SecretPrefix + name
		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: &secretID,
		})
		if err != nil {
			logger.InfoContext(ctx, "secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			*dst = *result.SecretString
			logger.InfoContext(ctx, "loaded secret", "secret_id", secretID)
		}
	}
}
