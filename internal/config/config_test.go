package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "elevenlabs", cfg.TTS.Provider)
	assert.Equal(t, "eleven_multilingual_v2", cfg.TTS.ModelID)
	assert.Equal(t, "mp3_44100_128", cfg.TTS.OutputFormat)
	assert.Equal(t, 1, cfg.TTS.Workers)
	assert.Equal(t, 1, cfg.TTS.MaxAttempts)
	assert.Equal(t, "haiku", cfg.Script.Model)
	assert.Equal(t, "intermediate", cfg.Script.TechnicalLevel)
	assert.Equal(t, 0, cfg.Script.TargetWords)
	assert.Equal(t, 5, cfg.Pipeline.MaxTasks)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "dynamodb", cfg.Store.Backend)
	assert.Equal(t, 8000, cfg.HTTP.Port)
	assert.Equal(t, 300, int(cfg.TTS.Timeout().Seconds()))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papercast.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service_name: papercast-test
storage:
  backend: file
  dir: /tmp/out
store:
  backend: sqlite
  path: /tmp/episodes.db
tts:
  provider: polly
  workers: 4
script:
  technical_level: advanced
  target_words: 1500
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "papercast-test", cfg.ServiceName)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "polly", cfg.TTS.Provider)
	assert.Equal(t, 4, cfg.TTS.Workers)
	assert.Equal(t, "mp3_44100_128", cfg.TTS.OutputFormat, "unset keys keep defaults")
	assert.Equal(t, 1500, cfg.Script.TargetWords)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "not found")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PAPERCAST_TTS_WORKERS", "3")
	t.Setenv("PAPERCAST_TTS_MAX_ATTEMPTS", "2")
	t.Setenv("PAPERCAST_STORAGE_BACKEND", "nats")
	t.Setenv("PAPERCAST_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("PAPERCAST_BUS_EMBEDDED", "true")
	t.Setenv("ELEVENLABS_API_KEY", "el-key")
	t.Setenv("PAPERCAST_SCRIPT_ANTHROPIC_API_KEY", "ant-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.TTS.Workers)
	assert.Equal(t, 2, cfg.TTS.MaxAttempts)
	assert.Equal(t, "nats", cfg.Storage.Backend)
	assert.Equal(t, []string{"nats://one:4222", "nats://two:4222"}, cfg.Bus.Servers)
	assert.True(t, cfg.Bus.Embedded)
	assert.Equal(t, "el-key", cfg.TTS.APIKey)
	assert.Equal(t, "ant-key", cfg.Script.AnthropicKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative target words", func(c *Config) { c.Script.TargetWords = -1 }, "script.target_words"},
		{"zero workers", func(c *Config) { c.TTS.Workers = 0 }, "tts.workers"},
		{"unknown provider", func(c *Config) { c.TTS.Provider = "festival" }, "tts.provider"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "ftp" }, "storage.backend"},
		{"s3 without bucket", func(c *Config) { c.Storage.Bucket = "" }, "storage.bucket"},
		{"unknown store", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"bad level", func(c *Config) { c.Script.TechnicalLevel = "expert" }, "technical_level"},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"bad log level", func(c *Config) { c.Telemetry.LogLevel = "loud" }, "log_level"},
		{"no tasks", func(c *Config) { c.Pipeline.MaxTasks = 0 }, "max_tasks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
	assert.NoError(t, Default().Validate())
}

type fakeSecrets struct {
	values map[string]string
	asked  []string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.asked = append(f.asked, *in.SecretId)
	v, ok := f.values[*in.SecretId]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: &v}, nil
}

func TestLoadSecrets(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := &fakeSecrets{values: map[string]string{
		"/papercast/ANTHROPIC_API_KEY": "from-secrets",
	}}

	cfg := Default()
	cfg.AWS.SecretPrefix = "/papercast/"
	cfg.TTS.APIKey = "already-set"

	LoadSecrets(context.Background(), fake, &cfg, log)
	assert.Equal(t, "from-secrets", cfg.Script.AnthropicKey)
	assert.Equal(t, "already-set", cfg.TTS.APIKey)
	assert.Equal(t, []string{"/papercast/ANTHROPIC_API_KEY"}, fake.asked)
}

func TestLoadSecretsNoPrefix(t *testing.T) {
	fake := &fakeSecrets{}
	cfg := Default()
	LoadSecrets(context.Background(), fake, &cfg, slog.Default())
	assert.Empty(t, fake.asked)
}
