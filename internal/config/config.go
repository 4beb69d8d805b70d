package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
	// PublicBaseURL is the externally reachable address of this server,
	// used to build /audio/ links for NATS-backed artifacts.
	PublicBaseURL string `yaml:"public_base_url"`
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	TraceStdout    bool   `yaml:"trace_stdout"`
}

type AWSConfig struct {
	Region       string `yaml:"region"`
	SecretPrefix string `yaml:"secret_prefix"`
}

type StorageConfig struct {
	Backend    string `yaml:"backend"` // s3, nats, file
	Bucket     string `yaml:"bucket"`
	CDNBaseURL string `yaml:"cdn_base_url"`
	Dir        string `yaml:"dir"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // dynamodb, sqlite
	Table   string `yaml:"table"`
	Path    string `yaml:"path"`
}

type BusConfig struct {
	Embedded         bool     `yaml:"embedded"`
	Port             int      `yaml:"port"`
	StoreDir         string   `yaml:"store_dir"`
	Servers          []string `yaml:"servers"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	Token            string   `yaml:"token"`
	ConnectTimeoutMS int      `yaml:"connect_timeout_ms"`
	SubjectPrefix    string   `yaml:"subject_prefix"`
}

type TTSConfig struct {
	Provider       string `yaml:"provider"`
	ModelID        string `yaml:"model_id"`
	OutputFormat   string `yaml:"output_format"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Workers        int    `yaml:"workers"`
	MaxAttempts    int    `yaml:"max_attempts"`
	Preset         string `yaml:"preset"`
	VoicesFile     string `yaml:"voices_file"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
}

type ScriptConfig struct {
	Model          string `yaml:"model"`
	TechnicalLevel string `yaml:"technical_level"`
	TargetWords    int    `yaml:"target_words"`
	MaxInputChars  int    `yaml:"max_input_chars"`
	HostPersona    string `yaml:"host_persona"`
	ExpertPersona  string `yaml:"expert_persona"`
	AnthropicKey   string `yaml:"anthropic_api_key"`
}

type PipelineConfig struct {
	MaxTasks           int    `yaml:"max_tasks"`
	ScratchDir         string `yaml:"scratch_dir"`
	ShutdownGraceMS    int    `yaml:"shutdown_grace_ms"`
	EpisodeTimeoutSecs int    `yaml:"episode_timeout_seconds"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	AWS         AWSConfig       `yaml:"aws"`
	Storage     StorageConfig   `yaml:"storage"`
	Store       StoreConfig     `yaml:"store"`
	Bus         BusConfig       `yaml:"bus"`
	TTS         TTSConfig       `yaml:"tts"`
	Script      ScriptConfig    `yaml:"script"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
}

func Default() Config {
	return Config{
		ServiceName: "papercast",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPInsecure:   true,
			MetricsEnabled: true,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Storage: StorageConfig{
			Backend: "s3",
			Bucket:  "papercast-audio",
			Dir:     "./output",
		},
		Store: StoreConfig{
			Backend: "dynamodb",
			Table:   "papercast-episodes",
			Path:    "./data/papercast.db",
		},
		Bus: BusConfig{
			Port:             4222,
			StoreDir:         "./data/nats",
			Servers:          []string{"nats://localhost:4222"},
			ConnectTimeoutMS: 2000,
			SubjectPrefix:    "papercast",
		},
		TTS: TTSConfig{
			Provider:       "elevenlabs",
			ModelID:        "eleven_multilingual_v2",
			OutputFormat:   "mp3_44100_128",
			TimeoutSeconds: 300,
			Workers:        1,
			MaxAttempts:    1,
		},
		Script: ScriptConfig{
			Model:          "haiku",
			TechnicalLevel: "intermediate",
			MaxInputChars:  15000,
		},
		Pipeline: PipelineConfig{
			MaxTasks:           5,
			ShutdownGraceMS:    8000,
			EpisodeTimeoutSecs: 1800,
		},
	}
}

// Load reads defaults, then the optional YAML file at path, then
// PAPERCAST_* environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "PAPERCAST_SERVICE_NAME")
	overrideString(&cfg.Environment, "PAPERCAST_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PAPERCAST_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PAPERCAST_HTTP_PORT")
	overrideString(&cfg.HTTP.PublicBaseURL, "PAPERCAST_HTTP_PUBLIC_BASE_URL")
	overrideString(&cfg.Telemetry.LogLevel, "PAPERCAST_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PAPERCAST_TELEMETRY_OTLP_ENDPOINT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PAPERCAST_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.MetricsEnabled, "PAPERCAST_TELEMETRY_METRICS_ENABLED")
	overrideBool(&cfg.Telemetry.TraceStdout, "PAPERCAST_TELEMETRY_TRACE_STDOUT")
	overrideString(&cfg.AWS.Region, "AWS_REGION")
	overrideString(&cfg.AWS.Region, "PAPERCAST_AWS_REGION")
	overrideString(&cfg.AWS.SecretPrefix, "PAPERCAST_AWS_SECRET_PREFIX")
	overrideString(&cfg.Storage.Backend, "PAPERCAST_STORAGE_BACKEND")
	overrideString(&cfg.Storage.Bucket, "PAPERCAST_STORAGE_BUCKET")
	overrideString(&cfg.Storage.CDNBaseURL, "PAPERCAST_STORAGE_CDN_BASE_URL")
	overrideString(&cfg.Storage.Dir, "PAPERCAST_STORAGE_DIR")
	overrideString(&cfg.Store.Backend, "PAPERCAST_STORE_BACKEND")
	overrideString(&cfg.Store.Table, "PAPERCAST_STORE_TABLE")
	overrideString(&cfg.Store.Path, "PAPERCAST_STORE_PATH")
	overrideBool(&cfg.Bus.Embedded, "PAPERCAST_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PAPERCAST_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "PAPERCAST_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "PAPERCAST_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PAPERCAST_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PAPERCAST_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PAPERCAST_BUS_TOKEN")
	overrideInt(&cfg.Bus.ConnectTimeoutMS, "PAPERCAST_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "PAPERCAST_BUS_SUBJECT_PREFIX")
	overrideString(&cfg.TTS.Provider, "PAPERCAST_TTS_PROVIDER")
	overrideString(&cfg.TTS.ModelID, "PAPERCAST_TTS_MODEL_ID")
	overrideString(&cfg.TTS.OutputFormat, "PAPERCAST_TTS_OUTPUT_FORMAT")
	overrideInt(&cfg.TTS.TimeoutSeconds, "PAPERCAST_TTS_TIMEOUT_SECONDS")
	overrideInt(&cfg.TTS.Workers, "PAPERCAST_TTS_WORKERS")
	overrideInt(&cfg.TTS.MaxAttempts, "PAPERCAST_TTS_MAX_ATTEMPTS")
	overrideString(&cfg.TTS.Preset, "PAPERCAST_TTS_PRESET")
	overrideString(&cfg.TTS.VoicesFile, "PAPERCAST_TTS_VOICES_FILE")
	overrideString(&cfg.TTS.BaseURL, "PAPERCAST_TTS_BASE_URL")
	overrideString(&cfg.TTS.APIKey, "ELEVENLABS_API_KEY")
	overrideString(&cfg.TTS.APIKey, "PAPERCAST_TTS_API_KEY")
	overrideString(&cfg.Script.Model, "PAPERCAST_SCRIPT_MODEL")
	overrideString(&cfg.Script.TechnicalLevel, "PAPERCAST_SCRIPT_TECHNICAL_LEVEL")
	overrideInt(&cfg.Script.TargetWords, "PAPERCAST_SCRIPT_TARGET_WORDS")
	overrideInt(&cfg.Script.MaxInputChars, "PAPERCAST_SCRIPT_MAX_INPUT_CHARS")
	overrideString(&cfg.Script.HostPersona, "PAPERCAST_SCRIPT_HOST_PERSONA")
	overrideString(&cfg.Script.ExpertPersona, "PAPERCAST_SCRIPT_EXPERT_PERSONA")
	overrideString(&cfg.Script.AnthropicKey, "ANTHROPIC_API_KEY")
	overrideString(&cfg.Script.AnthropicKey, "PAPERCAST_SCRIPT_ANTHROPIC_API_KEY")
	overrideInt(&cfg.Pipeline.MaxTasks, "PAPERCAST_PIPELINE_MAX_TASKS")
	overrideString(&cfg.Pipeline.ScratchDir, "PAPERCAST_PIPELINE_SCRATCH_DIR")
	overrideInt(&cfg.Pipeline.ShutdownGraceMS, "PAPERCAST_PIPELINE_SHUTDOWN_GRACE_MS")
	overrideInt(&cfg.Pipeline.EpisodeTimeoutSecs, "PAPERCAST_PIPELINE_EPISODE_TIMEOUT_SECONDS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// Validate rejects inconsistent settings.
func (c Config) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(c.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}

	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when backend=s3")
		}
	case "nats":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when backend=nats")
		}
		if !c.Bus.Embedded && len(c.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when storage.backend=nats and the bus is not embedded")
		}
	case "file":
		if c.Storage.Dir == "" {
			return errors.New("storage.dir must be set when backend=file")
		}
	default:
		return errors.New("storage.backend must be one of s3|nats|file")
	}

	switch c.Store.Backend {
	case "dynamodb":
		if c.Store.Table == "" {
			return errors.New("store.table must be set when backend=dynamodb")
		}
	case "sqlite":
		if c.Store.Path == "" {
			return errors.New("store.path must be set when backend=sqlite")
		}
	default:
		return errors.New("store.backend must be one of dynamodb|sqlite")
	}

	if c.Bus.Embedded && (c.Bus.Port <= 0 || c.Bus.Port > 65535) {
		return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
	}

	switch c.TTS.Provider {
	case "elevenlabs", "google", "polly":
	default:
		return errors.New("tts.provider must be one of elevenlabs|google|polly")
	}
	if c.TTS.Workers < 1 {
		return errors.New("tts.workers must be >= 1")
	}
	if c.TTS.MaxAttempts < 1 {
		return errors.New("tts.max_attempts must be >= 1")
	}
	if c.TTS.TimeoutSeconds <= 0 {
		return errors.New("tts.timeout_seconds must be positive")
	}

	switch c.Script.TechnicalLevel {
	case "beginner", "intermediate", "advanced":
	default:
		return errors.New("script.technical_level must be one of beginner|intermediate|advanced")
	}
	if c.Script.TargetWords < 0 {
		return errors.New("script.target_words must be >= 0")
	}
	if c.Script.MaxInputChars < 0 {
		return errors.New("script.max_input_chars must be >= 0")
	}

	if c.Pipeline.MaxTasks < 1 {
		return errors.New("pipeline.max_tasks must be >= 1")
	}
	if c.Pipeline.EpisodeTimeoutSecs <= 0 {
		return errors.New("pipeline.episode_timeout_seconds must be positive")
	}
	return nil
}

func (c TTSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c BusConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

func (c PipelineConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceMS) * time.Millisecond
}

func (c PipelineConfig) EpisodeTimeout() time.Duration {
	return time.Duration(c.EpisodeTimeoutSecs) * time.Second
}
