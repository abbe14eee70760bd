// Package config loads the application configuration from YAML or JSON5
// files with environment variable expansion and $include composition.
package config

import (
	"fmt"
	"time"

	"github.com/voxquery/voxquery/internal/enrichment"
	"github.com/voxquery/voxquery/internal/mail"
	"github.com/voxquery/voxquery/internal/tts"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Uploads    UploadsConfig    `yaml:"uploads"`
	Sheets     SheetsConfig     `yaml:"sheets"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	TTS        tts.Config       `yaml:"tts"`
	Mail       mail.Config      `yaml:"mail"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ReadTimeoutSeconds and WriteTimeoutSeconds bound request handling.
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// RedactPatterns are additional regexes scrubbed from log output.
	RedactPatterns []string `yaml:"redact_patterns"`
}

// OpenAIConfig configures the LLM client.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`

	// Model drives conversational turns.
	Model string `yaml:"model"`

	// ClassifierModel drives enrichment row classification.
	// Defaults to Model.
	ClassifierModel string `yaml:"classifier_model"`

	// SummaryModel drives post-session summaries. Defaults to Model.
	SummaryModel string `yaml:"summary_model"`

	// BaseURL overrides the API endpoint.
	BaseURL string `yaml:"base_url"`
}

// SandboxConfig configures code execution.
type SandboxConfig struct {
	// TimeoutSeconds bounds one code execution. Default: 30.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// ArtifactsDir holds per-invocation chart files. Default: os temp.
	ArtifactsDir string `yaml:"artifacts_dir"`
}

// UploadsConfig configures the managed uploads area.
type UploadsConfig struct {
	// Dir is the managed uploads directory. Default: "uploads".
	Dir string `yaml:"dir"`

	// RetentionHours purges session CSVs older than this. 0 disables
	// the janitor.
	RetentionHours int `yaml:"retention_hours"`

	// JanitorSchedule is a cron expression for the retention sweep.
	// Default: hourly.
	JanitorSchedule string `yaml:"janitor_schedule"`

	// MaxUploadBytes bounds one uploaded CSV. Default: 32MB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// SheetsConfig configures the spreadsheet collaborator.
type SheetsConfig struct {
	// CredentialsFile points to a Google service account JSON key.
	// Empty selects the in-memory implementation.
	CredentialsFile string `yaml:"credentials_file"`
}

// EnrichmentConfig configures the background job runner.
type EnrichmentConfig struct {
	QueueSize int `yaml:"queue_size"`

	// RowPolicy is abort, skip, or retry.
	RowPolicy string `yaml:"row_policy"`

	RetryAttempts       int `yaml:"retry_attempts"`
	RetryBackoffSeconds int `yaml:"retry_backoff_seconds"`
}

// RunnerConfig converts the YAML shape into the runner's config.
func (e EnrichmentConfig) RunnerConfig() enrichment.Config {
	return enrichment.Config{
		QueueSize:     e.QueueSize,
		RowPolicy:     enrichment.RowFailurePolicy(e.RowPolicy),
		RetryAttempts: e.RetryAttempts,
		RetryBackoff:  time.Duration(e.RetryBackoffSeconds) * time.Second,
	}
}

// Load reads, expands, and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 120
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.ClassifierModel == "" {
		cfg.OpenAI.ClassifierModel = cfg.OpenAI.Model
	}
	if cfg.OpenAI.SummaryModel == "" {
		cfg.OpenAI.SummaryModel = cfg.OpenAI.Model
	}
	if cfg.Sandbox.TimeoutSeconds == 0 {
		cfg.Sandbox.TimeoutSeconds = 30
	}
	if cfg.Uploads.Dir == "" {
		cfg.Uploads.Dir = "uploads"
	}
	if cfg.Uploads.JanitorSchedule == "" {
		cfg.Uploads.JanitorSchedule = "@hourly"
	}
	if cfg.Uploads.MaxUploadBytes == 0 {
		cfg.Uploads.MaxUploadBytes = 32 << 20
	}
	if cfg.Enrichment.RowPolicy == "" {
		cfg.Enrichment.RowPolicy = string(enrichment.PolicyAbort)
	}
}

func validate(cfg *Config) error {
	switch enrichment.RowFailurePolicy(cfg.Enrichment.RowPolicy) {
	case enrichment.PolicyAbort, enrichment.PolicySkip, enrichment.PolicyRetry:
	default:
		return fmt.Errorf("config: invalid enrichment row_policy %q", cfg.Enrichment.RowPolicy)
	}
	if err := tts.ValidateConfig(&cfg.TTS); err != nil {
		return err
	}
	return nil
}
