// Package tts converts the final assistant text of a turn to speech.
// ElevenLabs is the primary provider with OpenAI's speech API as fallback;
// providers are tried in chain order and the first success wins.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider identifies a TTS provider.
type Provider string

const (
	// ProviderElevenLabs uses ElevenLabs' TTS API.
	ProviderElevenLabs Provider = "elevenlabs"

	// ProviderOpenAI uses OpenAI's TTS API.
	ProviderOpenAI Provider = "openai"
)

// Config holds TTS configuration.
type Config struct {
	// Enabled toggles TTS functionality.
	Enabled bool `yaml:"enabled"`

	// Provider is the primary TTS provider to use.
	Provider Provider `yaml:"provider"`

	// FallbackChain specifies providers to try if the primary fails,
	// in order.
	FallbackChain []Provider `yaml:"fallback_chain"`

	// MaxTextLength truncates longer input. Default: 4096.
	MaxTextLength int `yaml:"max_text_length"`

	// TimeoutSeconds bounds one synthesis including fallbacks. Default: 30.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// ElevenLabs configures the ElevenLabs provider.
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`

	// OpenAI configures the OpenAI provider.
	OpenAI OpenAIConfig `yaml:"openai"`
}

// ElevenLabsConfig configures ElevenLabs TTS.
type ElevenLabsConfig struct {
	// APIKey is the ElevenLabs API key.
	APIKey string `yaml:"api_key"`

	// VoiceID is the voice to use.
	// Default: "21m00Tcm4TlvDq8ikWAM" (Rachel)
	VoiceID string `yaml:"voice_id"`

	// ModelID is the model to use. Default: "eleven_monolingual_v1".
	ModelID string `yaml:"model_id"`

	// Stability controls voice stability (0.0 to 1.0). Default: 0.5.
	Stability float64 `yaml:"stability"`

	// SimilarityBoost controls voice similarity (0.0 to 1.0). Default: 0.75.
	SimilarityBoost float64 `yaml:"similarity_boost"`

	// BaseURL overrides the API endpoint (tests).
	BaseURL string `yaml:"base_url"`
}

// OpenAIConfig configures OpenAI TTS.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key.
	APIKey string `yaml:"api_key"`

	// Model is the TTS model. Default: "tts-1".
	Model string `yaml:"model"`

	// Voice is the voice to use. Default: "alloy".
	Voice string `yaml:"voice"`

	// Speed is the speech speed (0.25 to 4.0). Default: 1.0.
	Speed float64 `yaml:"speed"`

	// BaseURL overrides the API endpoint (tests).
	BaseURL string `yaml:"base_url"`
}

// Result contains the outcome of a synthesis.
type Result struct {
	// Audio is the generated audio payload.
	Audio []byte `json:"-"`

	// Format is the audio format, currently always "mp3".
	Format string `json:"format"`

	// Provider is the provider that generated the audio.
	Provider Provider `json:"provider"`

	// LatencyMs is the synthesis time in milliseconds.
	LatencyMs int64 `json:"latency_ms"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		Provider:       ProviderElevenLabs,
		FallbackChain:  []Provider{ProviderOpenAI},
		MaxTextLength:  4096,
		TimeoutSeconds: 30,
		ElevenLabs: ElevenLabsConfig{
			VoiceID:         "21m00Tcm4TlvDq8ikWAM",
			ModelID:         "eleven_monolingual_v1",
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		OpenAI: OpenAIConfig{
			Model: "tts-1",
			Voice: "alloy",
			Speed: 1.0,
		},
	}
}

// ApplyDefaults fills empty config fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.Provider == "" {
		c.Provider = defaults.Provider
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = defaults.MaxTextLength
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaults.TimeoutSeconds
	}

	if c.ElevenLabs.VoiceID == "" {
		c.ElevenLabs.VoiceID = defaults.ElevenLabs.VoiceID
	}
	if c.ElevenLabs.ModelID == "" {
		c.ElevenLabs.ModelID = defaults.ElevenLabs.ModelID
	}
	if c.ElevenLabs.Stability == 0 {
		c.ElevenLabs.Stability = defaults.ElevenLabs.Stability
	}
	if c.ElevenLabs.SimilarityBoost == 0 {
		c.ElevenLabs.SimilarityBoost = defaults.ElevenLabs.SimilarityBoost
	}

	if c.OpenAI.Model == "" {
		c.OpenAI.Model = defaults.OpenAI.Model
	}
	if c.OpenAI.Voice == "" {
		c.OpenAI.Voice = defaults.OpenAI.Voice
	}
	if c.OpenAI.Speed == 0 {
		c.OpenAI.Speed = defaults.OpenAI.Speed
	}
}

// ValidateConfig validates the TTS configuration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("tts: config is nil")
	}
	if !cfg.Enabled {
		return nil
	}

	valid := func(p Provider) bool {
		return p == ProviderElevenLabs || p == ProviderOpenAI
	}
	if !valid(cfg.Provider) {
		return fmt.Errorf("tts: invalid provider: %s", cfg.Provider)
	}
	for _, p := range cfg.FallbackChain {
		if !valid(p) {
			return fmt.Errorf("tts: invalid fallback provider: %s", p)
		}
	}

	switch cfg.Provider {
	case ProviderElevenLabs:
		if cfg.ElevenLabs.APIKey == "" {
			return errors.New("tts: ElevenLabs API key is required")
		}
	case ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return errors.New("tts: OpenAI API key is required")
		}
	}

	if cfg.OpenAI.Speed < 0 || cfg.OpenAI.Speed > 4.0 {
		return errors.New("tts: OpenAI speed must be between 0 and 4.0")
	}
	if cfg.ElevenLabs.Stability < 0 || cfg.ElevenLabs.Stability > 1.0 {
		return errors.New("tts: ElevenLabs stability must be between 0 and 1.0")
	}
	if cfg.ElevenLabs.SimilarityBoost < 0 || cfg.ElevenLabs.SimilarityBoost > 1.0 {
		return errors.New("tts: ElevenLabs similarity_boost must be between 0 and 1.0")
	}
	return nil
}

// TextToSpeech converts text to audio using the configured provider chain.
// Returns the first successful synthesis or the last provider error.
func TextToSpeech(ctx context.Context, cfg *Config, text string) (*Result, error) {
	if cfg == nil {
		return nil, errors.New("tts: config is nil")
	}
	if !cfg.Enabled {
		return nil, errors.New("tts: not enabled")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("tts: text is empty")
	}

	cfg.ApplyDefaults()

	if len(text) > cfg.MaxTextLength {
		text = text[:cfg.MaxTextLength]
	}

	providers := append([]Provider{cfg.Provider}, cfg.FallbackChain...)

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for _, provider := range providers {
		result, err := synthesize(ctx, cfg, text, provider)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = errors.New("tts: no providers configured")
	}
	return nil, lastErr
}

func synthesize(ctx context.Context, cfg *Config, text string, provider Provider) (*Result, error) {
	start := time.Now()

	var audio []byte
	var err error
	switch provider {
	case ProviderElevenLabs:
		audio, err = elevenlabsTTS(ctx, cfg, text)
	case ProviderOpenAI:
		audio, err = openaiTTS(ctx, cfg, text)
	default:
		return nil, fmt.Errorf("tts: unknown provider: %s", provider)
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		Audio:     audio,
		Format:    "mp3",
		Provider:  provider,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func elevenlabsTTS(ctx context.Context, cfg *Config, text string) ([]byte, error) {
	if cfg.ElevenLabs.APIKey == "" {
		return nil, errors.New("tts: ElevenLabs API key not configured")
	}

	requestBody := map[string]interface{}{
		"text":     text,
		"model_id": cfg.ElevenLabs.ModelID,
		"voice_settings": map[string]interface{}{
			"stability":        cfg.ElevenLabs.Stability,
			"similarity_boost": cfg.ElevenLabs.SimilarityBoost,
		},
	}
	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("tts: marshal request: %w", err)
	}

	baseURL := cfg.ElevenLabs.BaseURL
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io/v1"
	}
	url := fmt.Sprintf("%s/text-to-speech/%s", baseURL, cfg.ElevenLabs.VoiceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("tts: create request: %w", err)
	}
	req.Header.Set("xi-api-key", cfg.ElevenLabs.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	return doAudioRequest(req, "ElevenLabs")
}

func openaiTTS(ctx context.Context, cfg *Config, text string) ([]byte, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, errors.New("tts: OpenAI API key not configured")
	}

	requestBody := map[string]interface{}{
		"model":           cfg.OpenAI.Model,
		"input":           text,
		"voice":           cfg.OpenAI.Voice,
		"response_format": "mp3",
	}
	if cfg.OpenAI.Speed != 1.0 && cfg.OpenAI.Speed > 0 {
		requestBody["speed"] = cfg.OpenAI.Speed
	}
	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("tts: marshal request: %w", err)
	}

	baseURL := cfg.OpenAI.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/audio/speech", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("tts: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.OpenAI.APIKey)
	req.Header.Set("Content-Type", "application/json")

	return doAudioRequest(req, "OpenAI")
}

func doAudioRequest(req *http.Request, provider string) ([]byte, error) {
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: %s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("tts: %s returned %s: %s", provider, resp.Status, strings.TrimSpace(string(body)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("tts: %s returned empty audio", provider)
	}
	return audio, nil
}
