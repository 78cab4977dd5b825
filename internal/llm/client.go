package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider identifies a language-model backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderOllama Provider = "ollama"
)

// Config holds provider-level settings. The credential comes from
// configuration or environment, never from job payloads.
type Config struct {
	Provider    Provider `json:"provider"`
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
}

// Client is the structured-completion capability used by the classifier.
// The model argument overrides the configured default per call; jobs carry
// the model the caller recorded the interaction with.
type Client interface {
	GenerateStructured(ctx context.Context, prompt, model string, target interface{}) error
}

// LangchainClient implements Client via langchaingo. It is constructed once
// at process start and shared by all workers.
type LangchainClient struct {
	llm llms.Model
	cfg Config
}

// NewLangchainClient builds the provider-specific model handle.
func NewLangchainClient(ctx context.Context, cfg Config) (*LangchainClient, error) {
	var model llms.Model
	var err error

	log.Debug().
		Str("provider", string(cfg.Provider)).
		Str("model", cfg.Model).
		Msg("Creating LLM client")

	switch cfg.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case ProviderGemini:
		model, err = googleai.New(ctx, googleai.WithAPIKey(cfg.APIKey))
	case ProviderClaude:
		model, err = anthropic.New(anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.Model))
	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model, err = ollama.New(ollama.WithServerURL(baseURL), ollama.WithModel(cfg.Model))
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", cfg.Provider, err)
	}

	return &LangchainClient{llm: model, cfg: cfg}, nil
}

// GenerateStructured runs one completion in JSON mode and decodes the
// response into target, repairing malformed JSON where possible.
func (c *LangchainClient) GenerateStructured(ctx context.Context, prompt, model string, target interface{}) error {
	callOpts := []llms.CallOption{
		llms.WithTemperature(c.cfg.Temperature),
		llms.WithJSONMode(),
	}
	if model != "" {
		callOpts = append(callOpts, llms.WithModel(model))
	}

	raw, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, callOpts...)
	if err != nil {
		return fmt.Errorf("LLM call failed: %w", err)
	}

	if err := DecodeResponse(raw, target); err != nil {
		log.Warn().
			Err(err).
			Str("model", model).
			Int("response_bytes", len(raw)).
			Msg("Failed to decode LLM response")
		return err
	}
	return nil
}
