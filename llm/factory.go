// LLM Provider Factory - builder-first API for creating LLM providers.
//
// Quick Start:
//
//	// Defaults, API key from the environment
//	zhipu, err := llm.ProviderZhipu.FromEnv()
//
//	// Explicit model and key
//	moonshot, err := llm.ProviderMoonshot.Model(llm.ModelMoonshotV18K).APIKey("sk-...")
//
//	// Self-hosted OpenAI-compatible endpoint
//	local, err := llm.ProviderCustom.
//	    Model("qwen2.5:7b").
//	    BaseURL("http://localhost:11434/v1").
//	    Temperature(0.3).
//	    APIKey("ollama")

package llm

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnsupportedProvider is returned for provider names outside the table.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// ErrMissingBaseURL is returned when the custom provider has no endpoint.
var ErrMissingBaseURL = errors.New("custom provider requires an API URL")

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderDeepSeek is the DeepSeek provider.
	ProviderDeepSeek
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
	// ProviderZhipu is Zhipu AI (GLM models).
	ProviderZhipu
	// ProviderDoubao is ByteDance Doubao on Volcengine Ark.
	ProviderDoubao
	// ProviderQianwen is Alibaba Tongyi Qianwen via DashScope compatible mode.
	ProviderQianwen
	// ProviderMoonshot is Moonshot AI (Kimi).
	ProviderMoonshot
	// ProviderGroq is Groq.
	ProviderGroq
	// ProviderCustom is any OpenAI-compatible endpoint supplied by the user.
	ProviderCustom
)

var providerNames = [...]string{
	ProviderOpenAI:    "openai",
	ProviderAnthropic: "anthropic",
	ProviderDeepSeek:  "deepseek",
	ProviderGemini:    "gemini",
	ProviderZhipu:     "zhipu",
	ProviderDoubao:    "doubao",
	ProviderQianwen:   "qianwen",
	ProviderMoonshot:  "moonshot",
	ProviderGroq:      "groq",
	ProviderCustom:    "custom",
}

// ProviderTypes returns every supported provider in declaration order.
func ProviderTypes() []ProviderType {
	out := make([]ProviderType, len(providerNames))
	for i := range providerNames {
		out[i] = ProviderType(i)
	}
	return out
}

func (p ProviderType) valid() bool {
	return p >= 0 && int(p) < len(providerNames)
}

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	if !p.valid() {
		return "unknown"
	}
	return providerNames[p]
}

// EnvVar returns the environment variable name for this provider's API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderZhipu:
		return "ZHIPU_API_KEY"
	case ProviderDoubao:
		return "ARK_API_KEY"
	case ProviderQianwen:
		return "DASHSCOPE_API_KEY"
	case ProviderMoonshot:
		return "MOONSHOT_API_KEY"
	case ProviderGroq:
		return "GROQ_API_KEY"
	case ProviderCustom:
		return "CUSTOM_LLM_API_KEY"
	default:
		return ""
	}
}

// DefaultModel returns the default model for this provider. The custom
// provider has none.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return ModelOpenAIGPT4oMini
	case ProviderAnthropic:
		return ModelAnthropicClaudeSonnet4
	case ProviderDeepSeek:
		return ModelDeepSeekChat
	case ProviderGemini:
		return ModelGeminiFlash25
	case ProviderZhipu:
		return ModelZhipuGLM4Flash
	case ProviderDoubao:
		return ModelDoubaoPro32K
	case ProviderQianwen:
		return ModelQwenPlus
	case ProviderMoonshot:
		return ModelMoonshotV18K
	case ProviderGroq:
		return ModelGroqLlama33
	default:
		return ""
	}
}

// BaseURL returns the fixed API endpoint for this provider. The custom
// provider returns "".
func (p ProviderType) BaseURL() string {
	switch p {
	case ProviderZhipu:
		return "https://open.bigmodel.cn/api/paas/v4"
	case ProviderDoubao:
		return "https://ark.cn-beijing.volces.com/api/v3"
	case ProviderQianwen:
		return "https://dashscope.aliyuncs.com/compatible-mode/v1"
	case ProviderDeepSeek:
		return "https://api.deepseek.com"
	case ProviderMoonshot:
		return "https://api.moonshot.cn/v1"
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderGroq:
		return "https://api.groq.com/openai/v1"
	case ProviderAnthropic:
		return "https://api.anthropic.com"
	case ProviderGemini:
		return "https://generativelanguage.googleapis.com"
	default:
		return ""
	}
}

// IsOpenAICompatible reports whether the provider speaks the OpenAI chat
// completions protocol.
func (p ProviderType) IsOpenAICompatible() bool {
	return p.valid() && p != ProviderAnthropic && p != ProviderGemini
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "zhipu", "glm", "bigmodel":
		return ProviderZhipu, nil
	case "doubao", "ark", "volcengine":
		return ProviderDoubao, nil
	case "qianwen", "qwen", "dashscope":
		return ProviderQianwen, nil
	case "moonshot", "kimi":
		return ProviderMoonshot, nil
	case "groq":
		return ProviderGroq, nil
	case "custom":
		return ProviderCustom, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedProvider, s)
	}
}

// ResolveBaseURL returns the endpoint for a provider name. customURL is
// only consulted for the custom provider, where it is required.
func ResolveBaseURL(provider, customURL string) (string, error) {
	p, err := ParseProviderType(provider)
	if err != nil {
		return "", err
	}
	if p == ProviderCustom {
		if strings.TrimSpace(customURL) == "" {
			return "", ErrMissingBaseURL
		}
		return customURL, nil
	}
	return p.BaseURL(), nil
}

// FromEnv creates a provider with defaults, reading API key from environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// APIKey creates a provider with an explicit API key (uses defaults for everything else).
func (p ProviderType) APIKey(key string) (Provider, error) {
	return NewProviderBuilder(p).APIKey(key)
}

// ProviderBuilder is a builder for configuring LLM providers.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	baseURL      string
	maxTokens    uint32
	temperature  *float32
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{
		providerType: providerType,
	}
}

// Model sets the model to use.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// BaseURL overrides the provider endpoint. Required for ProviderCustom.
func (b *ProviderBuilder) BaseURL(url string) *ProviderBuilder {
	b.baseURL = url
	return b
}

// MaxTokens sets maximum tokens for responses. Zero keeps the
// provider-side default for OpenAI-compatible vendors.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets temperature (0.0 = deterministic, 1.0 = creative).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// FromEnv builds the provider, reading API key from environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	envVar := b.providerType.EnvVar()
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %s environment variable not set", b.providerType, envVar)
	}
	return b.build(apiKey)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	if !b.providerType.valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedProvider, int(b.providerType))
	}

	model := b.model
	if model == "" {
		model = b.providerType.DefaultModel()
	}
	if model == "" {
		return nil, fmt.Errorf("%s: model is required", b.providerType)
	}

	baseURL := b.baseURL
	if baseURL == "" {
		baseURL = b.providerType.BaseURL()
	}
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}

	temperature := float32(0.7) // default
	if b.temperature != nil {
		temperature = *b.temperature
	}

	cfg := ClientConfig{
		Name:        b.providerType.String(),
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       model,
		MaxTokens:   b.maxTokens,
		Temperature: temperature,
	}
	switch b.providerType {
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg), nil
	case ProviderGemini:
		return NewGeminiProvider(cfg), nil
	default:
		return NewOpenAIProvider(cfg), nil
	}
}
