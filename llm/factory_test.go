package llm

import (
	"errors"
	"testing"
)

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		in   string
		want ProviderType
	}{
		{"zhipu", ProviderZhipu},
		{"GLM", ProviderZhipu},
		{"doubao", ProviderDoubao},
		{"qianwen", ProviderQianwen},
		{"qwen", ProviderQianwen},
		{"deepseek", ProviderDeepSeek},
		{"Moonshot", ProviderMoonshot},
		{"kimi", ProviderMoonshot},
		{"openai", ProviderOpenAI},
		{"groq", ProviderGroq},
		{"custom", ProviderCustom},
		{"claude", ProviderAnthropic},
		{" gemini ", ProviderGemini},
	}
	for _, tt := range tests {
		got, err := ParseProviderType(tt.in)
		if err != nil {
			t.Errorf("ParseProviderType(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseProviderType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseProviderType("mistral"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestProviderTypeRoundTrip(t *testing.T) {
	for _, p := range ProviderTypes() {
		parsed, err := ParseProviderType(p.String())
		if err != nil || parsed != p {
			t.Errorf("round trip of %v failed: %v %v", p, parsed, err)
		}
		if p.EnvVar() == "" {
			t.Errorf("%v has no env var", p)
		}
	}
	if ProviderType(99).String() != "unknown" {
		t.Errorf("out of range provider should be unknown")
	}
}

func TestResolveBaseURL(t *testing.T) {
	tests := map[string]string{
		"zhipu":    "https://open.bigmodel.cn/api/paas/v4",
		"doubao":   "https://ark.cn-beijing.volces.com/api/v3",
		"qianwen":  "https://dashscope.aliyuncs.com/compatible-mode/v1",
		"deepseek": "https://api.deepseek.com",
		"moonshot": "https://api.moonshot.cn/v1",
		"openai":   "https://api.openai.com/v1",
		"groq":     "https://api.groq.com/openai/v1",
	}
	for provider, want := range tests {
		got, err := ResolveBaseURL(provider, "http://ignored")
		if err != nil {
			t.Errorf("%s: unexpected error: %v", provider, err)
		}
		if got != want {
			t.Errorf("%s: got %q, want %q", provider, got, want)
		}
	}

	got, err := ResolveBaseURL("custom", "http://localhost:11434/v1")
	if err != nil || got != "http://localhost:11434/v1" {
		t.Errorf("custom: got %q, %v", got, err)
	}
	if _, err := ResolveBaseURL("custom", " "); !errors.Is(err, ErrMissingBaseURL) {
		t.Errorf("custom without url: expected ErrMissingBaseURL, got %v", err)
	}
	if _, err := ResolveBaseURL("bard", ""); !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestIsOpenAICompatible(t *testing.T) {
	for _, p := range ProviderTypes() {
		want := p != ProviderAnthropic && p != ProviderGemini
		if p.IsOpenAICompatible() != want {
			t.Errorf("%v: IsOpenAICompatible = %v", p, !want)
		}
	}
}

func TestBuilderSelectsImplementation(t *testing.T) {
	p, err := ProviderMoonshot.APIKey("sk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*OpenAIProvider); !ok {
		t.Errorf("moonshot should use the OpenAI-compatible provider, got %T", p)
	}
	if p.Name() != "moonshot" || p.Model() != ModelMoonshotV18K {
		t.Errorf("got %s/%s", p.Name(), p.Model())
	}

	p, err = ProviderAnthropic.Model(ModelAnthropicClaudeHaiku35).APIKey("sk-ant")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*AnthropicProvider); !ok {
		t.Errorf("expected *AnthropicProvider, got %T", p)
	}
}

func TestBuilderCustomRequiresURLAndModel(t *testing.T) {
	if _, err := ProviderCustom.APIKey("k"); err == nil {
		t.Error("expected error for custom provider without a model")
	}
	if _, err := ProviderCustom.Model("local").APIKey("k"); !errors.Is(err, ErrMissingBaseURL) {
		t.Errorf("expected ErrMissingBaseURL, got %v", err)
	}
	p, err := NewProviderBuilder(ProviderCustom).Model("local").BaseURL("http://localhost:8080/v1").APIKey("k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "custom" {
		t.Errorf("name = %q", p.Name())
	}
}

func TestBuilderFromEnv(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	if _, err := ProviderGroq.FromEnv(); err == nil {
		t.Error("expected error when key env var is empty")
	}

	t.Setenv("GROQ_API_KEY", "gsk-test")
	p, err := ProviderGroq.FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Model() != ModelGroqLlama33 {
		t.Errorf("model = %q", p.Model())
	}
}
