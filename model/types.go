// Package model provides domain types shared across packages.
package model

import "strings"

// PageContext describes the page a text selection was taken from.
// Every field is optional.
type PageContext struct {
	PageURL         string `json:"pageUrl,omitempty" yaml:"page_url,omitempty"`
	PageTitle       string `json:"pageTitle,omitempty" yaml:"page_title,omitempty"`
	PageDescription string `json:"pageDescription,omitempty" yaml:"page_description,omitempty"`
}

// LLMConfig is the credential and model selection for one provider.
type LLMConfig struct {
	Provider    string   `json:"provider"`
	APIKey      string   `json:"apiKey"`
	APIURL      string   `json:"apiUrl,omitempty"`
	Model       string   `json:"model"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
}

// Validate checks that the configuration is usable for a request.
// A missing key is reported as NO_API_KEY, anything else as INVALID_CONFIG.
func (c LLMConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &Error{Kind: KindNoAPIKey}
	}
	if strings.TrimSpace(c.Provider) == "" {
		return &Error{Kind: KindInvalidConfig, Message: "provider is required"}
	}
	if strings.TrimSpace(c.Model) == "" {
		return &Error{Kind: KindInvalidConfig, Message: "model is required"}
	}
	if c.Provider == "custom" && strings.TrimSpace(c.APIURL) == "" {
		return &Error{Kind: KindInvalidConfig, Message: "custom provider requires an API URL"}
	}
	return nil
}

// MultiLLMConfig keeps credentials for several providers plus the
// currently selected one, so switching does not discard the others.
type MultiLLMConfig struct {
	CurrentProvider string               `json:"currentProvider"`
	Configs         map[string]LLMConfig `json:"configs"`
}

// Current returns the configuration of the selected provider.
func (m MultiLLMConfig) Current() (LLMConfig, bool) {
	if m.CurrentProvider == "" {
		return LLMConfig{}, false
	}
	cfg, ok := m.Configs[m.CurrentProvider]
	return cfg, ok
}
