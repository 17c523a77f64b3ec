// Provider credential commands.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/richinex/fluentlens/config"
	"github.com/richinex/fluentlens/llm"
	"github.com/richinex/fluentlens/model"
)

// ProviderInput holds flags for provider set. Empty fields are filled
// from the environment (<PROVIDER>_API_KEY, <PROVIDER>_MODEL,
// <PROVIDER>_BASE_URL) and then the provider defaults.
type ProviderInput struct {
	Provider    string
	APIKey      string
	Model       string
	APIURL      string
	MaxTokens   int
	Temperature *float32
	Use         bool
}

// SetProvider saves credentials for one provider.
func SetProvider(ctx context.Context, app *App, in ProviderInput, out io.Writer) error {
	p, err := llm.ParseProviderType(in.Provider)
	if err != nil {
		return err
	}
	name := p.String()

	entry := model.LLMConfig{
		Provider:    name,
		APIKey:      in.APIKey,
		Model:       in.Model,
		APIURL:      in.APIURL,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
	}
	if entry.APIKey == "" {
		if key, err := config.APIKeyFor(name); err == nil {
			entry.APIKey = key
		}
	}
	if entry.Model == "" {
		if m, err := config.ModelFor(name); err == nil {
			entry.Model = m
		}
	}
	if entry.APIURL == "" && p == llm.ProviderCustom {
		entry.APIURL = config.BaseURLFor(name)
	}

	if err := app.Providers.Set(ctx, entry, in.Use); err != nil {
		return fmt.Errorf("failed to save provider %s: %w", name, err)
	}
	fmt.Fprintf(out, "Saved %s (%s)\n", name, entry.Model)
	return nil
}

// UseProvider switches the current provider.
func UseProvider(ctx context.Context, app *App, provider string, out io.Writer) error {
	if err := app.Providers.Use(ctx, provider); err != nil {
		return err
	}
	current, err := app.Providers.Current(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Using %s (%s)\n", current.Provider, current.Model)
	return nil
}

// ShowProvider prints one saved entry, or the current one when provider
// is empty. The API key is masked.
func ShowProvider(ctx context.Context, app *App, provider string, out io.Writer) error {
	var (
		entry model.LLMConfig
		err   error
	)
	if provider == "" {
		entry, err = app.Providers.Current(ctx)
	} else {
		entry, err = app.Providers.Get(ctx, provider)
	}
	if err != nil {
		return err
	}

	baseURL, err := llm.ResolveBaseURL(entry.Provider, entry.APIURL)
	if err != nil {
		baseURL = "(" + err.Error() + ")"
	}
	fmt.Fprintf(out, "Provider: %s\n", entry.Provider)
	fmt.Fprintf(out, "Model:    %s\n", entry.Model)
	fmt.Fprintf(out, "Endpoint: %s\n", baseURL)
	fmt.Fprintf(out, "API key:  %s\n", maskKey(entry.APIKey))
	if entry.MaxTokens > 0 {
		fmt.Fprintf(out, "Max tokens: %d\n", entry.MaxTokens)
	}
	if entry.Temperature != nil {
		fmt.Fprintf(out, "Temperature: %.2f\n", *entry.Temperature)
	}
	return nil
}

// ListProviders prints saved providers, marking the current one, followed
// by providers that could be added.
func ListProviders(ctx context.Context, app *App, out io.Writer) error {
	cfg, err := app.Providers.Load(ctx)
	if err != nil {
		return err
	}
	saved, err := app.Providers.List(ctx)
	if err != nil {
		return err
	}

	if len(saved) == 0 {
		fmt.Fprintln(out, "No providers configured")
	}
	for _, name := range saved {
		marker := " "
		if name == cfg.CurrentProvider {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-10s %s\n", marker, name, cfg.Configs[name].Model)
	}

	var available []string
	for _, name := range config.SupportedProviders() {
		if _, ok := cfg.Configs[name]; !ok {
			available = append(available, name)
		}
	}
	if len(available) > 0 {
		fmt.Fprintf(out, "Available: %s\n", strings.Join(available, ", "))
	}
	return nil
}

// RemoveProvider deletes saved credentials.
func RemoveProvider(ctx context.Context, app *App, provider string, out io.Writer) error {
	if err := app.Providers.Remove(ctx, provider); err != nil {
		return err
	}
	fmt.Fprintf(out, "Removed %s\n", provider)
	return nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
