// Package providers persists LLM credentials for several providers and
// tracks which one is in use.
//
// Information Hiding:
// - Storage key and document layout of the multi-provider config
// - Validation of a provider entry before it is saved
// - Current-provider bookkeeping on set and remove

package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/richinex/fluentlens/llm"
	"github.com/richinex/fluentlens/model"
	"github.com/richinex/fluentlens/storage"
)

// StorageKey is where the multi-provider configuration is persisted.
const StorageKey = "fluent_read_llm_config"

// ErrConfigNotFound is returned when no provider has been configured or
// the requested provider has no entry.
var ErrConfigNotFound = errors.New("LLM configuration not found")

// Store reads and writes the multi-provider configuration. Every call
// goes to storage, so several processes sharing one database see each
// other's changes.
type Store struct {
	storage storage.Storage
	logger  *zap.Logger
	mu      sync.Mutex
}

// New creates a provider store backed by st.
func New(st storage.Storage, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{storage: st, logger: logger}
}

// Load returns the full configuration, empty if nothing was saved.
func (s *Store) Load(ctx context.Context) (model.MultiLLMConfig, error) {
	cfg, _, err := storage.GetJSON[model.MultiLLMConfig](ctx, s.storage, StorageKey)
	if err != nil {
		return model.MultiLLMConfig{}, fmt.Errorf("load provider config: %w", err)
	}
	if cfg.Configs == nil {
		cfg.Configs = map[string]model.LLMConfig{}
	}
	return cfg, nil
}

// Current returns the configuration of the selected provider.
func (s *Store) Current(ctx context.Context) (model.LLMConfig, error) {
	cfg, err := s.Load(ctx)
	if err != nil {
		return model.LLMConfig{}, err
	}
	current, ok := cfg.Current()
	if !ok {
		return model.LLMConfig{}, ErrConfigNotFound
	}
	return current, nil
}

// Has reports whether a usable current provider is configured.
func (s *Store) Has(ctx context.Context) bool {
	current, err := s.Current(ctx)
	return err == nil && current.Validate() == nil
}

// Get returns the saved entry for provider.
func (s *Store) Get(ctx context.Context, provider string) (model.LLMConfig, error) {
	name, err := canonical(provider)
	if err != nil {
		return model.LLMConfig{}, err
	}
	cfg, err := s.Load(ctx)
	if err != nil {
		return model.LLMConfig{}, err
	}
	entry, ok := cfg.Configs[name]
	if !ok {
		return model.LLMConfig{}, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	return entry, nil
}

// Set validates and saves an entry. The first saved provider becomes
// current; makeCurrent forces the switch for later ones.
func (s *Store) Set(ctx context.Context, entry model.LLMConfig, makeCurrent bool) error {
	name, err := canonical(entry.Provider)
	if err != nil {
		return &model.Error{Kind: model.KindInvalidConfig, Cause: err}
	}
	entry.Provider = name
	if err := entry.Validate(); err != nil {
		return err
	}

	return s.update(ctx, func(cfg *model.MultiLLMConfig) error {
		cfg.Configs[name] = entry
		if makeCurrent || cfg.CurrentProvider == "" {
			cfg.CurrentProvider = name
		}
		s.logger.Info("provider saved",
			zap.String("provider", name),
			zap.String("model", entry.Model),
			zap.Bool("current", cfg.CurrentProvider == name))
		return nil
	})
}

// Use switches the current provider. The provider must already have an entry.
func (s *Store) Use(ctx context.Context, provider string) error {
	name, err := canonical(provider)
	if err != nil {
		return err
	}
	return s.update(ctx, func(cfg *model.MultiLLMConfig) error {
		if _, ok := cfg.Configs[name]; !ok {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, name)
		}
		cfg.CurrentProvider = name
		return nil
	})
}

// Remove deletes a provider entry. Removing the current provider selects
// the alphabetically first remaining one, or none.
func (s *Store) Remove(ctx context.Context, provider string) error {
	name, err := canonical(provider)
	if err != nil {
		return err
	}
	return s.update(ctx, func(cfg *model.MultiLLMConfig) error {
		if _, ok := cfg.Configs[name]; !ok {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, name)
		}
		delete(cfg.Configs, name)
		if cfg.CurrentProvider == name {
			cfg.CurrentProvider = ""
			if names := sortedNames(cfg.Configs); len(names) > 0 {
				cfg.CurrentProvider = names[0]
			}
		}
		return nil
	})
}

// Clear deletes every saved provider.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("clear provider config: %w", err)
	}
	return nil
}

// List returns the configured provider names, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	cfg, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return sortedNames(cfg.Configs), nil
}

func (s *Store) update(ctx context.Context, fn func(*model.MultiLLMConfig) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&cfg); err != nil {
		return err
	}
	if err := storage.PutJSON(ctx, s.storage, StorageKey, cfg); err != nil {
		return fmt.Errorf("save provider config: %w", err)
	}
	return nil
}

func canonical(provider string) (string, error) {
	p, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

func sortedNames(configs map[string]model.LLMConfig) []string {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)
	return names
}
