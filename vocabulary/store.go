// Package vocabulary holds the reader's word knowledge model.
//
// Information Hiding:
// - Word sets and their exclusivity rules hidden behind Store
// - Persistence format (one JSON document per reader) hidden
// - Concurrent first-time loads collapse into one storage read

package vocabulary

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/richinex/fluentlens/internal/dsa"
	"github.com/richinex/fluentlens/model"
	"github.com/richinex/fluentlens/storage"
)

// StorageKey is where the vocabulary configuration is persisted.
const StorageKey = "flow-reader-vocabulary"

// Store is the source of truth for a reader's known, unknown and ignored
// words. Create one with New and call Init once at startup.
type Store struct {
	storage storage.Storage
	logger  *zap.Logger
	now     func() time.Time

	initGroup singleflight.Group

	// saveMu orders snapshots and writes so the last mutation is the last write.
	saveMu sync.Mutex

	mu          sync.RWMutex
	initialized bool
	level       model.VocabularyLevel
	seq         uint64
	known       *wordSet
	unknown     *wordSet
	ignored     *wordSet
	index       *dsa.Trie[model.WordMasteryStatus]
	lastUpdated int64
}

// WordEntry is a marked word and its status.
type WordEntry struct {
	Word   string                  `json:"word"`
	Status model.WordMasteryStatus `json:"status"`
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source for lastUpdated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an uninitialized store backed by st.
func New(st storage.Storage, opts ...Option) *Store {
	s := &Store{
		storage: st,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resetLocked(model.DefaultVocabularyConfig())
	return s
}

// Init loads the persisted configuration. Calling it again once
// initialized is a no-op, and concurrent first calls share one load.
// A failed load falls back to defaults; the store is still marked
// initialized so callers are never blocked.
func (s *Store) Init(ctx context.Context) {
	if s.Initialized() {
		return
	}

	_, _, _ = s.initGroup.Do("init", func() (any, error) {
		if s.Initialized() {
			return nil, nil
		}

		cfg, err := s.load(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.logger.Warn("vocabulary load failed, using defaults", zap.Error(err))
			cfg = model.DefaultVocabularyConfig()
		}
		s.resetLocked(cfg)
		s.initialized = true

		s.logger.Info("vocabulary initialized",
			zap.String("level", string(s.level)),
			zap.Int("known", s.known.len()),
			zap.Int("unknown", s.unknown.len()),
			zap.Int("ignored", s.ignored.len()),
		)
		return nil, nil
	})
}

// Initialized reports whether Init or Refresh has completed.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Refresh reloads from storage, discarding in-memory state.
// Unlike Init, storage errors are returned.
func (s *Store) Refresh(ctx context.Context) error {
	cfg, err := s.load(ctx)
	if err != nil {
		return fmt.Errorf("refresh vocabulary: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(cfg)
	s.initialized = true
	return nil
}

// Close drops in-memory state and marks the store uninitialized.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(model.DefaultVocabularyConfig())
	s.initialized = false
}

// IsWordKnown reports whether word is marked known.
func (s *Store) IsWordKnown(word string) bool {
	return s.hasStatus(word, model.StatusKnown)
}

// IsWordUnknown reports whether word is marked unknown.
func (s *Store) IsWordUnknown(word string) bool {
	return s.hasStatus(word, model.StatusUnknown)
}

// IsWordIgnored reports whether word is marked ignored.
func (s *Store) IsWordIgnored(word string) bool {
	return s.hasStatus(word, model.StatusIgnored)
}

func (s *Store) hasStatus(word string, status model.WordMasteryStatus) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.setFor(status).has(model.NormalizeWord(word))
}

// GetWordStatus returns the status of word; ok is false if it has none.
func (s *Store) GetWordStatus(word string) (status model.WordMasteryStatus, ok bool) {
	normalized := model.NormalizeWord(word)

	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.known.has(normalized):
		return model.StatusKnown, true
	case s.unknown.has(normalized):
		return model.StatusUnknown, true
	case s.ignored.has(normalized):
		return model.StatusIgnored, true
	}
	return "", false
}

// MarkWord moves word into the status set and persists the result.
// Blank words are ignored.
func (s *Store) MarkWord(ctx context.Context, word string, status model.WordMasteryStatus) error {
	return s.MarkWords(ctx, []string{word}, status)
}

// MarkWords moves every word into the status set under one lock, then
// persists once.
func (s *Store) MarkWords(ctx context.Context, words []string, status model.WordMasteryStatus) error {
	if !status.Valid() {
		return fmt.Errorf("mark words: unknown status %q", status)
	}

	normalized := make([]string, 0, len(words))
	for _, word := range words {
		if w := model.NormalizeWord(word); w != "" {
			normalized = append(normalized, w)
		}
	}
	if len(normalized) == 0 {
		return nil
	}

	return s.mutate(ctx, func() {
		for _, w := range normalized {
			s.assignLocked(w, status)
		}
		s.logger.Debug("words marked",
			zap.Strings("words", normalized),
			zap.String("status", string(status)),
		)
	})
}

// UpdateLevel sets the vocabulary level and persists it.
func (s *Store) UpdateLevel(ctx context.Context, level model.VocabularyLevel) error {
	if !level.Valid() {
		return fmt.Errorf("update level: unknown level %q", level)
	}
	return s.mutate(ctx, func() {
		s.level = level
	})
}

// ClearAll resets to the defaults and persists them.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.mutate(ctx, func() {
		s.resetLocked(model.DefaultVocabularyConfig())
	})
}

// Replace swaps the whole configuration, normalizing it first.
func (s *Store) Replace(ctx context.Context, cfg model.UserVocabularyConfig) error {
	if cfg.Level != "" && !cfg.Level.Valid() {
		return fmt.Errorf("replace vocabulary: unknown level %q", cfg.Level)
	}
	return s.mutate(ctx, func() {
		s.resetLocked(cfg)
	})
}

// mutate applies fn under the write lock, stamps lastUpdated and persists
// the resulting snapshot. Storage errors are returned to the caller.
func (s *Store) mutate(ctx context.Context, fn func()) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	fn()
	s.lastUpdated = s.now().UnixMilli()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := storage.PutJSON(ctx, s.storage, StorageKey, snapshot); err != nil {
		return fmt.Errorf("save vocabulary: %w", err)
	}
	return nil
}

// Level returns the current vocabulary level.
func (s *Store) Level() model.VocabularyLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

// KnownWords returns known words in the order they were marked.
func (s *Store) KnownWords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.known.list()
}

// UnknownWords returns unknown words in the order they were marked.
func (s *Store) UnknownWords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unknown.list()
}

// IgnoredWords returns ignored words in the order they were marked.
func (s *Store) IgnoredWords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ignored.list()
}

// LastUpdated returns the last mutation time in unix milliseconds.
func (s *Store) LastUpdated() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Search returns up to limit marked words starting with prefix, in
// alphabetical order. A limit of zero or less returns every match.
func (s *Store) Search(prefix string, limit int) []WordEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := []WordEntry{}
	s.index.WalkPrefix(model.NormalizeWord(prefix), func(w string, status model.WordMasteryStatus) bool {
		entries = append(entries, WordEntry{Word: w, Status: status})
		return limit <= 0 || len(entries) < limit
	})
	return entries
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() model.UserVocabularyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Stats summarizes the current configuration.
func (s *Store) Stats() model.VocabularyStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.VocabularyStats{
		Level:        s.level,
		KnownCount:   s.known.len(),
		UnknownCount: s.unknown.len(),
		IgnoredCount: s.ignored.len(),
		LastUpdated:  s.lastUpdated,
	}
}

func (s *Store) load(ctx context.Context) (model.UserVocabularyConfig, error) {
	cfg, ok, err := storage.GetJSON[model.UserVocabularyConfig](ctx, s.storage, StorageKey)
	if err != nil {
		return model.UserVocabularyConfig{}, err
	}
	if !ok {
		return model.DefaultVocabularyConfig(), nil
	}
	return cfg, nil
}

func (s *Store) setFor(status model.WordMasteryStatus) *wordSet {
	switch status {
	case model.StatusKnown:
		return s.known
	case model.StatusUnknown:
		return s.unknown
	default:
		return s.ignored
	}
}

// resetLocked replaces in-memory state with cfg. Words listed under more
// than one status keep the last one applied (known, unknown, ignored).
func (s *Store) resetLocked(cfg model.UserVocabularyConfig) {
	s.level = cfg.Level
	if !s.level.Valid() {
		s.level = model.DefaultLevel
	}
	s.known = newWordSet(&s.seq)
	s.unknown = newWordSet(&s.seq)
	s.ignored = newWordSet(&s.seq)
	s.index = dsa.NewTrie[model.WordMasteryStatus]()

	apply := func(words []string, status model.WordMasteryStatus) {
		for _, word := range words {
			if w := model.NormalizeWord(word); w != "" {
				s.assignLocked(w, status)
			}
		}
	}
	apply(cfg.KnownWords, model.StatusKnown)
	apply(cfg.UnknownWords, model.StatusUnknown)
	apply(cfg.IgnoredWords, model.StatusIgnored)
	s.lastUpdated = cfg.LastUpdated
}

// assignLocked moves a normalized word into exactly one status set.
func (s *Store) assignLocked(w string, status model.WordMasteryStatus) {
	s.known.remove(w)
	s.unknown.remove(w)
	s.ignored.remove(w)
	s.setFor(status).add(w)
	s.index.Insert(w, status)
}

func (s *Store) snapshotLocked() model.UserVocabularyConfig {
	return model.UserVocabularyConfig{
		Level:        s.level,
		KnownWords:   s.known.list(),
		UnknownWords: s.unknown.list(),
		IgnoredWords: s.ignored.list(),
		LastUpdated:  s.lastUpdated,
	}
}
