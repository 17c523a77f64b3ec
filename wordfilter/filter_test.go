package wordfilter

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/fluentlens/model"
	"github.com/richinex/fluentlens/storage"
	"github.com/richinex/fluentlens/vocabulary"
)

func newStore(t *testing.T) *vocabulary.Store {
	t.Helper()
	s := vocabulary.New(storage.NewInMemoryStorage())
	s.Init(context.Background())
	return s
}

func TestExtractAndFilterWordsPreservesOrder(t *testing.T) {
	got := ExtractAndFilterWords(context.Background(), "The quick brown fox jumps", newStore(t))
	assert.Equal(t, []string{"quick", "brown", "fox", "jumps"}, got)
}

func TestExtractAndFilterWordsExcludesKnownWords(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.MarkWord(ctx, "Fox", model.StatusKnown))

	got := ExtractAndFilterWords(ctx, "The quick brown fox jumps", store)
	assert.Equal(t, []string{"quick", "brown", "jumps"}, got)
}

func TestExtractAndFilterWordsKeepsUnknownAndIgnored(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.MarkWord(ctx, "quick", model.StatusUnknown))
	require.NoError(t, store.MarkWord(ctx, "brown", model.StatusIgnored))

	got := ExtractAndFilterWords(ctx, "quick brown", store)
	assert.Equal(t, []string{"quick", "brown"}, got)
}

func TestExtractAndFilterWordsCapsResult(t *testing.T) {
	var words []string
	for i := 0; i < 300; i++ {
		words = append(words, fmt.Sprintf("zx%c%c", 'a'+i/26, 'a'+i%26))
	}

	got := ExtractAndFilterWords(context.Background(), strings.Join(words, " "), newStore(t))

	require.Len(t, got, MaxFilteredWords)
	assert.Equal(t, words[:MaxFilteredWords], got)
}

func TestExtractAndFilterWordsTokenization(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"single letters dropped", "a b c kettle", []string{"kettle"}},
		{"digits are not words", "42 apples 2024 abc123", []string{"apples"}},
		{"case folded and deduplicated", "Repository repository REPOSITORY", []string{"repository"}},
		{"contractions are one token", "the cat's whiskers don't twitch", []string{"cat's", "whiskers", "twitch"}},
		{"punctuation split", "deprecated,obsolete;archaic.", []string{"deprecated", "obsolete", "archaic"}},
		{"empty", "", []string{}},
		{"only function words", "it is what it is", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractAndFilterWords(context.Background(), tt.text, newStore(t))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractAndFilterWordsInitializesStore(t *testing.T) {
	store := vocabulary.New(storage.NewInMemoryStorage())
	require.False(t, store.Initialized())

	ExtractAndFilterWords(context.Background(), "lantern", store)

	assert.True(t, store.Initialized())
}

func TestIsFunctionWord(t *testing.T) {
	assert.True(t, IsFunctionWord("The"))
	assert.True(t, IsFunctionWord("don't"))
	assert.False(t, IsFunctionWord("lantern"))
	assert.False(t, IsFunctionWord("# articles and determiners"))
}
