package dsa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrieInsertGetDelete(t *testing.T) {
	tr := NewTrie[int]()
	tr.Insert("deliberate", 1)
	tr.Insert("deliberated", 2)
	tr.Insert("deliberate", 3)

	assert.Equal(t, 2, tr.Len(), "re-inserting replaces")
	v, ok := tr.Get("deliberate")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = tr.Get("delib")
	assert.False(t, ok, "a prefix is not a key")

	assert.True(t, tr.Delete("deliberate"))
	assert.False(t, tr.Delete("deliberate"))
	assert.Equal(t, 1, tr.Len())
}

func TestTrieMatch(t *testing.T) {
	tr := NewTrie[string]()
	for _, w := range []string{"ephemeral", "epic", "epoch", "apple", "epicurean"} {
		tr.Insert(w, w)
	}

	assert.Equal(t, []string{"epic", "epicurean"}, tr.Match("epi", 0))
	assert.Equal(t, []string{"ephemeral", "epic", "epicurean", "epoch"}, tr.Match("ep", 0))
	assert.Equal(t, []string{"ephemeral", "epic"}, tr.Match("ep", 2))
	assert.Equal(t, []string{}, tr.Match("zz", 0))
	assert.Len(t, tr.Match("", 0), 5)
}

func TestTrieWalkPrefixStops(t *testing.T) {
	tr := NewTrie[int]()
	tr.Insert("a", 1)
	tr.Insert("ab", 2)
	tr.Insert("abc", 3)

	var seen []string
	tr.WalkPrefix("a", func(k string, v int) bool {
		seen = append(seen, k)
		return v < 2
	})
	assert.Equal(t, []string{"a", "ab"}, seen)
}
