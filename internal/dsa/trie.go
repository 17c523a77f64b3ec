// Package dsa provides in-memory indexes over normalized words.
// Uses go-radix for a compressed prefix tree.
package dsa

import (
	"github.com/armon/go-radix"
)

// Trie is a radix tree keyed by word. Words sharing a stem share nodes,
// so prefix lookups cost O(k) in the prefix length plus the matches.
//
// Trie is not safe for concurrent use; owners guard it with their own lock.
type Trie[V any] struct {
	tree *radix.Tree
}

// NewTrie creates an empty tree.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{tree: radix.New()}
}

// Insert sets the value for key, replacing any previous one.
func (t *Trie[V]) Insert(key string, value V) {
	t.tree.Insert(key, value)
}

// Get looks up key.
func (t *Trie[V]) Get(key string) (V, bool) {
	val, found := t.tree.Get(key)
	if !found {
		var zero V
		return zero, false
	}
	v, ok := val.(V)
	return v, ok
}

// Delete removes key and reports whether it was present.
func (t *Trie[V]) Delete(key string) bool {
	_, deleted := t.tree.Delete(key)
	return deleted
}

// Len returns the number of keys.
func (t *Trie[V]) Len() int {
	return t.tree.Len()
}

// WalkPrefix visits keys starting with prefix in lexicographic order
// until fn returns false.
func (t *Trie[V]) WalkPrefix(prefix string, fn func(key string, value V) bool) {
	t.tree.WalkPrefix(prefix, func(k string, v interface{}) bool {
		val, ok := v.(V)
		if !ok {
			return false
		}
		return !fn(k, val)
	})
}

// Match returns up to limit keys starting with prefix, in lexicographic
// order. A limit of zero or less means no limit.
func (t *Trie[V]) Match(prefix string, limit int) []string {
	keys := []string{}
	t.WalkPrefix(prefix, func(k string, _ V) bool {
		keys = append(keys, k)
		return limit <= 0 || len(keys) < limit
	})
	return keys
}
