package vocabulary

import "sort"

// wordSet is a set of normalized words that remembers insertion order,
// so persisted lists and prompt hints stay stable between runs.
type wordSet struct {
	seq     *uint64
	members map[string]uint64
}

func newWordSet(seq *uint64) *wordSet {
	return &wordSet{seq: seq, members: make(map[string]uint64)}
}

func (s *wordSet) has(word string) bool {
	_, ok := s.members[word]
	return ok
}

func (s *wordSet) add(word string) {
	if s.has(word) {
		return
	}
	*s.seq++
	s.members[word] = *s.seq
}

func (s *wordSet) remove(word string) {
	delete(s.members, word)
}

func (s *wordSet) len() int {
	return len(s.members)
}

// list returns the words in insertion order.
func (s *wordSet) list() []string {
	words := make([]string, 0, len(s.members))
	for word := range s.members {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		return s.members[words[i]] < s.members[words[j]]
	})
	return words
}
