package document

import (
	"sort"
	"strconv"
	"strings"
)

// ChunkSet is a set of chunk IDs tying a concept back to its source spans.
type ChunkSet map[int]struct{}

// NewChunkSet builds a set from the given IDs.
func NewChunkSet(ids ...int) ChunkSet {
	s := make(ChunkSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s ChunkSet) Contains(id int) bool {
	_, ok := s[id]
	return ok
}

func (s ChunkSet) Add(id int) {
	s[id] = struct{}{}
}

// Union returns a new set holding the members of both s and other.
func (s ChunkSet) Union(other ChunkSet) ChunkSet {
	out := make(ChunkSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

func (s ChunkSet) Clone() ChunkSet {
	out := make(ChunkSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// IDs returns the members in ascending order.
func (s ChunkSet) IDs() []int {
	out := make([]int, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Key returns a canonical string form, usable as a cache key component.
func (s ChunkSet) Key() string {
	ids := s.IDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
