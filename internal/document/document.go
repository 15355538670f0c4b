package document

import "strings"

// Document is the immutable source text a mindmap is generated from.
// It is owned by the caller; the pipeline only reads it.
type Document struct {
	ID    string
	Title string
	Text  string
}

// Len returns the length of the source text in bytes.
func (d Document) Len() int {
	return len(d.Text)
}

// Sample returns the first n bytes of the text, trimmed to a rune boundary,
// for cheap classification calls.
func (d Document) Sample(n int) string {
	if len(d.Text) <= n {
		return d.Text
	}
	s := d.Text[:n]
	// Back off a partial UTF-8 sequence at the cut point.
	for len(s) > 0 && s[len(s)-1]&0xC0 == 0x80 {
		s = s[:len(s)-1]
	}
	return s
}

// Chunk is a bounded, overlapping slice of the source document.
// Chunks are produced once, ordered by ID, and never mutated.
type Chunk struct {
	ID    int
	Start int // byte offset, inclusive
	End   int // byte offset, exclusive
	Text  string
}

// Level identifies a tier of the concept hierarchy.
type Level int

const (
	LevelTopic Level = iota
	LevelSubtopic
	LevelDetail
)

func (l Level) String() string {
	switch l {
	case LevelTopic:
		return "topic"
	case LevelSubtopic:
		return "subtopic"
	case LevelDetail:
		return "detail"
	}
	return "unknown"
}

// Next returns the level below l, or false at the bottom of the hierarchy.
func (l Level) Next() (Level, bool) {
	if l >= LevelDetail {
		return l, false
	}
	return l + 1, true
}

// Candidate is an unverified concept proposed by a single extraction call.
// Multiple candidates may describe the same real-world concept; the
// deduplication engine resolves that.
type Candidate struct {
	Text       string
	Level      Level
	Chunks     ChunkSet
	Confidence float64 // self-reported hint in [0,1]
	Frequency  int     // occurrences across independent chunk calls
	ParentID   string  // owning node ID, empty for topics
}

// JoinChunkText concatenates the text of the chunks in set, in chunk order.
func JoinChunkText(chunks []Chunk, set ChunkSet) string {
	var sb strings.Builder
	for _, c := range chunks {
		if !set.Contains(c.ID) {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(c.Text)
	}
	return sb.String()
}
