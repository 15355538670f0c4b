package chunker

import (
	"github.com/dgallion1/mindmapgen/internal/document"
)

// Config controls chunking behavior. All sizes are in bytes of source text.
type Config struct {
	ChunkSize      int // Target chunk length.
	Overlap        int // Shared length between consecutive chunks.
	BoundaryWindow int // How far a boundary may move to land on a sentence end.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      8000,
		Overlap:        250,
		BoundaryWindow: 200,
	}
}

// Split cuts text into ordered, overlapping chunks. The union of chunk spans
// covers [0, len(text)) with no gaps, and each chunk shares exactly
// cfg.Overlap bytes with its successor. Chunk ends are snapped to the nearest
// sentence terminator within cfg.BoundaryWindow; when none is found the raw
// offset is used rather than failing.
func Split(text string, cfg Config) []document.Chunk {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8000
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize / 32
	}
	if cfg.BoundaryWindow < 0 {
		cfg.BoundaryWindow = 0
	}

	if text == "" {
		return nil
	}
	if len(text) <= cfg.ChunkSize {
		return []document.Chunk{{ID: 0, Start: 0, End: len(text), Text: text}}
	}

	var chunks []document.Chunk
	start := 0
	for start < len(text) {
		end := start + cfg.ChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = snapToSentence(text, start, end, cfg.BoundaryWindow)
		}

		chunks = append(chunks, document.Chunk{
			ID:    len(chunks),
			Start: start,
			End:   end,
			Text:  text[start:end],
		})

		if end >= len(text) {
			break
		}
		next := end - cfg.Overlap
		if next <= start {
			// Overlap would stall progress on a tiny snapped chunk.
			next = end
		}
		start = next
	}
	return chunks
}

// snapToSentence moves end to just past the nearest sentence terminator
// within window bytes, preferring forward movement (matching reading order).
// Returns the raw end when no terminator is in range.
func snapToSentence(text string, start, end, window int) int {
	for d := 0; d <= window; d++ {
		if p := end - 1 + d; p < len(text) && isSentenceEnd(text, p) {
			return p + 1
		}
		if p := end - 1 - d; p > start && isSentenceEnd(text, p) {
			return p + 1
		}
	}
	return end
}

// isSentenceEnd reports whether text[p] terminates a sentence: one of .!?
// followed by whitespace, a closing quote, or end of text.
func isSentenceEnd(text string, p int) bool {
	switch text[p] {
	case '.', '!', '?':
	default:
		return false
	}
	if p+1 >= len(text) {
		return true
	}
	switch text[p+1] {
	case ' ', '\t', '\n', '\r', '"', '\'', ')':
		return true
	}
	return false
}
