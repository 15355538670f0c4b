package extract

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgallion1/mindmapgen/internal/document"
	"github.com/dgallion1/mindmapgen/internal/llm"
)

const (
	topicsMaxTokens   = 1000
	childrenMaxTokens = 1000
)

// Extractor turns chunk text into concept candidates via LLM completions.
// It performs one call per invocation; concurrency and retry live with the
// caller's scheduler.
type Extractor struct {
	provider llm.Provider
	log      *slog.Logger
}

func New(provider llm.Provider, log *slog.Logger) *Extractor {
	return &Extractor{provider: provider, log: log}
}

// Topics extracts top-level concept candidates from one chunk.
func (e *Extractor) Topics(ctx context.Context, dt DocumentType, chunk document.Chunk) ([]document.Candidate, error) {
	prompt := BuildTopicsPrompt(dt, chunk.Text)
	resp, err := e.provider.Complete(ctx, prompt, topicsMaxTokens)
	if err != nil {
		return nil, err
	}
	return e.toCandidates(resp, document.LevelTopic, chunk.ID, "")
}

// Children extracts candidates one level below parentLabel from one chunk:
// subtopics of a topic, or details of a subtopic.
func (e *Extractor) Children(ctx context.Context, dt DocumentType, parentLabel string, parentID string, level document.Level, chunk document.Chunk) ([]document.Candidate, error) {
	prompt := BuildChildrenPrompt(dt, parentLabel, level, chunk.Text)
	resp, err := e.provider.Complete(ctx, prompt, childrenMaxTokens)
	if err != nil {
		return nil, err
	}
	return e.toCandidates(resp, level, chunk.ID, parentID)
}

func (e *Extractor) toCandidates(resp string, level document.Level, chunkID int, parentID string) ([]document.Candidate, error) {
	parsed, err := parseCandidates(resp)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := make([]document.Candidate, 0, len(parsed))
	for _, c := range parsed {
		label := CleanLabel(c.Name)
		if label == "" {
			if c.Name != "" {
				e.log.Debug("discarded candidate label", "level", level.String(), "raw", truncate(c.Name, 80))
			}
			continue
		}
		key := strings.ToLower(label)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, document.Candidate{
			Text:       label,
			Level:      level,
			Chunks:     document.NewChunkSet(chunkID),
			Confidence: c.Confidence,
			Frequency:  1,
			ParentID:   parentID,
		})
	}
	return out, nil
}

// Tally folds candidates with identical normalized labels into one,
// summing frequency, unioning chunk sets, and keeping the highest
// confidence hint. Frequency across independent chunk calls is the
// salience signal used for importance ordering downstream.
func Tally(cands []document.Candidate) []document.Candidate {
	byKey := make(map[string]*document.Candidate)
	var order []string
	for _, c := range cands {
		key := strings.ToLower(c.Text)
		if cur, ok := byKey[key]; ok {
			cur.Frequency += c.Frequency
			cur.Chunks = cur.Chunks.Union(c.Chunks)
			if c.Confidence > cur.Confidence {
				cur.Confidence = c.Confidence
			}
			continue
		}
		cp := c
		cp.Chunks = c.Chunks.Clone()
		byKey[key] = &cp
		order = append(order, key)
	}
	sort.Strings(order)
	out := make([]document.Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}
