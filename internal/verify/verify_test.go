package verify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dgallion1/mindmapgen/internal/cache"
	"github.com/dgallion1/mindmapgen/internal/document"
	"github.com/dgallion1/mindmapgen/internal/extract"
)

type fakeProvider struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testChunks = []document.Chunk{
	{ID: 0, Text: "The hippocampus consolidates episodic memories during sleep."},
	{ID: 1, Text: "Working memory holds a handful of items for seconds."},
}

func TestParseVerdicts(t *testing.T) {
	got, err := parseVerdicts("1. YES 0.9\n2. NO 0.2\n3. yes 0.61", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got[0].Verified || got[0].Confidence != 0.9 {
		t.Errorf("entry 1: %+v", got[0])
	}
	if got[1].Verified {
		t.Errorf("entry 2 should fail: %+v", got[1])
	}
	if !got[2].Verified || got[2].Confidence != 0.61 {
		t.Errorf("entry 3: %+v", got[2])
	}
}

func TestParseVerdicts_MissingConfidenceDefaults(t *testing.T) {
	got, err := parseVerdicts("1. YES\n2. NO", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Confidence != defaultYesConfidence || got[1].Confidence != defaultNoConfidence {
		t.Errorf("unexpected defaults: %+v", got)
	}
}

func TestParseVerdicts_MissingLineIsParseError(t *testing.T) {
	_, err := parseVerdicts("1. YES 0.8", 2)
	var pe *extract.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseVerdicts_ChattyResponseStillParses(t *testing.T) {
	resp := "Here is my assessment:\n1. YES (0.85) - clearly supported\n2. NO (0.1) - not in the text"
	got, err := parseVerdicts(resp, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got[0].Verified || got[0].Confidence != 0.85 {
		t.Errorf("entry 1: %+v", got[0])
	}
	if got[1].Verified {
		t.Errorf("entry 2: %+v", got[1])
	}
}

func TestBatches_GroupsByChunkSetAndSplits(t *testing.T) {
	e := NewEngine(&fakeProvider{}, cache.New(), 2, testLogger())
	reqs := []Request{
		{ID: "a", Chunks: document.NewChunkSet(0)},
		{ID: "b", Chunks: document.NewChunkSet(0, 1)},
		{ID: "c", Chunks: document.NewChunkSet(0)},
		{ID: "d", Chunks: document.NewChunkSet(0)},
	}
	batches := e.Batches(reqs)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	for _, b := range batches {
		if len(b) > 2 {
			t.Errorf("batch exceeds size limit: %d", len(b))
		}
		key := b[0].Chunks.Key()
		for _, r := range b {
			if r.Chunks.Key() != key {
				t.Error("batch mixes chunk sets")
			}
		}
	}
}

func TestVerifyBatch_FabricatedNodeRejected(t *testing.T) {
	p := &fakeProvider{responses: []string{"1. YES 0.9\n2. NO 0.15"}}
	e := NewEngine(p, cache.New(), 8, testLogger())

	batch := []Request{
		{ID: "real", Label: "Hippocampal memory consolidation", Level: document.LevelTopic, Chunks: document.NewChunkSet(0)},
		{ID: "fake", Label: "Quantum entanglement in neurons", Level: document.LevelTopic, Chunks: document.NewChunkSet(0)},
	}
	got, err := e.VerifyBatch(context.Background(), testChunks, batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got["real"].Verified || got["real"].Confidence != 0.9 {
		t.Errorf("supported node: %+v", got["real"])
	}
	if got["fake"].Verified {
		t.Errorf("fabricated node must be rejected: %+v", got["fake"])
	}
}

func TestVerifyBatch_MemoizedAcrossCalls(t *testing.T) {
	p := &fakeProvider{responses: []string{"1. YES 0.8"}}
	memo := cache.New()
	e := NewEngine(p, memo, 8, testLogger())

	req := Request{ID: "n1", Label: "Working memory span", Level: document.LevelSubtopic, Chunks: document.NewChunkSet(1)}
	if _, err := e.VerifyBatch(context.Background(), testChunks, []Request{req}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// Same label and chunk set under a different node ID: no new call.
	req2 := req
	req2.ID = "n2"
	got, err := e.VerifyBatch(context.Background(), testChunks, []Request{req2})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", p.calls)
	}
	if !got["n2"].Verified || got["n2"].Confidence != 0.8 {
		t.Errorf("cached verdict mismatch: %+v", got["n2"])
	}
}

// Batch composition must not change per-node outcomes: verifying the same
// nodes one at a time yields the same verdicts as one batched call.
func TestVerifyBatch_EquivalentToSingleNodeCalls(t *testing.T) {
	batched := NewEngine(&fakeProvider{responses: []string{"1. YES 0.9\n2. NO 0.15"}}, cache.New(), 8, testLogger())
	single := NewEngine(&fakeProvider{responses: []string{"1. YES 0.9", "1. NO 0.15"}}, cache.New(), 8, testLogger())

	reqs := []Request{
		{ID: "a", Label: "Memory consolidation", Level: document.LevelTopic, Chunks: document.NewChunkSet(0)},
		{ID: "b", Label: "Made-up claim", Level: document.LevelTopic, Chunks: document.NewChunkSet(0)},
	}

	fromBatch, err := batched.VerifyBatch(context.Background(), testChunks, reqs)
	if err != nil {
		t.Fatalf("batched: %v", err)
	}
	fromSingles := make(map[string]Verdict)
	for _, r := range reqs {
		got, err := single.VerifyBatch(context.Background(), testChunks, []Request{r})
		if err != nil {
			t.Fatalf("single %s: %v", r.ID, err)
		}
		fromSingles[r.ID] = got[r.ID]
	}

	for id, want := range fromSingles {
		if fromBatch[id] != want {
			t.Errorf("node %s: batched %+v, single %+v", id, fromBatch[id], want)
		}
	}
}

func TestVerifyBatch_ProviderErrorPassesThrough(t *testing.T) {
	wantErr := errors.New("overloaded")
	e := NewEngine(&fakeProvider{err: wantErr}, cache.New(), 8, testLogger())
	_, err := e.VerifyBatch(context.Background(), testChunks, []Request{
		{ID: "a", Label: "x", Chunks: document.NewChunkSet(0)},
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected provider error, got %v", err)
	}
}
