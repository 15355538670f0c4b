// Package verify checks mindmap nodes against the source text they claim to
// come from. A node passes only if its label is supported by, or reasonably
// inferable from, its own source chunks; anything the model invented from
// general knowledge fails here even when it sounds plausible.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dgallion1/mindmapgen/internal/cache"
	"github.com/dgallion1/mindmapgen/internal/document"
	"github.com/dgallion1/mindmapgen/internal/extract"
	"github.com/dgallion1/mindmapgen/internal/llm"
)

// Request names one node to verify against its source chunks.
type Request struct {
	ID     string
	Label  string
	Level  document.Level
	Chunks document.ChunkSet
}

// Verdict is the per-node verification outcome.
type Verdict struct {
	Verified   bool
	Confidence float64
}

const verifyMaxTokens = 500

// Engine verifies nodes, batching those that share a chunk set into a single
// completion call. Batching is a throughput optimization only: each node in
// the batch is judged independently by its own numbered response line, so
// batch composition cannot change a node's outcome.
type Engine struct {
	provider  llm.Provider
	memo      cache.Cache
	batchSize int
	log       *slog.Logger
}

func NewEngine(provider llm.Provider, memo cache.Cache, batchSize int, log *slog.Logger) *Engine {
	if batchSize < 1 {
		batchSize = 1
	}
	if memo == nil {
		memo = cache.Noop{}
	}
	return &Engine{provider: provider, memo: memo, batchSize: batchSize, log: log}
}

// Batches groups requests by chunk set, so each batch shares one evidence
// text, and splits groups larger than the batch size. Order is deterministic.
func (e *Engine) Batches(reqs []Request) [][]Request {
	byKey := make(map[string][]Request)
	var keys []string
	for _, r := range reqs {
		k := r.Chunks.Key()
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], r)
	}
	sort.Strings(keys)

	var out [][]Request
	for _, k := range keys {
		group := byKey[k]
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		for len(group) > e.batchSize {
			out = append(out, group[:e.batchSize])
			group = group[e.batchSize:]
		}
		if len(group) > 0 {
			out = append(out, group)
		}
	}
	return out
}

// VerifyBatch resolves one batch, returning a verdict per request ID.
// Previously-judged (label, chunk set) pairs come from the memo cache; only
// unresolved nodes go into the completion call. A malformed response is a
// parse error so the caller's retry policy reruns the batch.
func (e *Engine) VerifyBatch(ctx context.Context, chunks []document.Chunk, batch []Request) (map[string]Verdict, error) {
	verdicts := make(map[string]Verdict, len(batch))
	var pending []Request
	for _, r := range batch {
		if v, ok := e.cachedVerdict(ctx, r); ok {
			verdicts[r.ID] = v
			continue
		}
		pending = append(pending, r)
	}
	if len(pending) == 0 {
		return verdicts, nil
	}

	evidence := document.JoinChunkText(chunks, pending[0].Chunks)
	prompt := buildVerifyPrompt(pending, evidence)
	resp, err := e.provider.Complete(ctx, prompt, verifyMaxTokens)
	if err != nil {
		return nil, err
	}

	parsed, err := parseVerdicts(resp, len(pending))
	if err != nil {
		return nil, err
	}
	for i, r := range pending {
		verdicts[r.ID] = parsed[i]
		e.storeVerdict(ctx, r, parsed[i])
	}
	return verdicts, nil
}

func (e *Engine) cachedVerdict(ctx context.Context, r Request) (Verdict, bool) {
	raw, ok := e.memo.Get(ctx, verdictKey(r))
	if !ok {
		return Verdict{}, false
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return Verdict{}, false
	}
	conf, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Verdict{}, false
	}
	return Verdict{Verified: parts[0] == "yes", Confidence: conf}, true
}

func (e *Engine) storeVerdict(ctx context.Context, r Request, v Verdict) {
	val := "no"
	if v.Verified {
		val = "yes"
	}
	e.memo.Put(ctx, verdictKey(r), fmt.Sprintf("%s %.3f", val, v.Confidence))
}

func verdictKey(r Request) string {
	return cache.Key("verify", r.Label, r.Chunks.Key())
}

func buildVerifyPrompt(batch []Request, evidence string) string {
	var sb strings.Builder
	sb.WriteString(`You are an expert fact-checker verifying whether entries in a mindmap can be reasonably derived from the original document.

For EACH numbered entry below, determine if it is supported by the document text or could be reasonably inferred from it. Judge every entry independently.

Entries:
`)
	for i, r := range batch {
		fmt.Fprintf(&sb, "%d. (%s) %q\n", i+1, r.Level.String(), r.Label)
	}
	sb.WriteString("\nDocument text:\n```\n")
	sb.WriteString(evidence)
	sb.WriteString("\n```\n\n")
	sb.WriteString(`VERIFICATION GUIDELINES:
1. An entry can be EXPLICITLY mentioned OR reasonably inferred from the document, even through logical deduction
2. Logical synthesis, interpretation, and summarization of concepts in the document count as supported
3. Content that groups, categorizes, or abstracts ideas from the document counts as supported
4. Only mark NO if the entry introduces facts not derivable from the document or directly contradicts it
5. When uncertain, lean towards YES with a lower confidence score

Answer with EXACTLY one line per entry, in order, using this format:
1. YES 0.85
2. NO 0.20

where the number after YES or NO is your confidence in the entry being supported, from 0.0 to 1.0. No other text.`)
	return sb.String()
}

var verdictLineRe = regexp.MustCompile(`(?m)^\s*(\d+)[.):]?\s+(YES|NO)\b[^0-9]*([01]?\.?[0-9]*)?`)

const (
	defaultYesConfidence = 0.75
	defaultNoConfidence  = 0.2
)

// parseVerdicts extracts one verdict per expected entry from the numbered
// response lines. Missing or duplicate entry numbers are a parse error.
func parseVerdicts(resp string, want int) ([]Verdict, error) {
	out := make([]Verdict, want)
	seen := make(map[int]bool)
	for _, m := range verdictLineRe.FindAllStringSubmatch(strings.ToUpper(resp), -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > want || seen[n] {
			continue
		}
		seen[n] = true
		v := Verdict{Verified: m[2] == "YES"}
		if conf, err := strconv.ParseFloat(m[3], 64); err == nil && conf >= 0 && conf <= 1 {
			v.Confidence = conf
		} else if v.Verified {
			v.Confidence = defaultYesConfidence
		} else {
			v.Confidence = defaultNoConfidence
		}
		out[n-1] = v
	}
	if len(seen) != want {
		return nil, &extract.ParseError{Raw: resp, Err: fmt.Errorf("expected %d verdict lines, found %d", want, len(seen))}
	}
	return out, nil
}
