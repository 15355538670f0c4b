// Package dedup merges concept candidates that describe the same real-world
// idea. Matching runs through escalating stages: normalized exact comparison,
// edit-distance ratio, token overlap, and finally an LLM equivalence check
// for pairs the cheap stages cannot settle. Each stage either decides the
// pair or passes it on; a pair still ambiguous after the last stage is kept
// distinct, since over-merging loses information that cannot be recovered.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/dgallion1/mindmapgen/internal/cache"
	"github.com/dgallion1/mindmapgen/internal/document"
	"github.com/dgallion1/mindmapgen/internal/llm"
)

// Config holds the matching thresholds. Fuzzy thresholds are per level:
// higher levels are more aggressive because broad topics phrased differently
// still collide, while details legitimately differ in small ways.
type Config struct {
	TopicThreshold    float64
	SubtopicThreshold float64
	DetailThreshold   float64
	Band              float64 // inconclusive margin below a threshold
	JaccardCutoff     float64
}

func DefaultConfig() Config {
	return Config{
		TopicThreshold:    0.75,
		SubtopicThreshold: 0.70,
		DetailThreshold:   0.65,
		Band:              0.10,
		JaccardCutoff:     0.50,
	}
}

func (c Config) thresholdFor(level document.Level) float64 {
	switch level {
	case document.LevelTopic:
		return c.TopicThreshold
	case document.LevelSubtopic:
		return c.SubtopicThreshold
	default:
		return c.DetailThreshold
	}
}

// Matcher decides candidate equivalence. The LLM stage is memoized through
// the cache so repeated comparisons of the same pair cost one call total,
// which also keeps the overall dedup idempotent.
type Matcher struct {
	cfg      Config
	provider llm.Provider
	memo     cache.Cache
	log      *slog.Logger
}

func NewMatcher(cfg Config, provider llm.Provider, memo cache.Cache, log *slog.Logger) *Matcher {
	if memo == nil {
		memo = cache.Noop{}
	}
	return &Matcher{cfg: cfg, provider: provider, memo: memo, log: log}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9 ]+`)

// Normalize lowercases, strips punctuation, and collapses whitespace so that
// trivially different spellings of the same label compare equal.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// FuzzyRatio is the normalized edit-distance similarity of two labels,
// 1.0 for identical strings and 0.0 for entirely different ones.
func FuzzyRatio(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	if a == b {
		return 1.0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// Jaccard is the token-set overlap of two labels.
func Jaccard(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(Normalize(s)) {
		out[f] = true
	}
	return out
}

// Similarity is the strongest cheap-stage signal for a pair, used where a
// scalar score is needed (orphan reattachment, sibling checks).
func Similarity(a, b string) float64 {
	f, j := FuzzyRatio(a, b), Jaccard(a, b)
	if j > f {
		return j
	}
	return f
}

// Equivalent reports whether two labels at the given level describe the same
// concept. Cheap stages decide clear cases; ambiguous pairs go to the LLM.
// An LLM failure keeps the pair distinct.
func (m *Matcher) Equivalent(ctx context.Context, a, b string, level document.Level) bool {
	if Normalize(a) == Normalize(b) {
		return true
	}

	thr := m.cfg.thresholdFor(level)
	ratio := FuzzyRatio(a, b)
	if ratio >= thr {
		return true
	}

	// Edit distance misses word reorderings, so token overlap gets its own
	// say before the pair is declared distinct.
	jac := Jaccard(a, b)
	if jac >= m.cfg.JaccardCutoff {
		return true
	}
	if ratio < thr-m.cfg.Band && jac < m.cfg.JaccardCutoff-m.cfg.Band {
		return false
	}

	return m.llmEquivalent(ctx, a, b, level)
}

func (m *Matcher) llmEquivalent(ctx context.Context, a, b string, level document.Level) bool {
	// Order-independent cache key: the answer for (a,b) is the answer for (b,a).
	lo, hi := Normalize(a), Normalize(b)
	if lo > hi {
		lo, hi = hi, lo
	}
	key := cache.Key("equiv", level.String(), lo, hi)
	if v, ok := m.memo.Get(ctx, key); ok {
		return v == "redundant"
	}

	resp, err := m.provider.Complete(ctx, buildEquivalencePrompt(a, b, level), 50)
	if err != nil {
		m.log.Warn("equivalence check failed, keeping both", "a", a, "b", b, "error", err)
		return false
	}
	redundant := !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(resp)), "DISTINCT")
	if redundant {
		m.memo.Put(ctx, key, "redundant")
	} else {
		m.memo.Put(ctx, key, "distinct")
	}
	return redundant
}

func buildEquivalencePrompt(a, b string, level document.Level) string {
	return fmt.Sprintf(`Compare these two %s labels from a mindmap and determine if they express similar core information, making one redundant.

Label 1: %q
Label 2: %q

A label is REDUNDANT if ANY of these apply:
1. It conveys the same primary information or main point as the other
2. It covers the same concept from a similar angle or perspective
3. A reader would find having both entries repetitive or confusing

A label is DISTINCT ONLY if ALL of these apply:
1. It focuses on a clearly different aspect or perspective
2. It provides substantial unique information not present in the other
3. Both entries together provide significantly more value than either alone

Respond with EXACTLY one of these:
REDUNDANT (overlapping information about X)
DISTINCT (different aspect: X)

where X is a very brief explanation.`, level.String(), a, b)
}

// Dedup merges equivalent candidates. The winner of a merge is the candidate
// with the higher confidence hint, frequency breaking ties; the loser's chunk
// set is unioned in and its frequency added. Input order does not affect the
// result: candidates are canonically ordered before the greedy pass, and the
// LLM stage is memoized, so running Dedup on its own output returns it
// unchanged.
func (m *Matcher) Dedup(ctx context.Context, cands []document.Candidate) []document.Candidate {
	sorted := make([]document.Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		if sorted[i].Frequency != sorted[j].Frequency {
			return sorted[i].Frequency > sorted[j].Frequency
		}
		return sorted[i].Text < sorted[j].Text
	})

	var kept []document.Candidate
	for _, c := range sorted {
		merged := false
		for i := range kept {
			if kept[i].Level != c.Level {
				continue
			}
			if m.Equivalent(ctx, kept[i].Text, c.Text, c.Level) {
				kept[i].Chunks = kept[i].Chunks.Union(c.Chunks)
				kept[i].Frequency += c.Frequency
				merged = true
				break
			}
		}
		if !merged {
			cp := c
			cp.Chunks = c.Chunks.Clone()
			kept = append(kept, cp)
		}
	}
	return kept
}

// subsumptionContainment is how much of a detail's vocabulary must already
// appear in its parent before the detail is considered a restatement.
const subsumptionContainment = 0.75

// Subsumed reports whether a detail label merely restates its parent
// subtopic (or a sibling). Such details are dropped rather than merged:
// a detail must add information below its parent, not repeat it.
func (m *Matcher) Subsumed(ctx context.Context, detail, parent string) bool {
	dt := tokens(detail)
	if len(dt) == 0 {
		return true
	}
	pt := tokens(parent)
	contained := 0
	for tok := range dt {
		if pt[tok] {
			contained++
		}
	}
	if float64(contained)/float64(len(dt)) >= subsumptionContainment {
		return true
	}
	return FuzzyRatio(detail, parent) >= m.cfg.DetailThreshold
}
