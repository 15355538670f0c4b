// Package assemble places verified concepts into the final mindmap tree.
// It runs entirely in memory: sibling ordering, per-level caps, and orphan
// reattachment are deterministic functions of the verified inputs.
package assemble

import (
	"math"
	"sort"

	"github.com/dgallion1/mindmapgen/internal/dedup"
	"github.com/dgallion1/mindmapgen/internal/document"
)

// Config bounds the tree shape. ReattachFloor is the minimum label
// similarity for adopting an orphan; below it the orphan is dropped. The
// per-level merge floors fold an item into an existing sibling at or above
// that similarity, so reattachment and capping can never seat two
// near-identical labels under one parent.
type Config struct {
	MaxTopics     int
	MaxSubtopics  int
	MaxDetails    int
	ReattachFloor float64

	TopicMerge    float64
	SubtopicMerge float64
	DetailMerge   float64
}

func DefaultConfig() Config {
	return Config{
		MaxTopics: 6, MaxSubtopics: 4, MaxDetails: 8,
		ReattachFloor: 0.3,
		TopicMerge:    0.75,
		SubtopicMerge: 0.70,
		DetailMerge:   0.65,
	}
}

func (c Config) maxChildren(level document.Level) int {
	switch level {
	case document.LevelTopic:
		return c.MaxTopics
	case document.LevelSubtopic:
		return c.MaxSubtopics
	default:
		return c.MaxDetails
	}
}

func (c Config) mergeFloor(level document.Level) float64 {
	switch level {
	case document.LevelTopic:
		return c.TopicMerge
	case document.LevelSubtopic:
		return c.SubtopicMerge
	default:
		return c.DetailMerge
	}
}

// Item is one verified concept ready for placement.
type Item struct {
	ID         string
	Label      string
	Level      document.Level
	ParentID   string
	Chunks     document.ChunkSet
	Confidence float64
	Frequency  int
}

// Importance scores a node for sibling ordering. Verification confidence is
// the base signal; cross-chunk frequency boosts it logarithmically, so a
// concept seen in many chunks outranks an equally confident one-off without
// frequency swamping confidence entirely.
func Importance(confidence float64, frequency int) float64 {
	if frequency < 1 {
		frequency = 1
	}
	return confidence * (1 + math.Log2(1+float64(frequency)))
}

// Build assembles the tree under a synthetic root carrying the document
// title. Siblings are ordered by descending importance; levels are capped;
// an item whose parent did not survive is reattached to the most similar
// surviving node one level up, or dropped when nothing is similar enough.
func Build(title string, items []Item, cfg Config) *document.Tree {
	root := &document.Node{
		ID:       "root",
		Label:    title,
		Chunks:   document.NewChunkSet(),
		Verified: true,
	}
	tree := &document.Tree{Root: root}

	// Topics attach to the root regardless of their recorded parent.
	topics := placeLevel(tree, filterLevel(items, document.LevelTopic), map[string]*document.Node{"": root, root.ID: root}, cfg)

	byTopic := make(map[string]*document.Node, len(topics))
	for _, n := range topics {
		byTopic[n.ID] = n
	}
	subtopics := placeLevel(tree, filterLevel(items, document.LevelSubtopic), byTopic, cfg)

	bySubtopic := make(map[string]*document.Node, len(subtopics))
	for _, n := range subtopics {
		bySubtopic[n.ID] = n
	}
	placeLevel(tree, filterLevel(items, document.LevelDetail), bySubtopic, cfg)

	finalize(root)
	return tree
}

func filterLevel(items []Item, level document.Level) []Item {
	var out []Item
	for _, it := range items {
		if it.Level == level {
			out = append(out, it)
		}
	}
	return out
}

// placeLevel attaches one level's items to their surviving parents, capping
// each parent's child count. Returns the nodes that made it into the tree.
func placeLevel(tree *document.Tree, items []Item, parents map[string]*document.Node, cfg Config) []*document.Node {
	sort.SliceStable(items, func(i, j int) bool {
		ii, ij := Importance(items[i].Confidence, items[i].Frequency), Importance(items[j].Confidence, items[j].Frequency)
		if ii != ij {
			return ii > ij
		}
		return items[i].Label < items[j].Label
	})

	var placed []*document.Node
	for _, it := range items {
		parent, ok := parents[it.ParentID]
		if !ok {
			parent = reattach(it, parents, cfg.ReattachFloor)
			if parent == nil {
				tree.DroppedNodes++
				continue
			}
		}
		if twin := similarSibling(parent, it.Label, cfg.mergeFloor(it.Level)); twin != nil {
			mergeInto(twin, it)
			continue
		}
		if len(parent.Children) >= cfg.maxChildren(it.Level) {
			tree.DroppedNodes++
			continue
		}
		node := &document.Node{
			ID:         it.ID,
			Level:      it.Level,
			Label:      it.Label,
			Chunks:     it.Chunks.Clone(),
			Verified:   true,
			Confidence: it.Confidence,
			Importance: Importance(it.Confidence, it.Frequency),
			ParentID:   parent.ID,
		}
		parent.Children = append(parent.Children, node)
		placed = append(placed, node)
	}
	return placed
}

// similarSibling returns the first already-placed child whose label is at
// least floor-similar to label. Children are scanned in placement order, so
// the earliest (highest-importance) duplicate wins. A floor of zero disables
// merging.
func similarSibling(parent *document.Node, label string, floor float64) *document.Node {
	if floor <= 0 {
		return nil
	}
	for _, c := range parent.Children {
		if dedup.Similarity(label, c.Label) >= floor {
			return c
		}
	}
	return nil
}

// mergeInto folds a duplicate item into its surviving sibling: chunk sets
// union, and the higher-confidence label wins.
func mergeInto(n *document.Node, it Item) {
	n.Chunks = n.Chunks.Union(it.Chunks)
	if it.Confidence > n.Confidence {
		n.Label = it.Label
		n.Confidence = it.Confidence
	}
}

// reattach finds the surviving parent most similar to the orphan's label.
func reattach(it Item, parents map[string]*document.Node, floor float64) *document.Node {
	var best *document.Node
	bestScore := floor
	ids := make([]string, 0, len(parents))
	for id := range parents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := parents[id]
		if s := dedup.Similarity(it.Label, p.Label); s >= bestScore {
			// Strict improvement after the first hit keeps ties deterministic.
			if best == nil || s > bestScore {
				best, bestScore = p, s
			}
		}
	}
	return best
}

// finalize materializes the serialized chunk id lists and propagates chunk
// coverage upward so every node's chunk set covers its subtree.
func finalize(n *document.Node) {
	for _, c := range n.Children {
		finalize(c)
		n.Chunks = n.Chunks.Union(c.Chunks)
	}
	n.ChunkIDs = n.Chunks.IDs()
}
