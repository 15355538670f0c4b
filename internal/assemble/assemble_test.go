package assemble

import (
	"testing"

	"github.com/dgallion1/mindmapgen/internal/dedup"
	"github.com/dgallion1/mindmapgen/internal/document"
)

func topic(id, label string, conf float64, freq int, chunks ...int) Item {
	return Item{ID: id, Label: label, Level: document.LevelTopic, Chunks: document.NewChunkSet(chunks...), Confidence: conf, Frequency: freq}
}

func subtopic(id, parent, label string, conf float64, chunks ...int) Item {
	return Item{ID: id, Label: label, Level: document.LevelSubtopic, ParentID: parent, Chunks: document.NewChunkSet(chunks...), Confidence: conf, Frequency: 1}
}

func TestImportance_FrequencyBoostsButConfidenceDominates(t *testing.T) {
	if Importance(0.9, 1) <= Importance(0.9, 0) {
		t.Error("importance should be monotonic in frequency")
	}
	if Importance(0.5, 3) >= Importance(0.9, 3) {
		t.Error("importance should be monotonic in confidence")
	}
	if Importance(0.9, 1) != 0.9*2 {
		t.Errorf("Importance(0.9, 1) = %v, want 1.8", Importance(0.9, 1))
	}
}

func TestBuild_OrdersSiblingsByImportance(t *testing.T) {
	tree := Build("Doc", []Item{
		topic("t1", "Budget Planning", 0.6, 1, 0),
		topic("t2", "Market Expansion", 0.9, 3, 0, 1),
		topic("t3", "Customer Retention", 0.8, 1, 1),
	}, DefaultConfig())

	got := make([]string, 0, 3)
	for _, c := range tree.Root.Children {
		got = append(got, c.ID)
	}
	want := []string{"t2", "t3", "t1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sibling order = %v, want %v", got, want)
		}
	}
	for i := 1; i < len(tree.Root.Children); i++ {
		if tree.Root.Children[i].Importance > tree.Root.Children[i-1].Importance {
			t.Error("children not in descending importance order")
		}
	}
}

func TestBuild_CapsTopicCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTopics = 2
	tree := Build("Doc", []Item{
		topic("t1", "One", 0.9, 1, 0),
		topic("t2", "Two", 0.8, 1, 0),
		topic("t3", "Three", 0.7, 1, 0),
	}, cfg)

	if len(tree.Root.Children) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(tree.Root.Children))
	}
	if tree.DroppedNodes != 1 {
		t.Errorf("expected 1 dropped node, got %d", tree.DroppedNodes)
	}
	for _, c := range tree.Root.Children {
		if c.ID == "t3" {
			t.Error("lowest-importance topic should be the one capped out")
		}
	}
}

func TestBuild_OrphanReattachesToSimilarParent(t *testing.T) {
	tree := Build("Doc", []Item{
		topic("t1", "Memory Consolidation", 0.9, 2, 0),
		topic("t2", "Sleep Cycles", 0.8, 1, 1),
		// Parent "gone" was dropped by verification.
		subtopic("s1", "gone", "Memory Consolidation During Sleep", 0.8, 0),
	}, DefaultConfig())

	if tree.DroppedNodes != 0 {
		t.Fatalf("orphan should have been adopted, %d dropped", tree.DroppedNodes)
	}
	var adopted *document.Node
	for _, topicNode := range tree.Root.Children {
		for _, c := range topicNode.Children {
			if c.ID == "s1" {
				adopted = c
			}
		}
	}
	if adopted == nil {
		t.Fatal("orphan missing from tree")
	}
	if adopted.ParentID != "t1" {
		t.Errorf("orphan attached to %s, want most similar parent t1", adopted.ParentID)
	}
}

func TestBuild_OrphanWithNoSimilarParentIsDropped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReattachFloor = 0.5
	tree := Build("Doc", []Item{
		topic("t1", "Quarterly Finances", 0.9, 1, 0),
		subtopic("s1", "gone", "Hippocampal Replay", 0.8, 0),
	}, cfg)

	if tree.DroppedNodes != 1 {
		t.Fatalf("expected orphan to be dropped, got %d dropped", tree.DroppedNodes)
	}
	for _, topicNode := range tree.Root.Children {
		if len(topicNode.Children) != 0 {
			t.Error("no subtopic should have been placed")
		}
	}
}

func TestBuild_AdoptedOrphanMergesWithDuplicateSibling(t *testing.T) {
	tree := Build("Doc", []Item{
		topic("t1", "Memory Consolidation", 0.9, 2, 0),
		subtopic("s0", "t1", "Memory Consolidation During Sleep", 0.85, 0),
		// The orphan's parent was dropped by verification, and its label
		// near-duplicates s0 under the adopting parent.
		subtopic("s1", "gone", "Memory Consolidation During Sleep Cycles", 0.8, 1),
	}, DefaultConfig())

	topicNode := tree.Root.Children[0]
	if len(topicNode.Children) != 1 {
		labels := make([]string, 0, len(topicNode.Children))
		for _, c := range topicNode.Children {
			labels = append(labels, c.Label)
		}
		t.Fatalf("adopted orphan should merge with its duplicate sibling, got %v", labels)
	}
	sub := topicNode.Children[0]
	if sub.ID != "s0" || sub.Label != "Memory Consolidation During Sleep" {
		t.Errorf("survivor = %s %q, want the higher-confidence sibling s0", sub.ID, sub.Label)
	}
	if !sub.Chunks.Contains(0) || !sub.Chunks.Contains(1) {
		t.Errorf("merged sibling chunks = %v, want union of both", sub.ChunkIDs)
	}
	if tree.DroppedNodes != 0 {
		t.Errorf("a sibling merge is not a drop, got %d dropped", tree.DroppedNodes)
	}
}

func TestBuild_NoDuplicateSiblingsAnywhere(t *testing.T) {
	cfg := DefaultConfig()
	tree := Build("Doc", []Item{
		topic("t1", "Memory Consolidation", 0.9, 2, 0),
		topic("t2", "Sleep Architecture", 0.8, 1, 1),
		// Near-duplicate of t1 at the topic level.
		topic("t3", "Memory Consolidations", 0.7, 1, 1),
		subtopic("s0", "t1", "Memory Consolidation During Sleep", 0.85, 0),
		subtopic("s1", "gone", "Memory Consolidation During Sleep Cycles", 0.8, 1),
		subtopic("s2", "t2", "REM Stage Timing", 0.8, 1),
	}, cfg)

	if len(tree.Root.Children) != 2 {
		t.Fatalf("duplicate topic should have merged, got %d topics", len(tree.Root.Children))
	}
	tree.Root.Walk(func(n *document.Node) {
		for i := 0; i < len(n.Children); i++ {
			for j := i + 1; j < len(n.Children); j++ {
				a, b := n.Children[i], n.Children[j]
				if s := dedup.Similarity(a.Label, b.Label); s >= cfg.mergeFloor(a.Level) {
					t.Errorf("siblings %q and %q under %q have similarity %.2f at or above the merge floor",
						a.Label, b.Label, n.Label, s)
				}
			}
		}
	})
}

func TestBuild_ChunkCoveragePropagatesUpward(t *testing.T) {
	tree := Build("Doc", []Item{
		topic("t1", "Theme", 0.9, 1, 0),
		subtopic("s1", "t1", "Aspect", 0.8, 1),
	}, DefaultConfig())

	topicNode := tree.Root.Children[0]
	if !topicNode.Chunks.Contains(0) || !topicNode.Chunks.Contains(1) {
		t.Errorf("topic chunks = %v, want union of own and child chunks", topicNode.ChunkIDs)
	}
	if got := tree.Root.ChunkIDs; len(got) != 2 {
		t.Errorf("root should cover all chunks, got %v", got)
	}
}

func TestBuild_EmptyInputYieldsBareRoot(t *testing.T) {
	tree := Build("Empty Doc", nil, DefaultConfig())
	if tree.Root == nil || tree.Root.Label != "Empty Doc" {
		t.Fatal("expected a synthetic root carrying the title")
	}
	if len(tree.Root.Children) != 0 {
		t.Error("expected no children")
	}
	if !tree.Root.Verified {
		t.Error("root is always verified")
	}
}
