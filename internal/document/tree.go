package document

// Node is a verified, deduplicated concept placed in the final tree.
// Nodes are immutable once the assembler hands the tree out.
type Node struct {
	ID         string   `json:"id"`
	Level      Level    `json:"-"`
	Label      string   `json:"label"`
	Children   []*Node  `json:"children,omitempty"`
	Chunks     ChunkSet `json:"-"`
	ChunkIDs   []int    `json:"source_chunks"`
	Verified   bool     `json:"verified"`
	Confidence float64  `json:"confidence"`

	// Importance orders siblings; derived from confidence and
	// cross-chunk frequency, not serialized.
	Importance float64 `json:"-"`
	// ParentID is the declared parent before assembly. Empty for topics.
	ParentID string `json:"-"`
}

// Walk visits n and every descendant in depth-first order.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// AllNodes returns the subtree rooted at n as a flat slice.
func (n *Node) AllNodes() []*Node {
	var out []*Node
	n.Walk(func(nd *Node) { out = append(out, nd) })
	return out
}

// Tree is the finished mindmap handed to downstream consumers.
type Tree struct {
	Root *Node `json:"root"`
	// Complete is false when the run stopped early (budget exhaustion or
	// fatally failed tasks) and the tree is a valid partial result.
	Complete    bool `json:"complete"`
	FailedTasks int  `json:"failed_tasks"`
	// DroppedNodes counts concepts removed by verification or orphan
	// resolution; reported so truncation is never silent.
	DroppedNodes int `json:"dropped_nodes"`
}

// NodeCount returns the number of nodes in the tree, excluding the root.
func (t *Tree) NodeCount() int {
	if t == nil || t.Root == nil {
		return 0
	}
	return len(t.Root.AllNodes()) - 1
}

// CoveredChunks returns the union of source chunk sets over all verified
// nodes in the tree.
func (t *Tree) CoveredChunks() ChunkSet {
	out := NewChunkSet()
	if t == nil || t.Root == nil {
		return out
	}
	t.Root.Walk(func(n *Node) {
		if n.Verified {
			out = out.Union(n.Chunks)
		}
	})
	return out
}
