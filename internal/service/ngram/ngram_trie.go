package ngram

import (
	"sort"
)

// TrieNode is one context in the reversed-context trie. The path from the
// root spells the context from its most recent token backwards, so the trie
// parent of a node is its back-off context (the context minus its oldest token).
type TrieNode struct {
	tokenID  uint32               // Oldest token of the context this node represents
	depth    int                  // Context length
	parent   *TrieNode            // Back-off context, nil for the root
	children map[uint32]*TrieNode // Longer contexts, indexed by the token preceding this one

	counts map[uint32]int64   // Raw transition counts, nil when the node only routes to longer contexts
	probs  map[uint32]float64 // Smoothed transition probabilities, nil until smoothed or when dropped

	// Inverse-CDF sampling table, ordered by token ID
	keys []uint32
	cdf  []float64
}

// NewTrieNode creates a new trie node
func NewTrieNode(tokenID uint32, parent *TrieNode) *TrieNode {
	depth := 0
	if parent != nil {
		depth = parent.depth + 1
	}
	return &TrieNode{
		tokenID:  tokenID,
		depth:    depth,
		parent:   parent,
		children: make(map[uint32]*TrieNode),
	}
}

// IsContext reports whether the node holds transitions
func (n *TrieNode) IsContext() bool {
	return n.counts != nil
}

// Context returns the token IDs of the node's context, oldest first
func (n *TrieNode) Context() []uint32 {
	ctx := make([]uint32, 0, n.depth)
	for cur := n; cur.parent != nil; cur = cur.parent {
		ctx = append(ctx, cur.tokenID)
	}
	return ctx
}

// buildSamplingTable prepares the cumulative distribution used by the sampler
func (n *TrieNode) buildSamplingTable() {
	n.keys = sortedProbKeys(n.probs)
	n.cdf = make([]float64, len(n.keys))
	var acc float64
	for i, k := range n.keys {
		acc += n.probs[k]
		n.cdf[i] = acc
	}
}

// pick returns the transition whose cumulative range contains u, u in [0, 1)
func (n *TrieNode) pick(u float64) (uint32, float64) {
	target := u * n.cdf[len(n.cdf)-1]
	idx := sort.Search(len(n.cdf), func(i int) bool { return n.cdf[i] > target })
	if idx == len(n.cdf) {
		idx = len(n.cdf) - 1
	}
	id := n.keys[idx]
	return id, n.probs[id]
}

// ContextTrie stores every context of the model keyed by interned token IDs
type ContextTrie struct {
	root     *TrieNode
	contexts int // Nodes holding transitions
}

// NewContextTrie creates a trie holding only the empty context's node
func NewContextTrie() *ContextTrie {
	return &ContextTrie{root: NewTrieNode(0, nil)}
}

// Find returns the node of a context given oldest first, nil when absent
func (t *ContextTrie) Find(ctx []uint32) *TrieNode {
	current := t.root
	for i := len(ctx) - 1; i >= 0; i-- {
		child, exists := current.children[ctx[i]]
		if !exists {
			return nil
		}
		current = child
	}
	return current
}

// insert creates the path to a context and returns its node
func (t *ContextTrie) insert(ctx []uint32) *TrieNode {
	current := t.root
	for i := len(ctx) - 1; i >= 0; i-- {
		child, exists := current.children[ctx[i]]
		if !exists {
			child = NewTrieNode(ctx[i], current)
			current.children[ctx[i]] = child
		}
		current = child
	}
	return current
}

// merge accumulates counts into a context node, making it a context if needed
func (t *ContextTrie) merge(node *TrieNode, counts map[uint32]int64) {
	if node.counts == nil {
		node.counts = make(map[uint32]int64, len(counts))
		t.contexts++
	}
	for id, c := range counts {
		node.counts[id] += c
	}
}

// Levels returns all nodes grouped by context length, shortest first. Nodes of
// one level are ordered by their context so traversal is deterministic.
func (t *ContextTrie) Levels() [][]*TrieNode {
	var levels [][]*TrieNode
	current := []*TrieNode{t.root}
	for len(current) > 0 {
		levels = append(levels, current)
		var next []*TrieNode
		for _, node := range current {
			for _, id := range sortedChildKeys(node.children) {
				next = append(next, node.children[id])
			}
		}
		current = next
	}
	return levels
}

// Walk visits every node depth-first in deterministic order
func (t *ContextTrie) Walk(fn func(node *TrieNode)) {
	var walk func(*TrieNode)
	walk = func(node *TrieNode) {
		fn(node)
		for _, id := range sortedChildKeys(node.children) {
			walk(node.children[id])
		}
	}
	walk(t.root)
}

// cloneCounts deep-copies the structure and raw counts, leaving probabilities unset
func (t *ContextTrie) cloneCounts() *ContextTrie {
	c := &ContextTrie{contexts: t.contexts}
	var clone func(src, parent *TrieNode) *TrieNode
	clone = func(src, parent *TrieNode) *TrieNode {
		dst := NewTrieNode(src.tokenID, parent)
		if src.counts != nil {
			dst.counts = make(map[uint32]int64, len(src.counts))
			for id, cnt := range src.counts {
				dst.counts[id] = cnt
			}
		}
		for id, child := range src.children {
			dst.children[id] = clone(child, dst)
		}
		return dst
	}
	c.root = clone(t.root, nil)
	return c
}

// MemoryStats returns size statistics of the trie
func (t *ContextTrie) MemoryStats() TrieMemoryStats {
	var stats TrieMemoryStats
	t.Walk(func(node *TrieNode) {
		stats.TotalNodes++
		if node.counts != nil {
			stats.Contexts++
			stats.CountEntries += int64(len(node.counts))
		}
		if node.probs != nil {
			stats.SmoothedContexts++
			stats.ProbEntries += int64(len(node.probs))
		}
		if node.depth > stats.MaxDepth {
			stats.MaxDepth = node.depth
		}
	})
	return stats
}

// TrieMemoryStats contains size statistics of a context trie
type TrieMemoryStats struct {
	TotalNodes       int64 `json:"total_nodes"`
	Contexts         int64 `json:"contexts"`
	SmoothedContexts int64 `json:"smoothed_contexts"`
	CountEntries     int64 `json:"count_entries"`
	ProbEntries      int64 `json:"prob_entries"`
	MaxDepth         int   `json:"max_depth"`
}

func sortedChildKeys(m map[uint32]*TrieNode) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedCountKeys(m map[uint32]int64) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedProbKeys(m map[uint32]float64) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
