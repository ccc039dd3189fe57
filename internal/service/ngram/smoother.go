package ngram

// Smoother defines the interface for turning the counts of one context into probabilities
type Smoother interface {
	// Smooth computes the probabilities of a context
	// counts: raw transition counts of the context
	// parent: smoothed distribution of the back-off context, nil if it has none
	// isRoot: whether this is the empty context
	// Returns false when the context keeps no transition and must be dropped.
	Smooth(counts map[uint32]int64, parent map[uint32]float64, isRoot bool) (map[uint32]float64, bool)

	// Name returns the name of the smoothing algorithm
	Name() string
}

// BackoffSmoother drops transitions seen fewer than threshold times and hands
// the pruned mass to the back-off context in proportion to its distribution
type BackoffSmoother struct {
	threshold int64
}

// NewBackoffSmoother creates a new back-off smoother
func NewBackoffSmoother(threshold int64) *BackoffSmoother {
	return &BackoffSmoother{threshold: threshold}
}

func (s *BackoffSmoother) Smooth(counts map[uint32]int64, parent map[uint32]float64, isRoot bool) (map[uint32]float64, bool) {
	keys := sortedCountKeys(counts)

	var total int64
	for _, id := range keys {
		total += counts[id]
	}
	if total <= 0 {
		return nil, false
	}

	probs := make(map[uint32]float64, len(keys))
	var kept float64
	for _, id := range keys {
		if counts[id] < s.threshold {
			continue
		}
		p := float64(counts[id]) / float64(total)
		probs[id] = p
		kept += p
	}
	if len(probs) == 0 {
		return nil, false
	}
	if len(probs) == len(counts) || isRoot {
		return probs, true
	}

	// Some transitions were pruned: redistribute through the back-off context
	if parent == nil {
		return nil, false
	}
	missing := 1 - kept
	for _, id := range sortedProbKeys(parent) {
		probs[id] += missing * parent[id]
	}
	return probs, true
}

func (s *BackoffSmoother) Name() string {
	return "Backoff"
}

// smoothTrie converts every context of the trie to probabilities, shortest
// contexts first, and builds the sampling tables. It returns how many contexts
// were dropped.
func smoothTrie(trie *ContextTrie, smoother Smoother) int {
	dropped := 0
	for _, level := range trie.Levels() {
		for _, node := range level {
			node.probs, node.keys, node.cdf = nil, nil, nil
			if !node.IsContext() {
				continue
			}

			var parent map[uint32]float64
			if node.parent != nil {
				parent = node.parent.probs
			}
			probs, ok := smoother.Smooth(node.counts, parent, node.parent == nil)
			if !ok {
				dropped++
				continue
			}
			node.probs = probs
			node.buildSamplingTable()
		}
	}
	return dropped
}
