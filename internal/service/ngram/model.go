package ngram

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// probabilityEpsilon bounds floating point drift when checking Σp <= 1
const probabilityEpsilon = 1e-9

// Model is a frozen back-off n-gram model. It keeps the raw counts next to the
// smoothed probabilities so it can seed further training. A Model is never
// mutated after construction and is safe for concurrent readers.
type Model struct {
	id        uuid.UUID
	createdAt time.Time
	config    Config
	vocab     *Vocabulary
	trie      *ContextTrie
	startID   uint32
	endID     uint32
	hasEnd    bool
	lines     int64
	longest   int
}

func newModel(id uuid.UUID, createdAt time.Time, config Config, vocab *Vocabulary, trie *ContextTrie, lines int64, longest int) *Model {
	m := &Model{
		id:        id,
		createdAt: createdAt,
		config:    config,
		vocab:     vocab,
		trie:      trie,
		lines:     lines,
		longest:   longest,
	}
	m.startID = vocab.intern(config.Sentinels.Start)
	m.endID, m.hasEnd = vocab.ID(config.Sentinels.End)
	return m
}

// ID returns the unique identifier assigned when the model was frozen
func (m *Model) ID() uuid.UUID { return m.id }

// CreatedAt returns when the model was frozen
func (m *Model) CreatedAt() time.Time { return m.createdAt }

// Config returns the training configuration
func (m *Model) Config() Config { return m.config }

// Vocabulary returns the token vocabulary
func (m *Model) Vocabulary() *Vocabulary { return m.vocab }

// Lines returns the number of training sequences the model has seen
func (m *Model) Lines() int64 { return m.lines }

// Empty reports whether the model has no usable transition. Callers must not
// sample from or score against an empty model.
func (m *Model) Empty() bool {
	return m.trie.root.probs == nil
}

// ids converts tokens to IDs, failing on tokens outside the vocabulary
func (m *Model) ids(tokens []string) ([]uint32, bool) {
	out := make([]uint32, len(tokens))
	for i, tok := range tokens {
		id, ok := m.vocab.ID(tok)
		if !ok {
			return nil, false
		}
		out[i] = id
	}
	return out, true
}

// lookup returns the probability of next after history using the back-off
// rule: the longest suffix of history, at most maxOrder-1 tokens, that is a
// context containing next.
func (m *Model) lookup(history []uint32, next uint32) (float64, bool) {
	node := m.trie.root
	p, found := node.probs[next]

	limit := len(history) - (m.config.MaxOrder - 1)
	if limit < 0 {
		limit = 0
	}
	for i := len(history) - 1; i >= limit; i-- {
		child, ok := node.children[history[i]]
		if !ok {
			break
		}
		node = child
		if q, ok := node.probs[next]; ok {
			p, found = q, true
		}
	}
	return p, found
}

// deepestContext returns the longest smoothed context matching the end of history
func (m *Model) deepestContext(history []uint32) *TrieNode {
	node := m.trie.root
	best := node
	limit := len(history) - (m.config.MaxOrder - 1)
	if limit < 0 {
		limit = 0
	}
	for i := len(history) - 1; i >= limit; i-- {
		child, ok := node.children[history[i]]
		if !ok {
			break
		}
		node = child
		if node.probs != nil {
			best = node
		}
	}
	if best.probs == nil {
		return nil
	}
	return best
}

// Probability returns P(next | start sentinel + history) under the back-off
// rule. It returns false when the transition is inadmissible.
func (m *Model) Probability(history []string, next string) (float64, bool) {
	ids, ok := m.ids(history)
	if !ok {
		return 0, false
	}
	nextID, ok := m.vocab.ID(next)
	if !ok {
		return 0, false
	}
	return m.lookup(append([]uint32{m.startID}, ids...), nextID)
}

// Transitions returns the smoothed distribution of an exact context, nil when
// the context does not exist or was dropped
func (m *Model) Transitions(context []string) map[string]float64 {
	ids, ok := m.ids(context)
	if !ok {
		return nil
	}
	node := m.trie.Find(ids)
	if node == nil || node.probs == nil {
		return nil
	}
	out := make(map[string]float64, len(node.probs))
	for id, p := range node.probs {
		out[m.vocab.Token(id)] = p
	}
	return out
}

// TransitionCount returns the raw count of next after an exact context
func (m *Model) TransitionCount(context []string, next string) int64 {
	ids, ok := m.ids(context)
	if !ok {
		return 0
	}
	nextID, ok := m.vocab.ID(next)
	if !ok {
		return 0
	}
	node := m.trie.Find(ids)
	if node == nil {
		return 0
	}
	return node.counts[nextID]
}

// CheckInvariants verifies that every smoothed context has probabilities in
// (0, 1] summing to at most one
func (m *Model) CheckInvariants() error {
	var err error
	m.trie.Walk(func(node *TrieNode) {
		if err != nil || node.probs == nil {
			return
		}
		if len(node.probs) == 0 {
			err = errors.Errorf("context %v has no transitions", m.tokens(node.Context()))
			return
		}
		var sum float64
		for _, id := range sortedProbKeys(node.probs) {
			p := node.probs[id]
			if p <= 0 || p > 1 || math.IsNaN(p) {
				err = errors.Errorf("context %v: probability of %q out of range: %v",
					m.tokens(node.Context()), m.vocab.Token(id), p)
				return
			}
			sum += p
		}
		if sum > 1+probabilityEpsilon {
			err = errors.Errorf("context %v: probabilities sum to %v", m.tokens(node.Context()), sum)
		}
	})
	return err
}

func (m *Model) tokens(ids []uint32) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = m.vocab.Token(id)
	}
	return out
}

// ModelStats summarizes a model
type ModelStats struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Config    Config          `json:"config"`
	Lines     int64           `json:"lines"`
	Longest   int             `json:"longest_sequence"`
	VocabSize int             `json:"vocab_size"`
	MaxToken  int             `json:"max_token_bytes"`
	Empty     bool            `json:"empty"`
	Trie      TrieMemoryStats `json:"trie"`
}

// Stats returns summary statistics of the model
func (m *Model) Stats() ModelStats {
	return ModelStats{
		ID:        m.id.String(),
		CreatedAt: m.createdAt,
		Config:    m.config,
		Lines:     m.lines,
		Longest:   m.longest,
		VocabSize: m.vocab.Size(),
		MaxToken:  m.vocab.MaxTokenLen(),
		Empty:     m.Empty(),
		Trie:      m.trie.MemoryStats(),
	}
}
