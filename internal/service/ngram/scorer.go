package ngram

import (
	"math"
	"unicode/utf8"
)

// MaxCost is the ml2p reported for passwords the model cannot produce
const MaxCost = 1022.0

// Scored is the detailed result of segmenting one password
type Scored struct {
	ML2P       float64  `json:"ml2p"`
	Tokens     []string `json:"tokens"`
	Iterations int64    `json:"iterations"` // Completed decompositions examined
	Exhausted  bool     `json:"exhausted"`  // The iteration budget stopped the search
}

// Scorer finds the cheapest decomposition of a password into model tokens.
// It is safe for concurrent use; every call keeps its own search state.
type Scorer struct {
	model         *Model
	maxIterations int64
}

// NewScorer creates a scorer. maxIterations bounds the number of completed
// decompositions examined per password; zero or less means unbounded.
func NewScorer(m *Model, maxIterations int64) *Scorer {
	return &Scorer{model: m, maxIterations: maxIterations}
}

// Model returns the model the scorer reads
func (s *Scorer) Model() *Model {
	return s.model
}

// Score returns the minus log2 probability of pwd and its token decomposition
func (s *Scorer) Score(pwd string) (float64, []string) {
	r := s.ScoreDetail(pwd)
	return r.ML2P, r.Tokens
}

type candidate struct {
	id     uint32
	length int // bytes
}

type searchFrame struct {
	pos   int
	cands []candidate
	next  int
}

// ScoreDetail runs the segmentation search and reports its bookkeeping
func (s *Scorer) ScoreDetail(pwd string) Scored {
	result := Scored{ML2P: MaxCost, Tokens: []string{pwd}}
	m := s.model
	if m.Empty() || !m.hasEnd {
		return result
	}

	target := pwd + m.config.Sentinels.End
	cands := s.candidates(target)

	best := MaxCost
	var bestIDs []uint32
	found := false

	history := []uint32{m.startID}
	costs := []float64{0}
	stack := []searchFrame{{pos: 0, cands: cands[0]}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.cands) {
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				history = history[:len(history)-1]
				costs = costs[:len(costs)-1]
			}
			continue
		}
		c := top.cands[top.next]
		top.next++

		p, ok := m.lookup(history, c.id)
		if !ok {
			continue
		}
		cost := costs[len(costs)-1] - math.Log2(p)
		end := top.pos + c.length

		if end == len(target) {
			if c.id != m.endID {
				continue
			}
			result.Iterations++
			if cost < best {
				best = cost
				bestIDs = append(bestIDs[:0], history[1:]...)
				found = true
			}
			if s.maxIterations > 0 && result.Iterations >= s.maxIterations {
				result.Exhausted = true
				break
			}
			continue
		}

		history = append(history, c.id)
		costs = append(costs, cost)
		stack = append(stack, searchFrame{pos: end, cands: cands[end]})
	}

	if !found {
		return result
	}
	result.ML2P = best
	result.Tokens = m.tokens(bestIDs)
	return result
}

// candidates lists, for every byte offset of target, the vocabulary tokens
// starting there and ending on a rune boundary
func (s *Scorer) candidates(target string) [][]candidate {
	m := s.model
	maxLen := m.vocab.MaxTokenLen()

	// Boundaries follow the decoder so invalid bytes split like the tokenizer does
	bound := make([]bool, len(target)+1)
	for i := 0; i < len(target); {
		bound[i] = true
		_, size := utf8.DecodeRuneInString(target[i:])
		i += size
	}
	bound[len(target)] = true

	out := make([][]candidate, len(target)+1)
	for pos := 0; pos < len(target); pos++ {
		if !bound[pos] {
			continue
		}
		for end := pos + 1; end <= len(target) && end-pos <= maxLen; end++ {
			if !bound[end] {
				continue
			}
			id, ok := m.vocab.ID(target[pos:end])
			if !ok || id == m.startID {
				continue
			}
			out[pos] = append(out[pos], candidate{id: id, length: end - pos})
		}
	}
	return out
}
