package ngram

import (
	ngramtypes "pwguess/internal/model/ngram"
)

// Counter accumulates raw n-gram counts for one shard of a corpus. It never
// prunes; counters from different shards merge commutatively and the prune
// decision is taken once, when the merged counter is absorbed by a Trainer.
type Counter struct {
	sentinels ngramtypes.Sentinels
	maxOrder  int

	vocab    map[string]int64              // token -> occurrences, sentinels included
	unigrams map[string]int64              // empty-context transitions, start sentinel excluded
	orders   []map[string]map[string]int64 // [n-2] context key -> next token -> count
	lines    int64                         // sequences counted
	longest  int                           // longest bracketed sequence
}

// NewCounter creates an empty counter for contexts up to maxOrder-1 tokens
func NewCounter(sentinels ngramtypes.Sentinels, maxOrder int) *Counter {
	orders := 0
	if maxOrder > 1 {
		orders = maxOrder - 1
	}
	return &Counter{
		sentinels: sentinels,
		maxOrder:  maxOrder,
		vocab:     make(map[string]int64),
		unigrams:  make(map[string]int64),
		orders:    make([]map[string]map[string]int64, orders),
	}
}

// Add counts one tokenized password. Tokens must not include the sentinels.
func (c *Counter) Add(tokens []string) {
	seq := ngramtypes.NewSequence(c.sentinels, tokens)
	c.lines++
	if len(seq) > c.longest {
		c.longest = len(seq)
	}

	for _, tok := range seq {
		c.vocab[tok]++
		if tok != c.sentinels.Start {
			c.unigrams[tok]++
		}
	}

	maxN := c.maxOrder
	if len(seq) < maxN {
		maxN = len(seq)
	}
	for n := 2; n <= maxN; n++ {
		table := c.orders[n-2]
		if table == nil {
			table = make(map[string]map[string]int64)
			c.orders[n-2] = table
		}
		for i := 0; i+n <= len(seq); i++ {
			window := ngramtypes.NGram(seq[i : i+n])
			key := window.Context().Key()
			next, ok := table[key]
			if !ok {
				next = make(map[string]int64)
				table[key] = next
			}
			next[window.LastToken()]++
		}
	}
}

// Merge adds the counts of another counter into this one
func (c *Counter) Merge(other *Counter) {
	for tok, cnt := range other.vocab {
		c.vocab[tok] += cnt
	}
	for tok, cnt := range other.unigrams {
		c.unigrams[tok] += cnt
	}
	for len(c.orders) < len(other.orders) {
		c.orders = append(c.orders, nil)
	}
	for i, table := range other.orders {
		if table == nil {
			continue
		}
		if c.orders[i] == nil {
			c.orders[i] = make(map[string]map[string]int64, len(table))
		}
		for key, next := range table {
			dst, ok := c.orders[i][key]
			if !ok {
				dst = make(map[string]int64, len(next))
				c.orders[i][key] = dst
			}
			for tok, cnt := range next {
				dst[tok] += cnt
			}
		}
	}
	c.lines += other.lines
	if other.longest > c.longest {
		c.longest = other.longest
	}
}

// Lines returns the number of sequences counted
func (c *Counter) Lines() int64 {
	return c.lines
}

// Contexts returns the number of distinct non-empty contexts counted
func (c *Counter) Contexts() int {
	total := 0
	for _, table := range c.orders {
		total += len(table)
	}
	return total
}

// TransitionCount returns the raw count of next after context
func (c *Counter) TransitionCount(context []string, next string) int64 {
	if len(context) == 0 {
		return c.unigrams[next]
	}
	idx := len(context) - 1
	if idx >= len(c.orders) || c.orders[idx] == nil {
		return 0
	}
	return c.orders[idx][ngramtypes.NGram(context).Key()][next]
}
