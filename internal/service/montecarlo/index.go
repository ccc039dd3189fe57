package montecarlo

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
)

const indexFalsePositiveRate = 0.01

// SampledPassword is one distinct generated password with its multiplicity
type SampledPassword struct {
	Password string  `json:"password"`
	ML2P     float64 `json:"ml2p"`
	Count    int64   `json:"count"`
	Rank     int64   `json:"rank"`
}

// SampleIndex assigns exact ranks to generated passwords. Distinct passwords
// are ordered by cost; ranks start at 1 and duplicates consume consecutive
// ranks, so each password gets the first rank of its run.
//
// Lookups go through a bloom filter first. Only passwords that pass it are
// searched in byPassword, and the ranks found are cached in hits.
type SampleIndex struct {
	entries    []SampledPassword
	byPassword []int32            // Entry positions ordered by password
	filter     *bloom.BloomFilter // Prefilter for lookups of passwords never sampled
	searches   atomic.Int64       // Lookups that reached the sorted search
	mu         sync.RWMutex
	hits       map[string]int64
}

// NewSampleIndex builds the index from a generated sample set. It requires
// the passwords to have been kept during generation.
func NewSampleIndex(set *SampleSet) *SampleIndex {
	seen := make(map[string]int, len(set.Passwords))
	var entries []SampledPassword
	for i, pwd := range set.Passwords {
		if j, ok := seen[pwd]; ok {
			entries[j].Count++
			continue
		}
		seen[pwd] = len(entries)
		entries = append(entries, SampledPassword{Password: pwd, ML2P: set.ML2P[i], Count: 1})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ML2P != entries[j].ML2P {
			return entries[i].ML2P < entries[j].ML2P
		}
		return entries[i].Password < entries[j].Password
	})

	expected := uint(len(entries))
	if expected == 0 {
		expected = 1
	}
	idx := &SampleIndex{
		entries:    entries,
		byPassword: make([]int32, len(entries)),
		filter:     bloom.NewWithEstimates(expected, indexFalsePositiveRate),
		hits:       make(map[string]int64),
	}
	rank := int64(1)
	for i := range entries {
		entries[i].Rank = rank
		idx.byPassword[i] = int32(i)
		idx.filter.AddString(entries[i].Password)
		rank += entries[i].Count
	}
	sort.Slice(idx.byPassword, func(i, j int) bool {
		return entries[idx.byPassword[i]].Password < entries[idx.byPassword[j]].Password
	})
	return idx
}

// Rank returns the exact rank of a generated password
func (idx *SampleIndex) Rank(pwd string) (int64, bool) {
	if !idx.filter.TestString(pwd) {
		return 0, false
	}

	idx.mu.RLock()
	rank, ok := idx.hits[pwd]
	idx.mu.RUnlock()
	if ok {
		return rank, true
	}

	idx.searches.Add(1)
	i := sort.Search(len(idx.byPassword), func(i int) bool {
		return idx.entries[idx.byPassword[i]].Password >= pwd
	})
	if i == len(idx.byPassword) || idx.entries[idx.byPassword[i]].Password != pwd {
		return 0, false
	}
	rank = idx.entries[idx.byPassword[i]].Rank

	idx.mu.Lock()
	idx.hits[pwd] = rank
	idx.mu.Unlock()
	return rank, true
}

// Entries returns the distinct sampled passwords in rank order
func (idx *SampleIndex) Entries() []SampledPassword {
	return idx.entries
}

// Len returns the number of distinct sampled passwords
func (idx *SampleIndex) Len() int {
	return len(idx.entries)
}
