package montecarlo

import (
	"math"
	"sort"
)

// UnreachableCost is the ml2p at or above which a password counts as not
// produced by the model
const UnreachableCost = 1000.0

// ScoredPassword is one distinct test password with its score and multiplicity
type ScoredPassword struct {
	Password string   `json:"password"`
	Tokens   []string `json:"tokens"`
	ML2P     float64  `json:"ml2p"`
	Count    int64    `json:"count"`
}

// ReportOptions tunes a guess report
type ReportOptions struct {
	// GuessThreshold marks entries with a guess number at or below it as
	// cracked this round; zero or less disables the threshold
	GuessThreshold float64

	// Index enables the exact-sample attack: sampled passwords get their
	// exact rank and only they count as cracked this round
	Index *SampleIndex

	// Total is the test-set size used for ratios, defaults to the sum of counts
	Total int64
}

// Entry is one line of a guess report
type Entry struct {
	Password    string   `json:"password"`
	Tokens      []string `json:"tokens"`
	ML2P        float64  `json:"ml2p"`
	Probability float64  `json:"probability"`
	Count       int64    `json:"count"`
	GuessNumber float64  `json:"guess_number"`
	Coverage    Coverage `json:"coverage"`
	Exact       bool     `json:"exact"`       // Rank taken from the sample index
	Cracked     int64    `json:"cracked"`     // Cumulative count of passwords guessed so far
	Ratio       float64  `json:"ratio"`       // Cracked as a percentage of the total
	CrackedNow  bool     `json:"cracked_now"` // Within this round's threshold
}

// GuessReport is the guessing curve of a test set
type GuessReport struct {
	Entries []Entry `json:"entries"`
	Total   int64   `json:"total"`
}

// Report ranks every test password and accumulates the cracked count in
// guess-number order
func Report(curve *RankCurve, scored []ScoredPassword, opts ReportOptions) *GuessReport {
	entries := make([]Entry, 0, len(scored))
	var sum int64
	for _, sp := range scored {
		sum += sp.Count
		gn, cov := curve.Rank(sp.ML2P)
		e := Entry{
			Password:    sp.Password,
			Tokens:      sp.Tokens,
			ML2P:        sp.ML2P,
			Probability: math.Exp2(-sp.ML2P),
			Count:       sp.Count,
			GuessNumber: gn,
			Coverage:    cov,
		}
		reachable := sp.ML2P < UnreachableCost
		if !reachable {
			e.GuessNumber, e.Coverage = math.Inf(1), CoverageAbove
		}

		if opts.Index != nil {
			if rank, ok := opts.Index.Rank(sp.Password); ok {
				e.GuessNumber, e.Coverage, e.Exact = float64(rank), CoverageWithin, true
				e.CrackedNow = true
			}
		} else if opts.GuessThreshold > 0 {
			e.CrackedNow = reachable && e.GuessNumber <= opts.GuessThreshold
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].GuessNumber != entries[j].GuessNumber {
			return entries[i].GuessNumber < entries[j].GuessNumber
		}
		if entries[i].ML2P != entries[j].ML2P {
			return entries[i].ML2P < entries[j].ML2P
		}
		return entries[i].Password < entries[j].Password
	})

	total := opts.Total
	if total <= 0 {
		total = sum
	}
	var cracked int64
	for i := range entries {
		if !math.IsInf(entries[i].GuessNumber, 1) {
			cracked += entries[i].Count
		}
		entries[i].Cracked = cracked
		if total > 0 {
			entries[i].Ratio = float64(cracked) / float64(total) * 100
		}
	}
	return &GuessReport{Entries: entries, Total: total}
}

// Cracked returns the entries cracked this round, the input of a further
// round of training
func (r *GuessReport) Cracked() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.CrackedNow {
			out = append(out, e)
		}
	}
	return out
}
