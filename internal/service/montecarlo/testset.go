package montecarlo

import (
	"context"
	"io"
	"runtime"
	"strings"
	"sync"

	"pwguess/internal/util"

	"github.com/pkg/errors"
)

// Scorer computes the ml2p of a password and its token decomposition
type Scorer interface {
	Score(pwd string) (float64, []string)
}

// Tokenizer turns a test-set line into the tokens the model was trained on
type Tokenizer interface {
	Tokenize(line string) []string
}

// TestSetOptions controls test-set scoring
type TestSetOptions struct {
	Workers   int       // Scoring goroutines, defaults to GOMAXPROCS
	Tokenizer Tokenizer // Optional; the password is the concatenation of its tokens
}

// ReadTestSet reads a test set and groups identical passwords, keeping the
// order of first appearance. Entries are returned unscored.
func ReadTestSet(ctx context.Context, r io.Reader, tok Tokenizer) ([]ScoredPassword, error) {
	index := make(map[string]int)
	var set []ScoredPassword
	_, err := util.ReadLines(ctx, r, func(line string) error {
		pwd := line
		if tok != nil {
			pwd = strings.Join(tok.Tokenize(line), "")
		}
		if pwd == "" {
			return nil
		}
		if i, ok := index[pwd]; ok {
			set[i].Count++
			return nil
		}
		index[pwd] = len(set)
		set = append(set, ScoredPassword{Password: pwd, Count: 1})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to read test set")
	}
	return set, nil
}

// ScoreAll scores every distinct password of a test set in parallel. The
// input is not modified.
func ScoreAll(ctx context.Context, scorer Scorer, set []ScoredPassword, workers int) ([]ScoredPassword, error) {
	scored := make([]ScoredPassword, len(set))
	copy(scored, set)

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	jobs := make(chan int, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				scored[i].ML2P, scored[i].Tokens = scorer.Score(scored[i].Password)
			}
		}()
	}

	var cerr error
	for i := range scored {
		if err := ctx.Err(); err != nil {
			cerr = err
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	if cerr != nil {
		return nil, errors.Wrap(cerr, "scoring interrupted")
	}
	return scored, nil
}

// ScoreTestSet reads a test set and scores each distinct password once
func ScoreTestSet(ctx context.Context, scorer Scorer, r io.Reader, opts TestSetOptions) ([]ScoredPassword, error) {
	set, err := ReadTestSet(ctx, r, opts.Tokenizer)
	if err != nil {
		return nil, err
	}
	return ScoreAll(ctx, scorer, set, opts.Workers)
}
