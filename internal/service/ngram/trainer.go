package ngram

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	ngramtypes "pwguess/internal/model/ngram"
	"pwguess/internal/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Tokenizer converts one corpus line into tokens
type Tokenizer interface {
	Tokenize(line string) []string
}

// Trainer owns the vocabulary and count trie during training. It is not safe
// for concurrent use; Freeze hands its tables to an immutable Model.
type Trainer struct {
	config  Config
	vocab   *Vocabulary
	trie    *ContextTrie
	lines   int64
	longest int
	frozen  bool
	logger  *zap.Logger
}

// NewTrainer creates a trainer, optionally seeded with the counts of a prior model
func NewTrainer(config Config, prior *Model, logger *zap.Logger) (*Trainer, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid trainer config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Trainer{
		config: config,
		vocab:  NewVocabulary(),
		trie:   NewContextTrie(),
		logger: logger,
	}
	if prior != nil {
		if prior.config.Sentinels != config.Sentinels {
			return nil, errors.Errorf("prior model sentinels %q/%q do not match %q/%q",
				prior.config.Sentinels.Start, prior.config.Sentinels.End,
				config.Sentinels.Start, config.Sentinels.End)
		}
		t.vocab = prior.vocab.clone()
		t.trie = prior.trie.cloneCounts()
		t.lines = prior.lines
		t.longest = prior.longest
		logger.Debug("Seeded trainer from prior model",
			zap.String("prior_id", prior.id.String()),
			zap.Int("vocab_size", t.vocab.Size()),
			zap.Int("contexts", t.trie.contexts))
	}
	return t, nil
}

// Count streams a corpus into a fresh counter without touching the trainer
func (t *Trainer) Count(ctx context.Context, r io.Reader, tok Tokenizer) (*Counter, error) {
	counter := NewCounter(t.config.Sentinels, t.config.MaxOrder)
	_, err := util.ReadLines(ctx, r, func(line string) error {
		tokens := tok.Tokenize(line)
		if len(tokens) == 0 {
			return nil
		}
		counter.Add(tokens)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to count corpus")
	}
	return counter, nil
}

// Absorb merges a fully counted corpus into the trainer's tables. This is the
// single place where the prune decision is made: a context the trainer does
// not know yet is admitted only if one of its counts reaches the threshold,
// while known contexts always accumulate. The empty context is always merged.
func (t *Trainer) Absorb(counter *Counter) error {
	if t.frozen {
		return ErrTrainerFrozen
	}

	newTokens := make([]string, 0)
	for tok := range counter.vocab {
		if _, ok := t.vocab.ID(tok); !ok {
			newTokens = append(newTokens, tok)
		}
	}
	sort.Strings(newTokens)
	for _, tok := range newTokens {
		t.vocab.intern(tok)
	}
	for tok, cnt := range counter.vocab {
		t.vocab.add(tok, cnt)
	}

	if len(counter.unigrams) > 0 {
		t.trie.merge(t.trie.root, t.idCounts(counter.unigrams))
	}

	admitted, rejected := 0, 0
	for _, table := range counter.orders {
		for key, next := range table {
			ctxTokens, ok := ngramtypes.ParseKey(key)
			if !ok {
				return errors.Errorf("malformed context key %q", key)
			}
			ids := make([]uint32, len(ctxTokens))
			for i, tok := range ctxTokens {
				ids[i], _ = t.vocab.ID(tok)
			}

			node := t.trie.Find(ids)
			if node == nil || !node.IsContext() {
				if !reachesThreshold(next, t.config.Threshold) {
					rejected++
					continue
				}
				node = t.trie.insert(ids)
				admitted++
			}
			t.trie.merge(node, t.idCounts(next))
		}
	}

	t.lines += counter.lines
	if counter.longest > t.longest {
		t.longest = counter.longest
	}

	t.logger.Debug("Absorbed counter",
		zap.Int64("lines", counter.lines),
		zap.Int("new_contexts", admitted),
		zap.Int("rejected_contexts", rejected),
		zap.Int("vocab_size", t.vocab.Size()))
	return nil
}

func (t *Trainer) idCounts(counts map[string]int64) map[uint32]int64 {
	out := make(map[uint32]int64, len(counts))
	for tok, cnt := range counts {
		id, _ := t.vocab.ID(tok)
		out[id] += cnt
	}
	return out
}

func reachesThreshold(counts map[string]int64, threshold int64) bool {
	for _, cnt := range counts {
		if cnt >= threshold {
			return true
		}
	}
	return false
}

// Train counts a corpus and absorbs it in one step
func (t *Trainer) Train(ctx context.Context, r io.Reader, tok Tokenizer) error {
	counter, err := t.Count(ctx, r, tok)
	if err != nil {
		return err
	}
	if counter.Lines() == 0 {
		return ErrNoTrainingData
	}
	return t.Absorb(counter)
}

// TrainParallel counts each shard on its own goroutine, merges the shard
// counters and absorbs the result once
func (t *Trainer) TrainParallel(ctx context.Context, shards []io.Reader, tok Tokenizer) error {
	counters := make([]*Counter, len(shards))
	errs := make([]error, len(shards))

	var wg sync.WaitGroup
	for i, shard := range shards {
		wg.Add(1)
		go func(i int, r io.Reader) {
			defer wg.Done()
			counters[i], errs[i] = t.Count(ctx, r, tok)
		}(i, shard)
	}
	wg.Wait()

	merged := NewCounter(t.config.Sentinels, t.config.MaxOrder)
	for i, counter := range counters {
		if errs[i] != nil {
			return errors.Wrapf(errs[i], "shard %d", i)
		}
		merged.Merge(counter)
	}
	if merged.Lines() == 0 {
		return ErrNoTrainingData
	}

	t.logger.Info("Merged corpus shards",
		zap.Int("shards", len(shards)),
		zap.Int64("lines", merged.Lines()),
		zap.Int("contexts", merged.Contexts()))
	return t.Absorb(merged)
}

// Freeze smooths the accumulated counts and returns the immutable model. The
// trainer cannot be used afterwards.
func (t *Trainer) Freeze() (*Model, error) {
	if t.frozen {
		return nil, ErrTrainerFrozen
	}
	t.frozen = true

	start := time.Now()
	smoother := NewBackoffSmoother(t.config.Threshold)
	dropped := smoothTrie(t.trie, smoother)

	m := newModel(uuid.New(), time.Now(), t.config, t.vocab, t.trie, t.lines, t.longest)
	t.logger.Info("Froze n-gram model",
		zap.String("model_id", m.id.String()),
		zap.String("smoother", smoother.Name()),
		zap.Int64("lines", t.lines),
		zap.Int("vocab_size", t.vocab.Size()),
		zap.Int("contexts", t.trie.contexts),
		zap.Int("dropped_contexts", dropped),
		zap.Bool("empty", m.Empty()),
		zap.Duration("elapsed", time.Since(start)))
	return m, nil
}

// Train builds a model from a corpus. An empty corpus yields an empty model
// together with ErrNoTrainingData.
func Train(ctx context.Context, r io.Reader, tok Tokenizer, config Config, prior *Model, logger *zap.Logger) (*Model, error) {
	trainer, err := NewTrainer(config, prior, logger)
	if err != nil {
		return nil, err
	}
	trainErr := trainer.Train(ctx, r, tok)
	if trainErr != nil && !errors.Is(trainErr, ErrNoTrainingData) {
		return nil, trainErr
	}
	m, err := trainer.Freeze()
	if err != nil {
		return nil, err
	}
	return m, trainErr
}
