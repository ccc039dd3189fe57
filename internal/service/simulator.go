package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"pwguess/internal/config"
	ngramtypes "pwguess/internal/model/ngram"
	"pwguess/internal/service/montecarlo"
	"pwguess/internal/service/ngram"
	"pwguess/internal/service/tokenizer"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoModel is returned when an operation needs a model and none is installed
var ErrNoModel = errors.New("no model installed")

// ErrNoCurve is returned when guess numbers are requested before a simulation
var ErrNoCurve = errors.New("no rank curve, run a simulation first")

// SimulatorService orchestrates training, sampling and guess-number estimation
type SimulatorService struct {
	cfg         *config.Config
	registry    *tokenizer.TokenizerRegistry
	tokenizer   *tokenizer.SplitTokenizer
	persistence *ngram.Persistence
	logger      *zap.Logger

	mu           sync.RWMutex
	model        *ngram.Model
	scorer       *ngram.Scorer
	simulation   *Simulation
	trainingList []string
}

// Simulation is the outcome of sampling from the installed model
type Simulation struct {
	RunID   uuid.UUID
	ModelID uuid.UUID
	Samples *montecarlo.SampleSet
	Curve   *montecarlo.RankCurve
	Index   *montecarlo.SampleIndex // Nil unless the exact-sample attack is enabled
	Summary montecarlo.Summary
	Elapsed time.Duration
}

// NewSimulatorService creates a new simulator service
func NewSimulatorService(cfg *config.Config, logger *zap.Logger) (*SimulatorService, error) {
	registry := tokenizer.NewTokenizerRegistry()
	tok, err := registry.GetTokenizer(cfg.Model.Splitter, cfg.Model.Start4Word, cfg.Model.Skip4Word)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer: %w", err)
	}

	persistence, err := ngram.NewPersistence(cfg.App.WorkDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistence: %w", err)
	}

	return &SimulatorService{
		cfg:          cfg,
		registry:     registry,
		tokenizer:    tok,
		persistence:  persistence,
		logger:       logger,
		trainingList: append([]string(nil), cfg.Source.Training...),
	}, nil
}

// ModelConfig converts the configuration into the trainer's settings
func (s *SimulatorService) ModelConfig() ngram.Config {
	return ngram.Config{
		Sentinels: ngramtypes.Sentinels{
			Start: s.cfg.Model.StartChr,
			End:   s.cfg.Model.EndChr,
		},
		MaxOrder:   s.cfg.Model.MaxGram,
		Threshold:  s.cfg.Model.Threshold,
		Splitter:   s.tokenizer.Splitter(),
		Start4Word: s.cfg.Model.Start4Word,
		Skip4Word:  s.cfg.Model.Skip4Word,
	}
}

// SamplerConfig converts the configuration into sampling bounds
func (s *SimulatorService) SamplerConfig() ngram.SamplerConfig {
	return ngram.SamplerConfig{
		MinLength:   s.cfg.Sampling.MinLength,
		MaxLength:   s.cfg.Sampling.MaxLength,
		MaxAttempts: s.cfg.Sampling.MaxAttempts,
	}
}

// Tokenizer returns the configured tokenizer
func (s *SimulatorService) Tokenizer() *tokenizer.SplitTokenizer {
	return s.tokenizer
}

// Persistence returns the model store
func (s *SimulatorService) Persistence() *ngram.Persistence {
	return s.persistence
}

// Train builds a model from one or more corpus shards, optionally on top of
// a prior model. An empty corpus yields an empty model and ngram.ErrNoTrainingData.
func (s *SimulatorService) Train(ctx context.Context, shards []io.Reader, prior *ngram.Model) (*ngram.Model, error) {
	trainer, err := ngram.NewTrainer(s.ModelConfig(), prior, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create trainer: %w", err)
	}

	start := time.Now()
	if len(shards) == 1 {
		err = trainer.Train(ctx, shards[0], s.tokenizer)
	} else {
		err = trainer.TrainParallel(ctx, shards, s.tokenizer)
	}
	if err != nil && !errors.Is(err, ngram.ErrNoTrainingData) {
		return nil, fmt.Errorf("failed to train model: %w", err)
	}
	trainErr := err

	m, err := trainer.Freeze()
	if err != nil {
		return nil, fmt.Errorf("failed to freeze model: %w", err)
	}

	stats := m.Stats()
	s.logger.Info("Training complete",
		zap.String("model_id", stats.ID),
		zap.String("lines", humanize.Comma(stats.Lines)),
		zap.Int("vocab_size", stats.VocabSize),
		zap.String("contexts", humanize.Comma(stats.Trie.Contexts)),
		zap.Bool("empty", stats.Empty),
		zap.Duration("elapsed", time.Since(start)))
	return m, trainErr
}

// LoadOrTrain installs the saved model named in the configuration, or trains
// a new one from the given shards and saves it
func (s *SimulatorService) LoadOrTrain(ctx context.Context, open func() ([]io.Reader, error)) (*ngram.Model, error) {
	name := s.cfg.App.ModelName
	if !s.cfg.App.Override && s.persistence.Exists(name) {
		m, err := s.persistence.Load(name)
		if err == nil {
			s.Install(m)
			return m, nil
		}
		s.logger.Warn("Failed to load existing model, will retrain",
			zap.String("name", name),
			zap.Error(err))
		if errors.Is(err, ngram.ErrCorruptModel) {
			if err := s.persistence.Delete(name); err != nil {
				return nil, err
			}
		}
	}

	shards, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to open training corpus: %w", err)
	}
	m, err := s.Train(ctx, shards, nil)
	if err != nil {
		return nil, err
	}
	if err := s.persistence.Save(m, name); err != nil {
		return nil, err
	}
	s.Install(m)
	return m, nil
}

// Install makes a model current. Any previous simulation is discarded since
// a rank curve belongs to exactly one model.
func (s *SimulatorService) Install(m *ngram.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
	s.scorer = ngram.NewScorer(m, s.cfg.Scoring.MaxIterations)
	s.simulation = nil
}

// Model returns the installed model
func (s *SimulatorService) Model() (*ngram.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return nil, ErrNoModel
	}
	return s.model, nil
}

// Simulation returns the latest simulation of the installed model
func (s *SimulatorService) Simulation() (*Simulation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.simulation == nil {
		return nil, ErrNoCurve
	}
	return s.simulation, nil
}

// Simulate samples from the installed model and builds its rank curve
func (s *SimulatorService) Simulate(ctx context.Context, progress func(int)) (*Simulation, error) {
	m, err := s.Model()
	if err != nil {
		return nil, err
	}
	sampler, err := ngram.NewSampler(m, s.SamplerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler: %w", err)
	}

	runID := uuid.New()
	start := time.Now()
	set, err := montecarlo.Generate(ctx, sampler, s.cfg.Sampling.Size, montecarlo.GenerateOptions{
		Workers:       s.cfg.Sampling.Workers,
		Seed:          s.cfg.Sampling.Seed,
		KeepPasswords: s.cfg.Sampling.UsingSampleAttack,
		Progress:      progress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate samples: %w", err)
	}

	curve, err := montecarlo.BuildRankCurve(set.ML2P)
	if err != nil {
		return nil, fmt.Errorf("failed to build rank curve: %w", err)
	}
	summary, err := montecarlo.SummarizeSamples(set.ML2P)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize samples: %w", err)
	}

	sim := &Simulation{
		RunID:   runID,
		ModelID: m.ID(),
		Samples: set,
		Curve:   curve,
		Summary: summary,
		Elapsed: time.Since(start),
	}
	if s.cfg.Sampling.UsingSampleAttack {
		sim.Index = montecarlo.NewSampleIndex(set)
	}

	s.mu.Lock()
	if s.model == m {
		s.simulation = sim
	}
	s.mu.Unlock()

	s.logger.Info("Simulation complete",
		zap.String("run_id", runID.String()),
		zap.String("model_id", m.ID().String()),
		zap.String("samples", humanize.Comma(int64(len(set.ML2P)))),
		zap.Float64("mean_ml2p", summary.Mean),
		zap.Float64("median_ml2p", summary.Median),
		zap.Float64("p90_ml2p", summary.P90),
		zap.Duration("elapsed", sim.Elapsed))
	return sim, nil
}

// Estimate is the guessability of one password
type Estimate struct {
	Password    string
	Tokens      []string
	ML2P        float64
	Probability float64
	GuessNumber float64 // +Inf when unreachable or beyond the sampled range
	Coverage    montecarlo.Coverage
	Exact       bool
}

// Estimate scores a password and, when a simulation exists, ranks it
func (s *SimulatorService) Estimate(pwd string) (*Estimate, error) {
	s.mu.RLock()
	scorer, sim := s.scorer, s.simulation
	s.mu.RUnlock()
	if scorer == nil {
		return nil, ErrNoModel
	}

	ml2p, tokens := scorer.Score(pwd)
	est := &Estimate{
		Password:    pwd,
		Tokens:      tokens,
		ML2P:        ml2p,
		Probability: math.Exp2(-ml2p),
		GuessNumber: math.Inf(1),
		Coverage:    montecarlo.CoverageAbove,
	}
	if sim == nil {
		return est, ErrNoCurve
	}
	report := montecarlo.Report(sim.Curve, []montecarlo.ScoredPassword{{Password: pwd, Tokens: tokens, ML2P: ml2p, Count: 1}},
		montecarlo.ReportOptions{Index: sim.Index})
	e := report.Entries[0]
	est.GuessNumber, est.Coverage, est.Exact = e.GuessNumber, e.Coverage, e.Exact
	return est, nil
}

// Evaluate scores a test set with the installed model and ranks it against
// the latest simulation
func (s *SimulatorService) Evaluate(ctx context.Context, set []montecarlo.ScoredPassword, opts montecarlo.ReportOptions) (*montecarlo.GuessReport, error) {
	s.mu.RLock()
	scorer, sim := s.scorer, s.simulation
	s.mu.RUnlock()
	if scorer == nil {
		return nil, ErrNoModel
	}
	if sim == nil {
		return nil, ErrNoCurve
	}

	scored, err := montecarlo.ScoreAll(ctx, scorer, set, s.cfg.Scoring.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to score test set: %w", err)
	}
	if opts.Index == nil {
		opts.Index = sim.Index
	}
	report := montecarlo.Report(sim.Curve, scored, opts)
	s.logger.Info("Evaluated test set",
		zap.String("run_id", sim.RunID.String()),
		zap.Int("distinct", len(scored)),
		zap.Int64("total", report.Total),
		zap.Int("cracked_now", len(report.Cracked())))
	return report, nil
}

// ReadTestSet groups a test set using the configured tokenizer
func (s *SimulatorService) ReadTestSet(ctx context.Context, r io.Reader) ([]montecarlo.ScoredPassword, error) {
	set, err := montecarlo.ReadTestSet(ctx, r, s.tokenizer)
	if err != nil {
		return nil, fmt.Errorf("failed to read test set: %w", err)
	}
	return set, nil
}

// Round is one round of secondary training
type Round struct {
	Index     int
	Threshold float64
	ModelID   uuid.UUID
	Report    *montecarlo.GuessReport
	Cracked   []montecarlo.Entry // Cracked in this round and not before
	Retrained int                // Passwords fed back into training
}

// CrackResult is the outcome of all rounds plus the evaluation of the final model
type CrackResult struct {
	Rounds    []Round
	Final     *montecarlo.GuessReport
	Sectional []SectionalEntry
	Total     int64
}

// SectionalEntry is one line of the union of all rounds' cracked passwords.
// Guess numbers are offset by the threshold of the previous round.
type SectionalEntry struct {
	Password    string
	ML2P        float64
	Count       int64
	GuessNumber float64
	Cracked     int64
	Ratio       float64
}

// RunSecondaryTraining repeatedly simulates, cracks the test set under each
// configured guess-number threshold and retrains on the newly cracked
// passwords, then evaluates the final model
func (s *SimulatorService) RunSecondaryTraining(ctx context.Context, set []montecarlo.ScoredPassword, progress func(int)) (*CrackResult, error) {
	if _, err := s.Model(); err != nil {
		return nil, err
	}

	var total int64
	for _, sp := range set {
		total += sp.Count
	}
	result := &CrackResult{Total: total}
	alreadyCracked := make(map[string]bool)
	var cums [][]montecarlo.Entry

	for idx, threshold := range s.cfg.Guessing.Thresholds {
		s.logger.Info("Starting round", zap.Int("round", idx), zap.Float64("guess_threshold", threshold))
		if _, err := s.Simulate(ctx, progress); err != nil {
			return nil, fmt.Errorf("round %d: %w", idx, err)
		}

		remaining := make([]montecarlo.ScoredPassword, 0, len(set))
		for _, sp := range set {
			if !alreadyCracked[sp.Password] {
				remaining = append(remaining, sp)
			}
		}
		report, err := s.Evaluate(ctx, remaining, montecarlo.ReportOptions{GuessThreshold: threshold, Total: total})
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", idx, err)
		}

		m, _ := s.Model()
		round := Round{Index: idx, Threshold: threshold, ModelID: m.ID(), Report: report, Cracked: report.Cracked()}
		for _, e := range round.Cracked {
			alreadyCracked[e.Password] = true
		}
		cums = append(cums, round.Cracked)

		secondary := s.secondaryTraining(round.Cracked, idx)
		round.Retrained = len(secondary)
		result.Rounds = append(result.Rounds, round)

		next, err := s.retrain(secondary, m)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", idx, err)
		}
		s.mu.Lock()
		s.trainingList = append(s.trainingList, fmt.Sprintf("%g", threshold))
		s.mu.Unlock()
		s.Install(next)
	}

	if _, err := s.Simulate(ctx, progress); err != nil {
		return nil, fmt.Errorf("final round: %w", err)
	}
	final, err := s.Evaluate(ctx, set, montecarlo.ReportOptions{Total: total})
	if err != nil {
		return nil, fmt.Errorf("final round: %w", err)
	}
	result.Final = final

	var finalCum []montecarlo.Entry
	for _, e := range final.Entries {
		if !alreadyCracked[e.Password] {
			finalCum = append(finalCum, e)
		}
	}
	cums = append(cums, finalCum)
	result.Sectional = sectional(cums, s.cfg.Guessing.Thresholds, total)
	return result, nil
}

// secondaryTraining expands cracked entries by multiplicity, sampled down to
// the configured size
func (s *SimulatorService) secondaryTraining(cracked []montecarlo.Entry, round int) [][]string {
	var out [][]string
	for _, e := range cracked {
		for i := int64(0); i < e.Count; i++ {
			out = append(out, e.Tokens)
		}
	}
	limit := s.cfg.Guessing.SecondarySample
	if limit > 0 && limit < len(out) {
		rng := rand.New(rand.NewPCG(s.cfg.Sampling.Seed, uint64(round)))
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		out = out[:limit]
		s.logger.Info("Sampled secondary training set", zap.Int("round", round), zap.Int("size", limit))
	}
	return out
}

// retrain merges already tokenized passwords into a copy of the prior model
func (s *SimulatorService) retrain(sequences [][]string, prior *ngram.Model) (*ngram.Model, error) {
	trainer, err := ngram.NewTrainer(s.ModelConfig(), prior, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create trainer: %w", err)
	}
	counter := ngram.NewCounter(s.ModelConfig().Sentinels, s.cfg.Model.MaxGram)
	for _, tokens := range sequences {
		counter.Add(tokens)
	}
	if err := trainer.Absorb(counter); err != nil {
		return nil, fmt.Errorf("failed to absorb secondary training: %w", err)
	}
	m, err := trainer.Freeze()
	if err != nil {
		return nil, fmt.Errorf("failed to freeze model: %w", err)
	}
	return m, nil
}

func sectional(cums [][]montecarlo.Entry, thresholds []float64, total int64) []SectionalEntry {
	offsets := append([]float64{0}, thresholds...)
	var out []SectionalEntry
	var cracked int64
	for i, cum := range cums {
		for _, e := range cum {
			cracked += e.Count
			se := SectionalEntry{
				Password:    e.Password,
				ML2P:        e.ML2P,
				Count:       e.Count,
				GuessNumber: e.GuessNumber + offsets[i],
				Cracked:     cracked,
			}
			if total > 0 {
				se.Ratio = float64(cracked) / float64(total) * 100
			}
			out = append(out, se)
		}
	}
	return out
}

// ConfigSnapshot records how a model was produced
type ConfigSnapshot struct {
	ModelID         string       `json:"model_id"`
	Model           ngram.Config `json:"model"`
	TrainingList    []string     `json:"training_list"`
	GuessThresholds []float64    `json:"guess_number_thresholds"`
	SampleSize      int          `json:"sample_size"`
	MaxIterations   int64        `json:"max_iter"`
}

// Snapshot returns the configuration snapshot of the installed model
func (s *SimulatorService) Snapshot() ConfigSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := ConfigSnapshot{
		Model:           s.ModelConfig(),
		TrainingList:    append([]string(nil), s.trainingList...),
		GuessThresholds: s.cfg.Guessing.Thresholds,
		SampleSize:      s.cfg.Sampling.Size,
		MaxIterations:   s.cfg.Scoring.MaxIterations,
	}
	if s.model != nil {
		snap.ModelID = s.model.ID().String()
	}
	return snap
}
