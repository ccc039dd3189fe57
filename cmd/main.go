package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"pwguess/internal/config"
	"pwguess/internal/controller"
	"pwguess/internal/handler"
	"pwguess/internal/service"
	"pwguess/internal/service/tokenizer"
	"pwguess/pkg/mcp"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	var sourceConfigPath = flag.String("source", "source.yaml", "Path to source configuration file")
	var appConfigPath = flag.String("app", "app.yaml", "Path to app configuration file")
	var workDir = flag.String("workdir", "", "Working directory to store models")
	var outDir = flag.String("out", "results", "Directory for result files")
	var mode = flag.String("mode", "serve", "One of train, simulate, serve")
	var debug = flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = usage
	flag.Parse()

	cfgZap := zap.NewProductionConfig()
	if *debug {
		cfgZap.Level.SetLevel(zapcore.DebugLevel)
	}
	cfgZap.OutputPaths = []string{"stdout", "all.log"}
	logger, err := cfgZap.Build()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	defer logger.Sync()

	cfg, err := config.LoadConfig(*appConfigPath, *sourceConfigPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Override workdir from command line if provided
	if *workDir != "" {
		cfg.App.WorkDir = *workDir
	}

	logger.Info("Configuration loaded successfully", zap.Any("config", cfg))

	simulator, err := service.NewSimulatorService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize simulator", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "train":
		cfg.App.Override = true
		if _, err := simulator.LoadOrTrain(ctx, openTraining(cfg, logger)); err != nil {
			logger.Fatal("Training failed", zap.Error(err))
		}
	case "simulate":
		if err := runSimulation(ctx, cfg, simulator, *outDir, logger); err != nil {
			logger.Fatal("Simulation failed", zap.Error(err))
		}
	case "serve":
		serve(ctx, cfg, simulator, logger)
	default:
		logger.Fatal("Unknown mode", zap.String("mode", *mode))
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage of %s:\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(out, "\nSplitter names for model.splitter: %s\n",
		strings.Join(tokenizer.NewTokenizerRegistry().SupportedSplitters(), ", "))
	fmt.Fprintln(out, "Any other splitter value is used as a literal delimiter.")
}

// openTraining opens every training file behind a byte progress bar
func openTraining(cfg *config.Config, logger *zap.Logger) func() ([]io.Reader, error) {
	return func() ([]io.Reader, error) {
		if len(cfg.Source.Training) == 0 {
			return nil, fmt.Errorf("no training files configured")
		}
		readers := make([]io.Reader, 0, len(cfg.Source.Training))
		for _, path := range cfg.Source.Training {
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("failed to open %s: %w", path, err)
			}
			info, err := f.Stat()
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to stat %s: %w", path, err)
			}
			logger.Info("Reading training file",
				zap.String("path", path),
				zap.String("size", humanize.Bytes(uint64(info.Size()))))
			bar := progressbar.DefaultBytes(info.Size(), filepath.Base(path))
			r := progressbar.NewReader(f, bar)
			readers = append(readers, &r)
		}
		return readers, nil
	}
}

func sampleBar(cfg *config.Config) (*progressbar.ProgressBar, func(int)) {
	bar := progressbar.NewOptions(cfg.Sampling.Size,
		progressbar.OptionSetDescription("sampling"),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionThrottle(500*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(25),
		progressbar.OptionShowIts(),
		progressbar.OptionShowCount(),
	)
	return bar, func(n int) { _ = bar.Add(n) }
}

func runSimulation(ctx context.Context, cfg *config.Config, simulator *service.SimulatorService, outDir string, logger *zap.Logger) error {
	if _, err := simulator.LoadOrTrain(ctx, openTraining(cfg, logger)); err != nil {
		return err
	}
	if cfg.Source.Testing == "" {
		return fmt.Errorf("no testing file configured")
	}

	f, err := os.Open(cfg.Source.Testing)
	if err != nil {
		return fmt.Errorf("failed to open test set: %w", err)
	}
	set, err := simulator.ReadTestSet(ctx, f)
	f.Close()
	if err != nil {
		return err
	}

	bar, progress := sampleBar(cfg)
	result, err := simulator.RunSecondaryTraining(ctx, set, func(n int) {
		progress(n)
		if bar.IsFinished() {
			bar.Reset()
		}
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	for _, round := range result.Rounds {
		path := filepath.Join(outDir, fmt.Sprintf("cracked_%d.tsv", round.Index))
		if err := service.ExportFile(path, func(w io.Writer) error { return service.WriteCrackedList(w, round.Cracked) }); err != nil {
			return err
		}
		path = filepath.Join(outDir, fmt.Sprintf("iter_result_%d.tsv", round.Index))
		if err := service.ExportFile(path, func(w io.Writer) error { return service.WriteReport(w, round.Report) }); err != nil {
			return err
		}
		logger.Info("Round finished",
			zap.Int("round", round.Index),
			zap.Float64("guess_threshold", round.Threshold),
			zap.Int("cracked", len(round.Cracked)),
			zap.Int("retrained", round.Retrained))
	}

	if err := service.ExportFile(filepath.Join(outDir, "iter_result.tsv"), func(w io.Writer) error {
		return service.WriteReport(w, result.Final)
	}); err != nil {
		return err
	}
	if err := service.ExportFile(filepath.Join(outDir, "sectional_result.tsv"), func(w io.Writer) error {
		return service.WriteSectional(w, result.Sectional)
	}); err != nil {
		return err
	}
	if sim, err := simulator.Simulation(); err == nil && sim.Index != nil {
		if err := service.ExportFile(filepath.Join(outDir, "samples.tsv"), func(w io.Writer) error {
			return service.WriteSamples(w, sim.Index)
		}); err != nil {
			return err
		}
	}
	if err := service.ExportFile(filepath.Join(outDir, "config.json"), func(w io.Writer) error {
		return service.WriteSnapshot(w, simulator.Snapshot())
	}); err != nil {
		return err
	}

	var finalCracked int64
	if n := len(result.Final.Entries); n > 0 {
		finalCracked = result.Final.Entries[n-1].Cracked
	}
	logger.Info("Simulation complete",
		zap.String("out_dir", outDir),
		zap.Int("rounds", len(result.Rounds)),
		zap.String("test_total", humanize.Comma(result.Total)),
		zap.String("cracked", humanize.Comma(finalCracked)))
	return nil
}

func serve(ctx context.Context, cfg *config.Config, simulator *service.SimulatorService, logger *zap.Logger) {
	if _, err := simulator.LoadOrTrain(ctx, openTraining(cfg, logger)); err != nil {
		logger.Fatal("Failed to prepare model", zap.Error(err))
	}
	if _, err := simulator.Simulate(ctx, nil); err != nil {
		logger.Warn("Initial simulation failed, guess numbers unavailable", zap.Error(err))
	}

	var mcpServer *mcp.GuessServer
	if cfg.Mcp.Enabled {
		mcpServer = mcp.NewGuessServer(simulator, cfg, logger)
	}
	modelController := controller.NewModelController(simulator, logger)
	router := handler.SetupRouter(modelController, mcpServer, logger)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.App.Port), Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting server", zap.Int("port", cfg.App.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
