package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	progressbar "github.com/schollz/progressbar/v3"

	"github.com/fidde/cardinality_estimator/internal/experiment"
	"github.com/fidde/cardinality_estimator/internal/report"
	"github.com/fidde/cardinality_estimator/internal/storage"
	"github.com/fidde/cardinality_estimator/pkg/hashing"
	"github.com/fidde/cardinality_estimator/pkg/models"
	"github.com/fidde/cardinality_estimator/pkg/stream"
)

// experimentCommand sweeps estimator parameters over a dataset file.
type experimentCommand struct {
	cmd         *kingpin.CmdClause
	dataset     *string
	output      *string
	algorithm   *string
	simulations *int
	minPow      *int
	maxPow      *int
	format      *string
	verbose     *bool
	seed        *uint64
	hash        *string
	workers     *int
	noProgress  *bool

	store          *string
	sqlitePath     *string
	archiveDir     *string
	clickhouseAddr *string
}

func registerExperiment(app *kingpin.Application) *experimentCommand {
	defaults := experiment.DefaultConfig()
	storeDefaults := storage.DefaultConfig()

	c := &experimentCommand{}
	c.cmd = app.Command("experiment", "Average many seeded estimates per parameter and report the results.")
	c.dataset = c.cmd.Arg("dataset", "File with one element per line.").Required().String()
	c.output = c.cmd.Flag("output", "Write the report to this file instead of stdout.").Short('o').String()
	c.algorithm = c.cmd.Flag("algorithm", "Algorithms to run: hll, rec or all.").Default("all").String()
	c.simulations = c.cmd.Flag("simulations", "Trials per parameter.").Default(fmt.Sprint(defaults.Simulations)).Int()
	c.minPow = c.cmd.Flag("min-pow", "Smallest swept exponent.").Default(fmt.Sprint(defaults.MinPow)).Int()
	c.maxPow = c.cmd.Flag("max-pow", "Largest swept exponent.").Default(fmt.Sprint(defaults.MaxPow)).Int()
	c.format = c.cmd.Flag("format", "Report format.").Default(string(report.FormatText)).Enum(string(report.FormatText), string(report.FormatJSON), string(report.FormatYAML))
	c.verbose = c.cmd.Flag("verbose", "Include error statistics in the text report.").Short('v').Bool()
	c.seed = c.cmd.Flag("seed", "Run seed, 0 picks a random one.").Default("0").Uint64()
	c.hash = c.cmd.Flag("hash", "Hash family.").Default(string(defaults.Hash)).Enum(string(hashing.KindMurmur3), string(hashing.KindXXHash))
	c.workers = c.cmd.Flag("workers", "Concurrent trials, 0 uses every CPU.").Default("0").Int()
	c.noProgress = c.cmd.Flag("no-progress", "Hide the progress bar.").Bool()

	c.store = c.cmd.Flag("store", "Also save the run to this backend (sqlite, clickhouse, archive).").Enum("sqlite", "clickhouse", "archive")
	c.sqlitePath = c.cmd.Flag("sqlite-path", "SQLite database for --store=sqlite.").Default(storeDefaults.SQLitePath).String()
	c.archiveDir = c.cmd.Flag("archive-dir", "Directory for --store=archive.").Default(storeDefaults.ArchiveDir).String()
	c.clickhouseAddr = c.cmd.Flag("clickhouse-addr", "ClickHouse address for --store=clickhouse.").Default(storeDefaults.ClickHouseAddr).String()
	return c
}

func (c *experimentCommand) run(stdout io.Writer, logger *slog.Logger) error {
	algorithms, err := experiment.ParseAlgorithms(*c.algorithm)
	if err != nil {
		return err
	}

	runner, err := experiment.NewRunner(experiment.Config{
		Algorithms:  algorithms,
		Simulations: *c.simulations,
		MinPow:      *c.minPow,
		MaxPow:      *c.maxPow,
		Workers:     *c.workers,
		Hash:        hashing.Kind(*c.hash),
		Seed:        *c.seed,
	}, logger)
	if err != nil {
		return err
	}

	corpus, err := stream.LoadFile(*c.dataset)
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*c.noProgress {
		bar := progressbar.NewOptions(runner.Config().Trials(),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("Simulations"),
			progressbar.OptionClearOnFinish(),
		)
		runner.OnProgress(func(done, total int) {
			bar.Set(done) // nolint:errcheck
		})
		defer bar.Finish() // nolint:errcheck
	}

	run, err := runner.Run(ctx, *c.dataset, corpus)
	if err != nil {
		return err
	}

	if *c.store != "" {
		if err := c.save(ctx, run, logger); err != nil {
			return err
		}
	}

	w := stdout
	if *c.output != "" {
		f, err := os.Create(*c.output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	return report.Write(w, run, report.Format(*c.format), report.Options{Verbose: *c.verbose})
}

func (c *experimentCommand) save(ctx context.Context, run *models.Run, logger *slog.Logger) error {
	cfg := storage.DefaultConfig()
	cfg.Backend = *c.store
	cfg.SQLitePath = *c.sqlitePath
	cfg.ArchiveDir = *c.archiveDir
	cfg.ClickHouseAddr = *c.clickhouseAddr
	cfg.MaxRuns = 0
	cfg.Logger = logger

	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}
	defer store.Close()

	if err := store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Run %s saved to %s\n", run.ID, cfg.Backend)
	return nil
}
