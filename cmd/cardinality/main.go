// Command cardinality estimates the number of distinct elements in a stream
// with HyperLogLog or Recordinality, runs accuracy experiments, generates
// Zipfian test streams and serves the REST API with OTLP ingestion.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/fidde/cardinality_estimator/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args, executes the selected command and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	app := kingpin.New("cardinality", "Cardinality estimation with HyperLogLog and Recordinality.")
	app.HelpFlag.Short('h')
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	logLevel := app.Flag("log-level", "Log level (debug, info, warn, error).").Default("warn").Enum("debug", "info", "warn", "error")

	hll := registerEstimate(app, "hll", "Estimate cardinality with HyperLogLog.", "pow", 'b', "Precision p, using 2^p registers.")
	rec := registerEstimate(app, "rec", "Estimate cardinality with Recordinality.", "records", 'k', "Number of records k to keep.")
	exp := registerExperiment(app)
	gen := registerGenerate(app)
	srv := registerServe(app)

	selected, err := app.Parse(args)
	if err != nil {
		return exitWithErr(stderr, err)
	}

	logger := config.LogConfig{Level: *logLevel, Format: "text"}.NewLogger()
	slog.SetDefault(logger)

	switch selected {
	case hll.cmd.FullCommand():
		err = hll.run(stdout)
	case rec.cmd.FullCommand():
		err = rec.run(stdout)
	case exp.cmd.FullCommand():
		err = exp.run(stdout, logger)
	case gen.cmd.FullCommand():
		err = gen.run(stdout)
	case srv.cmd.FullCommand():
		err = srv.run()
	}
	if err != nil {
		return exitWithErr(stderr, err)
	}
	return 0
}

func exitWithErr(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
