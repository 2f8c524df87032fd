package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/fidde/cardinality_estimator/internal/synth"
)

// generateCommand writes a Zipfian synthetic stream.
type generateCommand struct {
	cmd       *kingpin.CmdClause
	distinct  *int
	elements  *int
	skew      *float64
	outputDir *string
	seed      *uint64
}

func registerGenerate(app *kingpin.Application) *generateCommand {
	c := &generateCommand{}
	c.cmd = app.Command("generate", "Generate a Zipfian stream of integer labels.")
	c.distinct = c.cmd.Arg("distinct", "Number of distinct labels n.").Required().Int()
	c.elements = c.cmd.Arg("elements", "Stream length N.").Required().Int()
	c.skew = c.cmd.Arg("skewness", "Zipf exponent s.").Required().Float64()
	c.outputDir = c.cmd.Flag("output-dir", "Directory for the generated file.").Default(".").String()
	c.seed = c.cmd.Flag("seed", "Generator seed, 0 picks a random one.").Default("0").Uint64()
	return c
}

func (c *generateCommand) run(w io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path, err := synth.WriteFile(ctx, *c.outputDir, synth.Config{
		Distinct: *c.distinct,
		Elements: *c.elements,
		Skew:     *c.skew,
		Seed:     *c.seed,
	}, time.Now())
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Stream saved to %s\n", path)
	return nil
}
