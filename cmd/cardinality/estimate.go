package main

import (
	"fmt"
	"io"

	"github.com/alecthomas/kingpin/v2"

	"github.com/fidde/cardinality_estimator/internal/experiment"
	"github.com/fidde/cardinality_estimator/pkg/hashing"
	"github.com/fidde/cardinality_estimator/pkg/stream"
)

// estimateCommand runs a single estimator over a dataset file.
type estimateCommand struct {
	cmd       *kingpin.CmdClause
	algorithm experiment.Algorithm
	dataset   *string
	parameter *int
	seed      *uint64
	hash      *string
}

func registerEstimate(app *kingpin.Application, name, help, paramName string, short rune, paramHelp string) *estimateCommand {
	c := &estimateCommand{algorithm: experiment.Algorithm(name)}
	c.cmd = app.Command(name, help)
	c.dataset = c.cmd.Arg("dataset", "File with one element per line.").Required().String()
	c.parameter = c.cmd.Flag(paramName, paramHelp).Short(short).Default("16").Int()
	c.seed = c.cmd.Flag("seed", "Hash seed, 0 picks a random one.").Default("0").Uint64()
	c.hash = c.cmd.Flag("hash", "Hash family.").Default(string(hashing.KindMurmur3)).Enum(string(hashing.KindMurmur3), string(hashing.KindXXHash))
	return c
}

func (c *estimateCommand) run(w io.Writer) error {
	corpus, err := stream.LoadFile(*c.dataset)
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}

	family, err := hashing.New(hashing.Kind(*c.hash), 1, hashing.NewSeeder(*c.seed).Next())
	if err != nil {
		return err
	}

	estimate, err := c.algorithm.Estimate(corpus.All(), *c.parameter, family)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Estimated cardinality: %v\n", estimate)
	return nil
}
