// Package report renders experiment runs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/fidde/cardinality_estimator/pkg/models"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. An empty name selects text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q (supported: text, json, yaml)", s)
	}
}

// ContentType returns the HTTP content type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Options tune the text format.
type Options struct {
	// Verbose adds spread, error and memory columns to every point
	Verbose bool
}

// Write renders run to w.
func Write(w io.Writer, run *models.Run, format Format, opts Options) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return fmt.Errorf("encoding JSON report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(run); err != nil {
			return fmt.Errorf("encoding YAML report: %w", err)
		}
		return enc.Close()
	case FormatText, "":
		return writeText(w, run, opts)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

var titles = map[string]string{
	models.AlgorithmHyperLogLog:   "HyperLogLog",
	models.AlgorithmRecordinality: "Recordinality",
}

// writeText renders the layout of the original experiment script:
//
//	Dataset: words.txt, simulations: 100
//	Estimate for HyperLogLog.
//	k = 16, estimate = 1234.56
func writeText(w io.Writer, run *models.Run, opts Options) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Dataset: %s, simulations: %d\n", run.Dataset, run.Simulations)
	if opts.Verbose {
		fmt.Fprintf(&b, "Elements: %d, distinct: %d, hash: %s, seed: %d\n",
			run.Elements, run.Distinct, run.Hash, run.Seed)
	}

	for _, algorithm := range run.Algorithms() {
		title, ok := titles[algorithm]
		if !ok {
			title = algorithm
		}
		fmt.Fprintf(&b, "Estimate for %s.\n", title)

		for _, p := range run.PointsFor(algorithm) {
			fmt.Fprintf(&b, "k = %d, estimate = %.2f", p.Registers, p.Mean)
			if opts.Verbose {
				fmt.Fprintf(&b, ", stddev = %.2f, error = %.2f%%, expected = %.2f%%, memory = %s",
					p.StdDev, p.RelativeError*100, p.StandardError*100,
					humanize.Bytes(uint64(p.MemoryBytes)))
			}
			b.WriteByte('\n')
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
