// Package stream provides the element streams consumed by the estimators.
//
// A dataset is a text source with one element per line; every line is trimmed
// of surrounding whitespace. Estimators accept an iter.Seq[string] and read it
// exactly once, front to back.
package stream

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
)

// maxLineSize bounds a single element. Longer lines fail the scan.
const maxLineSize = 1024 * 1024

// Corpus is a fully materialized dataset. It can be replayed any number of
// times, which the experiment runner needs for repeated trials.
type Corpus []string

// All returns a single-pass sequence over the corpus.
func (c Corpus) All() iter.Seq[string] {
	return FromSlice(c)
}

// Len returns the number of elements, duplicates included.
func (c Corpus) Len() int {
	return len(c)
}

// Distinct returns the exact number of distinct elements.
// It uses memory linear in the result and is meant for reporting only.
func (c Corpus) Distinct() int {
	seen := make(map[string]struct{}, len(c)/2)
	for _, e := range c {
		seen[e] = struct{}{}
	}
	return len(seen)
}

// FromSlice adapts a slice to a stream.
func FromSlice(elements []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, e := range elements {
			if !yield(e) {
				return
			}
		}
	}
}

// Load reads every line of r into a corpus.
func Load(r io.Reader) (Corpus, error) {
	seq, errFn := Lines(r)

	var corpus Corpus
	for e := range seq {
		corpus = append(corpus, e)
	}
	if err := errFn(); err != nil {
		return nil, err
	}
	return corpus, nil
}

// LoadFile reads a dataset file into a corpus.
func LoadFile(path string) (Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	corpus, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}
	return corpus, nil
}

// Lines returns a lazy stream over the trimmed lines of r together with a
// function reporting the scan error, if any, once the stream is exhausted.
// The stream can only be consumed once.
func Lines(r io.Reader) (iter.Seq[string], func() error) {
	var scanErr error
	seq := func(yield func(string) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			if !yield(strings.TrimSpace(scanner.Text())) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr = fmt.Errorf("scanning lines: %w", err)
		}
	}
	return seq, func() error { return scanErr }
}
