package stream

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadTrimsLines(t *testing.T) {
	input := "  alpha\nbeta  \n\tgamma\t\nalpha\n\n"

	corpus, err := Load(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"alpha", "beta", "gamma", "alpha", ""}
	if len(corpus) != len(want) {
		t.Fatalf("Load() returned %d elements, want %d: %q", len(corpus), len(want), corpus)
	}
	for i := range want {
		if corpus[i] != want[i] {
			t.Errorf("element %d = %q, want %q", i, corpus[i], want[i])
		}
	}

	if got := corpus.Distinct(); got != 4 {
		t.Errorf("Distinct() = %d, want 4", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	corpus, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if corpus.Len() != 3 {
		t.Errorf("Len() = %d, want 3", corpus.Len())
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("LoadFile() on a missing file should fail")
	}
}

func TestLinesIsLazyAndStoppable(t *testing.T) {
	seq, errFn := Lines(strings.NewReader("1\n2\n3\n4\n"))

	var got []string
	for e := range seq {
		got = append(got, e)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("got %q, want [1 2]", got)
	}
	if err := errFn(); err != nil {
		t.Errorf("errFn() = %v", err)
	}
}

func TestLinesReportsOversizedLine(t *testing.T) {
	long := strings.Repeat("x", maxLineSize+1)
	_, err := Load(strings.NewReader(long))
	if err == nil {
		t.Fatal("Load() should fail on a line longer than the buffer")
	}
}

func TestCorpusAllReplays(t *testing.T) {
	c := Corpus{"x", "y"}
	for round := 0; round < 2; round++ {
		n := 0
		for range c.All() {
			n++
		}
		if n != 2 {
			t.Errorf("round %d yielded %d elements, want 2", round, n)
		}
	}
}
