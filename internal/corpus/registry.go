// Package corpus keeps named in-memory element streams that experiments can
// run against. Corpora are filled over the API or by the OTLP receivers.
package corpus

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fidde/cardinality_estimator/pkg/stream"
)

var (
	ErrNotFound    = errors.New("corpus not found")
	ErrInvalidName = errors.New("invalid corpus name")
)

// Info describes a corpus without its elements.
type Info struct {
	Name     string    `json:"name"`
	Elements int       `json:"elements"`
	Distinct int       `json:"distinct"`
	Dropped  int64     `json:"dropped"`
	Updated  time.Time `json:"updated"`
}

type entry struct {
	elements []string
	distinct map[string]struct{}
	dropped  int64
	updated  time.Time
}

// Registry is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	corpora     map[string]*entry
	maxElements int
}

// NewRegistry returns an empty registry. maxElements caps each corpus; once
// full, further elements are counted as dropped. Zero means unbounded.
func NewRegistry(maxElements int) *Registry {
	return &Registry{
		corpora:     make(map[string]*entry),
		maxElements: maxElements,
	}
}

// Append adds elements to the named corpus, creating it if needed, and
// returns how many were accepted.
func (r *Registry) Append(name string, elements ...string) (int, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.corpora[name]
	if !ok {
		e = &entry{distinct: make(map[string]struct{})}
		r.corpora[name] = e
	}
	return r.appendLocked(e, elements), nil
}

// appendLocked adds elements to e up to the cap. r.mu must be held.
func (r *Registry) appendLocked(e *entry, elements []string) int {
	accepted := len(elements)
	if r.maxElements > 0 {
		room := r.maxElements - len(e.elements)
		if room < 0 {
			room = 0
		}
		if accepted > room {
			e.dropped += int64(accepted - room)
			accepted = room
		}
	}

	for _, el := range elements[:accepted] {
		e.elements = append(e.elements, el)
		e.distinct[el] = struct{}{}
	}
	e.updated = time.Now()

	return accepted
}

// Replace sets the named corpus to elements, truncated to the cap.
func (r *Registry) Replace(name string, elements []string) (int, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}

	e := &entry{distinct: make(map[string]struct{})}

	r.mu.Lock()
	defer r.mu.Unlock()

	accepted := r.appendLocked(e, elements)
	r.corpora[name] = e
	return accepted, nil
}

// Get returns a snapshot of the named corpus. Later appends do not affect it.
func (r *Registry) Get(name string) (stream.Corpus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.corpora[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	snapshot := make(stream.Corpus, len(e.elements))
	copy(snapshot, e.elements)
	return snapshot, nil
}

// Info returns the description of the named corpus.
func (r *Registry) Info(name string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.corpora[name]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e.info(name), nil
}

// List returns all corpora sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.corpora))
	for name, e := range r.corpora {
		infos = append(infos, e.info(name))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Delete removes the named corpus.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.corpora[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.corpora, name)
	return nil
}

// Clear removes every corpus.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.corpora = make(map[string]*entry)
	r.mu.Unlock()
}

func (e *entry) info(name string) Info {
	return Info{
		Name:     name,
		Elements: len(e.elements),
		Distinct: len(e.distinct),
		Dropped:  e.dropped,
		Updated:  e.updated,
	}
}

func validateName(name string) error {
	if name == "" || len(name) > 256 {
		return ErrInvalidName
	}
	for _, c := range name {
		if c == '/' || c < ' ' {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}
