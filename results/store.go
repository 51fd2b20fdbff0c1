package results

import (
	"errors"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSealed is returned when recording into a sealed store.
var ErrSealed = errors.New("store is sealed")

// Store is an append-only collection of samples from one run.
type Store struct {
	mu      sync.RWMutex
	runID   string
	label   string
	samples []Sample
	sealed  bool
	now     func() time.Time
}

// NewStore returns an empty store with a fresh run id.
func NewStore(label string) *Store {
	return newStore(uuid.NewString(), label)
}

func newStore(runID, label string) *Store {
	return &Store{runID: runID, label: label, now: time.Now}
}

// RunID identifies the run the store belongs to.
func (s *Store) RunID() string { return s.runID }

// Label is the optional prefix stripped from names during comparison.
func (s *Store) Label() string { return s.label }

// Record appends sample, stamping the run id and record time when unset.
func (s *Store) Record(sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return ErrSealed
	}

	if sample.RunID == "" {
		sample.RunID = s.runID
	}

	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = s.now().UTC()
	}

	if sample.Engine == "" {
		sample.Engine = EngineOf(sample.Name)
	}

	s.samples = append(s.samples, sample)

	return nil
}

// Seal makes the store read-only.
func (s *Store) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (s *Store) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sealed
}

// Len returns the number of samples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.samples)
}

// snapshot returns the samples recorded so far. Elements are never
// rewritten, so the returned slice stays valid without the lock.
func (s *Store) snapshot() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.samples[:len(s.samples):len(s.samples)]
}

// All returns a copy of every sample in record order.
func (s *Store) All() []Sample {
	snap := s.snapshot()

	out := make([]Sample, len(snap))
	copy(out, snap)

	return out
}

// ByPrefix yields the samples whose name starts with prefix, in record
// order. Each iteration sees the samples recorded before it began.
func (s *Store) ByPrefix(prefix string) iter.Seq[Sample] {
	return func(yield func(Sample) bool) {
		for _, sample := range s.snapshot() {
			if !strings.HasPrefix(sample.Name, prefix) {
				continue
			}

			if !yield(sample) {
				return
			}
		}
	}
}

// ByEngine returns the samples recorded for one engine.
func (s *Store) ByEngine(engine string) []Sample {
	var out []Sample

	for _, sample := range s.snapshot() {
		if sample.Engine == engine {
			out = append(out, sample)
		}
	}

	return out
}

// Engines returns the distinct engine labels in sorted order.
func (s *Store) Engines() []string {
	seen := make(map[string]struct{})

	for _, sample := range s.snapshot() {
		seen[sample.Engine] = struct{}{}
	}

	engines := make([]string, 0, len(seen))
	for e := range seen {
		engines = append(engines, e)
	}

	sort.Strings(engines)

	return engines
}
