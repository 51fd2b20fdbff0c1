// Package workload generates deterministic synthetic inputs for dataflow
// benchmarks. Every generator is a pure function of its parameters: the
// same arguments (seed included) always yield the same records in the same
// order.
package workload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// ErrInvalidArgument is returned when generator parameters cannot describe
// a workload.
var ErrInvalidArgument = errors.New("invalid argument")

// Kind identifies the shape of a workload.
type Kind string

const (
	KindSequence    Kind = "sequence"
	KindKeyedPairs  Kind = "keyed_pairs"
	KindGraph       Kind = "graph"
	KindDuplicates  Kind = "duplicates"
	KindRandom      Kind = "random"
	KindKeyedRandom Kind = "keyed_random"
	KindDelta       Kind = "delta"
)

// Record is a single input item. Sequence items carry (i, i), keyed pairs
// carry (key, value) and graph edges carry (source, destination).
type Record struct {
	Key   uint64 `json:"key"`
	Value uint64 `json:"value"`
}

// Update is a record with a multiplicity change: +1 inserts, -1 retracts.
type Update struct {
	Record
	Diff int64 `json:"diff"`
}

// Workload is an immutable, named set of updates.
type Workload struct {
	name    string
	kind    Kind
	updates []Update
}

func newWorkload(name string, kind Kind, records []Record) Workload {
	updates := make([]Update, len(records))
	for i, r := range records {
		updates[i] = Update{Record: r, Diff: 1}
	}

	return Workload{name: name, kind: kind, updates: updates}
}

// Name returns a stable identifier such as "chain/100".
func (w Workload) Name() string { return w.name }

// Kind returns the workload shape.
func (w Workload) Kind() Kind { return w.kind }

// Len returns the number of updates.
func (w Workload) Len() int { return len(w.updates) }

// Updates returns a copy of the workload's updates. Callers may mutate the
// returned slice freely.
func (w Workload) Updates() []Update { return slices.Clone(w.updates) }

// Records returns the records of all updates, ignoring multiplicities.
func (w Workload) Records() []Record {
	out := make([]Record, len(w.updates))
	for i, u := range w.updates {
		out[i] = u.Record
	}

	return out
}

// Edges interprets the records as graph edges.
func (w Workload) Edges() []Edge {
	out := make([]Edge, len(w.updates))
	for i, u := range w.updates {
		out[i] = Edge{Src: NodeID(u.Key), Dst: NodeID(u.Value)}
	}

	return out
}

// Config describes a workload by parameters. It is the serialized form
// used by suite files and the command line.
type Config struct {
	Kind        Kind     `yaml:"kind" json:"kind"`
	Count       int      `yaml:"count,omitempty" json:"count,omitempty"`
	NumKeys     int      `yaml:"num_keys,omitempty" json:"num_keys,omitempty"`
	Topology    Topology `yaml:"topology,omitempty" json:"topology,omitempty"`
	Nodes       int      `yaml:"nodes,omitempty" json:"nodes,omitempty"`
	Edges       int      `yaml:"edges,omitempty" json:"edges,omitempty"`
	Depth       int      `yaml:"depth,omitempty" json:"depth,omitempty"`
	Branching   int      `yaml:"branching,omitempty" json:"branching,omitempty"`
	Probability float64  `yaml:"probability,omitempty" json:"probability,omitempty"`
	Factor      int      `yaml:"factor,omitempty" json:"factor,omitempty"`
	Seed        int64    `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// New builds the workload described by cfg.
func New(cfg Config) (Workload, error) {
	switch cfg.Kind {
	case KindSequence:
		return Sequence(cfg.Count)
	case KindKeyedPairs:
		return KeyedPairs(cfg.Count, cfg.NumKeys)
	case KindDuplicates:
		return Duplicates(cfg.Count, cfg.Factor)
	case KindRandom:
		return RandomData(cfg.Count, cfg.Seed)
	case KindKeyedRandom:
		return KeyedRandom(cfg.Count, cfg.NumKeys, cfg.Seed)
	case KindGraph:
		return newGraph(cfg)
	default:
		return Workload{}, fmt.Errorf("%w: unknown workload kind %q",
			ErrInvalidArgument, cfg.Kind)
	}
}

func newGraph(cfg Config) (Workload, error) {
	switch cfg.Topology {
	case TopologyChain:
		return ChainGraph(cfg.Nodes)
	case TopologyComplete:
		return CompleteGraph(cfg.Nodes)
	case TopologyRandom:
		return RandomGraph(cfg.Nodes, cfg.Edges, cfg.Seed)
	case TopologyTree:
		return TreeGraph(cfg.Depth, cfg.Branching)
	case TopologyProbability:
		return ProbabilityGraph(cfg.Nodes, cfg.Probability, cfg.Seed)
	default:
		return Workload{}, fmt.Errorf("%w: unknown topology %q",
			ErrInvalidArgument, cfg.Topology)
	}
}

// Summary contains statistics about an exported workload.
type Summary struct {
	Records      int
	DistinctKeys int
}

// Write encodes the workload as JSONL, one update per line, for harness
// binaries that read their input from a file.
func Write(w io.Writer, wl Workload) (Summary, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	var summary Summary

	keys := make(map[uint64]struct{})

	for _, u := range wl.updates {
		if err := enc.Encode(u); err != nil {
			return summary, fmt.Errorf("encode update: %w", err)
		}

		keys[u.Key] = struct{}{}
		summary.Records++
	}

	summary.DistinctKeys = len(keys)

	return summary, nil
}
