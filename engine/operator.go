package engine

import (
	"fmt"
	"sort"

	"github.com/weiihann/flowbench/workload"
)

// Operator is the computation a reference engine runs over its input.
// Step consumes a batch of input updates and returns the output updates
// the batch caused. Stateful operators keep their state between steps.
type Operator interface {
	Step(in []workload.Update) []workload.Update
}

// OperatorSpec names an operator and builds fresh instances of it.
type OperatorSpec struct {
	Name string
	New  func() Operator
	// Partitionable operators produce correct output when their input is
	// split by key across independent instances.
	Partitionable bool
}

// DefaultArithmeticOps is the number of chained map steps Arithmetic
// applies when built by name.
const DefaultArithmeticOps = 20

// ParseOperator returns the operator registered under name.
func ParseOperator(name string) (OperatorSpec, error) {
	switch name {
	case "", "identity":
		return OperatorSpec{Name: "identity", New: func() Operator { return Identity{} }, Partitionable: true}, nil
	case "arithmetic":
		return OperatorSpec{
			Name:          "arithmetic",
			New:           func() Operator { return Arithmetic{Ops: DefaultArithmeticOps} },
			Partitionable: true,
		}, nil
	case "count":
		return OperatorSpec{Name: "count", New: func() Operator { return NewCountByKey() }, Partitionable: true}, nil
	case "distinct":
		return OperatorSpec{Name: "distinct", New: func() Operator { return NewDistinct() }, Partitionable: true}, nil
	case "reachability":
		return OperatorSpec{Name: "reachability", New: func() Operator { return NewReachability(0) }}, nil
	default:
		return OperatorSpec{}, fmt.Errorf("unknown operator %q", name)
	}
}

// Identity passes its input through unchanged.
type Identity struct{}

func (Identity) Step(in []workload.Update) []workload.Update {
	out := make([]workload.Update, len(in))
	copy(out, in)

	return out
}

// Arithmetic applies Ops chained multiply-add steps to every value.
type Arithmetic struct {
	Ops int
}

func (a Arithmetic) Step(in []workload.Update) []workload.Update {
	out := make([]workload.Update, len(in))
	for i, u := range in {
		v := u.Value
		for j := 0; j < a.Ops; j++ {
			v = v*3 + 1
		}

		out[i] = workload.Update{Record: workload.Record{Key: u.Key, Value: v}, Diff: u.Diff}
	}

	return out
}

// CountByKey maintains the number of records per key and emits the
// changed (key, count) pairs as retraction/insertion diffs.
type CountByKey struct {
	counts map[uint64]int64
}

// NewCountByKey returns an empty counting operator.
func NewCountByKey() *CountByKey {
	return &CountByKey{counts: make(map[uint64]int64)}
}

func (c *CountByKey) Step(in []workload.Update) []workload.Update {
	deltas := make(map[uint64]int64)
	for _, u := range in {
		deltas[u.Key] += u.Diff
	}

	var out []workload.Update

	for _, key := range sortedKeys(deltas) {
		delta := deltas[key]
		if delta == 0 {
			continue
		}

		old := c.counts[key]
		now := old + delta

		if old > 0 {
			out = append(out, workload.Update{
				Record: workload.Record{Key: key, Value: uint64(old)},
				Diff:   -1,
			})
		}

		if now > 0 {
			out = append(out, workload.Update{
				Record: workload.Record{Key: key, Value: uint64(now)},
				Diff:   1,
			})
			c.counts[key] = now
		} else {
			delete(c.counts, key)
		}
	}

	return out
}

// Distinct emits a record when its multiplicity becomes positive and
// retracts it when the multiplicity drops back to zero.
type Distinct struct {
	mult map[workload.Record]int64
}

// NewDistinct returns an empty distinct operator.
func NewDistinct() *Distinct {
	return &Distinct{mult: make(map[workload.Record]int64)}
}

func (d *Distinct) Step(in []workload.Update) []workload.Update {
	var out []workload.Update

	for _, u := range in {
		old := d.mult[u.Record]
		now := old + u.Diff

		switch {
		case old <= 0 && now > 0:
			out = append(out, workload.Update{Record: u.Record, Diff: 1})
		case old > 0 && now <= 0:
			out = append(out, workload.Update{Record: u.Record, Diff: -1})
		}

		if now == 0 {
			delete(d.mult, u.Record)
		} else {
			d.mult[u.Record] = now
		}
	}

	return out
}

// Reachability treats records as edges and maintains the set of nodes
// reachable from Root. Output records are (node, node); the root itself is
// not reported.
type Reachability struct {
	Root    uint64
	edges   map[workload.Record]int64
	adj     map[uint64][]uint64
	reached map[uint64]bool
}

// NewReachability returns a reachability operator rooted at root.
func NewReachability(root uint64) *Reachability {
	return &Reachability{
		Root:    root,
		edges:   make(map[workload.Record]int64),
		adj:     make(map[uint64][]uint64),
		reached: map[uint64]bool{root: true},
	}
}

func (r *Reachability) Step(in []workload.Update) []workload.Update {
	retracted := false

	var frontier []uint64

	for _, u := range in {
		old := r.edges[u.Record]
		now := old + u.Diff

		if now > 0 {
			r.edges[u.Record] = now
		} else {
			delete(r.edges, u.Record)
		}

		switch {
		case old <= 0 && now > 0:
			r.adj[u.Key] = append(r.adj[u.Key], u.Value)
			if r.reached[u.Key] {
				frontier = append(frontier, u.Key)
			}
		case old > 0 && now <= 0:
			retracted = true
		}
	}

	if retracted {
		return r.recompute()
	}

	var out []workload.Update

	for len(frontier) > 0 {
		node := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		for _, next := range r.adj[node] {
			if r.reached[next] {
				continue
			}

			r.reached[next] = true
			frontier = append(frontier, next)
			out = append(out, reachedUpdate(next, 1))
		}
	}

	return out
}

func (r *Reachability) recompute() []workload.Update {
	r.adj = make(map[uint64][]uint64)
	for e := range r.edges {
		r.adj[e.Key] = append(r.adj[e.Key], e.Value)
	}

	reached := map[uint64]bool{r.Root: true}
	stack := []uint64{r.Root}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, next := range r.adj[node] {
			if !reached[next] {
				reached[next] = true
				stack = append(stack, next)
			}
		}
	}

	var out []workload.Update

	for node := range r.reached {
		if !reached[node] {
			out = append(out, reachedUpdate(node, -1))
		}
	}

	for node := range reached {
		if !r.reached[node] {
			out = append(out, reachedUpdate(node, 1))
		}
	}

	r.reached = reached

	return out
}

func reachedUpdate(node uint64, diff int64) workload.Update {
	return workload.Update{Record: workload.Record{Key: node, Value: node}, Diff: diff}
}

func sortedKeys(m map[uint64]int64) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return keys
}
