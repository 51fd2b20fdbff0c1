package workload

import (
	"fmt"
	mrand "math/rand"
)

// NodeID identifies a graph node.
type NodeID uint32

// Edge is a directed edge between two nodes.
type Edge struct {
	Src NodeID
	Dst NodeID
}

// Topology selects a graph generator.
type Topology string

const (
	TopologyChain       Topology = "chain"
	TopologyRandom      Topology = "random"
	TopologyComplete    Topology = "complete"
	TopologyTree        Topology = "tree"
	TopologyProbability Topology = "probability"
)

func edgeRecords(edges []Edge) []Record {
	records := make([]Record, len(edges))
	for i, e := range edges {
		records[i] = Record{Key: uint64(e.Src), Value: uint64(e.Dst)}
	}

	return records
}

// ChainGraph returns the n-1 edges (i, i+1) of a path over n nodes.
func ChainGraph(n int) (Workload, error) {
	if n < 1 {
		return Workload{}, fmt.Errorf("%w: chain needs at least one node, got %d",
			ErrInvalidArgument, n)
	}

	edges := make([]Edge, n-1)
	for i := range edges {
		edges[i] = Edge{Src: NodeID(i), Dst: NodeID(i + 1)}
	}

	return newWorkload(fmt.Sprintf("chain/%d", n), KindGraph, edgeRecords(edges)), nil
}

// CompleteGraph returns every ordered pair (i, j) with i != j, n*(n-1)
// edges in total.
func CompleteGraph(n int) (Workload, error) {
	if n < 0 {
		return Workload{}, fmt.Errorf("%w: negative node count %d",
			ErrInvalidArgument, n)
	}

	edges := make([]Edge, 0, max(n*(n-1), 0))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				edges = append(edges, Edge{Src: NodeID(i), Dst: NodeID(j)})
			}
		}
	}

	return newWorkload(fmt.Sprintf("complete/%d", n), KindGraph, edgeRecords(edges)), nil
}

// RandomGraph draws edgeCount edges with endpoints uniform in [0, n).
// Duplicate edges and self-loops are kept.
func RandomGraph(n, edgeCount int, seed int64) (Workload, error) {
	if n < 0 || edgeCount < 0 {
		return Workload{}, fmt.Errorf(
			"%w: random graph needs non-negative nodes and edges, got %d, %d",
			ErrInvalidArgument, n, edgeCount,
		)
	}

	if n == 0 && edgeCount > 0 {
		return Workload{}, fmt.Errorf("%w: cannot draw %d edges from zero nodes",
			ErrInvalidArgument, edgeCount)
	}

	rng := mrand.New(mrand.NewSource(seed))

	edges := make([]Edge, edgeCount)
	for i := range edges {
		src := NodeID(rng.Intn(n))
		dst := NodeID(rng.Intn(n))
		edges[i] = Edge{Src: src, Dst: dst}
	}

	return newWorkload(
		fmt.Sprintf("random_graph/%dx%d/seed=%d", n, edgeCount, seed),
		KindGraph, edgeRecords(edges),
	), nil
}

// TreeGraph builds a complete tree of the given depth rooted at node 0.
// Node ids are assigned depth-first, so every child id is greater than its
// parent's.
func TreeGraph(depth, branching int) (Workload, error) {
	if depth < 0 || branching < 1 {
		return Workload{}, fmt.Errorf(
			"%w: tree needs depth >= 0 and branching >= 1, got %d, %d",
			ErrInvalidArgument, depth, branching,
		)
	}

	edges := make([]Edge, 0, TreeEdgeCount(depth, branching))

	var next NodeID

	var grow func(parent NodeID, remaining int)
	grow = func(parent NodeID, remaining int) {
		if remaining == 0 {
			return
		}

		for i := 0; i < branching; i++ {
			next++
			child := next
			edges = append(edges, Edge{Src: parent, Dst: child})
			grow(child, remaining-1)
		}
	}

	grow(0, depth)

	return newWorkload(
		fmt.Sprintf("tree/%dx%d", depth, branching),
		KindGraph, edgeRecords(edges),
	), nil
}

// TreeEdgeCount returns the number of edges TreeGraph produces:
// (b^(d+1) - b) / (b - 1) for b > 1 and d for b = 1.
func TreeEdgeCount(depth, branching int) int {
	if depth <= 0 || branching < 1 {
		return 0
	}

	if branching == 1 {
		return depth
	}

	total, level := 0, 1
	for i := 0; i < depth; i++ {
		level *= branching
		total += level
	}

	return total
}

// ProbabilityGraph keeps each ordered pair (i, j), i != j, with
// probability p.
func ProbabilityGraph(n int, p float64, seed int64) (Workload, error) {
	if n < 0 || p < 0 || p > 1 {
		return Workload{}, fmt.Errorf(
			"%w: probability graph needs n >= 0 and p in [0, 1], got %d, %g",
			ErrInvalidArgument, n, p,
		)
	}

	rng := mrand.New(mrand.NewSource(seed))

	var edges []Edge

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && rng.Float64() < p {
				edges = append(edges, Edge{Src: NodeID(i), Dst: NodeID(j)})
			}
		}
	}

	return newWorkload(
		fmt.Sprintf("probability_graph/%d/p=%g/seed=%d", n, p, seed),
		KindGraph, edgeRecords(edges),
	), nil
}
