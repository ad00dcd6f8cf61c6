package partition

import (
	"context"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/mesh"
)

// Stats describes the quality of a partition
type Stats struct {
	NumParts  int
	Elements  []int // elements per part
	CutEdges  int   // graph edges joining different parts, each counted once
	Imbalance float64
	Neighbors []int // number of distinct adjacent parts, per part
	// Interfaces counts cut edges per part pair, smaller part first
	Interfaces map[[2]int]int
}

// Analyze gathers the graph and assignment on root and computes their
// statistics. Other ranks get nil.
func Analyze(ctx context.Context, c comm.Communicator, g Graph, dest []int) (*Stats, error) {
	adj, _, err := GatherGraph(ctx, c, comm.Root, g)
	if err != nil {
		return nil, err
	}
	parts, err := comm.GatherSlices(ctx, c, comm.Root, dest)
	if err != nil || c.Rank() != comm.Root {
		return nil, err
	}
	var part []int
	for _, p := range parts {
		part = append(part, p...)
	}
	if err := Validate(part, adj.NumRows(), c.Size()); err != nil {
		return nil, err
	}
	return ComputeStats(adj, part, c.Size()), nil
}

// ComputeStats computes partition statistics of a whole graph
func ComputeStats(adj *mesh.Adjacency, part []int, nparts int) *Stats {
	s := &Stats{
		NumParts:   nparts,
		Elements:   make([]int, nparts),
		Neighbors:  make([]int, nparts),
		Interfaces: make(map[[2]int]int),
	}
	neighbors := make([]map[int]bool, nparts)
	for p := range neighbors {
		neighbors[p] = make(map[int]bool)
	}
	for elem, p := range part {
		s.Elements[p]++
		for _, nb := range adj.Row(elem) {
			q := part[nb]
			if q == p {
				continue
			}
			neighbors[p][q] = true
			if nb > elem { // Count each edge once
				s.CutEdges++
				lo, hi := p, q
				if lo > hi {
					lo, hi = hi, lo
				}
				s.Interfaces[[2]int{lo, hi}]++
			}
		}
	}
	for p := range neighbors {
		s.Neighbors[p] = len(neighbors[p])
	}

	load := make([]float64, nparts)
	for p, n := range s.Elements {
		load[p] = float64(n)
	}
	if avg := floats.Sum(load) / float64(nparts); avg > 0 {
		s.Imbalance = floats.Max(load)/avg - 1
	}
	return s
}

// Log reports the statistics the way the partitioner always has: a summary
// then one line per part
func (s *Stats) Log(logger zerolog.Logger) {
	load := make([]float64, len(s.Elements))
	for p, n := range s.Elements {
		load[p] = float64(n)
	}
	var lo, hi float64
	if len(load) > 0 {
		lo, hi = floats.Min(load), floats.Max(load)
	}
	logger.Info().Int("cut_edges", s.CutEdges).
		Float64("imbalance_pct", s.Imbalance*100).
		Float64("min_load", lo).Float64("max_load", hi).
		Msg("partition analysis")
	for p := range s.Elements {
		logger.Debug().Int("part", p).Int("elements", s.Elements[p]).
			Int("neighbors", s.Neighbors[p]).Msg("partition")
	}
	for pair, n := range s.Interfaces {
		logger.Debug().Ints("parts", pair[:]).Int("faces", n).Msg("interface")
	}
}
