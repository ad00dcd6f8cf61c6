package redist

import (
	"context"
	"fmt"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/mesh"
	"github.com/notargets/meshdist/numbering"
	"github.com/notargets/meshdist/partition"
	"github.com/notargets/meshdist/scatter"
)

// PartitionElements asks svc for a destination rank per local element and
// stores the validated assignment in g.Destinations. The adjacency is
// released once the partitioner has consumed it.
func PartitionElements(ctx context.Context, c comm.Communicator, g *mesh.GridData, svc partition.Service) error {
	logger := comm.Logger(c)
	adj := g.Adj
	if adj == nil {
		adj = mesh.NewAdjacency(make([][]int, g.LocalEle()))
	}
	if adj.NumRows() != g.LocalEle() {
		return fmt.Errorf("%w: adjacency has %d rows for %d local elements", ErrProtocol, adj.NumRows(), g.LocalEle())
	}
	graph := partition.Graph{NumGlobal: g.NEle, FirstRow: g.FirstEle, Adj: adj}
	dest, err := svc.Partition(ctx, c, graph)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPartitioner, svc.Name(), err)
	}
	if err = partition.Validate(dest, g.LocalEle(), c.Size()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPartitioner, svc.Name(), err)
	}
	g.Destinations = dest
	g.Adj = nil
	logger.Debug().Str("partitioner", svc.Name()).Ints("destinations", dest).Msg("elements partitioned")
	return comm.Barrier(ctx, c)
}

// MoveElements renumbers elements contiguously by destination rank and
// moves every element's vertex triple to its new owner. Elements staying on
// their rank go through the same exchange.
func MoveElements(ctx context.Context, c comm.Communicator, g *mesh.GridData) error {
	logger := comm.Logger(c)
	if len(g.Destinations) != g.LocalEle() {
		return fmt.Errorf("%w: %d destinations for %d local elements", ErrProtocol, len(g.Destinations), g.LocalEle())
	}
	p, err := numbering.FromPartition(ctx, c, g.Destinations)
	if err != nil {
		return err
	}
	total := 0
	for _, n := range p.Counts {
		total += n
	}
	if total != g.NEle {
		return invariantf("partition counts sum to %d, mesh has %d elements", total, g.NEle)
	}
	layout := p.Layout()
	moved, err := scatter.Push(ctx, c, layout, mesh.VertsPerElement, p.NewIDs, g.Elements)
	if err != nil {
		return indexInvariant("moving elements", err)
	}
	if len(moved) != p.Counts[c.Rank()]*mesh.VertsPerElement {
		return invariantf("received %d element references, expected %d elements", len(moved), p.Counts[c.Rank()])
	}
	g.Elements = moved
	g.FirstEle = layout.Starts[c.Rank()]
	g.Destinations = nil
	logger.Debug().Int("first", g.FirstEle).Int("count", g.LocalEle()).Ints("counts", p.Counts).Msg("elements moved")
	return comm.Barrier(ctx, c)
}
