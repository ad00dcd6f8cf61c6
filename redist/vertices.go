package redist

import (
	"context"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/mesh"
	"github.com/notargets/meshdist/numbering"
	"github.com/notargets/meshdist/scatter"
)

// tagOwnership carries the claimed vertex mask around the ring
const tagOwnership = 100

// Quota is the number of vertices each rank but the last may claim
func Quota(nVert, size int) int { return nVert / size }

// PartitionVertices gives every vertex exactly one owner. The claimed mask
// travels once around the ring 0..size-1: each rank but the last claims
// unclaimed vertices referenced by its elements, in element order, until it
// holds Quota of them, then forwards the mask. The last rank claims every
// vertex still unclaimed, in increasing id order. The claimed old ids land
// in g.Owned in claim order.
//
// The ring is serial: rank r cannot start before rank r-1 is done.
func PartitionVertices(ctx context.Context, c comm.Communicator, g *mesh.GridData) error {
	var (
		logger = comm.Logger(c)
		rank   = c.Rank()
		last   = c.Size() - 1
		quota  = Quota(g.NVert, c.Size())
		mask   *bitset.BitSet
		owned  []int
	)
	if rank == 0 {
		mask = bitset.New(uint(g.NVert))
	} else {
		buf, err := c.Recv(ctx, rank-1, tagOwnership)
		if err != nil {
			return fmt.Errorf("receiving claimed mask: %w", err)
		}
		mask = &bitset.BitSet{}
		if err = mask.UnmarshalBinary(buf); err != nil {
			return fmt.Errorf("%w: claimed mask: %w", ErrProtocol, err)
		}
		if mask.Len() != uint(g.NVert) {
			return fmt.Errorf("%w: claimed mask covers %d vertices, mesh has %d", ErrProtocol, mask.Len(), g.NVert)
		}
	}

	if rank != last {
		for _, v := range g.Elements {
			if len(owned) == quota {
				break
			}
			if v < 0 || v >= g.NVert {
				return invariantf("element references vertex %d outside [0,%d)", v, g.NVert)
			}
			if !mask.Test(uint(v)) {
				mask.Set(uint(v))
				owned = append(owned, v)
			}
		}
		buf, err := mask.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encoding claimed mask: %w", err)
		}
		if err = c.Send(ctx, rank+1, tagOwnership, buf); err != nil {
			return fmt.Errorf("forwarding claimed mask: %w", err)
		}
	} else {
		for v := 0; v < g.NVert; v++ {
			if !mask.Test(uint(v)) {
				owned = append(owned, v)
			}
		}
	}
	g.Owned = owned
	logger.Debug().Int("quota", quota).Int("claimed", len(owned)).Msg("vertices partitioned")
	return comm.Barrier(ctx, c)
}

// MoveVertices renumbers vertices so rank r's claimed vertices, in claim
// order, follow those of lower ranks. Element references are translated
// through the same numbering the coordinates are moved with.
func MoveVertices(ctx context.Context, c comm.Communicator, g *mesh.GridData) error {
	logger := comm.Logger(c)
	ord, err := numbering.NewOrdering(ctx, c, g.NVert, g.Owned)
	if err != nil {
		return indexInvariant("vertex numbering", err)
	}
	refs, err := ord.Translate(ctx, c, g.Elements)
	if err != nil {
		return indexInvariant("translating element references", err)
	}
	for i, v := range refs {
		if v < 0 || v >= g.NVert {
			return invariantf("element reference %d translated to %d", g.Elements[i], v)
		}
	}

	src, err := scatter.GatherLayout(ctx, c, g.LocalVert())
	if err != nil {
		return err
	}
	if src.Total() != g.NVert || src.Starts[c.Rank()] != g.FirstVert {
		return invariantf("vertex layout holds %d vertices from %d, mesh has %d from %d",
			src.Total(), src.Starts[c.Rank()], g.NVert, g.FirstVert)
	}
	coords, err := scatter.Pull(ctx, c, src, mesh.CoordsPerVertex, g.Vertices, g.Owned)
	if err != nil {
		return indexInvariant("moving vertices", err)
	}

	g.Elements = refs
	g.Vertices = coords
	g.FirstVert = ord.Start
	g.Owned = nil
	logger.Debug().Int("first", g.FirstVert).Int("count", g.LocalVert()).Msg("vertices moved")
	return comm.Barrier(ctx, c)
}

// Destroy releases every buffer held by g
func Destroy(g *mesh.GridData) {
	*g = mesh.GridData{}
}
