package mesh

import (
	"context"
	"fmt"

	"github.com/notargets/meshdist/comm"
)

const (
	tagVertices = iota + 1
	tagElements
	tagRowPtr
	tagNeighbors
)

// Split1D splits [0,n) into size contiguous chunks and returns chunk rank.
// Chunks differ in length by at most one, the remainder going to the first
// chunks.
func Split1D(n, size, rank int) (lo, hi int) {
	var (
		npart     = n / size
		remainder = n % size
		startAdd  int
		endAdd    int
	)
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if rank+1 > remainder {
			startAdd = remainder
		} else {
			startAdd = rank
			endAdd = 1
		}
	}
	lo = rank*npart + startAdd
	hi = lo + npart + endAdd
	return
}

// Local cuts rank's contiguous share out of a whole mesh without any
// communication
func Local(m *Mesh, size, rank int) *GridData {
	vlo, vhi := Split1D(m.NVert, size, rank)
	elo, ehi := Split1D(m.NEle, size, rank)
	g := &GridData{
		NVert:     m.NVert,
		NEle:      m.NEle,
		FirstVert: vlo,
		Vertices:  append([]float64(nil), m.Coords[vlo*CoordsPerVertex:vhi*CoordsPerVertex]...),
		FirstEle:  elo,
		Elements:  append([]int(nil), m.Elements[elo*VertsPerElement:ehi*VertsPerElement]...),
	}
	if m.Adj != nil {
		g.Adj = m.Adj.Slice(elo, ehi)
	}
	return g
}

// Distribute hands every rank its contiguous share of the mesh held by root.
// Only root reads m; it must carry an adjacency. Vertex and element counts
// are broadcast, then root sends each rank its coordinates, element triples
// and CSR rows.
func Distribute(ctx context.Context, c comm.Communicator, root int, m *Mesh) (*GridData, error) {
	var counts []int
	if c.Rank() == root {
		if m == nil || m.Adj == nil {
			return nil, fmt.Errorf("distribute: root has no mesh with adjacency")
		}
		counts = []int{m.NVert, m.NEle}
	}
	counts, err := comm.BcastSlice(ctx, c, root, counts)
	if err != nil {
		return nil, fmt.Errorf("distribute counts: %w", err)
	}
	if len(counts) != 2 {
		return nil, fmt.Errorf("%w: distribute counts has %d values", comm.ErrProtocol, len(counts))
	}
	if c.Rank() == root {
		for peer := 0; peer < c.Size(); peer++ {
			if peer == root {
				continue
			}
			if err := sendShare(ctx, c, peer, Local(m, c.Size(), peer)); err != nil {
				return nil, fmt.Errorf("distribute to rank %d: %w", peer, err)
			}
		}
		return Local(m, c.Size(), root), nil
	}
	return recvShare(ctx, c, root, counts[0], counts[1])
}

func sendShare(ctx context.Context, c comm.Communicator, peer int, g *GridData) error {
	if err := c.Send(ctx, peer, tagVertices, comm.EncodeFloats(g.Vertices)); err != nil {
		return err
	}
	if err := c.Send(ctx, peer, tagElements, comm.EncodeInts(g.Elements)); err != nil {
		return err
	}
	if err := c.Send(ctx, peer, tagRowPtr, comm.EncodeInts(g.Adj.RowPtr)); err != nil {
		return err
	}
	return c.Send(ctx, peer, tagNeighbors, comm.EncodeInts(g.Adj.Neighbors))
}

func recvShare(ctx context.Context, c comm.Communicator, root, nVert, nEle int) (*GridData, error) {
	var (
		vlo, vhi = Split1D(nVert, c.Size(), c.Rank())
		elo, ehi = Split1D(nEle, c.Size(), c.Rank())
		g        = &GridData{NVert: nVert, NEle: nEle, FirstVert: vlo, FirstEle: elo, Adj: &Adjacency{}}
	)
	buf, err := c.Recv(ctx, root, tagVertices)
	if err != nil {
		return nil, err
	}
	if g.Vertices, err = comm.DecodeFloats(buf); err != nil {
		return nil, err
	}
	if len(g.Vertices) != (vhi-vlo)*CoordsPerVertex {
		return nil, fmt.Errorf("%w: received %d coordinates for %d vertices",
			comm.ErrProtocol, len(g.Vertices), vhi-vlo)
	}

	if buf, err = c.Recv(ctx, root, tagElements); err != nil {
		return nil, err
	}
	if g.Elements, err = comm.DecodeInts(buf); err != nil {
		return nil, err
	}
	if len(g.Elements) != (ehi-elo)*VertsPerElement {
		return nil, fmt.Errorf("%w: received %d element references for %d elements",
			comm.ErrProtocol, len(g.Elements), ehi-elo)
	}

	if buf, err = c.Recv(ctx, root, tagRowPtr); err != nil {
		return nil, err
	}
	if g.Adj.RowPtr, err = comm.DecodeInts(buf); err != nil {
		return nil, err
	}
	if len(g.Adj.RowPtr) != ehi-elo+1 {
		return nil, fmt.Errorf("%w: received %d row pointers for %d elements",
			comm.ErrProtocol, len(g.Adj.RowPtr), ehi-elo)
	}
	if buf, err = c.Recv(ctx, root, tagNeighbors); err != nil {
		return nil, err
	}
	if g.Adj.Neighbors, err = comm.DecodeInts(buf); err != nil {
		return nil, err
	}
	if want := g.Adj.RowPtr[ehi-elo]; len(g.Adj.Neighbors) != want {
		return nil, fmt.Errorf("%w: row pointer ends at %d but received %d neighbours",
			comm.ErrProtocol, want, len(g.Adj.Neighbors))
	}
	return g, nil
}
