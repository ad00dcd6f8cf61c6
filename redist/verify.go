package redist

import (
	"context"
	"fmt"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/mesh"
)

// Snapshot is the whole redistributed mesh collected on root, with the
// rank owning each element and vertex
type Snapshot struct {
	Mesh     *mesh.Mesh // no adjacency
	EleRank  []int
	VertRank []int
}

// Gather collects every rank's elements and vertices on root, in global id
// order. It requires contiguous ownership in rank order, which holds after
// every phase. Other ranks get nil.
func Gather(ctx context.Context, c comm.Communicator, g *mesh.GridData) (*Snapshot, error) {
	elems, err := comm.GatherSlices(ctx, c, comm.Root, append([]int{g.FirstEle}, g.Elements...))
	if err != nil {
		return nil, err
	}
	verts, err := comm.GatherSlices(ctx, c, comm.Root, g.Vertices)
	if err != nil {
		return nil, err
	}
	firsts, err := comm.GatherSlices(ctx, c, comm.Root, []int{g.FirstVert})
	if err != nil || c.Rank() != comm.Root {
		return nil, err
	}

	s := &Snapshot{Mesh: &mesh.Mesh{NVert: g.NVert, NEle: g.NEle, Title: "redistributed"}}
	for r := range elems {
		if len(elems[r]) == 0 || elems[r][0] != len(s.Mesh.Elements)/mesh.VertsPerElement {
			return nil, invariantf("rank %d elements do not continue the global numbering", r)
		}
		if firsts[r][0] != len(s.Mesh.Coords)/mesh.CoordsPerVertex {
			return nil, invariantf("rank %d vertices do not continue the global numbering", r)
		}
		s.Mesh.Elements = append(s.Mesh.Elements, elems[r][1:]...)
		s.Mesh.Coords = append(s.Mesh.Coords, verts[r]...)
		for i := 0; i < (len(elems[r])-1)/mesh.VertsPerElement; i++ {
			s.EleRank = append(s.EleRank, r)
		}
		for i := 0; i < len(verts[r])/mesh.CoordsPerVertex; i++ {
			s.VertRank = append(s.VertRank, r)
		}
	}
	if err := s.Mesh.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	return s, nil
}

// Verify checks, collectively, that the distributed mesh conserves the
// element and vertex counts, that ownership is contiguous in rank order and
// that every reference is a valid vertex id. When orig is given on root it
// also checks the mesh describes the same triangles as orig: vertex
// coordinates and element coordinate triples must match orig's as
// multisets. Every rank returns an error when any check fails.
func Verify(ctx context.Context, c comm.Communicator, g *mesh.GridData, orig *mesh.Mesh) error {
	badRefs := 0
	for _, v := range g.Elements {
		if v < 0 || v >= g.NVert {
			badRefs++
		}
	}
	sums, err := comm.AllReduceSumInts(ctx, c, []int{g.LocalEle(), g.LocalVert(), badRefs})
	if err != nil {
		return err
	}
	if sums[0] != g.NEle {
		return invariantf("ranks hold %d elements, mesh has %d", sums[0], g.NEle)
	}
	if sums[1] != g.NVert {
		return invariantf("ranks hold %d vertices, mesh has %d", sums[1], g.NVert)
	}
	if sums[2] != 0 {
		return invariantf("%d element references outside [0,%d)", sums[2], g.NVert)
	}

	// root decides; the verdict is broadcast even when root's gather failed
	snap, verdict := Gather(ctx, c, g)
	if verdict != nil && c.Rank() != comm.Root {
		return verdict
	}
	if verdict == nil && c.Rank() == comm.Root && orig != nil {
		verdict = sameMesh(orig, snap.Mesh)
	}
	ok := 1
	if verdict != nil {
		ok = 0
	}
	flag, err := comm.BcastSlice(ctx, c, comm.Root, []int{ok})
	if verdict != nil {
		return verdict
	}
	if err != nil {
		return err
	}
	if len(flag) != 1 || flag[0] != 1 {
		return invariantf("verification failed on rank %d", comm.Root)
	}
	return nil
}

// sameMesh checks that got is orig with its vertices and elements
// renumbered. Vertices are matched by coordinates, so coincident vertices
// (a slit) are interchangeable.
func sameMesh(orig, got *mesh.Mesh) error {
	if orig.NVert != got.NVert || orig.NEle != got.NEle {
		return invariantf("mesh sizes changed from %d/%d to %d/%d", orig.NVert, orig.NEle, got.NVert, got.NEle)
	}
	points := make(map[[2]float64]int, orig.NVert)
	for v := 0; v < orig.NVert; v++ {
		points[orig.Vertex(v)]++
	}
	for v := 0; v < got.NVert; v++ {
		p := got.Vertex(v)
		if points[p] == 0 {
			return invariantf("vertex %d at %v is not in the original mesh", v, p)
		}
		points[p]--
	}
	triangles := make(map[[6]float64]int, orig.NEle)
	for k := 0; k < orig.NEle; k++ {
		triangles[corners(orig, k)]++
	}
	for k := 0; k < got.NEle; k++ {
		key := corners(got, k)
		if triangles[key] == 0 {
			return invariantf("element %d with corners %v is not an original element", k, key)
		}
		triangles[key]--
	}
	return nil
}

// corners returns the coordinates of element k's vertices, in element order
func corners(m *mesh.Mesh, k int) (key [6]float64) {
	for i, v := range m.Element(k) {
		p := m.Vertex(v)
		key[2*i], key[2*i+1] = p[0], p[1]
	}
	return
}
