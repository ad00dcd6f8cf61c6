// Package plot draws a redistributed mesh with every triangle shaded by the
// rank that owns it.
package plot

import (
	"github.com/notargets/avs/chart2d"
	"github.com/notargets/avs/geometry"
	utils2 "github.com/notargets/avs/utils"

	"github.com/notargets/meshdist/redist"
)

// PartitionedMesh opens a chart window showing s. Triangles are flat shaded
// by owning rank, over the wireframe of the whole mesh.
func PartitionedMesh(s *redist.Snapshot) *chart2d.Chart2D {
	var (
		flat, ranks = shadeByRank(s)
		wire        = wireframe(s)
		rMax        float32
	)
	for _, r := range ranks {
		rMax = max(rMax, r)
	}
	if rMax == 0 {
		rMax = 1
	}
	xMin, xMax, yMin, yMax := squareBox(s)
	ch := chart2d.NewChart2D(xMin, xMax, yMin, yMax,
		1024, 1024, utils2.WHITE, utils2.BLACK)
	vs := geometry.VertexScalar{
		TMesh:       &flat,
		FieldValues: ranks,
	}
	ch.AddShadedVertexScalar(&vs, 0, rMax)
	ch.AddTriMesh(wire)
	return ch
}

// shadeByRank gives every triangle its own three vertices so a vertex field
// holding the element's rank shades it in one colour
func shadeByRank(s *redist.Snapshot) (gm geometry.TriMesh, ranks []float32) {
	m := s.Mesh
	gm = geometry.TriMesh{
		XY:       make([]float32, 0, 6*m.NEle),
		TriVerts: make([][3]int64, m.NEle),
	}
	ranks = make([]float32, 0, 3*m.NEle)
	for k := 0; k < m.NEle; k++ {
		e := m.Element(k)
		for n, v := range e {
			xy := m.Vertex(v)
			gm.XY = append(gm.XY, float32(xy[0]), float32(xy[1]))
			gm.TriVerts[k][n] = int64(3*k + n)
			ranks = append(ranks, float32(s.EleRank[k]))
		}
	}
	return
}

func wireframe(s *redist.Snapshot) (gm geometry.TriMesh) {
	m := s.Mesh
	gm = geometry.TriMesh{
		XY:       make([]float32, len(m.Coords)),
		TriVerts: make([][3]int64, m.NEle),
	}
	for i, x := range m.Coords {
		gm.XY[i] = float32(x)
	}
	for k := 0; k < m.NEle; k++ {
		for n, v := range m.Element(k) {
			gm.TriVerts[k][n] = int64(v)
		}
	}
	return
}

// squareBox is the bounding box of the mesh grown to a square with a margin
func squareBox(s *redist.Snapshot) (xMin, xMax, yMin, yMax float32) {
	x0, x1, y0, y1 := s.Mesh.Bounds()
	var (
		xc, yc = (x0 + x1) / 2, (y0 + y1) / 2
		half   = 0.55 * max(x1-x0, y1-y0)
	)
	if half == 0 {
		half = 1
	}
	return float32(xc - half), float32(xc + half), float32(yc - half), float32(yc + half)
}
