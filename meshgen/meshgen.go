// Package meshgen builds unstructured triangle meshes for driving the
// pipeline without an input file.
package meshgen

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pradeep-pyro/triangle"

	"github.com/notargets/meshdist/mesh"
)

// Jitter is the largest displacement of an interior point, as a fraction of
// the lattice spacing
const Jitter = 0.3

// Points returns about n points covering the unit square: a side x side
// lattice with every interior point moved randomly by up to Jitter spacings.
// The same seed always gives the same points.
func Points(n int, seed int64) [][2]float64 {
	side := max(2, int(math.Ceil(math.Sqrt(float64(n)))))
	var (
		rng = rand.New(rand.NewSource(seed))
		h   = 1 / float64(side-1)
		pts = make([][2]float64, 0, side*side)
	)
	for j := 0; j < side; j++ {
		for i := 0; i < side; i++ {
			x, y := float64(i)*h, float64(j)*h
			if i > 0 && i < side-1 {
				x += (2*rng.Float64() - 1) * Jitter * h
			}
			if j > 0 && j < side-1 {
				y += (2*rng.Float64() - 1) * Jitter * h
			}
			pts = append(pts, [2]float64{x, y})
		}
	}
	return pts
}

// Delaunay triangulates pts and returns the mesh with every triangle
// oriented counter clockwise. Zero area triangles are dropped.
func Delaunay(title string, pts [][2]float64) (*mesh.Mesh, error) {
	if len(pts) < 3 {
		return nil, fmt.Errorf("need at least 3 points to triangulate, got %d", len(pts))
	}
	tris := triangle.Delaunay(pts)
	coords := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		coords = append(coords, p[0], p[1])
	}
	elements := make([]int, 0, 3*len(tris))
	for _, t := range tris {
		a, b, c := int(t[0]), int(t[1]), int(t[2])
		area := Area(pts[a], pts[b], pts[c])
		switch {
		case area > 0:
			elements = append(elements, a, b, c)
		case area < 0:
			elements = append(elements, a, c, b)
		}
	}
	return mesh.NewMesh(title, coords, elements)
}

// Random is Delaunay over Points(n, seed)
func Random(n int, seed int64) (*mesh.Mesh, error) {
	return Delaunay(fmt.Sprintf("random %d points, seed %d", n, seed), Points(n, seed))
}

// Area is the signed area of triangle abc, positive when counter clockwise
func Area(a, b, c [2]float64) float64 {
	return 0.5 * ((b[0]-a[0])*(c[1]-a[1]) - (c[0]-a[0])*(b[1]-a[1]))
}
