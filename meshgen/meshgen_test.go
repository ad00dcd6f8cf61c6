package meshgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoints(t *testing.T) {
	pts := Points(20, 7)
	// 5x5 lattice
	require.Len(t, pts, 25)
	assert.Equal(t, Points(20, 7), pts)
	assert.NotEqual(t, Points(20, 8), pts)
	for _, p := range pts {
		assert.True(t, p[0] >= 0 && p[0] <= 1, "x %v", p)
		assert.True(t, p[1] >= 0 && p[1] <= 1, "y %v", p)
	}
	// corners stay put
	assert.Equal(t, [2]float64{0, 0}, pts[0])
	assert.Equal(t, [2]float64{1, 1}, pts[24])
}

func TestArea(t *testing.T) {
	assert.Equal(t, 0.5, Area([2]float64{0, 0}, [2]float64{1, 0}, [2]float64{0, 1}))
	assert.Equal(t, -0.5, Area([2]float64{0, 0}, [2]float64{0, 1}, [2]float64{1, 0}))
}

func TestRandom(t *testing.T) {
	m, err := Random(100, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, m.NVert)
	// a triangulation of the square with 36 boundary points has 2n-b-2 triangles
	assert.Equal(t, 2*100-36-2, m.NEle)
	var total float64
	for k := 0; k < m.NEle; k++ {
		e := m.Element(k)
		a := Area(m.Vertex(e[0]), m.Vertex(e[1]), m.Vertex(e[2]))
		assert.Greater(t, a, 0.)
		total += a
	}
	assert.InDelta(t, 1, total, 1e-9)
	require.NoError(t, m.Adj.Validate(m.NEle))
}

func TestDelaunayTooFewPoints(t *testing.T) {
	_, err := Delaunay("two", [][2]float64{{0, 0}, {1, 0}})
	assert.Error(t, err)
}
