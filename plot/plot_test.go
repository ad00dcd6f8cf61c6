package plot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/meshdist/mesh"
	"github.com/notargets/meshdist/redist"
)

func TestShadeByRank(t *testing.T) {
	s := &redist.Snapshot{Mesh: mesh.TwoTriangleMesh(), EleRank: []int{0, 1}, VertRank: []int{0, 0, 1, 1}}
	gm, ranks := shadeByRank(s)
	assert.Len(t, gm.XY, 12)
	assert.Equal(t, [3]int64{3, 4, 5}, gm.TriVerts[1])
	assert.Equal(t, []float32{0, 0, 0, 1, 1, 1}, ranks)
	// second triangle starts at vertex 1
	assert.Equal(t, []float32{1, 0}, gm.XY[6:8])

	wire := wireframe(s)
	assert.Equal(t, [3]int64{1, 2, 3}, wire.TriVerts[1])

	xMin, xMax, yMin, yMax := squareBox(s)
	assert.InDelta(t, 1.1, float64(xMax-xMin), 1e-6)
	assert.InDelta(t, float64(xMax-xMin), float64(yMax-yMin), 1e-6)
}

func TestPartitionedMesh(t *testing.T) {
	if !testing.Verbose() {
		return
	}
	m, _ := mesh.RectangleMesh(8, 8)
	ranks := make([]int, m.NEle)
	for k := range ranks {
		ranks[k] = 4 * k / m.NEle
	}
	PartitionedMesh(&redist.Snapshot{Mesh: m, EleRank: ranks, VertRank: make([]int, m.NVert)})
}
