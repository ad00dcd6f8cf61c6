package mesh

import "fmt"

// RectangleMesh returns an nx by ny grid of unit squares, each cut into two
// triangles along its diagonal. Vertex (i,j) has id j*(nx+1)+i; the two
// triangles of square (i,j) are elements 2*(j*nx+i) and 2*(j*nx+i)+1.
func RectangleMesh(nx, ny int) (*Mesh, error) {
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("rectangle mesh needs at least one square, got %dx%d", nx, ny)
	}
	var (
		stride   = nx + 1
		coords   = make([]float64, 0, (nx+1)*(ny+1)*CoordsPerVertex)
		elements = make([]int, 0, 2*nx*ny*VertsPerElement)
	)
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			coords = append(coords, float64(i), float64(j))
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			v00 := j*stride + i
			v10, v01, v11 := v00+1, v00+stride, v00+stride+1
			elements = append(elements, v00, v10, v11, v00, v11, v01)
		}
	}
	return NewMesh(fmt.Sprintf("rectangle %dx%d", nx, ny), coords, elements)
}

// TwoTriangleMesh is the unit square as the two triangles {0,1,2} and
// {1,2,3}, each the only neighbour of the other
func TwoTriangleMesh() *Mesh {
	m, err := NewMesh("two triangles",
		[]float64{0, 0, 1, 0, 0, 1, 1, 1},
		[]int{0, 1, 2, 1, 2, 3})
	if err != nil {
		panic(err)
	}
	return m
}
