package mesh

import (
	"bufio"
	"fmt"
	"io"
)

// ReadGambit2D reads the vertices and triangles of a 2D Gambit neutral file.
// Material groups and boundary sections are not needed for partitioning and
// are left unread; adjacency comes from shared edges.
func ReadGambit2D(r io.Reader) (m *Mesh, err error) {
	rd := &lineReader{sc: bufio.NewScanner(r)}
	// Skip first six lines
	if err = rd.skip(6); err != nil {
		return nil, fmt.Errorf("gambit preamble: %w", err)
	}
	var Nv, K, Nmats, Nbcs, Nsd, dum int
	if err = rd.scan(6, "%d %d %d %d %d %d", &Nv, &K, &Nmats, &Nbcs, &Nsd, &dum); err != nil {
		return nil, fmt.Errorf("gambit header: %w", err)
	}
	if err = checkCount(Nv); err != nil {
		return nil, fmt.Errorf("gambit vertices: %w", err)
	}
	if err = checkCount(K); err != nil {
		return nil, fmt.Errorf("gambit elements: %w", err)
	}
	if Nsd != 2 {
		return nil, fmt.Errorf("gambit file has %d space dimensions, only 2D triangles are supported", Nsd)
	}
	if err = rd.skip(2); err != nil {
		return nil, err
	}

	m = &Mesh{NVert: Nv, NEle: K, Title: "gambit neutral"}
	if m.Coords, err = readGambitVertices(rd, Nv); err != nil {
		return nil, err
	}
	if err = rd.skip(2); err != nil {
		return nil, err
	}
	if m.Elements, err = readGambitTris(rd, K, Nv); err != nil {
		return nil, err
	}
	if m.Adj, err = BuildAdjacency(m.Elements, m.NVert); err != nil {
		return nil, err
	}
	return m, m.Validate()
}

// gambitRecord is one indexed line, placed once the whole section is read
type gambitRecord[T any] struct {
	ind  int
	vals [3]T
}

func place[T any](recs []gambitRecord[T], n, width int) []T {
	out := make([]T, n*width)
	for _, r := range recs {
		copy(out[(r.ind-1)*width:], r.vals[:width])
	}
	return out
}

func readGambitVertices(rd *lineReader, Nv int) (coords []float64, err error) {
	recs := make([]gambitRecord[float64], 0, prealloc(Nv))
	for i := 0; i < Nv; i++ {
		var (
			ind  int
			x, y float64
		)
		if err = rd.scan(3, "%d %f %f", &ind, &x, &y); err != nil {
			return nil, fmt.Errorf("gambit vertex: %w", err)
		}
		if ind < 1 || ind > Nv {
			return nil, fmt.Errorf("gambit vertex index %d outside [1,%d]", ind, Nv)
		}
		recs = append(recs, gambitRecord[float64]{ind: ind, vals: [3]float64{x, y}})
	}
	return place(recs, Nv, CoordsPerVertex), nil
}

func readGambitTris(rd *lineReader, K, Nv int) (elements []int, err error) {
	//-------------------------------------
	// ENDOFSECTION
	//    ELEMENTS/CELLS 1.3.0
	//      1  3  3        1       2       3
	//      2  3  3        3       2       4
	//-------------------------------------
	recs := make([]gambitRecord[int], 0, prealloc(K))
	for i := 0; i < K; i++ {
		var ind, typ, nfaces, n1, n2, n3 int
		if err = rd.scan(6, "%d %d %d %d %d %d", &ind, &typ, &nfaces, &n1, &n2, &n3); err != nil {
			return nil, fmt.Errorf("gambit element: %w", err)
		}
		if nfaces != VertsPerElement {
			return nil, fmt.Errorf("gambit element %d has %d nodes, only triangles are supported", ind, nfaces)
		}
		if ind < 1 || ind > K {
			return nil, fmt.Errorf("gambit element index %d outside [1,%d]", ind, K)
		}
		recs = append(recs, gambitRecord[int]{ind: ind, vals: [3]int{n1 - 1, n2 - 1, n3 - 1}})
	}
	return place(recs, K, VertsPerElement), nil
}
