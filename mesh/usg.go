package mesh

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
)

/*
ReadUSG reads the plain text "usgdata" unstructured grid format:

	<title line>
	Number Vertices = <nv>
	<id> <x> <y>                  nv lines
	Number Elements = <ne>
	<id> <v0> <v1> <v2>           ne lines, zero based vertex ids
	<title line>
	<id> <n0> <n1> <n2>           ne lines, neighbour element ids, negative for boundary

The neighbour section is optional; without it the adjacency is derived from
shared edges.
*/
func ReadUSG(r io.Reader) (m *Mesh, err error) {
	rd := &lineReader{sc: bufio.NewScanner(r)}
	m = &Mesh{}
	if m.Title, err = rd.line(); err != nil {
		return nil, fmt.Errorf("usg title: %w", err)
	}
	if m.NVert, err = rd.count("Number Vertices = %d"); err != nil {
		return nil, err
	}
	m.Coords = make([]float64, 0, prealloc(m.NVert)*CoordsPerVertex)
	for i := 0; i < m.NVert; i++ {
		var (
			id   int
			x, y float64
		)
		if err = rd.scan(3, "%d %g %g", &id, &x, &y); err != nil {
			return nil, fmt.Errorf("usg vertex %d: %w", i, err)
		}
		m.Coords = append(m.Coords, x, y)
	}
	if m.NEle, err = rd.count("Number Elements = %d"); err != nil {
		return nil, err
	}
	m.Elements = make([]int, 0, prealloc(m.NEle)*VertsPerElement)
	for i := 0; i < m.NEle; i++ {
		var id, v0, v1, v2 int
		if err = rd.scan(4, "%d %d %d %d", &id, &v0, &v1, &v2); err != nil {
			return nil, fmt.Errorf("usg element %d: %w", i, err)
		}
		m.Elements = append(m.Elements, v0, v1, v2)
	}

	// the neighbour section starts at the next non blank line, if any
	if _, err = rd.nonBlank(); err == io.EOF {
		if m.Adj, err = BuildAdjacency(m.Elements, m.NVert); err != nil {
			return nil, err
		}
		return m, m.Validate()
	} else if err != nil {
		return nil, err
	}
	rows := make([][]int, m.NEle) // NEle lines have been read
	for i := 0; i < m.NEle; i++ {
		var id, a1, a2, a3 int
		if err = rd.scan(4, "%d %d %d %d", &id, &a1, &a2, &a3); err != nil {
			return nil, fmt.Errorf("usg neighbours of element %d: %w", i, err)
		}
		for _, nb := range []int{a1, a2, a3} {
			if nb >= 0 {
				rows[i] = append(rows[i], nb)
			}
		}
	}
	m.Adj = NewAdjacency(rows)
	return m, m.Validate()
}

// WriteUSG writes m in the format read by ReadUSG, including the neighbour
// section
func WriteUSG(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	title := m.Title
	if title == "" {
		title = "unstructured grid"
	}
	fmt.Fprintf(bw, "%s\n", title)
	fmt.Fprintf(bw, "Number Vertices = %d\n", m.NVert)
	for v := 0; v < m.NVert; v++ {
		fmt.Fprintf(bw, "%d %.17g %.17g\n", v, m.Coords[2*v], m.Coords[2*v+1])
	}
	fmt.Fprintf(bw, "Number Elements = %d\n", m.NEle)
	for k := 0; k < m.NEle; k++ {
		e := m.Element(k)
		fmt.Fprintf(bw, "%d %d %d %d\n", k, e[0], e[1], e[2])
	}
	if m.Adj != nil {
		fmt.Fprintf(bw, "Element neighbors\n")
		for k := 0; k < m.NEle; k++ {
			nb := [3]int{-1, -1, -1}
			row := m.Adj.Row(k)
			if len(row) > VertsPerElement {
				return fmt.Errorf("element %d has %d neighbours", k, len(row))
			}
			copy(nb[:], row)
			fmt.Fprintf(bw, "%d %d %d %d\n", k, nb[0], nb[1], nb[2])
		}
	}
	return bw.Flush()
}

type lineReader struct {
	sc     *bufio.Scanner
	lineNo int
}

func (rd *lineReader) line() (string, error) {
	if !rd.sc.Scan() {
		if err := rd.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	rd.lineNo++
	return strings.TrimRight(rd.sc.Text(), "\r"), nil
}

func (rd *lineReader) nonBlank() (string, error) {
	for {
		line, err := rd.line()
		if err != nil || strings.TrimSpace(line) != "" {
			return line, err
		}
	}
}

// scan reads the next line and requires nargs values from it
func (rd *lineReader) scan(nargs int, format string, args ...any) error {
	line, err := rd.line()
	if err != nil {
		if err == io.EOF {
			err = fmt.Errorf("early end of file")
		}
		return err
	}
	n, err := fmt.Sscanf(line, format, args...)
	if err != nil || n < nargs {
		return fmt.Errorf("line %d: read %d of %d values from %q: %v", rd.lineNo, n, nargs, line, err)
	}
	return nil
}

func (rd *lineReader) count(format string) (int, error) {
	var n int
	if err := rd.scan(1, format, &n); err != nil {
		return 0, err
	}
	if err := checkCount(n); err != nil {
		return 0, fmt.Errorf("line %d: %w", rd.lineNo, err)
	}
	return n, nil
}

// MaxCount bounds vertex and element counts; ids must fit the int32 indices
// of the partitioning and triangulation libraries
const MaxCount = math.MaxInt32

func checkCount(n int) error {
	if n < 0 || n > MaxCount {
		return fmt.Errorf("count %d outside [0,%d]", n, MaxCount)
	}
	return nil
}

// prealloc caps the capacity reserved from a header count, so a bad header
// fails on the missing lines rather than on the allocation
func prealloc(n int) int { return min(n, 1<<16) }

func (rd *lineReader) skip(n int) error {
	for i := 0; i < n; i++ {
		if _, err := rd.line(); err != nil {
			if err == io.EOF {
				err = fmt.Errorf("early end of file")
			}
			return err
		}
	}
	return nil
}
