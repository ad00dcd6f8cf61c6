// Package partition maps each element of a distributed mesh to a destination
// rank. A Service sees the element graph as the rows each rank owns and
// returns one destination per owned row; the helpers here assemble the
// global graph on one rank for services that work serially.
package partition

import (
	"context"
	"errors"
	"fmt"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/mesh"
)

// ErrInvalidAssignment reports an assignment with the wrong length or a
// destination outside [0, size)
var ErrInvalidAssignment = errors.New("invalid partition assignment")

// Graph is one rank's rows of the distributed element graph. Rows are the
// global elements [FirstRow, FirstRow+Adj.NumRows()); neighbour entries are
// global element ids regardless of owner.
type Graph struct {
	NumGlobal int
	FirstRow  int
	Adj       *mesh.Adjacency
}

// NumRows is the number of rows held locally
func (g Graph) NumRows() int { return g.Adj.NumRows() }

// Service produces a destination rank per local row. It is collective: every
// rank calls Partition with its own rows.
type Service interface {
	Name() string
	Partition(ctx context.Context, c comm.Communicator, g Graph) ([]int, error)
}

// Validate checks there is one destination per local row, each in range
func Validate(dest []int, rows, size int) error {
	if len(dest) != rows {
		return fmt.Errorf("%w: %d destinations for %d elements", ErrInvalidAssignment, len(dest), rows)
	}
	for i, d := range dest {
		if d < 0 || d >= size {
			return fmt.Errorf("%w: element %d sent to rank %d of %d", ErrInvalidAssignment, i, d, size)
		}
	}
	return nil
}

// Identity keeps every element on its current rank
type Identity struct{}

func (Identity) Name() string { return "identity" }

func (Identity) Partition(_ context.Context, c comm.Communicator, g Graph) ([]int, error) {
	dest := make([]int, g.NumRows())
	for i := range dest {
		dest[i] = c.Rank()
	}
	return dest, nil
}

// Fixed assigns each element by a function of its global id
type Fixed func(globalID int) int

func (Fixed) Name() string { return "fixed" }

func (f Fixed) Partition(_ context.Context, _ comm.Communicator, g Graph) ([]int, error) {
	dest := make([]int, g.NumRows())
	for i := range dest {
		dest[i] = f(g.FirstRow + i)
	}
	return dest, nil
}
