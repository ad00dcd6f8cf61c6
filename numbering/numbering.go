// Package numbering builds the global renumberings applied by the
// redistribution phases. Both kinds group new ids contiguously by owning rank,
// in rank order, and keep the local processing order within a rank.
package numbering

import (
	"context"
	"fmt"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/mesh"
	"github.com/notargets/meshdist/scatter"
)

// Partitioning is the renumbering induced by a destination rank per local
// item
type Partitioning struct {
	// NewIDs holds the new global id of each local item
	NewIDs []int
	// Counts holds, per rank, how many items it owns afterwards
	Counts []int
}

// Layout returns the post partition layout
func (p *Partitioning) Layout() scatter.Layout { return scatter.NewLayout(p.Counts) }

// FromPartition counts the items destined to each rank over all ranks and
// numbers local items consecutively per destination. Rank t owns
// [sum(Counts[:t]), sum(Counts[:t+1])); within it, items from lower ranks
// come first, then items in local order.
func FromPartition(ctx context.Context, c comm.Communicator, dest []int) (*Partitioning, error) {
	size := c.Size()
	hist := make([]int, size)
	for i, d := range dest {
		if d < 0 || d >= size {
			return nil, fmt.Errorf("%w: item %d destined to rank %d", comm.ErrRankRange, i, d)
		}
		hist[d]++
	}
	bufs, err := comm.AllGather(ctx, c, comm.EncodeInts(hist))
	if err != nil {
		return nil, err
	}
	all := make([][]int, size)
	for r, buf := range bufs {
		if all[r], err = comm.DecodeInts(buf); err != nil {
			return nil, err
		}
		if len(all[r]) != size {
			return nil, fmt.Errorf("%w: rank %d sent a histogram of %d ranks", comm.ErrProtocol, r, len(all[r]))
		}
	}

	p := &Partitioning{
		NewIDs: make([]int, len(dest)),
		Counts: make([]int, size),
	}
	offset := make([]int, size)
	for t := 0; t < size; t++ {
		for r := 0; r < size; r++ {
			p.Counts[t] += all[r][t]
			if r < c.Rank() {
				offset[t] += all[r][t]
			}
		}
	}
	start := 0
	for t := 0; t < size; t++ {
		offset[t] += start
		start += p.Counts[t]
	}
	for i, d := range dest {
		p.NewIDs[i] = offset[d]
		offset[d]++
	}
	return p, nil
}

// Ordering maps old global ids to new ones for an id space whose new owners
// each listed the old ids they take, in order. The map lives in a directory
// spread over the ranks in contiguous slices of the old id space; lookups are
// collective.
type Ordering struct {
	n     int
	dir   scatter.Layout
	table []int // new id of each old id in this rank's directory slice
	// Start is the first new id of this rank
	Start int
	// Count is the number of ids this rank owns in the new numbering
	Count int
}

// NewOrdering gives owned[i] the new id Start+i, where Start is the number
// of ids owned by lower ranks. Every id of [0,n) must be owned exactly once.
func NewOrdering(ctx context.Context, c comm.Communicator, n int, owned []int) (*Ordering, error) {
	before, total, err := comm.ExclusiveSum(ctx, c, len(owned))
	if err != nil {
		return nil, err
	}
	if total != n {
		return nil, fmt.Errorf("%w: ranks own %d ids of %d", scatter.ErrIndex, total, n)
	}
	counts := make([]int, c.Size())
	for r := range counts {
		lo, hi := mesh.Split1D(n, c.Size(), r)
		counts[r] = hi - lo
	}
	o := &Ordering{
		n:     n,
		dir:   scatter.NewLayout(counts),
		Start: before,
		Count: len(owned),
	}
	newIDs := make([]int, len(owned))
	for i := range owned {
		newIDs[i] = before + i
	}
	if o.table, err = scatter.Push(ctx, c, o.dir, 1, owned, newIDs); err != nil {
		return nil, fmt.Errorf("building ordering directory: %w", err)
	}
	return o, nil
}

// Translate returns the new id of every old id in ids. Collective: every
// rank must call it, with any number of ids.
func (o *Ordering) Translate(ctx context.Context, c comm.Communicator, ids []int) ([]int, error) {
	out, err := scatter.Pull(ctx, c, o.dir, 1, o.table, ids)
	if err != nil {
		return nil, fmt.Errorf("translating ids: %w", err)
	}
	return out, nil
}
