// Package scatter moves fixed size blocks of values between ranks according
// to a global index mapping. Global ids are laid out contiguously by rank,
// so the owner of any id is known from the layout alone.
package scatter

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/notargets/meshdist/comm"
)

// ErrIndex reports a block index outside the layout, or a target layout
// that is not covered exactly once
var ErrIndex = errors.New("scatter index error")

// Layout is a contiguous distribution of [0,N) over ranks: rank r owns
// [Starts[r], Starts[r+1])
type Layout struct {
	Starts []int
}

// NewLayout builds a layout from per rank counts
func NewLayout(counts []int) Layout {
	starts := make([]int, len(counts)+1)
	for r, n := range counts {
		starts[r+1] = starts[r] + n
	}
	return Layout{Starts: starts}
}

// GatherLayout builds the layout in which this rank holds localCount ids
func GatherLayout(ctx context.Context, c comm.Communicator, localCount int) (Layout, error) {
	counts, err := comm.AllGatherInt(ctx, c, localCount)
	if err != nil {
		return Layout{}, err
	}
	return NewLayout(counts), nil
}

func (l Layout) Size() int  { return len(l.Starts) - 1 }
func (l Layout) Total() int { return l.Starts[len(l.Starts)-1] }

// Range returns the ids owned by rank r
func (l Layout) Range(r int) (lo, hi int) { return l.Starts[r], l.Starts[r+1] }

// Count returns the number of ids owned by rank r
func (l Layout) Count(r int) int { return l.Starts[r+1] - l.Starts[r] }

// Owner returns the rank owning id, skipping empty ranks
func (l Layout) Owner(id int) (int, error) {
	if id < 0 || id >= l.Total() {
		return -1, fmt.Errorf("%w: id %d outside [0,%d)", ErrIndex, id, l.Total())
	}
	return sort.Search(l.Size(), func(r int) bool { return l.Starts[r+1] > id }), nil
}

// Push sends block i of vals (vals[i*block:(i+1)*block]) to the position
// targets[i] of the destination layout. Blocks never split. It returns this
// rank's slice of the destination, which must be covered exactly once across
// all ranks.
func Push[T comm.Number](ctx context.Context, c comm.Communicator, dst Layout, block int,
	targets []int, vals []T) ([]T, error) {
	if len(vals) != len(targets)*block {
		return nil, fmt.Errorf("%w: %d values for %d blocks of %d", comm.ErrProtocol, len(vals), len(targets), block)
	}
	var (
		size    = c.Size()
		sendIdx = make([][]int, size)
		sendVal = make([][]T, size)
	)
	for i, tgt := range targets {
		owner, err := dst.Owner(tgt)
		if err != nil {
			return nil, err
		}
		sendIdx[owner] = append(sendIdx[owner], tgt)
		sendVal[owner] = append(sendVal[owner], vals[i*block:(i+1)*block]...)
	}
	recvIdx, err := comm.AlltoallvSlices(ctx, c, sendIdx)
	if err != nil {
		return nil, err
	}
	recvVal, err := comm.AlltoallvSlices(ctx, c, sendVal)
	if err != nil {
		return nil, err
	}

	var (
		lo, hi = dst.Range(c.Rank())
		out    = make([]T, (hi-lo)*block)
		filled = make([]bool, hi-lo)
	)
	for src := range recvIdx {
		if len(recvVal[src]) != len(recvIdx[src])*block {
			return nil, fmt.Errorf("%w: rank %d sent %d values for %d blocks",
				comm.ErrProtocol, src, len(recvVal[src]), len(recvIdx[src]))
		}
		for j, tgt := range recvIdx[src] {
			if tgt < lo || tgt >= hi {
				return nil, fmt.Errorf("%w: rank %d sent block %d, this rank owns [%d,%d)", ErrIndex, src, tgt, lo, hi)
			}
			if filled[tgt-lo] {
				return nil, fmt.Errorf("%w: block %d received twice", ErrIndex, tgt)
			}
			filled[tgt-lo] = true
			copy(out[(tgt-lo)*block:], recvVal[src][j*block:(j+1)*block])
		}
	}
	for i, ok := range filled {
		if !ok {
			return nil, fmt.Errorf("%w: block %d never arrived", ErrIndex, lo+i)
		}
	}
	return out, nil
}

// Pull fetches, for each id in want, its block from the source layout in
// which this rank holds vals. The result is in the order of want.
func Pull[T comm.Number](ctx context.Context, c comm.Communicator, src Layout, block int,
	vals []T, want []int) ([]T, error) {
	lo, hi := src.Range(c.Rank())
	if len(vals) != (hi-lo)*block {
		return nil, fmt.Errorf("%w: %d values for %d local blocks of %d", comm.ErrProtocol, len(vals), hi-lo, block)
	}
	var (
		size     = c.Size()
		requests = make([][]int, size)
		slot     = make([][]int, size) // position in want of each request
	)
	for i, id := range want {
		owner, err := src.Owner(id)
		if err != nil {
			return nil, err
		}
		requests[owner] = append(requests[owner], id)
		slot[owner] = append(slot[owner], i)
	}
	asked, err := comm.AlltoallvSlices(ctx, c, requests)
	if err != nil {
		return nil, err
	}
	replies := make([][]T, size)
	for peer, ids := range asked {
		replies[peer] = make([]T, 0, len(ids)*block)
		for _, id := range ids {
			if id < lo || id >= hi {
				return nil, fmt.Errorf("%w: rank %d asked for block %d, this rank owns [%d,%d)", ErrIndex, peer, id, lo, hi)
			}
			replies[peer] = append(replies[peer], vals[(id-lo)*block:(id-lo+1)*block]...)
		}
	}
	answers, err := comm.AlltoallvSlices(ctx, c, replies)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(want)*block)
	for peer, got := range answers {
		if len(got) != len(slot[peer])*block {
			return nil, fmt.Errorf("%w: rank %d answered %d values for %d blocks",
				comm.ErrProtocol, peer, len(got), len(slot[peer]))
		}
		for j, i := range slot[peer] {
			copy(out[i*block:], got[j*block:(j+1)*block])
		}
	}
	return out, nil
}
