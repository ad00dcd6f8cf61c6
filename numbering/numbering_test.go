package numbering

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/scatter"
)

func TestFromPartitionSmall(t *testing.T) {
	// rank 0 holds items destined [1 0 1], rank 1 holds [0 1]
	dests := [][]int{{1, 0, 1}, {0, 1}}
	got := make([]*Partitioning, 2)
	w, err := comm.NewWorld(2)
	require.NoError(t, err)
	err = w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		p, err := FromPartition(ctx, c, dests[c.Rank()])
		got[c.Rank()] = p
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, got[0].Counts)
	assert.Equal(t, []int{2, 3}, got[1].Counts)
	// rank 0 owns new [0,2): rank 0's item first, then rank 1's
	// rank 1 owns new [2,5): rank 0's two items, then rank 1's
	assert.Equal(t, []int{2, 0, 3}, got[0].NewIDs)
	assert.Equal(t, []int{1, 4}, got[1].NewIDs)
}

func TestFromPartitionIsBijection(t *testing.T) {
	for _, size := range []int{1, 2, 3, 6} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(size) * 11))
			dests := make([][]int, size)
			total := 0
			for r := range dests {
				dests[r] = make([]int, rng.Intn(9))
				for i := range dests[r] {
					dests[r][i] = rng.Intn(size)
				}
				total += len(dests[r])
			}
			var (
				mu  sync.Mutex
				ids []int
			)
			w, err := comm.NewWorld(size)
			require.NoError(t, err)
			err = w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
				p, err := FromPartition(ctx, c, dests[c.Rank()])
				if err != nil {
					return err
				}
				layout := p.Layout()
				for i, id := range p.NewIDs {
					owner, err := layout.Owner(id)
					if err != nil {
						return err
					}
					if owner != dests[c.Rank()][i] {
						return fmt.Errorf("item %d got id %d owned by %d, destined to %d", i, id, owner, dests[c.Rank()][i])
					}
				}
				mu.Lock()
				ids = append(ids, p.NewIDs...)
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
			sort.Ints(ids)
			require.Len(t, ids, total)
			for i, id := range ids {
				assert.Equal(t, i, id)
			}
		})
	}
}

func TestFromPartitionRejectsBadRank(t *testing.T) {
	w, err := comm.NewWorld(2)
	require.NoError(t, err)
	_, err = FromPartition(context.Background(), w.Comm(0), []int{2})
	assert.ErrorIs(t, err, comm.ErrRankRange)
}

func TestOrderingTranslate(t *testing.T) {
	const n = 9
	// claim order per rank, not sorted
	owned := [][]int{{4, 0, 8}, {}, {1, 7, 2, 3}, {6, 5}}
	w, err := comm.NewWorld(len(owned))
	require.NoError(t, err)
	err = w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		o, err := NewOrdering(ctx, c, n, owned[c.Rank()])
		if err != nil {
			return err
		}
		// every rank asks for everything, in reverse
		ids := make([]int, n)
		for i := range ids {
			ids[i] = n - 1 - i
		}
		got, err := o.Translate(ctx, c, ids)
		if err != nil {
			return err
		}
		want := map[int]int{4: 0, 0: 1, 8: 2, 1: 3, 7: 4, 2: 5, 3: 6, 6: 7, 5: 8}
		for i, id := range ids {
			if got[i] != want[id] {
				return fmt.Errorf("rank %d: old %d -> %d, want %d", c.Rank(), id, got[i], want[id])
			}
		}
		starts := []int{0, 3, 3, 7}
		if o.Start != starts[c.Rank()] || o.Count != len(owned[c.Rank()]) {
			return fmt.Errorf("rank %d: start %d count %d", c.Rank(), o.Start, o.Count)
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestOrderingRejectsDuplicateClaims(t *testing.T) {
	owned := [][]int{{0, 1}, {1, 1}}
	w, err := comm.NewWorld(2)
	require.NoError(t, err)
	err = w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		_, err := NewOrdering(ctx, c, 4, owned[c.Rank()])
		return err
	})
	assert.ErrorIs(t, err, scatter.ErrIndex)
}

func TestOrderingRejectsShortClaims(t *testing.T) {
	w, err := comm.NewWorld(1)
	require.NoError(t, err)
	_, err = NewOrdering(context.Background(), w.Comm(0), 3, []int{0, 1})
	assert.ErrorIs(t, err, scatter.ErrIndex)
}
