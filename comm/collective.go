package comm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Tags at or above TagCollective are reserved for the collectives below.
// Every rank must issue the same collectives in the same order.
const (
	TagCollective = 1 << 20
	tagBarrier    = TagCollective + iota
	tagBcast
	tagGather
	tagScatter
	tagAlltoall
)

// Barrier returns once every rank has entered it
func Barrier(ctx context.Context, c Communicator) error {
	if _, err := Gather(ctx, c, Root, nil); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	if _, err := Bcast(ctx, c, Root, nil); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	return nil
}

// Bcast sends data from root to every rank; the result on root is data itself
func Bcast(ctx context.Context, c Communicator, root int, data []byte) ([]byte, error) {
	if err := checkPeer(c, root); err != nil {
		return nil, err
	}
	if c.Rank() != root {
		return c.Recv(ctx, root, tagBcast)
	}
	for peer := 0; peer < c.Size(); peer++ {
		if peer == root {
			continue
		}
		if err := c.Send(ctx, peer, tagBcast, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Gather collects one buffer per rank on root, indexed by rank. Non-root
// ranks get a nil result.
func Gather(ctx context.Context, c Communicator, root int, data []byte) ([][]byte, error) {
	if err := checkPeer(c, root); err != nil {
		return nil, err
	}
	if c.Rank() != root {
		return nil, c.Send(ctx, root, tagGather, data)
	}
	all := make([][]byte, c.Size())
	all[root] = data
	for peer := 0; peer < c.Size(); peer++ {
		if peer == root {
			continue
		}
		buf, err := c.Recv(ctx, peer, tagGather)
		if err != nil {
			return nil, err
		}
		all[peer] = buf
	}
	return all, nil
}

// Scatter sends parts[r] from root to rank r. Only root reads parts.
func Scatter(ctx context.Context, c Communicator, root int, parts [][]byte) ([]byte, error) {
	if err := checkPeer(c, root); err != nil {
		return nil, err
	}
	if c.Rank() != root {
		return c.Recv(ctx, root, tagScatter)
	}
	if len(parts) != c.Size() {
		return nil, fmt.Errorf("%w: scatter of %d parts over %d ranks", ErrProtocol, len(parts), c.Size())
	}
	for peer := 0; peer < c.Size(); peer++ {
		if peer == root {
			continue
		}
		if err := c.Send(ctx, peer, tagScatter, parts[peer]); err != nil {
			return nil, err
		}
	}
	return parts[root], nil
}

// Alltoallv is the personalized exchange: send[r] goes to rank r and the
// result holds, at index r, what rank r sent to this rank. Sends run
// concurrently with the receives so that transports with blocking sends
// cannot deadlock.
func Alltoallv(ctx context.Context, c Communicator, send [][]byte) ([][]byte, error) {
	var (
		size = c.Size()
		rank = c.Rank()
	)
	if len(send) != size {
		return nil, fmt.Errorf("%w: alltoallv with %d buffers over %d ranks", ErrProtocol, len(send), size)
	}
	recv := make([][]byte, size)
	recv[rank] = append([]byte(nil), send[rank]...)

	g, gctx := errgroup.WithContext(ctx)
	for peer := 0; peer < size; peer++ {
		if peer == rank {
			continue
		}
		g.Go(func() error {
			return c.Send(gctx, peer, tagAlltoall, send[peer])
		})
	}
	for peer := 0; peer < size; peer++ {
		if peer == rank {
			continue
		}
		buf, err := c.Recv(ctx, peer, tagAlltoall)
		if err != nil {
			_ = g.Wait()
			return nil, err
		}
		recv[peer] = buf
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return recv, nil
}

// AllGather gives every rank the buffer of every other rank
func AllGather(ctx context.Context, c Communicator, data []byte) ([][]byte, error) {
	send := make([][]byte, c.Size())
	for i := range send {
		send[i] = data
	}
	return Alltoallv(ctx, c, send)
}

// BcastSlice broadcasts a numeric slice from root
func BcastSlice[T Number](ctx context.Context, c Communicator, root int, vals []T) ([]T, error) {
	buf, err := Bcast(ctx, c, root, Encode(vals))
	if err != nil {
		return nil, err
	}
	if c.Rank() == root {
		return vals, nil
	}
	return Decode[T](buf)
}

// GatherSlices collects a numeric slice per rank on root
func GatherSlices[T Number](ctx context.Context, c Communicator, root int, vals []T) ([][]T, error) {
	bufs, err := Gather(ctx, c, root, Encode(vals))
	if err != nil || bufs == nil {
		return nil, err
	}
	return decodeAll[T](bufs)
}

// ScatterSlices hands parts[r] to rank r; only root reads parts
func ScatterSlices[T Number](ctx context.Context, c Communicator, root int, parts [][]T) ([]T, error) {
	var bufs [][]byte
	if c.Rank() == root {
		bufs = make([][]byte, len(parts))
		for i, p := range parts {
			bufs[i] = Encode(p)
		}
	}
	buf, err := Scatter(ctx, c, root, bufs)
	if err != nil {
		return nil, err
	}
	return Decode[T](buf)
}

// AlltoallvSlices is Alltoallv over numeric slices
func AlltoallvSlices[T Number](ctx context.Context, c Communicator, send [][]T) ([][]T, error) {
	bufs := make([][]byte, len(send))
	for i, s := range send {
		bufs[i] = Encode(s)
	}
	recv, err := Alltoallv(ctx, c, bufs)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](recv)
}

// AllGatherInt returns v from every rank, indexed by rank
func AllGatherInt(ctx context.Context, c Communicator, v int) ([]int, error) {
	bufs, err := AllGather(ctx, c, EncodeInts([]int{v}))
	if err != nil {
		return nil, err
	}
	out := make([]int, len(bufs))
	for r, buf := range bufs {
		vals, err := DecodeInts(buf)
		if err != nil {
			return nil, err
		}
		if len(vals) != 1 {
			return nil, fmt.Errorf("%w: rank %d contributed %d values to an int all-gather", ErrProtocol, r, len(vals))
		}
		out[r] = vals[0]
	}
	return out, nil
}

// AllReduceSumInts sums equal length int slices element-wise over all ranks
func AllReduceSumInts(ctx context.Context, c Communicator, vals []int) ([]int, error) {
	bufs, err := AllGather(ctx, c, EncodeInts(vals))
	if err != nil {
		return nil, err
	}
	sum := make([]int, len(vals))
	for r, buf := range bufs {
		contrib, err := DecodeInts(buf)
		if err != nil {
			return nil, err
		}
		if len(contrib) != len(vals) {
			return nil, fmt.Errorf("%w: rank %d contributed %d values to a sum of %d",
				ErrProtocol, r, len(contrib), len(vals))
		}
		for i, v := range contrib {
			sum[i] += v
		}
	}
	return sum, nil
}

// ExclusiveSum returns the sum of v over all ranks below this one, and the total
func ExclusiveSum(ctx context.Context, c Communicator, v int) (before, total int, err error) {
	all, err := AllGatherInt(ctx, c, v)
	if err != nil {
		return 0, 0, err
	}
	for r, x := range all {
		if r < c.Rank() {
			before += x
		}
		total += x
	}
	return before, total, nil
}

func decodeAll[T Number](bufs [][]byte) ([][]T, error) {
	out := make([][]T, len(bufs))
	for i, buf := range bufs {
		vals, err := Decode[T](buf)
		if err != nil {
			return nil, fmt.Errorf("from rank %d: %w", i, err)
		}
		out[i] = vals
	}
	return out, nil
}
