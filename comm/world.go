package comm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// World is an in-process group of ranks, each rank running on its own
// goroutine. Messages are copied into per (source, destination, tag) queues,
// so a sender never blocks and a receiver only sees its own copy.
type World struct {
	size int

	mu     sync.Mutex
	queues map[mailKey]*mailbox

	ctx    context.Context
	cancel context.CancelCauseFunc
}

type mailKey struct {
	source, dest, tag int
}

type mailbox struct {
	mu    sync.Mutex
	items [][]byte
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (mb *mailbox) post(msg []byte) {
	mb.mu.Lock()
	mb.items = append(mb.items, msg)
	mb.mu.Unlock()
	select {
	case mb.ready <- struct{}{}:
	default:
	}
}

func (mb *mailbox) take() (msg []byte, ok bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.items) == 0 {
		return nil, false
	}
	msg = mb.items[0]
	mb.items[0] = nil
	mb.items = mb.items[1:]
	return msg, true
}

// NewWorld creates a group of size ranks
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("world size must be positive, got %d", size)
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &World{
		size:   size,
		queues: make(map[mailKey]*mailbox),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Size returns the number of ranks in the world
func (w *World) Size() int { return w.size }

// Comm returns the communicator for one rank
func (w *World) Comm(rank int) Communicator {
	if rank < 0 || rank >= w.size {
		panic(fmtRankErr(rank, w.size))
	}
	return &rankComm{world: w, rank: rank}
}

// Abort cancels the world; the first cause wins
func (w *World) Abort(err error) {
	if err == nil {
		err = ErrAborted
	}
	w.cancel(err)
}

// Err returns the abort cause, or nil while the world is healthy
func (w *World) Err() error {
	return context.Cause(w.ctx)
}

// Run executes fn once per rank, each on its own goroutine, and waits for all
// of them. A rank returning an error aborts the world so that no other rank is
// left blocked in a collective; the error reported is the abort cause.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c Communicator) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < w.size; rank++ {
		c := w.Comm(rank)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("rank %d panicked: %v", c.Rank(), r)
					w.Abort(err)
				}
			}()
			if err = fn(gctx, c); err != nil {
				w.Abort(err)
			}
			return err
		})
	}
	err := g.Wait()
	if cause := w.Err(); cause != nil {
		return cause
	}
	return err
}

func (w *World) box(key mailKey) *mailbox {
	w.mu.Lock()
	defer w.mu.Unlock()
	mb, ok := w.queues[key]
	if !ok {
		mb = newMailbox()
		w.queues[key] = mb
	}
	return mb
}

type rankComm struct {
	world *World
	rank  int
}

func (rc *rankComm) Rank() int { return rc.rank }
func (rc *rankComm) Size() int { return rc.world.size }

func (rc *rankComm) Send(ctx context.Context, dest, tag int, data []byte) error {
	if err := checkPeer(rc, dest); err != nil {
		return err
	}
	if err := rc.aborted(ctx); err != nil {
		return err
	}
	msg := make([]byte, len(data))
	copy(msg, data)
	rc.world.box(mailKey{source: rc.rank, dest: dest, tag: tag}).post(msg)
	return nil
}

func (rc *rankComm) Recv(ctx context.Context, source, tag int) ([]byte, error) {
	if err := checkPeer(rc, source); err != nil {
		return nil, err
	}
	mb := rc.world.box(mailKey{source: source, dest: rc.rank, tag: tag})
	for {
		if msg, ok := mb.take(); ok {
			return msg, nil
		}
		select {
		case <-mb.ready:
		case <-ctx.Done():
			return nil, fmt.Errorf("rank %d receiving from %d tag %d: %w", rc.rank, source, tag, ctx.Err())
		case <-rc.world.ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrAborted, context.Cause(rc.world.ctx))
		}
	}
}

func (rc *rankComm) Abort(err error) { rc.world.Abort(err) }

func (rc *rankComm) aborted(ctx context.Context) error {
	if cause := rc.world.Err(); cause != nil {
		return fmt.Errorf("%w: %w", ErrAborted, cause)
	}
	return ctx.Err()
}

func fmtRankErr(rank, size int) error {
	return fmt.Errorf("%w: rank %d, size %d", ErrRankRange, rank, size)
}
