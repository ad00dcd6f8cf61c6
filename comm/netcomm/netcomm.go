// Package netcomm runs the communicator over TCP between separate processes,
// one rank per process, using github.com/btracey/mpi. Each process is started
// with -mpi-addr (its own address) and -mpi-alladdr (every address, in rank
// order); the flags are registered by the mpi package on flag.CommandLine.
package netcomm

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/btracey/mpi"
	"github.com/rs/zerolog/log"

	"github.com/notargets/meshdist/comm"
)

// Comm is the network communicator for the local process
type Comm struct {
	rank, size int
	// set once a cancelled call leaves its mpi call running
	stale atomic.Bool
}

// Init connects to every other process and returns the local communicator.
// The returned Finalize must be called once the run is over.
func Init() (*Comm, func(), error) {
	if err := mpi.Init(); err != nil {
		return nil, nil, fmt.Errorf("mpi init: %w", err)
	}
	c := &Comm{rank: mpi.Rank(), size: mpi.Size()}
	if c.rank < 0 || c.size < 1 {
		mpi.Finalize()
		return nil, nil, fmt.Errorf("mpi init: bad rank %d of size %d", c.rank, c.size)
	}
	log.Debug().Int("rank", c.rank).Int("size", c.size).Msg("network communicator up")
	return c, mpi.Finalize, nil
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.size }

// ready rejects calls on a stale communicator or with a done ctx
func (c *Comm) ready(ctx context.Context, peer int) error {
	if peer < 0 || peer >= c.size {
		return fmt.Errorf("%w: rank %d, size %d", comm.ErrRankRange, peer, c.size)
	}
	if c.stale.Load() {
		return fmt.Errorf("%w: rank %d has an interrupted send or receive", comm.ErrAborted, c.rank)
	}
	return ctx.Err()
}

// Send blocks until the payload is on the wire. mpi.Send cannot be
// interrupted, so a cancelled ctx only stops the wait and leaves the
// communicator stale; the abort that usually follows ends the process.
func (c *Comm) Send(ctx context.Context, dest, tag int, data []byte) error {
	if err := c.ready(ctx, dest); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- mpi.Send(data, dest, tag)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("rank %d sending to %d tag %d: %w", c.rank, dest, tag, err)
		}
		return nil
	case <-ctx.Done():
		c.stale.Store(true)
		return ctx.Err()
	}
}

func (c *Comm) Recv(ctx context.Context, source, tag int) ([]byte, error) {
	if err := c.ready(ctx, source); err != nil {
		return nil, err
	}
	type result struct {
		buf []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		var buf []byte
		err := mpi.Receive(&buf, source, tag)
		done <- result{buf: buf, err: err}
	}()
	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("rank %d receiving from %d tag %d: %w", c.rank, source, tag, res.err)
		}
		return res.buf, nil
	case <-ctx.Done():
		// mpi.Receive keeps running and would take the next message on
		// (source, tag), so nothing may be received after this
		c.stale.Store(true)
		return nil, ctx.Err()
	}
}

// Abort ends the process. Peers blocked on this rank see their connections
// drop and abort in turn.
func (c *Comm) Abort(err error) {
	log.Error().Err(err).Int("rank", c.rank).Msg("aborting run")
	mpi.Finalize()
	os.Exit(1)
}
