package netcomm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/meshdist/comm"
)

var _ comm.Communicator = (*Comm)(nil)

func TestCallsBeforeTheWire(t *testing.T) {
	c := &Comm{rank: 0, size: 2}
	ctx := context.Background()

	_, err := c.Recv(ctx, 2, 1)
	assert.ErrorIs(t, err, comm.ErrRankRange)
	assert.ErrorIs(t, c.Send(ctx, -1, 1, nil), comm.ErrRankRange)

	done, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.Recv(done, 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, c.Send(done, 1, 1, nil), context.Canceled)
	assert.False(t, c.stale.Load())

	// an interrupted receive still holds (source, tag)
	c.stale.Store(true)
	_, err = c.Recv(ctx, 1, 1)
	assert.ErrorIs(t, err, comm.ErrAborted)
	assert.ErrorIs(t, c.Send(ctx, 1, 1, []byte{1}), comm.ErrAborted)
}
