// Package comm provides the message passing layer used by every collective
// phase of the redistribution pipeline. A Communicator is the view one rank has
// of a fixed-size group; all coordination between ranks goes through byte
// messages, so no memory is ever shared between ranks.
package comm

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Root is the rank 0 node, it drives input and collects output
const Root = 0

var (
	// ErrAborted is returned from any blocking call once some rank aborted the group
	ErrAborted = errors.New("communicator aborted")
	// ErrProtocol reports a message whose size or shape disagrees with what the receiver expects
	ErrProtocol = errors.New("protocol error")
	// ErrRankRange reports a peer rank outside [0, Size)
	ErrRankRange = errors.New("rank out of range")
)

// Communicator is one rank's handle on a group of cooperating ranks.
//
// Send and Recv are point to point. Messages between a given (source,
// destination, tag) triple are delivered in order. Recv blocks until a message
// arrives, ctx is done, or the group is aborted.
type Communicator interface {
	Rank() int
	Size() int
	Send(ctx context.Context, dest, tag int, data []byte) error
	Recv(ctx context.Context, source, tag int) ([]byte, error)
	// Abort tears down the whole group; every rank blocked in the
	// communicator observes ErrAborted wrapped with err.
	Abort(err error)
}

// Logger returns a child of the global logger tagged with the rank
func Logger(c Communicator) zerolog.Logger {
	return log.With().Int("rank", c.Rank()).Int("size", c.Size()).Logger()
}

func checkPeer(c Communicator, peer int) error {
	if peer < 0 || peer >= c.Size() {
		return fmtRankErr(peer, c.Size())
	}
	return nil
}
