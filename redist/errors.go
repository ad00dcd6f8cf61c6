package redist

import (
	"errors"
	"fmt"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/scatter"
)

var (
	// ErrInvariant reports counts or numberings that break conservation or
	// bijectivity; it points at a bug, not at bad input
	ErrInvariant = errors.New("invariant violated")
	// ErrPartitioner reports a partitioner failure or an invalid assignment
	ErrPartitioner = errors.New("partitioner failed")
	// ErrProtocol is the communicator's message shape error
	ErrProtocol = comm.ErrProtocol
)

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

// indexInvariant tags scatter index failures as invariant violations
func indexInvariant(what string, err error) error {
	if errors.Is(err, scatter.ErrIndex) {
		return fmt.Errorf("%w: %s: %w", ErrInvariant, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
