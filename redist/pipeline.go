// Package redist is the mesh redistribution pipeline. Starting from a naive
// contiguous split of a triangle mesh over the ranks of a communicator, it
// partitions the elements, moves them to their new owners, assigns every
// vertex one owner and moves the vertices, renumbering elements and vertices
// so each rank owns a contiguous range of both.
//
// Every phase is collective and ends in a barrier. Any error is fatal for the
// whole group: Run aborts the communicator before returning it.
package redist

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/mesh"
	"github.com/notargets/meshdist/partition"
)

// Options configure a pipeline run. Every rank must pass equivalent options.
type Options struct {
	Partitioner partition.Service
	// Analyze logs partition quality statistics on root
	Analyze bool
	// Verify checks the result, against the input mesh on root
	Verify bool
	// Dump, when set, receives rank ordered listings after each phase; only
	// root writes to it
	Dump io.Writer
	// Counter adds hardware counts to the phase events
	Counter Counter
	// Keep returns the final GridData instead of tearing it down
	Keep bool
	// Gather collects the final mesh on root in the result
	Gather bool
}

// Result is what a run leaves behind
type Result struct {
	// Events holds phase costs; on root they are the maxima over ranks
	Events *Events
	// Stats is the partition quality, on root, when Options.Analyze is set
	Stats *partition.Stats
	// Snapshot is the redistributed mesh, on root, when Options.Gather is set
	Snapshot *Snapshot
	// Grid is this rank's final data when Options.Keep is set
	Grid *mesh.GridData
}

// Run distributes m from root and drives the pipeline: Partition Elements,
// Move Elements, Partition Vertices, Move Vertices, Teardown. Only root
// reads m.
func Run(ctx context.Context, c comm.Communicator, m *mesh.Mesh, opts Options) (res *Result, err error) {
	defer func() {
		if err != nil {
			c.Abort(err)
		}
	}()
	var (
		logger = comm.Logger(c)
		ev     = NewEvents(opts.Counter)
		g      *mesh.GridData
		svc    = opts.Partitioner
	)
	if svc == nil {
		svc = partition.Identity{}
	}
	res = &Result{}

	if err = ev.Time(EventRead, func() (err error) {
		g, err = mesh.Distribute(ctx, c, comm.Root, m)
		return
	}); err != nil {
		return nil, err
	}
	logPhase(logger, ev, g)

	adj := g.Adj
	if err = ev.Time(EventPartitionElements, func() error {
		return PartitionElements(ctx, c, g, svc)
	}); err != nil {
		return nil, err
	}
	logPhase(logger, ev, g)
	if opts.Analyze {
		graph := partition.Graph{NumGlobal: g.NEle, FirstRow: g.FirstEle, Adj: adj}
		if res.Stats, err = partition.Analyze(ctx, c, graph, g.Destinations); err != nil {
			return nil, err
		}
		if res.Stats != nil {
			res.Stats.Log(logger)
		}
	}

	if err = ev.Time(EventMoveElements, func() error {
		return MoveElements(ctx, c, g)
	}); err != nil {
		return nil, err
	}
	logPhase(logger, ev, g)
	if opts.Dump != nil {
		if err = DumpElements(ctx, c, opts.Dump, "Elements after move (old vertex numbering)", g); err != nil {
			return nil, err
		}
	}

	if err = ev.Time(EventPartitionVertices, func() error {
		return PartitionVertices(ctx, c, g)
	}); err != nil {
		return nil, err
	}
	logPhase(logger, ev, g)
	if opts.Dump != nil {
		if err = DumpOwnership(ctx, c, opts.Dump, g); err != nil {
			return nil, err
		}
	}

	if err = ev.Time(EventMoveVertices, func() error {
		return MoveVertices(ctx, c, g)
	}); err != nil {
		return nil, err
	}
	logPhase(logger, ev, g)
	if opts.Dump != nil {
		if err = DumpElements(ctx, c, opts.Dump, "Elements in the new vertex numbering", g); err != nil {
			return nil, err
		}
		if err = DumpVertices(ctx, c, opts.Dump, "Vertices in the new numbering", g); err != nil {
			return nil, err
		}
	}

	if opts.Verify {
		var orig *mesh.Mesh
		if c.Rank() == comm.Root {
			orig = m
		}
		if err = Verify(ctx, c, g, orig); err != nil {
			return nil, err
		}
		logger.Info().Msg("redistributed mesh verified")
	}
	if opts.Gather {
		if res.Snapshot, err = Gather(ctx, c, g); err != nil {
			return nil, err
		}
	}
	if res.Events, err = ev.Reduce(ctx, c); err != nil {
		return nil, err
	}
	if res.Events == nil {
		res.Events = ev
	}

	if opts.Keep {
		res.Grid = g
	} else {
		Destroy(g)
	}
	return res, nil
}

func logPhase(logger zerolog.Logger, ev *Events, g *mesh.GridData) {
	last := ev.Phases[len(ev.Phases)-1]
	logger.Info().Str("phase", last.Name).Dur("duration", last.Duration).
		Int("local_elements", g.LocalEle()).Int("local_vertices", g.LocalVert()).Msg("phase complete")
}
