package redist

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/notargets/meshdist/comm"
)

// Phase names, in pipeline order
const (
	EventRead              = "Read data"
	EventPartitionElements = "Partition elements"
	EventMoveElements      = "Move elements"
	EventPartitionVertices = "Partition vertices"
	EventMoveVertices      = "Move vertices"
)

// Counter runs f and reports a hardware count for it, such as retired
// instructions
type Counter func(f func() error) (uint64, error)

// Event is the cost of one phase on one rank, or the maximum over ranks
// once reduced
type Event struct {
	Name         string
	Duration     time.Duration
	Instructions uint64
}

// Events records phase costs in the order the phases ran
type Events struct {
	Phases  []Event
	counter Counter
}

func NewEvents(counter Counter) *Events {
	return &Events{counter: counter}
}

// Time runs f as the phase name and records its wall time, plus its
// instruction count when a counter is set
func (e *Events) Time(name string, f func() error) error {
	var (
		ev    = Event{Name: name}
		start = time.Now()
		err   error
	)
	if e.counter != nil {
		ev.Instructions, err = e.counter(f)
	} else {
		err = f()
	}
	ev.Duration = time.Since(start)
	e.Phases = append(e.Phases, ev)
	return err
}

// Reduce returns, on root, the per phase maximum over all ranks. Other
// ranks get nil. Every rank must have recorded the same phases.
func (e *Events) Reduce(ctx context.Context, c comm.Communicator) (*Events, error) {
	vals := make([]int, 0, 2*len(e.Phases))
	for _, ev := range e.Phases {
		vals = append(vals, int(ev.Duration), int(ev.Instructions))
	}
	all, err := comm.GatherSlices(ctx, c, comm.Root, vals)
	if err != nil || c.Rank() != comm.Root {
		return nil, err
	}
	out := &Events{Phases: append([]Event(nil), e.Phases...)}
	for r, rv := range all {
		if len(rv) != len(vals) {
			return nil, fmt.Errorf("%w: rank %d recorded %d event values, root %d", ErrProtocol, r, len(rv), len(vals))
		}
		for i := range out.Phases {
			out.Phases[i].Duration = max(out.Phases[i].Duration, time.Duration(rv[2*i]))
			out.Phases[i].Instructions = max(out.Phases[i].Instructions, uint64(rv[2*i+1]))
		}
	}
	return out, nil
}

// Total is the summed duration of all phases
func (e *Events) Total() (total time.Duration) {
	for _, ev := range e.Phases {
		total += ev.Duration
	}
	return
}

// Fprint writes the event summary table
func (e *Events) Fprint(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Event\tMax time\tMax instructions\t")
	for _, ev := range e.Phases {
		ins := "-"
		if ev.Instructions > 0 {
			ins = fmt.Sprintf("%d", ev.Instructions)
		}
		fmt.Fprintf(tw, "%s\t%v\t%s\t\n", ev.Name, ev.Duration.Round(time.Microsecond), ins)
	}
	fmt.Fprintf(tw, "Total\t%v\t\t\n", e.Total().Round(time.Microsecond))
	return tw.Flush()
}
