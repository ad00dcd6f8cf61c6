package redist

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/mesh"
)

// syncPrint gathers each rank's text on root and writes it in rank order
// under a title
func syncPrint(ctx context.Context, c comm.Communicator, w io.Writer, title string, body func(sb *strings.Builder)) error {
	var sb strings.Builder
	body(&sb)
	all, err := comm.Gather(ctx, c, comm.Root, []byte(sb.String()))
	if err != nil || c.Rank() != comm.Root {
		return err
	}
	if _, err = fmt.Fprintf(w, "%s\n", title); err != nil {
		return err
	}
	for r, text := range all {
		if _, err = fmt.Fprintf(w, "[%d] %s", r, text); err != nil {
			return err
		}
	}
	return nil
}

// DumpElements lists each rank's elements by global id with their vertex
// references in the current epoch
func DumpElements(ctx context.Context, c comm.Communicator, w io.Writer, title string, g *mesh.GridData) error {
	return syncPrint(ctx, c, w, title, func(sb *strings.Builder) {
		fmt.Fprintf(sb, "%d elements\n", g.LocalEle())
		for k := 0; k < g.LocalEle(); k++ {
			e := g.Element(k)
			fmt.Fprintf(sb, "    %d %d %d %d\n", g.FirstEle+k, e[0], e[1], e[2])
		}
	})
}

// DumpOwnership lists the old vertex ids each rank claimed, in claim order
func DumpOwnership(ctx context.Context, c comm.Communicator, w io.Writer, g *mesh.GridData) error {
	return syncPrint(ctx, c, w, "Vertices owned by each rank (old numbering)", func(sb *strings.Builder) {
		fmt.Fprintf(sb, "%d vertices:", len(g.Owned))
		for _, v := range g.Owned {
			fmt.Fprintf(sb, " %d", v)
		}
		sb.WriteString("\n")
	})
}

// DumpVertices lists each rank's vertex coordinates by global id
func DumpVertices(ctx context.Context, c comm.Communicator, w io.Writer, title string, g *mesh.GridData) error {
	return syncPrint(ctx, c, w, title, func(sb *strings.Builder) {
		fmt.Fprintf(sb, "%d vertices\n", g.LocalVert())
		for v := 0; v < g.LocalVert(); v++ {
			fmt.Fprintf(sb, "    %d %g %g\n", g.FirstVert+v, g.Vertices[2*v], g.Vertices[2*v+1])
		}
	})
}
