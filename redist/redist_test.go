package redist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/mesh"
	"github.com/notargets/meshdist/partition"
)

// phaseResult captures one rank's state between phases
type phaseResult struct {
	movedElements []int // after Move Elements, old vertex numbering
	firstEle      int
	owned         []int // after Partition Vertices
	final         *mesh.GridData
}

// runPhases drives the phases one by one so tests can look between them
func runPhases(t *testing.T, m *mesh.Mesh, size int, svc partition.Service) []phaseResult {
	t.Helper()
	w, err := comm.NewWorld(size)
	require.NoError(t, err)
	var (
		mu  sync.Mutex
		out = make([]phaseResult, size)
	)
	err = w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		g := mesh.Local(m, size, c.Rank())
		var res phaseResult
		if err := PartitionElements(ctx, c, g, svc); err != nil {
			return err
		}
		if err := MoveElements(ctx, c, g); err != nil {
			return err
		}
		res.movedElements = append([]int(nil), g.Elements...)
		res.firstEle = g.FirstEle
		if err := PartitionVertices(ctx, c, g); err != nil {
			return err
		}
		res.owned = append([]int(nil), g.Owned...)
		if err := MoveVertices(ctx, c, g); err != nil {
			return err
		}
		if err := Verify(ctx, c, g, m); err != nil {
			return err
		}
		res.final = g
		mu.Lock()
		out[c.Rank()] = res
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestScenarioTwoTriangles(t *testing.T) {
	m := mesh.TwoTriangleMesh()
	// element 0 to rank 0, element 1 to rank 1
	res := runPhases(t, m, 2, partition.Fixed(func(id int) int { return id }))
	assert.Equal(t, []int{0, 1, 2}, res[0].movedElements)
	assert.Equal(t, []int{1, 2, 3}, res[1].movedElements)
	// quota 2: rank 0 takes the first two references of its element
	assert.Equal(t, []int{0, 1}, res[0].owned)
	assert.Equal(t, []int{2, 3}, res[1].owned)
	assert.Equal(t, []int{0, 1, 2}, res[0].final.Elements)
	assert.Equal(t, []int{1, 2, 3}, res[1].final.Elements)
	assert.Equal(t, []float64{0, 0, 1, 0}, res[0].final.Vertices)
	assert.Equal(t, []float64{0, 1, 1, 1}, res[1].final.Vertices)
}

func TestScenarioTwoTrianglesSwapped(t *testing.T) {
	m := mesh.TwoTriangleMesh()
	res := runPhases(t, m, 2, partition.Fixed(func(id int) int { return 1 - id }))
	assert.Equal(t, []int{1, 2, 3}, res[0].movedElements)
	assert.Equal(t, []int{0, 1, 2}, res[1].movedElements)
	assert.Equal(t, []int{1, 2}, res[0].owned)
	assert.Equal(t, []int{0, 3}, res[1].owned)
	// new numbering 1->0 2->1 0->2 3->3
	assert.Equal(t, []int{0, 1, 3}, res[0].final.Elements)
	assert.Equal(t, []int{2, 0, 1}, res[1].final.Elements)
	assert.Equal(t, []float64{1, 0, 0, 1}, res[0].final.Vertices)
	assert.Equal(t, []float64{0, 0, 1, 1}, res[1].final.Vertices)
	assert.Equal(t, 0, res[0].final.FirstVert)
	assert.Equal(t, 2, res[1].final.FirstVert)
}

func TestScenarioLastRankCatchAll(t *testing.T) {
	// 5x2 vertices, 8 triangles
	m, err := mesh.RectangleMesh(4, 1)
	require.NoError(t, err)
	require.Equal(t, 10, m.NVert)
	res := runPhases(t, m, 3, partition.Identity{})

	assert.Equal(t, 3, Quota(m.NVert, 3))
	assert.Equal(t, []int{0, 1, 6}, res[0].owned)
	assert.Equal(t, []int{7, 2, 3}, res[1].owned)
	assert.Equal(t, []int{4, 5, 8, 9}, res[2].owned)
	for r := 0; r < 2; r++ {
		assert.LessOrEqual(t, len(res[r].owned), 3)
	}
	assert.Equal(t, m.NVert-len(res[0].owned)-len(res[1].owned), len(res[2].owned))
}

func TestScenarioIdentityPartitionStillRenumbers(t *testing.T) {
	m, err := mesh.RectangleMesh(3, 3)
	require.NoError(t, err)
	const size = 4
	res := runPhases(t, m, size, partition.Identity{})
	for r := 0; r < size; r++ {
		local := mesh.Local(m, size, r)
		assert.Equal(t, local.Elements, res[r].movedElements, "rank %d", r)
		assert.Equal(t, local.FirstEle, res[r].firstEle, "rank %d", r)
	}
}

func TestQuotaZeroClaimsNothing(t *testing.T) {
	// 4 vertices over 6 ranks: quota 0, the last rank owns everything
	m := mesh.TwoTriangleMesh()
	res := runPhases(t, m, 6, partition.Identity{})
	for r := 0; r < 5; r++ {
		assert.Empty(t, res[r].owned, "rank %d", r)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, res[5].owned)
}

// TestRandomPartitions checks conservation, bijection, exclusive ownership
// and reference consistency over random assignments
func TestRandomPartitions(t *testing.T) {
	m, err := mesh.RectangleMesh(7, 5)
	require.NoError(t, err)
	for _, size := range []int{1, 2, 3, 5, 8} {
		for seed := int64(1); seed <= 3; seed++ {
			t.Run(fmt.Sprintf("size=%d/seed=%d", size, seed), func(t *testing.T) {
				rng := rand.New(rand.NewSource(seed))
				assign := make([]int, m.NEle)
				for i := range assign {
					assign[i] = rng.Intn(size)
				}
				res := runPhases(t, m, size, partition.Fixed(func(id int) int { return assign[id] }))

				// conservation and contiguity
				nEle, nVert := 0, 0
				for r, pr := range res {
					assert.Equal(t, nEle, pr.final.FirstEle, "rank %d", r)
					assert.Equal(t, nVert, pr.final.FirstVert, "rank %d", r)
					nEle += pr.final.LocalEle()
					nVert += pr.final.LocalVert()
				}
				assert.Equal(t, m.NEle, nEle)
				assert.Equal(t, m.NVert, nVert)

				// each element went where it was sent
				for r, pr := range res {
					want := 0
					for _, a := range assign {
						if a == r {
							want++
						}
					}
					assert.Equal(t, want, pr.final.LocalEle(), "rank %d", r)
				}

				// exhaustive, exclusive ownership
				var all []int
				for r, pr := range res {
					if r < size-1 {
						assert.LessOrEqual(t, len(pr.owned), Quota(m.NVert, size))
					}
					all = append(all, pr.owned...)
				}
				sort.Ints(all)
				require.Len(t, all, m.NVert)
				for i, v := range all {
					assert.Equal(t, i, v)
				}

				// every reference resolves to the vertex it named before
				coords := make([]float64, 0, 2*m.NVert)
				for _, pr := range res {
					coords = append(coords, pr.final.Vertices...)
				}
				for _, pr := range res {
					for i, v := range pr.final.Elements {
						old := pr.movedElements[i]
						assert.Equal(t, m.Vertex(old), [2]float64{coords[2*v], coords[2*v+1]})
					}
				}
			})
		}
	}
}

func TestRunPipeline(t *testing.T) {
	m, err := mesh.RectangleMesh(6, 4)
	require.NoError(t, err)
	const size = 3
	w, err := comm.NewWorld(size)
	require.NoError(t, err)
	var (
		dump bytes.Buffer
		root *Result
	)
	err = w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		var in *mesh.Mesh
		if c.Rank() == comm.Root {
			in = m
		}
		res, err := Run(ctx, c, in, Options{
			Partitioner: partition.GraphGrowing{},
			Analyze:     true,
			Verify:      true,
			Gather:      true,
			Dump:        &dump,
			Counter:     func(f func() error) (uint64, error) { return 42, f() },
		})
		if err != nil {
			return err
		}
		if res.Grid != nil {
			return fmt.Errorf("grid kept without Keep")
		}
		if c.Rank() == comm.Root {
			root = res
		}
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, root)

	require.NotNil(t, root.Stats)
	assert.Equal(t, []int{16, 16, 16}, root.Stats.Elements)

	require.NotNil(t, root.Snapshot)
	assert.Equal(t, m.NEle, root.Snapshot.Mesh.NEle)
	assert.Len(t, root.Snapshot.EleRank, m.NEle)
	assert.Len(t, root.Snapshot.VertRank, m.NVert)
	assert.True(t, sort.IntsAreSorted(root.Snapshot.EleRank))

	names := make([]string, 0, len(root.Events.Phases))
	for _, ev := range root.Events.Phases {
		names = append(names, ev.Name)
		assert.Equal(t, uint64(42), ev.Instructions)
	}
	assert.Equal(t, []string{EventRead, EventPartitionElements, EventMoveElements,
		EventPartitionVertices, EventMoveVertices}, names)
	var table bytes.Buffer
	require.NoError(t, root.Events.Fprint(&table))
	assert.Contains(t, table.String(), EventMoveVertices)

	out := dump.String()
	assert.Contains(t, out, "Elements after move (old vertex numbering)")
	assert.Contains(t, out, "Vertices owned by each rank")
	assert.Contains(t, out, "[2] ")
}

func TestRunKeep(t *testing.T) {
	m := mesh.TwoTriangleMesh()
	w, err := comm.NewWorld(2)
	require.NoError(t, err)
	grids := make([]*mesh.GridData, 2)
	err = w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		res, err := Run(ctx, c, m, Options{Keep: true})
		if err != nil {
			return err
		}
		grids[c.Rank()] = res.Grid
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, grids[0].LocalEle())
	assert.Equal(t, 2, grids[1].LocalVert())
}

type badPartitioner struct{ rank, dest int }

func (badPartitioner) Name() string { return "bad" }

func (b badPartitioner) Partition(_ context.Context, c comm.Communicator, g partition.Graph) ([]int, error) {
	dest := make([]int, g.NumRows())
	if c.Rank() == b.rank {
		for i := range dest {
			dest[i] = b.dest
		}
	}
	return dest, nil
}

type failingPartitioner struct{}

func (failingPartitioner) Name() string { return "failing" }

func (failingPartitioner) Partition(context.Context, comm.Communicator, partition.Graph) ([]int, error) {
	return nil, errors.New("library unavailable")
}

func TestInvalidAssignmentAbortsAllRanks(t *testing.T) {
	m, err := mesh.RectangleMesh(3, 2)
	require.NoError(t, err)
	for _, svc := range []partition.Service{badPartitioner{rank: 1, dest: 3}, badPartitioner{rank: 2, dest: -1}, failingPartitioner{}} {
		t.Run(svc.Name(), func(t *testing.T) {
			w, err := comm.NewWorld(3)
			require.NoError(t, err)
			done := make(chan error, 1)
			go func() {
				done <- w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
					_, err := Run(ctx, c, m, Options{Partitioner: svc})
					return err
				})
			}()
			select {
			case err := <-done:
				assert.ErrorIs(t, err, ErrPartitioner)
			case <-time.After(5 * time.Second):
				t.Fatal("ranks were left blocked")
			}
		})
	}
}

func TestMoveElementsCountMismatch(t *testing.T) {
	w, err := comm.NewWorld(1)
	require.NoError(t, err)
	g := &mesh.GridData{NEle: 3, Elements: []int{0, 1, 2}, Destinations: []int{0}}
	err = MoveElements(context.Background(), w.Comm(0), g)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestMoveVerticesRejectsBadOwnership(t *testing.T) {
	w, err := comm.NewWorld(1)
	require.NoError(t, err)
	g := &mesh.GridData{NVert: 3, Vertices: make([]float64, 6), Owned: []int{0, 0, 1}, Elements: []int{0, 1, 2}}
	err = MoveVertices(context.Background(), w.Comm(0), g)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestPartitionVerticesRejectsBadMask(t *testing.T) {
	w, err := comm.NewWorld(2)
	require.NoError(t, err)
	err = w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		if c.Rank() == 0 {
			return c.Send(ctx, 1, tagOwnership, []byte{1, 2, 3})
		}
		return PartitionVertices(ctx, c, &mesh.GridData{NVert: 4})
	})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDestroy(t *testing.T) {
	g := mesh.Local(mesh.TwoTriangleMesh(), 1, 0)
	Destroy(g)
	assert.Nil(t, g.Elements)
	assert.Nil(t, g.Vertices)
	assert.Nil(t, g.Adj)
	assert.Zero(t, g.NVert)
}

func TestEventsReduce(t *testing.T) {
	w, err := comm.NewWorld(3)
	require.NoError(t, err)
	var root *Events
	err = w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		ev := NewEvents(nil)
		ev.Phases = []Event{{Name: "a", Duration: time.Duration(c.Rank()+1) * time.Millisecond}}
		red, err := ev.Reduce(ctx, c)
		if c.Rank() == comm.Root {
			root = red
		} else if red != nil {
			return fmt.Errorf("non-root got events")
		}
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Millisecond, root.Phases[0].Duration)
	assert.Equal(t, 3*time.Millisecond, root.Total())
}

func TestSameMesh(t *testing.T) {
	m := mesh.TwoTriangleMesh()
	assert.NoError(t, sameMesh(m, m))
	bad := &mesh.Mesh{NVert: 4, NEle: 2, Coords: m.Coords, Elements: []int{0, 1, 3, 1, 2, 3}}
	assert.ErrorIs(t, sameMesh(m, bad), ErrInvariant)
	moved := &mesh.Mesh{NVert: 4, NEle: 2, Coords: []float64{0, 0, 1, 0, 0, 1, 2, 2}, Elements: m.Elements}
	assert.ErrorIs(t, sameMesh(m, moved), ErrInvariant)

	// coincident vertices may trade places
	slit := &mesh.Mesh{NVert: 5, NEle: 2, Coords: []float64{0, 0, 1, 0, 0, 1, 1, 1, 1, 0},
		Elements: []int{0, 1, 2, 2, 4, 3}}
	swapped := &mesh.Mesh{NVert: 5, NEle: 2, Coords: slit.Coords, Elements: []int{0, 4, 2, 2, 1, 3}}
	assert.NoError(t, sameMesh(slit, slit))
	assert.NoError(t, sameMesh(slit, swapped))
	merged := &mesh.Mesh{NVert: 5, NEle: 2, Coords: []float64{0, 0, 1, 0, 0, 1, 1, 1, 0, 0},
		Elements: slit.Elements}
	assert.ErrorIs(t, sameMesh(slit, merged), ErrInvariant)
}

func TestVerifySlitMesh(t *testing.T) {
	// vertices 1 and 4 coincide; the triangles only touch at vertex 2
	m, err := mesh.NewMesh("slit", []float64{0, 0, 1, 0, 0, 1, 1, 1, 1, 0}, []int{0, 1, 2, 2, 4, 3})
	require.NoError(t, err)
	for _, svc := range []partition.Service{partition.Identity{}, partition.GraphGrowing{}} {
		t.Run(svc.Name(), func(t *testing.T) {
			w, err := comm.NewWorld(2)
			require.NoError(t, err)
			err = w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
				_, err := Run(ctx, c, m, Options{Partitioner: svc, Verify: true})
				return err
			})
			require.NoError(t, err)
		})
	}
}

func TestVerifyFailsOnEveryRank(t *testing.T) {
	m, err := mesh.RectangleMesh(3, 2)
	require.NoError(t, err)
	const size = 3
	for name, spoil := range map[string]func(g *mesh.GridData){
		"bad reference":   func(g *mesh.GridData) { g.Elements[0] = g.NVert },
		"gap in vertices": func(g *mesh.GridData) { g.FirstVert++ },
	} {
		t.Run(name, func(t *testing.T) {
			w, err := comm.NewWorld(size)
			require.NoError(t, err)
			errs := make([]error, size)
			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
					g := mesh.Local(m, size, c.Rank())
					if c.Rank() == size-1 {
						spoil(g)
					}
					errs[c.Rank()] = Verify(ctx, c, g, m)
					return nil
				})
			}()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("ranks were left blocked")
			}
			for r, err := range errs {
				assert.ErrorIs(t, err, ErrInvariant, "rank %d", r)
			}
		})
	}
}
