package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshdist/mesh"
	"github.com/notargets/meshdist/redist"
)

func snapshot() *redist.Snapshot {
	m := mesh.TwoTriangleMesh()
	return &redist.Snapshot{
		Mesh:     &mesh.Mesh{Title: m.Title, NVert: m.NVert, NEle: m.NEle, Coords: m.Coords, Elements: m.Elements},
		EleRank:  []int{0, 1},
		VertRank: []int{0, 0, 1, 1},
	}
}

func TestWriteRead(t *testing.T) {
	ctx := context.Background()
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	s := snapshot()
	require.NoError(t, Write(ctx, db, s))
	// a second write replaces the first
	require.NoError(t, Write(ctx, db, s))

	got, err := Read(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, s.Mesh.Coords, got.Mesh.Coords)
	assert.Equal(t, s.Mesh.Elements, got.Mesh.Elements)
	assert.Equal(t, s.EleRank, got.EleRank)
	assert.Equal(t, s.VertRank, got.VertRank)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM elements WHERE rank = 1`).Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, db.QueryRowContext(ctx, `SELECT ranks FROM mesh`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.db")
	require.NoError(t, SQLite(context.Background(), path, snapshot()))

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := Read(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Mesh.NVert)
}

func TestWriteRejectsShortRanks(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	s := snapshot()
	s.VertRank = s.VertRank[:2]
	assert.Error(t, Write(context.Background(), db, s))
}
