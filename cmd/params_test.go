package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshdist/partition"
	"github.com/notargets/meshdist/partition/metis"
)

func TestRunParametersParse(t *testing.T) {
	fileInput := []byte(`
Title: Test Case
Ranks: 3
Partitioner: metis
Objective: vol
Imbalance: 1.1
Verify: true
Export: out.db
`)
	input := NewRunParameters()
	require.NoError(t, input.Parse(fileInput))
	assert.Equal(t, "Test Case", input.Title)
	assert.Equal(t, 3, input.Ranks)
	assert.Equal(t, float32(1.1), input.Imbalance)
	assert.True(t, input.Verify)
	assert.False(t, input.Dump)
	assert.Equal(t, "out.db", input.Export)

	svc, err := input.Service()
	require.NoError(t, err)
	ms, ok := svc.(*metis.Service)
	require.True(t, ok)
	assert.Equal(t, "vol", ms.Config.Objective)

	var buf bytes.Buffer
	input.Print(&buf)
	assert.Contains(t, buf.String(), "= Objective")
}

func TestRunParametersExample(t *testing.T) {
	rp := NewRunParameters()
	require.NoError(t, rp.Parse([]byte(exampleParameters)))
	assert.NoError(t, rp.Validate())
	assert.Equal(t, 4, rp.Ranks)
}

func TestRunParametersDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Title: defaults\n"), 0o644))
	rp, err := ReadRunParameters(path)
	require.NoError(t, err)
	assert.Equal(t, 1, rp.Ranks)
	assert.Equal(t, float32(1.05), rp.Imbalance)
	svc, err := rp.Service()
	require.NoError(t, err)
	assert.Equal(t, partition.Identity{}, svc)

	_, err = ReadRunParameters(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRunParametersValidate(t *testing.T) {
	for _, rp := range []*RunParameters{
		{Ranks: 0},
		{Ranks: 2, Partitioner: "scotch"},
		{Ranks: 2, Partitioner: "metis", Objective: "edges"},
	} {
		assert.Error(t, rp.Validate(), "%+v", rp)
	}
	graph := &RunParameters{Ranks: 2, Partitioner: "GraphGrow"}
	require.NoError(t, graph.Validate())
	svc, _ := graph.Service()
	assert.Equal(t, "graphgrow", svc.Name())
}
