package dag

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pagegrid/internal/config"
)

func task(taskType, name string, dependsOn ...string) *config.Task {
	return &config.Task{Type: taskType, Name: name, Arguments: hcl.EmptyBody(), DependsOn: dependsOn}
}

func graphOf(t *testing.T, ids ...string) *Graph {
	t.Helper()
	g := New()
	for _, id := range ids {
		_, err := g.AddNode(task("t", id))
		require.NoError(t, err)
	}
	return g
}

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.Nodes)
	assert.Empty(t, g.Nodes)
}

func TestAddNode(t *testing.T) {
	g := New()

	nodeA, err := g.AddNode(task("clean", "a"))
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 1)
	assert.Equal(t, "clean.a", nodeA.ID)
	assert.Same(t, nodeA, g.Nodes["clean.a"])
	assert.NotNil(t, nodeA.Deps)
	assert.NotNil(t, nodeA.Dependents)
	assert.Equal(t, Pending, nodeA.GetState())

	_, err = g.AddNode(task("clean", "a"))
	assert.ErrorContains(t, err, "duplicate task 'clean.a'")
	assert.Len(t, g.Nodes, 1)
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := graphOf(t, "a", "b")

		require.NoError(t, g.AddEdge("t.a", "t.b")) // b depends on a
		require.NoError(t, g.AddEdge("t.a", "t.b"))

		deps, err := g.Dependencies("t.b")
		require.NoError(t, err)
		assert.Equal(t, []string{"t.a"}, deps)
		dependents, err := g.Dependents("t.a")
		require.NoError(t, err)
		assert.Equal(t, []string{"t.b"}, dependents)
	})

	t.Run("error cases", func(t *testing.T) {
		g := graphOf(t, "a", "b")

		assert.ErrorContains(t, g.AddEdge("t.dne", "t.a"), "source node not found")
		assert.ErrorContains(t, g.AddEdge("t.a", "t.dne"), "destination node not found")
		assert.ErrorContains(t, g.AddEdge("t.a", "t.a"), "cannot depend on itself")

		_, err := g.Dependencies("t.dne")
		assert.Error(t, err)
	})
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		assert.NoError(t, New().DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := graphOf(t, "a", "b", "c", "d")
		require.NoError(t, g.AddEdge("t.a", "t.b"))
		require.NoError(t, g.AddEdge("t.b", "t.c"))
		require.NoError(t, g.AddEdge("t.a", "t.c")) // Transitive edge
		require.NoError(t, g.AddEdge("t.c", "t.d"))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("direct cycle is detected", func(t *testing.T) {
		g := graphOf(t, "a", "b")
		require.NoError(t, g.AddEdge("t.a", "t.b"))
		require.NoError(t, g.AddEdge("t.b", "t.a"))
		assert.ErrorContains(t, g.DetectCycles(), "cycle detected")
	})

	t.Run("longer cycle is detected", func(t *testing.T) {
		g := graphOf(t, "a", "b", "c", "d")
		require.NoError(t, g.AddEdge("t.a", "t.b"))
		require.NoError(t, g.AddEdge("t.b", "t.c"))
		require.NoError(t, g.AddEdge("t.c", "t.d"))
		require.NoError(t, g.AddEdge("t.d", "t.a"))
		assert.ErrorContains(t, g.DetectCycles(), "cycle detected involving task 't.a'")
	})
}

func TestIDsAreSorted(t *testing.T) {
	g := graphOf(t, "c", "a", "b")
	assert.Equal(t, []string{"t.a", "t.b", "t.c"}, g.IDs())
}
