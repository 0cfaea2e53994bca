package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindCycle(t *testing.T) {
	tests := []struct {
		name      string
		graph     Graph
		root      string
		wantCycle []string
	}{
		{
			name:      "three node cycle",
			graph:     Graph{"a": {"b"}, "b": {"c"}, "c": {"a"}},
			root:      "a",
			wantCycle: []string{"a", "b", "c", "a"},
		},
		{
			name:      "acyclic chain",
			graph:     Graph{"a": {"b"}, "b": {"c"}, "c": nil},
			root:      "a",
			wantCycle: nil,
		},
		{
			name:      "cycle not through root",
			graph:     Graph{"a": {"b"}, "b": {"c"}, "c": {"b"}},
			root:      "a",
			wantCycle: []string{"b", "c", "b"},
		},
		{
			name:      "diamond is not a cycle",
			graph:     Graph{"a": {"b", "c"}, "b": {"d"}, "c": {"d"}, "d": nil},
			root:      "a",
			wantCycle: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycle, reached := FindCycle(tt.graph, tt.root, nil)
			assert.Equal(t, tt.wantCycle, cycle)
			assert.Contains(t, reached, tt.root)
		})
	}
}

func TestFindCycle_DoesNotModifyInputs(t *testing.T) {
	g := Graph{"a": {"b"}, "b": {"a"}}
	done := map[string]bool{"z": true}

	FindCycle(g, "a", done)

	assert.Equal(t, map[string]bool{"z": true}, done)
	assert.Equal(t, Graph{"a": {"b"}, "b": {"a"}}, g)
}

func TestFindCycle_SkipsDoneNodes(t *testing.T) {
	g := Graph{"a": {"b"}, "b": {"a"}}
	cycle, _ := FindCycle(g, "a", map[string]bool{"b": true})
	assert.Nil(t, cycle)

	cycle, reached := FindCycle(g, "a", map[string]bool{"a": true})
	assert.Nil(t, cycle)
	assert.Nil(t, reached)
}

func TestCycles(t *testing.T) {
	t.Run("single cycle reported once", func(t *testing.T) {
		g := Graph{"a": {"b"}, "b": {"c"}, "c": {"a"}}
		assert.Equal(t, [][]string{{"a", "b", "c", "a"}}, Cycles(g))
	})

	t.Run("disjoint cycles each reported", func(t *testing.T) {
		g := Graph{
			"a": {"b"}, "b": {"a"},
			"x": {"y"}, "y": {"x"},
		}
		assert.Equal(t, [][]string{{"a", "b", "a"}, {"x", "y", "x"}}, Cycles(g))
	})

	t.Run("no cycles", func(t *testing.T) {
		g := Graph{"a": {"b"}, "b": {"c"}, "c": nil}
		assert.Empty(t, Cycles(g))
	})
}

func TestFormatCycle(t *testing.T) {
	assert.Equal(t, "a -> b -> a", FormatCycle([]string{"a", "b", "a"}))
}

func TestGraph_Nodes(t *testing.T) {
	g := Graph{"web": {"ui", "api"}, "api": nil, "ui": {}}
	assert.Equal(t, []string{"api", "ui", "web"}, g.Nodes())

	g = Graph{"web": {"external"}}
	assert.Equal(t, []string{"web"}, g.Nodes(), "edge targets are not keys")
}
