package conflict

import (
	"sort"
	"strings"
)

// Graph maps a project name to the projects it references. Adjacency lists
// are sorted so traversal order is deterministic.
type Graph map[string][]string

// Nodes returns every key of g, sorted, including nodes without outgoing
// edges. Nodes that only appear as edge targets are not included.
func (g Graph) Nodes() []string {
	nodes := make([]string, 0, len(g))
	for n := range g {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// FindCycle runs a depth-first search from root, ignoring nodes in done. It
// returns the first cycle found as a closed path (a, b, c, a) or nil, and
// every node the search reached. Neither argument is modified.
func FindCycle(g Graph, root string, done map[string]bool) (cycle []string, reached []string) {
	onStack := make(map[string]int)
	seen := make(map[string]bool)
	var stack []string

	var visit func(n string) bool
	visit = func(n string) bool {
		seen[n] = true
		reached = append(reached, n)
		onStack[n] = len(stack)
		stack = append(stack, n)

		for _, next := range g[n] {
			if done[next] {
				continue
			}
			if i, ok := onStack[next]; ok {
				cycle = append(append([]string(nil), stack[i:]...), next)
				return true
			}
			if seen[next] {
				continue
			}
			if visit(next) {
				return true
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, n)
		return false
	}

	if done[root] {
		return nil, nil
	}
	visit(root)
	return cycle, reached
}

// Cycles returns the first cycle reachable from each not yet visited root,
// visiting roots in sorted order.
func Cycles(g Graph) [][]string {
	done := make(map[string]bool)
	var cycles [][]string
	for _, root := range g.Nodes() {
		if done[root] {
			continue
		}
		cycle, reached := FindCycle(g, root, done)
		for _, n := range reached {
			done[n] = true
		}
		if cycle != nil {
			cycles = append(cycles, cycle)
		}
	}
	return cycles
}

// FormatCycle renders a cycle path as "a -> b -> a".
func FormatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}
