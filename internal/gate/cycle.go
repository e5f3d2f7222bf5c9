package gate

import (
	"strings"

	"github.com/sluicedb/sluice/internal/op"
)

// detectCycle finds a dependency cycle among rules and returns it as a
// closed path, or nil when the rules form a DAG.
//
// A cycle deadlocks the gate: every type in it requires an integrated
// counterpart of the next, so none can ever promote. Rule sets with
// cycles are rejected at construction rather than silently never
// converging.
//
// Uses Tarjan's strongly connected components algorithm. Each rule has
// at most one outgoing edge (Type to DependsOn), but SCC detection
// handles chains of any length uniformly. Self-dependencies are
// rejected before this runs, so only multi-rule cycles remain.
func detectCycle(rules []Rule) []op.Type {
	graph := make(map[op.Type][]op.Type, len(rules))
	for _, r := range rules {
		graph[r.Type] = nil
		if r.DependsOn != "" {
			graph[r.Type] = append(graph[r.Type], r.DependsOn)
		}
	}

	for _, scc := range tarjanSCC(rules, graph) {
		if len(scc) > 1 {
			return closeCyclePath(firstDeclared(rules, scc), scc, graph)
		}
	}
	return nil
}

// firstDeclared picks the component member declared earliest, so the
// reported path always starts at the same rule.
func firstDeclared(rules []Rule, scc []op.Type) op.Type {
	members := make(map[op.Type]bool, len(scc))
	for _, t := range scc {
		members[t] = true
	}
	for _, r := range rules {
		if members[r.Type] {
			return r.Type
		}
	}
	return scc[0]
}

// tarjanSCC finds strongly connected components. Nodes are visited in
// rule declaration order so the reported cycle is deterministic.
// Single-node components are not cycles here (no self-loops by
// construction).
func tarjanSCC(rules []Rule, graph map[op.Type][]op.Type) [][]op.Type {
	var (
		index   int
		stack   []op.Type
		indices = make(map[op.Type]int, len(rules))
		lowlink = make(map[op.Type]int, len(rules))
		onStack = make(map[op.Type]bool, len(rules))
		sccs    [][]op.Type
	)

	var strongConnect func(op.Type)
	strongConnect = func(v op.Type) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []op.Type
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, r := range rules {
		if _, visited := indices[r.Type]; !visited {
			strongConnect(r.Type)
		}
	}
	return sccs
}

// closeCyclePath walks the single outgoing edge of each component
// member until it returns to the start, producing a path like
// [a, b, c, a].
func closeCyclePath(start op.Type, scc []op.Type, graph map[op.Type][]op.Type) []op.Type {
	members := make(map[op.Type]bool, len(scc))
	for _, t := range scc {
		members[t] = true
	}

	path := []op.Type{start}
	current := start
	for {
		var next op.Type
		for _, n := range graph[current] {
			if members[n] {
				next = n
				break
			}
		}
		path = append(path, next)
		if next == start {
			return path
		}
		current = next
	}
}

// cyclePathString renders a cycle path for error messages.
func cyclePathString(path []op.Type) string {
	parts := make([]string, len(path))
	for i, t := range path {
		parts[i] = string(t)
	}
	return strings.Join(parts, " -> ")
}
