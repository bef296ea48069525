package planner

import (
	"sort"
	"strings"

	"github.com/VectorBits/facetsplit/src/internal/model"
)

// Graph is the static call graph over a model's functions. Node i is
// model.Functions[i]; edges come from the callee names, so every overload of a
// name is a target.
type Graph struct {
	m     *model.ContractModel
	edges [][]int
}

func NewGraph(m *model.ContractModel) *Graph {
	g := &Graph{m: m, edges: make([][]int, len(m.Functions))}
	byName := m.ByName()
	for i := range m.Functions {
		seen := make(map[int]bool)
		for _, dep := range m.Functions[i].Dependencies {
			for _, id := range byName[dep] {
				if !seen[int(id)] {
					seen[int(id)] = true
					g.edges[i] = append(g.edges[i], int(id))
				}
			}
		}
		sort.Ints(g.edges[i])
	}
	return g
}

// Callees returns the direct call targets of id.
func (g *Graph) Callees(id model.FunctionID) []model.FunctionID {
	out := make([]model.FunctionID, 0, len(g.edges[id]))
	for _, to := range g.edges[id] {
		out = append(out, model.FunctionID(to))
	}
	return out
}

// SCCs returns the strongly connected components in reverse topological
// order (Tarjan). Members of each component are sorted by ID. The search keeps
// its own stack, so deep call chains do not grow the goroutine stack.
func (g *Graph) SCCs() [][]model.FunctionID {
	n := len(g.edges)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	type frame struct {
		v    int
		next int
	}
	var (
		counter int
		stack   []int
		out     [][]model.FunctionID
	)

	for root := 0; root < n; root++ {
		if index[root] >= 0 {
			continue
		}
		call := []frame{{v: root}}
		index[root], low[root] = counter, counter
		counter++
		stack = append(stack, root)
		onStack[root] = true

		for len(call) > 0 {
			f := &call[len(call)-1]
			if f.next < len(g.edges[f.v]) {
				w := g.edges[f.v][f.next]
				f.next++
				switch {
				case index[w] < 0:
					index[w], low[w] = counter, counter
					counter++
					stack = append(stack, w)
					onStack[w] = true
					call = append(call, frame{v: w})
				case onStack[w]:
					low[f.v] = min(low[f.v], index[w])
				}
				continue
			}

			v := f.v
			call = call[:len(call)-1]
			if len(call) > 0 {
				parent := call[len(call)-1].v
				low[parent] = min(low[parent], low[v])
			}
			if low[v] != index[v] {
				continue
			}
			var comp []model.FunctionID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, model.FunctionID(w))
				if w == v {
					break
				}
			}
			sort.Slice(comp, func(i, j int) bool { return comp[i] < comp[j] })
			out = append(out, comp)
		}
	}
	return out
}

// RoutableTargets returns the routable functions id reaches directly or through
// internal helpers. Helpers are compiled into every facet that calls them, so
// only calls that end at a routable function can cross facets.
func (g *Graph) RoutableTargets(id model.FunctionID) []model.FunctionID {
	seen := make(map[int]bool)
	var out []model.FunctionID
	stack := append([]int(nil), g.edges[id]...)
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[v] {
			continue
		}
		seen[v] = true
		if g.m.Functions[v].Routable() {
			if model.FunctionID(v) != id {
				out = append(out, model.FunctionID(v))
			}
			continue
		}
		stack = append(stack, g.edges[v]...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tree renders the call tree of every routable function. A node already on the
// current path is marked as a cycle; one expanded earlier in the same tree is
// marked as seen. Neither is expanded again.
func (g *Graph) Tree() string {
	var sb strings.Builder
	for _, root := range g.m.Routable() {
		g.writeTree(&sb, int(root))
	}
	return sb.String()
}

func (g *Graph) writeTree(sb *strings.Builder, root int) {
	type item struct {
		v      int
		prefix string
		last   bool
		path   map[int]bool
	}
	sb.WriteString(g.m.Functions[root].Name + "\n")
	var stack []item
	expanded := map[int]bool{root: true}
	push := func(parent int, prefix string, path map[int]bool) {
		children := g.edges[parent]
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, item{v: children[i], prefix: prefix, last: i == len(children)-1, path: path})
		}
	}
	push(root, "", map[int]bool{root: true})

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		branch, indent := "├── ", "│   "
		if it.last {
			branch, indent = "└── ", "    "
		}
		name := g.m.Functions[it.v].Name
		if it.path[it.v] {
			sb.WriteString(it.prefix + branch + name + " (cycle)\n")
			continue
		}
		if expanded[it.v] && len(g.edges[it.v]) > 0 {
			sb.WriteString(it.prefix + branch + name + " (seen)\n")
			continue
		}
		expanded[it.v] = true
		sb.WriteString(it.prefix + branch + name + "\n")

		path := make(map[int]bool, len(it.path)+1)
		for k := range it.path {
			path[k] = true
		}
		path[it.v] = true
		push(it.v, it.prefix+indent, path)
	}
}
