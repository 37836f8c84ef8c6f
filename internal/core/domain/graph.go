package domain

import (
	"container/heap"
	"fmt"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// DuplicateOutput describes a node produced by more than one non-mutating task.
type DuplicateOutput struct {
	Node  Node
	Tasks []*Task
}

// Cycle is a raw dependency path ending in a task that already appears earlier in the path.
// Consecutive elements are related by "depends on". The leading elements may lie outside the cycle.
type Cycle []*Task

// Graph is the analyzed dependency structure of a task set.
type Graph struct {
	tasks []*Task
	index map[*Task]int

	producers map[Node][]int
	preds     [][]int
	succs     [][]int
	strong    [][]int
	edgeSet   map[[2]int]struct{}

	chains   map[Node][]int
	mutators map[int]bool

	warnings   []string
	mutErrs    []error
	duplicates []DuplicateOutput
	cycles     []Cycle
}

// NewGraph analyzes tasks: it derives edges from node producers and mustPrecede hints,
// orders mutation chains on shared nodes, and detects duplicate outputs and cycles.
// Only structural problems (duplicate rule keys, dangling mustPrecede references) are returned as errors;
// the rest is available through the accessors.
func NewGraph(tasks []*Task) (*Graph, error) {
	g := &Graph{
		tasks:     tasks,
		index:     make(map[*Task]int, len(tasks)),
		producers: make(map[Node][]int),
		preds:     make([][]int, len(tasks)),
		succs:     make([][]int, len(tasks)),
		strong:    make([][]int, len(tasks)),
		edgeSet:   make(map[[2]int]struct{}),
		chains:    make(map[Node][]int),
		mutators:  make(map[int]bool),
	}

	keys := make(map[string]struct{}, len(tasks))
	for i, t := range tasks {
		key := t.Key()
		if _, exists := keys[key]; exists {
			return nil, zerr.With(zerr.Wrap(ErrDuplicateTaskKey, key), "task", key)
		}
		keys[key] = struct{}{}
		g.index[t] = i
	}

	var nodeOrder []Node
	for i, t := range tasks {
		for _, n := range t.Outputs {
			ps := g.producers[n]
			if len(ps) > 0 && ps[len(ps)-1] == i {
				continue
			}
			if len(ps) == 0 {
				nodeOrder = append(nodeOrder, n)
			}
			g.producers[n] = append(ps, i)
		}
	}

	mutated := g.classifyProducers(nodeOrder)

	if err := g.addBaseEdges(mutated); err != nil {
		return nil, err
	}

	g.orderMutationChains(nodeOrder, mutated)
	g.cycles = g.detectCycles(nil)

	return g, nil
}

// classifyProducers separates duplicate outputs from mutated nodes.
// A mutated node has exactly one creator and one or more mutators, which are producers that also read the node.
func (g *Graph) classifyProducers(nodeOrder []Node) map[Node]int {
	mutated := make(map[Node]int)
	for _, n := range nodeOrder {
		ps := g.producers[n]
		if len(ps) < 2 {
			continue
		}
		var creators, mutators []int
		for _, p := range ps {
			if g.tasks[p].ReadsNode(n) {
				mutators = append(mutators, p)
			} else {
				creators = append(creators, p)
			}
		}
		switch {
		case len(creators) > 1:
			dup := DuplicateOutput{Node: n}
			for _, p := range ps {
				dup.Tasks = append(dup.Tasks, g.tasks[p])
			}
			g.duplicates = append(g.duplicates, dup)
		case len(creators) == 0:
			msg := fmt.Sprintf("invalid task ('%s') mutates '%s' but no task creates it", g.tasks[mutators[0]].Key(), n)
			g.mutErrs = append(g.mutErrs, zerr.With(zerr.Wrap(ErrInvalidMutation, msg), "node", n.String()))
		default:
			mutated[n] = creators[0]
			for _, m := range mutators {
				g.mutators[m] = true
			}
		}
	}
	return mutated
}

func (g *Graph) addBaseEdges(mutated map[Node]int) error {
	for i, t := range g.tasks {
		for _, n := range t.Inputs {
			ps := g.producers[n]
			if len(ps) == 0 {
				continue
			}
			if creator, ok := mutated[n]; ok {
				// Readers and mutators both need the node to exist; mutators are chained separately.
				g.addEdge(creator, i, false)
				continue
			}
			if len(ps) > 1 {
				// Duplicate output; every producer must still precede the reader.
				for _, p := range ps {
					g.addEdge(p, i, true)
				}
				continue
			}
			g.addEdge(ps[0], i, true)
		}
		for _, after := range t.MustPrecede {
			j, ok := g.index[after]
			if !ok {
				msg := fmt.Sprintf("task ('%s') must precede unknown task ('%s')", t.Key(), after.Key())
				return zerr.Wrap(ErrUnknownMustPrecede, msg)
			}
			g.addEdge(i, j, true)
		}
	}
	return nil
}

func (g *Graph) addEdge(from, to int, strong bool) {
	if from == to {
		return
	}
	if strong {
		if !slices.Contains(g.strong[from], to) {
			g.strong[from] = append(g.strong[from], to)
		}
	}
	key := [2]int{from, to}
	if _, exists := g.edgeSet[key]; exists {
		return
	}
	g.edgeSet[key] = struct{}{}
	g.succs[from] = append(g.succs[from], to)
	g.preds[to] = append(g.preds[to], from)
}

// orderMutationChains puts the creator and mutators of each shared node into one total order
// and checks that each mutator is related to the one before it.
func (g *Graph) orderMutationChains(nodeOrder []Node, mutated map[Node]int) {
	if len(mutated) == 0 {
		return
	}
	rank := g.topologicalRank()

	for _, n := range nodeOrder {
		creator, ok := mutated[n]
		if !ok {
			continue
		}
		members := []int{creator}
		for _, p := range g.producers[n] {
			if p != creator {
				members = append(members, p)
			}
		}
		if slices.ContainsFunc(members, func(m int) bool { return rank[m] < 0 }) {
			// Part of a cycle; reported by cycle detection.
			continue
		}
		slices.SortStableFunc(members, func(a, b int) int { return rank[a] - rank[b] })
		g.chains[n] = members

		for k := 1; k < len(members); k++ {
			prev, cur := members[k-1], members[k]
			if !g.stronglyReaches(prev, cur) {
				g.warnings = append(g.warnings, fmt.Sprintf(
					"unexpected mutating task ('%s') with no relation to prior mutator ('%s')",
					g.tasks[cur].Key(), g.tasks[prev].Key()))
				g.addEdge(prev, cur, true)
			}
		}

		last := g.tasks[members[len(members)-1]]
		if !last.HasVirtualOutput() {
			msg := fmt.Sprintf("invalid task ('%s') with mutable output but no other virtual output node", last.Key())
			g.mutErrs = append(g.mutErrs, zerr.With(zerr.Wrap(ErrInvalidMutation, msg), "node", n.String()))
		}
	}
}

func (g *Graph) stronglyReaches(from, to int) bool {
	seen := make([]bool, len(g.tasks))
	queue := []int{from}
	seen[from] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.strong[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// topologicalRank orders tasks with Kahn's algorithm, breaking ties by declaration order.
// Tasks on a cycle get rank -1.
func (g *Graph) topologicalRank() []int {
	inDegree := make([]int, len(g.tasks))
	for i := range g.tasks {
		inDegree[i] = len(g.preds[i])
	}
	ready := &intHeap{}
	for i, d := range inDegree {
		if d == 0 {
			heap.Push(ready, i)
		}
	}
	rank := make([]int, len(g.tasks))
	for i := range rank {
		rank[i] = -1
	}
	next := 0
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		rank[i] = next
		next++
		for _, s := range g.succs[i] {
			inDegree[s]--
			if inDegree[s] == 0 {
				heap.Push(ready, s)
			}
		}
	}
	return rank
}

// detectCycles walks dependencies depth-first, first from roots and then from every
// remaining task in declaration order, and records one cycle per distinct set of members.
func (g *Graph) detectCycles(roots []int) []Cycle {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.tasks))
	var stack []int
	var cycles []Cycle
	seen := make(map[string]struct{})

	var visit func(i int)
	visit = func(i int) {
		color[i] = gray
		stack = append(stack, i)
		for _, p := range g.preds[i] {
			switch color[p] {
			case white:
				visit(p)
			case gray:
				start := slices.Index(stack, p)
				members := make([]string, 0, len(stack)-start)
				for _, m := range stack[start:] {
					members = append(members, g.tasks[m].Key())
				}
				slices.Sort(members)
				key := strings.Join(members, "\x00")
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				cycle := make(Cycle, 0, len(stack)+1)
				for _, m := range stack {
					cycle = append(cycle, g.tasks[m])
				}
				cycles = append(cycles, append(cycle, g.tasks[p]))
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
	}

	for _, i := range roots {
		if color[i] == white {
			visit(i)
		}
	}
	for i := range g.tasks {
		if color[i] == white {
			visit(i)
		}
	}
	return cycles
}

// Tasks returns the tasks in declaration order.
func (g *Graph) Tasks() []*Task { return g.tasks }

// Index returns the declaration index of t, or -1.
func (g *Graph) Index(t *Task) int {
	if i, ok := g.index[t]; ok {
		return i
	}
	return -1
}

// Predecessors returns the tasks that must complete before t may start.
func (g *Graph) Predecessors(t *Task) []*Task {
	return g.lookup(g.preds[g.index[t]])
}

// Successors returns the tasks waiting on t.
func (g *Graph) Successors(t *Task) []*Task {
	return g.lookup(g.succs[g.index[t]])
}

func (g *Graph) lookup(ids []int) []*Task {
	out := make([]*Task, len(ids))
	for k, i := range ids {
		out[k] = g.tasks[i]
	}
	return out
}

// Producer returns the single producer of a node that is not mutated.
func (g *Graph) Producer(n Node) (*Task, bool) {
	ps := g.producers[n]
	if len(ps) != 1 {
		return nil, false
	}
	return g.tasks[ps[0]], true
}

// IsMutated reports whether several tasks write n in a chain.
func (g *Graph) IsMutated(n Node) bool {
	_, ok := g.chains[n]
	return ok
}

// MutationChain returns the creator and mutators of n in execution order.
func (g *Graph) MutationChain(n Node) []*Task {
	return g.lookup(g.chains[n])
}

// PriorMutator returns the task whose write of n immediately precedes the write by t.
func (g *Graph) PriorMutator(t *Task, n Node) (*Task, bool) {
	chain := g.chains[n]
	i := g.index[t]
	for k := 1; k < len(chain); k++ {
		if chain[k] == i {
			return g.tasks[chain[k-1]], true
		}
	}
	return nil, false
}

// IsMutator reports whether t rewrites a node created by another task.
func (g *Graph) IsMutator(t *Task) bool {
	return g.mutators[g.index[t]]
}

// Warnings returns non-fatal construction diagnostics.
func (g *Graph) Warnings() []string { return g.warnings }

// MutationErrors returns the fatal mutation chain problems.
func (g *Graph) MutationErrors() []error { return g.mutErrs }

// Duplicates returns nodes produced by more than one independent task.
func (g *Graph) Duplicates() []DuplicateOutput { return g.duplicates }

// Cycles returns the distinct dependency cycles found walking the tasks in declaration order.
func (g *Graph) Cycles() []Cycle { return g.cycles }

// CyclesFrom walks from roots first, so each cycle is entered the way a build of roots reaches it.
// Tasks outside the graph are ignored.
func (g *Graph) CyclesFrom(roots []*Task) []Cycle {
	if len(g.cycles) == 0 {
		return nil
	}
	ids := make([]int, 0, len(roots))
	for _, r := range roots {
		if i, ok := g.index[r]; ok {
			ids = append(ids, i)
		}
	}
	return g.detectCycles(ids)
}

type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
