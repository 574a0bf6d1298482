// graph.go: dependency graph construction and topological ordering
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

// Graph maps each module id to the declared hard dependencies that exist
// among the known modules. Node order is discovery order and drives the
// tie-break of the sort.
type Graph struct {
	order []string
	edges map[string][]string
}

// GraphOption tunes BuildGraph.
type GraphOption func(*graphOptions)

type graphOptions struct {
	logger       Logger
	known        map[string]struct{}
	softOrdering bool
}

// WithGraphLogger sets the logger that receives dropped-dependency warnings.
func WithGraphLogger(logger Logger) GraphOption {
	return func(o *graphOptions) { o.logger = logger }
}

// WithKnown marks ids that already exist outside the descriptor set, such
// as modules registered by an earlier load pass. Edges to them are kept
// but they do not become nodes of the graph.
func WithKnown(ids ...string) GraphOption {
	return func(o *graphOptions) {
		for _, id := range ids {
			o.known[id] = struct{}{}
		}
	}
}

// WithSoftOrdering adds present soft dependencies as ordering edges. They
// still never block loading or enabling.
func WithSoftOrdering() GraphOption {
	return func(o *graphOptions) { o.softOrdering = true }
}

// BuildGraph turns descriptors into a dependency graph. A dependency that
// matches no descriptor is dropped with a warning; BuildGraph never fails.
// When the same id appears twice only the first descriptor becomes a node.
func BuildGraph(descriptors []*Descriptor, opts ...GraphOption) *Graph {
	o := graphOptions{logger: NewNoOpLogger(), known: make(map[string]struct{})}
	for _, opt := range opts {
		opt(&o)
	}

	present := make(map[string]*Descriptor, len(descriptors))
	g := &Graph{edges: make(map[string][]string, len(descriptors))}
	for _, d := range descriptors {
		if d == nil {
			continue
		}
		if _, dup := present[d.ID()]; dup {
			continue
		}
		present[d.ID()] = d
		g.order = append(g.order, d.ID())
	}

	exists := func(id string) bool {
		if _, ok := present[id]; ok {
			return true
		}
		_, ok := o.known[id]
		return ok
	}

	for _, id := range g.order {
		d := present[id]
		deps := make([]string, 0, len(d.dependencies))
		for _, dep := range d.dependencies {
			if !exists(dep) {
				o.logger.Warn("Dropping unknown module dependency",
					"module", id,
					"dependency", dep)
				continue
			}
			deps = append(deps, dep)
		}
		if o.softOrdering {
			for _, soft := range d.softDependencies {
				if _, ok := present[soft]; ok && !containsString(deps, soft) {
					deps = append(deps, soft)
				}
			}
		}
		g.edges[id] = deps
	}
	return g
}

// Nodes returns the graph's module ids in discovery order.
func (g *Graph) Nodes() []string { return copyStrings(g.order) }

// DependenciesOf returns the kept edges of id.
func (g *Graph) DependenciesOf(id string) []string { return copyStrings(g.edges[id]) }

// DependentsOf returns the nodes with an edge to id, in discovery order.
func (g *Graph) DependentsOf(id string) []string {
	var out []string
	for _, node := range g.order {
		if containsString(g.edges[node], id) {
			out = append(out, node)
		}
	}
	return out
}

type visitColor uint8

const (
	white visitColor = iota
	gray
	black
)

// TopologicalSort orders the nodes so every dependency precedes its
// dependents. It uses a depth-first walk with three-color marking and
// appends nodes as they finish, so no reversal is needed.
//
// A back edge fails the sort with a CyclicDependency error. The path is
// in declaration order and closes on the node found gray: for x -> y -> x
// it is [x y x].
func (g *Graph) TopologicalSort() ([]string, error) {
	color := make(map[string]visitColor, len(g.order))
	result := make([]string, 0, len(g.order))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range g.edges[id] {
			if _, isNode := g.edges[dep]; !isNode {
				continue
			}
			switch color[dep] {
			case gray:
				return cycleFrom(stack, dep)
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		result = append(result, id)
		return nil
	}

	for _, id := range g.order {
		if color[id] != white {
			continue
		}
		if cycle := visit(id); cycle != nil {
			return nil, NewCyclicDependencyError(cycle)
		}
	}
	return result, nil
}

// cycleFrom cuts the recursion stack at the first occurrence of start and
// closes the path with start again.
func cycleFrom(stack []string, start string) []string {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == start {
			cycle := make([]string, 0, len(stack)-i+1)
			cycle = append(cycle, stack[i:]...)
			return append(cycle, start)
		}
	}
	return []string{start, start}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
