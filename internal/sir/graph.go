/*
 * Copyright 2025 StageKit Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sir

import (
    `sort`

    `github.com/oleiade/lane`
    `gonum.org/v1/gonum/graph`
    `gonum.org/v1/gonum/graph/simple`
    `gonum.org/v1/gonum/graph/topo`
)

// Graph is the derived dependency view over a store: the union of data
// edges (a node depends on the producers of its operands) and effect edges
// (the per-resource happens-before chain). Edges are derived, never stored
// by the front-end, so the view is rebuilt after every rewrite pass.
type Graph struct {
    st *Store
}

func newGraph(st *Store) *Graph {
    return &Graph{st: st}
}

// Deps returns every symbol s depends on: operand producers first, then
// effect predecessors.
func (self *Graph) Deps(s Symbol) []Symbol {
    def := self.st.mustBinding(s)
    out := make([]Symbol, 0, len(def.Args)+1)
    out = append(out, def.Args...)
    out = append(out, self.st.effects.Predecessors(s)...)
    return out
}

// Reachable computes the transitive dependency closure of the root set via
// data and effect edges. Anything outside the closure is dead code: it is
// never scheduled, just never visited.
func (self *Graph) Reachable(roots []Symbol) map[Symbol]struct{} {
    q := lane.NewQueue()
    v := make(map[Symbol]struct{}, len(roots))

    for _, s := range roots {
        if _, ok := v[s]; !ok {
            v[s] = struct{}{}
            q.Enqueue(s)
        }
    }

    for !q.Empty() {
        s := q.Dequeue().(Symbol)
        for _, d := range self.Deps(s) {
            if _, ok := v[d]; !ok {
                v[d] = struct{}{}
                q.Enqueue(d)
            }
        }
    }
    return v
}

// Consumers builds the reverse index over a reachable set: for every
// symbol, the reachable nodes that depend on it.
func (self *Graph) Consumers(reach map[Symbol]struct{}) map[Symbol][]Symbol {
    users := make(map[Symbol][]Symbol, len(reach))
    for s := range reach {
        for _, d := range self.Deps(s) {
            users[d] = append(users[d], s)
        }
    }
    for _, us := range users {
        sort.Slice(us, func(i int, j int) bool { return us[i] < us[j] })
    }
    return users
}

// Toposort orders the reachable set so that every node appears after all of
// its data and effect predecessors. Ties are broken by symbol id, so the
// order is deterministic for a given graph. A true cycle is fatal and is
// reported with the implicated symbols.
func (self *Graph) Toposort(reach map[Symbol]struct{}) ([]Symbol, error) {
    g := simple.NewDirectedGraph()

    /* materialize the reachable subgraph */
    for s := range reach {
        if g.Node(int64(s)) == nil {
            g.AddNode(simple.Node(int64(s)))
        }
        for _, d := range self.Deps(s) {
            if _, ok := reach[d]; !ok {
                continue
            }
            if g.Node(int64(d)) == nil {
                g.AddNode(simple.Node(int64(d)))
            }
            g.SetEdge(simple.Edge{F: simple.Node(int64(d)), T: simple.Node(int64(s))})
        }
    }

    /* stabilized topological sort, producer before consumer */
    order, err := topo.SortStabilized(g, func(ns []graph.Node) {
        sort.Slice(ns, func(i int, j int) bool { return ns[i].ID() < ns[j].ID() })
    })

    /* report the offending symbols on a cycle */
    if err != nil {
        if uo, ok := err.(topo.Unorderable); ok {
            ce := CycleError{}
            for _, scc := range uo {
                for _, n := range scc {
                    ce.Symbols = append(ce.Symbols, Symbol(n.ID()))
                }
            }
            sort.Slice(ce.Symbols, func(i int, j int) bool { return ce.Symbols[i] < ce.Symbols[j] })
            return nil, ce
        }
        return nil, err
    }

    out := make([]Symbol, 0, len(order))
    for _, n := range order {
        out = append(out, Symbol(n.ID()))
    }
    return out, nil
}

// FreeIndices computes, for every node of a topologically ordered set, the
// loop indices the node transitively depends on and that are not bound by a
// loop inside its own closure. A node with a free index can never leave the
// body of the loop that binds it.
func (self *Graph) FreeIndices(order []Symbol) map[Symbol][]Symbol {
    free := make(map[Symbol][]Symbol, len(order))

    for _, s := range order {
        def := self.st.mustBinding(s)
        set := make(map[Symbol]struct{})

        /* an index is free in itself */
        if def.Kind == KindIndex {
            free[s] = []Symbol{s}
            continue
        }

        /* union over the operands; effect edges do not carry bindings */
        for _, a := range def.Args {
            for _, i := range free[a] {
                set[i] = struct{}{}
            }
        }

        /* a loop binds its own index */
        if def.Kind == KindLoop {
            delete(set, def.Loop.Index)
        }

        fs := make([]Symbol, 0, len(set))
        for i := range set {
            fs = append(fs, i)
        }
        sort.Slice(fs, func(i int, j int) bool { return fs[i] < fs[j] })
        free[s] = fs
    }
    return free
}

// DependsOn reports whether a transitively depends on b through data or
// effect edges.
func (self *Graph) DependsOn(a Symbol, b Symbol) bool {
    if a == b {
        return true
    }
    _, ok := self.Reachable([]Symbol{a})[b]
    return ok
}
