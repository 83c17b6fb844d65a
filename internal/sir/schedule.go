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
    `fmt`

    `github.com/oleiade/lane`
)

type _SchedState uint8

const (
    _StateUnscheduled _SchedState = iota
    _StateScheduling
    _StateScheduled
)

func (self _SchedState) String() string {
    switch self {
        case _StateUnscheduled : return "Unscheduled"
        case _StateScheduling  : return "Scheduling"
        case _StateScheduled   : return "Scheduled"
        default                : return "???"
    }
}

// ScheduledNode is one entry of a block's emitted order.
type ScheduledNode struct {
    Sym Symbol
    Def *NodeDef
}

type _ArmKey struct {
    anchor Symbol
    arm    int
}

// BlockPlan is the scheduled form of one block: the nodes assigned to it in
// a topologically valid order, plus the nested plans anchored at the loop
// and conditional nodes it contains. Arm 0 is a loop body or a then-arm,
// arm 1 an else-arm.
type BlockPlan struct {
    Anchor Symbol
    Arm    int
    Nodes  []Symbol

    parent *BlockPlan
    depth  int
    binder Symbol
    inner  map[_ArmKey]*BlockPlan
}

func newBlockPlan(parent *BlockPlan, anchor Symbol, arm int) *BlockPlan {
    bp := &BlockPlan{
        Anchor: anchor,
        Arm:    arm,
        parent: parent,
        binder: SymNone,
        inner:  make(map[_ArmKey]*BlockPlan),
    }
    if parent != nil {
        bp.depth = parent.depth + 1
        parent.inner[_ArmKey{anchor: anchor, arm: arm}] = bp
    }
    return bp
}

// Body returns the body plan of a loop scheduled in this block.
func (self *BlockPlan) Body(loop Symbol) *BlockPlan {
    return self.inner[_ArmKey{anchor: loop, arm: 0}]
}

// Then returns the then-arm plan of a conditional scheduled in this block.
func (self *BlockPlan) Then(cond Symbol) *BlockPlan {
    return self.inner[_ArmKey{anchor: cond, arm: 0}]
}

// Else returns the else-arm plan of a conditional scheduled in this block.
func (self *BlockPlan) Else(cond Symbol) *BlockPlan {
    return self.inner[_ArmKey{anchor: cond, arm: 1}]
}

func (self *BlockPlan) isLoopBody() bool {
    return self.binder != SymNone
}

// contains reports whether self is x or an ancestor of x.
func (self *BlockPlan) contains(x *BlockPlan) bool {
    for x != nil {
        if x == self {
            return true
        }
        x = x.parent
    }
    return false
}

// blockLCA walks two blocks up to their lowest common ancestor.
func blockLCA(u *BlockPlan, v *BlockPlan) *BlockPlan {
    for u.depth > v.depth {
        u = u.parent
    }
    for v.depth > u.depth {
        v = v.parent
    }
    for u != v {
        u = u.parent
        v = v.parent
    }
    if u == nil {
        panic("sir: disjoint block trees")
    }
    return u
}

// Schedule is the emitter-facing result of scheduling one root set: a tree
// of block plans, each holding an ordered, minimized node sequence.
type Schedule struct {
    st    *Store
    roots []Symbol
    root  *BlockPlan
}

func (self *Schedule) Root() *BlockPlan {
    return self.root
}

func (self *Schedule) Roots() []Symbol {
    return self.roots
}

// Ordered returns the (Symbol, NodeDef) sequence of a block, in schedule
// order. Emitters consume this; they are expected to be pure functions of
// the definitions and are never called back into.
func (self *Schedule) Ordered(b *BlockPlan) []ScheduledNode {
    out := make([]ScheduledNode, 0, len(b.Nodes))
    for _, s := range b.Nodes {
        out = append(out, ScheduledNode{Sym: s, Def: self.st.mustBinding(s)})
    }
    return out
}

// Binding resolves symbols referenced across block boundaries.
func (self *Schedule) Binding(s Symbol) (*NodeDef, error) {
    return self.st.Binding(s)
}

// Scheduler runs the block-scheduling pass for one root set. It is a
// single-shot state machine: Unscheduled, Scheduling while the cycle check
// and placement run, Scheduled on success. A detected cycle aborts the
// pass; there is no partial output.
type Scheduler struct {
    st    *Store
    state _SchedState
}

func newScheduler(st *Store) *Scheduler {
    return &Scheduler{st: st, state: _StateUnscheduled}
}

func (self *Scheduler) State() string {
    return self.state.String()
}

// Schedule computes the block plans for the given roots. Everything not
// reachable from the roots through data or effect edges is dead code and is
// simply never visited. An empty root set is legal and yields an empty
// schedule.
func (self *Scheduler) Schedule(roots []Symbol) (*Schedule, error) {
    if self.state != _StateUnscheduled {
        panic("sir: scheduler can only run once, state is " + self.State())
    }

    self.state = _StateScheduling
    g := newGraph(self.st)
    sched := &Schedule{st: self.st, roots: roots, root: newBlockPlan(nil, SymNone, 0)}

    /* empty root set schedules to an empty sequence */
    if len(roots) == 0 {
        self.state = _StateScheduled
        return sched, nil
    }

    /* liveness and consistency */
    reach := g.Reachable(roots)
    order, err := g.Toposort(reach)
    if err != nil {
        return nil, err
    }

    /* code motion and per-block ordering */
    pl := self.placement(g, sched, roots, order)
    self.orderBlocks(g, pl, reach)

    self.state = _StateScheduled
    stats.Blocks += uint64(len(pl.members))
    stats.ScheduledNodes += uint64(len(reach))
    stats.CulledNodes += uint64(self.st.Size() - len(reach))
    return sched, nil
}

type _Placement struct {
    place   map[Symbol]*BlockPlan
    members map[*BlockPlan][]Symbol
    bodies  map[Symbol]*BlockPlan
    scopes  map[ScopeID]*BlockPlan
}

// placement assigns every reachable node to a block. Pure nodes go to the
// innermost common block of their uses, then hoist upward past every loop
// body whose index they do not depend on; a node used only inside one
// conditional arm therefore stays inside that arm. Effectful nodes are
// placed exactly at the block of the scope their effect order pins them to.
func (self *Scheduler) placement(g *Graph, sched *Schedule, roots []Symbol, order []Symbol) *_Placement {
    free := g.FreeIndices(order)
    pl := &_Placement{
        place:   make(map[Symbol]*BlockPlan, len(order)),
        members: make(map[*BlockPlan][]Symbol),
        bodies:  make(map[Symbol]*BlockPlan),
        scopes:  map[ScopeID]*BlockPlan{RootScope: sched.root},
    }

    /* the roots are used by the block itself */
    uses := make(map[Symbol][]*BlockPlan, len(order))
    for _, r := range roots {
        uses[r] = append(uses[r], sched.root)
    }

    /* consumers first, so every use site is known when a producer is
     * placed */
    for i := len(order) - 1; i >= 0; i-- {
        s := order[i]
        def := self.st.mustBinding(s)
        b := self.placeOne(pl, uses, free, s)

        pl.place[s] = b
        pl.members[b] = append(pl.members[b], s)

        /* anchors open their nested blocks */
        switch def.Kind {
            case KindLoop: {
                nb := newBlockPlan(b, s, 0)
                nb.binder = def.Loop.Index
                pl.bodies[s] = nb
                pl.scopes[self.st.effects.Resolve(def.Loop.Scope)] = nb
                self.useLoop(uses, def.Loop, b, nb)
            }
            case KindCond: {
                tb := newBlockPlan(b, s, 0)
                eb := newBlockPlan(b, s, 1)
                pl.scopes[self.st.effects.Resolve(def.Cond.ThenScope)] = tb
                pl.scopes[self.st.effects.Resolve(def.Cond.ElseScope)] = eb
                self.useCond(uses, def.Cond, b, tb, eb)
            }
            default: {
                for _, a := range def.Args {
                    uses[a] = append(uses[a], b)
                }
            }
        }
    }
    return pl
}

func (self *Scheduler) placeOne(pl *_Placement, uses map[Symbol][]*BlockPlan, free map[Symbol][]Symbol, s Symbol) *BlockPlan {
    /* effectful nodes stay exactly where their effect order pins them */
    if scope, ok := self.st.effects.ScopeOf(s); ok {
        b := pl.scopes[scope]
        if b == nil {
            panic(fmt.Sprintf("sir: effectful node %s pinned to an unscheduled scope %d", s, scope))
        }
        return b
    }

    /* innermost block that sees every use */
    ub := uses[s]
    if len(ub) == 0 {
        panic("sir: reachable node without a use site: " + s.String())
    }

    b := ub[0]
    for _, u := range ub[1:] {
        b = blockLCA(b, u)
    }

    /* hoist out of loop bodies the node does not depend on */
    for b.parent != nil && b.isLoopBody() && !symIn(free[s], b.binder) {
        b = b.parent
    }

    /* a free index must keep the node inside the loop that binds it */
    for _, idx := range free[s] {
        lp, ok := self.st.loopOf(idx)
        if !ok {
            panic("sir: index " + idx.String() + " bound by no loop")
        }
        fb := pl.bodies[lp]
        if fb == nil || !fb.contains(b) {
            panic(fmt.Sprintf("sir: %s escapes the loop binding %s", s, idx))
        }
    }
    return b
}

func (self *Scheduler) useLoop(uses map[Symbol][]*BlockPlan, spec *LoopSpec, hdr *BlockPlan, body *BlockPlan) {
    uses[spec.Range] = append(uses[spec.Range], hdr)
    for _, e := range spec.Elems {
        uses[e.Val] = append(uses[e.Val], body)
        if e.Init != SymNone {
            uses[e.Init] = append(uses[e.Init], hdr)
        }
    }
    for _, s := range spec.Effects {
        uses[s] = append(uses[s], body)
    }
}

func (self *Scheduler) useCond(uses map[Symbol][]*BlockPlan, spec *CondSpec, hdr *BlockPlan, tb *BlockPlan, eb *BlockPlan) {
    uses[spec.Cond] = append(uses[spec.Cond], hdr)
    uses[spec.Then] = append(uses[spec.Then], tb)
    uses[spec.Else] = append(uses[spec.Else], eb)
    for _, s := range spec.ThenEffects {
        uses[s] = append(uses[s], tb)
    }
    for _, s := range spec.ElseEffects {
        uses[s] = append(uses[s], eb)
    }
}

type _Edge struct {
    b *BlockPlan
    u Symbol
    v Symbol
}

// orderBlocks linearizes every block. Dependencies whose endpoints sit in
// different blocks are attributed to the anchor nodes on the paths down
// from their common block. Ties are broken by scheduling each node as late
// as its consumers allow, highest symbol first, which keeps a producer next
// to its first consumer; the tie-break is deterministic for a given graph.
func (self *Scheduler) orderBlocks(g *Graph, pl *_Placement, reach map[Symbol]struct{}) {
    radj := make(map[*BlockPlan]map[Symbol][]Symbol)
    ncon := make(map[*BlockPlan]map[Symbol]int)
    seen := make(map[_Edge]struct{})

    for s := range reach {
        for _, d := range g.Deps(s) {
            bu := pl.place[d]
            bv := pl.place[s]
            cb := blockLCA(bu, bv)

            u := repAt(pl, d, cb)
            v := repAt(pl, s, cb)
            if u == v {
                continue
            }

            e := _Edge{b: cb, u: u, v: v}
            if _, ok := seen[e]; ok {
                continue
            }
            seen[e] = struct{}{}

            if radj[cb] == nil {
                radj[cb] = make(map[Symbol][]Symbol)
                ncon[cb] = make(map[Symbol]int)
            }
            radj[cb][v] = append(radj[cb][v], u)
            ncon[cb][u]++
        }
    }

    for b, ms := range pl.members {
        b.Nodes = self.orderOne(ms, radj[b], ncon[b])
    }
}

func (self *Scheduler) orderOne(ms []Symbol, radj map[Symbol][]Symbol, ncon map[Symbol]int) []Symbol {
    pq := lane.NewPQueue(lane.MAXPQ)
    for _, m := range ms {
        if ncon[m] == 0 {
            pq.Push(m, int(m))
        }
    }

    /* consumers first, producers released as their consumers drain */
    out := make([]Symbol, 0, len(ms))
    for !pq.Empty() {
        v, _ := pq.Pop()
        s := v.(Symbol)
        out = append(out, s)
        for _, u := range radj[s] {
            if ncon[u]--; ncon[u] == 0 {
                pq.Push(u, int(u))
            }
        }
    }

    if len(out) != len(ms) {
        panic("sir: residual cycle inside a block")
    }
    symReverse(out)
    return out
}

// repAt lifts a node to its representative in block b: the node itself when
// it is placed there, otherwise the anchor of the child block on the path.
func repAt(pl *_Placement, s Symbol, b *BlockPlan) Symbol {
    x := pl.place[s]
    if x == b {
        return s
    }
    for x.parent != b {
        x = x.parent
    }
    return x.Anchor
}

func symIn(xs []Symbol, s Symbol) bool {
    for _, x := range xs {
        if x == s {
            return true
        }
    }
    return false
}

func symReverse(xs []Symbol) {
    for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
        xs[i], xs[j] = xs[j], xs[i]
    }
}
