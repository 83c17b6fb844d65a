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
)

// ScopeID identifies one effect scope. Scope 0 is the root scope; every
// loop body and every conditional arm opens a child scope while it is being
// built. Effectful nodes are pinned to the scope they were created in, which
// is what keeps them from being hoisted or sunk by the scheduler.
type ScopeID int32

const RootScope ScopeID = 0

type _ChainKey struct {
    scope ScopeID
    res   Resource
}

type _Chain struct {
    last Symbol
    next uint32
}

type _NodeEffect struct {
    scope ScopeID
    seq   map[Resource]uint32
    preds []Symbol
}

// Tracker assigns every effectful node a deterministic position in the
// per-(scope, resource) effect order and derives the happens-before edges
// the scheduler and the fusion engine must preserve. Effect edges are never
// removed or reordered by any later transform.
type Tracker struct {
    stack   []ScopeID
    parent  []ScopeID
    alias   map[ScopeID]ScopeID
    chains  map[_ChainKey]*_Chain
    nodes   map[Symbol]*_NodeEffect
    touched map[ScopeID]map[Resource]struct{}
}

func newTracker() *Tracker {
    return &Tracker{
        stack:   []ScopeID{RootScope},
        parent:  []ScopeID{RootScope},
        alias:   make(map[ScopeID]ScopeID),
        chains:  make(map[_ChainKey]*_Chain),
        nodes:   make(map[Symbol]*_NodeEffect),
        touched: make(map[ScopeID]map[Resource]struct{}),
    }
}

func (self *Tracker) Current() ScopeID {
    return self.stack[len(self.stack)-1]
}

func (self *Tracker) BeginScope() ScopeID {
    id := ScopeID(len(self.parent))
    self.parent = append(self.parent, self.Current())
    self.stack = append(self.stack, id)
    return id
}

func (self *Tracker) EndScope() {
    if len(self.stack) == 1 {
        panic("sir: unbalanced effect scope")
    }
    self.stack = self.stack[:len(self.stack)-1]
}

// Resolve follows scope aliases introduced by fusion scope merging.
func (self *Tracker) Resolve(s ScopeID) ScopeID {
    for {
        t, ok := self.alias[s]
        if !ok {
            return s
        }
        s = t
    }
}

func (self *Tracker) attach(s Symbol, eff Effect) {
    self.attachAt(s, eff, self.Current())
}

func (self *Tracker) attachAt(s Symbol, eff Effect, scope ScopeID) {
    rs := eff.resources()
    if len(rs) == 0 {
        return
    }

    /* position the node on every chain it touches */
    scope = self.Resolve(scope)
    ne := &_NodeEffect{scope: scope, seq: make(map[Resource]uint32, len(rs))}

    for _, r := range rs {
        k := _ChainKey{scope: scope, res: r}
        c := self.chains[k]

        /* first node on this chain */
        if c == nil {
            c = &_Chain{last: SymNone}
            self.chains[k] = c
        }

        /* link behind the previous node on the same resource */
        if c.last != SymNone {
            ne.preds = append(ne.preds, c.last)
        }

        ne.seq[r] = c.next
        c.next++
        c.last = s
        self.touch(scope, r)
    }

    self.nodes[s] = ne
}

func (self *Tracker) touch(scope ScopeID, r Resource) {
    m := self.touched[scope]
    if m == nil {
        m = make(map[Resource]struct{})
        self.touched[scope] = m
    }
    m[r] = struct{}{}
}

// replace moves old's chain positions to rep, mapping predecessor symbols
// through subst. Used by the rewrite engine so that rewritten effectful
// nodes keep their original order tokens.
func (self *Tracker) replace(old Symbol, rep Symbol, subst map[Symbol]Symbol) {
    ne := self.nodes[old]
    if ne == nil {
        panic("sir: effect replacement of a pure node")
    }

    /* clone the position, remapping the predecessors */
    nn := &_NodeEffect{scope: self.Resolve(ne.scope), seq: ne.seq}
    for _, p := range ne.preds {
        if q, ok := subst[p]; ok {
            nn.preds = append(nn.preds, q)
        } else {
            nn.preds = append(nn.preds, p)
        }
    }
    self.nodes[rep] = nn

    /* redirect chain tails that pointed at the old node */
    for _, r := range self.resourcesOf(ne) {
        k := _ChainKey{scope: nn.scope, res: r}
        if c := self.chains[k]; c != nil && c.last == old {
            c.last = rep
        }
    }
}

// join merges the chain positions of two fused loop nodes onto their
// replacement. At most one of a and b touches any given resource; the
// fusion eligibility test guarantees disjointness, so a collision is an
// internal defect.
func (self *Tracker) join(a Symbol, b Symbol, rep Symbol, subst map[Symbol]Symbol) {
    na := self.nodes[a]
    nb := self.nodes[b]

    if na == nil && nb == nil {
        return
    }
    if na == nil {
        self.replace(b, rep, subst)
        return
    }
    if nb == nil {
        self.replace(a, rep, subst)
        return
    }
    if self.Resolve(na.scope) != self.Resolve(nb.scope) {
        panic("sir: illegal fusion, effectful loops pinned to different scopes")
    }

    /* union the two positions */
    nn := &_NodeEffect{scope: self.Resolve(na.scope), seq: make(map[Resource]uint32)}
    for r, q := range na.seq {
        nn.seq[r] = q
    }
    for r, q := range nb.seq {
        if _, ok := nn.seq[r]; ok {
            panic("sir: illegal fusion, effect chains collide on " + string(r))
        }
        nn.seq[r] = q
    }
    for _, p := range append(append([]Symbol(nil), na.preds...), nb.preds...) {
        if q, ok := subst[p]; ok {
            nn.preds = append(nn.preds, q)
        } else {
            nn.preds = append(nn.preds, p)
        }
    }
    self.nodes[rep] = nn

    /* redirect chain tails */
    for _, old := range []Symbol{a, b} {
        for _, r := range self.resourcesOf(self.nodes[old]) {
            k := _ChainKey{scope: nn.scope, res: r}
            if c := self.chains[k]; c != nil && c.last == old {
                c.last = rep
            }
        }
    }
}

func (self *Tracker) resourcesOf(ne *_NodeEffect) []Resource {
    rs := make([]Resource, 0, len(ne.seq))
    for r := range ne.seq {
        rs = append(rs, r)
    }
    sort.Slice(rs, func(i int, j int) bool { return rs[i] < rs[j] })
    return rs
}

// Predecessors returns the effect predecessors of s: for every resource s
// touches, the previous node on the same (scope, resource) chain. These are
// hard scheduling edges.
func (self *Tracker) Predecessors(s Symbol) []Symbol {
    if ne := self.nodes[s]; ne != nil {
        return ne.preds
    }
    return nil
}

// ScopeOf reports the scope an effectful node is pinned to.
func (self *Tracker) ScopeOf(s Symbol) (ScopeID, bool) {
    if ne := self.nodes[s]; ne != nil {
        return self.Resolve(ne.scope), true
    }
    return RootScope, false
}

// Precedes reports whether a must execute before b. It is defined for two
// effectful nodes pinned to the same scope that share a resource.
func (self *Tracker) Precedes(a Symbol, b Symbol) bool {
    na := self.nodes[a]
    nb := self.nodes[b]

    if na == nil || nb == nil {
        return false
    }
    if self.Resolve(na.scope) != self.Resolve(nb.scope) {
        return false
    }

    /* compare positions on any shared resource; chains assign positions in
     * insertion order, so any shared resource gives the same answer */
    for r, sa := range na.seq {
        if sb, ok := nb.seq[r]; ok {
            return sa < sb
        }
    }
    return false
}

// Tails returns the current chain tail of every resource touched in scope,
// in deterministic resource order. Blocks capture these as extra roots so
// trailing effects stay reachable.
func (self *Tracker) Tails(scope ScopeID) []Symbol {
    scope = self.Resolve(scope)
    rs := make([]Resource, 0, len(self.touched[scope]))

    for r := range self.touched[scope] {
        rs = append(rs, r)
    }
    sort.Slice(rs, func(i int, j int) bool { return rs[i] < rs[j] })

    out := make([]Symbol, 0, len(rs))
    for _, r := range rs {
        if c := self.chains[_ChainKey{scope: scope, res: r}]; c != nil && c.last != SymNone {
            out = append(out, c.last)
        }
    }
    return out
}

// TouchedDeep returns every resource touched by scope or any scope nested
// inside it, in sorted order. Loop closure uses it to summarize body
// effects onto the loop node itself.
func (self *Tracker) TouchedDeep(scope ScopeID) []Resource {
    set := make(map[Resource]struct{})
    scope = self.Resolve(scope)

    for s, m := range self.touched {
        if !self.within(s, scope) {
            continue
        }
        for r := range m {
            set[r] = struct{}{}
        }
    }

    rs := make([]Resource, 0, len(set))
    for r := range set {
        rs = append(rs, r)
    }
    sort.Slice(rs, func(i int, j int) bool { return rs[i] < rs[j] })
    return rs
}

func (self *Tracker) within(s ScopeID, ancestor ScopeID) bool {
    s = self.Resolve(s)
    for {
        if s == ancestor {
            return true
        }
        if s == RootScope {
            return false
        }
        s = self.Resolve(self.parent[s])
    }
}

// mergeScopes re-pins everything in scope from onto scope to. It is only
// legal when the two scopes touch disjoint resources; the fusion engine
// guarantees this through its eligibility test, so a collision here is an
// internal defect.
func (self *Tracker) mergeScopes(from ScopeID, to ScopeID) {
    from = self.Resolve(from)
    to = self.Resolve(to)

    if from == to {
        return
    }

    /* move the chains over */
    for k, c := range self.chains {
        if self.Resolve(k.scope) != from {
            continue
        }
        nk := _ChainKey{scope: to, res: k.res}
        if self.chains[nk] != nil {
            panic("sir: illegal fusion, effect chains collide on " + string(k.res))
        }
        self.chains[nk] = c
        delete(self.chains, k)
        self.touch(to, k.res)
    }

    delete(self.touched, from)
    self.alias[from] = to
}
