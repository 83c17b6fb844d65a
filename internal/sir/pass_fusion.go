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
)

// Fusion merges eligible parallel-loop pairs into single loop nodes with
// composite bodies, before scheduling. Two loops are candidates when they
// iterate the same range symbol (horizontal), or when the second ranges
// over the length of a collection the first produces (vertical); a merge is
// refused when an intermediate node would turn into a cycle, when it would
// interleave effectful bodies that share a resource, or when either body
// carries a filter (a filter compacts its loop's collections and guards
// only its own loop's slots, neither of which a merged body can express).
//
// Merging re-indexes the second body onto the first loop's index and
// applies array contraction: per-index reads of the producer's collection
// become direct references to the produced element value. The pass deletes
// nothing; collections left without consumers simply become unreachable.
//
// The pass fuses greedily, lowest symbol pair first, until it reaches a
// fixed point.
type Fusion struct{}

func (self Fusion) Apply(p *Program, roots []Symbol) []Symbol {
    if !p.opts.EnableFusion {
        return roots
    }

    max := p.opts.MaxFusionRounds
    for round := 0; max == 0 || round < max; round++ {
        ns, ok := self.fuseOnce(p.store, roots)
        stats.FusionRounds++
        if !ok {
            return roots
        }
        roots = ns
        stats.FusedLoops++
    }
    return roots
}

func (self Fusion) fuseOnce(st *Store, roots []Symbol) ([]Symbol, bool) {
    g := newGraph(st)
    reach := g.Reachable(roots)

    /* deterministic candidate order */
    loops := make([]Symbol, 0, len(reach))
    for s := range reach {
        if st.mustBinding(s).Kind == KindLoop {
            loops = append(loops, s)
        }
    }
    sort.Slice(loops, func(i int, j int) bool { return loops[i] < loops[j] })

    for _, l1 := range loops {
        for _, l2 := range loops {
            if l1 == l2 {
                continue
            }
            if !self.eligible(st, g, reach, l1, l2) {
                continue
            }
            return self.merge(st, g, reach, roots, l1, l2), true
        }
    }
    return roots, false
}

// eligible applies the fusion eligibility rule to the ordered pair
// (producer l1, consumer l2).
func (self Fusion) eligible(st *Store, g *Graph, reach map[Symbol]struct{}, l1 Symbol, l2 Symbol) bool {
    d1 := st.mustBinding(l1)
    d2 := st.mustBinding(l2)

    /* same iteration range, or l2 ranges over a collection l1 produces */
    if d2.Loop.Range != d1.Loop.Range && !self.rangeOver(st, d2.Loop.Range, l1) {
        return false
    }

    /* a filtered producer collects a compacted array, so its length and
     * positions are not the raw index space; a filtered sibling cannot keep
     * its guard scoped to its own slots in a flat element list */
    if hasFilter(d1.Loop) || hasFilter(d2.Loop) {
        stats.FusionRejects++
        return false
    }

    /* effectful bodies must not interleave on a shared resource */
    if self.effectClash(st, d1.Loop.Scope, d2.Loop.Scope) {
        stats.FusionRejects++
        return false
    }

    /* two effectful loops must sit on the same effect chain scope, or the
     * merged node cannot take over both positions */
    s1, e1 := st.effects.ScopeOf(l1)
    s2, e2 := st.effects.ScopeOf(l2)
    if e1 && e2 && s1 != s2 {
        stats.FusionRejects++
        return false
    }

    /* the producer must not depend on the consumer */
    if g.DependsOn(l1, l2) {
        stats.FusionRejects++
        return false
    }

    /* no node may be required between the two loops */
    if self.pathBetween(st, g, reach, l1, l2, d2.Loop.Index) {
        stats.FusionRejects++
        return false
    }
    return true
}

// rangeOver reports whether rng is len(proj(producer, k)) for a collected
// output, the producer-consumer form of the eligibility rule.
func (self Fusion) rangeOver(st *Store, rng Symbol, producer Symbol) bool {
    def := st.mustBinding(rng)
    return def.Kind == KindLen && self.collectProjOf(st, def.Args[0], producer) >= 0
}

func (self Fusion) effectClash(st *Store, s1 ScopeID, s2 ScopeID) bool {
    r1 := st.effects.TouchedDeep(s1)
    r2 := st.effects.TouchedDeep(s2)
    for _, a := range r1 {
        for _, b := range r2 {
            if a == b {
                return true
            }
        }
    }
    return false
}

// pathBetween searches for a node that consumes l1's aggregate output and
// feeds l2's closure. The walk is forward from l1 over the consumer index;
// contractible accessors (projections of l1, per-index reads at l2's own
// index, and lengths of l1's collections) are transparent: projections are
// walked through, reads and lengths terminate a path because contraction
// removes their dependence on l1.
func (self Fusion) pathBetween(st *Store, g *Graph, reach map[Symbol]struct{}, l1 Symbol, l2 Symbol, idx2 Symbol) bool {
    anc := g.Reachable([]Symbol{l2})
    users := g.Consumers(reach)

    q := lane.NewQueue()
    seen := map[Symbol]struct{}{l1: {}}
    q.Enqueue(l1)

    for !q.Empty() {
        s := q.Dequeue().(Symbol)
        for _, u := range users[s] {
            if _, ok := seen[u]; ok {
                continue
            }
            seen[u] = struct{}{}

            def := st.mustBinding(u)
            switch {
                case def.Kind == KindProj && def.Args[0] == l1: {
                    /* transparent container, keep walking */
                    q.Enqueue(u)
                }
                case def.Kind == KindLen && self.collectProjOf(st, def.Args[0], l1) >= 0: {
                    /* rewritten to the shared range, path ends */
                }
                case def.Kind == KindAt && self.collectProjOf(st, def.Args[0], l1) >= 0 && def.Args[1] == idx2: {
                    /* contracted to the element value, path ends */
                }
                default: {
                    if _, ok := anc[u]; ok {
                        return true
                    }
                    q.Enqueue(u)
                }
            }
        }
    }
    return false
}

// collectProjOf returns the element slot when s projects a collected
// output of loop, or -1.
func (self Fusion) collectProjOf(st *Store, s Symbol, loop Symbol) int {
    def := st.mustBinding(s)
    if def.Kind != KindProj || def.Args[0] != loop {
        return -1
    }
    spec := st.mustBinding(loop).Loop
    if k := int(def.Lit); k >= 0 && k < len(spec.Elems) && spec.Elems[k].Op == ElemCollect {
        return k
    }
    return -1
}

// merge builds the fused loop node and rewrites the graph around it,
// returning the new root symbols.
func (self Fusion) merge(st *Store, g *Graph, reach map[Symbol]struct{}, roots []Symbol, l1 Symbol, l2 Symbol) []Symbol {
    d1 := st.mustBinding(l1)
    d2 := st.mustBinding(l2)
    sp1 := d1.Loop
    sp2 := d2.Loop

    /* the merged body lives in l1's scope */
    st.effects.mergeScopes(sp2.Scope, sp1.Scope)

    /* contraction seeds: re-index l2's body, read produced elements
     * directly, and fold lengths of the produced collections back to the
     * shared range */
    seeds := map[Symbol]Symbol{sp2.Index: sp1.Index}
    ordered := make([]Symbol, 0, len(reach))
    for s := range reach {
        ordered = append(ordered, s)
    }
    sort.Slice(ordered, func(i int, j int) bool { return ordered[i] < ordered[j] })

    for _, s := range ordered {
        def := st.mustBinding(s)
        switch def.Kind {
            case KindAt: {
                if k := self.collectProjOf(st, def.Args[0], l1); k >= 0 && def.Args[1] == sp2.Index {
                    seeds[s] = sp1.Elems[k].Val
                }
            }
            case KindLen: {
                if self.collectProjOf(st, def.Args[0], l1) >= 0 {
                    seeds[s] = sp1.Range
                }
            }
        }
    }

    /* rebuild l2's body over l1's index */
    rw := newRewriter(st, seeds, nil)
    spec := &LoopSpec{
        Range:   sp1.Range,
        Index:   sp1.Index,
        Scope:   sp1.Scope,
        Elems:   append([]ElemSpec(nil), sp1.Elems...),
        Effects: append([]Symbol(nil), sp1.Effects...),
    }
    for _, e := range sp2.Elems {
        ne := e
        ne.Val = rw.rewrite(e.Val)
        if e.Init != SymNone {
            ne.Init = rw.rewrite(e.Init)
        }
        spec.Elems = append(spec.Elems, ne)
    }
    for _, s := range sp2.Effects {
        spec.Effects = append(spec.Effects, rw.rewrite(s))
    }

    def := NodeDef{
        Kind: KindLoop,
        Args: loopArgs(spec),
        Eff:  effectSummary(st.effects.TouchedDeep(spec.Scope)),
        Loop: spec,
    }

    /* the merged node takes over the effect-order positions of whichever
     * originals were effectful */
    var merged Symbol
    if def.Eff.Pure() {
        merged = st.internPure(def)
    } else {
        merged = st.alloc(def)
        st.effects.join(l1, l2, merged, rw.subst)
    }

    /* retarget every consumer of the originals; l2's projections shift
     * past l1's element slots */
    full := newRewriter(st, rw.subst, map[Symbol]int64{l2: int64(len(sp1.Elems))})
    full.subst[l1] = merged
    full.subst[l2] = merged

    out := make([]Symbol, 0, len(roots))
    for _, r := range roots {
        out = append(out, full.rewrite(r))
    }
    return out
}

func hasFilter(spec *LoopSpec) bool {
    for _, e := range spec.Elems {
        if e.Op == ElemFilter {
            return true
        }
    }
    return false
}

func effectSummary(rs []Resource) Effect {
    if len(rs) == 0 {
        return Pure()
    }
    sort.Slice(rs, func(i int, j int) bool { return rs[i] < rs[j] })
    out := rs[:1]
    for _, r := range rs[1:] {
        if r != out[len(out)-1] {
            out = append(out, r)
        }
    }
    return Writes(out...)
}

func loopArgs(spec *LoopSpec) []Symbol {
    args := []Symbol{spec.Range}
    for _, e := range spec.Elems {
        if e.Init != SymNone {
            args = append(args, e.Init)
        }
    }
    for _, e := range spec.Elems {
        args = append(args, e.Val)
    }
    args = append(args, spec.Effects...)
    return args
}
