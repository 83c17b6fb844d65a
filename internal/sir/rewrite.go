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

// _Rewriter applies a symbol substitution to a region of the graph.
// Definitions are immutable, so rewriting rebuilds affected consumers
// bottom-up through the interning step (CSE applies to rebuilt nodes) and
// points them at the substituted symbols; untouched nodes are returned
// as-is. Orphaned bindings are left for the scheduler's reachability pass.
//
// Rebuilt effectful nodes keep the effect-order token of the node they
// replace: the substitution never reorders an effect chain.
type _Rewriter struct {
    st    *Store
    subst map[Symbol]Symbol
    shift map[Symbol]int64
}

func newRewriter(st *Store, seeds map[Symbol]Symbol, shift map[Symbol]int64) *_Rewriter {
    m := make(map[Symbol]Symbol, len(seeds))
    for k, v := range seeds {
        m[k] = v
    }
    return &_Rewriter{st: st, subst: m, shift: shift}
}

func (self *_Rewriter) rewrite(s Symbol) Symbol {
    if t, ok := self.subst[s]; ok {
        return t
    }

    /* index bindings are never rebuilt, only seeded */
    def := self.st.mustBinding(s)
    if def.Kind == KindIndex {
        self.subst[s] = s
        return s
    }

    /* break self-recursion before descending */
    self.subst[s] = s
    changed := false

    /* operands */
    args := make([]Symbol, len(def.Args))
    for i, a := range def.Args {
        args[i] = self.rewrite(a)
        changed = changed || args[i] != a
    }

    /* effect predecessors are dependencies too; rebuilding them must
     * happen before this node so the chain can be re-linked */
    for _, p := range self.st.effects.Predecessors(s) {
        if self.rewrite(p) != p {
            changed = true
        }
    }

    /* projection retargeted onto a fused loop shifts its element index */
    lit := def.Lit
    if def.Kind == KindProj {
        if off, ok := self.shift[def.Args[0]]; ok {
            lit += off
            changed = true
        }
    }

    loop := self.rewriteLoop(def.Loop, &changed)
    cond := self.rewriteCond(def.Cond, &changed)

    if !changed {
        return s
    }

    nd := NodeDef{
        Kind: def.Kind,
        Args: args,
        Lit:  lit,
        Eff:  def.Eff,
        Loop: loop,
        Cond: cond,
    }

    /* pure nodes go back through value numbering; effectful nodes take
     * over the old node's position in the effect order */
    var ns Symbol
    if nd.Eff.Pure() {
        ns = self.st.internPure(nd)
    } else {
        ns = self.st.alloc(nd)
        self.st.effects.replace(s, ns, self.subst)
    }

    self.subst[s] = ns
    return ns
}

func (self *_Rewriter) rewriteLoop(spec *LoopSpec, changed *bool) *LoopSpec {
    if spec == nil {
        return nil
    }

    ns := &LoopSpec{
        Range: self.rewrite(spec.Range),
        Index: spec.Index,
        Scope: spec.Scope,
        Elems: make([]ElemSpec, len(spec.Elems)),
    }

    /* the loop keeps binding the same index unless the substitution
     * explicitly re-indexes it */
    if t, ok := self.subst[spec.Index]; ok && t != spec.Index {
        ns.Index = t
    }

    *changed = *changed || ns.Range != spec.Range || ns.Index != spec.Index

    for i, e := range spec.Elems {
        ne := e
        ne.Val = self.rewrite(e.Val)
        if e.Init != SymNone {
            ne.Init = self.rewrite(e.Init)
        }
        *changed = *changed || ne.Val != e.Val || ne.Init != e.Init
        ns.Elems[i] = ne
    }

    for _, s := range spec.Effects {
        t := self.rewrite(s)
        *changed = *changed || t != s
        ns.Effects = append(ns.Effects, t)
    }
    return ns
}

func (self *_Rewriter) rewriteCond(spec *CondSpec, changed *bool) *CondSpec {
    if spec == nil {
        return nil
    }

    ns := &CondSpec{
        Cond:      self.rewrite(spec.Cond),
        Then:      self.rewrite(spec.Then),
        Else:      self.rewrite(spec.Else),
        ThenScope: spec.ThenScope,
        ElseScope: spec.ElseScope,
    }
    *changed = *changed || ns.Cond != spec.Cond || ns.Then != spec.Then || ns.Else != spec.Else

    for _, s := range spec.ThenEffects {
        t := self.rewrite(s)
        *changed = *changed || t != s
        ns.ThenEffects = append(ns.ThenEffects, t)
    }
    for _, s := range spec.ElseEffects {
        t := self.rewrite(s)
        *changed = *changed || t != s
        ns.ElseEffects = append(ns.ElseEffects, t)
    }
    return ns
}
