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
    `github.com/stagekit/mir/internal/opts`
)

// Program is one compilation context: a node store, its effect tracker, and
// the options the passes run under. The graph is transient; it is rebuilt
// per compilation run and never persisted.
//
// A Program is exclusively owned by a single front-end at a time. Symbols
// must never be shared across programs.
type Program struct {
    opts    opts.Options
    store   *Store
    effects *Tracker
}

func NewProgram(o opts.Options) *Program {
    t := newTracker()
    return &Program{
        opts:    o,
        store:   newStore(t),
        effects: t,
    }
}

// Intern is the generic construction entry point: it stores a definition
// built from a kind tag, operands and an effect summary, value numbering
// pure definitions. The core assumes nothing about kind semantics beyond
// structural equality.
func (self *Program) Intern(kind Kind, args []Symbol, eff Effect) (Symbol, error) {
    return self.store.Intern(NodeDef{Kind: kind, Args: args, Eff: eff})
}

// Pure interns a pure node, panicking on unbound operands. Front-ends that
// construct graphs programmatically use this form.
func (self *Program) Pure(kind Kind, args ...Symbol) Symbol {
    s, err := self.Intern(kind, args, Pure())
    if err != nil {
        panic(err.Error())
    }
    return s
}

// Effectful interns a node carrying an effect summary, panicking on
// unbound operands.
func (self *Program) Effectful(kind Kind, eff Effect, args ...Symbol) Symbol {
    s, err := self.Intern(kind, args, eff)
    if err != nil {
        panic(err.Error())
    }
    return s
}

// Const interns a compile-time constant.
func (self *Program) Const(v int64) Symbol {
    s, err := self.store.Intern(NodeDef{Kind: KindConst, Lit: v})
    if err != nil {
        panic(err.Error())
    }
    return s
}

// Len interns the length of a collection.
func (self *Program) Len(arr Symbol) Symbol {
    return self.Pure(KindLen, arr)
}

// At interns the element read arr[idx].
func (self *Program) At(arr Symbol, idx Symbol) Symbol {
    return self.Pure(KindAt, arr, idx)
}

// Proj interns the extraction of the k-th named output of a loop.
func (self *Program) Proj(loop Symbol, k int) Symbol {
    s, err := self.store.Intern(NodeDef{Kind: KindProj, Args: []Symbol{loop}, Lit: int64(k)})
    if err != nil {
        panic(err.Error())
    }
    return s
}

// Binding resolves a symbol to its definition.
func (self *Program) Binding(s Symbol) (*NodeDef, error) {
    return self.store.Binding(s)
}

// EffectRoots returns the tails of the current scope's effect chains.
// Including them in a block's root set keeps trailing effects alive across
// dead-code elimination.
func (self *Program) EffectRoots() []Symbol {
    return self.effects.Tails(self.effects.Current())
}

// Precedes reports the effect order between two effectful nodes on a
// shared resource.
func (self *Program) Precedes(a Symbol, b Symbol) bool {
    return self.effects.Precedes(a, b)
}

// Cond builds a conditional node. Each arm closure runs under its own
// effect scope; the arm results and the arms' effect tails become operands,
// so everything an arm needs is scheduled into that arm and nothing else
// is.
func (self *Program) Cond(c Symbol, then func() Symbol, els func() Symbol) Symbol {
    ts := self.effects.BeginScope()
    tv := then()
    tt := self.effects.Tails(ts)
    self.effects.EndScope()

    es := self.effects.BeginScope()
    ev := els()
    et := self.effects.Tails(es)
    self.effects.EndScope()

    spec := &CondSpec{
        Cond:        c,
        Then:        tv,
        Else:        ev,
        ThenScope:   ts,
        ElseScope:   es,
        ThenEffects: tt,
        ElseEffects: et,
    }

    args := append([]Symbol{c, tv, ev}, tt...)
    args = append(args, et...)

    def := NodeDef{
        Kind: KindCond,
        Args: args,
        Eff:  effectSummary(append(self.effects.TouchedDeep(ts), self.effects.TouchedDeep(es)...)),
        Cond: spec,
    }
    s, err := self.store.Intern(def)
    if err != nil {
        panic(err.Error())
    }
    return s
}

// NewLoop starts building a parallel loop over rng. The body is built
// between NewLoop and Close under the loop's own effect scope.
func (self *Program) NewLoop(rng Symbol) *LoopBuilder {
    if _, err := self.store.Binding(rng); err != nil {
        panic(err.Error())
    }
    return &LoopBuilder{
        p:     self,
        rng:   rng,
        idx:   self.store.freshIndex(),
        scope: self.effects.BeginScope(),
    }
}

// Compile runs the rewrite passes over the root set and schedules the
// result. This is the emitter boundary: the returned Schedule holds one
// ordered (Symbol, NodeDef) sequence per block.
func (self *Program) Compile(roots ...Symbol) (*Schedule, error) {
    roots = applyPasses(self, roots)
    dumpGraph(self.store, roots)
    return newScheduler(self.store).Schedule(roots)
}

// LoopBuilder accumulates the named element producers of one parallel
// loop. Iterations of the finished loop are parallel-safe for the
// executing runtime: each index exactly once, no order, disjoint writes.
type LoopBuilder struct {
    p      *Program
    rng    Symbol
    idx    Symbol
    scope  ScopeID
    elems  []ElemSpec
    closed bool
}

// Index returns the loop variable symbol.
func (self *LoopBuilder) Index() Symbol {
    return self.idx
}

// Collect adds a collected element producer and returns its output slot.
func (self *LoopBuilder) Collect(name string, val Symbol) int {
    return self.elem(ElemSpec{Name: name, Op: ElemCollect, Val: val, Init: SymNone})
}

// Reduce adds a reduction accumulator with the given combiner tag and
// returns its output slot. The initial value is evaluated once, outside
// the loop.
func (self *LoopBuilder) Reduce(name string, comb Kind, init Symbol, val Symbol) int {
    return self.elem(ElemSpec{Name: name, Op: ElemReduce, Val: val, Init: init, Comb: comb})
}

// Filter adds a filter predicate guarding the other producers.
func (self *LoopBuilder) Filter(pred Symbol) {
    self.elem(ElemSpec{Name: "filter", Op: ElemFilter, Val: pred, Init: SymNone})
}

func (self *LoopBuilder) elem(e ElemSpec) int {
    if self.closed {
        panic("sir: loop builder already closed")
    }
    self.elems = append(self.elems, e)
    return len(self.elems) - 1
}

// Close finishes the loop: it captures the body's effect tails, closes the
// scope, and interns the loop node. Loops with pure bodies are value
// numbered like any other pure node; a body effect summary pins the loop
// to the scope it was built in.
func (self *LoopBuilder) Close() Symbol {
    if self.closed {
        panic("sir: loop builder already closed")
    }
    self.closed = true

    tails := self.p.effects.Tails(self.scope)
    self.p.effects.EndScope()

    spec := &LoopSpec{
        Range:   self.rng,
        Index:   self.idx,
        Scope:   self.scope,
        Elems:   self.elems,
        Effects: tails,
    }

    def := NodeDef{
        Kind: KindLoop,
        Args: loopArgs(spec),
        Eff:  effectSummary(self.p.effects.TouchedDeep(self.scope)),
        Loop: spec,
    }

    s, err := self.p.store.Intern(def)
    if err != nil {
        panic(err.Error())
    }
    return s
}
