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
    `strings`
)

// Symbol is an opaque handle to the result of exactly one interned node
// definition. Nodes only ever reference each other through symbols, never
// through direct pointers, so the graph can be rewritten and garbage
// collected by index.
type Symbol uint32

// SymNone is the invalid symbol, used for optional operand slots.
const SymNone Symbol = ^Symbol(0)

func (self Symbol) String() string {
    if self == SymNone {
        return "s?"
    } else {
        return fmt.Sprintf("s%d", uint32(self))
    }
}

// Kind tags the operation a node performs. The core only interprets the
// closed kinds below; front-ends may introduce arbitrary additional tags,
// which the core treats as opaque beyond structural equality.
type Kind string

const (
    KindConst Kind = "const"
    KindIndex Kind = "index"
    KindLoop  Kind = "loop"
    KindProj  Kind = "proj"
    KindAt    Kind = "at"
    KindLen   Kind = "len"
    KindCond  Kind = "cond"
)

// Resource names a piece of shared state that effectful nodes read or write.
type Resource string

// ResAmbient is the resource that "simple" effects order on. Two simple
// nodes are never reordered relative to each other.
const ResAmbient Resource = "<ambient>"

type EffectClass uint8

const (
    EffNone EffectClass = iota
    EffRead
    EffWrite
    EffSimple
)

// Effect summarizes how a node interacts with shared state. All effectful
// nodes on a common resource keep their insertion order in every schedule.
type Effect struct {
    Class     EffectClass
    Resources []Resource
}

func Pure() Effect {
    return Effect{Class: EffNone}
}

func Reads(rs ...Resource) Effect {
    return Effect{Class: EffRead, Resources: rs}
}

func Writes(rs ...Resource) Effect {
    return Effect{Class: EffWrite, Resources: rs}
}

func Simple() Effect {
    return Effect{Class: EffSimple}
}

func (self Effect) Pure() bool {
    return self.Class == EffNone
}

func (self Effect) resources() []Resource {
    switch self.Class {
        case EffNone   : return nil
        case EffSimple : return []Resource{ResAmbient}
        default        : return self.Resources
    }
}

type ElemOp uint8

const (
    ElemCollect ElemOp = iota
    ElemReduce
    ElemFilter
)

func (self ElemOp) String() string {
    switch self {
        case ElemCollect : return "collect"
        case ElemReduce  : return "reduce"
        case ElemFilter  : return "filter"
        default          : return "???"
    }
}

// ElemSpec is one named element producer of a parallel loop body: a
// collected element, a reduction accumulator, or a filter predicate.
type ElemSpec struct {
    Name string
    Op   ElemOp
    Val  Symbol
    Init Symbol
    Comb Kind
}

// LoopSpec is the shape of a parallel loop node: the iteration range, the
// index symbol the loop binds, the effect scope its body was built in, the
// element producers, and the body's per-resource effect chain tails.
//
// Iterations are parallel-safe for the consumer: each index is processed
// exactly once, in no guaranteed order, and concurrent iterations may only
// touch disjoint locations.
type LoopSpec struct {
    Range   Symbol
    Index   Symbol
    Scope   ScopeID
    Elems   []ElemSpec
    Effects []Symbol
}

// CondSpec is the shape of a conditional node: the condition, the two arm
// results, the arm effect scopes, and each arm's effect chain tails.
type CondSpec struct {
    Cond        Symbol
    Then        Symbol
    Else        Symbol
    ThenScope   ScopeID
    ElseScope   ScopeID
    ThenEffects []Symbol
    ElseEffects []Symbol
}

// NodeDef is an immutable node definition: a kind tag, the ordered operand
// symbols, an effect summary, and kind-specific shape for the closed loop
// and conditional kinds. Definitions are never mutated once interned;
// rewrites always produce new definitions under new symbols.
type NodeDef struct {
    Kind Kind
    Args []Symbol
    Lit  int64
    Eff  Effect
    Loop *LoopSpec
    Cond *CondSpec
}

func (self *NodeDef) String() string {
    switch self.Kind {
        case KindConst : return fmt.Sprintf("const $%d", self.Lit)
        case KindProj  : return fmt.Sprintf("proj %s #%d", self.Args[0], self.Lit)
        case KindLoop  : return self.Loop.String()
        default        : break
    }
    args := make([]string, 0, len(self.Args))
    for _, a := range self.Args {
        args = append(args, a.String())
    }
    return fmt.Sprintf("%s %s", self.Kind, strings.Join(args, " "))
}

func (self *LoopSpec) String() string {
    elems := make([]string, 0, len(self.Elems))
    for _, e := range self.Elems {
        elems = append(elems, fmt.Sprintf("%s:%s=%s", e.Name, e.Op, e.Val))
    }
    return fmt.Sprintf("loop %s @%s {%s}", self.Range, self.Index, strings.Join(elems, ", "))
}

/** Structural Keys **/

// structuralKey renders a definition into the string used as the global
// value numbering key. Loop bodies are rendered with bound indices replaced
// by positional placeholders, so two loops of identical range and body shape
// intern to one binding even when built with distinct index symbols.
func (self *Store) structuralKey(def *NodeDef) string {
    var sb strings.Builder
    self.keyDef(&sb, def, nil)
    return sb.String()
}

func (self *Store) keyDef(sb *strings.Builder, def *NodeDef, bound []Symbol) {
    switch def.Kind {
        case KindConst : fmt.Fprintf(sb, "$%d", def.Lit)
        case KindLoop  : self.keyLoop(sb, def.Loop, bound)
        default: {
            sb.WriteByte('(')
            sb.WriteString(string(def.Kind))
            if def.Kind == KindProj {
                fmt.Fprintf(sb, " #%d", def.Lit)
            }
            for _, a := range def.Args {
                sb.WriteByte(' ')
                self.keySym(sb, a, bound)
            }
            sb.WriteByte(')')
        }
    }
}

func (self *Store) keyLoop(sb *strings.Builder, spec *LoopSpec, bound []Symbol) {
    sb.WriteString("(loop ")
    self.keySym(sb, spec.Range, bound)
    inner := append(bound[:len(bound):len(bound)], spec.Index)

    /* body shape, alpha-normalized over the loop index */
    for _, e := range spec.Elems {
        fmt.Fprintf(sb, " %s:%s", e.Name, e.Op)
        if e.Op == ElemReduce {
            fmt.Fprintf(sb, "[%s]", e.Comb)
            sb.WriteByte('<')
            self.keySym(sb, e.Init, bound)
            sb.WriteByte('>')
        }
        sb.WriteByte('=')
        self.keySym(sb, e.Val, inner)
    }

    /* effect tails are part of the shape, pure loops have none */
    for _, s := range spec.Effects {
        sb.WriteString(" !")
        self.keySym(sb, s, inner)
    }
    sb.WriteByte(')')
}

func (self *Store) keySym(sb *strings.Builder, s Symbol, bound []Symbol) {
    for i, b := range bound {
        if b == s {
            fmt.Fprintf(sb, "@%d", i)
            return
        }
    }

    /* outside of loop bodies operands are already value numbered, so the
     * bare symbol is canonical; inside a body the subtree must be expanded
     * so that alpha-equivalent bodies render identically */
    if len(bound) == 0 {
        sb.WriteString(s.String())
        return
    }

    /* effectful nodes keep their identity, they never merge */
    def := self.mustBinding(s)
    if !def.Eff.Pure() || def.Kind == KindIndex {
        sb.WriteString(s.String())
        return
    }
    self.keyDef(sb, def, bound)
}
