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
    `github.com/bytedance/gopkg/util/xxhash3`
)

type _Binding struct {
    key string
    sym Symbol
}

// Store is the arena that owns every node binding of one program. Symbols
// are indices into it. Bindings are created at most once per distinct
// structural definition among pure nodes (global value numbering) and are
// never mutated afterwards; liveness is defined purely by reachability from
// the current root set.
//
// A Store is exclusively owned by one compilation context; it is not safe
// for concurrent use.
type Store struct {
    defs    []NodeDef
    index   map[uint64][]_Binding
    effects *Tracker
    loops   map[Symbol]Symbol
}

func newStore(t *Tracker) *Store {
    return &Store{
        index:   make(map[uint64][]_Binding),
        effects: t,
        loops:   make(map[Symbol]Symbol),
    }
}

func (self *Store) Size() int {
    return len(self.defs)
}

// Binding resolves a symbol to its immutable definition.
func (self *Store) Binding(s Symbol) (*NodeDef, error) {
    if int(s) >= len(self.defs) || s == SymNone {
        return nil, UnboundSymbolError{Sym: s}
    }
    return &self.defs[s], nil
}

func (self *Store) mustBinding(s Symbol) *NodeDef {
    d, err := self.Binding(s)
    if err != nil {
        panic(err.Error())
    }
    return d
}

// Intern stores a definition and returns its symbol. A pure definition that
// is structurally equal to a previously interned pure definition returns
// the existing symbol with no side effect; effectful definitions and index
// bindings always allocate a fresh symbol, even when structurally equal
// (two writes are two writes).
func (self *Store) Intern(def NodeDef) (Symbol, error) {
    if err := self.checkArgs(&def); err != nil {
        return SymNone, err
    }
    return self.intern(def), nil
}

func (self *Store) checkArgs(def *NodeDef) error {
    for _, a := range def.Args {
        if _, err := self.Binding(a); err != nil {
            return err
        }
    }
    return nil
}

func (self *Store) intern(def NodeDef) Symbol {
    if def.Eff.Pure() && def.Kind != KindIndex {
        return self.internPure(def)
    }
    return self.internEffectful(def, self.effects.Current())
}

func (self *Store) internPure(def NodeDef) Symbol {
    key := self.structuralKey(&def)
    sum := xxhash3.HashString(key)

    /* structural hit, reuse the binding */
    for _, b := range self.index[sum] {
        if b.key == key {
            stats.StoreHit++
            return b.sym
        }
    }

    /* miss, allocate a fresh binding */
    sym := self.alloc(def)
    self.index[sum] = append(self.index[sum], _Binding{key: key, sym: sym})
    stats.StoreMiss++
    return sym
}

func (self *Store) internEffectful(def NodeDef, scope ScopeID) Symbol {
    sym := self.alloc(def)
    stats.StoreMiss++
    self.effects.attachAt(sym, def.Eff, scope)
    return sym
}

func (self *Store) alloc(def NodeDef) Symbol {
    sym := Symbol(len(self.defs))
    self.defs = append(self.defs, def)
    if def.Kind == KindLoop {
        self.loops[def.Loop.Index] = sym
    }
    return sym
}

// freshIndex allocates the index binding of a loop under construction.
// Index nodes are never value numbered: each loop binds its own.
func (self *Store) freshIndex() Symbol {
    sym := Symbol(len(self.defs))
    self.defs = append(self.defs, NodeDef{Kind: KindIndex})
    stats.StoreMiss++
    return sym
}

// loopOf maps an index symbol back to the loop that binds it.
func (self *Store) loopOf(idx Symbol) (Symbol, bool) {
    s, ok := self.loops[idx]
    return s, ok
}
