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
    `testing`

    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestEffect_ChainOrderIsInsertionOrder(t *testing.T) {
    p := testProgram()
    v := p.Pure("input-a")
    w1 := p.Effectful("print", Simple(), v)
    w2 := p.Effectful("print", Simple(), v)
    w3 := p.Effectful("print", Simple(), v)

    assert.True(t, p.Precedes(w1, w2))
    assert.True(t, p.Precedes(w2, w3))
    assert.True(t, p.Precedes(w1, w3))
    assert.False(t, p.Precedes(w3, w1))
    assert.False(t, p.Precedes(w1, w1))
}

func TestEffect_PredecessorsLinkSameResourceOnly(t *testing.T) {
    p := testProgram()
    v := p.Pure("input-a")
    a1 := p.Effectful("store", Writes("file-a"), v)
    b1 := p.Effectful("store", Writes("file-b"), v)
    a2 := p.Effectful("store", Writes("file-a"), v)

    require.Empty(t, p.effects.Predecessors(a1))
    require.Empty(t, p.effects.Predecessors(b1))
    require.Equal(t, []Symbol{a1}, p.effects.Predecessors(a2))

    assert.True(t, p.Precedes(a1, a2))
    assert.False(t, p.Precedes(a1, b1), "disjoint resources are unordered")
}

func TestEffect_RootsAreChainTails(t *testing.T) {
    p := testProgram()
    v := p.Pure("input-a")
    require.Empty(t, p.EffectRoots())

    a1 := p.Effectful("store", Writes("file-a"), v)
    require.Equal(t, []Symbol{a1}, p.EffectRoots())

    b1 := p.Effectful("store", Writes("file-b"), v)
    a2 := p.Effectful("store", Writes("file-a"), v)
    require.Equal(t, []Symbol{a2, b1}, p.EffectRoots())
}

func TestEffect_LoopBodyOpensItsOwnChains(t *testing.T) {
    p := testProgram()
    data := p.Pure("input-data")
    w0 := p.Effectful("print", Simple(), data)

    lb := p.NewLoop(p.Len(data))
    wi := p.Effectful("print", Simple(), p.At(data, lb.Index()))
    l := lb.Close()

    /* the body print is pinned to the body scope, not to the root chain */
    assert.False(t, p.Precedes(w0, wi))

    /* the loop node itself takes a position on the root chain */
    assert.True(t, p.Precedes(w0, l))
    require.Equal(t, []Symbol{l}, p.EffectRoots())

    /* and the body tails are captured as loop operands */
    def := p.store.mustBinding(l)
    require.Equal(t, []Symbol{wi}, def.Loop.Effects)
}

func TestEffect_ReadersAreOrderedToo(t *testing.T) {
    p := testProgram()
    v := p.Pure("input-a")
    r := p.Effectful("load", Reads("heap"), v)
    w := p.Effectful("store", Writes("heap"), v)

    assert.True(t, p.Precedes(r, w))
    require.Equal(t, []Symbol{r}, p.effects.Predecessors(w))
}

func TestEffect_CondArmsAreSeparateScopes(t *testing.T) {
    p := testProgram()
    v := p.Pure("input-a")
    c := p.Pure("flag")

    var tw, ew Symbol
    s := p.Cond(c,
        func() Symbol { tw = p.Effectful("print", Simple(), v); return tw },
        func() Symbol { ew = p.Effectful("print", Simple(), v); return ew },
    )

    assert.False(t, p.Precedes(tw, ew), "arm effects are unordered across arms")

    def := p.store.mustBinding(s)
    require.Equal(t, []Symbol{tw}, def.Cond.ThenEffects)
    require.Equal(t, []Symbol{ew}, def.Cond.ElseEffects)
    require.False(t, def.Eff.Pure(), "arm effects summarize onto the node")
}
