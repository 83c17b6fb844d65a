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
    `github.com/stagekit/mir/internal/opts`
)

func scheduledLoops(p *Program, sched *Schedule) []Symbol {
    var out []Symbol
    for s := range planNodes(sched.Root()) {
        if p.store.mustBinding(s).Kind == KindLoop {
            out = append(out, s)
        }
    }
    return out
}

func TestFusion_MergesSiblingReductions(t *testing.T) {
    p := testProgram()
    data := p.Pure("input-data")
    n := p.Len(data)

    lb1 := p.NewLoop(n)
    lb1.Reduce("sum", "add", p.Const(0), p.At(data, lb1.Index()))
    l1 := lb1.Close()

    lb2 := p.NewLoop(n)
    i2 := lb2.Index()
    lb2.Reduce("sumsq", "add", p.Const(0), p.Pure("mul", p.At(data, i2), p.At(data, i2)))
    l2 := lb2.Close()

    mean := p.Pure("div", p.Proj(l1, 0), n)
    msq := p.Pure("div", p.Proj(l2, 0), n)

    sched, err := p.Compile(mean, msq)
    require.NoError(t, err)
    checkBlockOrder(t, p.store, sched.Root())

    loops := scheduledLoops(p, sched)
    require.Len(t, loops, 1, "both traversals collapse into one")

    spec := p.store.mustBinding(loops[0]).Loop
    require.Len(t, spec.Elems, 2)
    assert.Equal(t, "sum", spec.Elems[0].Name)
    assert.Equal(t, "sumsq", spec.Elems[1].Name)
    assert.Equal(t, ElemReduce, spec.Elems[0].Op)
    assert.Equal(t, ElemReduce, spec.Elems[1].Op)

    /* projections of the second loop shift past the first loop's slots */
    roots := sched.Roots()
    require.Len(t, roots, 2)
    pm := p.store.mustBinding(p.store.mustBinding(roots[0]).Args[0])
    pq := p.store.mustBinding(p.store.mustBinding(roots[1]).Args[0])
    require.Equal(t, KindProj, pm.Kind)
    require.Equal(t, KindProj, pq.Kind)
    assert.Equal(t, loops[0], pm.Args[0])
    assert.Equal(t, loops[0], pq.Args[0])
    assert.Equal(t, int64(0), pm.Lit)
    assert.Equal(t, int64(1), pq.Lit)
}

func TestFusion_ContractsProducerConsumerChain(t *testing.T) {
    p := testProgram()
    data := p.Pure("input-data")

    lb1 := p.NewLoop(p.Len(data))
    i1 := lb1.Index()
    lb1.Collect("sq", p.Pure("mul", p.At(data, i1), p.At(data, i1)))
    l1 := lb1.Close()
    a := p.Proj(l1, 0)

    lb2 := p.NewLoop(p.Len(a))
    i2 := lb2.Index()
    lb2.Collect("tw", p.Pure("add", p.At(a, i2), p.Const(1)))
    l2 := lb2.Close()
    out := p.Proj(l2, 0)

    sched, err := p.Compile(out)
    require.NoError(t, err)
    checkBlockOrder(t, p.store, sched.Root())

    loops := scheduledLoops(p, sched)
    require.Len(t, loops, 1)

    /* the intermediate collection is gone: the consumer body reads the
     * produced element value directly */
    spec := p.store.mustBinding(loops[0]).Loop
    require.Len(t, spec.Elems, 2)
    add := p.store.mustBinding(spec.Elems[1].Val)
    require.Equal(t, Kind("add"), add.Kind)
    assert.Equal(t, spec.Elems[0].Val, add.Args[0])

    ns := planNodes(sched.Root())
    assert.NotContains(t, ns, l1)
    assert.NotContains(t, ns, l2)
    assert.NotContains(t, ns, a)
    assert.NotContains(t, ns, p.Len(a))

    /* the surviving projection targets the merged loop's shifted slot */
    od := p.store.mustBinding(sched.Roots()[0])
    require.Equal(t, KindProj, od.Kind)
    assert.Equal(t, loops[0], od.Args[0])
    assert.Equal(t, int64(1), od.Lit)
}

func TestFusion_ReachesFixedPoint(t *testing.T) {
    /* zero cap: the default, iterate until no eligible pair remains */
    p := NewProgram(opts.Options{EnableFusion: true})
    data := p.Pure("input-data")
    n := p.Len(data)

    mk := func(name string, comb Kind, body func(Symbol) Symbol) Symbol {
        lb := p.NewLoop(n)
        lb.Reduce(name, comb, p.Const(0), body(lb.Index()))
        return lb.Close()
    }
    l1 := mk("sum", "add", func(i Symbol) Symbol { return p.At(data, i) })
    l2 := mk("sumsq", "add", func(i Symbol) Symbol { return p.Pure("mul", p.At(data, i), p.At(data, i)) })
    l3 := mk("min", "min", func(i Symbol) Symbol { return p.At(data, i) })

    roots := []Symbol{p.Proj(l1, 0), p.Proj(l2, 0), p.Proj(l3, 0)}
    f := Fusion{}

    r1 := f.Apply(p, roots)
    r2 := f.Apply(p, r1)
    require.Equal(t, r1, r2, "a second run must be a no-op")

    g := newGraph(p.store)
    reach := g.Reachable(r1)
    nloops := 0
    for s := range reach {
        if p.store.mustBinding(s).Kind == KindLoop {
            nloops++
        }
    }
    require.Equal(t, 1, nloops, "all three reductions share one traversal")
    require.Len(t, p.store.mustBinding(r1[0]).Args, 1)
}

func TestFusion_RejectsObservableInterleaving(t *testing.T) {
    p := testProgram()
    data := p.Pure("input-data")
    n := p.Len(data)

    mk := func() Symbol {
        lb := p.NewLoop(n)
        p.Effectful("emit", Simple(), p.At(data, lb.Index()))
        return lb.Close()
    }
    l1 := mk()
    l2 := mk()

    roots := []Symbol{l1, l2}
    out := Fusion{}.Apply(p, roots)
    require.Equal(t, roots, out, "interleaving two emit streams is observable")

    /* and the schedule keeps their chain order */
    sched, err := p.Compile(l1, l2)
    require.NoError(t, err)
    pos := planPos(sched.Root())
    require.Contains(t, pos, l1)
    require.Contains(t, pos, l2)
    assert.Less(t, pos[l1], pos[l2])
}

func TestFusion_RejectsIntermediateDependency(t *testing.T) {
    p := testProgram()
    data := p.Pure("input-data")

    lb1 := p.NewLoop(p.Len(data))
    i1 := lb1.Index()
    lb1.Collect("sq", p.Pure("mul", p.At(data, i1), p.At(data, i1)))
    l1 := lb1.Close()
    a := p.Proj(l1, 0)

    /* the whole-collection total must see every element before the second
     * loop starts, so the pair cannot merge */
    total := p.Pure("sum-all", a)

    lb2 := p.NewLoop(p.Len(a))
    i2 := lb2.Index()
    lb2.Collect("norm", p.Pure("div", p.At(a, i2), total))
    l2 := lb2.Close()
    out := p.Proj(l2, 0)

    sched, err := p.Compile(out)
    require.NoError(t, err)
    checkBlockOrder(t, p.store, sched.Root())

    loops := scheduledLoops(p, sched)
    require.Len(t, loops, 2)

    pos := planPos(sched.Root())
    assert.Less(t, pos[l1], pos[total])
    assert.Less(t, pos[total], pos[l2])
}

func TestFusion_MergesLoopsWithDisjointEffects(t *testing.T) {
    p := testProgram()
    data := p.Pure("input-data")
    n := p.Len(data)

    lb1 := p.NewLoop(n)
    p.Effectful("store", Writes("sink-a"), p.At(data, lb1.Index()))
    l1 := lb1.Close()

    lb2 := p.NewLoop(n)
    p.Effectful("store", Writes("sink-b"), p.At(data, lb2.Index()))
    l2 := lb2.Close()

    out := Fusion{}.Apply(p, []Symbol{l1, l2})
    require.Len(t, out, 2)
    require.Equal(t, out[0], out[1], "both roots collapse onto the merged node")

    def := p.store.mustBinding(out[0])
    require.Equal(t, KindLoop, def.Kind)
    require.Len(t, def.Loop.Effects, 2)
    require.False(t, def.Eff.Pure())

    sched, err := p.Compile(out[0])
    require.NoError(t, err)

    body := sched.Root().Body(out[0])
    require.NotNil(t, body)
    stores := 0
    for _, sn := range sched.Ordered(body) {
        if sn.Def.Kind == "store" {
            stores++
        }
    }
    require.Equal(t, 2, stores)
}

func TestFusion_RejectsFilteredProducer(t *testing.T) {
    p := testProgram()
    data := p.Pure("input-data")

    /* the filter compacts the kept collection, so len(kept) is smaller
     * than the raw range and positions in it are not loop indices */
    lb1 := p.NewLoop(p.Len(data))
    i1 := lb1.Index()
    lb1.Filter(p.Pure("is-even", p.At(data, i1)))
    lb1.Collect("kept", p.At(data, i1))
    l1 := lb1.Close()
    a := p.Proj(l1, 1)

    lb2 := p.NewLoop(p.Len(a))
    i2 := lb2.Index()
    lb2.Collect("tw", p.Pure("mul", p.At(a, i2), i2))
    l2 := lb2.Close()
    out := p.Proj(l2, 0)

    sched, err := p.Compile(out)
    require.NoError(t, err)
    checkBlockOrder(t, p.store, sched.Root())

    /* no contraction: the consumer keeps reading through the compacted
     * collection */
    loops := scheduledLoops(p, sched)
    require.Len(t, loops, 2)

    ns := planNodes(sched.Root())
    assert.Contains(t, ns, l1)
    assert.Contains(t, ns, l2)
    assert.Contains(t, ns, a)
    assert.Contains(t, ns, p.Len(a))
}

func TestFusion_RejectsFilteredSibling(t *testing.T) {
    p := testProgram()
    data := p.Pure("input-data")
    n := p.Len(data)

    lb1 := p.NewLoop(n)
    i1 := lb1.Index()
    lb1.Filter(p.Pure("is-pos", p.At(data, i1)))
    lb1.Reduce("sum", "add", p.Const(0), p.At(data, i1))
    l1 := lb1.Close()

    lb2 := p.NewLoop(n)
    i2 := lb2.Index()
    lb2.Reduce("total", "add", p.Const(0), p.At(data, i2))
    l2 := lb2.Close()

    /* a flat element list cannot keep the guard scoped to one loop's
     * slots, so the pair stays apart in both directions */
    roots := []Symbol{p.Proj(l1, 1), p.Proj(l2, 0)}
    out := Fusion{}.Apply(p, roots)
    require.Equal(t, roots, out)

    sched, err := p.Compile(roots...)
    require.NoError(t, err)
    require.Len(t, scheduledLoops(p, sched), 2)
}

func TestFusion_DisabledByOption(t *testing.T) {
    p := NewProgram(testOptionsNoFusion())
    data := p.Pure("input-data")
    n := p.Len(data)

    lb1 := p.NewLoop(n)
    lb1.Reduce("sum", "add", p.Const(0), p.At(data, lb1.Index()))
    l1 := lb1.Close()

    lb2 := p.NewLoop(n)
    i2 := lb2.Index()
    lb2.Reduce("sumsq", "add", p.Const(0), p.Pure("mul", p.At(data, i2), p.At(data, i2)))
    l2 := lb2.Close()

    sched, err := p.Compile(p.Proj(l1, 0), p.Proj(l2, 0))
    require.NoError(t, err)
    require.Len(t, scheduledLoops(p, sched), 2)
}
