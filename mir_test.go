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

package mir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagekit/mir/debug"
)

func TestCompilePipeline(t *testing.T) {
	p := NewProgram(WithFusion(true), WithMaxFusionRounds(16))

	data := p.Pure("source")
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
	require.Len(t, sched.Roots(), 2)

	/* both reductions end up in a single loop over the shared range */
	loops := 0
	for _, sn := range sched.Ordered(sched.Root()) {
		if sn.Def.Kind == KindLoop {
			loops++
			require.Len(t, sn.Def.Loop.Elems, 2)
			require.NotNil(t, sched.Root().Body(sn.Sym))
		}
	}
	require.Equal(t, 1, loops)

	/* symbols stay resolvable across block boundaries */
	for _, r := range sched.Roots() {
		def, err := sched.Binding(r)
		require.NoError(t, err)
		assert.Equal(t, Kind("div"), def.Kind)
	}
}

func TestCompileEffectOrder(t *testing.T) {
	p := NewProgram()
	v := p.Pure("source")
	w1 := p.Effectful("print", Simple(), v)
	w2 := p.Effectful("print", Simple(), v)

	require.True(t, p.Precedes(w1, w2))

	sched, err := p.Compile(p.EffectRoots()...)
	require.NoError(t, err)

	pos := make(map[Symbol]int)
	for i, sn := range sched.Ordered(sched.Root()) {
		pos[sn.Sym] = i
	}
	require.Contains(t, pos, w1)
	require.Contains(t, pos, w2)
	assert.Less(t, pos[w1], pos[w2])
}

func TestDebugStats(t *testing.T) {
	p := NewProgram()
	v := p.Pure("source")
	before := debug.GetStats()

	p.Pure("add", v, p.Const(1))
	p.Pure("add", v, p.Const(1))

	after := debug.GetStats()
	assert.Greater(t, after.Store.Hit, before.Store.Hit)
	assert.Greater(t, after.Store.Miss, before.Store.Miss)
}

func TestOptionValidation(t *testing.T) {
	require.Panics(t, func() { WithMaxFusionRounds(-1) })
	require.NotPanics(t, func() { NewProgram(WithMaxFusionRounds(0), WithFusion(false)) })
}
