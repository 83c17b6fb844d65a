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

// Package mir is a platform-independent compiler middle-end for staged,
// program-generating front-ends. A front-end interns symbolic node
// definitions into a Program; the middle-end value numbers them, tracks
// declared effects, fuses eligible parallel loops, and schedules each
// requested block into an ordered, minimized instruction sequence for a
// platform-specific emitter to consume.
package mir

import (
	"github.com/stagekit/mir/internal/opts"
	"github.com/stagekit/mir/internal/sir"
)

type (
	Symbol             = sir.Symbol
	Kind               = sir.Kind
	Resource           = sir.Resource
	Effect             = sir.Effect
	NodeDef            = sir.NodeDef
	LoopSpec           = sir.LoopSpec
	ElemSpec           = sir.ElemSpec
	CondSpec           = sir.CondSpec
	Program            = sir.Program
	LoopBuilder        = sir.LoopBuilder
	Schedule           = sir.Schedule
	BlockPlan          = sir.BlockPlan
	ScheduledNode      = sir.ScheduledNode
	CycleError         = sir.CycleError
	UnboundSymbolError = sir.UnboundSymbolError
)

const (
	KindConst = sir.KindConst
	KindIndex = sir.KindIndex
	KindLoop  = sir.KindLoop
	KindProj  = sir.KindProj
	KindAt    = sir.KindAt
	KindLen   = sir.KindLen
	KindCond  = sir.KindCond
)

// SymNone is the invalid symbol.
const SymNone = sir.SymNone

// Pure builds the empty effect summary.
func Pure() Effect { return sir.Pure() }

// Reads summarizes a node that reads the named resources.
func Reads(rs ...Resource) Effect { return sir.Reads(rs...) }

// Writes summarizes a node that writes the named resources.
func Writes(rs ...Resource) Effect { return sir.Writes(rs...) }

// Simple summarizes an ambient effect ordered against every other simple
// node.
func Simple() Effect { return sir.Simple() }

// NewProgram creates an empty compilation context.
func NewProgram(options ...Option) *Program {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}
	return sir.NewProgram(o)
}
