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
	"fmt"

	"github.com/stagekit/mir/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithFusion enables or disables the parallel loop fusion pass.
//
// Fusion is enabled by default; it can also be switched off for every
// program with the `MIR_DISABLE_FUSION` environment variable.
func WithFusion(v bool) Option {
	return func(o *opts.Options) { o.EnableFusion = v }
}

// WithMaxFusionRounds caps the greedy fusion fixpoint iteration.
//
// Each round merges at most one loop pair, so the cap bounds how many
// merges a single compilation may perform. The default is "0": no cap,
// the pass runs until no eligible pair remains.
//
// A cap can also be configured for every program with the
// `MIR_MAX_FUSION_ROUNDS` environment variable.
func WithMaxFusionRounds(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("mir: invalid fusion round cap: %d", n))
	} else {
		return func(o *opts.Options) { o.MaxFusionRounds = n }
	}
}
