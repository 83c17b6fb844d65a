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

package opts

import (
    `github.com/xyproto/env/v2`
)

const (
    _DefaultMaxFusionRounds = 0 // no cap, fuse until the fixpoint
)

var (
    DisableFusion   = env.Bool("MIR_DISABLE_FUSION")
    MaxFusionRounds = env.Int("MIR_MAX_FUSION_ROUNDS", _DefaultMaxFusionRounds)
)

type Options struct {
    EnableFusion    bool
    MaxFusionRounds int
}

func GetDefaultOptions() Options {
    return Options{
        EnableFusion:    !DisableFusion,
        MaxFusionRounds: MaxFusionRounds,
    }
}
