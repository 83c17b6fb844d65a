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

// Stats carries cumulative pipeline counters, surfaced through the public
// debug package.
type Stats struct {
    StoreHit       uint64
    StoreMiss      uint64
    FusedLoops     uint64
    FusionRejects  uint64
    FusionRounds   uint64
    ScheduledNodes uint64
    CulledNodes    uint64
    Blocks         uint64
}

var stats Stats

// StatsSnapshot returns a copy of the current counters.
func StatsSnapshot() Stats {
    return stats
}
