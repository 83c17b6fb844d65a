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

package debug

import (
	"github.com/stagekit/mir/internal/sir"
)

// A Stats records cumulative statistics about the middle-end pipeline.
type Stats struct {
	Store  StoreStats
	Fusion FusionStats
	Sched  SchedStats
}

// A StoreStats records statistics about node interning and value numbering.
type StoreStats struct {
	Hit  int
	Miss int
}

// A FusionStats records statistics about the loop fusion pass.
type FusionStats struct {
	Fused    int
	Rejected int
	Rounds   int
}

// A SchedStats records statistics about block scheduling.
type SchedStats struct {
	Blocks int
	Nodes  int
	Culled int
}

// GetStats returns statistics of the middle-end pipeline.
func GetStats() Stats {
	s := sir.StatsSnapshot()
	return Stats{
		Store: StoreStats{
			Hit:  int(s.StoreHit),
			Miss: int(s.StoreMiss),
		},
		Fusion: FusionStats{
			Fused:    int(s.FusedLoops),
			Rejected: int(s.FusionRejects),
			Rounds:   int(s.FusionRounds),
		},
		Sched: SchedStats{
			Blocks: int(s.Blocks),
			Nodes:  int(s.ScheduledNodes),
			Culled: int(s.CulledNodes),
		},
	}
}
