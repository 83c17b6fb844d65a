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

// Pass is a pure rewrite over the node graph. Passes never delete bindings;
// they point the root set at new symbols and leave orphans to the
// scheduler's reachability step.
type Pass interface {
    Apply(p *Program, roots []Symbol) []Symbol
}

type PassDescriptor struct {
    Pass Pass
    Name string
}

var Passes = [...]PassDescriptor {
    { Name: "Parallel Loop Fusion", Pass: new(Fusion) },
}

func applyPasses(p *Program, roots []Symbol) []Symbol {
    for _, d := range Passes {
        roots = d.Pass.Apply(p, roots)
    }
    return roots
}
