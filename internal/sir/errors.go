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
    `fmt`
    `strings`
)

// CycleError occurs when the dependency graph restricted to a block's
// reachable set is not a DAG. It names the implicated symbols. The
// scheduler never attempts to break cycles.
type CycleError struct {
    Symbols []Symbol
}

func (self CycleError) Error() string {
    syms := make([]string, 0, len(self.Symbols))
    for _, s := range self.Symbols {
        syms = append(syms, s.String())
    }
    return fmt.Sprintf("CycleError: dependency cycle through {%s}", strings.Join(syms, ", "))
}

// UnboundSymbolError occurs when a node references a symbol with no binding
// in the store. It indicates a front-end defect, such as using a symbol
// from a discarded program.
type UnboundSymbolError struct {
    Sym Symbol
}

func (self UnboundSymbolError) Error() string {
    return fmt.Sprintf("UnboundSymbolError: no binding for %s", self.Sym)
}
