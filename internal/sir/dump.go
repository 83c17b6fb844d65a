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
    `os`

    `github.com/davecgh/go-spew/spew`
    `github.com/xyproto/env/v2`
)

var debugGraph = env.Bool("MIR_DEBUG_GRAPH")

var dumpConfig = spew.ConfigState {
    Indent:                  "    ",
    DisableMethods:          true,
    DisablePointerAddresses: true,
    SortKeys:                true,
}

// dumpGraph writes the live part of the graph to stderr when
// MIR_DEBUG_GRAPH is set. Diagnostics only.
func dumpGraph(st *Store, roots []Symbol) {
    if !debugGraph {
        return
    }

    g := newGraph(st)
    reach := g.Reachable(roots)

    fmt.Fprintf(os.Stderr, "--- graph: %d bindings, %d live, roots %v ---\n", st.Size(), len(reach), roots)
    for s := Symbol(0); int(s) < st.Size(); s++ {
        if _, ok := reach[s]; !ok {
            continue
        }
        def := st.mustBinding(s)
        fmt.Fprintf(os.Stderr, "%-6s = %s\n", s, def)
        if def.Loop != nil || def.Cond != nil {
            fmt.Fprint(os.Stderr, dumpConfig.Sdump(def))
        }
    }
}
