package host

import (
	"sync"

	"github.com/viterin/vek/vek32"
)

// Range is the global index range covered by one work-group
type Range struct {
	Group int
	Start int
	End   int
}

// Body is the Go implementation behind a kernel entry point. Run is called
// once per work-group with the macros the kernel body references and the
// bound buffers in parameter order.
type Body struct {
	Params int
	Run    func(r Range, defs Defines, args [][]float32)
}

var (
	bodiesMu sync.RWMutex
	bodies   = map[string]Body{
		"addVector": {Params: 3, Run: addVector},
	}
)

// RegisterKernel adds or replaces a kernel body
func RegisterKernel(name string, body Body) {
	bodiesMu.Lock()
	defer bodiesMu.Unlock()
	bodies[name] = body
}

func lookupBody(name string) (Body, bool) {
	bodiesMu.RLock()
	defer bodiesMu.RUnlock()
	b, ok := bodies[name]
	return b, ok
}

// addVector computes c[i] = a[i] + b[i] for the group's indices. When the
// kernel body references N_ELEMENTS, indices at or beyond it are skipped;
// without the guard every index of the padded range is written.
func addVector(r Range, defs Defines, args [][]float32) {
	a, b, c := args[0], args[1], args[2]
	end := r.End
	if n, ok := defs.Int("N_ELEMENTS"); ok && n < end {
		end = n
	}
	if r.Start >= end {
		return
	}
	vek32.Add_Into(c[r.Start:end], a[r.Start:end], b[r.Start:end])
}
