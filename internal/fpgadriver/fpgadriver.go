// Package fpgadriver presents the FPGA register-level driver contract (spec.md §6):
// SetScene, Kick (non-blocking compute start), IsDone, Results. Register addresses and
// DMA buffer layout are properties of real hardware and explicitly out of scope
// (spec.md §4.4.2); Accelerator is backed here by a simulated in-memory device so the
// FPGA tracer's state machine and 200ms polling contract are exercised without real
// hardware, grounded on the original's application/drivers.py (XIntersectFPGA).
package fpgadriver

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/adriannosampaio/darkrenderer/internal/kernel"
)

// Accelerator is one physical (or simulated) FPGA intersection unit.
type Accelerator interface {
	// SetScene uploads the triangle buffer. Idempotent per session.
	SetScene(triangleIDs []int64, triangles []float64)
	// Kick starts computing rays asynchronously; IsDone reports completion.
	Kick(rays []float64)
	// IsDone reports whether the last Kick has finished.
	IsDone() bool
	// Results returns the last Kick's output. Only valid after IsDone() is true.
	Results() (ids []int64, dist []float64)
}

// SimAccelerator is an in-memory stand-in for a real XIntersectFPGA DMA-backed unit.
type SimAccelerator struct {
	mu          sync.Mutex
	triangleIDs []int64
	triangles   []float64

	done atomic.Bool
	ids  []int64
	dist []float64
}

// NewSimAccelerator returns an idle simulated accelerator.
func NewSimAccelerator() *SimAccelerator {
	acc := &SimAccelerator{}
	acc.done.Store(true)
	return acc
}

func (a *SimAccelerator) SetScene(triangleIDs []int64, triangles []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.triangleIDs = triangleIDs
	a.triangles = triangles
}

func (a *SimAccelerator) Kick(rays []float64) {
	a.done.Store(false)
	a.mu.Lock()
	triangleIDs, triangles := a.triangleIDs, a.triangles
	a.mu.Unlock()

	go func() {
		ids, dist := kernel.Intersect(triangleIDs, triangles, rays)
		a.mu.Lock()
		a.ids, a.dist = ids, dist
		a.mu.Unlock()
		a.done.Store(true)
	}()
}

func (a *SimAccelerator) IsDone() bool {
	return a.done.Load()
}

func (a *SimAccelerator) Results() ([]int64, []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ids, a.dist
}
