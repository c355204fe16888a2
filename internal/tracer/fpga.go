package tracer

import (
	"time"

	"github.com/adriannosampaio/darkrenderer/internal/config"
	"github.com/adriannosampaio/darkrenderer/internal/fpgadriver"
	"github.com/adriannosampaio/darkrenderer/internal/model"
)

// fpgaPollInterval is the 200ms is_done polling cadence named in spec.md §4.4.2.
const fpgaPollInterval = 200 * time.Millisecond

// fpgaTracer fans a task's rays out across N accelerators and polls for completion,
// grounded on the original's application/drivers.py (XIntersectFPGA) and the
// TracerFPGA.compute fan-out/join.
type fpgaTracer struct {
	accelerators []fpgadriver.Accelerator
}

func newFPGATracer(cfg *config.GlobalConfig) (Tracer, error) {
	n := cfg.Processing.FPGA.NumAccelerators
	accs := make([]fpgadriver.Accelerator, n)
	for i := range accs {
		accs[i] = fpgadriver.NewSimAccelerator()
	}
	return &fpgaTracer{accelerators: accs}, nil
}

func (t *fpgaTracer) Kind() model.TracerKind { return model.KindFPGA }

func (t *fpgaTracer) SetScene(scene model.Scene) error {
	for _, acc := range t.accelerators {
		acc.SetScene(scene.TriangleIDs, scene.Triangles)
	}
	return nil
}

// Compute splits the task's rays evenly across the accelerators (remainder to the
// last), kicks them all, polls until every accelerator is done, then concatenates
// results back in accelerator order.
func (t *fpgaTracer) Compute(task model.Task) ([]model.TaskResult, error) {
	n := len(t.accelerators)
	numRays := task.RayCount()
	base := numRays / n
	remainder := numRays % n

	offset := 0
	for i := 0; i < n; i++ {
		count := base
		if i == n-1 {
			count += remainder
		}
		share := task.Rays[offset*model.RayFloats : (offset+count)*model.RayFloats]
		offset += count
		t.accelerators[i].Kick(share)
	}

	for {
		allDone := true
		for _, acc := range t.accelerators {
			if !acc.IsDone() {
				allDone = false
				break
			}
		}
		if allDone {
			break
		}
		time.Sleep(fpgaPollInterval)
	}

	ids := make([]int64, 0, numRays)
	dist := make([]float64, 0, numRays)
	for _, acc := range t.accelerators {
		accIDs, accDist := acc.Results()
		ids = append(ids, accIDs...)
		dist = append(dist, accDist...)
	}
	return []model.TaskResult{{TaskID: task.ID, TriangleIDs: ids, Distances: dist}}, nil
}

func (t *fpgaTracer) Drain() ([]model.TaskResult, error) { return nil, nil }

func (t *fpgaTracer) Close() error { return nil }

func init() { Register(model.KindFPGA, newFPGATracer) }
