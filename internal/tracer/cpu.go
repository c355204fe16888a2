package tracer

import (
	"github.com/adriannosampaio/darkrenderer/internal/config"
	"github.com/adriannosampaio/darkrenderer/internal/kernel"
	"github.com/adriannosampaio/darkrenderer/internal/model"
)

// cpuTracer computes tasks in-process via internal/kernel, grounded on the original's
// application/tracers.py TracerCPU.
type cpuTracer struct {
	multicore   bool
	triangleIDs []int64
	triangles   []float64
}

func newCPUTracer(cfg *config.GlobalConfig) (Tracer, error) {
	return &cpuTracer{multicore: cfg.Processing.CPU.UseMulticore}, nil
}

func (t *cpuTracer) Kind() model.TracerKind { return model.KindCPU }

func (t *cpuTracer) SetScene(scene model.Scene) error {
	t.triangleIDs = scene.TriangleIDs
	t.triangles = scene.Triangles
	return nil
}

func (t *cpuTracer) Compute(task model.Task) ([]model.TaskResult, error) {
	var ids []int64
	var dist []float64
	if t.multicore {
		ids, dist = kernel.IntersectParallel(t.triangleIDs, t.triangles, task.Rays)
	} else {
		ids, dist = kernel.Intersect(t.triangleIDs, t.triangles, task.Rays)
	}
	return []model.TaskResult{{TaskID: task.ID, TriangleIDs: ids, Distances: dist}}, nil
}

func (t *cpuTracer) Drain() ([]model.TaskResult, error) { return nil, nil }

func (t *cpuTracer) Close() error { return nil }

func init() { Register(model.KindCPU, newCPUTracer) }
