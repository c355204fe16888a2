// Package tracer implements the heterogeneous tracer worker contract of spec.md §4.4:
// a common Tracer interface for the CPU, FPGA, and Cloud backends, a factory registry
// (replacing the teacher's multi-kind plugin registry — pkg/plugin/registry.go — with
// the single plugin kind this system has), and the worker loop that ties a
// queuefabric.Puller to TaskResult and TracerSummary production while walking the
// Init -> Armed -> Running -> Draining -> Reporting -> Done lifecycle.
package tracer

import (
	"fmt"

	"github.com/adriannosampaio/darkrenderer/internal/config"
	"github.com/adriannosampaio/darkrenderer/internal/model"
	"github.com/adriannosampaio/darkrenderer/internal/queuefabric"
)

// State is a tracer worker's position in the spec.md §4.4 lifecycle.
type State int

const (
	StateInit State = iota
	StateArmed
	StateRunning
	StateDraining
	StateReporting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateArmed:
		return "Armed"
	case StateRunning:
		return "Running"
	case StateDraining:
		return "Draining"
	case StateReporting:
		return "Reporting"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Tracer is the contract every backend implements. Compute may return zero results
// for a task that was only buffered (the cloud tracer's batched mode); Drain flushes
// whatever a backend held back once the task stream ends.
type Tracer interface {
	Kind() model.TracerKind
	SetScene(scene model.Scene) error
	Compute(task model.Task) ([]model.TaskResult, error)
	Drain() ([]model.TaskResult, error)
	Close() error
}

// Factory builds one tracer backend from the resolved session configuration.
type Factory func(cfg *config.GlobalConfig) (Tracer, error)

var registry = map[model.TracerKind]Factory{}

// Register adds a tracer kind's factory to the registry. Panics on duplicate
// registration, mirroring the teacher's plugin registry discipline (pkg/plugin).
func Register(kind model.TracerKind, factory Factory) {
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("tracer: factory for kind %q already registered", kind))
	}
	registry[kind] = factory
}

// Build constructs one tracer per backend the configuration marks active, in a fixed
// CPU, FPGA, Cloud order (spec.md §4.2's dispatch fan-out).
func Build(cfg *config.GlobalConfig) ([]Tracer, error) {
	var order = []struct {
		kind   model.TracerKind
		active bool
	}{
		{model.KindCPU, cfg.Processing.CPU.Active},
		{model.KindFPGA, cfg.Processing.FPGA.Active},
		{model.KindCloud, cfg.Processing.Cloud.Active},
	}

	var tracers []Tracer
	for _, entry := range order {
		if !entry.active {
			continue
		}
		factory, ok := registry[entry.kind]
		if !ok {
			return nil, fmt.Errorf("tracer: no factory registered for kind %q", entry.kind)
		}
		t, err := factory(cfg)
		if err != nil {
			for _, built := range tracers {
				built.Close()
			}
			return nil, fmt.Errorf("tracer: building %q: %w", entry.kind, err)
		}
		tracers = append(tracers, t)
	}
	return tracers, nil
}

// RunWorker drives one tracer through its lifecycle against a queue fabric: arm with
// the scene, pull and compute tasks until the fabric yields end-of-stream, drain any
// buffered results, then report a summary and close. Results and the summary are
// delivered over channels so a session controller can run many tracers concurrently
// and collect in arrival order, undisturbed by how any one tracer batches internally.
func RunWorker(
	t Tracer,
	scene model.Scene,
	queues []chan queuefabric.Item,
	puller *queuefabric.Puller,
	stealing bool,
	resultCh chan<- model.TaskResult,
	reportCh chan<- model.TracerSummary,
) error {
	if err := t.SetScene(scene); err != nil {
		return fmt.Errorf("tracer %s: set scene: %w", t.Kind(), err)
	}

	var processed uint64
	// finish reports the summary and closes the tracer; the error paths use it too, so
	// a worker that stops early still reports the tasks it did process.
	finish := func() error {
		reportCh <- model.TracerSummary{Kind: t.Kind(), TasksProcessed: processed}
		return t.Close()
	}
	for {
		var task *model.Task
		if stealing {
			task = puller.GetWithStealing(queues)
		} else {
			task = puller.Get(queues)
		}
		if task == nil {
			break
		}

		results, err := t.Compute(*task)
		if err != nil {
			finish()
			return fmt.Errorf("tracer %s: compute task %d: %w", t.Kind(), task.ID, err)
		}
		processed++
		for _, r := range results {
			resultCh <- r
		}
	}

	drained, err := t.Drain()
	if err != nil {
		finish()
		return fmt.Errorf("tracer %s: drain: %w", t.Kind(), err)
	}
	for _, r := range drained {
		resultCh <- r
	}

	return finish()
}
