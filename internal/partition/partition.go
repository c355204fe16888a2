// Package partition chops a ray buffer into fixed-size tasks (spec.md §4.2),
// grounded on the original implementation's darkedge.py divide_tasks.
package partition

import (
	"fmt"

	"go.uber.org/atomic"

	"github.com/adriannosampaio/darkrenderer/internal/model"
)

// Counter is a session-scoped, monotonically increasing task ID source. Unlike the
// original implementation's process-wide Counter/Task.next_id (reset before every
// session), it is constructed fresh per session and never shared across sessions
// (spec.md §9 Design Notes: "avoid any global state").
type Counter struct {
	next atomic.Uint64
}

// NewCounter returns a Counter starting at 0.
func NewCounter() *Counter {
	return &Counter{}
}

// Next returns the next dense ID, starting at 0.
func (c *Counter) Next() uint64 {
	return c.next.Inc() - 1
}

// Split divides rays into ceil(N/taskSize) tasks of taskSize rays each (the final task
// may be shorter), with dense IDs assigned in iteration order via counter
// (spec.md §4.2, §3 Task invariants).
func Split(rays []float64, taskSize int, counter *Counter) ([]model.Task, error) {
	if taskSize <= 0 {
		return nil, fmt.Errorf("partition: task size must be positive, got %d", taskSize)
	}
	if len(rays)%model.RayFloats != 0 {
		return nil, fmt.Errorf("partition: ray buffer length %d is not a multiple of %d", len(rays), model.RayFloats)
	}

	numRays := len(rays) / model.RayFloats
	if numRays == 0 {
		return nil, nil
	}

	numTasks := (numRays + taskSize - 1) / taskSize
	tasks := make([]model.Task, 0, numTasks)

	for start := 0; start < numRays; start += taskSize {
		end := start + taskSize
		if end > numRays {
			end = numRays
		}
		taskRays := rays[start*model.RayFloats : end*model.RayFloats]
		tasks = append(tasks, model.Task{
			ID:   counter.Next(),
			Rays: append([]float64(nil), taskRays...),
		})
	}
	return tasks, nil
}
