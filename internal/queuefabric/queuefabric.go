// Package queuefabric implements the task queue fabric of spec.md §4.3: single- or
// multi-queue routing, sentinel-based termination, and work-stealing.
//
// Termination uses the tagged-variant redesign from spec.md §9 Design Notes (a Task |
// EndOfStream union) rather than in-band nil sentinels or channel closing, because
// under stealing one queue may need its end-of-stream observed by more than one
// tracer — closing the channel would only let the first reader past Recv.
package queuefabric

import (
	"github.com/tevino/abool"

	"github.com/adriannosampaio/darkrenderer/internal/model"
)

// Item is one value flowing through a queue: either a Task or the distinguished
// end-of-stream marker.
type Item struct {
	Task        *model.Task
	EndOfStream bool
}

// Fabric is the collection of FIFOs feeding tracers, plus the queue count K used for
// round-robin routing and sentinel fan-out.
type Fabric struct {
	Queues []chan Item
	K      int // number of tracers / queues under multiqueue
}

// Build assembles a queue fabric for a session: single-queue when multiqueue is
// false, one FIFO per tracer (round-robin routed by task.ID mod K) otherwise.
// Every queue is filled synchronously before this returns, so callers may start
// workers immediately afterward without racing the fill.
func Build(tasks []model.Task, numTracers int, multiqueue bool) *Fabric {
	if multiqueue {
		return buildMultiQueue(tasks, numTracers)
	}
	return buildSingleQueue(tasks, numTracers)
}

func buildSingleQueue(tasks []model.Task, numTracers int) *Fabric {
	capacity := len(tasks) + numTracers
	queue := make(chan Item, capacity)
	for i := range tasks {
		queue <- Item{Task: &tasks[i]}
	}
	for i := 0; i < numTracers; i++ {
		queue <- Item{EndOfStream: true}
	}
	return &Fabric{Queues: []chan Item{queue}, K: numTracers}
}

func buildMultiQueue(tasks []model.Task, numTracers int) *Fabric {
	queues := make([]chan Item, numTracers)
	capacity := len(tasks) + numTracers
	for i := range queues {
		queues[i] = make(chan Item, capacity)
	}
	for i := range tasks {
		idx := int(tasks[i].ID) % numTracers
		queues[idx] <- Item{Task: &tasks[i]}
	}
	// Every queue gets K sentinels so every tracer observes exactly one
	// end-of-stream marker regardless of which queue it happens to be draining.
	for _, q := range queues {
		for i := 0; i < numTracers; i++ {
			q <- Item{EndOfStream: true}
		}
	}
	return &Fabric{Queues: queues, K: numTracers}
}

// Puller is the per-tracer consumption state: which queues are still "active" (have
// not yet yielded their end-of-stream marker to this tracer), grounded on the
// original's active_queues boolean list, made race-free with atomic bools since a
// queue may be drained by more than one tracer under stealing.
type Puller struct {
	active  []*abool.AtomicBool
	primary int
}

// NewPuller returns a Puller with all k queues marked active, dedicated to the given
// primary queue index.
func NewPuller(k, primary int) *Puller {
	active := make([]*abool.AtomicBool, k)
	for i := range active {
		active[i] = abool.NewBool(true)
	}
	return &Puller{active: active, primary: primary}
}

// Get pulls the next task from the primary queue only, without stealing. Returns nil
// once the primary queue has yielded its end-of-stream marker to this tracer.
func (p *Puller) Get(queues []chan Item) *model.Task {
	if p.active[p.primary].IsSet() {
		item := <-queues[p.primary]
		if item.EndOfStream {
			p.active[p.primary].UnSet()
		} else {
			return item.Task
		}
	}
	return nil
}

// GetWithStealing behaves like Get, additionally scanning other queues in index order
// once the primary is drained (spec.md §4.3 "Work-stealing").
func (p *Puller) GetWithStealing(queues []chan Item) *model.Task {
	if task := p.Get(queues); task != nil {
		return task
	}
	if !p.active[p.primary].IsSet() {
		return p.steal(queues)
	}
	return nil
}

func (p *Puller) steal(queues []chan Item) *model.Task {
	for i, q := range queues {
		if !p.active[i].IsSet() {
			continue
		}
		item := <-q
		if item.EndOfStream {
			p.active[i].UnSet()
			continue
		}
		return item.Task
	}
	return nil
}
