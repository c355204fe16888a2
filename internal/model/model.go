// Package model defines the data types flowing through the dispatcher: Task,
// SuperTask, TaskResult, Scene, and TracerSummary (spec.md §3).
package model

import "fmt"

// MaxDistance is the sentinel distance value used when a ray has no hit.
const MaxDistance = 1e9

// NoHitTriangleID is the sentinel triangle ID value used when a ray has no hit.
const NoHitTriangleID int64 = -1

// RayFloats is the number of float64 values per ray (origin xyz, direction xyz).
const RayFloats = 6

// TracerKind names the kind of worker that produced a TracerSummary.
type TracerKind string

const (
	KindCPU   TracerKind = "CPU"
	KindFPGA  TracerKind = "FPGA"
	KindCloud TracerKind = "Cloud"
)

// Task is an immutable (once enqueued) contiguous batch of rays to intersect.
type Task struct {
	ID   uint64
	Rays []float64
}

// RayCount returns the number of rays carried by the task.
func (t Task) RayCount() int {
	return len(t.Rays) / RayFloats
}

// SuperTaskMember records one task folded into a SuperTask, in request order.
type SuperTaskMember struct {
	TaskID   uint64
	RayCount int
}

// SuperTask is the server-side batching envelope used by the cloud protocol
// (spec.md §3): the concatenation of member tasks' rays in member order.
type SuperTask struct {
	ID      uint64
	Members []SuperTaskMember
	Rays    []float64
}

// AddTask appends task to the SuperTask, preserving member order.
func (s *SuperTask) AddTask(t Task) {
	s.Members = append(s.Members, SuperTaskMember{TaskID: t.ID, RayCount: t.RayCount()})
	s.Rays = append(s.Rays, t.Rays...)
}

// Len returns the number of member tasks folded into the SuperTask.
func (s *SuperTask) Len() int {
	return len(s.Members)
}

// SeparateResults demultiplexes a single combined TaskResult computed over the whole
// SuperTask's ray buffer back into one TaskResult per member, in member order
// (spec.md §8 Invariant 5: order-preserving demultiplexing).
func (s *SuperTask) SeparateResults(combined TaskResult) []TaskResult {
	results := make([]TaskResult, 0, len(s.Members))
	offset := 0
	for _, member := range s.Members {
		ids := combined.TriangleIDs[offset : offset+member.RayCount]
		dists := combined.Distances[offset : offset+member.RayCount]
		results = append(results, TaskResult{
			TaskID:      member.TaskID,
			TriangleIDs: append([]int64(nil), ids...),
			Distances:   append([]float64(nil), dists...),
		})
		offset += member.RayCount
	}
	return results
}

// TaskResult is the output of intersecting one Task.
type TaskResult struct {
	TaskID      uint64
	TriangleIDs []int64
	Distances   []float64
}

// Camera describes the pinhole camera used to derive rays from a scene when the
// client did not send pre-generated rays (spec.md §3, §6).
type Camera struct {
	HRes, VRes     int
	Eye, Look, Up  [3]float64
	FocalDistance  float64
	PixelSize      float64
}

// Scene is held by the edge (or cloud) for the duration of a session.
type Scene struct {
	TriangleIDs []int64
	Triangles   []float64
	Camera      *Camera // nil when the client sent explicit rays
}

// TracerSummary is a diagnostic emitted once by each tracer worker at end of stream.
type TracerSummary struct {
	Kind           TracerKind
	TasksProcessed uint64
}

// String renders the summary the way the original implementation's
// TracerSummary.__str__ did, supplementing spec.md §4.5 step 6's report frame.
func (s TracerSummary) String() string {
	return fmt.Sprintf("%s processed %d tasks", s.Kind, s.TasksProcessed)
}
