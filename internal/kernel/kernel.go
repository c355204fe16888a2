// Package kernel presents the Möller-Trumbore ray-triangle intersection contract.
// This arithmetic kernel is explicitly out of scope for the dispatcher design
// (spec.md §1, §6); this is a minimal real implementation so the system runs end to
// end, grounded on the original's external application.bindings.tracer call contract
// (application/tracers.py: TracerCPU.compute).
package kernel

import (
	"math"
	"runtime"
	"sync"

	"github.com/adriannosampaio/darkrenderer/internal/model"
)

const epsilon = 1.0e-5

// Intersect computes, for each ray, the nearest hit triangle (or -1) and its distance.
// triangles is a flat buffer of 9*n floats (3 vertices * xyz per triangle); rays is a
// flat buffer of 6*m floats (origin xyz, direction xyz per ray).
func Intersect(triangleIDs []int64, triangles []float64, rays []float64) (ids []int64, dist []float64) {
	numRays := len(rays) / model.RayFloats
	ids = make([]int64, numRays)
	dist = make([]float64, numRays)
	for i := 0; i < numRays; i++ {
		ids[i], dist[i] = intersectOne(triangleIDs, triangles, rays[i*6:i*6+6])
	}
	return ids, dist
}

// IntersectParallel behaves like Intersect but shards the ray buffer across
// runtime.NumCPU() goroutines, selected by the CPU tracer's use_multicore option
// (spec.md §4.4.1).
func IntersectParallel(triangleIDs []int64, triangles []float64, rays []float64) (ids []int64, dist []float64) {
	numRays := len(rays) / model.RayFloats
	ids = make([]int64, numRays)
	dist = make([]float64, numRays)

	workers := runtime.NumCPU()
	if workers > numRays {
		workers = numRays
	}
	if workers <= 1 {
		return Intersect(triangleIDs, triangles, rays)
	}

	chunk := (numRays + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= numRays {
			break
		}
		end := start + chunk
		if end > numRays {
			end = numRays
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				ids[i], dist[i] = intersectOne(triangleIDs, triangles, rays[i*6:i*6+6])
			}
		}(start, end)
	}
	wg.Wait()
	return ids, dist
}

func intersectOne(triangleIDs []int64, triangles []float64, ray []float64) (int64, float64) {
	origin := [3]float64{ray[0], ray[1], ray[2]}
	dir := [3]float64{ray[3], ray[4], ray[5]}

	bestID := model.NoHitTriangleID
	bestDist := model.MaxDistance

	numTris := len(triangleIDs)
	for t := 0; t < numTris; t++ {
		v0 := [3]float64{triangles[t*9+0], triangles[t*9+1], triangles[t*9+2]}
		v1 := [3]float64{triangles[t*9+3], triangles[t*9+4], triangles[t*9+5]}
		v2 := [3]float64{triangles[t*9+6], triangles[t*9+7], triangles[t*9+8]}

		if d, ok := mollerTrumbore(origin, dir, v0, v1, v2); ok && d < bestDist {
			bestDist = d
			bestID = triangleIDs[t]
		}
	}
	return bestID, bestDist
}

func mollerTrumbore(origin, dir, v0, v1, v2 [3]float64) (float64, bool) {
	edge1 := sub(v1, v0)
	edge2 := sub(v2, v0)
	h := cross(dir, edge2)
	a := dot(edge1, h)
	if math.Abs(a) < epsilon {
		return 0, false
	}
	f := 1.0 / a
	s := sub(origin, v0)
	u := f * dot(s, h)
	if u < 0 || u > 1 {
		return 0, false
	}
	q := cross(s, edge1)
	v := f * dot(dir, q)
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := f * dot(edge2, q)
	if t < epsilon {
		return 0, false
	}
	return t, true
}

func sub(a, b [3]float64) [3]float64 { return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func dot(a, b [3]float64) float64    { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
