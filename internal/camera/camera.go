// Package camera derives a ray buffer from a pinhole camera description, the external
// collaborator spec.md names for turning a CAM message into explicit rays (spec.md
// §4.5 step 2, §6). Out of scope for the dispatcher design; a straightforward
// implementation is given so the edge runs end to end without pre-generated rays.
package camera

import "math"

// Generate returns a flat ray buffer (origin xyz, direction xyz per ray), row-major
// over the camera's hres x vres image plane, matching the original's Camera.get_rays.
func Generate(hres, vres int, eye, look, up [3]float64, focalDistance, pixelSize float64) []float64 {
	forward := normalize(sub(look, eye))
	right := normalize(cross(forward, up))
	camUp := cross(right, forward)

	rays := make([]float64, 0, hres*vres*6)
	for row := 0; row < vres; row++ {
		py := (float64(vres)/2 - float64(row) - 0.5) * pixelSize
		for col := 0; col < hres; col++ {
			px := (float64(col) - float64(hres)/2 + 0.5) * pixelSize

			target := add(eye, add(scale(forward, focalDistance), add(scale(right, px), scale(camUp, py))))
			dir := normalize(sub(target, eye))

			rays = append(rays, eye[0], eye[1], eye[2], dir[0], dir[1], dir[2])
		}
	}
	return rays
}

func sub(a, b [3]float64) [3]float64 { return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func add(a, b [3]float64) [3]float64 { return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func scale(a [3]float64, s float64) [3]float64 {
	return [3]float64{a[0] * s, a[1] * s, a[2] * s}
}
func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
func normalize(a [3]float64) [3]float64 {
	n := math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
	if n == 0 {
		return a
	}
	return [3]float64{a[0] / n, a[1] / n, a[2] / n}
}
