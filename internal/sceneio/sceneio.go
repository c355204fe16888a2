// Package sceneio tokenizes the whitespace-separated wire messages of spec.md §6:
// edge and cloud scene frames, task/SuperTask frames, and result frames. Scene file
// parsing is named out of scope for the dispatcher's design (spec.md §1); this package
// is the minimal working contract so the edge and cloud session controllers run end to
// end, grounded on the original's darkedge.py (_parse_scene_data) and darkcloud.py.
package sceneio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adriannosampaio/darkrenderer/internal/camera"
	"github.com/adriannosampaio/darkrenderer/internal/direrr"
	"github.com/adriannosampaio/darkrenderer/internal/model"
)

type tokenCursor struct {
	tokens []string
	pos    int
}

func (c *tokenCursor) next() (string, error) {
	if c.pos >= len(c.tokens) {
		return "", fmt.Errorf("%w: unexpected end of message", direrr.ErrMalformedMessage)
	}
	tok := c.tokens[c.pos]
	c.pos++
	return tok, nil
}

func (c *tokenCursor) nextInt() (int, error) {
	tok, err := c.next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("%w: expected integer, got %q", direrr.ErrMalformedMessage, tok)
	}
	return n, nil
}

func (c *tokenCursor) nextInt64() (int64, error) {
	tok, err := c.next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: expected integer, got %q", direrr.ErrMalformedMessage, tok)
	}
	return n, nil
}

func (c *tokenCursor) nextFloat() (float64, error) {
	tok, err := c.next()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: expected float, got %q", direrr.ErrMalformedMessage, tok)
	}
	return f, nil
}

func (c *tokenCursor) nextFloats(n int) ([]float64, error) {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		f, err := c.nextFloat()
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func (c *tokenCursor) nextInt64s(n int) ([]int64, error) {
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		v, err := c.nextInt64()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ParseEdgeScene parses the edge scene message of spec.md §6: num_tris num_rays, then
// triangle IDs and vertex floats, then either a CAM block or explicit ray floats.
// When a camera is present, rays are generated via internal/camera before returning.
func ParseEdgeScene(payload string) (model.Scene, []float64, error) {
	c := &tokenCursor{tokens: strings.Fields(payload)}

	numTris, err := c.nextInt()
	if err != nil {
		return model.Scene{}, nil, err
	}
	numRays, err := c.nextInt()
	if err != nil {
		return model.Scene{}, nil, err
	}

	triangleIDs, err := c.nextInt64s(numTris)
	if err != nil {
		return model.Scene{}, nil, err
	}
	triangles, err := c.nextFloats(9 * numTris)
	if err != nil {
		return model.Scene{}, nil, err
	}

	marker, err := c.next()
	if err != nil {
		return model.Scene{}, nil, err
	}

	scene := model.Scene{TriangleIDs: triangleIDs, Triangles: triangles}

	if marker == "CAM" {
		hres, err := c.nextInt()
		if err != nil {
			return model.Scene{}, nil, err
		}
		vres, err := c.nextInt()
		if err != nil {
			return model.Scene{}, nil, err
		}
		params, err := c.nextFloats(11)
		if err != nil {
			return model.Scene{}, nil, err
		}
		cam := model.Camera{
			HRes: hres, VRes: vres,
			Eye:           [3]float64{params[0], params[1], params[2]},
			Look:          [3]float64{params[3], params[4], params[5]},
			Up:            [3]float64{params[6], params[7], params[8]},
			FocalDistance: params[9],
			PixelSize:     params[10],
		}
		scene.Camera = &cam
		rays := camera.Generate(hres, vres, cam.Eye, cam.Look, cam.Up, cam.FocalDistance, cam.PixelSize)
		return scene, rays, nil
	}

	// marker was the first of the 6*numRays explicit ray floats.
	first, err := strconv.ParseFloat(marker, 64)
	if err != nil {
		return model.Scene{}, nil, fmt.Errorf("%w: expected CAM or ray floats, got %q", direrr.ErrMalformedMessage, marker)
	}
	rest, err := c.nextFloats(6*numRays - 1)
	if err != nil {
		return model.Scene{}, nil, err
	}
	rays := append([]float64{first}, rest...)
	return scene, rays, nil
}

// ParseCloudScene parses the cloud scene message of spec.md §6: num_tris, then IDs and
// vertex floats. No camera, no ray count, ever.
func ParseCloudScene(payload string) (model.Scene, error) {
	c := &tokenCursor{tokens: strings.Fields(payload)}

	numTris, err := c.nextInt()
	if err != nil {
		return model.Scene{}, err
	}
	triangleIDs, err := c.nextInt64s(numTris)
	if err != nil {
		return model.Scene{}, err
	}
	triangles, err := c.nextFloats(9 * numTris)
	if err != nil {
		return model.Scene{}, err
	}
	return model.Scene{TriangleIDs: triangleIDs, Triangles: triangles}, nil
}

// FormatCloudScene is the inverse of ParseCloudScene, used by the cloud tracer client
// when it connects to the cloud session controller.
func FormatCloudScene(scene model.Scene) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", len(scene.TriangleIDs))
	for _, id := range scene.TriangleIDs {
		fmt.Fprintf(&sb, " %d", id)
	}
	for _, f := range scene.Triangles {
		fmt.Fprintf(&sb, " %s", formatFloat(f))
	}
	return sb.String()
}

// FormatResult renders "<task_id> <n_rays> <tid...> <dist...>" (spec.md §6).
func FormatResult(r model.TaskResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d %d", r.TaskID, len(r.TriangleIDs))
	for _, id := range r.TriangleIDs {
		fmt.Fprintf(&sb, " %d", id)
	}
	for _, d := range r.Distances {
		fmt.Fprintf(&sb, " %s", formatFloat(d))
	}
	return sb.String()
}

// ParseResult is the inverse of FormatResult.
func ParseResult(payload string) (model.TaskResult, error) {
	c := &tokenCursor{tokens: strings.Fields(payload)}
	taskID, err := c.nextInt64()
	if err != nil {
		return model.TaskResult{}, err
	}
	n, err := c.nextInt()
	if err != nil {
		return model.TaskResult{}, err
	}
	ids, err := c.nextInt64s(n)
	if err != nil {
		return model.TaskResult{}, err
	}
	dists, err := c.nextFloats(n)
	if err != nil {
		return model.TaskResult{}, err
	}
	return model.TaskResult{TaskID: uint64(taskID), TriangleIDs: ids, Distances: dists}, nil
}

// FormatTask renders "TASK <task_id> <ray_floats...>" for the cloud streaming/batched
// protocol (spec.md §6).
func FormatTask(t model.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TASK %d", t.ID)
	for _, f := range t.Rays {
		fmt.Fprintf(&sb, " %s", formatFloat(f))
	}
	return sb.String()
}

// FormatSuperTask renders "STASK <id> <n_members> (<task_id> <ray_count>)... <rays...>".
func FormatSuperTask(st model.SuperTask) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "STASK %d %d", st.ID, len(st.Members))
	for _, m := range st.Members {
		fmt.Fprintf(&sb, " %d %d", m.TaskID, m.RayCount)
	}
	for _, f := range st.Rays {
		fmt.Fprintf(&sb, " %s", formatFloat(f))
	}
	return sb.String()
}

// ParseTaskOrSuperTask dispatches on the leading TASK/STASK marker.
func ParseTaskOrSuperTask(payload string) (*model.Task, *model.SuperTask, error) {
	c := &tokenCursor{tokens: strings.Fields(payload)}
	marker, err := c.next()
	if err != nil {
		return nil, nil, err
	}

	switch marker {
	case "TASK":
		id, err := c.nextInt64()
		if err != nil {
			return nil, nil, err
		}
		remaining := len(c.tokens) - c.pos
		rays, err := c.nextFloats(remaining)
		if err != nil {
			return nil, nil, err
		}
		return &model.Task{ID: uint64(id), Rays: rays}, nil, nil

	case "STASK":
		id, err := c.nextInt64()
		if err != nil {
			return nil, nil, err
		}
		numMembers, err := c.nextInt()
		if err != nil {
			return nil, nil, err
		}
		members := make([]model.SuperTaskMember, numMembers)
		totalRays := 0
		for i := 0; i < numMembers; i++ {
			tid, err := c.nextInt64()
			if err != nil {
				return nil, nil, err
			}
			count, err := c.nextInt()
			if err != nil {
				return nil, nil, err
			}
			members[i] = model.SuperTaskMember{TaskID: uint64(tid), RayCount: count}
			totalRays += count
		}
		rays, err := c.nextFloats(totalRays * model.RayFloats)
		if err != nil {
			return nil, nil, err
		}
		return nil, &model.SuperTask{ID: uint64(id), Members: members, Rays: rays}, nil

	default:
		return nil, nil, fmt.Errorf("%w: expected TASK or STASK, got %q", direrr.ErrMalformedMessage, marker)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// SessionOverrides holds optional per-session CONFIG overrides (spec.md §6): TSIZE,
// TCHUNKSIZE, MULTIQUEUE, STEAL, STREAM. A nil field means "use the process default".
type SessionOverrides struct {
	TaskSize      *int
	TaskChunkSize *int
	Multiqueue    *bool
	Steal         *bool
	Streaming     *bool
}

// ParseConfig tokenizes a CONFIG frame's payload (the text after the leading "CONFIG "
// marker has already been stripped by the caller) into a SessionOverrides.
func ParseConfig(payload string) (SessionOverrides, error) {
	var out SessionOverrides
	c := &tokenCursor{tokens: strings.Fields(payload)}

	for c.pos < len(c.tokens) {
		key, err := c.next()
		if err != nil {
			return out, err
		}
		switch key {
		case "TSIZE":
			n, err := c.nextInt()
			if err != nil {
				return out, err
			}
			out.TaskSize = &n
		case "TCHUNKSIZE":
			n, err := c.nextInt()
			if err != nil {
				return out, err
			}
			out.TaskChunkSize = &n
		case "MULTIQUEUE":
			n, err := c.nextInt()
			if err != nil {
				return out, err
			}
			b := n != 0
			out.Multiqueue = &b
		case "STEAL":
			n, err := c.nextInt()
			if err != nil {
				return out, err
			}
			b := n != 0
			out.Steal = &b
		case "STREAM":
			b := true
			out.Streaming = &b
		default:
			// spec.md §7: unknown CONFIG key is ignored silently, not a session-abort error.
		}
	}
	return out, nil
}
