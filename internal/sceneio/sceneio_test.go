package sceneio

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adriannosampaio/darkrenderer/internal/model"
)

func TestParseEdgeSceneExplicitRays(t *testing.T) {
	msg := "1 2 " +
		"5 " +
		"0 0 0 1 0 0 0 1 0 " +
		"0 0 1 0 0 -1 0 0 2 0 0 -1"

	scene, rays, err := ParseEdgeScene(msg)
	require.NoError(t, err)
	require.Equal(t, []int64{5}, scene.TriangleIDs)
	require.Len(t, scene.Triangles, 9)
	require.Nil(t, scene.Camera)
	require.Len(t, rays, 12)
}

func TestParseEdgeSceneWithCamera(t *testing.T) {
	msg := "1 0 " +
		"1 " +
		"0 0 0 1 0 0 0 1 0 " +
		"CAM 4 3 0 0 0 0 0 -1 0 1 0 1.0 0.01"

	scene, rays, err := ParseEdgeScene(msg)
	require.NoError(t, err)
	require.NotNil(t, scene.Camera)
	require.Equal(t, 4, scene.Camera.HRes)
	require.Equal(t, 3, scene.Camera.VRes)
	require.Len(t, rays, 4*3*6)
}

func TestParseEdgeSceneRejectsGarbage(t *testing.T) {
	_, _, err := ParseEdgeScene("not a scene")
	require.Error(t, err)
}

func TestCloudSceneRoundTrip(t *testing.T) {
	scene := model.Scene{
		TriangleIDs: []int64{1, 2},
		Triangles: []float64{
			0, 0, 0, 1, 0, 0, 0, 1, 0,
			0, 0, -1, 1, 0, -1, 0, 1, -1,
		},
	}
	msg := FormatCloudScene(scene)
	got, err := ParseCloudScene(msg)
	require.NoError(t, err)
	require.Equal(t, scene.TriangleIDs, got.TriangleIDs)
	require.Equal(t, scene.Triangles, got.Triangles)
}

func TestResultRoundTrip(t *testing.T) {
	r := model.TaskResult{
		TaskID:      3,
		TriangleIDs: []int64{-1, 2, model.NoHitTriangleID},
		Distances:   []float64{model.MaxDistance, 1.5, model.MaxDistance},
	}
	msg := FormatResult(r)
	got, err := ParseResult(msg)
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestTaskRoundTrip(t *testing.T) {
	task := model.Task{ID: 9, Rays: []float64{0, 0, 0, 1, 0, 0, 1, 1, 1, 0, 1, 0}}
	msg := FormatTask(task)
	require.True(t, strings.HasPrefix(msg, "TASK "))

	gotTask, gotSuper, err := ParseTaskOrSuperTask(msg)
	require.NoError(t, err)
	require.Nil(t, gotSuper)
	require.Equal(t, task, *gotTask)
}

func TestSuperTaskRoundTrip(t *testing.T) {
	st := model.SuperTask{
		ID: 1,
		Members: []model.SuperTaskMember{
			{TaskID: 10, RayCount: 2},
			{TaskID: 11, RayCount: 1},
		},
		Rays: make([]float64, (2+1)*model.RayFloats),
	}
	for i := range st.Rays {
		st.Rays[i] = float64(i)
	}

	msg := FormatSuperTask(st)
	require.True(t, strings.HasPrefix(msg, "STASK "))

	gotTask, gotSuper, err := ParseTaskOrSuperTask(msg)
	require.NoError(t, err)
	require.Nil(t, gotTask)
	require.Equal(t, st, *gotSuper)
}

func TestParseTaskOrSuperTaskRejectsUnknownMarker(t *testing.T) {
	_, _, err := ParseTaskOrSuperTask("BOGUS 1 2 3")
	require.Error(t, err)
}

func TestParseEdgeSceneRayCountMismatchErrors(t *testing.T) {
	msg := fmt.Sprintf("1 5 1 %s 0 0", strings.Repeat("0 ", 8))
	_, _, err := ParseEdgeScene(msg)
	require.Error(t, err)
}

func TestParseConfigAllKeys(t *testing.T) {
	overrides, err := ParseConfig("TSIZE 32 TCHUNKSIZE 8 MULTIQUEUE 1 STEAL 0 STREAM")
	require.NoError(t, err)
	require.Equal(t, 32, *overrides.TaskSize)
	require.Equal(t, 8, *overrides.TaskChunkSize)
	require.True(t, *overrides.Multiqueue)
	require.False(t, *overrides.Steal)
	require.True(t, *overrides.Streaming)
}

func TestParseConfigEmpty(t *testing.T) {
	overrides, err := ParseConfig("")
	require.NoError(t, err)
	require.Nil(t, overrides.TaskSize)
	require.Nil(t, overrides.Streaming)
}

// spec.md §7: an unknown CONFIG key is ignored silently rather than aborting the
// session, so surrounding recognized keys still take effect.
func TestParseConfigIgnoresUnknownKey(t *testing.T) {
	overrides, err := ParseConfig("BOGUS 1 TSIZE 8")
	require.NoError(t, err)
	require.NotNil(t, overrides.TaskSize)
	require.Equal(t, 8, *overrides.TaskSize)
}
