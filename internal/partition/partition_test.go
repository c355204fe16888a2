package partition

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func rayBuffer(numRays int) []float64 {
	rays := make([]float64, numRays*6)
	for i := range rays {
		rays[i] = float64(i)
	}
	return rays
}

// Scenario 1 (spec.md §8): single-queue CPU-only, 10 rays, task_size 3 -> 4 tasks
// sized 3,3,3,1 with dense IDs 0..3.
func TestSplitScenario1(t *testing.T) {
	counter := NewCounter()
	tasks, err := Split(rayBuffer(10), 3, counter)
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	sizes := []int{3, 3, 3, 1}
	for i, task := range tasks {
		require.Equal(t, uint64(i), task.ID)
		require.Equal(t, sizes[i], task.RayCount())
	}
}

func TestSplitExactDivision(t *testing.T) {
	counter := NewCounter()
	tasks, err := Split(rayBuffer(12), 2, counter)
	require.NoError(t, err)
	require.Len(t, tasks, 6)
	for _, task := range tasks {
		require.Equal(t, 2, task.RayCount())
	}
}

func TestSplitRejectsMisalignedBuffer(t *testing.T) {
	_, err := Split(make([]float64, 7), 3, NewCounter())
	require.Error(t, err)
}

func TestSplitRejectsNonPositiveTaskSize(t *testing.T) {
	_, err := Split(rayBuffer(4), 0, NewCounter())
	require.Error(t, err)
}

func TestSplitReassemblyPreservesRayOrder(t *testing.T) {
	rays := rayBuffer(10)
	tasks, err := Split(rays, 3, NewCounter())
	require.NoError(t, err)

	var reassembled []float64
	for _, task := range tasks {
		reassembled = append(reassembled, task.Rays...)
	}
	require.Equal(t, rays, reassembled)
}

func TestCounterIsSessionScoped(t *testing.T) {
	a := NewCounter()
	b := NewCounter()
	require.Equal(t, uint64(0), a.Next())
	require.Equal(t, uint64(1), a.Next())
	require.Equal(t, uint64(0), b.Next(), "a fresh counter must not see another session's state")
}
