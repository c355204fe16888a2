// Package cloudsrv implements the cloud session controller of spec.md §4.6: a scene
// frame (never a camera), then a loop of TASK/STASK request-response frames computed
// against locally armed tracers, terminated by an explicit "END" (session only) or
// "EXIT" (whole process) frame — the SUPPLEMENTED distinction spec.md's distillation
// otherwise left implicit. Grounded on the original's application/darkcloud.py.
package cloudsrv

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"github.com/adriannosampaio/darkrenderer/internal/config"
	"github.com/adriannosampaio/darkrenderer/internal/direrr"
	"github.com/adriannosampaio/darkrenderer/internal/log"
	"github.com/adriannosampaio/darkrenderer/internal/model"
	"github.com/adriannosampaio/darkrenderer/internal/queuefabric"
	"github.com/adriannosampaio/darkrenderer/internal/sceneio"
	"github.com/adriannosampaio/darkrenderer/internal/tracer"
	"github.com/adriannosampaio/darkrenderer/internal/transport"
)

// ShutdownMode reports what a finished (or aborted) session asked the server to do.
type ShutdownMode int

const (
	ShutdownNone ShutdownMode = iota
	ShutdownAll
)

// Server accepts cloud sessions one at a time, symmetric with internal/edge.Server.
type Server struct {
	cfg *config.GlobalConfig
	ln  net.Listener
}

// New wraps an already-bound listener with the session controller.
func New(cfg *config.GlobalConfig, ln net.Listener) *Server {
	return &Server{cfg: cfg, ln: ln}
}

// Run accepts and serves sessions until a client sends EXIT or Accept fails.
func (s *Server) Run() (ShutdownMode, error) {
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			return ShutdownNone, fmt.Errorf("cloudsrv: accept: %w", err)
		}

		mode, err := s.handleSession(raw)
		if err != nil {
			slog.Error("cloud session ended with error", "error", err)
		}
		if mode != ShutdownNone {
			return mode, nil
		}
	}
}

func (s *Server) handleSession(raw net.Conn) (ShutdownMode, error) {
	defer raw.Close()

	sessionID := uuid.NewV4()
	logger := log.SessionLogger(sessionID.String())
	conn := transport.New(raw)

	first, err := conn.Recv(s.cfg.Networking.Compression)
	if err != nil {
		if errors.Is(err, direrr.ErrPeerClosed) {
			logger.Warn("edge disconnected before sending a scene")
			return ShutdownNone, nil
		}
		return ShutdownNone, err
	}
	if strings.TrimSpace(first) == "EXIT" {
		logger.Info("received EXIT, shutting down cloud process")
		return ShutdownAll, nil
	}

	scene, err := sceneio.ParseCloudScene(first)
	if err != nil {
		return ShutdownNone, fmt.Errorf("cloudsrv: parsing scene: %w", err)
	}

	tracers, err := tracer.Build(s.cfg)
	if err != nil {
		return ShutdownNone, fmt.Errorf("cloudsrv: building tracers: %w", err)
	}
	if len(tracers) == 0 {
		return ShutdownNone, fmt.Errorf("cloudsrv: no active local tracers configured")
	}
	for _, t := range tracers {
		if err := t.SetScene(scene); err != nil {
			return ShutdownNone, fmt.Errorf("cloudsrv: arming tracer %s: %w", t.Kind(), err)
		}
	}
	defer func() {
		for _, t := range tracers {
			t.Close()
		}
	}()

	logger.Info("cloud session scene parsed",
		"num_triangles", len(scene.TriangleIDs), "num_local_tracers", len(tracers))

	for {
		payload, err := conn.Recv(s.cfg.Networking.Compression)
		if err != nil {
			if errors.Is(err, direrr.ErrPeerClosed) {
				logger.Warn("edge disconnected mid-session")
				return ShutdownNone, nil
			}
			return ShutdownNone, err
		}

		switch strings.TrimSpace(payload) {
		case "END":
			logger.Info("cloud session ended normally")
			return ShutdownNone, nil
		case "EXIT":
			logger.Info("received EXIT mid-session, shutting down cloud process")
			return ShutdownAll, nil
		}

		task, super, err := sceneio.ParseTaskOrSuperTask(payload)
		if err != nil {
			return ShutdownNone, fmt.Errorf("cloudsrv: parsing task frame: %w", err)
		}

		var result model.TaskResult
		if task != nil {
			result, err = computeSingle(tracers, *task)
		} else {
			result, err = computeSuperTask(tracers, *super)
		}
		if err != nil {
			return ShutdownNone, fmt.Errorf("cloudsrv: computing task: %w", err)
		}

		if err := conn.Send(sceneio.FormatResult(result), s.cfg.Networking.Compression); err != nil {
			return ShutdownNone, fmt.Errorf("cloudsrv: sending result: %w", err)
		}
	}
}

func computeSingle(tracers []tracer.Tracer, task model.Task) (model.TaskResult, error) {
	results, err := runFabricOnce([]model.Task{task}, tracers)
	if err != nil {
		return model.TaskResult{}, err
	}
	if len(results) != 1 {
		return model.TaskResult{}, fmt.Errorf("cloudsrv: expected 1 result, got %d", len(results))
	}
	return results[0], nil
}

// computeSuperTask splits the SuperTask back into per-member tasks (using the sender's
// declared ray counts, not the edge's own partitioning), fans them out across the
// local tracers, then re-concatenates in member order before replying with a single
// combined TaskResult (spec.md §8 Invariant 5).
func computeSuperTask(tracers []tracer.Tracer, super model.SuperTask) (model.TaskResult, error) {
	tasks := make([]model.Task, len(super.Members))
	offset := 0
	for i, member := range super.Members {
		tasks[i] = model.Task{
			ID:   uint64(i),
			Rays: super.Rays[offset*model.RayFloats : (offset+member.RayCount)*model.RayFloats],
		}
		offset += member.RayCount
	}

	results, err := runFabricOnce(tasks, tracers)
	if err != nil {
		return model.TaskResult{}, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].TaskID < results[j].TaskID })

	combined := model.TaskResult{TaskID: super.ID}
	for _, r := range results {
		combined.TriangleIDs = append(combined.TriangleIDs, r.TriangleIDs...)
		combined.Distances = append(combined.Distances, r.Distances...)
	}
	return combined, nil
}

// runFabricOnce drives tasks through tracers via the shared queue fabric for a single
// request-response round, without tearing the tracers down afterward (unlike
// tracer.RunWorker, which owns a tracer's entire session lifecycle): a cloud session
// serves many requests against the same armed tracers.
func runFabricOnce(tasks []model.Task, tracers []tracer.Tracer) ([]model.TaskResult, error) {
	multiqueue := len(tracers) > 1
	fabric := queuefabric.Build(tasks, len(tracers), multiqueue)

	resultCh := make(chan model.TaskResult, len(tasks))
	var wg conc.WaitGroup
	var workErrMu sync.Mutex
	var workErr error
	for i, t := range tracers {
		i, t := i, t
		queueIdx := i
		if !multiqueue {
			queueIdx = 0
		}
		puller := queuefabric.NewPuller(len(fabric.Queues), queueIdx)
		wg.Go(func() {
			for {
				task := puller.Get(fabric.Queues)
				if task == nil {
					return
				}
				results, err := t.Compute(*task)
				if err != nil {
					workErrMu.Lock()
					workErr = multierr.Append(workErr, fmt.Errorf("%w: %v", direrr.ErrTracerCompute, err))
					workErrMu.Unlock()
					return
				}
				for _, r := range results {
					resultCh <- r
				}
			}
		})
	}
	wg.Wait()
	close(resultCh)

	var out []model.TaskResult
	for r := range resultCh {
		out = append(out, r)
	}
	return out, workErr
}
