// Package edge implements the edge session controller of spec.md §4.5: one TCP
// listener, one client session handled at a time, scene ingestion, task partitioning,
// queue fabric assembly, tracer worker fan-out, and in-arrival-order result streaming
// back to the client. Grounded on the original's application/darkedge.py
// (DarkEdge.run/_handle_connection) and the teacher's accept-loop/session style.
package edge

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"github.com/adriannosampaio/darkrenderer/internal/config"
	"github.com/adriannosampaio/darkrenderer/internal/direrr"
	"github.com/adriannosampaio/darkrenderer/internal/log"
	"github.com/adriannosampaio/darkrenderer/internal/model"
	"github.com/adriannosampaio/darkrenderer/internal/partition"
	"github.com/adriannosampaio/darkrenderer/internal/queuefabric"
	"github.com/adriannosampaio/darkrenderer/internal/sceneio"
	"github.com/adriannosampaio/darkrenderer/internal/tracer"
	"github.com/adriannosampaio/darkrenderer/internal/transport"
)

// ShutdownMode reports what a finished (or aborted) session asked the server to do
// next, per the SUPPLEMENTED shutdown_edge/shutdown_all client modes.
type ShutdownMode int

const (
	// ShutdownNone means keep accepting sessions.
	ShutdownNone ShutdownMode = iota
	// ShutdownEdge means stop the edge accept loop without forwarding EXIT to the
	// cloud peer.
	ShutdownEdge
	// ShutdownAll means the whole process should exit.
	ShutdownAll
)

// Server accepts edge sessions one at a time (spec.md Non-goals: no concurrent
// sessions against a single edge listener).
type Server struct {
	cfg *config.GlobalConfig
	ln  net.Listener
}

// New wraps an already-bound listener with the session controller.
func New(cfg *config.GlobalConfig, ln net.Listener) *Server {
	return &Server{cfg: cfg, ln: ln}
}

// Run accepts and serves sessions until a client requests shutdown or Accept fails.
func (s *Server) Run() (ShutdownMode, error) {
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			return ShutdownNone, fmt.Errorf("edge: accept: %w", err)
		}

		mode, err := s.handleSession(raw)
		if err != nil {
			slog.Error("edge session ended with error", "error", err)
		}
		if mode != ShutdownNone {
			return mode, nil
		}
	}
}

func (s *Server) handleSession(raw net.Conn) (mode ShutdownMode, err error) {
	defer raw.Close()

	sessionID := uuid.NewV4()
	logger := log.SessionLogger(sessionID.String())
	conn := transport.New(raw)

	first, err := conn.Recv(s.cfg.Networking.Compression)
	if err != nil {
		if errors.Is(err, direrr.ErrPeerClosed) {
			logger.Warn("client disconnected before sending a scene")
			return ShutdownNone, nil
		}
		return ShutdownNone, err
	}

	switch strings.TrimSpace(first) {
	case "EXIT_EDGE":
		logger.Info("received EXIT_EDGE, stopping edge accept loop")
		return ShutdownEdge, nil
	case "EXIT_ALL":
		logger.Info("received EXIT_ALL, shutting down process")
		if s.cfg.Processing.Cloud.Active {
			if err := notifyCloudExit(s.cfg); err != nil {
				logger.Warn("failed to forward EXIT to cloud peer", "error", err)
			}
		}
		return ShutdownAll, nil
	}

	sessionCfg := *s.cfg
	scenePayload := first
	if rest, ok := strings.CutPrefix(first, "CONFIG "); ok {
		overrides, err := sceneio.ParseConfig(rest)
		if err != nil {
			return ShutdownNone, fmt.Errorf("edge: parsing CONFIG: %w", err)
		}
		applyOverrides(&sessionCfg, overrides)

		scenePayload, err = conn.Recv(s.cfg.Networking.Compression)
		if err != nil {
			if errors.Is(err, direrr.ErrPeerClosed) {
				logger.Warn("client disconnected before sending a scene")
				return ShutdownNone, nil
			}
			return ShutdownNone, err
		}
	}

	scene, rays, err := sceneio.ParseEdgeScene(scenePayload)
	if err != nil {
		return ShutdownNone, fmt.Errorf("edge: parsing scene: %w", err)
	}

	if err := s.runDispatch(conn, &sessionCfg, scene, rays, logger); err != nil {
		if errors.Is(err, direrr.ErrPeerClosed) {
			logger.Warn("client disconnected mid-session")
			return ShutdownNone, nil
		}
		return ShutdownNone, err
	}
	return ShutdownNone, nil
}

// notifyCloudExit forwards an "EXIT" frame to this edge's configured cloud peer, per
// spec.md §4.5 step 1: an EXIT_ALL must cascade to the cloud tracer's remote process,
// not just shut down the edge itself.
func notifyCloudExit(cfg *config.GlobalConfig) error {
	raw, err := net.Dial("tcp", cfg.Cloud.Addr())
	if err != nil {
		return fmt.Errorf("edge: dialing cloud peer: %w", err)
	}
	defer raw.Close()
	return transport.New(raw).Send("EXIT", cfg.Networking.Compression)
}

func applyOverrides(cfg *config.GlobalConfig, o sceneio.SessionOverrides) {
	if o.TaskSize != nil {
		cfg.Processing.TaskSize = *o.TaskSize
	}
	if o.TaskChunkSize != nil {
		cfg.Processing.Cloud.TaskChunkSize = *o.TaskChunkSize
	}
	if o.Multiqueue != nil {
		cfg.Processing.Multiqueue = *o.Multiqueue
	}
	if o.Steal != nil {
		cfg.Processing.TaskSteal = *o.Steal
	}
	if o.Streaming != nil {
		cfg.Processing.Cloud.Streaming = *o.Streaming
	}
}

// runDispatch partitions the scene's rays, builds the queue fabric, fans tracer
// workers out over a conc.WaitGroup, and streams results back as they arrive, with
// no reordering (spec.md §4.5 step 5).
func (s *Server) runDispatch(conn *transport.Conn, cfg *config.GlobalConfig, scene model.Scene, rays []float64, logger *slog.Logger) error {
	counter := partition.NewCounter()
	tasks, err := partition.Split(rays, cfg.Processing.TaskSize, counter)
	if err != nil {
		return fmt.Errorf("edge: partitioning: %w", err)
	}
	logger.Info("session scene parsed", "num_tasks", len(tasks), "num_triangles", len(scene.TriangleIDs))

	tracers, err := tracer.Build(cfg)
	if err != nil {
		return fmt.Errorf("edge: building tracers: %w", err)
	}
	if len(tracers) == 0 {
		return fmt.Errorf("edge: no active tracers configured")
	}

	fabric := queuefabric.Build(tasks, len(tracers), cfg.Processing.Multiqueue)

	resultCh := make(chan model.TaskResult, 64)
	reportCh := make(chan model.TracerSummary, len(tracers))

	writerDone := make(chan error, 1)
	go func() {
		var sendErr error
		for r := range resultCh {
			if sendErr != nil {
				continue // drain the channel so workers don't block once the link is dead
			}
			if err := conn.Send(sceneio.FormatResult(r), cfg.Networking.Compression); err != nil {
				sendErr = err
			}
		}
		writerDone <- sendErr
	}()

	var wg conc.WaitGroup
	var workErrMu sync.Mutex
	var workErr error
	for i, t := range tracers {
		i, t := i, t
		queueIdx := i
		if !cfg.Processing.Multiqueue {
			queueIdx = 0
		}
		puller := queuefabric.NewPuller(len(fabric.Queues), queueIdx)
		wg.Go(func() {
			if err := tracer.RunWorker(t, scene, fabric.Queues, puller, cfg.Processing.TaskSteal, resultCh, reportCh); err != nil {
				workErrMu.Lock()
				workErr = multierr.Append(workErr, fmt.Errorf("%w: %v", direrr.ErrTracerCompute, err))
				workErrMu.Unlock()
			}
		})
	}
	wg.Wait()

	close(resultCh)
	close(reportCh)

	if sendErr := <-writerDone; sendErr != nil {
		return fmt.Errorf("edge: streaming results: %w", sendErr)
	}

	summaries := make([]string, 0, len(tracers))
	for summary := range reportCh {
		summaries = append(summaries, summary.String())
	}
	report := strings.Join(summaries, "; ")
	if err := conn.Send(report, cfg.Networking.Compression); err != nil {
		return fmt.Errorf("edge: sending report: %w", err)
	}

	if workErr != nil {
		logger.Warn("one or more tracers failed during session", "error", workErr)
	}
	return nil
}
