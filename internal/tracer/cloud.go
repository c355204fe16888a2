package tracer

import (
	"fmt"
	"net"

	"github.com/adriannosampaio/darkrenderer/internal/config"
	"github.com/adriannosampaio/darkrenderer/internal/direrr"
	"github.com/adriannosampaio/darkrenderer/internal/model"
	"github.com/adriannosampaio/darkrenderer/internal/sceneio"
	"github.com/adriannosampaio/darkrenderer/internal/transport"
)

// cloudTracer is the edge-side client of the cloud session controller (spec.md
// §4.4.3, §4.6): it forwards a share of the edge's tasks to a remote darkcloud process
// over the framed transport. Batched mode drains up to task_chunk_size tasks into one
// SuperTask per round trip; streaming mode sends each task immediately, keeping at
// most task_chunk_size replies outstanding (spec.md §4.4.3, §9 Design Notes). A zero
// task_chunk_size means unbounded: batched mode never auto-flushes, accumulating
// everything into a single SuperTask sent from Drain (spec.md §9 Open Question (b)).
// Grounded on the original's application/tracers.py TracerCloud.
type cloudTracer struct {
	conn        *transport.Conn
	compression bool
	streaming   bool
	chunkSize   int // TCHUNKSIZE; <= 0 means unbounded

	pending   []model.Task
	nextSuper uint64
	inFlight  int
}

func newCloudTracer(cfg *config.GlobalConfig) (Tracer, error) {
	raw, err := net.Dial("tcp", cfg.Cloud.Addr())
	if err != nil {
		return nil, fmt.Errorf("%w: dialing cloud endpoint: %v", direrr.ErrCloudNetwork, err)
	}
	return &cloudTracer{
		conn:        transport.New(raw),
		compression: cfg.Networking.Compression,
		streaming:   cfg.Processing.Cloud.Streaming,
		chunkSize:   cfg.Processing.Cloud.TaskChunkSize,
	}, nil
}

func (t *cloudTracer) Kind() model.TracerKind { return model.KindCloud }

func (t *cloudTracer) SetScene(scene model.Scene) error {
	if err := t.conn.Send(sceneio.FormatCloudScene(scene), t.compression); err != nil {
		return fmt.Errorf("%w: %v", direrr.ErrCloudNetwork, err)
	}
	return nil
}

// Compute accumulates or streams task depending on the configured mode. Batched mode
// returns results only once a full (or final, via Drain) SuperTask round-trips;
// streaming mode returns any replies that had to be drained to keep the in-flight
// window within task_chunk_size.
func (t *cloudTracer) Compute(task model.Task) ([]model.TaskResult, error) {
	if t.streaming {
		return t.computeStreaming(task)
	}
	return t.computeBatched(task)
}

func (t *cloudTracer) computeStreaming(task model.Task) ([]model.TaskResult, error) {
	var produced []model.TaskResult
	if t.chunkSize > 0 {
		for t.inFlight >= t.chunkSize {
			r, err := t.readOneResult()
			if err != nil {
				return nil, err
			}
			produced = append(produced, r)
			t.inFlight--
		}
	}
	if err := t.conn.Send(sceneio.FormatTask(task), t.compression); err != nil {
		return nil, fmt.Errorf("%w: %v", direrr.ErrCloudNetwork, err)
	}
	t.inFlight++
	return produced, nil
}

func (t *cloudTracer) computeBatched(task model.Task) ([]model.TaskResult, error) {
	t.pending = append(t.pending, task)
	if t.chunkSize > 0 && len(t.pending) >= t.chunkSize {
		return t.flushBatch()
	}
	return nil, nil
}

func (t *cloudTracer) flushBatch() ([]model.TaskResult, error) {
	if len(t.pending) == 0 {
		return nil, nil
	}
	super := model.SuperTask{ID: t.nextSuper}
	t.nextSuper++
	for _, task := range t.pending {
		super.AddTask(task)
	}

	if err := t.conn.Send(sceneio.FormatSuperTask(super), t.compression); err != nil {
		return nil, fmt.Errorf("%w: %v", direrr.ErrCloudNetwork, err)
	}
	payload, err := t.conn.Recv(t.compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", direrr.ErrCloudNetwork, err)
	}
	combined, err := sceneio.ParseResult(payload)
	if err != nil {
		return nil, err
	}

	results := super.SeparateResults(combined)
	t.pending = t.pending[:0]
	return results, nil
}

func (t *cloudTracer) readOneResult() (model.TaskResult, error) {
	payload, err := t.conn.Recv(t.compression)
	if err != nil {
		return model.TaskResult{}, fmt.Errorf("%w: %v", direrr.ErrCloudNetwork, err)
	}
	return sceneio.ParseResult(payload)
}

// Drain flushes a streaming tracer's remaining in-flight replies, or a batched
// tracer's undersized final SuperTask (spec.md §9: "an edge session ending
// mid-accumulation still flushes whatever it was holding").
func (t *cloudTracer) Drain() ([]model.TaskResult, error) {
	if t.streaming {
		var results []model.TaskResult
		for t.inFlight > 0 {
			r, err := t.readOneResult()
			if err != nil {
				return results, err
			}
			results = append(results, r)
			t.inFlight--
		}
		return results, nil
	}
	return t.flushBatch()
}

// Close sends the literal "END" frame terminating this cloud session (distinct from
// "EXIT", which would terminate the remote process itself; see spec.md SUPPLEMENTED
// FEATURES) and closes the connection.
func (t *cloudTracer) Close() error {
	sendErr := t.conn.Send("END", t.compression)
	closeErr := t.conn.Close()
	if sendErr != nil {
		return fmt.Errorf("%w: %v", direrr.ErrCloudNetwork, sendErr)
	}
	return closeErr
}

func init() { Register(model.KindCloud, newCloudTracer) }
